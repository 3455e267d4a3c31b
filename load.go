package modrender

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	modSignatureOffset = 1080
	s3mSignatureOffset = 44
)

// Load detects the format of songBytes from its signature and parses it into
// a Song. Supported are ProTracker style MODs (4 to 32 channels) and
// ScreamTracker 3 S3Ms. On failure a *LoadError is returned and no Song.
func Load(songBytes []byte) (*Song, error) {
	if isS3M(songBytes) {
		return NewS3MSongFromBytes(songBytes)
	}
	if _, ok := modChannels(songBytes); ok {
		return NewMODSongFromBytes(songBytes)
	}
	return nil, newLoadError(BadSignature, -1, errors.New("not a MOD or S3M file"))
}

func isS3M(b []byte) bool {
	return len(b) >= s3mSignatureOffset+4 && string(b[s3mSignatureOffset:s3mSignatureOffset+4]) == "SCRM"
}

// modChannels decodes the channel count from the MOD signature.
func modChannels(b []byte) (int, bool) {
	if len(b) < modSignatureOffset+4 {
		return 0, false
	}
	sig := b[modSignatureOffset : modSignatureOffset+4]
	isDigit := func(c byte) bool { return c >= '0' && c <= '9' }

	switch string(sig) {
	case "M.K.", "M!K!", "FLT4":
		return 4, true
	case "FLT8":
		return 8, true
	}
	switch {
	case string(sig[1:]) == "CHN" && isDigit(sig[0]): // xCHN, x = number of channels
		return int(sig[0] - '0'), true
	case (string(sig[2:]) == "CH" || string(sig[2:]) == "CN") && isDigit(sig[0]) && isDigit(sig[1]):
		// xxCH, xx = number of channels as two digit decimal
		return int(sig[0]-'0')*10 + int(sig[1]-'0'), true
	}
	return 0, false
}

// songReader wraps a bytes.Reader so that running out of data is reported as
// a Truncated LoadError carrying the offset of the failed read.
type songReader struct {
	*bytes.Reader
	order binary.ByteOrder
}

func newSongReader(b []byte, order binary.ByteOrder) *songReader {
	return &songReader{Reader: bytes.NewReader(b), order: order}
}

func (r *songReader) offset() int64 {
	return r.Size() - int64(r.Len())
}

// read decodes fixed size data, see binary.Read.
func (r *songReader) read(what string, data any) error {
	off := r.offset()
	if err := binary.Read(r.Reader, r.order, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return newLoadError(Truncated, off, fmt.Errorf("reading %s", what))
		}
		return newLoadError(Truncated, off, fmt.Errorf("reading %s: %w", what, err))
	}
	return nil
}

// seek moves to an absolute offset, offsets past the end are Truncated.
func (r *songReader) seek(what string, offset int64) error {
	if offset < 0 || offset > r.Size() {
		return newLoadError(Truncated, offset, fmt.Errorf("%s lies outside the file (%d bytes)", what, r.Size()))
	}
	_, err := r.Seek(offset, io.SeekStart)
	return err
}

// need verifies that n bytes are available from the current offset.
func (r *songReader) need(what string, n int) error {
	if n > r.Len() {
		return newLoadError(Truncated, r.offset(), fmt.Errorf("%s needs %d bytes, %d remain", what, n, r.Len()))
	}
	return nil
}

// Strips trailing 0x00 bytes and replaces any non ASCII character with a space
func cleanName(in []byte) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r > 127 {
			return ' '
		}
		return r
	}, strings.TrimRight(string(in), "\x00"))
}

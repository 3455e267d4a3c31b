// Package wav writes rendered PCM blocks to a RIFF/WAVE file.
//
// The header is written before the first block with placeholder sizes, Close
// seeks back and fills in the RIFF and data chunk sizes once the amount of
// audio is known.
// See http://soundfile.sapp.org/doc/WaveFormat/ for format
// documentation.
package wav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/chriskillpack/modrender"
)

// PCM is the WAVE format tag for uncompressed integer samples.
const PCM = 1

// ErrIO matches every *IOError with errors.Is.
var ErrIO = errors.New("wav: i/o error")

// IOError reports a failure to create, write or finalize a WAVE file. A file
// left behind after an IOError is not valid output.
type IOError struct {
	Op   string // "create", "write" or "close"
	Path string // empty for writers created with NewWriter
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("wav %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("wav %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// Writer appends PCM blocks to a WAVE stream.
type Writer struct {
	path     string
	f        *os.File // set when the Writer owns the file
	enc      *wav.Encoder
	buf      audio.IntBuffer
	bitDepth int
	frames   int64
	closed   bool
}

var _ modrender.BlockWriter = &Writer{}

// Open creates the file at path and returns a Writer for audio with the given
// format. Any existing file is truncated.
func Open(path string, sampleRate, channels, bitDepth int) (*Writer, error) {
	if err := checkFormat(sampleRate, channels, bitDepth); err != nil {
		return nil, &IOError{Op: "create", Path: path, Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, &IOError{Op: "create", Path: path, Err: err}
	}

	w := newWriter(f, sampleRate, channels, bitDepth)
	w.path = path
	w.f = f
	return w, nil
}

// NewWriter returns a Writer that encodes to ws. Close finalizes the stream
// but does not close ws.
func NewWriter(ws io.WriteSeeker, sampleRate, channels, bitDepth int) (*Writer, error) {
	if err := checkFormat(sampleRate, channels, bitDepth); err != nil {
		return nil, &IOError{Op: "create", Err: err}
	}
	return newWriter(ws, sampleRate, channels, bitDepth), nil
}

func newWriter(ws io.WriteSeeker, sampleRate, channels, bitDepth int) *Writer {
	return &Writer{
		enc: wav.NewEncoder(ws, sampleRate, bitDepth, channels, PCM),
		buf: audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: bitDepth,
		},
		bitDepth: bitDepth,
	}
}

func checkFormat(sampleRate, channels, bitDepth int) error {
	switch {
	case sampleRate <= 0:
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	case channels != 1 && channels != 2:
		return fmt.Errorf("invalid channel count %d", channels)
	case bitDepth != 8 && bitDepth != 16 && bitDepth != 24 && bitDepth != 32:
		return fmt.Errorf("invalid bit depth %d", bitDepth)
	}
	return nil
}

// AppendBlock writes the frames of b. Values must already be in the signed
// range of the Writer's bit depth.
func (w *Writer) AppendBlock(b modrender.Block) error {
	if w.closed {
		return &IOError{Op: "write", Path: w.path, Err: os.ErrClosed}
	}
	if b.Channels != w.buf.Format.NumChannels {
		return &IOError{Op: "write", Path: w.path, Err: fmt.Errorf("block has %d channels, writer has %d", b.Channels, w.buf.Format.NumChannels)}
	}

	data := b.Data[:b.Frames*b.Channels]
	if w.bitDepth == 8 {
		// 8-bit WAVE data is unsigned
		w.buf.Data = w.buf.Data[:0]
		for _, s := range data {
			w.buf.Data = append(w.buf.Data, s+128)
		}
	} else {
		w.buf.Data = data
	}

	if err := w.enc.Write(&w.buf); err != nil {
		return &IOError{Op: "write", Path: w.path, Err: err}
	}
	w.frames += int64(b.Frames)
	return nil
}

// Frames returns the number of frames written so far.
func (w *Writer) Frames() int64 {
	return w.frames
}

// Close patches the header sizes and closes the file if the Writer opened it.
// Calling Close more than once is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if w.frames == 0 {
		// Make sure the header gets written for an empty stream
		w.buf.Data = w.buf.Data[:0]
		err = w.enc.Write(&w.buf)
	}
	if err == nil {
		err = w.enc.Close()
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return &IOError{Op: "close", Path: w.path, Err: err}
	}
	return nil
}

// RenderFile renders song with cfg into a new WAVE file at path. The file is
// created before any audio is mixed, so an unusable path fails without doing
// any mixing work. The progress callback may be nil.
func RenderFile(ctx context.Context, song *modrender.Song, cfg modrender.Config, path string, progress func(modrender.Progress)) error {
	r, err := modrender.NewRenderer(song, cfg)
	if err != nil {
		return err
	}
	w, err := Open(path, cfg.SampleRate, cfg.Channels, cfg.BitDepth)
	if err != nil {
		return err
	}

	// Cancellation still leaves a valid, truncated file
	err = r.Render(ctx, w, progress)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

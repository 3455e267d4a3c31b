package modrender

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// S3M effect letters, A=1
const (
	s3mfx_SetSpeed          = 0x1  // A
	s3mfx_PatternJump       = 0x2  // B
	s3mfx_PatternBreak      = 0x3  // C
	s3mfx_VolumeSlide       = 0x4  // D
	s3mfx_PortamentoDown    = 0x5  // E
	s3mfx_PortamentoUp      = 0x6  // F
	s3mfx_TonePortamento    = 0x7  // G
	s3mfx_Vibrato           = 0x8  // H
	s3mfx_Arpeggio          = 0xA  // J
	s3mfx_VibratoVolSlide   = 0xB  // K
	s3mfx_PortaToNoteVolSld = 0xC  // L
	s3mfx_SampleOffset      = 0xF  // O
	s3mfx_Retrig            = 0x11 // Q
	s3mfx_Tremolo           = 0x12 // R
	s3mfx_Special           = 0x13 // S
	s3mfx_SetTempo          = 0x14 // T
	s3mfx_GlobalVolume      = 0x16 // V
	s3mfx_SetPan            = 0x18 // X

	s3mChannelUnused = 255
	s3mNoteEmpty     = 255
	s3mNoteOff       = 254
	s3mOrderSkip     = 254
	s3mOrderEnd      = 255
	s3mDefaultPan    = 252
)

// NewS3MSongFromBytes parses a ScreamTracker 3 module into a Song.
func NewS3MSongFromBytes(songBytes []byte) (*Song, error) {
	// Check if the song is an S3M
	if !isS3M(songBytes) {
		return nil, newLoadError(BadSignature, s3mSignatureOffset, errors.New("missing SCRM signature"))
	}

	song := &Song{Format: "ScreamTracker 3"}
	buf := newSongReader(songBytes, binary.LittleEndian)
	y := make([]byte, 28)
	if err := buf.read("title", y); err != nil {
		return nil, err
	}
	song.Title = cleanName(y)

	header := struct {
		Pad             byte
		Filetype        byte
		_               uint16
		Length          uint16
		NumInstruments  uint16
		NumPatterns     uint16
		Flags           uint16
		Tracker         uint16
		SampleFormat    uint16  // 1 = signed, 2 = unsigned
		_               [4]byte // 'SCRM'
		Volume          uint8
		Speed           uint8
		Tempo           uint8
		MastVolume      uint8
		_               uint8
		Panning         uint8
		_               [8]byte
		_               [2]byte
		ChannelSettings [32]byte
	}{}
	if err := buf.read("header", &header); err != nil {
		return nil, err
	}
	song.Tempo = int(header.Tempo)
	song.Speed = int(header.Speed)
	if song.Speed == 0 || song.Speed == 255 {
		song.Speed = 6
	}
	song.GlobalVolume = min(int(header.Volume), maxVolume)

	// Map the enabled S3M channels (settings 0-15) onto consecutive song
	// channels. Disabled, unused and Adlib channels are dropped.
	var chanMap [32]int
	for i, cs := range header.ChannelSettings {
		chanMap[i] = -1
		if cs < 16 {
			chanMap[i] = song.Channels
			song.Channels++
		}
	}
	if song.Channels == 0 {
		return nil, newLoadError(Inconsistent, 64, errors.New("no enabled channels"))
	}

	// Read in the orders
	orders := make([]byte, header.Length)
	if err := buf.read("orders", orders); err != nil {
		return nil, err
	}
	song.Orders = make([]byte, 0, header.Length)
	song.Restart = noRestart
	for _, pat := range orders {
		if pat == s3mOrderEnd {
			break
		}
		if pat == s3mOrderSkip {
			continue
		}
		song.Orders = append(song.Orders, pat)
	}

	// Load instrument and pattern parapointers
	paras := make([]uint16, int(header.NumInstruments)+int(header.NumPatterns))
	if err := buf.read("parapointers", paras); err != nil {
		return nil, err
	}

	// Default channel panning
	stereo := header.MastVolume&0x80 != 0
	var panTable [32]byte
	if header.Panning == s3mDefaultPan {
		if err := buf.read("panning table", &panTable); err != nil {
			return nil, err
		}
	}
	for i, cs := range header.ChannelSettings {
		sc := chanMap[i]
		if sc < 0 {
			continue
		}
		pan := 64
		if stereo {
			pan = 3 * 127 / 15 // ST3 default left
			if cs >= 8 {
				pan = 0xC * 127 / 15 // ST3 default right
			}
			if panTable[i]&0x20 != 0 {
				pan = int(panTable[i]&0xF) * 127 / 15
			}
		}
		song.pan[sc] = byte(pan)
	}

	dumpf("Title:\t\t%s\n", song.Title)
	dumpf("Channels:\t%d\n", song.Channels)
	dumpf("Speed:\t\t%d\n", song.Speed)
	dumpf("Tempo:\t\t%d\n", song.Tempo)
	dumpf("Patterns:\t%d\n", header.NumPatterns)
	dumpf("Orders:\t\t%d %v\n", len(song.Orders), song.Orders)
	dumpf("\n")

	// Read in the instrument sample data
	signed := header.SampleFormat == 1
	song.Samples = make([]Sample, int(header.NumInstruments))
	for i := range song.Samples {
		smp, err := readS3MInstrument(buf, int64(paras[i])*16, i, signed)
		if err != nil {
			return nil, err
		}
		song.Samples[i] = *smp
	}

	// Read in the packed pattern data
	song.Patterns = make([]Pattern, header.NumPatterns)
	for i := range song.Patterns {
		pat, err := readS3MPattern(buf, int64(paras[i+int(header.NumInstruments)])*16, i, song.Channels, &chanMap)
		if err != nil {
			return nil, err
		}
		song.Patterns[i] = pat
	}

	if err := song.Validate(); err != nil {
		return nil, err
	}
	return song, nil
}

func readS3MInstrument(buf *songReader, offset int64, idx int, signed bool) (*Sample, error) {
	what := fmt.Sprintf("instrument %d", idx+1)
	if err := buf.seek(what, offset); err != nil {
		return nil, err
	}
	instHeader := &struct {
		Type         byte
		Filename     [12]byte
		MemSegHi     byte
		MemSegLo     uint16
		SampleLength uint32
		LoopBegin    uint32
		LoopEnd      uint32
		Volume       byte
		_            byte
		Packing      byte // should be 0
		Flags        byte
		C2Speed      uint32 // really this should be called C4Speed
		_            [12]byte
		Name         [28]byte
		Scrs         [4]byte // 'SCRS'
	}{}
	if err := buf.read(what, instHeader); err != nil {
		return nil, err
	}

	sample := &Sample{
		Name:    cleanName(instHeader.Name[:]),
		C4Speed: int(instHeader.C2Speed),
		Volume:  min(int(instHeader.Volume), maxVolume),
	}
	if sample.C4Speed == 0 {
		sample.C4Speed = 8363
	}
	// Only PCM samples are played, Adlib instruments stay silent.
	if instHeader.Type != 1 || instHeader.SampleLength == 0 {
		dumpf("Instrument %d x%02X (type %d, empty)\n", idx, idx, instHeader.Type)
		return sample, nil
	}
	if instHeader.Packing != 0 {
		return nil, newLoadError(Inconsistent, offset, fmt.Errorf("%s uses unsupported packing %d", what, instHeader.Packing))
	}

	sample.Length = int(instHeader.SampleLength)
	if instHeader.Flags&1 == 1 && instHeader.LoopEnd > instHeader.LoopBegin {
		sample.LoopStart = int(instHeader.LoopBegin)
		sample.LoopLen = int(min(instHeader.LoopEnd, instHeader.SampleLength)) - sample.LoopStart
		if sample.LoopLen < 2 || sample.LoopStart >= sample.Length {
			sample.LoopStart, sample.LoopLen = 0, 0
		}
	}

	// Read sample data
	width := 1
	if instHeader.Flags&4 == 4 {
		width = 2
	}
	dataOffset := int64(uint(instHeader.MemSegHi)<<16|uint(instHeader.MemSegLo)) * 16
	if err := buf.seek(what+" data", dataOffset); err != nil {
		return nil, err
	}
	if err := buf.need(what+" data", sample.Length*width); err != nil {
		return nil, err
	}

	sample.Data = make([]int16, sample.Length)
	if width == 1 {
		raw := make([]byte, sample.Length)
		if err := buf.read(what+" data", raw); err != nil {
			return nil, err
		}
		for j, b := range raw {
			if !signed {
				b ^= 0x80 // Convert the unsigned S3M sample data to signed
			}
			sample.Data[j] = int16(int8(b)) << 8
		}
	} else {
		raw := make([]uint16, sample.Length)
		if err := buf.read(what+" data", raw); err != nil {
			return nil, err
		}
		for j, w := range raw {
			if !signed {
				w ^= 0x8000
			}
			sample.Data[j] = int16(w)
		}
	}

	dumpf("Instrument %d x%02X\n%s\n", idx, idx, sample)
	return sample, nil
}

func readS3MPattern(buf *songReader, offset int64, idx, channels int, chanMap *[32]int) (Pattern, error) {
	pat := newPattern(rowsPerPattern, channels)
	if offset == 0 {
		return pat, nil // Parapointer of 0 means an empty pattern
	}

	what := fmt.Sprintf("pattern %d", idx)
	if err := buf.seek(what, offset); err != nil {
		return pat, err
	}
	var packedLen uint16
	if err := buf.read(what+" length", &packedLen); err != nil {
		return pat, err
	}
	if packedLen < 2 {
		return pat, nil
	}
	if err := buf.need(what, int(packedLen)-2); err != nil {
		return pat, err
	}
	packed := make([]byte, int(packedLen)-2)
	if err := buf.read(what, packed); err != nil {
		return pat, err
	}

	overrun := func() (Pattern, error) {
		return pat, newLoadError(Inconsistent, offset, fmt.Errorf("%s data overruns its declared length %d", what, packedLen))
	}

	dumpf("Pattern %d (x%02X)\n", idx, idx)
	row, pos := 0, 0
	for row < rowsPerPattern && pos < len(packed) {
		b := packed[pos]
		pos++
		if b == 0 {
			// End of row
			row++
			continue
		}

		// Work out how many bytes follow so they can be bounds checked
		// up front.
		need := 0
		if b&32 != 0 {
			need += 2
		}
		if b&64 != 0 {
			need++
		}
		if b&128 != 0 {
			need += 2
		}
		if pos+need > len(packed) {
			return overrun()
		}
		data := packed[pos : pos+need]
		pos += need

		// Data for a disabled channel is skipped
		chn := chanMap[b&31]
		if chn < 0 {
			continue
		}
		no := pat.Cell(row, chn)

		// note and instrument
		if b&32 != 0 {
			noter, intr := data[0], data[1]
			data = data[2:]
			switch {
			case noter == s3mNoteOff:
				no.Pitch = noteKeyOff
			case noter == s3mNoteEmpty || noter&0xF > 11:
				// no note
			default:
				// Convert the S3M nibble note format into the internal player
				// note representation (but shifted up one octave).
				no.Pitch = notePitch(12 + 12*int(noter>>4) + int(noter&0xF))
			}
			no.Sample = int(intr)
		}

		// volume
		if b&64 != 0 {
			no.Volume = min(int(data[0]), maxVolume)
			data = data[1:]
		}

		// effect
		if b&128 != 0 {
			no.Effect, no.Param = convertS3MEffect(data[0], data[1])
		}
	}

	if dumpW != nil {
		for r := 0; r < pat.Rows; r++ {
			dumpf("%02X:", r)
			for c := 0; c < channels; c++ {
				dumpf(" | %s", pat.Cell(r, c))
			}
			dumpf("\n")
		}
		dumpf("\n")
	}

	return pat, nil
}

// convertS3MEffect maps an S3M effect letter and parameter onto the player's
// internal effect numbering (MOD effects plus internal extensions).
func convertS3MEffect(efc, parm byte) (effect byte, param byte) {
	effect, param = 0, parm

	switch efc {
	case s3mfx_SetSpeed:
		effect = effectS3MSetSpeed
	case s3mfx_PatternJump:
		effect = effectJumpToPattern
	case s3mfx_PatternBreak:
		effect = effectPatternBrk
	case s3mfx_VolumeSlide:
		effect = effectS3MVolumeSlide
	case s3mfx_PortamentoDown:
		effect = effectS3MPortamentoDown
	case s3mfx_PortamentoUp:
		effect = effectS3MPortamentoUp
	case s3mfx_TonePortamento:
		effect = effectPortaToNote
	case s3mfx_Vibrato:
		effect = effectVibrato
	case s3mfx_Arpeggio:
		effect = effectArpeggio
	case s3mfx_VibratoVolSlide:
		effect = effectVibratoVolSlide
	case s3mfx_PortaToNoteVolSld:
		effect = effectPortaToNoteVolSlide
	case s3mfx_SampleOffset:
		effect = effectSampleOffset
	case s3mfx_Retrig:
		effect = effectNoteRetrigVolSlide
	case s3mfx_Tremolo:
		effect = effectTremolo
	case s3mfx_SetTempo:
		effect = effectSetTempo
	case s3mfx_GlobalVolume:
		effect = effectS3MGlobalVolume
	case s3mfx_SetPan:
		// X00-X80, scale onto 0-127
		effect = effectSetPanPosition
		param = byte(min(int(parm), 0x80) * 127 / 0x80)
	case s3mfx_Special:
		x, y := parm>>4, parm&0xF
		switch x {
		case 0x8: // S8x set pan position
			effect = effectSetPanPosition
			param = byte(int(y) * 127 / 15)
		case 0xB: // SBx pattern loop
			effect = effectPatternLoop
			param = y
		case 0xC: // SCx note cut
			effect, param = effectExtended, effectExtendedNoteCut<<4|y
		case 0xD: // SDx note delay
			effect, param = effectExtended, effectExtendedNoteDelay<<4|y
		case 0x3: // S3x vibrato waveform
			effect, param = effectExtended, effectExtendedVibratoWaveform<<4|y
		case 0xE: // SEx pattern delay
			effect, param = effectExtended, effectExtendedPatternDelay<<4|y
		default:
			param = 0
		}
	default:
		// not supported, no-op. The parameter is dropped so that it is not
		// mistaken for an arpeggio.
		param = 0
	}

	return
}

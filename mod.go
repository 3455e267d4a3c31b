package modrender

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	modSamples      = 31
	bytesPerModCell = 4
)

// NewMODSongFromBytes parses a MOD file into a Song.
//
// This means reading out instrument data, sample data, order
// and pattern data into structures that the Sequencer can use.
func NewMODSongFromBytes(songBytes []byte) (*Song, error) {
	channels, ok := modChannels(songBytes)
	if !ok {
		return nil, newLoadError(BadSignature, modSignatureOffset, errors.New("unrecognized MOD signature"))
	}
	if channels < 1 || channels > maxChannels {
		return nil, newLoadError(Inconsistent, modSignatureOffset, fmt.Errorf("MOD signature declares %d channels", channels))
	}

	song := &Song{
		Channels:     channels,
		Speed:        6,
		Tempo:        125,
		GlobalVolume: maxVolume,
		SampleBank:   SampleBank{Samples: make([]Sample, modSamples)},
	}

	buf := newSongReader(songBytes, binary.BigEndian)
	title := make([]byte, 20)
	if err := buf.read("title", title); err != nil {
		return nil, err
	}
	song.Title = cleanName(title)

	// Read sample information (sample data is read later)
	for i := 0; i < modSamples; i++ {
		s, err := readMODSampleInfo(buf, i)
		if err != nil {
			return nil, err
		}
		song.Samples[i] = *s
	}

	// Read orders
	orders := struct {
		Orders    uint8
		Restart   uint8
		OrderData [128]byte
		Signature [4]byte
	}{}
	if err := buf.read("order table", &orders); err != nil {
		return nil, err
	}
	if orders.Orders == 0 || orders.Orders > 128 {
		return nil, newLoadError(Inconsistent, 950, fmt.Errorf("invalid song length %d", orders.Orders))
	}
	song.Orders = make([]byte, orders.Orders)
	copy(song.Orders, orders.OrderData[:orders.Orders])
	song.Restart = noRestart
	if int(orders.Restart) < len(song.Orders) {
		song.Restart = int(orders.Restart)
	}
	song.Format = fmt.Sprintf("ProTracker (%s)", cleanName(orders.Signature[:]))

	// Detect number of patterns by finding maximum pattern id in song
	// orders table. Unplayed entries past the song length still count, the
	// pattern data for them is stored in the file.
	patterns := 0
	for _, o := range orders.OrderData {
		patterns = max(patterns, int(o))
	}
	patterns++ // num patterns = max_pattern_idx + 1

	dumpf("Title:\t\t%s\n", song.Title)
	dumpf("Format:\t\t%s\n", song.Format)
	dumpf("Channels:\t%d\n", song.Channels)
	dumpf("Speed:\t\t%d\n", song.Speed)
	dumpf("Tempo:\t\t%d\n", song.Tempo)
	dumpf("Patterns:\t%d\n", patterns)
	dumpf("Orders:\t\t%d %v\n", len(song.Orders), song.Orders)
	dumpf("Restart:\t%d\n", song.Restart)
	dumpf("\n")

	// Setup Amiga panning, LRRL
	for i := 0; i < song.Channels; i++ {
		switch i & 3 {
		case 0, 3:
			song.pan[i] = 0 // left
		case 1, 2:
			song.pan[i] = 127 // right
		}
	}

	// Read pattern data
	song.Patterns = make([]Pattern, patterns)
	scratch := make([]byte, rowsPerPattern*song.Channels*bytesPerModCell)
	for i := 0; i < patterns; i++ {
		if err := buf.read(fmt.Sprintf("pattern %d", i), scratch); err != nil {
			return nil, err
		}
		pat := newPattern(rowsPerPattern, song.Channels)

		dumpf("Pattern %d (x%02X)\n", i, i)
		for p := range pat.Cells {
			cb := scratch[p*bytesPerModCell : (p+1)*bytesPerModCell]
			n := cellFromMODbytes(cb)

			if dumpW != nil {
				dumpMODCell(cb, p%song.Channels, song.Channels)
			}

			if n.Sample > modSamples {
				n.Sample = 0 // treat as no instrument
			}

			if n.Effect == effectSetVolume {
				n.Volume = min(int(n.Param), maxVolume)
			}

			switch {
			case n.Effect == effectExtended && (n.Param>>4 == effectExtendedNoteRetrig):
				n.Effect = effectNoteRetrigVolSlide
				n.Param = n.Param & 0xF
			case n.Effect == effectExtended && (n.Param>>4 == effectExtendedPatternLoop):
				n.Effect = effectPatternLoop
				n.Param = n.Param & 0xF
			case n.Effect == effectSetPanPosition:
				n.Param >>= 1 // 00-FF onto 0-127
			case n.Effect == effectSetSpeed && n.Param >= 0x20:
				n.Effect = effectSetTempo
			}

			pat.Cells[p] = n
		}
		song.Patterns[i] = pat
		dumpf("\n")
	}

	// Read sample data
	for i := range song.Samples {
		smp := &song.Samples[i]
		if err := buf.need(fmt.Sprintf("sample %d data", i+1), smp.Length); err != nil {
			return nil, err
		}
		raw := make([]int8, smp.Length)
		if err := buf.read(fmt.Sprintf("sample %d data", i+1), raw); err != nil {
			return nil, err
		}
		smp.Data = make([]int16, smp.Length)
		for j, v := range raw {
			smp.Data[j] = int16(v) << 8
		}
	}

	if err := song.Validate(); err != nil {
		return nil, err
	}
	return song, nil
}

func readMODSampleInfo(r *songReader, si int) (*Sample, error) {
	data := struct {
		Name      [22]byte
		Length    uint16
		FineTune  uint8
		Volume    uint8
		LoopStart uint16
		LoopLen   uint16
	}{}

	if err := r.read(fmt.Sprintf("sample %d header", si+1), &data); err != nil {
		return nil, err
	}
	dumpf("Sample %d x%02X\n", si, si)

	smp := &Sample{
		Name:      cleanName(data.Name[:]),
		Length:    int(data.Length) * 2,
		C4Speed:   fineTuning[data.FineTune&0xF],
		Volume:    min(int(data.Volume), maxVolume),
		LoopStart: int(data.LoopStart) * 2,
		LoopLen:   int(data.LoopLen) * 2,
	}
	if smp.LoopLen < 4 {
		smp.LoopLen = 0
	}

	// If the loop data overshoots the end of the sample then correct the loop
	// This logic lifted from MilkyTracker, not encountered these situations yet
	if smp.LoopStart+smp.LoopLen > smp.Length {
		// First attempt, move the loop start back
		dx := smp.LoopStart + smp.LoopLen - smp.Length
		smp.LoopStart = max(smp.LoopStart-dx, 0)
		// If it still overshoots the end then clamp the loop
		if smp.LoopStart+smp.LoopLen > smp.Length {
			dx = smp.LoopStart + smp.LoopLen - smp.Length
			smp.LoopLen -= dx
		}
	}
	if smp.LoopLen < 2 {
		smp.LoopLen = 0
	}
	dumpf("%s\n", smp)
	dumpf("\t%+v\n", data)

	return smp, nil
}

func cellFromMODbytes(nb []byte) Cell {
	period := int(nb[0]&0xF)<<8 + int(nb[1]) // This is an Amiga MOD period

	return Cell{
		Sample: int(nb[0]&0xF0 + nb[2]>>4),
		Pitch:  periodToNotePitch(period),
		Volume: noNoteVolume,
		Effect: nb[2] & 0xF,
		Param:  nb[3],
	}
}

func dumpMODCell(nb []byte, ch, channels int) {
	period := int(nb[0]&0xF)<<8 + int(nb[1])
	sample := int(nb[0]&0xF0 + nb[2]>>4)

	if ch == 0 {
		dumpf("| ")
	}
	dumpf("%4d", period)
	if period == 0 {
		dumpf(".....")
	} else {
		dumpf("(%s)", noteStrFromPeriod(period))
	}
	dumpf("%02X %X%02X ", sample, nb[2]&0xF, nb[3])
	if ch == channels-1 {
		dumpf("\n")
	}
}

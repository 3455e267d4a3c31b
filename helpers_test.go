package modrender

import (
	"encoding/binary"
	"strconv"
	"strings"
	"testing"
)

// newSongWithTestPattern builds a single order, single pattern song from the
// pattern DSL, see convertTestPatternData. The song has two 1000 frame
// samples: instrument 1 at volume 60 and instrument 2 at volume 55.
func newSongWithTestPattern(pattern [][]string, t *testing.T) *Song {
	t.Helper()

	pat, nChannels := convertTestPatternData(pattern)

	sampLength := 1000
	song := &Song{
		Title:        "testsong",
		Channels:     nChannels,
		GlobalVolume: 64,
		Speed:        2,
		Tempo:        125,
		SampleBank: SampleBank{Samples: []Sample{
			{
				Name:    "testins1",
				Volume:  60,
				C4Speed: 8363,
				Length:  sampLength,
				Data:    testSampleData(sampLength),
			},
			{
				Name:    "testins2",
				Volume:  55,
				C4Speed: 8363,
				Length:  sampLength,
				Data:    testSampleData(sampLength),
			},
		}},
		PatternStore: PatternStore{
			Orders:   []byte{0},
			Restart:  noRestart,
			Patterns: []Pattern{pat},
		},
	}
	for i := 0; i < nChannels; i++ {
		song.pan[i] = 64
	}
	if err := song.Validate(); err != nil {
		t.Fatalf("Could not create test song: %v", err)
	}
	return song
}

// testSampleData returns a square wave so that mixed output is never silent
// while a note plays.
func testSampleData(n int) []int16 {
	data := make([]int16, n)
	for i := range data {
		data[i] = 0x4000
		if (i/8)%2 == 1 {
			data[i] = -0x4000
		}
	}
	return data
}

func newSequencerWithTestPattern(pattern [][]string, t *testing.T) *Sequencer {
	t.Helper()

	seq, err := NewSequencer(newSongWithTestPattern(pattern, t), DefaultConfig())
	if err != nil {
		t.Fatalf("Could not create test sequencer: %v", err)
	}
	return seq
}

// Takes input of the form
// A-4 12 22 S34  - play A-4 with instrument 12, at volume 22 with S3M effect S with parameter 34
// ... .. 11 ...  - set volume to 11
// ^^. .. .. ...  - note off
// <empty string> - skip
func convertTestPatternData(pattern [][]string) (Pattern, int) {
	nChannels := len(pattern[0])
	pat := newPattern(len(pattern), nChannels)

	// Parse each row of input
	for r, row := range pattern {
		for c, col := range row {
			if col == "" {
				// Already initialized to an empty cell
				continue
			}
			note := pat.Cell(r, c)

			// Decode note
			parts := colToParts(col)
			note.Pitch = decodeNote(parts[0])
			note.Sample = decodeInt(parts[1], 0)
			note.Volume = decodeInt(parts[2], noNoteVolume)
			note.Effect, note.Param = decodeEffect(parts[3])
		}
	}

	return pat, nChannels
}

// Advances to next row in the pattern, will have processed the first tick
// of the next row on return.
func advanceToNextRow(seq *Sequencer) {
	old := seq.row
	for old == seq.row && !seq.Finished() {
		seq.AdvanceTick()
	}
	seq.AdvanceTick()
}

// advanceTicks runs n ticks and returns the last one.
func advanceTicks(seq *Sequencer, n int) Tick {
	var tick Tick
	for range n {
		tick, _ = seq.AdvanceTick()
	}
	return tick
}

func colToParts(s string) []string {
	return strings.Fields(s)
}

// decodeNote is the inverse of notePitch.String
func decodeNote(note string) notePitch {
	// note is of the form A-2, A#2, ^^. or ...
	if note == "^^." {
		return notePitch(noteKeyOff)
	} else if note == "..." {
		return notePitch(0)
	}

	ni := 0
	for ni = range notes {
		if notes[ni] == note[0:2] {
			break
		}
	}

	oct := int(note[2] - '0')
	return notePitch(12 + 12*oct + ni)
}

func decodeInt(sample string, replacement int) int {
	if sample == "" || sample == ".." {
		return replacement
	}

	ival, err := strconv.Atoi(sample)
	if err != nil {
		panic(err)
	}

	return ival
}

func decodeEffect(effect string) (byte, byte) {
	if effect == "" || effect == "..." {
		return 0, 0
	}

	param, err := strconv.ParseInt(effect[1:3], 16, 16)
	if err != nil {
		panic(err)
	}
	return convertS3MEffect(effect[0]-'A'+1, byte(param))
}

func validateChan(c *channel, sample, period, volume int, t *testing.T) {
	t.Helper()
	if c.Sample != sample {
		t.Errorf("Expecting sample %d, got %d", sample, c.Sample)
	}
	if c.Period != period {
		t.Errorf("Expected period %d, got %d", period, c.Period)
	}
	if c.Volume != volume {
		t.Errorf("Expected volume %d, got %d", volume, c.Volume)
	}
}

func validateChanToPlay(c *channel, sample, period, volume int, t *testing.T) {
	t.Helper()
	if c.sampleToPlay != sample {
		t.Errorf("Expected sample %d to be queued up, got %d", sample, c.sampleToPlay)
	}
	if c.periodToPlay != period {
		t.Errorf("Expected period %d to be queued up, got %d", period, c.periodToPlay)
	}
	if c.volumeToPlay != volume {
		t.Errorf("Expected volume %d to be queued, got %d", volume, c.volumeToPlay)
	}
}

// testMOD describes a ProTracker module to be assembled by bytes.
type testMOD struct {
	title     string
	signature string // defaults to M.K.
	channels  int    // defaults to 4
	orders    []byte
	restart   byte
	samples   []testMODSample
	cells     map[[3]int][4]byte // {pattern, row, channel} -> raw cell bytes
	truncate  int                // bytes to drop from the end of the file
}

type testMODSample struct {
	name      string
	volume    byte
	finetune  byte
	loopStart int // in bytes, must be even
	loopLen   int
	data      []int8 // length must be even
}

// modCell encodes a MOD pattern cell.
func modCell(period, sample int, effect, param byte) [4]byte {
	return [4]byte{
		byte(sample&0xF0) | byte(period>>8&0xF),
		byte(period),
		byte(sample&0xF)<<4 | effect&0xF,
		param,
	}
}

func (m testMOD) bytes() []byte {
	sig := m.signature
	if sig == "" {
		sig = "M.K."
	}
	channels := m.channels
	if channels == 0 {
		channels = 4
	}

	var b []byte
	title := make([]byte, 20)
	copy(title, m.title)
	b = append(b, title...)

	for i := range modSamples {
		var s testMODSample
		if i < len(m.samples) {
			s = m.samples[i]
		}
		name := make([]byte, 22)
		copy(name, s.name)
		b = append(b, name...)
		b = binary.BigEndian.AppendUint16(b, uint16(len(s.data)/2))
		b = append(b, s.finetune, s.volume)
		b = binary.BigEndian.AppendUint16(b, uint16(s.loopStart/2))
		b = binary.BigEndian.AppendUint16(b, uint16(s.loopLen/2))
	}

	b = append(b, byte(len(m.orders)), m.restart)
	var orders [128]byte
	copy(orders[:], m.orders)
	b = append(b, orders[:]...)
	b = append(b, sig...)

	patterns := 0
	for _, o := range orders {
		patterns = max(patterns, int(o)+1)
	}
	for p := range patterns {
		for row := range rowsPerPattern {
			for ch := range channels {
				cell := m.cells[[3]int{p, row, ch}]
				b = append(b, cell[:]...)
			}
		}
	}

	for _, s := range m.samples {
		for _, v := range s.data {
			b = append(b, byte(v))
		}
	}

	return b[:len(b)-m.truncate]
}

// testS3M describes a ScreamTracker 3 module to be assembled by bytes.
type testS3M struct {
	title       string
	settings    []byte // channel settings, channels past the end are unused
	orders      []byte
	speed       byte
	tempo       byte
	globalVol   byte
	masterVol   byte // bit 7 set for stereo
	signed      bool
	panTable    []byte // written when not nil
	instruments []testS3MInstrument
	patterns    [][]byte // packed rows without the length prefix, nil for an empty pattern
	truncate    int      // bytes to drop from the end of the file
}

type testS3MInstrument struct {
	typ       byte // 1 = PCM, defaults to 1
	name      string
	volume    byte
	flags     byte // 1 = loop, 4 = 16-bit
	packing   byte
	loopBegin uint32
	loopEnd   uint32
	c4speed   uint32
	length    uint32 // in sample frames, defaults to the data length
	data      []byte
}

// s3mCell packs one cell for channel ch. vol < 0 leaves out the volume and
// fx == 0 leaves out the effect.
func s3mCell(ch int, note, ins byte, vol int, fx, param byte) []byte {
	flags := byte(ch) | 32
	out := []byte{note, ins}
	if vol >= 0 {
		flags |= 64
		out = append(out, byte(vol))
	}
	if fx != 0 {
		flags |= 128
		out = append(out, fx, param)
	}
	return append([]byte{flags}, out...)
}

func (m testS3M) bytes() []byte {
	le := binary.LittleEndian

	b := make([]byte, 96)
	copy(b, m.title)
	b[28], b[29] = 0x1A, 16
	le.PutUint16(b[32:], uint16(len(m.orders)))
	le.PutUint16(b[34:], uint16(len(m.instruments)))
	le.PutUint16(b[36:], uint16(len(m.patterns)))
	le.PutUint16(b[40:], 0x1320)
	le.PutUint16(b[42:], 2)
	if m.signed {
		le.PutUint16(b[42:], 1)
	}
	copy(b[44:], "SCRM")
	b[48], b[49], b[50], b[51] = m.globalVol, m.speed, m.tempo, m.masterVol
	if m.panTable != nil {
		b[53] = s3mDefaultPan
	}
	for i := range 32 {
		b[64+i] = s3mChannelUnused
	}
	copy(b[64:], m.settings)
	b = append(b, m.orders...)

	paras := len(b)
	b = append(b, make([]byte, 2*(len(m.instruments)+len(m.patterns)))...)
	if m.panTable != nil {
		var pt [32]byte
		copy(pt[:], m.panTable)
		b = append(b, pt[:]...)
	}

	align := func() int {
		for len(b)%16 != 0 {
			b = append(b, 0)
		}
		return len(b) / 16
	}

	headers := make([]int, len(m.instruments))
	for i, ins := range m.instruments {
		p := align()
		le.PutUint16(b[paras+2*i:], uint16(p))
		headers[i] = len(b)

		h := make([]byte, 80)
		h[0] = ins.typ
		if h[0] == 0 {
			h[0] = 1
		}
		copy(h[1:13], "sample.raw")
		length := ins.length
		if length == 0 {
			length = uint32(len(ins.data))
			if ins.flags&4 != 0 {
				length /= 2
			}
		}
		le.PutUint32(h[16:], length)
		le.PutUint32(h[20:], ins.loopBegin)
		le.PutUint32(h[24:], ins.loopEnd)
		h[28] = ins.volume
		h[30] = ins.packing
		h[31] = ins.flags
		le.PutUint32(h[32:], ins.c4speed)
		copy(h[48:76], ins.name)
		copy(h[76:], "SCRS")
		b = append(b, h...)
	}
	for i, ins := range m.instruments {
		p := align()
		b[headers[i]+13] = byte(p >> 16)
		le.PutUint16(b[headers[i]+14:], uint16(p))
		b = append(b, ins.data...)
	}

	for i, packed := range m.patterns {
		if packed == nil {
			continue
		}
		p := align()
		le.PutUint16(b[paras+2*(len(m.instruments)+i):], uint16(p))
		b = le.AppendUint16(b, uint16(len(packed)+2))
		b = append(b, packed...)
	}

	return b[:len(b)-m.truncate]
}

package modrender

import "fmt"

const (
	rowsPerPattern = 64
	maxChannels    = 32
	maxVolume      = 64  // channel maximum volume
	noteKeyOff     = 254 // notePitch value for a note off (^^.)
	noNoteVolume   = 255 // cell does not have a volume set
	noRestart      = -1
)

// Song represents a loaded MOD or S3M file. The embedded SampleBank and
// PatternStore are read-only once loading has finished, a Song can be shared
// between any number of concurrent Renderers.
type Song struct {
	Title        string
	Format       string // human readable format tag, e.g. "ProTracker (M.K.)"
	Channels     int
	Tempo        int // in beats per minute
	Speed        int // number of tempo ticks before advancing to the next row
	GlobalVolume int

	SampleBank
	PatternStore

	pan [maxChannels]byte // initial channel panning, 0=Full Left, 127=Full Right
}

// SampleBank owns the instrument waveforms of a song.
type SampleBank struct {
	Samples []Sample
}

// Sample holds information about an instrument sample including sample data.
// 8-bit sample data is scaled up to 16 bits at load time.
type Sample struct {
	Name      string
	Length    int
	Volume    int
	LoopStart int
	LoopLen   int
	C4Speed   int
	Data      []int16
}

func (s Sample) String() string {
	return fmt.Sprintf(
		"\tName:\t\t%s\n"+
			"\tLength:\t\t%d\n"+
			"\tVolume:\t\t%d\n"+
			"\tC4Speed:\t%d\n"+
			"\tLoop Start:\t%d\n"+
			"\tLoop Len:\t%d\n", s.Name, s.Length, s.Volume, s.C4Speed, s.LoopStart, s.LoopLen,
	)
}

// Looped reports if the sample has a loop section
func (s *Sample) Looped() bool {
	return s.LoopLen > 0
}

// Lookup resolves a 1-based instrument reference from a Cell.
func (b *SampleBank) Lookup(ref int) (*Sample, bool) {
	if ref <= 0 || ref > len(b.Samples) {
		return nil, false
	}
	return &b.Samples[ref-1], true
}

// PatternStore owns the pattern data and the order (arrangement) of a song.
type PatternStore struct {
	Orders   []byte
	Restart  int // order index to loop back to at the end of the song, -1 if none
	Patterns []Pattern
}

// Pattern is a grid of Rows x Channels cells stored row major.
type Pattern struct {
	Rows     int
	Channels int
	Cells    []Cell
}

// Cell returns the cell for the row and channel.
func (p *Pattern) Cell(row, channel int) *Cell {
	return &p.Cells[row*p.Channels+channel]
}

// PatternAt returns the pattern played at order position ord.
func (ps *PatternStore) PatternAt(ord int) *Pattern {
	return &ps.Patterns[ps.Orders[ord]]
}

// Cell is a single channel entry in a pattern row.
type Cell struct {
	Pitch  notePitch // 0 = no note
	Sample int       // 1-based instrument, 0 = no instrument
	Volume int       // noNoteVolume if no volume was set
	Effect byte
	Param  byte
}

// String formats the cell the way trackers display it, e.g. "C-4 01 40 A0F".
func (c Cell) String() string {
	s := c.Pitch.String()
	if c.Sample > 0 {
		s += fmt.Sprintf(" %02d", c.Sample)
	} else {
		s += " .."
	}
	if c.Volume != noNoteVolume {
		s += fmt.Sprintf(" %02d", c.Volume)
	} else {
		s += " .."
	}
	if c.Effect == 0 && c.Param == 0 {
		return s + " ..."
	}
	return s + fmt.Sprintf(" %X%02X", c.Effect, c.Param)
}

// Allocate and initialize a new pattern of empty cells
func newPattern(rows, channels int) Pattern {
	cells := make([]Cell, rows*channels)
	for i := range cells {
		cells[i].Volume = noNoteVolume
	}

	return Pattern{Rows: rows, Channels: channels, Cells: cells}
}

// Validate checks the structural invariants of a song: every order refers
// to an existing pattern, every pattern matches the song's channel count and
// every instrument reference resolves. Instrument references that do not
// resolve are cleared rather than reported, so a song built in memory behaves
// like a loaded one.
func (s *Song) Validate() error {
	if err := s.checkLayout(); err != nil {
		return err
	}
	if s.Restart >= len(s.Orders) {
		s.Restart = noRestart
	}
	for i := range s.Patterns {
		p := &s.Patterns[i]
		for j := range p.Cells {
			if _, ok := s.Lookup(p.Cells[j].Sample); !ok {
				p.Cells[j].Sample = 0
			}
		}
	}
	for i := range s.Samples {
		smp := &s.Samples[i]
		smp.Length = min(max(smp.Length, 0), len(smp.Data))
		if smp.LoopStart < 0 || smp.LoopLen < 0 || smp.LoopStart+smp.LoopLen > smp.Length {
			smp.LoopStart, smp.LoopLen = 0, 0
		}
	}
	if s.Speed <= 0 {
		s.Speed = 6
	}
	if s.Tempo < 32 {
		s.Tempo = 125
	}
	return nil
}

// checkLayout reports the order, channel and pattern shape errors that would
// make indexing into the song fail. It does not modify the song.
func (s *Song) checkLayout() error {
	if s.Channels < 1 || s.Channels > maxChannels {
		return newLoadError(Inconsistent, -1, fmt.Errorf("invalid channel count %d", s.Channels))
	}
	if len(s.Orders) == 0 {
		return newLoadError(Inconsistent, -1, fmt.Errorf("song has no orders"))
	}
	for i, ord := range s.Orders {
		if int(ord) >= len(s.Patterns) {
			return newLoadError(Inconsistent, -1, fmt.Errorf("order %d references missing pattern %d", i, ord))
		}
	}
	for i := range s.Patterns {
		p := &s.Patterns[i]
		if p.Channels != s.Channels {
			return newLoadError(Inconsistent, -1, fmt.Errorf("pattern %d has %d channels, song has %d", i, p.Channels, s.Channels))
		}
		if p.Rows < 1 || len(p.Cells) != p.Rows*p.Channels {
			return newLoadError(Inconsistent, -1, fmt.Errorf("pattern %d has %d cells for %d rows", i, len(p.Cells), p.Rows))
		}
	}
	return nil
}

// checkPlayable is checkLayout plus the sample and timing fields the
// Sequencer relies on. Validate establishes all of them.
func (s *Song) checkPlayable() error {
	if err := s.checkLayout(); err != nil {
		return err
	}
	if s.Restart >= len(s.Orders) {
		return newLoadError(Inconsistent, -1, fmt.Errorf("restart order %d past the end of the song", s.Restart))
	}
	if err := s.checkSamples(); err != nil {
		return err
	}
	if s.Speed < 1 || s.Tempo < 32 {
		return newLoadError(Inconsistent, -1, fmt.Errorf("invalid speed %d or tempo %d", s.Speed, s.Tempo))
	}
	return nil
}

// checkSamples reports sample lengths and loops that run past the sample data.
func (b *SampleBank) checkSamples() error {
	for i := range b.Samples {
		smp := &b.Samples[i]
		if smp.Length < 0 || smp.Length > len(smp.Data) || smp.LoopStart < 0 || smp.LoopLen < 0 || smp.LoopStart+smp.LoopLen > smp.Length {
			return newLoadError(Inconsistent, -1, fmt.Errorf("sample %d bounds do not fit its data", i+1))
		}
	}
	return nil
}

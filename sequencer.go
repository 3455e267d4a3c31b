package modrender

import (
	"fmt"

	clone "github.com/huandu/go-clone/generic"
)

// Position is a location in the song.
type Position struct {
	Order   int
	Pattern int
	Row     int
	Tick    int
}

// Voice is the mix instruction for one channel for the duration of a tick.
type Voice struct {
	Sample  int  // index into the song's Samples, -1 if the channel is silent
	Period  int  // Amiga period * 4, vibrato and arpeggio applied
	Volume  int  // 0-64, tremolo applied
	Pan     int  // 0=Full Left, 127=Full Right
	Trigger bool // restart the sample at Offset this tick
	Offset  int  // sample frame to start from when triggered
}

// Tick is everything the Mixer needs to render one tick of audio. The Voices
// slice is reused by the Sequencer, use Clone to retain a Tick.
type Tick struct {
	Position
	Frames       int // duration of the tick in output frames
	GlobalVolume int // 0-64
	Voices       []Voice
}

// Clone returns a deep copy of t.
func (t Tick) Clone() Tick {
	return clone.Clone(t)
}

// ChannelState holds the externally visible registers of a channel.
type ChannelState struct {
	Sample int // sample that is being played (or -1 if no sample)
	Period int
	Volume int
	Pan    int // Pan position, 0=Full Left, 127=Full Right
	Effect byte
	Param  byte

	// When the note was triggered
	TrigOrder, TrigRow int
}

// SequencerState is a snapshot of the sequencer, see Sequencer.State.
type SequencerState struct {
	Position
	Finished     bool
	Tempo        int
	Speed        int
	GlobalVolume int
	Elapsed      int64 // output frames generated so far
	Channels     []ChannelState
}

type channel struct {
	ChannelState

	sampleToPlay int  // sample _to be played_, used for Note Delay effect
	periodToPlay int  // period of a note with note delay
	volumeToPlay int  // volume _to be played_, used for Note Delay effect
	delayTrigger bool // the delayed note restarts the sample
	portaPeriod  int  // Portamento destination as a period
	portaSpeed   int

	trigger bool // sample (re)starts this tick
	offset  int  // sample offset for the trigger

	tremoloDepth  int
	tremoloSpeed  int
	tremoloPhase  int
	tremoloAdjust int

	vibratoDepth    int
	vibratoSpeed    int
	vibratoPhase    int
	vibratoAdjust   int
	vibratoWaveform vibType

	arpeggioNote  int
	effectCounter int

	memVolSlide   byte // saved volume slide parameter
	memPortamento byte // saved portamento parameter (this is shared by the up and down commands)
	memRetrig     byte // saved retrig parameter
	memOffset     byte // saved sample offset parameter
}

type loopinfo struct {
	start int
	count int
}

// Sequencer walks a Song's order list and patterns one tick at a time and
// turns the pattern data into per channel mix instructions. It is a state
// machine with two states, playing and finished. A Sequencer is not safe for
// concurrent use, the Song it reads is never modified.
type Sequencer struct {
	song              *Song
	samplingFrequency int
	cfg               Config

	// song configuration
	tempo          int
	speed          int
	samplesPerTick int
	globalVolume   int

	// These next fields track sequencer position in the song
	order     int
	row       int
	tick      int // counts up from 0 to speed-1 within a row
	finished  bool
	elapsed   int64
	played    int // number of orders played
	passes    int // number of loop backs taken
	rowRepeat bool

	// Row transitions latched by effects, applied when the row ends
	jumpOrder    int // -1 = none
	breakRow     int // -1 = none
	loopRow      int // -1 = none
	patternDelay int

	visited [][]bool // [order][row] rows played in this pass

	loop     []loopinfo
	channels []channel
	voices   []Voice
}

// NewSequencer returns a Sequencer positioned at the first row of the
// configured start order.
func NewSequencer(song *Song, cfg Config) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if song == nil {
		return nil, fmt.Errorf("%w: no song", ErrInvalidConfig)
	}
	if err := song.checkPlayable(); err != nil {
		return nil, err
	}
	s := &Sequencer{
		song:              song,
		samplingFrequency: cfg.SampleRate,
		cfg:               cfg,
		loop:              make([]loopinfo, song.Channels),
		channels:          make([]channel, song.Channels),
		voices:            make([]Voice, song.Channels),
		visited:           make([][]bool, len(song.Orders)),
	}
	for i := range s.visited {
		s.visited[i] = make([]bool, song.PatternAt(i).Rows)
	}
	s.reset()

	return s, nil
}

func (s *Sequencer) reset() {
	s.setTempo(s.song.Tempo)
	s.speed = s.song.Speed
	s.globalVolume = s.song.GlobalVolume
	s.order = min(s.cfg.StartOrder, len(s.song.Orders)-1)
	s.row = 0
	s.tick = 0
	s.jumpOrder, s.breakRow, s.loopRow = -1, -1, -1

	for i := range s.channels {
		s.channels[i] = channel{
			ChannelState: ChannelState{
				Sample:    -1,
				Pan:       int(s.song.pan[i]),
				TrigOrder: -1,
				TrigRow:   -1,
			},
			sampleToPlay:    -1,
			vibratoWaveform: vibratoSine,
		}
	}
}

func (s *Sequencer) setTempo(tempo int) {
	if tempo < 32 {
		return
	}
	s.samplesPerTick = samplesPerTick(s.samplingFrequency, tempo)
	s.tempo = tempo
}

func (s *Sequencer) setSpeed(speed int) {
	if speed > 0 {
		s.speed = speed
	}
}

// Finished reports if the end of the song has been reached.
func (s *Sequencer) Finished() bool {
	return s.finished
}

// Position returns the position of the next tick.
func (s *Sequencer) Position() Position {
	return Position{Order: s.order, Pattern: int(s.song.Orders[s.order]), Row: s.row, Tick: s.tick}
}

// Elapsed returns the number of output frames produced so far.
func (s *Sequencer) Elapsed() int64 {
	return s.elapsed
}

// State returns a snapshot of the sequencer's position and channel registers.
// The snapshot shares no memory with the Sequencer.
func (s *Sequencer) State() SequencerState {
	st := SequencerState{
		Position:     s.Position(),
		Finished:     s.finished,
		Tempo:        s.tempo,
		Speed:        s.speed,
		GlobalVolume: s.globalVolume,
		Elapsed:      s.elapsed,
		Channels:     make([]ChannelState, len(s.channels)),
	}
	for i := range s.channels {
		st.Channels[i] = s.channels[i].ChannelState
	}
	return st
}

// AdvanceTick runs one tick of the song and returns the mix instructions for
// it. Once the song has finished it returns false and does nothing else.
func (s *Sequencer) AdvanceTick() (Tick, bool) {
	if s.finished {
		return Tick{}, false
	}

	pos := s.Position()
	if s.tick == 0 && !s.rowRepeat {
		s.processRow()
	} else {
		for i := range s.channels {
			s.channelTick(&s.channels[i])
		}
	}

	tick := Tick{
		Position:     pos,
		Frames:       s.samplesPerTick,
		GlobalVolume: s.globalVolume,
		Voices:       s.emitVoices(),
	}
	s.elapsed += int64(s.samplesPerTick)
	s.advancePosition()

	return tick, true
}

func (s *Sequencer) emitVoices() []Voice {
	for i := range s.channels {
		c := &s.channels[i]
		v := &s.voices[i]

		period := c.Period
		if c.arpeggioNote > 0 {
			period = period * arpeggioTable[c.arpeggioNote] >> 16
		}
		period += c.vibratoAdjust * 4

		*v = Voice{
			Sample:  c.Sample,
			Period:  clampPeriod(period),
			Volume:  clampVolume(c.Volume + c.tremoloAdjust),
			Pan:     c.Pan,
			Trigger: c.trigger,
			Offset:  c.offset,
		}
		if c.Sample < 0 || c.Period == 0 {
			v.Sample = -1
		}
		c.trigger = false
	}
	return s.voices
}

// advancePosition moves to the next tick, row or order.
func (s *Sequencer) advancePosition() {
	s.tick++
	if s.tick < s.speed {
		return
	}
	s.tick = 0

	if s.patternDelay > 0 {
		s.patternDelay--
		s.rowRepeat = true
		return
	}
	s.rowRepeat = false

	nextOrder, nextRow := s.order, s.row+1
	switch {
	case s.loopRow >= 0:
		nextRow = s.loopRow
		// The loop body gets played again
		for r := s.loopRow; r <= s.row; r++ {
			s.visited[s.order][r] = false
		}
	case s.jumpOrder >= 0 || s.breakRow >= 0:
		nextOrder = s.order + 1
		if s.jumpOrder >= 0 {
			nextOrder = s.jumpOrder
		}
		nextRow = max(s.breakRow, 0)
	}
	s.jumpOrder, s.breakRow, s.loopRow = -1, -1, -1

	if nextOrder == s.order && nextRow >= s.song.PatternAt(s.order).Rows {
		nextOrder++
		nextRow = 0
	}

	if nextOrder != s.order {
		s.played++
		if s.cfg.MaxOrders > 0 && s.played >= s.cfg.MaxOrders {
			s.finish()
			return
		}
		for i := range s.loop {
			s.loop[i] = loopinfo{}
		}
	}

	if nextOrder >= len(s.song.Orders) {
		if s.song.Restart < 0 || !s.loopBack() {
			s.finish()
			return
		}
		nextOrder, nextRow = s.song.Restart, 0
	}
	if nextRow >= s.song.PatternAt(nextOrder).Rows {
		nextRow = 0
	}
	if s.visited[nextOrder][nextRow] && !s.loopBack() {
		s.finish()
		return
	}

	s.order, s.row = nextOrder, nextRow
}

// loopBack starts a new pass through the song if the configuration allows
// it.
func (s *Sequencer) loopBack() bool {
	if s.passes >= s.cfg.Loops {
		return false
	}
	s.passes++
	for _, rows := range s.visited {
		clear(rows)
	}
	return true
}

func (s *Sequencer) finish() {
	s.finished = true
	for i := range s.channels {
		s.channels[i].Sample = -1
	}
}

func (s *Sequencer) processRow() {
	pattern := s.song.PatternAt(s.order)
	s.visited[s.order][s.row] = true

	for i := range s.channels {
		s.channelRow(i, pattern.Cell(s.row, i))
	}
}

// channelRow handles the first tick of a row for one channel.
func (s *Sequencer) channelRow(ci int, patnote *Cell) {
	channel := &s.channels[ci]
	channel.effectCounter = 0

	sampNum := patnote.Sample
	pitch := patnote.Pitch
	effect := patnote.Effect
	param := patnote.Param

	notePresent := pitch > 0

	// Note triggering behavior, from experimentation in ST3
	//
	// Note Ins Vol Effect Behavior
	// N                   Play new note N with existing instrument, at
	//                     existing channel volume. If no prior
	//                     instrument nothing is played. Prior
	//                     instrument cleared at beginning of song, not
	//                     each pattern transition.
	//      I              Next note will use instrument I, stops
	//                     currently playing instrument if different.
	//                     If the same then the instrument continues
	//                     playing with the volume at the default.
	// N    I              Play new note N with new instrument I, at
	//                     instrument default volume.
	//          V          Adjust channel volume to V.
	// N        V          Play new note N at volume V with existing
	//                     instrument on channel.
	//      I   V          Next note will use instrument I, with volume
	//                     V (if no volume on the next note). Any
	//                     currently playing instrument is stopped.
	// N    I   V          Play new note N with new instrument I at new
	//                     volume V.
	// N            Dly    Play note N with delay using current
	//                     instrument and volume, currently playing
	//                     note is not changed.
	// N    I       Dly    Play note N with delay using instrument I at
	//                     default volume.
	//          V   Dly    After delay change volume of currently
	//                     playing note

	volume := noNoteVolume

	// If there is an instrument/sample number then reset the volume
	// sample numbers are 1-based in MOD & S3M formats
	if smp, ok := s.song.Lookup(sampNum); ok {
		channel.sampleToPlay = sampNum - 1
		volume = smp.Volume // Play at the instrument's volume

		// If there is no note and the instrument isn't the same as the active
		// instrument then stop the playing the current note.
		if !notePresent && channel.Sample != (sampNum-1) {
			channel.Sample = -1
		}
	}

	// If the note has a volume then use that
	if patnote.Volume != noNoteVolume {
		volume = patnote.Volume
	}

	noteDelay := effect == effectExtended && param>>4 == effectExtendedNoteDelay && param&0xF > 0
	noteRetrigMem := effect == effectNoteRetrigVolSlide && param == 0
	portaToNote := effect == effectPortaToNote || effect == effectPortaToNoteVolSlide
	playImmediately := !portaToNote && !noteDelay

	channel.periodToPlay = channel.Period
	channel.delayTrigger = false

	// If there is a note pitch...
	if notePresent {
		if pitch == noteKeyOff {
			volume = 0
		} else {
			// Convert the pitch to a period
			var period int
			if channel.sampleToPlay >= 0 {
				period = periodFromNotePitch(pitch, s.song.Samples[channel.sampleToPlay].C4Speed)
			}

			// ... save it away as the porta to note destination
			channel.portaPeriod = period

			switch {
			case playImmediately:
				// ... restart the sample if effect isn't 3, 5 or 0xEDx
				channel.triggerNote(period, channel.sampleToPlay, s.order, s.row)
			case portaToNote && channel.Sample < 0:
				// Nothing to slide from, play the note
				channel.triggerNote(period, channel.sampleToPlay, s.order, s.row)
			default:
				channel.periodToPlay = period
				channel.delayTrigger = noteDelay
			}
		}
	} else if noteRetrigMem {
		channel.triggerNote(channel.Period, channel.Sample, s.order, s.row)
		channel.Volume = retrigVolume(int(channel.memRetrig>>4), channel.Volume)
	}

	// This goes here because sometimes we don't have a note
	if volume != noNoteVolume {
		if noteDelay {
			channel.volumeToPlay = volume
		} else {
			channel.Volume = volume
			channel.volumeToPlay = channel.Volume
		}
	} else if noteDelay {
		channel.volumeToPlay = channel.Volume
	}

	channel.Effect = effect
	channel.Param = param

	// Reset on the new row
	channel.vibratoAdjust = 0
	channel.tremoloAdjust = 0
	channel.arpeggioNote = 0

	switch effect {
	case effectPortaToNote:
		if param > 0 {
			channel.portaSpeed = int(param)
		}
	case effectVibrato:
		if param&0xF0 > 0 {
			channel.vibratoSpeed = int(param >> 4)
		}
		if param&0xF > 0 {
			channel.vibratoDepth = int(param & 0xF)
		}
	case effectVibratoVolSlide, effectPortaToNoteVolSlide:
		if param > 0 {
			channel.memVolSlide = param
		}
	case effectTremolo:
		if param&0xF0 > 0 {
			channel.tremoloSpeed = int(param >> 4)
		}
		if param&0xF > 0 {
			channel.tremoloDepth = int(param & 0xF)
		}
	case effectSetSpeed:
		// Tempo values were split off into effectSetTempo by the MOD loader
		s.setSpeed(int(param))
	case effectS3MSetSpeed:
		s.setSpeed(int(param))
	case effectSetTempo:
		s.setTempo(int(param))
	case effectSetPanPosition:
		channel.Pan = min(int(param), 127)
	case effectSampleOffset:
		if param > 0 {
			channel.memOffset = param
		}
		if channel.trigger {
			channel.offset = int(channel.memOffset) << 8
		}
	case effectJumpToPattern:
		// Last jump in the row wins, applied when the row ends
		s.jumpOrder = int(param)
	case effectPatternBrk:
		// Advance to the next order at the row given as two decimal digits
		s.breakRow = int((param>>4)*10 + param&0xF)
	case effectPatternLoop:
		if param == 0 {
			s.loop[ci].start = s.row
		} else if s.loop[ci].count > 0 {
			// There is already a count set
			s.loop[ci].count--
			if s.loop[ci].count > 0 {
				s.loopRow = s.loop[ci].start
			}
		} else {
			s.loop[ci].count = int(param)
			s.loopRow = s.loop[ci].start
		}
	case effectExtended:
		switch param >> 4 {
		case effectExtendedFinePortaUp:
			channel.Period = clampPeriod(channel.Period - int(param&0xF)*4)
		case effectExtendedFinePortaDown:
			channel.Period = clampPeriod(channel.Period + int(param&0xF)*4)
		case effectExtendedVibratoWaveform:
			if param&0x3 < 3 {
				channel.vibratoWaveform = vibType(param & 0x3)
			}
		case effectExtendedFineVolSlideUp:
			channel.Volume = clampVolume(channel.Volume + int(param&0xF))
		case effectExtendedFineVolSlideDown:
			channel.Volume = clampVolume(channel.Volume - int(param&0xF))
		case effectExtendedNoteCut:
			if param&0xF == 0 {
				channel.Volume = 0
			}
		case effectExtendedPatternDelay:
			if s.patternDelay == 0 {
				s.patternDelay = int(param & 0xF)
			}
		}
	case effectS3MVolumeSlide:
		if param > 0 {
			channel.memVolSlide = param
		}
		channel.s3mVolumeSlide(true)
	case effectS3MPortamentoDown:
		if param > 0 {
			channel.memPortamento = param
		}
		channel.s3mPortamento(1, true)
	case effectS3MPortamentoUp:
		if param > 0 {
			channel.memPortamento = param
		}
		channel.s3mPortamento(-1, true)
	case effectS3MGlobalVolume:
		s.globalVolume = min(int(param), maxVolume)
	case effectNoteRetrigVolSlide:
		if param > 0 {
			channel.memRetrig = param
		}
	}
}

// channelTick applies the continuous effects on the ticks after the first
// one of a row.
func (s *Sequencer) channelTick(c *channel) {
	c.effectCounter++

	switch c.Effect {
	case effectArpeggio:
		if c.Param != 0 {
			c.arpeggio(c.effectCounter)
		}
	case effectPortamentoUp:
		c.Period = clampPeriod(c.Period - int(c.Param)*4)
	case effectPortamentoDown:
		c.Period = clampPeriod(c.Period + int(c.Param)*4)
	case effectPortaToNote:
		c.portaToNote()
	case effectVibrato:
		c.vibrato()
	case effectVibratoVolSlide:
		c.vibrato()
		c.Param = c.memVolSlide
		c.volumeSlide()
	case effectPortaToNoteVolSlide:
		c.portaToNote()
		c.Param = c.memVolSlide
		c.volumeSlide()
	case effectTremolo:
		c.tremolo()
	case effectVolumeSlide:
		c.volumeSlide()
	case effectS3MVolumeSlide:
		c.s3mVolumeSlide(false)
	case effectS3MPortamentoDown:
		c.s3mPortamento(1, false)
	case effectS3MPortamentoUp:
		c.s3mPortamento(-1, false)
	case effectNoteRetrigVolSlide:
		if c.memRetrig&0xF > 0 && c.effectCounter%int(c.memRetrig&0xF) == 0 {
			c.triggerNote(c.Period, c.Sample, s.order, s.row)
			c.Volume = retrigVolume(int(c.memRetrig>>4), c.Volume)
		}
	case effectExtended:
		switch c.Param >> 4 {
		case effectExtendedNoteCut:
			if c.effectCounter == int(c.Param&0xF) {
				c.Volume = 0
			}
		case effectExtendedNoteDelay:
			if c.effectCounter == int(c.Param&0xF) {
				if c.delayTrigger {
					c.triggerNote(c.periodToPlay, c.sampleToPlay, s.order, s.row)
				}
				c.Volume = c.volumeToPlay
			}
		}
	}
}

func (c *channel) triggerNote(period, sample, order, row int) {
	c.Period = period
	c.Sample = sample
	c.trigger = sample >= 0
	c.offset = 0
	c.tremoloPhase = 0
	c.vibratoPhase = 0
	c.TrigOrder = order
	c.TrigRow = row
}

package modrender

const (
	// MOD note effects
	effectArpeggio            = 0x0 // only with a non-zero parameter
	effectPortamentoUp        = 0x1
	effectPortamentoDown      = 0x2
	effectPortaToNote         = 0x3
	effectVibrato             = 0x4
	effectPortaToNoteVolSlide = 0x5
	effectVibratoVolSlide     = 0x6
	effectTremolo             = 0x7
	effectSetPanPosition      = 0x8
	effectSampleOffset        = 0x9
	effectVolumeSlide         = 0xA
	effectJumpToPattern       = 0xB
	effectSetVolume           = 0xC
	effectPatternBrk          = 0xD
	effectExtended            = 0xE
	effectSetSpeed            = 0xF

	// Internal effects
	effectPatternLoop        = 0x20
	effectS3MVolumeSlide     = 0x21
	effectS3MPortamentoDown  = 0x22
	effectS3MPortamentoUp    = 0x23
	effectS3MGlobalVolume    = 0x24
	effectNoteRetrigVolSlide = 0x25
	effectSetTempo           = 0x26
	effectS3MSetSpeed        = 0x27

	// Extended effects (Exy), x = effect, y effect param
	effectExtendedFinePortaUp      = 0x1
	effectExtendedFinePortaDown    = 0x2
	effectExtendedVibratoWaveform  = 0x4
	effectExtendedPatternLoop      = 0x6 // Gets converted to effectPatternLoop in the MOD loader
	effectExtendedNoteRetrig       = 0x9 // Gets converted to effectNoteRetrigVolSlide in the MOD loader
	effectExtendedFineVolSlideUp   = 0xA
	effectExtendedFineVolSlideDown = 0xB
	effectExtendedNoteCut          = 0xC
	effectExtendedNoteDelay        = 0xD
	effectExtendedPatternDelay     = 0xE

	minPeriod = 1
	maxPeriod = 65535
)

type vibType int

const (
	vibratoSine vibType = iota
	vibratoRampDown
	vibratoSquareWave
)

var (
	// ProTracker sine table. 32-elements representing the first half of the sine
	// period. The second half of the period has the same magnitude but with the
	// sign flipped: 0, -24, -49, ... To use the sine table:
	// IF phase >= 32 THEN -sineTable[phase & 31]
	//                ELSE sineTable[phase & 31]
	// phase = phase & 63
	sineTable = []int{
		0, 24, 49, 74, 97, 120, 141, 161, 180, 197, 212, 224, 235, 244, 250, 253,
		255, 253, 250, 244, 235, 224, 212, 197, 180, 161, 141, 120, 97, 74, 49, 24,
	}

	// Period multipliers in 16.16 fixed point for 0 to 15 semitones up,
	// 65536 / 2^(n/12). Used by arpeggio.
	arpeggioTable = []int{
		65536, 61858, 58386, 55109, 52016, 49096, 46341, 43740,
		41285, 38968, 36781, 34716, 32768, 30929, 29193, 27555,
	}
)

func (c *channel) portaToNote() {
	period := c.Period
	if period < c.portaPeriod {
		period += c.portaSpeed * 4
		if period > c.portaPeriod {
			period = c.portaPeriod
		}
	} else if period > c.portaPeriod {
		period -= c.portaSpeed * 4
		if period < c.portaPeriod {
			period = c.portaPeriod
		}
	}
	c.Period = period
}

// MOD style volume slide, Axy slides up by x or down by y every tick but the
// first.
func (c *channel) volumeSlide() {
	vol := c.Volume
	if (c.Param >> 4) > 0 {
		vol += int(c.Param >> 4)
	} else if c.Param != 0 {
		vol -= int(c.Param & 0xF)
	}
	c.Volume = clampVolume(vol)
}

// S3M style volume slide from the Dxy memory. Fine slides (DxF, DFy) are
// applied on the first tick only, normal slides (Dx0, D0y) on every tick but
// the first.
func (c *channel) s3mVolumeSlide(firstTick bool) {
	x := int(c.memVolSlide >> 4)
	y := int(c.memVolSlide & 0xF)
	fine := (y == 0xF && x != 0) || (x == 0xF && y != 0)

	switch {
	case fine && firstTick:
		if y == 0xF && x != 0 {
			// D2F slide up by 2 units on tick 0, DFF is up by F
			c.Volume = clampVolume(c.Volume + x)
		} else if x == 0xF {
			// DF1 slide down by 1 unit on tick 0
			c.Volume = clampVolume(c.Volume - y)
		}
	case !fine && !firstTick:
		if x > 0 && y == 0 {
			c.Volume = clampVolume(c.Volume + x)
		} else if x == 0 && y > 0 {
			c.Volume = clampVolume(c.Volume - y)
		}
	}
}

// S3M portamento from the shared Exx/Fxx memory, dir is +1 for down (period
// increases) and -1 for up. EEy/EFy extra fine and fine slides happen on the
// first tick only.
func (c *channel) s3mPortamento(dir int, firstTick bool) {
	mem := int(c.memPortamento)
	switch {
	case mem >= 0xF0:
		if firstTick {
			c.Period += dir * (mem & 0xF) * 4
		}
	case mem >= 0xE0:
		if firstTick {
			c.Period += dir * (mem & 0xF)
		}
	default:
		if !firstTick {
			c.Period += dir * mem * 4
		}
	}
	c.Period = clampPeriod(c.Period)
}

func (c *channel) vibrato() {
	c.vibratoAdjust = (vibratoFn(c.vibratoWaveform, c.vibratoPhase) * c.vibratoDepth) >> 7
	c.vibratoPhase = (c.vibratoPhase + c.vibratoSpeed) & 63
}

func (c *channel) tremolo() {
	c.tremoloAdjust = (sineTable[c.tremoloPhase&31] * c.tremoloDepth) >> 6
	if c.tremoloPhase >= 32 {
		c.tremoloAdjust = -c.tremoloAdjust
	}
	c.tremoloPhase = (c.tremoloPhase + c.tremoloSpeed) & 63
}

// arpeggio selects the semitone offset for the tick within the row: base
// note, +x, +y, repeating.
func (c *channel) arpeggio(tick int) {
	switch tick % 3 {
	case 0:
		c.arpeggioNote = 0
	case 1:
		c.arpeggioNote = int(c.Param >> 4)
	case 2:
		c.arpeggioNote = int(c.Param & 0xF)
	}
}

// pos runs from 0 to 63
func vibratoFn(waveform vibType, pos int) (vib int) {
	switch waveform {
	case vibratoSine:
		vib = sineTable[pos&31]
		if pos >= 32 {
			vib = -vib
		}
	case vibratoRampDown:
		// Determined by listening tests in ST3
		vib = -((63 - (pos * 2)) * 4)
	case vibratoSquareWave:
		// Determined by listening tests in ST3
		vib = 255
		if pos >= 32 {
			vib = 0
		}
	default:
		// Random not supported
	}

	return
}

func retrigVolume(mode, vol int) (outvol int) {
	switch mode {
	case 1:
		outvol = vol - 1
	case 2:
		outvol = vol - 2
	case 3:
		outvol = vol - 4
	case 4:
		outvol = vol - 8
	case 5:
		outvol = vol - 16
	case 6:
		outvol = (vol * 2) / 3
	case 7:
		outvol = vol / 2
	case 9:
		outvol = vol + 1
	case 10:
		outvol = vol + 2
	case 11:
		outvol = vol + 4
	case 12:
		outvol = vol + 8
	case 13:
		outvol = vol + 16
	case 14:
		outvol = (vol * 3) / 2
	case 15:
		outvol = vol * 2
	default:
		outvol = vol
	}

	return clampVolume(outvol)
}

func clampVolume(v int) int {
	return min(max(v, 0), maxVolume)
}

func clampPeriod(p int) int {
	return min(max(p, minPeriod), maxPeriod)
}

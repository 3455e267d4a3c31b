package modrender

import (
	"fmt"
	"io"
	"math"
)

const (
	retracePALHz = 14187578.4 // Amiga PAL vertical retrace timing

	periodBase = 13696                                  // the amiga MOD period value for C-(-1), it's -1 in the octave numbering system we use
	ln2        = 0.693147180559945309417232121458176568 // ln(2)
)

// notePitch defines a note pitch as octave*12+semitone
// There are 12 semitones in an octave. This encoding is very similar to how
// MIDI defines pitch values.
type notePitch int

// String returns the note pitch in name-octave form, e.g. C-4, A#2.
// Returns three dots if there is no note.
func (note notePitch) String() string {
	switch note {
	case 0:
		return "..."
	case noteKeyOff:
		return "^^."
	default:
		return fmt.Sprintf("%s%d", notes[note%12], note/12-1)
	}
}

var (
	// This is the equivalent S3M C4Speed for the MOD finetune value
	// This should be indexed by the low nibble of the finetune byte
	// Taken from fs3mdoc.txt
	fineTuning = []int{
		8363, 8413, 8463, 8529, 8581, 8651, 8723, 8757,
		7895, 7941, 7985, 8046, 8107, 8169, 8232, 8280,
	}

	// Amiga period values. This table is only used to map the note period
	// in the MOD file to a note name in the dump output.
	periodTable = []int{
		// C-2, C#2, D-2, ..., B-2
		1712, 1616, 1524, 1440, 1356, 1280, 1208, 1140, 1076, 1016, 960, 907,
		// C-3, C#3, D-3, ..., B-3
		856, 808, 762, 720, 678, 640, 604, 570, 538, 508, 480, 453,
		// C-4, C#4, D-4, ..., B-4
		428, 404, 381, 360, 339, 320, 302, 285, 269, 254, 240, 226,
		// C-5, C#5, D-5, ..., B-5
		214, 202, 190, 180, 170, 160, 151, 143, 135, 127, 120, 113,
		// C-6, C#6, D-6, ..., B-6
		107, 101, 95, 90, 85, 80, 75, 71, 67, 63, 60, 56,
	}

	// Literal notes
	notes = []string{
		"C-", "C#", "D-", "D#", "E-", "F-", "F#", "G-", "G#", "A-", "A#", "B-",
	}

	dumpW io.Writer = nil
)

// SetDumpWriter makes the loaders print the parsed structure of every song to
// w. Pass nil to turn dumping off. Not safe to call while songs are loading.
func SetDumpWriter(w io.Writer) { dumpW = w }

func dumpf(format string, a ...any) {
	if dumpW == nil {
		return
	}

	fmt.Fprintf(dumpW, format, a...)
}

// Convert an Amiga MOD period value to the octave*12+note format used
// internally in the player. This code is a complete lift from libxmp.
func periodToNotePitch(period int) notePitch {
	if period <= 0 {
		return 0
	}

	// ProTracker periods divide a constant to give the sample playback
	// speed, so one octave up halves the period and each semitone is a
	// factor of 2^(1/12). Inverting that gives a note number which is
	// linear in semitones.
	calc := 12.0 * math.Log(float64(periodBase)/float64(period)) / ln2

	return notePitch(math.Floor(calc + 0.5))
}

// Converts an player internal note representation into an Amiga MOD period
// scaled by 4 for extra precision in slides. This code is inspired by libxmp.
func periodFromNotePitch(note notePitch, c4speed int) int {
	if c4speed <= 0 {
		c4speed = 8363
	}
	// This formula is the inverse of the formula in periodToNotePitch().
	period := periodBase / math.Pow(2, float64(note)/12.0)
	period = (8363 * period) / float64(c4speed) // Perform finetuning
	return int(period) * 4
}

func noteStrFromPeriod(period int) string {
	for i, prd := range periodTable {
		if prd == period {
			return fmt.Sprintf("%s%d", notes[i%12], i/12+2)
		}
	}

	return "   "
}

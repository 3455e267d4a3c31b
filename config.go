package modrender

import (
	"fmt"
	"strings"

	"github.com/chriskillpack/modrender/internal/comb"
)

// Interpolation selects how sample data is read between sample frames.
type Interpolation int

const (
	InterpolateNearest Interpolation = iota // the sample frame at or before the position
	InterpolateLinear                       // linear blend of the two nearest frames
)

func (i Interpolation) String() string {
	switch i {
	case InterpolateNearest:
		return "nearest"
	case InterpolateLinear:
		return "linear"
	default:
		return fmt.Sprintf("Interpolation(%d)", int(i))
	}
}

// ParseInterpolation converts "nearest" or "linear" to an Interpolation.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(s) {
	case "nearest", "none", "":
		return InterpolateNearest, nil
	case "linear":
		return InterpolateLinear, nil
	}
	return 0, fmt.Errorf("%w: unknown interpolation %q", ErrInvalidConfig, s)
}

// Config carries every setting of a render. It replaces global engine state:
// each Renderer owns a copy.
type Config struct {
	SampleRate    int // output frequency in Hz
	Channels      int // 1 = mono, 2 = stereo
	BitDepth      int // 8, 16, 24 or 32 bits per sample
	Interpolation Interpolation
	VolumeBoost   int  // 1 (no boost) to 4 (4x volume)
	Mute          uint // bitmask of muted channels, channel 1 in LSB

	// Loops is the number of times the song may jump back to an already
	// played position (restart position or backward jump) before the render
	// ends. 0 plays every position once.
	Loops int

	MaxOrders  int // maximum number of orders to play, 0 to disable limit
	StartOrder int // order to start playing from, clamped to song length

	Reverb string // reverb preset, see comb.Presets
}

// DefaultConfig returns 44.1kHz 16-bit stereo output without effects.
func DefaultConfig() Config {
	return Config{
		SampleRate:    44100,
		Channels:      2,
		BitDepth:      16,
		Interpolation: InterpolateNearest,
		VolumeBoost:   1,
		Reverb:        comb.PresetNone,
	}
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.SampleRate < 8000 || c.SampleRate > 192000:
		return fmt.Errorf("%w: sample rate %d outside 8000-192000", ErrInvalidConfig, c.SampleRate)
	case c.Channels != 1 && c.Channels != 2:
		return fmt.Errorf("%w: %d output channels, want 1 or 2", ErrInvalidConfig, c.Channels)
	case c.BitDepth != 8 && c.BitDepth != 16 && c.BitDepth != 24 && c.BitDepth != 32:
		return fmt.Errorf("%w: bit depth %d, want 8, 16, 24 or 32", ErrInvalidConfig, c.BitDepth)
	case c.Interpolation != InterpolateNearest && c.Interpolation != InterpolateLinear:
		return fmt.Errorf("%w: %v", ErrInvalidConfig, c.Interpolation)
	case c.VolumeBoost < 1 || c.VolumeBoost > 4:
		return fmt.Errorf("%w: invalid volume boost %d", ErrInvalidConfig, c.VolumeBoost)
	case c.Loops < 0 || c.MaxOrders < 0 || c.StartOrder < 0:
		return fmt.Errorf("%w: loops, max orders and start order must not be negative", ErrInvalidConfig)
	}
	if !comb.ValidPreset(c.Reverb) {
		return fmt.Errorf("%w: unrecognized reverb setting %q", ErrInvalidConfig, c.Reverb)
	}
	if c.Reverb != comb.PresetNone && c.Channels != 2 {
		return fmt.Errorf("%w: reverb needs stereo output", ErrInvalidConfig)
	}
	return nil
}

// samplesPerTick returns the number of output frames in one tick. A tick is
// 2.5/tempo seconds.
func samplesPerTick(sampleRate, tempo int) int {
	return ((sampleRate << 1) + (sampleRate >> 1)) / tempo
}

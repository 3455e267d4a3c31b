// Package comb implements a Schroeder style stereo reverb built from parallel
// comb filters feeding a chain of allpass filters.
package comb

import (
	"fmt"
	"slices"
)

// Reverber applies reverb in place to interleaved stereo audio (LRLRLR...).
// Implementations keep filter state between calls so a stream can be fed in
// blocks of any size.
type Reverber interface {
	Process(audio []int)
}

// Preset names accepted by Preset.
const (
	PresetNone   = "none"
	PresetLight  = "light"
	PresetMedium = "medium"
	PresetHall   = "hall"
)

// Presets returns the preset names in increasing order of room size.
func Presets() []string {
	return []string{PresetNone, PresetLight, PresetMedium, PresetHall}
}

// ValidPreset reports if name is a known preset. The empty string is the
// same as PresetNone.
func ValidPreset(name string) bool {
	return name == "" || slices.Contains(Presets(), name)
}

// Preset returns a reverb for the named preset, audio at sampleRate with
// values in the range of bitDepth. PresetNone returns a nil Reverber.
func Preset(name string, sampleRate, bitDepth int) (Reverber, error) {
	switch name {
	case "", PresetNone:
		return nil, nil
	case PresetLight:
		// Small room (bedroom/studio booth)
		return NewStereoReverb(0.5, 0.5, 0.3, sampleRate, bitDepth), nil
	case PresetMedium:
		// Living room/small hall
		return NewStereoReverb(0.7, 0.6, 0.5, sampleRate, bitDepth), nil
	case PresetHall:
		// Concert hall
		return NewStereoReverb(0.9, 0.7, 0.7, sampleRate, bitDepth), nil
	}
	return nil, fmt.Errorf("unrecognized reverb setting %q", name)
}

// Filter delays in samples at 44.1kHz. The right channel uses slightly longer
// delays to decorrelate the two sides.
var (
	combTuning    = []int{1116, 1188, 1277, 1356}
	allpassTuning = []int{556, 441}
)

const (
	stereoSpread    = 23
	allpassFeedback = 0.5
)

// combFilter is a feedback comb filter with a one pole lowpass in the
// feedback path.
type combFilter struct {
	buf         []int32
	idx         int
	feedback    float32
	damp1       float32
	damp2       float32
	filterStore float32
}

func newCombFilter(delay int, decay, damping float32) *combFilter {
	return &combFilter{
		buf:      make([]int32, max(delay, 1)),
		feedback: decay,
		damp1:    damping,
		damp2:    1 - damping,
	}
}

func (c *combFilter) process(in int32) int32 {
	out := c.buf[c.idx]
	c.filterStore = float32(out)*c.damp2 + c.filterStore*c.damp1
	c.buf[c.idx] = in + int32(c.filterStore*c.feedback)

	c.idx++
	if c.idx == len(c.buf) {
		c.idx = 0
	}
	return out
}

type allpass struct {
	buf []int32
	idx int
}

func newAllpass(delay int) *allpass {
	return &allpass{buf: make([]int32, max(delay, 1))}
}

func (a *allpass) process(in int32) int32 {
	bufout := a.buf[a.idx]
	out := bufout - in
	a.buf[a.idx] = in + int32(float32(bufout)*allpassFeedback)

	a.idx++
	if a.idx == len(a.buf) {
		a.idx = 0
	}
	return out
}

type reverbChannel struct {
	combs     []*combFilter
	allpasses []*allpass
}

func newReverbChannel(spread int, feedback, damping float32, sampleRate int) reverbChannel {
	var rc reverbChannel
	for _, d := range combTuning {
		rc.combs = append(rc.combs, newCombFilter(scaleDelay(d+spread, sampleRate), feedback, damping))
	}
	for _, d := range allpassTuning {
		rc.allpasses = append(rc.allpasses, newAllpass(scaleDelay(d+spread, sampleRate)))
	}
	return rc
}

func (rc *reverbChannel) process(in int32) int32 {
	var wet int32
	for _, c := range rc.combs {
		wet += c.process(in) / int32(len(rc.combs))
	}
	for _, a := range rc.allpasses {
		wet = a.process(wet)
	}
	return wet
}

func scaleDelay(d, sampleRate int) int {
	return d * sampleRate / 44100
}

// StereoReverb is a Reverber with independent filter banks for the left and
// right channels.
type StereoReverb struct {
	left, right reverbChannel

	wet, dry float32
	shift    int // input values are shifted down by this to fit the filters
	lo, hi   int
}

var _ Reverber = &StereoReverb{}

// NewStereoReverb creates a reverb. roomSize and damping range from 0 to 1,
// mix is the wet/dry blend from 0 (input only) to 1 (reverb only). Audio
// values are clamped to the signed range of bitDepth.
func NewStereoReverb(roomSize, damping, mix float32, sampleRate, bitDepth int) *StereoReverb {
	feedback := roomSize*0.28 + 0.7
	bitDepth = min(max(bitDepth, 8), 32)
	return &StereoReverb{
		left:  newReverbChannel(0, feedback, damping, sampleRate),
		right: newReverbChannel(stereoSpread, feedback, damping, sampleRate),
		wet:   mix,
		dry:   1 - mix,
		shift: max(bitDepth-24, 0),
		lo:    -(1 << (bitDepth - 1)),
		hi:    1<<(bitDepth-1) - 1,
	}
}

// Process applies reverb to stereo audio in place. An odd trailing value is
// left untouched.
func (r *StereoReverb) Process(audio []int) {
	for i := 0; i+1 < len(audio); i += 2 {
		audio[i+0] = r.mix(&r.left, audio[i+0])
		audio[i+1] = r.mix(&r.right, audio[i+1])
	}
}

func (r *StereoReverb) mix(rc *reverbChannel, s int) int {
	in := int32(s >> r.shift)
	wet := rc.process(in)
	out := int(float32(in)*r.dry+float32(wet)*r.wet) << r.shift
	return min(max(out, r.lo), r.hi)
}

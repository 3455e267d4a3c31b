package modrender

import (
	"fmt"

	clone "github.com/huandu/go-clone/generic"
)

// Block is a run of interleaved PCM frames. Values are already clamped to the
// range of the configured bit depth.
type Block struct {
	Data     []int // Frames*Channels values, LRLRLR... for stereo
	Channels int
	Frames   int
}

// Clone returns a deep copy of b. Blocks returned by a Mixer or Renderer share
// their Data buffer with the next block.
func (b Block) Clone() Block {
	return clone.Clone(b)
}

type mixVoice struct {
	sample int  // index of the sample being played, -1 if the voice is off
	pos    uint // 16.16 fixed point position in the sample data
}

// Mixer renders Ticks into PCM using the sample data of a song. A Mixer is
// not safe for concurrent use.
type Mixer struct {
	song *Song
	cfg  Config

	voices    []mixVoice
	mixbuffer []int
	out       []int
}

// NewMixer returns a Mixer for song with all voices silent.
func NewMixer(song *Song, cfg Config) (*Mixer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if song == nil {
		return nil, fmt.Errorf("%w: no song", ErrInvalidConfig)
	}
	if song.Channels < 1 || song.Channels > maxChannels {
		return nil, newLoadError(Inconsistent, -1, fmt.Errorf("invalid channel count %d", song.Channels))
	}
	if err := song.checkSamples(); err != nil {
		return nil, err
	}
	m := &Mixer{
		song:   song,
		cfg:    cfg,
		voices: make([]mixVoice, song.Channels),
	}
	for i := range m.voices {
		m.voices[i].sample = -1
	}
	return m, nil
}

// RenderTick mixes tick.Frames frames of audio for the voices in tick. The
// returned Block is only valid until the next call.
func (m *Mixer) RenderTick(tick Tick) Block {
	n := tick.Frames * m.cfg.Channels
	if cap(m.mixbuffer) < n {
		m.mixbuffer = make([]int, n)
		m.out = make([]int, n)
	}
	m.mixbuffer = m.mixbuffer[:n]
	m.out = m.out[:n]
	clear(m.mixbuffer)

	for ci := range tick.Voices {
		if ci >= len(m.voices) {
			break
		}
		m.mixVoice(ci, &tick.Voices[ci], tick.Frames, tick.GlobalVolume)
	}

	m.downsample()

	return Block{Data: m.out, Channels: m.cfg.Channels, Frames: tick.Frames}
}

func (m *Mixer) mixVoice(ci int, v *Voice, frames, globalVolume int) {
	mv := &m.voices[ci]

	switch {
	case v.Sample < 0:
		mv.sample = -1
	case v.Trigger:
		mv.sample = v.Sample
		mv.pos = uint(v.Offset) << 16
	case v.Sample != mv.sample:
		// A different sample without a trigger does not start playing
		mv.sample = -1
	}
	if mv.sample < 0 || mv.sample >= len(m.song.Samples) {
		return
	}

	sample := &m.song.Samples[mv.sample]
	if sample.Length == 0 || v.Period <= 0 {
		mv.sample = -1
		return
	}

	var sampEnd uint
	if sample.Looped() {
		sampEnd = uint(sample.LoopStart+sample.LoopLen) << 16
	} else {
		sampEnd = uint(sample.Length) << 16
	}

	// Offset past the end of the sample
	if mv.pos >= sampEnd {
		if !sample.Looped() {
			mv.sample = -1
			return
		}
		mv.pos = uint(sample.LoopStart) << 16
	}

	playbackHz := int(retracePALHz / float32(v.Period))
	dr := uint(playbackHz<<16) / uint(m.cfg.SampleRate)
	pos := mv.pos
	if dr == 0 {
		return
	}

	vol := (v.Volume * globalVolume) >> 6
	vol = min(vol, maxVolume)

	// If the volume is off or the channel muted
	if vol <= 0 || (m.cfg.Mute&(1<<ci)) != 0 {
		m.skip(mv, sample, pos+dr*uint(frames), sampEnd)
		return
	}
	vol *= m.cfg.VolumeBoost

	pan := min(max(v.Pan, 0), 127)
	lvol := ((127 - pan) * vol) >> 7
	rvol := (pan * vol) >> 7
	stride := m.cfg.Channels
	if stride == 1 {
		// Mono output takes both sides of the pan
		lvol, rvol = vol, 0
	}

	// tail is the sample value that follows the last frame of the
	// playing region, used by linear interpolation
	tail := int(sample.Data[(sampEnd>>16)-1])
	if sample.Looped() {
		tail = int(sample.Data[sample.LoopStart])
	}
	data := sample.Data[:sampEnd>>16]

	cur := 0
	end := frames * stride
	for cur < end {
		// Compute the position in the sample by end
		epos := pos + uint((end-cur)/stride)*dr
		// If the sample ends before the end of this loop iteration only run to that
		epos = min(epos, sampEnd)

		switch {
		case m.cfg.Interpolation == InterpolateLinear && stride == 1:
			pos, cur = mixMonoLinear(pos, epos, dr, cur, lvol, data, tail, m.mixbuffer)
		case m.cfg.Interpolation == InterpolateLinear:
			pos, cur = mixStereoLinear(pos, epos, dr, cur, lvol, rvol, data, tail, m.mixbuffer)
		case stride == 1:
			pos, cur = mixMono(pos, epos, dr, cur, lvol, data, m.mixbuffer)
		default:
			pos, cur = mixStereo(pos, epos, dr, cur, lvol, rvol, data, m.mixbuffer)
		}

		if pos >= sampEnd {
			if !sample.Looped() {
				mv.sample = -1 // turn off the voice
				return
			}
			pos = uint(sample.LoopStart)<<16 + (pos - sampEnd)
			if pos >= sampEnd {
				pos = uint(sample.LoopStart) << 16
			}
		}
	}
	mv.pos = pos
}

// skip advances a silent voice to pos, applying loop wrap or the end of the
// sample.
func (m *Mixer) skip(mv *mixVoice, sample *Sample, pos, sampEnd uint) {
	if pos < sampEnd {
		mv.pos = pos
		return
	}
	if !sample.Looped() {
		mv.sample = -1
		return
	}
	loopStart := uint(sample.LoopStart) << 16
	mv.pos = loopStart + (pos-sampEnd)%(sampEnd-loopStart)
}

// downsample converts the 16.8 fixed point mix buffer to the output bit depth
// with saturation.
func (m *Mixer) downsample() {
	var shift, lo, hi int
	switch m.cfg.BitDepth {
	case 8:
		shift, lo, hi = 16, -128, 127
	case 16:
		shift, lo, hi = 8, -32768, 32767
	case 24:
		shift, lo, hi = 0, -8388608, 8388607
	default:
		shift, lo, hi = -8, -2147483648, 2147483647
	}

	for i, s := range m.mixbuffer {
		if shift >= 0 {
			s >>= shift
		} else {
			s <<= -shift
		}
		m.out[i] = min(max(s, lo), hi)
	}
}

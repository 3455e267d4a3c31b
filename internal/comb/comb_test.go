package comb

import (
	"math"
	"testing"
)

// TestAllpassDelay verifies that allpass filter delays the signal by the correct amount
func TestAllpassDelay(t *testing.T) {
	delay := 10
	ap := newAllpass(delay)

	// Feed an impulse (single non-zero sample)
	impulse := int32(1000)

	// First output should be inverted input (from -input term)
	out := ap.process(impulse)
	if out != -impulse {
		t.Errorf("First output should be -input, got %d, want %d", out, -impulse)
	}

	// Feed zeros and find where the delayed impulse appears
	foundDelay := false
	for i := 1; i < delay+5; i++ {
		out = ap.process(0)
		if i == delay && out != 0 {
			foundDelay = true
		}
	}

	if !foundDelay {
		t.Error("Did not find delayed impulse at expected position")
	}
}

// TestAllpassUnityGain verifies that allpass filter maintains energy (doesn't amplify or attenuate much)
func TestAllpassUnityGain(t *testing.T) {
	delay := 50
	ap := newAllpass(delay)

	// Feed a constant signal and measure RMS of input vs output
	const numSamples = 1000
	input := int32(1000)

	var inputPower, outputPower float64

	for i := 0; i < numSamples; i++ {
		out := ap.process(input)
		inputPower += float64(input * input)
		outputPower += float64(out * out)
	}

	inputRMS := math.Sqrt(inputPower / numSamples)
	outputRMS := math.Sqrt(outputPower / numSamples)

	// Allow 50% tolerance since allpass can have gain variation
	ratio := outputRMS / inputRMS
	if ratio < 0.5 || ratio > 1.5 {
		t.Errorf("RMS ratio out of range: %f (input RMS: %f, output RMS: %f)", ratio, inputRMS, outputRMS)
	}
}

// TestCombFilterDelay verifies basic comb filter delay and feedback
func TestCombFilterDelay(t *testing.T) {
	delay := 10
	decay := float32(0.7)
	damping := float32(0.0) // no damping for this test

	cf := newCombFilter(delay, decay, damping)

	// Feed an impulse
	impulse := int32(1000)

	// Process the impulse
	out := cf.process(impulse)
	// First output should be 0 (buffer was empty)
	if out != 0 {
		t.Errorf("First output should be 0, got %d", out)
	}

	// Feed zeros for delay-1 samples
	for i := 0; i < delay-1; i++ {
		out = cf.process(0)
		if out != 0 {
			t.Errorf("Output before delay should be 0, got %d at position %d", out, i+1)
		}
	}

	// The next output should be the impulse
	out = cf.process(0)
	if out != impulse {
		t.Errorf("Output after delay should be %d, got %d", impulse, out)
	}

	// Continue and check that feedback is working (output should decay over time)
	var prevOut int32 = impulse
	foundDecay := false

	for i := 0; i < delay*3; i++ {
		out = cf.process(0)
		// Check if we see any non-zero output that's less than previous
		if out != 0 && out < prevOut {
			foundDecay = true
		}
		if out != 0 {
			prevOut = out
		}
	}

	if !foundDecay {
		t.Error("Expected to see decaying echoes from feedback")
	}
}

// TestCombFilterDamping verifies that damping reduces high frequencies
func TestCombFilterDamping(t *testing.T) {
	delay := 10
	decay := float32(0.9)

	// Create two filters: one with damping, one without
	cfNoDamp := newCombFilter(delay, decay, 0.0)
	cfWithDamp := newCombFilter(delay, decay, 0.7)

	// Feed white noise (alternating positive/negative = high frequency)
	const numSamples = 200
	var sumNoDamp, sumWithDamp int64

	for i := 0; i < numSamples; i++ {
		input := int32(1000)
		if i%2 == 0 {
			input = -input
		}

		outNoDamp := cfNoDamp.process(input)
		outWithDamp := cfWithDamp.process(input)

		sumNoDamp += int64(abs(outNoDamp))
		sumWithDamp += int64(abs(outWithDamp))
	}

	avgNoDamp := float64(sumNoDamp) / numSamples
	avgWithDamp := float64(sumWithDamp) / numSamples

	// Damping should reduce the average amplitude
	if avgWithDamp >= avgNoDamp {
		t.Errorf("Damping should reduce amplitude: no-damp=%f, with-damp=%f", avgNoDamp, avgWithDamp)
	}
}

// TestStereoReverbProcess verifies reverb is applied in place
func TestStereoReverbProcess(t *testing.T) {
	sr := NewStereoReverb(0.5, 0.5, 0.5, 44100, 16)

	// Create stereo input (10 sample pairs = 20 samples)
	input := make([]int, 20)
	for i := range input {
		input[i] = i * 100
	}
	output := make([]int, len(input))
	copy(output, input)

	sr.Process(output)

	// Output should not be identical to input (reverb is applied)
	identical := true
	for i := range input {
		if output[i] != input[i] {
			identical = false
			break
		}
	}

	if identical {
		t.Error("Output should differ from input (reverb should be applied)")
	}
}

// TestStereoReverbMixParameter verifies mix parameter controls wet/dry blend
func TestStereoReverbMixParameter(t *testing.T) {
	// Create three reverbs with different mix values
	srAllDry := NewStereoReverb(0.5, 0.5, 0.0, 44100, 16)
	srMixed := NewStereoReverb(0.5, 0.5, 0.5, 44100, 16)
	srAllWet := NewStereoReverb(0.5, 0.5, 1.0, 44100, 16)

	// Create test input
	input := make([]int, 100)
	for i := range input {
		input[i] = 1000
	}

	avgDiff := func(sr *StereoReverb) float64 {
		out := make([]int, len(input))
		copy(out, input)
		sr.Process(out)

		var diff int64
		for i := range input {
			diff += int64(abs(int32(out[i] - input[i])))
		}
		return float64(diff) / float64(len(input))
	}

	avgDiffDry := avgDiff(srAllDry)
	avgDiffMixed := avgDiff(srMixed)
	avgDiffWet := avgDiff(srAllWet)

	// All dry is the input
	if avgDiffDry != 0 {
		t.Errorf("mix=0.0 should pass the input through, average difference %f", avgDiffDry)
	}

	// Dry should differ least from input
	if avgDiffDry > avgDiffMixed {
		t.Errorf("mix=0.0 should be closest to input: dry=%f, mixed=%f", avgDiffDry, avgDiffMixed)
	}

	// Wet should differ most from input
	if avgDiffWet < avgDiffMixed {
		t.Errorf("mix=1.0 should differ most from input: wet=%f, mixed=%f", avgDiffWet, avgDiffMixed)
	}
}

// TestStereoReverbClamp verifies output stays inside the bit depth range
func TestStereoReverbClamp(t *testing.T) {
	for _, bits := range []int{8, 16, 24, 32} {
		sr := NewStereoReverb(0.9, 0.0, 1.0, 44100, bits)
		hi := 1<<(bits-1) - 1
		lo := -(1 << (bits - 1))

		audio := make([]int, 44100)
		for i := range audio {
			audio[i] = hi
			if (i/200)%2 == 1 {
				audio[i] = lo
			}
		}
		sr.Process(audio)

		for i, s := range audio {
			if s > hi || s < lo {
				t.Fatalf("%d bits: sample %d = %d outside [%d, %d]", bits, i, s, lo, hi)
			}
		}
	}
}

// TestStereoReverbSampleRateScaling verifies delays scale with sample rate
func TestStereoReverbSampleRateScaling(t *testing.T) {
	sr44k := NewStereoReverb(0.5, 0.5, 0.5, 44100, 16)
	sr88k := NewStereoReverb(0.5, 0.5, 0.5, 88200, 16)

	for i, c := range sr44k.left.combs {
		if got, want := len(sr88k.left.combs[i].buf), 2*len(c.buf); got != want {
			t.Errorf("comb %d: delay %d at 88.2kHz, want %d", i, got, want)
		}
	}
	if len(sr44k.right.combs[0].buf) != combTuning[0]+stereoSpread {
		t.Errorf("right channel delay %d, want %d", len(sr44k.right.combs[0].buf), combTuning[0]+stereoSpread)
	}
}

func TestPreset(t *testing.T) {
	for _, name := range Presets() {
		if !ValidPreset(name) {
			t.Errorf("ValidPreset(%q) = false", name)
		}
		r, err := Preset(name, 44100, 16)
		if err != nil {
			t.Errorf("Preset(%q): %v", name, err)
		}
		if (name == PresetNone) != (r == nil) {
			t.Errorf("Preset(%q) returned %v", name, r)
		}
	}

	if ValidPreset("cathedral") {
		t.Error("ValidPreset accepted an unknown preset")
	}
	if _, err := Preset("cathedral", 44100, 16); err == nil {
		t.Error("expected error for an unknown preset")
	}
}

// TestCombFilterBitExact verifies that combFilter.process produces exact
// expected output for a known input sequence.
func TestCombFilterBitExact(t *testing.T) {
	cf := newCombFilter(4, 0.5, 0.0)

	input := []int32{1000, 0, -500, 200, 0, 0, 0, 0, 0, 0, 0, 0}
	expected := []int32{0, 0, 0, 0, 1000, 0, -500, 200, 500, 0, -250, 100}

	for i, s := range input {
		if out := cf.process(s); out != expected[i] {
			t.Errorf("sample %d: got %d, want %d", i, out, expected[i])
		}
	}
}

// TestAllpassFilterBitExact verifies that allpass.process produces
// exact expected output for a known input sequence.
func TestAllpassFilterBitExact(t *testing.T) {
	ap := newAllpass(3)

	input := []int32{1000, 0, 0, 0, 0, 0, 0}
	expected := []int32{-1000, 0, 0, 1000, 0, 0, 500}

	for i, s := range input {
		if out := ap.process(s); out != expected[i] {
			t.Errorf("sample %d: got %d, want %d", i, out, expected[i])
		}
	}
}

// TestStereoReverbBitExact verifies that feeding the reverb in blocks gives
// the same result as one large block.
func TestStereoReverbBitExact(t *testing.T) {
	const sampleRate = 44100

	// Generate a non-trivial stereo input signal (sine-ish pattern)
	const numSamples = 2048
	input := make([]int, numSamples)
	for i := range input {
		// Simple deterministic pattern that exercises positive and negative values
		input[i] = (i*137+i*i*3)%30000 - 15000
	}

	sr1 := NewStereoReverb(0.6, 0.4, 0.3, sampleRate, 16)
	output1 := make([]int, len(input))
	copy(output1, input)
	sr1.Process(output1)

	// Multiple smaller batches produce the same result as one big batch
	sr2 := NewStereoReverb(0.6, 0.4, 0.3, sampleRate, 16)
	output2 := make([]int, len(input))
	copy(output2, input)
	for pos := 0; pos < len(output2); pos += 256 {
		sr2.Process(output2[pos:min(pos+256, len(output2))])
	}

	for i := range output1 {
		if output1[i] != output2[i] {
			t.Errorf("chunked sample %d: got %d, want %d", i, output2[i], output1[i])
			if i > 10 {
				t.Fatal("too many differences, stopping")
			}
		}
	}
}

// Helper function
func abs(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}

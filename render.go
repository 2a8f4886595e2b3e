package main

import (
	"math"
	"time"
)

const (
	voiceAmp = 0.3

	// echoes fall by 60 dB over the decay time
	echoFloor = 0.001

	// maxTail bounds effect tails so out-of-range parameters cannot allocate without limit.
	maxTail = 30 * time.Second
)

// noteHz converts a MIDI note number (fractional allowed) to a frequency.
func noteHz(note float64) float64 {
	return 440 * math.Pow(2, (note-69)/12)
}

// renderVoice produces the dry sine voice. Rate scales pitch up and time down;
// a zero rate renders nothing.
func renderVoice(v Voice, sampleRate int, beat time.Duration) []float32 {
	speed := math.Abs(v.Rate)
	if speed == 0 || math.IsNaN(speed) || sampleRate <= 0 {
		return nil
	}
	sr := float64(sampleRate)
	sustain := boundedBeats(v.Sustain/speed, beat).Seconds()
	release := boundedBeats(v.Release/speed, beat).Seconds()
	total := math.Min(sustain+release, maxTail.Seconds())
	n := int(total * sr)
	if n <= 0 {
		return nil
	}

	out := make([]float32, n)
	inc := 2 * math.Pi * noteHz(v.Note) * speed / sr
	phase := 0.0
	for i := range out {
		t := float64(i) / sr
		env := 1.0
		if t >= sustain {
			env = 0
			if release > 0 {
				env = 1 - (t-sustain)/release
			}
		}
		out[i] = float32(voiceAmp * env * math.Sin(phase))
		phase += inc
		if phase >= 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	return out
}

// echoFeedback is the per-repeat gain that makes repeats spaced phase apart
// reach echoFloor after decay.
func echoFeedback(phase, decay float64) float64 {
	if !(phase > 0 && decay > 0) || math.IsInf(phase, 1) {
		return 0
	}
	return math.Pow(echoFloor, phase/decay)
}

// applyEcho mixes feedback repeats into in, extending it by the decay tail.
func applyEcho(in []float32, phase, decay float64, sampleRate int, beat time.Duration) []float32 {
	delay := int(boundedBeats(phase, beat).Seconds() * float64(sampleRate))
	fb := echoFeedback(phase, decay)
	if delay <= 0 || fb == 0 || len(in) == 0 {
		return in
	}
	tail := boundedBeats(decay, beat)
	out := make([]float32, len(in)+int(tail.Seconds()*float64(sampleRate)))
	copy(out, in)
	for i := delay; i < len(out); i++ {
		out[i] += float32(fb) * out[i-delay]
	}
	return out
}

// boundedBeats converts beats to wall time clamped to [0, maxTail]. NaN and
// negative lengths are zero; values too large for a time.Duration saturate.
func boundedBeats(beats float64, beat time.Duration) time.Duration {
	secs := beats * beat.Seconds()
	switch {
	case math.IsNaN(secs) || secs <= 0:
		return 0
	case secs >= maxTail.Seconds():
		return maxTail
	}
	return beatsToDuration(beats, beat)
}

// applyChain runs samples through each effect, innermost first. The second
// result lists effect names that were passed through unprocessed.
func applyChain(samples []float32, chain []FX, sampleRate int, beat time.Duration) ([]float32, []string) {
	var unknown []string
	for _, fx := range chain {
		switch fx.Name {
		case echoFX:
			samples = applyEcho(samples, fx.Opts["phase"], fx.Opts["decay"], sampleRate, beat)
		default:
			unknown = append(unknown, fx.Name)
		}
	}
	return samples, unknown
}

package main

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

const testRate = 8000

func TestNoteHz(t *testing.T) {
	tests := []struct {
		note float64
		want float64
	}{
		{69, 440},
		{81, 880},
		{57, 220},
		{60, 261.6256},
	}
	for _, tt := range tests {
		if got := noteHz(tt.note); math.Abs(got-tt.want) > 0.001 {
			t.Errorf("noteHz(%g) = %g, want %g", tt.note, got, tt.want)
		}
	}
}

func TestRenderVoiceLength(t *testing.T) {
	v := Voice{Synth: "sine", Note: 60, Rate: 1, Sustain: 0.5, Release: 0.5}

	if got := len(renderVoice(v, testRate, time.Second)); got != testRate {
		t.Fatalf("rate 1: %d samples, want %d", got, testRate)
	}

	v.Rate = 2
	if got := len(renderVoice(v, testRate, time.Second)); got != testRate/2 {
		t.Fatalf("rate 2: %d samples, want %d", got, testRate/2)
	}

	v.Rate = -2
	if got := len(renderVoice(v, testRate, time.Second)); got != testRate/2 {
		t.Fatalf("rate -2: %d samples, want %d", got, testRate/2)
	}

	v.Rate = 0
	if got := renderVoice(v, testRate, time.Second); got != nil {
		t.Fatalf("rate 0 rendered %d samples", len(got))
	}
}

func TestRenderVoiceEnvelope(t *testing.T) {
	v := Voice{Synth: "sine", Note: 69, Rate: 1, Sustain: 0.5, Release: 0.5}
	out := renderVoice(v, testRate, time.Second)

	peak := func(from, to int) float64 {
		var m float64
		for _, s := range out[from:to] {
			m = math.Max(m, math.Abs(float64(s)))
		}
		return m
	}
	if p := peak(0, testRate/2); math.Abs(p-voiceAmp) > 0.01 {
		t.Fatalf("sustain peak %g, want %g", p, voiceAmp)
	}
	if p := peak(testRate-100, testRate); p > 0.01 {
		t.Fatalf("release did not fade out, tail peak %g", p)
	}
}

func TestEchoFeedback(t *testing.T) {
	fb := echoFeedback(0.25, 2)
	// eight repeats over the decay time must land on the floor
	if got := math.Pow(fb, 8); math.Abs(got-echoFloor) > 1e-9 {
		t.Fatalf("fb^8 = %g, want %g", got, echoFloor)
	}
	if echoFeedback(0, 2) != 0 || echoFeedback(0.25, 0) != 0 || echoFeedback(-1, 2) != 0 {
		t.Fatal("non-positive phase or decay must disable feedback")
	}
}

func TestApplyEcho(t *testing.T) {
	in := make([]float32, 100)
	in[0] = 1

	out := applyEcho(in, 0.01, 0.04, 1000, time.Second)
	if want := 100 + 40; len(out) != want {
		t.Fatalf("len %d, want %d", len(out), want)
	}
	fb := float32(echoFeedback(0.01, 0.04))
	if out[0] != 1 || math.Abs(float64(out[10]-fb)) > 1e-6 || math.Abs(float64(out[20]-fb*fb)) > 1e-6 {
		t.Fatalf("repeats out[0]=%g out[10]=%g out[20]=%g, fb %g", out[0], out[10], out[20], fb)
	}

	same := applyEcho(in, 0, 2, 1000, time.Second)
	if len(same) != len(in) {
		t.Fatal("zero phase must pass audio through")
	}
}

func TestApplyEchoBoundsTail(t *testing.T) {
	in := []float32{1}
	out := applyEcho(in, 0.5, 1e6, 100, time.Second)
	if bound := 1 + int(maxTail.Seconds()*100); len(out) > bound {
		t.Fatalf("tail of %d samples exceeds bound %d", len(out), bound)
	}
}

func TestExtremeValuesStayBounded(t *testing.T) {
	extremes := []float64{1e10, -1e10, math.Inf(1), math.Inf(-1), math.NaN(), 1e-300}
	bound := 1 + int(maxTail.Seconds()*testRate)

	for _, x := range extremes {
		in := make([]float32, 100)
		in[0] = 1
		if out := applyEcho(in, 0.25, x, testRate, time.Second); len(out) > len(in)+bound {
			t.Errorf("decay %g: %d samples", x, len(out))
		}
		if out := applyEcho(in, x, 2, testRate, time.Second); len(out) > len(in)+bound {
			t.Errorf("phase %g: %d samples", x, len(out))
		}

		v := Voice{Synth: "sine", Note: 60, Rate: x, Sustain: 0.5, Release: 0.5}
		if out := renderVoice(v, testRate, time.Second); len(out) > bound {
			t.Errorf("rate %g: %d samples", x, len(out))
		}
		if d := voiceDuration(v, time.Second); d < 0 || d > maxTail {
			t.Errorf("rate %g: voice lasts %s", x, d)
		}
		if d := boundedBeats(x, time.Second); d < 0 || d > maxTail {
			t.Errorf("boundedBeats(%g) = %s", x, d)
		}
	}
}

func TestAudioEngineSurvivesExtremeParams(t *testing.T) {
	params := NewParams()
	e := newAudioEngine(testRate, time.Second, discardLogger())
	s := NewScheduler(params, e, time.Second, discardLogger())

	for _, x := range []float64{1e10, math.Inf(1), math.NaN()} {
		for _, p := range []Param{EchoDecay, EchoPhase, Rate, Pitch} {
			params.Reset()
			params.Set(p, x)
			if _, err := s.Cycle(context.Background()); err != nil {
				t.Fatalf("%s=%g: %v", p, x, err)
			}
		}
	}
	if st := s.Stats(); st.Failures != 0 {
		t.Fatalf("stats %+v", st)
	}

	p := make([]byte, 4*1024)
	e.bus.Read(p)
	for i := 0; i < len(p); i += 4 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(p[i:]))
		if v != v || v > 1 || v < -1 {
			t.Fatalf("sample %d out of range: %g", i/4, v)
		}
	}
}

func TestApplyChainUnknownEffect(t *testing.T) {
	in := []float32{0.1, 0.2}
	out, unknown := applyChain(in, []FX{{Name: "flanger"}}, testRate, time.Second)
	if len(unknown) != 1 || unknown[0] != "flanger" {
		t.Fatalf("unknown = %v", unknown)
	}
	if len(out) != len(in) || out[0] != in[0] {
		t.Fatal("unknown effect altered audio")
	}
}

func TestMixBusSumsAndDrains(t *testing.T) {
	b := &mixBus{}
	b.Mix([]float32{0.25, 0.25, 0.25})
	b.Mix([]float32{0.5})

	p := make([]byte, 8)
	n, err := b.Read(p)
	if err != nil || n != 8 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	s0 := math.Float32frombits(binary.LittleEndian.Uint32(p[0:]))
	s1 := math.Float32frombits(binary.LittleEndian.Uint32(p[4:]))
	if s0 != 0.75 || s1 != 0.25 {
		t.Fatalf("samples %g %g, want 0.75 0.25", s0, s1)
	}
	if b.Pending() != 1 {
		t.Fatalf("%d samples pending, want 1", b.Pending())
	}

	p = make([]byte, 16)
	b.Read(p)
	for i := 4; i < 16; i += 4 {
		if s := math.Float32frombits(binary.LittleEndian.Uint32(p[i:])); s != 0 {
			t.Fatalf("expected silence after drain, got %g", s)
		}
	}
	if b.Pending() != 0 {
		t.Fatalf("%d samples pending after drain", b.Pending())
	}
}

func TestMixBusClamps(t *testing.T) {
	b := &mixBus{}
	b.Mix([]float32{3, -3})
	p := make([]byte, 8)
	b.Read(p)
	if s := math.Float32frombits(binary.LittleEndian.Uint32(p[0:])); s != 1 {
		t.Fatalf("positive clamp %g", s)
	}
	if s := math.Float32frombits(binary.LittleEndian.Uint32(p[4:])); s != -1 {
		t.Fatalf("negative clamp %g", s)
	}
}

func TestAudioEnginePlaysIntoBus(t *testing.T) {
	e := newAudioEngine(testRate, time.Second, discardLogger())
	fx := FX{Name: "echo", Opts: Opts{"phase": 0.25, "decay": 2}}
	v := Voice{Synth: "sine", Note: 60, Rate: 1, Sustain: 0.5, Release: 0.5}

	err := e.WithFX(t.Context(), fx, func(ctx context.Context) error {
		return e.Play(ctx, v)
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if want := testRate + 2*testRate; e.bus.Pending() != want {
		t.Fatalf("%d samples pending, want voice plus echo tail %d", e.bus.Pending(), want)
	}

	if err := e.Play(t.Context(), Voice{Synth: "saw", Rate: 1}); err == nil {
		t.Fatal("unknown synth accepted")
	}
}

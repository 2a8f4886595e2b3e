package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrUnknownEngine = errors.New("unknown engine")

// Opts holds the numeric arguments of an effect.
type Opts map[string]float64

// FX names an effect and its arguments.
type FX struct {
	Name string
	Opts Opts
}

// Voice is a single synthesis call. Times are in beats.
type Voice struct {
	Synth   string
	Note    float64
	Rate    float64
	Sustain float64
	Release float64
}

// Length is the voice envelope in beats, before rate scaling.
func (v Voice) Length() float64 { return v.Sustain + v.Release }

// Engine is the synthesis and effect collaborator the scheduler drives.
// WithFX applies fx to every Play issued from inside body.
type Engine interface {
	WithFX(ctx context.Context, fx FX, body func(context.Context) error) error
	Play(ctx context.Context, v Voice) error
}

// EngineCloser is an Engine holding a device that must be released.
type EngineCloser interface {
	Engine
	io.Closer
}

// newEngine opens the engine named in cfg.
func newEngine(cfg Config, log *slog.Logger) (EngineCloser, error) {
	beat := beatDuration(cfg.BPM)
	switch cfg.Engine {
	case "log":
		return newLogEngine(log), nil
	case "audio":
		return OpenAudioEngine(cfg.SampleRate, beat, log)
	case "midi":
		return OpenMIDIEngine(cfg.MIDI, beat, log)
	default:
		return nil, errors.Wrapf(ErrUnknownEngine, "%q", cfg.Engine)
	}
}

// fxStack tracks the effects active around the current Play call.
type fxStack struct {
	mu    sync.Mutex
	items []FX
}

func (s *fxStack) push(fx FX) {
	s.mu.Lock()
	s.items = append(s.items, fx)
	s.mu.Unlock()
}

func (s *fxStack) pop() {
	s.mu.Lock()
	if n := len(s.items); n > 0 {
		s.items = s.items[:n-1]
	}
	s.mu.Unlock()
}

// active returns the chain innermost first, the order audio flows through it.
func (s *fxStack) active() []FX {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := make([]FX, len(s.items))
	for i, fx := range s.items {
		chain[len(s.items)-1-i] = fx
	}
	return chain
}

func (s *fxStack) wrap(ctx context.Context, fx FX, body func(context.Context) error) error {
	s.push(fx)
	defer s.pop()
	return body(ctx)
}

// logEngine makes no sound; it writes each trigger to the log.
type logEngine struct {
	fx  fxStack
	log *slog.Logger
}

func newLogEngine(log *slog.Logger) *logEngine {
	return &logEngine{log: log.With("component", "engine", "engine", "log")}
}

func (e *logEngine) WithFX(ctx context.Context, fx FX, body func(context.Context) error) error {
	return e.fx.wrap(ctx, fx, body)
}

func (e *logEngine) Play(_ context.Context, v Voice) error {
	e.log.Info("trigger", "call", describeCall(e.fx.active(), v))
	return nil
}

func (e *logEngine) Close() error { return nil }

// describeCall renders a trigger as effect("echo", {...}, synth("sine", {...})).
func describeCall(chain []FX, v Voice) string {
	call := fmt.Sprintf("synth(%q, {note: %g, rate: %g, sustain: %g, release: %g})",
		v.Synth, v.Note, v.Rate, v.Sustain, v.Release)
	for _, fx := range chain {
		call = fmt.Sprintf("effect(%q, %s, %s)", fx.Name, formatOpts(fx.Opts), call)
	}
	return call
}

func formatOpts(o Opts) string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %g", k, o[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// voiceDuration is how long a voice sounds in wall time at the given beat,
// at most maxTail.
func voiceDuration(v Voice, beat time.Duration) time.Duration {
	speed := math.Abs(v.Rate)
	if speed == 0 {
		return 0
	}
	return boundedBeats(v.Length()/speed, beat)
}

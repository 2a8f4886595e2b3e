package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const (
	// cycleBeats is the length of one scheduler cycle. It does not follow the
	// voice envelope.
	cycleBeats = 1.0

	voiceSynth   = "sine"
	voiceSustain = 0.5
	voiceRelease = 0.5

	echoFX = "echo"
)

// Stats counts scheduler cycles since start.
type Stats struct {
	Cycles   uint64 `json:"cycles"`
	Triggers uint64 `json:"triggers"`
	Failures uint64 `json:"failures"`
	Skipped  uint64 `json:"skipped"`
}

// Scheduler triggers one voice per cycle from the latest parameter values.
type Scheduler struct {
	params *Params
	engine Engine
	beat   time.Duration
	log    *slog.Logger

	cycles   atomic.Uint64
	triggers atomic.Uint64
	failures atomic.Uint64
	skipped  atomic.Uint64
}

func NewScheduler(params *Params, engine Engine, beat time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		params: params,
		engine: engine,
		beat:   beat,
		log:    log.With("component", "scheduler"),
	}
}

// Period is the time between the starts of two cycles.
func (s *Scheduler) Period() time.Duration {
	return beatsToDuration(cycleBeats, s.beat)
}

// Run executes cycles on a fixed grid until ctx is done. A cycle that
// overruns its slot re-anchors the grid at the moment it finished.
func (s *Scheduler) Run(ctx context.Context) error {
	period := s.Period()
	s.log.Info("scheduler started", "period", period)

	timer := time.NewTimer(period)
	defer timer.Stop()

	next := time.Now()
	for {
		if _, err := s.Cycle(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("trigger failed, continuing", "err", err)
		}

		next = next.Add(period)
		wait := time.Until(next)
		if wait <= 0 {
			s.log.Warn("cycle overran its slot", "behind", -wait)
			next = time.Now().Add(period)
			wait = period
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped", "cycles", s.cycles.Load())
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Cycle snapshots the store, applies the mode gate and, if it passes,
// triggers one echo-wrapped voice.
func (s *Scheduler) Cycle(ctx context.Context) (bool, error) {
	f := s.params.Snapshot()
	s.cycles.Add(1)

	if !f.Gate() {
		s.skipped.Add(1)
		return false, nil
	}

	if err := s.trigger(ctx, f); err != nil {
		s.failures.Add(1)
		return false, err
	}
	s.triggers.Add(1)
	return true, nil
}

// trigger issues effect("echo", {phase, decay}, synth("sine", {...})).
// delay_time and delay_feedback are part of the frame but feed no effect.
// A panicking engine is reported as a failed trigger.
func (s *Scheduler) trigger(ctx context.Context, f Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("engine panicked on note %g: %v", f.Pitch, r)
		}
	}()
	fx := FX{Name: echoFX, Opts: Opts{"phase": f.EchoPhase, "decay": f.EchoDecay}}
	v := voiceFor(f)
	err = s.engine.WithFX(ctx, fx, func(ctx context.Context) error {
		return s.engine.Play(ctx, v)
	})
	return errors.Wrapf(err, "trigger note %g", v.Note)
}

func voiceFor(f Frame) Voice {
	return Voice{
		Synth:   voiceSynth,
		Note:    f.Pitch,
		Rate:    f.Rate,
		Sustain: voiceSustain,
		Release: voiceRelease,
	}
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Cycles:   s.cycles.Load(),
		Triggers: s.triggers.Load(),
		Failures: s.failures.Load(),
		Skipped:  s.skipped.Load(),
	}
}

// beatDuration converts a tempo into the length of one beat.
func beatDuration(bpm float64) time.Duration {
	return time.Duration(60 / bpm * float64(time.Second))
}

func beatsToDuration(beats float64, beat time.Duration) time.Duration {
	return time.Duration(beats * float64(beat))
}

package main

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Ranges the echo arguments are scaled over when sent as control changes.
const (
	echoPhaseCCMax = 4.0
	echoDecayCCMax = 16.0
)

// midiSink is the part of a MIDI output port the engine writes to.
type midiSink interface {
	Send(data []byte) error
}

// MIDIEngine plays voices on an external instrument over a MIDI output port.
type MIDIEngine struct {
	out      midiSink
	closer   func()
	channel  uint8
	velocity uint8
	phaseCC  uint8
	decayCC  uint8
	beat     time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	holding map[uint8]*time.Timer
}

// OpenMIDIEngine opens the first output port whose name contains cfg.Port.
func OpenMIDIEngine(cfg MIDIConfig, beat time.Duration, log *slog.Logger) (*MIDIEngine, error) {
	portIdx, err := findOutPort(cfg.Port)
	if err != nil {
		return nil, err
	}

	outs, err := drivers.Outs()
	if err != nil {
		return nil, errors.Wrap(err, "list MIDI outputs")
	}
	if portIdx < 0 || portIdx >= len(outs) {
		return nil, errors.Errorf("output port index %d out of range", portIdx)
	}

	out := outs[portIdx]
	if err := out.Open(); err != nil {
		return nil, errors.Wrapf(err, "open MIDI output %s", out.String())
	}
	closer := func() {
		_ = out.Close()
		drivers.Close()
	}

	e := newMIDIEngine(out, cfg, beat, log)
	e.closer = closer
	e.log.Info("opened MIDI output", "port", out.String(), "channel", cfg.Channel)
	return e, nil
}

func newMIDIEngine(out midiSink, cfg MIDIConfig, beat time.Duration, log *slog.Logger) *MIDIEngine {
	return &MIDIEngine{
		out:      out,
		channel:  uint8(cfg.Channel - 1),
		velocity: uint8(cfg.Velocity),
		phaseCC:  uint8(cfg.EchoPhaseCC),
		decayCC:  uint8(cfg.EchoDecayCC),
		beat:     beat,
		log:      log.With("component", "engine", "engine", "midi"),
		holding:  make(map[uint8]*time.Timer),
	}
}

func (e *MIDIEngine) send(msg midi.Message) error {
	return e.out.Send(msg.Bytes())
}

// WithFX forwards echo arguments as control changes, then runs body.
// Effects other than echo have no mapping and only run body.
func (e *MIDIEngine) WithFX(ctx context.Context, fx FX, body func(context.Context) error) error {
	if fx.Name == echoFX {
		if err := e.send(midi.ControlChange(e.channel, e.phaseCC, ccValue(fx.Opts["phase"], echoPhaseCCMax))); err != nil {
			return errors.Wrap(err, "echo phase control change")
		}
		if err := e.send(midi.ControlChange(e.channel, e.decayCC, ccValue(fx.Opts["decay"], echoDecayCCMax))); err != nil {
			return errors.Wrap(err, "echo decay control change")
		}
	}
	return body(ctx)
}

// Play sends note on and schedules the matching note off once the envelope
// has elapsed. Retriggering a held key cuts the previous note first.
func (e *MIDIEngine) Play(_ context.Context, v Voice) error {
	key := midiKey(v.Note)

	e.mu.Lock()
	defer e.mu.Unlock()

	if held, ok := e.holding[key]; ok {
		held.Stop()
		delete(e.holding, key)
		if err := e.send(midi.NoteOff(e.channel, key)); err != nil {
			return errors.Wrapf(err, "note off failed for %d", key)
		}
	}
	if err := e.send(midi.NoteOn(e.channel, key, e.velocity)); err != nil {
		return errors.Wrapf(err, "note on failed for %d", key)
	}

	var t *time.Timer
	t = time.AfterFunc(voiceDuration(v, e.beat), func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.holding[key] != t {
			return
		}
		delete(e.holding, key)
		if err := e.send(midi.NoteOff(e.channel, key)); err != nil {
			e.log.Warn("note off failed", "key", key, "err", err)
		}
	})
	e.holding[key] = t
	return nil
}

// Close releases every held note and the port.
func (e *MIDIEngine) Close() error {
	e.mu.Lock()
	var firstErr error
	for key, t := range e.holding {
		t.Stop()
		if err := e.send(midi.NoteOff(e.channel, key)); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "note off failed for %d", key)
		}
		delete(e.holding, key)
	}
	e.mu.Unlock()

	if e.closer != nil {
		e.closer()
	}
	return firstErr
}

// midiKey rounds a fractional pitch to the nearest valid key.
func midiKey(note float64) uint8 {
	if math.IsNaN(note) {
		return 0
	}
	return uint8(math.Max(0, math.Min(127, math.Round(note))))
}

// ccValue maps v in [0, limit] onto 0-127.
func ccValue(v, limit float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return uint8(math.Min(127, math.Round(v/limit*127)))
}

func findOutPort(nameFragment string) (int, error) {
	outs := midi.GetOutPorts()
	if len(outs) == 0 {
		return -1, errors.New("no MIDI outputs available")
	}

	lower := strings.ToLower(nameFragment)
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), lower) {
			return out.Number(), nil
		}
	}

	return -1, errors.Errorf("no MIDI output contains %q", nameFragment)
}

package main

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Param identifies one of the fixed control parameters.
type Param int

const (
	Pitch Param = iota
	Rate
	Mode
	DelayTime
	DelayFeedback
	EchoPhase
	EchoDecay

	numParams
)

// addressPrefix is the OSC namespace every control channel lives under.
const addressPrefix = "/osc/"

var ErrUnknownParam = errors.New("unknown parameter")

var paramNames = [numParams]string{
	Pitch:         "pitch",
	Rate:          "rate",
	Mode:          "mode",
	DelayTime:     "delay_time",
	DelayFeedback: "delay_feedback",
	EchoPhase:     "echo_phase",
	EchoDecay:     "echo_decay",
}

var paramDefaults = [numParams]float64{
	Pitch:         60,
	Rate:          1,
	Mode:          1,
	DelayTime:     0.5,
	DelayFeedback: 0.5,
	EchoPhase:     0.25,
	EchoDecay:     2,
}

// AllParams returns every parameter in channel service order.
func AllParams() []Param {
	ps := make([]Param, 0, numParams)
	for p := Pitch; p < numParams; p++ {
		ps = append(ps, p)
	}
	return ps
}

// ParamByName resolves a parameter from its name ("pitch") or its OSC address ("/osc/pitch").
func ParamByName(name string) (Param, error) {
	for p := Pitch; p < numParams; p++ {
		if name == paramNames[p] || name == addressPrefix+paramNames[p] {
			return p, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownParam, "%q", name)
}

func (p Param) valid() bool { return p >= 0 && p < numParams }

func (p Param) String() string {
	if !p.valid() {
		return fmt.Sprintf("Param(%d)", int(p))
	}
	return paramNames[p]
}

// Address is the control-channel path the parameter is updated on.
func (p Param) Address() string { return addressPrefix + p.String() }

func (p Param) Default() float64 {
	p.mustBeValid()
	return paramDefaults[p]
}

func (p Param) mustBeValid() {
	if !p.valid() {
		panic(fmt.Sprintf("sirenctl: access to unknown parameter %d", int(p)))
	}
}

// Params is the shared parameter store. Each value lives in its own atomic
// cell, so single-key reads and writes never tear and need no lock. There is
// no multi-key transaction: a Snapshot may mix values from before and after a
// concurrent Set.
type Params struct {
	cells [numParams]atomic.Uint64
}

// NewParams returns a store holding every default.
func NewParams() *Params {
	s := &Params{}
	s.Reset()
	return s
}

// Get returns the current value of p. It panics if p is not a known parameter.
func (s *Params) Get(p Param) float64 {
	p.mustBeValid()
	return math.Float64frombits(s.cells[p].Load())
}

// Set overwrites the value of p. No range check is applied.
func (s *Params) Set(p Param, v float64) {
	p.mustBeValid()
	s.cells[p].Store(math.Float64bits(v))
}

// Reset restores every parameter to its default.
func (s *Params) Reset() {
	for p := Pitch; p < numParams; p++ {
		s.Set(p, paramDefaults[p])
	}
}

// Snapshot reads each parameter once, in channel order.
func (s *Params) Snapshot() Frame {
	var f Frame
	for p := Pitch; p < numParams; p++ {
		f.set(p, s.Get(p))
	}
	return f
}

// Frame is a per-cycle copy of all parameter values.
type Frame struct {
	Pitch         float64 `json:"pitch"`
	Rate          float64 `json:"rate"`
	Mode          float64 `json:"mode"`
	DelayTime     float64 `json:"delay_time"`
	DelayFeedback float64 `json:"delay_feedback"`
	EchoPhase     float64 `json:"echo_phase"`
	EchoDecay     float64 `json:"echo_decay"`
}

// DefaultFrame is the frame seen before any control message arrives.
func DefaultFrame() Frame {
	var f Frame
	for p := Pitch; p < numParams; p++ {
		f.set(p, paramDefaults[p])
	}
	return f
}

// Gate reports whether a cycle with this frame should trigger audio.
func (f Frame) Gate() bool { return f.Mode == 1 }

func (f Frame) Value(p Param) float64 {
	switch p {
	case Pitch:
		return f.Pitch
	case Rate:
		return f.Rate
	case Mode:
		return f.Mode
	case DelayTime:
		return f.DelayTime
	case DelayFeedback:
		return f.DelayFeedback
	case EchoPhase:
		return f.EchoPhase
	case EchoDecay:
		return f.EchoDecay
	}
	p.mustBeValid()
	return 0
}

func (f *Frame) set(p Param, v float64) {
	switch p {
	case Pitch:
		f.Pitch = v
	case Rate:
		f.Rate = v
	case Mode:
		f.Mode = v
	case DelayTime:
		f.DelayTime = v
	case DelayFeedback:
		f.DelayFeedback = v
	case EchoPhase:
		f.EchoPhase = v
	case EchoDecay:
		f.EchoDecay = v
	default:
		p.mustBeValid()
	}
}

// Map keys the frame by parameter name.
func (f Frame) Map() map[string]float64 {
	m := make(map[string]float64, numParams)
	for p := Pitch; p < numParams; p++ {
		m[paramNames[p]] = f.Value(p)
	}
	return m
}

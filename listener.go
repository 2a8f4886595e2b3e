package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/hypebeast/go-osc/osc"
)

// Receiver is a bounded-wait source of control messages. Receive returns
// ok=false when nothing arrived on address within wait; that is a normal
// outcome, not an error.
type Receiver interface {
	Receive(ctx context.Context, address string, wait time.Duration) (msg *osc.Message, ok bool)
}

// Listener copies inbound control values into the parameter store.
type Listener struct {
	params *Params
	rx     Receiver
	wait   time.Duration
	log    *slog.Logger
}

func NewListener(params *Params, rx Receiver, wait time.Duration, log *slog.Logger) *Listener {
	return &Listener{
		params: params,
		rx:     rx,
		wait:   wait,
		log:    log.With("component", "listener"),
	}
}

// Run services every channel, over and over, until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	l.log.Info("listening for control messages", "channels", int(numParams), "wait", l.wait)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.Iterate(ctx)
	}
}

// Iterate waits at most once on each channel, in order, and returns the
// number of parameters written.
func (l *Listener) Iterate(ctx context.Context) int {
	updated := 0
	for _, p := range AllParams() {
		if ctx.Err() != nil {
			break
		}
		if l.service(ctx, p) {
			updated++
		}
	}
	return updated
}

func (l *Listener) service(ctx context.Context, p Param) bool {
	msg, ok := l.rx.Receive(ctx, p.Address(), l.wait)
	if !ok {
		return false
	}
	v, err := decodeValue(msg)
	if err != nil {
		l.log.Warn("ignoring control message", "address", p.Address(), "err", err)
		return false
	}
	if applyUpdate(l.params, p, v, true) {
		l.log.Debug("parameter updated", "param", p.String(), "value", v)
		return true
	}
	return false
}

// applyUpdate writes v into p when a value is present and leaves the store
// untouched otherwise.
func applyUpdate(params *Params, p Param, v float64, ok bool) bool {
	if !ok {
		return false
	}
	params.Set(p, v)
	return true
}

package main

import (
	"context"
	"fmt"
	"math"

	"github.com/eiannone/keyboard"
	"github.com/pkg/errors"
)

// panelKeys maps front-panel keys to a parameter nudge.
var panelKeys = map[rune]struct {
	param Param
	step  float64
}{
	'q': {Pitch, 1}, 'a': {Pitch, -1},
	'w': {Rate, 0.1}, 's': {Rate, -0.1},
	'e': {DelayTime, 0.1}, 'd': {DelayTime, -0.1},
	'r': {DelayFeedback, 0.1}, 'f': {DelayFeedback, -0.1},
	't': {EchoPhase, 0.05}, 'g': {EchoPhase, -0.05},
	'y': {EchoDecay, 0.1}, 'h': {EchoDecay, -0.1},
}

// panelStep applies one key press to the panel's local frame and reports
// which parameter changed. 'm' toggles mode between 0 and 1.
func panelStep(f *Frame, key rune) (Param, bool) {
	if key == 'm' {
		if f.Gate() {
			f.set(Mode, 0)
		} else {
			f.set(Mode, 1)
		}
		return Mode, true
	}
	k, ok := panelKeys[key]
	if !ok {
		return 0, false
	}
	v := math.Round((f.Value(k.param)+k.step)*1000) / 1000
	f.set(k.param, v)
	return k.param, true
}

// runPanel reads single key presses and sends every change until Esc,
// Ctrl-C or ctx ends. The panel starts from the defaults; it does not read
// the controller's state.
func runPanel(ctx context.Context, s *Sender) error {
	if err := keyboard.Open(); err != nil {
		return errors.Wrap(err, "keyboard input unavailable")
	}
	defer keyboard.Close()

	fmt.Println("q/a pitch  w/s rate  e/d delay_time  r/f delay_feedback  t/g echo_phase  y/h echo_decay  m mode  Esc quit")

	keys := make(chan rune)
	errs := make(chan error, 1)
	go func() {
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				errs <- err
				return
			}
			if key == keyboard.KeyEsc || key == keyboard.KeyCtrlC {
				close(keys)
				return
			}
			select {
			case keys <- char:
			case <-ctx.Done():
				return
			}
		}
	}()

	f := DefaultFrame()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return errors.Wrap(err, "keyboard")
		case char, ok := <-keys:
			if !ok {
				return nil
			}
			p, changed := panelStep(&f, char)
			if !changed {
				continue
			}
			if err := s.Send(p, f.Value(p)); err != nil {
				return err
			}
			fmt.Printf("Updated %s: %g\r\n", p, f.Value(p))
		}
	}
}

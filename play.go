package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// playOnce triggers a single cycle from the given frame and waits until the
// voice and its echo tail have finished.
func playOnce(ctx context.Context, engine Engine, f Frame, beat time.Duration) error {
	params := NewParams()
	for _, p := range AllParams() {
		params.Set(p, f.Value(p))
	}
	sched := &Scheduler{params: params, engine: engine, beat: beat, log: discardLogger()}

	triggered, err := sched.Cycle(ctx)
	if err != nil {
		return err
	}
	if !triggered {
		return errors.Errorf("mode is %g, nothing to play", f.Mode)
	}

	tail := voiceDuration(voiceFor(f), beat) + boundedBeats(f.EchoDecay, beat)
	if tail > maxTail {
		tail = maxTail
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(tail):
		return nil
	}
}

// parseValue reads a command-line value for p. Pitch also accepts note
// names such as C4, F#3 or Bb2.
func parseValue(p Param, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err == nil {
		return v, nil
	}
	if p != Pitch {
		return 0, errors.Wrapf(err, "invalid value %q for %s", s, p)
	}
	n, isRest, err := parseNoteToken(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid pitch %q", s)
	}
	if isRest {
		return 0, errors.Errorf("invalid pitch %q: rests have no pitch", s)
	}
	return float64(n), nil
}

func parseNoteToken(tok string) (uint8, bool, error) {
	t := strings.TrimSpace(tok)
	if t == "" {
		return 0, false, errors.New("empty token")
	}

	if strings.EqualFold(t, "r") || strings.EqualFold(t, "rest") {
		return 0, true, nil
	}

	if len(t) < 2 {
		return 0, false, errors.New("too short")
	}

	base := strings.ToUpper(string(t[0]))
	accidental := 0
	rest := t[1:]

	if len(rest) > 0 {
		switch rest[0] {
		case '#':
			accidental = 1
			rest = rest[1:]
		case 'b', 'B':
			accidental = -1
			rest = rest[1:]
		}
	}

	if rest == "" {
		return 0, false, errors.New("missing octave")
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false, errors.Wrap(err, "invalid octave")
	}

	var semitone int
	switch base {
	case "C":
		semitone = 0
	case "D":
		semitone = 2
	case "E":
		semitone = 4
	case "F":
		semitone = 5
	case "G":
		semitone = 7
	case "A":
		semitone = 9
	case "B":
		semitone = 11
	default:
		return 0, false, errors.Errorf("invalid note letter %q", base)
	}

	semitone += accidental
	n := 12*(octave+1) + semitone

	if n < 0 || n > 127 {
		return 0, false, errors.Errorf("MIDI note out of range: %d", n)
	}

	return uint8(n), false, nil
}

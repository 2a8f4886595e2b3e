package main

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/pkg/errors"
)

// AudioEngine renders voices locally and plays them through the default
// output device.
type AudioEngine struct {
	otoCtx     *oto.Context
	player     *oto.Player
	bus        *mixBus
	sampleRate int
	beat       time.Duration
	fx         fxStack
	log        *slog.Logger

	warnOnce sync.Map
}

func OpenAudioEngine(sampleRate int, beat time.Duration, log *slog.Logger) (*AudioEngine, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   50 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, errors.Wrap(err, "open audio device")
	}
	<-ready

	e := newAudioEngine(sampleRate, beat, log)
	e.otoCtx = otoCtx
	e.player = otoCtx.NewPlayer(e.bus)
	e.player.Play()
	e.log.Info("audio output ready", "sample_rate", sampleRate)
	return e, nil
}

func newAudioEngine(sampleRate int, beat time.Duration, log *slog.Logger) *AudioEngine {
	return &AudioEngine{
		bus:        &mixBus{},
		sampleRate: sampleRate,
		beat:       beat,
		log:        log.With("component", "engine", "engine", "audio"),
	}
}

func (e *AudioEngine) WithFX(ctx context.Context, fx FX, body func(context.Context) error) error {
	return e.fx.wrap(ctx, fx, body)
}

func (e *AudioEngine) Play(_ context.Context, v Voice) error {
	if v.Synth != voiceSynth {
		return errors.Errorf("audio engine has no synth %q", v.Synth)
	}
	if e.otoCtx != nil {
		if err := e.otoCtx.Err(); err != nil {
			return errors.Wrap(err, "audio device")
		}
	}
	samples, unknown := applyChain(renderVoice(v, e.sampleRate, e.beat), e.fx.active(), e.sampleRate, e.beat)
	for _, name := range unknown {
		if _, seen := e.warnOnce.LoadOrStore(name, true); !seen {
			e.log.Warn("effect not supported, passing audio through", "fx", name)
		}
	}
	e.bus.Mix(samples)
	return nil
}

func (e *AudioEngine) Close() error {
	if e.player == nil {
		return nil
	}
	err := e.player.Close()
	e.player = nil
	return errors.Wrap(err, "close audio player")
}

// mixBus sums voices into a queue of pending samples and serves them to the
// player as mono float32 little-endian PCM. Silence is emitted when empty.
type mixBus struct {
	mu      sync.Mutex
	pending []float32
}

func (b *mixBus) Mix(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(samples) - len(b.pending); n > 0 {
		b.pending = append(b.pending, make([]float32, n)...)
	}
	for i, s := range samples {
		b.pending[i] += s
	}
}

func (b *mixBus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *mixBus) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p) / 4
	for i := 0; i < n; i++ {
		var s float32
		if i < len(b.pending) {
			s = clampSample(b.pending[i])
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	if n >= len(b.pending) {
		b.pending = b.pending[:0]
	} else {
		b.pending = append(b.pending[:0], b.pending[n:]...)
	}
	return n * 4, nil
}

func clampSample(s float32) float32 {
	if s != s {
		return 0
	}
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestDecodeConfigOverDefaults(t *testing.T) {
	doc := `
listen: 0.0.0.0:9000
wait: 50ms
bpm: 120
engine: midi
midi:
  port: blofeld
  channel: 3
http: 127.0.0.1:8080
log_level: debug
`
	cfg := DefaultConfig()
	if err := decodeConfig(strings.NewReader(doc), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" || cfg.Wait != 50*time.Millisecond || cfg.BPM != 120 {
		t.Fatalf("decoded %+v", cfg)
	}
	if cfg.Engine != "midi" || cfg.MIDI.Port != "blofeld" || cfg.MIDI.Channel != 3 {
		t.Fatalf("midi settings %+v", cfg.MIDI)
	}
	// keys absent from the document keep their defaults
	if cfg.MIDI.Velocity != 100 || cfg.SampleRate != 44100 {
		t.Fatalf("defaults lost: velocity %d sample_rate %d", cfg.MIDI.Velocity, cfg.SampleRate)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestDecodeConfigRejectsUnknownKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := decodeConfig(strings.NewReader("tempo: 90\n"), &cfg); err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestDecodeEmptyConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := decodeConfig(bytes.NewReader(nil), &cfg); err != nil {
		t.Fatalf("empty document: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("empty document changed config: %+v", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil || cfg != DefaultConfig() {
		t.Fatalf("empty path: %+v, %v", cfg, err)
	}

	path := filepath.Join(t.TempDir(), "sirenctl.yaml")
	if err := os.WriteFile(path, []byte("engine: log\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadConfig(path)
	if err != nil || cfg.Engine != "log" {
		t.Fatalf("file: %+v, %v", cfg, err)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"zero wait", func(c *Config) { c.Wait = 0 }},
		{"negative bpm", func(c *Config) { c.BPM = -1 }},
		{"unknown engine", func(c *Config) { c.Engine = "supercollider" }},
		{"audio without sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"channel zero", func(c *Config) { c.MIDI.Channel = 0 }},
		{"channel 17", func(c *Config) { c.MIDI.Channel = 17 }},
		{"velocity", func(c *Config) { c.MIDI.Velocity = 128 }},
		{"phase cc", func(c *Config) { c.MIDI.EchoPhaseCC = -1 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Engine = "tape"
	if err := cfg.Validate(); errors.Cause(err) != ErrUnknownEngine {
		t.Fatalf("got %v, want ErrUnknownEngine", err)
	}

	cfg = DefaultConfig()
	cfg.Engine = "log"
	cfg.SampleRate = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("log engine does not need a sample rate: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "warn")
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown", "param", "pitch")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") || !strings.Contains(out, "param=pitch") {
		t.Fatalf("log output %q", out)
	}
	if _, err := newLogger(&buf, "verbose"); err == nil {
		t.Fatal("bad level accepted")
	}
}

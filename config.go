package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds runtime settings. Parameter defaults are fixed and not configurable.
type Config struct {
	Listen     string        `yaml:"listen"`
	Wait       time.Duration `yaml:"wait"`
	BPM        float64       `yaml:"bpm"`
	Engine     string        `yaml:"engine"`
	SampleRate int           `yaml:"sample_rate"`
	MIDI       MIDIConfig    `yaml:"midi"`
	HTTP       string        `yaml:"http"`
	LogLevel   string        `yaml:"log_level"`
}

// MIDIConfig configures the MIDI engine. Channel is 1-based.
type MIDIConfig struct {
	Port        string `yaml:"port"`
	Channel     int    `yaml:"channel"`
	Velocity    int    `yaml:"velocity"`
	EchoPhaseCC int    `yaml:"echo_phase_cc"`
	EchoDecayCC int    `yaml:"echo_decay_cc"`
}

func DefaultConfig() Config {
	return Config{
		Listen:     "127.0.0.1:4559",
		Wait:       20 * time.Millisecond,
		BPM:        60,
		Engine:     "audio",
		SampleRate: 44100,
		MIDI: MIDIConfig{
			Channel:     1,
			Velocity:    100,
			EchoPhaseCC: 12,
			EchoDecayCC: 13,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads a YAML file over the defaults. An empty path yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := decodeConfig(bytes.NewReader(data), &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

func decodeConfig(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address must not be empty")
	}
	if c.Wait <= 0 {
		return errors.Errorf("wait must be positive, got %s", c.Wait)
	}
	if c.BPM <= 0 {
		return errors.Errorf("bpm must be positive, got %g", c.BPM)
	}
	switch c.Engine {
	case "log", "midi":
	case "audio":
		if c.SampleRate <= 0 {
			return errors.Errorf("sample_rate must be positive, got %d", c.SampleRate)
		}
	default:
		return errors.Wrapf(ErrUnknownEngine, "%q", c.Engine)
	}
	if c.MIDI.Channel < 1 || c.MIDI.Channel > 16 {
		return errors.Errorf("midi.channel must be 1-16, got %d", c.MIDI.Channel)
	}
	for name, v := range map[string]int{
		"midi.velocity":      c.MIDI.Velocity,
		"midi.echo_phase_cc": c.MIDI.EchoPhaseCC,
		"midi.echo_decay_cc": c.MIDI.EchoDecayCC,
	} {
		if v < 0 || v > 127 {
			return errors.Errorf("%s must be 0-127, got %d", name, v)
		}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, errors.Errorf("log_level %q is not one of debug, info, warn, error", s)
	}
	return lvl, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

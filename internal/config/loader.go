package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MrWong99/visemesync/internal/timeline"
	"github.com/MrWong99/visemesync/pkg/audio"
	"github.com/MrWong99/visemesync/pkg/viseme"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Engine
	if cfg.Engine.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("engine.tick_interval %s must be positive", cfg.Engine.TickInterval))
	}
	if cfg.Engine.TransitionDuration < 0 {
		errs = append(errs, fmt.Errorf("engine.transition_duration %s must be positive", cfg.Engine.TransitionDuration))
	}
	if cfg.Engine.TickInterval > 0 && cfg.Engine.TransitionDuration > 0 && cfg.Engine.TransitionDuration < cfg.Engine.TickInterval {
		slog.Warn("engine.transition_duration is shorter than one tick; transitions will complete immediately",
			"tick_interval", cfg.Engine.TickInterval,
			"transition_duration", cfg.Engine.TransitionDuration,
		)
	}

	// Audio
	if cfg.Audio.FFTSize != 0 && cfg.Audio.FFTSize < audio.MinFFTSize {
		errs = append(errs, fmt.Errorf("audio.fft_size %d is below the minimum %d", cfg.Audio.FFTSize, audio.MinFFTSize))
	}
	if cfg.Audio.Smoothing < 0 || cfg.Audio.Smoothing >= 1 {
		errs = append(errs, fmt.Errorf("audio.smoothing %.2f is out of range [0, 1)", cfg.Audio.Smoothing))
	}
	if cfg.Audio.Gain < 0 {
		errs = append(errs, fmt.Errorf("audio.gain %.2f must not be negative", cfg.Audio.Gain))
	}
	if cfg.Audio.SilenceThreshold < 0 || cfg.Audio.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.silence_threshold %.2f is out of range [0, 1]", cfg.Audio.SilenceThreshold))
	}

	// Thresholds
	t := cfg.Thresholds
	for _, a := range []struct {
		name string
		v    float64
	}{
		{"silence", t.Silence},
		{"wide_open", t.WideOpen},
		{"rounded_amplitude", t.RoundedAmplitude},
		{"pressed_min", t.PressedMin},
		{"pressed_max", t.PressedMax},
	} {
		if a.v < 0 || a.v > 1 {
			errs = append(errs, fmt.Errorf("thresholds.%s %.2f is out of range [0, 1]", a.name, a.v))
		}
	}
	if t.PressedMin >= t.PressedMax && t != (ThresholdsConfig{}) {
		errs = append(errs, fmt.Errorf("thresholds.pressed_min %.2f must be below pressed_max %.2f", t.PressedMin, t.PressedMax))
	}
	if !(t.RoundedHz < t.SmallOpenHz && t.SmallOpenHz < t.WideSmileHz) && t != (ThresholdsConfig{}) {
		errs = append(errs, fmt.Errorf("thresholds: frequencies must increase: rounded_hz %.0f < small_open_hz %.0f < wide_smile_hz %.0f",
			t.RoundedHz, t.SmallOpenHz, t.WideSmileHz))
	}

	// Timeline
	if cfg.Timeline.Variant != "" && !cfg.Timeline.Variant.IsValid() {
		errs = append(errs, fmt.Errorf("timeline.variant %q is invalid; valid values: simple, three_phase", cfg.Timeline.Variant))
	}
	for name, d := range cfg.Timeline.Durations {
		if _, err := viseme.Parse(name); err != nil {
			errs = append(errs, fmt.Errorf("timeline.durations: unknown viseme %q; valid values: %s", name, visemeNames()))
			continue
		}
		if d <= 0 {
			errs = append(errs, fmt.Errorf("timeline.durations.%s %s must be positive", name, d))
		}
	}
	p := cfg.Timeline.Phases
	if p != (PhasesConfig{}) {
		if err := (timeline.Phases{Opening: p.Opening, Closing: p.Closing}).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("timeline.phases: %w", err))
		}
	}

	return errors.Join(errs...)
}

func visemeNames() string {
	all := viseme.All()
	names := make([]string, len(all))
	for i, v := range all {
		names[i] = v.String()
	}
	return strings.Join(names, ", ")
}

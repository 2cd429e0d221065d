// Package config provides the configuration schema, loader and file watcher
// for the visemesync server.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/visemesync/internal/classify"
	"github.com/MrWong99/visemesync/internal/feature"
	"github.com/MrWong99/visemesync/internal/hub"
	"github.com/MrWong99/visemesync/internal/timeline"
	"github.com/MrWong99/visemesync/internal/transition"
	"github.com/MrWong99/visemesync/pkg/audio"
	"github.com/MrWong99/visemesync/pkg/viseme"
)

// LogLevel controls log verbosity for the visemesync server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a [slog.Level]. Unknown values map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Variant names the text timeline expansion.
type Variant string

const (
	// VariantSimple emits one hold entry per viseme.
	VariantSimple Variant = "simple"

	// VariantThreePhase splits every viseme into opening, hold and closing.
	VariantThreePhase Variant = "three_phase"
)

// IsValid reports whether v is a recognised variant.
func (v Variant) IsValid() bool {
	return v == VariantSimple || v == VariantThreePhase
}

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr = ":8090"
	DefaultLogLevel   = LogInfo
)

// Config is the root configuration structure for visemesync.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Engine     EngineConfig     `yaml:"engine"`
	Audio      AudioConfig      `yaml:"audio"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Timeline   TimelineConfig   `yaml:"timeline"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP bridge listens on (e.g., ":8090").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// EngineConfig holds the animation clock settings.
type EngineConfig struct {
	// TickInterval is the animation frame period.
	TickInterval time.Duration `yaml:"tick_interval"`

	// TransitionDuration is the cross-fade length between visemes.
	TransitionDuration time.Duration `yaml:"transition_duration"`

	// FallbackText is spoken in text mode when an audio source is
	// unsupported. Empty disables the fallback.
	FallbackText string `yaml:"fallback_text"`
}

// AudioConfig tunes the stream analyser and the feature extractor.
type AudioConfig struct {
	// FFTSize is the analysis window in samples. Rounded up to a power of two.
	FFTSize int `yaml:"fft_size"`

	// Smoothing is the averaging constant applied to magnitudes, in [0, 1).
	Smoothing float64 `yaml:"smoothing"`

	// Gain multiplies the RMS before clamping to [0, 1].
	Gain float64 `yaml:"gain"`

	// SilenceThreshold is the amplitude that must be exceeded for speech.
	SilenceThreshold float64 `yaml:"silence_threshold"`
}

// ThresholdsConfig holds the audio classification rule constants.
type ThresholdsConfig struct {
	Silence          float64 `yaml:"silence"`
	WideOpen         float64 `yaml:"wide_open"`
	WideSmileHz      float64 `yaml:"wide_smile_hz"`
	SmallOpenHz      float64 `yaml:"small_open_hz"`
	RoundedHz        float64 `yaml:"rounded_hz"`
	RoundedAmplitude float64 `yaml:"rounded_amplitude"`
	PressedMin       float64 `yaml:"pressed_min"`
	PressedMax       float64 `yaml:"pressed_max"`
}

// TimelineConfig selects how text is expanded into a viseme timeline.
type TimelineConfig struct {
	// Variant is "simple" or "three_phase".
	Variant Variant `yaml:"variant"`

	// Durations overrides per-viseme durations, keyed by viseme name
	// (e.g. "wide_open"). Missing keys keep their default.
	Durations map[string]time.Duration `yaml:"durations"`

	// Phases is the opening/closing split of the three-phase variant.
	Phases PhasesConfig `yaml:"phases"`
}

// PhasesConfig holds the three-phase fractions. Hold receives the remainder.
type PhasesConfig struct {
	Opening float64 `yaml:"opening"`
	Closing float64 `yaml:"closing"`
}

// Default returns a Config with every default filled in.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. A thresholds
// block is replaced as a whole only when it is entirely absent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}

	if cfg.Engine.TickInterval == 0 {
		cfg.Engine.TickInterval = hub.DefaultTickInterval
	}
	if cfg.Engine.TransitionDuration == 0 {
		cfg.Engine.TransitionDuration = transition.DefaultDuration
	}

	if cfg.Audio.FFTSize == 0 {
		cfg.Audio.FFTSize = audio.DefaultFFTSize
	}
	if cfg.Audio.Smoothing == 0 {
		cfg.Audio.Smoothing = audio.DefaultSmoothing
	}
	if cfg.Audio.Gain == 0 {
		cfg.Audio.Gain = feature.DefaultGain
	}
	if cfg.Audio.SilenceThreshold == 0 {
		cfg.Audio.SilenceThreshold = feature.DefaultSilenceThreshold
	}

	if cfg.Thresholds == (ThresholdsConfig{}) {
		d := classify.DefaultThresholds()
		cfg.Thresholds = ThresholdsConfig{
			Silence:          d.Silence,
			WideOpen:         d.WideOpen,
			WideSmileHz:      d.WideSmileHz,
			SmallOpenHz:      d.SmallOpenHz,
			RoundedHz:        d.RoundedHz,
			RoundedAmplitude: d.RoundedAmplitude,
			PressedMin:       d.PressedMin,
			PressedMax:       d.PressedMax,
		}
	}

	if cfg.Timeline.Variant == "" {
		cfg.Timeline.Variant = VariantSimple
	}
	if cfg.Timeline.Phases == (PhasesConfig{}) {
		p := timeline.DefaultPhases()
		cfg.Timeline.Phases = PhasesConfig{Opening: p.Opening, Closing: p.Closing}
	}
}

// HubConfig converts the engine-related sections into a [hub.Config].
// Unknown duration keys are ignored; [Validate] rejects them on load.
func (c *Config) HubConfig() hub.Config {
	hc := hub.DefaultConfig()
	hc.TickInterval = c.Engine.TickInterval
	hc.TransitionDuration = c.Engine.TransitionDuration
	hc.FallbackText = c.Engine.FallbackText
	hc.Feature = feature.Config{
		Gain:             c.Audio.Gain,
		SilenceThreshold: c.Audio.SilenceThreshold,
	}
	t := c.Thresholds
	hc.Thresholds = classify.Thresholds{
		Silence:          t.Silence,
		WideOpen:         t.WideOpen,
		WideSmileHz:      t.WideSmileHz,
		SmallOpenHz:      t.SmallOpenHz,
		RoundedHz:        t.RoundedHz,
		RoundedAmplitude: t.RoundedAmplitude,
		PressedMin:       t.PressedMin,
		PressedMax:       t.PressedMax,
	}
	hc.Timeline = c.TimelineOptions()
	return hc
}

// TimelineOptions converts the timeline section into [timeline.Options].
func (c *Config) TimelineOptions() timeline.Options {
	opts := timeline.DefaultOptions()
	if c.Timeline.Variant == VariantThreePhase {
		opts.Variant = timeline.ThreePhase
	}
	for name, d := range c.Timeline.Durations {
		v, err := viseme.Parse(name)
		if err != nil || d <= 0 {
			continue
		}
		opts.Durations[v] = d
	}
	if c.Timeline.Phases != (PhasesConfig{}) {
		opts.Phases = timeline.Phases{Opening: c.Timeline.Phases.Opening, Closing: c.Timeline.Phases.Closing}
	}
	return opts
}

// AnalyserConfig returns the stream analyser settings for PCM decoded at
// sampleRate.
func (c *Config) AnalyserConfig(sampleRate int) audio.AnalyserConfig {
	return audio.AnalyserConfig{
		SampleRate: sampleRate,
		FFTSize:    c.Audio.FFTSize,
		Smoothing:  c.Audio.Smoothing,
	}
}

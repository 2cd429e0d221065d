package config_test

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/visemesync/internal/classify"
	"github.com/MrWong99/visemesync/internal/config"
	"github.com/MrWong99/visemesync/internal/hub"
	"github.com/MrWong99/visemesync/internal/timeline"
	"github.com/MrWong99/visemesync/pkg/audio"
	"github.com/MrWong99/visemesync/pkg/viseme"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug

engine:
  tick_interval: 16ms
  transition_duration: 80ms
  fallback_text: "hello"

audio:
  fft_size: 1024
  smoothing: 0.5
  gain: 3
  silence_threshold: 0.1

thresholds:
  silence: 0.04
  wide_open: 0.7
  wide_smile_hz: 2500
  small_open_hz: 900
  rounded_hz: 250
  rounded_amplitude: 0.25
  pressed_min: 0.1
  pressed_max: 0.3

timeline:
  variant: three_phase
  durations:
    wide_open: 200ms
    pucker: 150ms
  phases:
    opening: 0.2
    closing: 0.3
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Engine.TickInterval != 16*time.Millisecond {
		t.Errorf("tick_interval: got %s", cfg.Engine.TickInterval)
	}
	if cfg.Engine.TransitionDuration != 80*time.Millisecond {
		t.Errorf("transition_duration: got %s", cfg.Engine.TransitionDuration)
	}
	if cfg.Engine.FallbackText != "hello" {
		t.Errorf("fallback_text: got %q", cfg.Engine.FallbackText)
	}
	if cfg.Audio.FFTSize != 1024 || cfg.Audio.Smoothing != 0.5 {
		t.Errorf("audio: got %+v", cfg.Audio)
	}
	if cfg.Thresholds.WideSmileHz != 2500 {
		t.Errorf("thresholds.wide_smile_hz: got %v", cfg.Thresholds.WideSmileHz)
	}
	if cfg.Timeline.Variant != config.VariantThreePhase {
		t.Errorf("timeline.variant: got %q", cfg.Timeline.Variant)
	}
	if got := cfg.Timeline.Durations["wide_open"]; got != 200*time.Millisecond {
		t.Errorf("timeline.durations.wide_open: got %s", got)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Engine.TickInterval != hub.DefaultTickInterval {
		t.Errorf("tick_interval: got %s", cfg.Engine.TickInterval)
	}
	if cfg.Audio.FFTSize != audio.DefaultFFTSize {
		t.Errorf("fft_size: got %d", cfg.Audio.FFTSize)
	}
	if cfg.Timeline.Variant != config.VariantSimple {
		t.Errorf("variant: got %q", cfg.Timeline.Variant)
	}
	d := classify.DefaultThresholds()
	if cfg.Thresholds.WideOpen != d.WideOpen || cfg.Thresholds.PressedMax != d.PressedMax {
		t.Errorf("thresholds: got %+v", cfg.Thresholds)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("engine:\n  tick_rate: 10ms\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "tick_rate") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestLoadFromReader_BadDuration(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("engine:\n  tick_interval: soon\n"))
	if err == nil {
		t.Fatal("expected error for unparsable duration, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "visemesync.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}

// ── conversion ────────────────────────────────────────────────────────────────

func TestHubConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hc := cfg.HubConfig()

	if hc.TickInterval != 16*time.Millisecond {
		t.Errorf("TickInterval: got %s", hc.TickInterval)
	}
	if hc.TransitionDuration != 80*time.Millisecond {
		t.Errorf("TransitionDuration: got %s", hc.TransitionDuration)
	}
	if hc.FallbackText != "hello" {
		t.Errorf("FallbackText: got %q", hc.FallbackText)
	}
	if hc.Feature.Gain != 3 || hc.Feature.SilenceThreshold != 0.1 {
		t.Errorf("Feature: got %+v", hc.Feature)
	}
	want := classify.Thresholds{
		Silence: 0.04, WideOpen: 0.7, WideSmileHz: 2500, SmallOpenHz: 900,
		RoundedHz: 250, RoundedAmplitude: 0.25, PressedMin: 0.1, PressedMax: 0.3,
	}
	if hc.Thresholds != want {
		t.Errorf("Thresholds: got %+v, want %+v", hc.Thresholds, want)
	}
	if hc.Timeline.Variant != timeline.ThreePhase {
		t.Errorf("Timeline.Variant: got %s", hc.Timeline.Variant)
	}
	if got := hc.Timeline.Durations.For(viseme.WideOpen); got != 200*time.Millisecond {
		t.Errorf("wide_open duration: got %s", got)
	}
	if got, want := hc.Timeline.Durations.For(viseme.Rounded), timeline.DefaultDurations().For(viseme.Rounded); got != want {
		t.Errorf("rounded duration: got %s, want default %s", got, want)
	}
	if hc.Timeline.Phases != (timeline.Phases{Opening: 0.2, Closing: 0.3}) {
		t.Errorf("Phases: got %+v", hc.Timeline.Phases)
	}
}

func TestHubConfig_DefaultsMatchHub(t *testing.T) {
	t.Parallel()
	if got, want := config.Default().HubConfig(), hub.DefaultConfig(); got != want {
		t.Errorf("HubConfig() of defaults:\n got  %+v\n want %+v", got, want)
	}
}

func TestAnalyserConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	ac := cfg.AnalyserConfig(16000)
	if ac.SampleRate != 16000 || ac.FFTSize != audio.DefaultFFTSize || ac.Smoothing != audio.DefaultSmoothing {
		t.Errorf("AnalyserConfig: got %+v", ac)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level config.LogLevel
		want  bool
	}{
		{config.LogDebug, true},
		{config.LogInfo, true},
		{config.LogWarn, true},
		{config.LogError, true},
		{"trace", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := tc.level.IsValid(); got != tc.want {
			t.Errorf("LogLevel(%q).IsValid() = %v, want %v", tc.level, got, tc.want)
		}
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"bananas":       slog.LevelInfo,
	}
	for in, want := range tests {
		if got := in.Level(); got != want {
			t.Errorf("LogLevel(%q).Level() = %v, want %v", in, got, want)
		}
	}
}

func TestLoad_ExampleMatchesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "visemesync.example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if got, want := cfg.HubConfig(), hub.DefaultConfig(); got != want {
		t.Errorf("example HubConfig() = %+v\nwant defaults %+v", got, want)
	}
	if got, want := cfg.AnalyserConfig(48000), config.Default().AnalyserConfig(48000); got != want {
		t.Errorf("example AnalyserConfig() = %+v, want %+v", got, want)
	}
	if cfg.Server != config.Default().Server {
		t.Errorf("example Server = %+v, want %+v", cfg.Server, config.Default().Server)
	}
}

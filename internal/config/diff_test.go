package config_test

import (
	"testing"
	"time"

	"github.com/MrWong99/visemesync/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.EngineChanged {
		t.Error("expected EngineChanged=false")
	}
}

func TestDiff_EngineChanged(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"tick interval", func(c *config.Config) { c.Engine.TickInterval = 40 * time.Millisecond }},
		{"fallback text", func(c *config.Config) { c.Engine.FallbackText = "hi" }},
		{"threshold", func(c *config.Config) { c.Thresholds.WideOpen = 0.9 }},
		{"gain", func(c *config.Config) { c.Audio.Gain = 4 }},
		{"variant", func(c *config.Config) { c.Timeline.Variant = config.VariantThreePhase }},
		{"phases", func(c *config.Config) { c.Timeline.Phases.Opening = 0.1 }},
		{"duration override", func(c *config.Config) {
			c.Timeline.Durations = map[string]time.Duration{"rounded": 200 * time.Millisecond}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			new := config.Default()
			tc.mutate(new)

			d := config.Diff(old, new)
			if !d.EngineChanged {
				t.Error("expected EngineChanged=true")
			}
			if d.LogLevelChanged || d.AudioChanged || d.ListenAddrChanged {
				t.Errorf("unexpected side changes: %+v", d)
			}
		})
	}
}

func TestDiff_AudioChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Audio.FFTSize = 512

	d := config.Diff(old, new)
	if !d.AudioChanged {
		t.Error("expected AudioChanged=true")
	}
	if d.EngineChanged {
		t.Error("fft_size should not mark the engine changed")
	}
}

func TestDiff_ListenAddrChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.ListenAddr = ":9999"

	d := config.Diff(old, new)
	if !d.ListenAddrChanged || !d.Changed() {
		t.Errorf("expected ListenAddrChanged, got %+v", d)
	}
}

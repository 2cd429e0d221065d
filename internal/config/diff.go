package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// EngineChanged is true if any setting that feeds [Config.HubConfig]
	// changed. Applied to the hub, it takes effect from the next session.
	EngineChanged bool

	// AudioChanged is true if the stream analyser settings changed. Applied
	// to the next ingest connection.
	AudioChanged bool

	// ListenAddrChanged is true if server.listen_addr changed. This requires
	// a restart and is only reported.
	ListenAddrChanged bool
}

// Changed reports whether any tracked field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.EngineChanged || d.AudioChanged || d.ListenAddrChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.ListenAddrChanged = old.Server.ListenAddr != new.Server.ListenAddr

	if old.Engine != new.Engine ||
		old.Thresholds != new.Thresholds ||
		old.Audio.Gain != new.Audio.Gain ||
		old.Audio.SilenceThreshold != new.Audio.SilenceThreshold ||
		old.Timeline.Variant != new.Timeline.Variant ||
		old.Timeline.Phases != new.Timeline.Phases ||
		!maps.Equal(old.Timeline.Durations, new.Timeline.Durations) {
		d.EngineChanged = true
	}

	d.AudioChanged = old.Audio.FFTSize != new.Audio.FFTSize || old.Audio.Smoothing != new.Audio.Smoothing

	return d
}

package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything that
// feeds the session setup message instead raises SessionRestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DebounceChanged is set when the mute toggle debounce interval changed.
	DebounceChanged bool
	NewDebounce     MuteConfig

	// SessionRestartRequired is set when assistant identity, model, voice,
	// or instructions changed. These are transmitted at session setup and
	// cannot take effect mid-session.
	SessionRestartRequired bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart, plus a flag
// for changes that need a session reconnect.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Mute.Debounce != new.Mute.Debounce {
		d.DebounceChanged = true
		d.NewDebounce = new.Mute
	}

	if old.Assistant != new.Assistant {
		d.SessionRestartRequired = true
	}

	return d
}

package config

// ConfigDiff describes what changed between two configs.
//
// Only the log level can be applied to a running process; changes to the
// audio, VAD, live, or export sections take effect when the next voice
// session starts.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionSections lists the config sections whose changes apply to the
	// next session ("audio", "vad", "live", "export").
	SessionSections []string
}

// HasSessionChanges reports whether any section that affects voice sessions
// changed.
func (d ConfigDiff) HasSessionChanges() bool {
	return len(d.SessionSections) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Audio != new.Audio {
		d.SessionSections = append(d.SessionSections, "audio")
	}
	if old.VAD != new.VAD {
		d.SessionSections = append(d.SessionSections, "vad")
	}
	if old.Live != new.Live {
		d.SessionSections = append(d.SessionSections, "live")
	}
	if old.Export != new.Export {
		d.SessionSections = append(d.SessionSections, "export")
	}

	return d
}

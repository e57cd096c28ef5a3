package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is applied live by the server.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the changed sections that only take effect
	// after a restart, e.g. "providers.llm" or "capture".
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"server.log_format", old.Server.LogFormat, new.Server.LogFormat},
		{"server.tls", old.Server.TLS, new.Server.TLS},
		{"providers.stt", old.Providers.STT, new.Providers.STT},
		{"providers.llm", old.Providers.LLM, new.Providers.LLM},
		{"providers.tts", old.Providers.TTS, new.Providers.TTS},
		{"capture", old.Capture, new.Capture},
		{"playback", old.Playback, new.Playback},
		{"pipeline", old.Pipeline, new.Pipeline},
		{"journal", old.Journal, new.Journal},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}

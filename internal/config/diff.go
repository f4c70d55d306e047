package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked; everything
// else takes effect on the next start.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CallChanged is set when any default for new calls changed. Running
	// calls keep the settings they started with.
	CallChanged bool

	// RestartRequired lists the sections whose changes are ignored until the
	// process restarts.
	RestartRequired []string
}

// Changed reports whether anything changed at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.CallChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Call != new.Call {
		d.CallChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameProvider(old.Provider, new.Provider) {
		d.RestartRequired = append(d.RestartRequired, "provider")
	}
	if old.Knowledge != new.Knowledge {
		d.RestartRequired = append(d.RestartRequired, "knowledge")
	}
	if old.QuestionLog != new.QuestionLog {
		d.RestartRequired = append(d.RestartRequired, "question_log")
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameProvider(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL ||
		a.Model != b.Model || a.Voice != b.Voice {
		return false
	}
	if len(a.Options) == 0 && len(b.Options) == 0 {
		return true
	}
	return reflect.DeepEqual(a.Options, b.Options)
}

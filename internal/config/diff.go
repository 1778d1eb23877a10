package config

import "fmt"

// ConfigDiff describes what changed between two configs, split into changes
// that can be applied to a running server and changes that need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GuardChanged is true when any similarity guard threshold changed.
	GuardChanged bool

	// QueueChanged is true when batch size, interval, or staleness changed.
	QueueChanged bool

	// DictionaryChanged is true when the dictionary path or watch flag
	// changed.
	DictionaryChanged bool

	// RestartRequired lists config sections whose change cannot be applied
	// without a restart (providers, store, server listener).
	RestartRequired []string
}

// HotReloadable reports whether the diff contains any change a running
// server can apply.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.GuardChanged || d.QueueChanged || d.DictionaryChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Correction.Guard != new.Correction.Guard {
		d.GuardChanged = true
	}
	if old.Queue != new.Queue {
		d.QueueChanged = true
	}
	if old.Dictionary != new.Dictionary {
		d.DictionaryChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Correction.Mode != new.Correction.Mode {
		d.RestartRequired = append(d.RestartRequired, "correction.mode")
	}
	if old.Correction.Temperature != new.Correction.Temperature {
		d.RestartRequired = append(d.RestartRequired, "correction.temperature")
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.ASR.Primary, b.ASR.Primary) &&
		entryEqual(a.ASR.Secondary, b.ASR.Secondary) &&
		a.ASR.Language == b.ASR.Language &&
		entryEqual(a.Merge, b.Merge) &&
		entryEqual(a.Correction, b.Correction)
}

// entryEqual compares provider entries ignoring the free-form Options map:
// option-only changes still require a provider rebuild, so a changed map
// counts as unequal.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	// Options values may be nested maps; fmt prints maps with sorted keys,
	// so the string form is a stable comparison key.
	for k, v := range a.Options {
		bv, ok := b.Options[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}

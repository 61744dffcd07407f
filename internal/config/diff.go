package config

import (
	"fmt"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only the log level and the glossary are applied without a restart; other
// changes are listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	GlossaryChanged bool
	NewGlossary     []string

	// RestartRequired names the changed sections that only take effect on
	// the next start (e.g., "providers.llm").
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.GlossaryChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Dictation.Glossary, new.Dictation.Glossary) {
		d.GlossaryChanged = true
		d.NewGlossary = slices.Clone(new.Dictation.Glossary)
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.APIKeyHash != new.Server.APIKeyHash ||
		!equalTLS(old.Server.TLS, new.Server.TLS) ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !equalEntry(old.Providers.STT, new.Providers.STT) {
		d.RestartRequired = append(d.RestartRequired, "providers.stt")
	}
	if !equalEntry(old.Providers.LLM, new.Providers.LLM) {
		d.RestartRequired = append(d.RestartRequired, "providers.llm")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if !equalDictation(old.Dictation, new.Dictation) {
		d.RestartRequired = append(d.RestartRequired, "dictation")
	}
	if old.Document != new.Document {
		d.RestartRequired = append(d.RestartRequired, "document")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}

	return d
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// equalEntry compares provider entries. Options are compared by key set and
// string form only.
func equalEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(w) {
			return false
		}
	}
	return true
}

// equalDictation compares everything but the glossary.
func equalDictation(a, b DictationConfig) bool {
	return a.DefaultSex == b.DefaultSex &&
		a.Language == b.Language &&
		a.PhoneticThreshold == b.PhoneticThreshold &&
		a.FuzzyThreshold == b.FuzzyThreshold &&
		a.MaxAudioBytes == b.MaxAudioBytes &&
		a.Timeout == b.Timeout &&
		a.Temperature == b.Temperature &&
		a.MaxTokens == b.MaxTokens
}

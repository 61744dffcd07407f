package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/cystoscribe/internal/generate"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr    = ":8080"
	DefaultSQLitePath    = "data/cystoscribe.db"
	DefaultLanguage      = "es"
	DefaultMaxAudioBytes = 25 << 20
	DefaultMaxFailures   = 5
	DefaultResetTimeout  = 30 * time.Second
	DefaultMCPPath       = "/mcp"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"worker", "whisper", "openai", "deepgram", "mock"},
	"llm": {"worker", "openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "mock"},
}

// baseURLRequired lists providers that cannot fall back to a vendor endpoint.
var baseURLRequired = map[string][]string{
	"stt": {"worker", "whisper"},
	"llm": {"worker"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageSQLite
	}
	if cfg.Storage.Driver == StorageSQLite && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = DefaultSQLitePath
	}
	if cfg.Dictation.DefaultSex == "" {
		cfg.Dictation.DefaultSex = string(generate.SexMale)
	}
	if cfg.Dictation.Language == "" {
		cfg.Dictation.Language = DefaultLanguage
	}
	if cfg.Dictation.MaxAudioBytes == 0 {
		cfg.Dictation.MaxAudioBytes = DefaultMaxAudioBytes
	}
	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultResetTimeout
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.APIKeyHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.Server.APIKeyHash)); err != nil {
			errs = append(errs, fmt.Errorf("server.api_key_hash is not a bcrypt hash: %w", err))
		}
	}

	// Providers
	errs = append(errs, validateProvider("stt", cfg.Providers.STT)...)
	errs = append(errs, validateProvider("llm", cfg.Providers.LLM)...)

	// Storage
	if cfg.Storage.Driver != "" && !cfg.Storage.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: sqlite, postgres", cfg.Storage.Driver))
	}
	if cfg.Storage.Driver == StoragePostgres && cfg.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required when driver is postgres"))
	}

	// Dictation
	d := cfg.Dictation
	if _, err := generate.ParseSex(d.DefaultSex); err != nil {
		errs = append(errs, fmt.Errorf("dictation.default_sex: %w", err))
	}
	if d.MaxAudioBytes < 0 {
		errs = append(errs, fmt.Errorf("dictation.max_audio_bytes %d must not be negative", d.MaxAudioBytes))
	}
	if d.Timeout < 0 {
		errs = append(errs, fmt.Errorf("dictation.timeout %s must not be negative", d.Timeout))
	}
	if d.PhoneticThreshold < 0 || d.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("dictation.phonetic_threshold %.2f is out of range [0, 1]", d.PhoneticThreshold))
	}
	if d.FuzzyThreshold < 0 || d.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("dictation.fuzzy_threshold %.2f is out of range [0, 1]", d.FuzzyThreshold))
	}
	if d.Temperature < 0 || d.Temperature > 2 {
		errs = append(errs, fmt.Errorf("dictation.temperature %.2f is out of range [0, 2]", d.Temperature))
	}
	if d.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("dictation.max_tokens %d must not be negative", d.MaxTokens))
	}
	for i, term := range d.Glossary {
		if strings.TrimSpace(term) == "" {
			errs = append(errs, fmt.Errorf("dictation.glossary[%d] is empty", i))
		}
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}

	// MCP
	if cfg.MCP.Enabled && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}

	return errors.Join(errs...)
}

func validateProvider(kind string, e ProviderEntry) []error {
	prefix := "providers." + kind
	if e.Name == "" {
		return []error{fmt.Errorf("%s.name is required", prefix)}
	}
	validateProviderName(kind, e.Name)

	var errs []error
	if slices.Contains(baseURLRequired[kind], e.Name) && e.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s.base_url is required for provider %q", prefix, e.Name))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr": {"whisperx", "openai"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Providers
	validateProviderName("asr", cfg.Providers.ASR.Primary.Name)
	validateProviderName("asr", cfg.Providers.ASR.Secondary.Name)
	validateProviderName("llm", cfg.Providers.Merge.Name)
	validateProviderName("llm", cfg.Providers.Correction.Name)

	if cfg.Providers.ASR.Primary.Name == "" {
		errs = append(errs, errors.New("providers.asr.primary is required"))
	}
	if cfg.Providers.Correction.Name == "" {
		errs = append(errs, errors.New("providers.correction is required"))
	}
	if cfg.Providers.ASR.Secondary.Name == "" {
		slog.Warn("providers.asr.secondary is not configured; double-precision dictations will fail and no transcription fallback is available")
	} else if cfg.Providers.ASR.Secondary.Name == cfg.Providers.ASR.Primary.Name &&
		cfg.Providers.ASR.Secondary.BaseURL == cfg.Providers.ASR.Primary.BaseURL {
		slog.Warn("providers.asr.secondary matches the primary; double-precision reconciliation needs independent engines to be useful")
	}
	if cfg.Providers.ASR.Secondary.Name != "" && cfg.Providers.Merge.Name == "" {
		errs = append(errs, errors.New("providers.merge is required when providers.asr.secondary is configured"))
	}

	// Store
	if cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required"))
	}

	// Queue
	if cfg.Queue.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("queue.batch_size %d must be at least 1", cfg.Queue.BatchSize))
	}
	if cfg.Queue.Interval < 0 {
		errs = append(errs, fmt.Errorf("queue.interval %s must not be negative", cfg.Queue.Interval))
	}
	if cfg.Queue.StaleAfter < 0 {
		errs = append(errs, fmt.Errorf("queue.stale_after %s must not be negative", cfg.Queue.StaleAfter))
	}

	// Correction
	if m := cfg.Correction.Mode; m != CorrectionModeFull && m != CorrectionModeTerminology {
		errs = append(errs, fmt.Errorf("correction.mode %q must be %q or %q", m, CorrectionModeFull, CorrectionModeTerminology))
	}
	if cfg.Correction.Temperature < 0 || cfg.Correction.Temperature > 2 {
		errs = append(errs, fmt.Errorf("correction.temperature %.2f is out of range [0, 2]", cfg.Correction.Temperature))
	}
	g := cfg.Correction.Guard
	if g.MinJaccard < 0 || g.MinJaccard > 1 {
		errs = append(errs, fmt.Errorf("correction.guard.min_jaccard %.2f is out of range [0, 1]", g.MinJaccard))
	}
	if g.MinLengthRatio < 0 || g.MaxLengthRatio < g.MinLengthRatio {
		errs = append(errs, fmt.Errorf("correction.guard length ratios [%.2f, %.2f] are not an ascending non-negative range", g.MinLengthRatio, g.MaxLengthRatio))
	}

	// Dictionary
	if cfg.Dictionary.Watch && cfg.Dictionary.Path == "" {
		errs = append(errs, errors.New("dictionary.watch requires dictionary.path"))
	}

	return errors.Join(errs...)
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
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

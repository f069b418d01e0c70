package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidScoreProviders lists the provider names the scorecard layer can
// construct. Used by [Validate] to warn about unrecognised names.
var ValidScoreProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq",
	"llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
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

	// Auth
	if cfg.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	if d := time.Duration(cfg.Auth.APITokenTTL); d < 0 {
		errs = append(errs, fmt.Errorf("auth.api_token_ttl %s must not be negative", d))
	}

	// Infrastructure availability warnings
	if cfg.Postgres.DSN == "" {
		slog.Warn("postgres.dsn is empty; interviews will be stored in memory and lost on restart")
	}
	if cfg.Redis.Addr == "" {
		slog.Warn("redis.addr is empty; rate limits and live token redemption will not be shared across instances")
	}

	// Score providers
	validateScoreProvider("providers.score.primary", cfg.Providers.Score.Primary, &errs)
	for i, entry := range cfg.Providers.Score.Fallbacks {
		validateScoreProvider(fmt.Sprintf("providers.score.fallbacks[%d]", i), entry, &errs)
	}

	// Live provider
	if cfg.Providers.Live.APIKey == "" {
		slog.Warn("providers.live.api_key is empty; live voice sessions will be unavailable")
	}

	// Limits
	validatePolicy("limits.mutation", cfg.Limits.Mutation, &errs)
	validatePolicy("limits.poll", cfg.Limits.Poll, &errs)

	// Audio
	if s := cfg.Audio.VADSensitivity; s < 0 || s > 100 {
		errs = append(errs, fmt.Errorf("audio.vad_sensitivity %d is out of range [1, 100]", s))
	}

	return errors.Join(errs...)
}

// validateScoreProvider checks one score provider entry. A missing primary is
// an error; unknown names only warn so third-party gateways keep working.
func validateScoreProvider(prefix string, entry ProviderEntry, errs *[]error) {
	if entry.Name == "" {
		if prefix == "providers.score.primary" {
			*errs = append(*errs, errors.New("providers.score.primary.name is required"))
		} else {
			*errs = append(*errs, fmt.Errorf("%s.name is required", prefix))
		}
		return
	}
	if entry.Model == "" {
		*errs = append(*errs, fmt.Errorf("%s.model is required", prefix))
	}
	if !slices.Contains(ValidScoreProviders, entry.Name) {
		slog.Warn("unknown score provider name; may be a typo or third-party provider",
			"entry", prefix,
			"name", entry.Name,
			"known", ValidScoreProviders,
		)
	}
}

// validatePolicy checks one rate limit block. Both fields must be set
// together; a fully zero block means "use defaults".
func validatePolicy(prefix string, p PolicyConfig, errs *[]error) {
	if p.Requests == 0 && p.Window == 0 {
		return
	}
	if p.Requests <= 0 {
		*errs = append(*errs, fmt.Errorf("%s.requests must be positive", prefix))
	}
	if p.Window <= 0 {
		*errs = append(*errs, fmt.Errorf("%s.window must be positive", prefix))
	}
}

// SlogLevel maps the configured log level onto slog's scale. Empty or
// unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.Server.LogLevel {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

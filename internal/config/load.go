package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// CLIOverrides holds values from command-line flags. Empty means unset.
type CLIOverrides struct {
	ConfigPath string // --config
	TenantID   string // --tenant
	ClientID   string // --client-id
	Org        string // --org
}

// Resolved is the effective configuration after every layer has been
// applied, with durations parsed and the token cache path filled in.
type Resolved struct {
	ConfigPath string

	TenantID          string
	ClientID          string
	ClientSecret      string
	Authority         string
	TokenCachePath    string
	TokenCacheBackend string
	InteractiveFlow   string

	Org        string
	APIVersion string

	MaxAttempts       int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	RateBurst         int
	UserAgent         string

	LoggingConfig
	QueryConfig
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain. The config
// path comes from CLI > env > default. Identity fields (tenant, client,
// secret, org, authority, cache path) come from CLI > file > env, so an
// explicit config file wins over ambient environment variables.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	cfgPath := firstNonEmpty(cli.ConfigPath, env.ConfigPath, DefaultConfigPath())

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("config loaded", slog.String("path", cfgPath))

	cfg.TenantID = firstNonEmpty(cli.TenantID, cfg.TenantID, env.TenantID)
	cfg.ClientID = firstNonEmpty(cli.ClientID, cfg.ClientID, env.ClientID)
	cfg.ClientSecret = firstNonEmpty(cfg.ClientSecret, env.ClientSecret)
	cfg.Org = firstNonEmpty(cli.Org, cfg.Org, env.Org)
	cfg.Authority = firstNonEmpty(cfg.Authority, env.Authority)
	cfg.TokenCachePath = firstNonEmpty(cfg.TokenCachePath, env.TokenCachePath)

	// Env values bypass Load's validation.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return buildResolved(cfgPath, cfg)
}

func buildResolved(cfgPath string, cfg *Config) (*Resolved, error) {
	// Durations were validated, so parse errors cannot occur here.
	base, err := time.ParseDuration(cfg.BaseBackoff)
	if err != nil {
		return nil, fmt.Errorf("base_backoff: %w", err)
	}

	maxBackoff, err := time.ParseDuration(cfg.MaxBackoff)
	if err != nil {
		return nil, fmt.Errorf("max_backoff: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("request_timeout: %w", err)
	}

	cachePath := cfg.TokenCachePath
	if cachePath == "" {
		cachePath = DefaultTokenCachePath(cfg.TokenCacheBackend)
	}

	return &Resolved{
		ConfigPath:        cfgPath,
		TenantID:          cfg.TenantID,
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		Authority:         cfg.Authority,
		TokenCachePath:    cachePath,
		TokenCacheBackend: cfg.TokenCacheBackend,
		InteractiveFlow:   cfg.InteractiveFlow,
		Org:               cfg.Org,
		APIVersion:        cfg.APIVersion,
		MaxAttempts:       cfg.MaxAttempts,
		BaseBackoff:       base,
		MaxBackoff:        maxBackoff,
		RequestTimeout:    timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		RateBurst:         cfg.RateBurst,
		UserAgent:         cfg.UserAgent,
		LoggingConfig:     cfg.LoggingConfig,
		QueryConfig:       cfg.QueryConfig,
	}, nil
}

// DefaultTokenCachePath returns the token cache location inside
// DefaultDataDir for the given backend.
func DefaultTokenCachePath(backend string) string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	if backend == BackendSQLite {
		return filepath.Join(dir, tokenCacheFileSQLite)
	}

	return filepath.Join(dir, tokenCacheFileJSON)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

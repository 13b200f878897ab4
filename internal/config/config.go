// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for dataverse-go. Values are layered
// defaults -> config file -> environment -> CLI flags, except for identity
// settings where the environment acts as a fallback beneath the file.
package config

// Config is the top-level configuration structure parsed from a TOML file.
// All keys are flat; the embedded sub-configs only group related fields.
type Config struct {
	AuthConfig
	DataverseConfig
	NetworkConfig
	LoggingConfig
	QueryConfig
}

// AuthConfig identifies the Entra ID application and where its tokens live.
type AuthConfig struct {
	TenantID          string `toml:"tenant_id"`
	ClientID          string `toml:"client_id"`
	ClientSecret      string `toml:"client_secret"`
	Authority         string `toml:"authority"`
	TokenCachePath    string `toml:"token_cache_path"`
	TokenCacheBackend string `toml:"token_cache_backend"`
	InteractiveFlow   string `toml:"interactive_flow"`
}

// DataverseConfig selects the environment and Web API version.
type DataverseConfig struct {
	Org        string `toml:"org"`
	APIVersion string `toml:"api_version"`
}

// NetworkConfig controls retries, pacing, and per-request timeouts.
type NetworkConfig struct {
	MaxAttempts       int     `toml:"max_attempts"`
	BaseBackoff       string  `toml:"base_backoff"`
	MaxBackoff        string  `toml:"max_backoff"`
	RequestTimeout    string  `toml:"request_timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	RateBurst         int     `toml:"rate_burst"`
	UserAgent         string  `toml:"user_agent"`
}

// LoggingConfig controls log verbosity and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// QueryConfig bounds collection queries. Zero means no limit / server default.
type QueryConfig struct {
	MaxPages    int `toml:"max_pages"`
	MaxPageSize int `toml:"max_page_size"`
}

package config

// Token cache backends and interactive flows accepted in the config file.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	FlowDeviceCode = "device_code"
	FlowBrowser    = "browser"
)

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultAPIVersion        = "9.2"
	defaultTokenCacheBackend = BackendFile
	defaultInteractiveFlow   = FlowDeviceCode
	defaultMaxAttempts       = 3
	defaultBaseBackoff       = "1s"
	defaultMaxBackoff        = "60s"
	defaultRequestTimeout    = "0"
	defaultUserAgent         = "dataverse-go/0.1"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
)

// Token cache file names inside DefaultDataDir.
const (
	tokenCacheFileJSON   = "token_cache.json"
	tokenCacheFileSQLite = "token_cache.db"
)

// DefaultConfig returns a Config populated with all default values.
// It is both the starting point for TOML decoding (so unset fields keep
// their defaults) and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		AuthConfig: AuthConfig{
			TokenCacheBackend: defaultTokenCacheBackend,
			InteractiveFlow:   defaultInteractiveFlow,
		},
		DataverseConfig: DataverseConfig{
			APIVersion: defaultAPIVersion,
		},
		NetworkConfig: NetworkConfig{
			MaxAttempts:    defaultMaxAttempts,
			BaseBackoff:    defaultBaseBackoff,
			MaxBackoff:     defaultMaxBackoff,
			RequestTimeout: defaultRequestTimeout,
			UserAgent:      defaultUserAgent,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}

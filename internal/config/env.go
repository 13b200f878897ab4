package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Environment variable names for overrides.
const (
	EnvConfig         = "DATAVERSE_GO_CONFIG"
	EnvTenantID       = "TENANT_ID"
	EnvClientID       = "CLIENT_ID"
	EnvClientSecret   = "CLIENT_SECRET"
	EnvOrg            = "DATAVERSE_ORG"
	EnvAuthority      = "AUTHORITY"
	EnvTokenCachePath = "TOKEN_CACHE_PATH"
)

// EnvOverrides holds values read from the process environment.
// Callers apply them through Resolve; the Config itself is never mutated.
type EnvOverrides struct {
	ConfigPath     string `env:"DATAVERSE_GO_CONFIG"`
	TenantID       string `env:"TENANT_ID"`
	ClientID       string `env:"CLIENT_ID"`
	ClientSecret   string `env:"CLIENT_SECRET"`
	Org            string `env:"DATAVERSE_ORG"`
	Authority      string `env:"AUTHORITY"`
	TokenCachePath string `env:"TOKEN_CACHE_PATH"`
}

// ReadEnvOverrides reads the override variables from the OS environment.
func ReadEnvOverrides(ctx context.Context) (EnvOverrides, error) {
	return readEnvOverrides(ctx, nil)
}

// readEnvOverrides reads from lookup, or the OS environment when lookup is nil.
func readEnvOverrides(ctx context.Context, lookup envconfig.Lookuper) (EnvOverrides, error) {
	var env EnvOverrides

	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &env,
		Lookuper: lookup,
	})
	if err != nil {
		return EnvOverrides{}, fmt.Errorf("reading environment: %w", err)
	}

	return env, nil
}

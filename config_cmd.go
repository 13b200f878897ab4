package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/dataverse-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

// configOutput is the structured form of `config show`. The client secret
// is reported only as present or absent.
type configOutput struct {
	ConfigPath        string  `json:"config_path" yaml:"config_path"`
	TenantID          string  `json:"tenant_id" yaml:"tenant_id"`
	ClientID          string  `json:"client_id" yaml:"client_id"`
	ClientSecretSet   bool    `json:"client_secret_set" yaml:"client_secret_set"`
	Authority         string  `json:"authority,omitempty" yaml:"authority,omitempty"`
	TokenCachePath    string  `json:"token_cache_path" yaml:"token_cache_path"`
	TokenCacheBackend string  `json:"token_cache_backend" yaml:"token_cache_backend"`
	InteractiveFlow   string  `json:"interactive_flow" yaml:"interactive_flow"`
	Org               string  `json:"org" yaml:"org"`
	APIVersion        string  `json:"api_version" yaml:"api_version"`
	MaxAttempts       int     `json:"max_attempts" yaml:"max_attempts"`
	BaseBackoff       string  `json:"base_backoff" yaml:"base_backoff"`
	MaxBackoff        string  `json:"max_backoff" yaml:"max_backoff"`
	RequestTimeout    string  `json:"request_timeout" yaml:"request_timeout"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	RateBurst         int     `json:"rate_burst" yaml:"rate_burst"`
	UserAgent         string  `json:"user_agent" yaml:"user_agent"`
	LogLevel          string  `json:"log_level" yaml:"log_level"`
	LogFormat         string  `json:"log_format" yaml:"log_format"`
	MaxPages          int     `json:"max_pages" yaml:"max_pages"`
	MaxPageSize       int     `json:"max_page_size" yaml:"max_page_size"`
}

func newConfigOutput(r *config.Resolved) configOutput {
	return configOutput{
		ConfigPath:        r.ConfigPath,
		TenantID:          r.TenantID,
		ClientID:          r.ClientID,
		ClientSecretSet:   r.ClientSecret != "",
		Authority:         r.Authority,
		TokenCachePath:    r.TokenCachePath,
		TokenCacheBackend: r.TokenCacheBackend,
		InteractiveFlow:   r.InteractiveFlow,
		Org:               r.Org,
		APIVersion:        r.APIVersion,
		MaxAttempts:       r.MaxAttempts,
		BaseBackoff:       r.BaseBackoff.String(),
		MaxBackoff:        r.MaxBackoff.String(),
		RequestTimeout:    r.RequestTimeout.String(),
		RequestsPerSecond: r.RequestsPerSecond,
		RateBurst:         r.RateBurst,
		UserAgent:         r.UserAgent,
		LogLevel:          r.LogLevel,
		LogFormat:         r.LogFormat,
		MaxPages:          r.MaxPages,
		MaxPageSize:       r.MaxPageSize,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if done, err := writeStructured(cmd.OutOrStdout(), cc.Flags.Output, newConfigOutput(cc.Cfg)); done {
		return err
	}

	return config.RenderEffective(cc.Cfg, cmd.OutOrStdout())
}

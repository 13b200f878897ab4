package config

import (
	"fmt"
	"io"
)

const redacted = "<redacted>"

// RenderEffective writes the resolved configuration as an annotated,
// TOML-shaped summary to w. The client secret is never printed.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	renderAuthSection(ew, r)
	renderDataverseSection(ew, r)
	renderNetworkSection(ew, r)
	renderLoggingSection(ew, &r.LoggingConfig)
	renderQuerySection(ew, &r.QueryConfig)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Later writes are no-ops, so callers can chain printf calls.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderAuthSection(ew *errWriter, r *Resolved) {
	ew.printf("[auth]\n")
	ew.printf("  tenant_id           = %q\n", r.TenantID)
	ew.printf("  client_id           = %q\n", r.ClientID)

	if r.ClientSecret != "" {
		ew.printf("  client_secret       = %q\n", redacted)
	}

	if r.Authority != "" {
		ew.printf("  authority           = %q\n", r.Authority)
	}

	ew.printf("  token_cache_path    = %q\n", r.TokenCachePath)
	ew.printf("  token_cache_backend = %q\n", r.TokenCacheBackend)
	ew.printf("  interactive_flow    = %q\n", r.InteractiveFlow)
	ew.printf("\n")
}

func renderDataverseSection(ew *errWriter, r *Resolved) {
	ew.printf("[dataverse]\n")
	ew.printf("  org         = %q\n", r.Org)
	ew.printf("  api_version = %q\n", r.APIVersion)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, r *Resolved) {
	ew.printf("[network]\n")
	ew.printf("  max_attempts        = %d\n", r.MaxAttempts)
	ew.printf("  base_backoff        = %q\n", r.BaseBackoff)
	ew.printf("  max_backoff         = %q\n", r.MaxBackoff)
	ew.printf("  request_timeout     = %q\n", r.RequestTimeout)
	ew.printf("  requests_per_second = %g\n", r.RequestsPerSecond)
	ew.printf("  rate_burst          = %d\n", r.RateBurst)
	ew.printf("  user_agent          = %q\n", r.UserAgent)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderQuerySection(ew *errWriter, q *QueryConfig) {
	ew.printf("[query]\n")
	ew.printf("  max_pages     = %d\n", q.MaxPages)
	ew.printf("  max_page_size = %d\n", q.MaxPageSize)
}

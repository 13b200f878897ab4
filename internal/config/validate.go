package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	minMaxAttempts = 1
	maxMaxAttempts = 10
	minBackoff     = 10 * time.Millisecond
	maxPageSizeCap = 5000
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"auto", "text", "json"}
)

// problems collects every validation failure so one run reports them all.
type problems []error

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Errorf(format, args...))
}

func (p *problems) oneOf(key, value string, allowed ...string) {
	if !slices.Contains(allowed, value) {
		p.addf("%s: must be one of %s; got %q", key, strings.Join(allowed, ", "), value)
	}
}

// duration parses value and checks it against floor. ok is false when the
// value is unusable so dependent checks can be skipped.
func (p *problems) duration(key, value string, floor time.Duration) (d time.Duration, ok bool) {
	d, err := time.ParseDuration(value)
	if err != nil {
		p.addf("%s: invalid duration %q: %v", key, value, err)
		return 0, false
	}

	if d < floor {
		p.addf("%s: must be >= %s, got %s", key, floor, d)
		return d, false
	}

	return d, true
}

// Validate reports every invalid value in cfg, joined into one error.
func Validate(cfg *Config) error {
	var p problems

	p.checkAuth(&cfg.AuthConfig)
	p.checkDataverse(&cfg.DataverseConfig)
	p.checkNetwork(&cfg.NetworkConfig)
	p.checkLogging(&cfg.LoggingConfig)
	p.checkQuery(&cfg.QueryConfig)

	return errors.Join(p...)
}

func (p *problems) checkAuth(a *AuthConfig) {
	p.oneOf("token_cache_backend", a.TokenCacheBackend, BackendFile, BackendSQLite)
	p.oneOf("interactive_flow", a.InteractiveFlow, FlowDeviceCode, FlowBrowser)

	if a.Authority != "" && !strings.HasPrefix(a.Authority, "https://") {
		p.addf("authority: must be an https URL, got %q", a.Authority)
	}
}

func (p *problems) checkDataverse(d *DataverseConfig) {
	switch {
	case d.APIVersion == "":
		p.addf("api_version: must not be empty")
	case strings.ContainsAny(d.APIVersion, "/ "):
		p.addf("api_version: invalid version %q", d.APIVersion)
	}
}

func (p *problems) checkNetwork(n *NetworkConfig) {
	if n.MaxAttempts < minMaxAttempts || n.MaxAttempts > maxMaxAttempts {
		p.addf("max_attempts: must be between %d and %d, got %d", minMaxAttempts, maxMaxAttempts, n.MaxAttempts)
	}

	base, baseOK := p.duration("base_backoff", n.BaseBackoff, minBackoff)
	ceiling, ceilingOK := p.duration("max_backoff", n.MaxBackoff, minBackoff)

	if baseOK && ceilingOK && ceiling < base {
		p.addf("max_backoff: must be >= base_backoff (%s), got %s", base, ceiling)
	}

	p.duration("request_timeout", n.RequestTimeout, 0)

	switch {
	case n.RequestsPerSecond < 0:
		p.addf("requests_per_second: must be >= 0, got %g", n.RequestsPerSecond)
	case n.RequestsPerSecond > 0 && n.RateBurst < 1:
		p.addf("rate_burst: must be >= 1 when requests_per_second is set, got %d", n.RateBurst)
	}
}

func (p *problems) checkLogging(l *LoggingConfig) {
	p.oneOf("log_level", l.LogLevel, logLevels...)
	p.oneOf("log_format", l.LogFormat, logFormats...)
}

func (p *problems) checkQuery(q *QueryConfig) {
	if q.MaxPages < 0 {
		p.addf("max_pages: must be >= 0, got %d", q.MaxPages)
	}

	if q.MaxPageSize < 0 || q.MaxPageSize > maxPageSizeCap {
		p.addf("max_page_size: must be between 0 and %d, got %d", maxPageSizeCap, q.MaxPageSize)
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tonimelisma/dataverse-go/internal/auth"
	"github.com/tonimelisma/dataverse-go/internal/config"
	"github.com/tonimelisma/dataverse-go/internal/dataverse"
	"github.com/tonimelisma/dataverse-go/internal/tokencache"
)

// Session holds the token provider and Web API client for one command run.
// Close must be called to persist the token cache.
type Session struct {
	Provider *auth.Provider
	Client   *dataverse.Client

	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewSession wires the token cache store, the token provider, and the Web API
// client from resolved configuration.
func NewSession(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*Session, error) {
	resourceURL, err := dataverse.ResourceURL(cfg.Org)
	if err != nil {
		return nil, fmt.Errorf("%w (set org in the config file, DATAVERSE_ORG, or --org)", err)
	}

	baseURL, err := dataverse.BaseURL(cfg.Org, cfg.APIVersion)
	if err != nil {
		return nil, err
	}

	httpClient := newHTTPClient(cfg)

	provider, err := openProvider(ctx, cfg, resourceURL, httpClient, logger)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()

	opts := []dataverse.Option{
		dataverse.WithUserAgent(cfg.UserAgent),
		dataverse.WithMaxAttempts(cfg.MaxAttempts),
		dataverse.WithBackoff(cfg.BaseBackoff, cfg.MaxBackoff),
		dataverse.WithMetrics(dataverse.NewMetrics(reg)),
	}

	if cfg.RequestsPerSecond > 0 {
		opts = append(opts, dataverse.WithRateLimit(cfg.RequestsPerSecond, cfg.RateBurst))
	}

	logger.Debug("session ready",
		slog.String("base_url", baseURL),
		slog.String("resource", resourceURL),
		slog.String("cache_backend", cfg.TokenCacheBackend),
		slog.Bool("confidential", cfg.ClientSecret != ""),
	)

	return &Session{
		Provider: provider,
		Client:   dataverse.NewClient(baseURL, httpClient, provider, logger, opts...),
		registry: reg,
		logger:   logger,
	}, nil
}

// openProvider opens the configured token cache store and builds a Provider
// for resourceURL. resourceURL may be empty for commands that only manage
// the cache.
func openProvider(
	ctx context.Context, cfg *config.Resolved, resourceURL string, httpClient *http.Client, logger *slog.Logger,
) (*auth.Provider, error) {
	store, err := tokencache.Open(ctx, tokencache.Backend(cfg.TokenCacheBackend), cfg.TokenCachePath, cfg.ClientID, logger)
	if err != nil {
		return nil, fmt.Errorf("opening token cache: %w", err)
	}

	creds := auth.Credentials{
		TenantID:     cfg.TenantID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Authority:    cfg.Authority,
		ResourceURL:  resourceURL,
	}

	return auth.NewProvider(ctx, creds, store,
		auth.WithInteractiveFlow(interactiveFlow(cfg.InteractiveFlow)),
		auth.WithHTTPClient(httpClient),
		auth.WithLogger(logger),
	), nil
}

// Close logs request totals at debug level and flushes the token cache.
func (s *Session) Close() error {
	s.logRequestTotals()

	return s.Provider.Close()
}

func (s *Session) logRequestTotals() {
	if !s.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	families, err := s.registry.Gather()
	if err != nil {
		s.logger.Debug("gathering metrics failed", slog.String("error", err.Error()))
		return
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}

			attrs := []any{slog.String("metric", mf.GetName()), slog.Float64("value", m.GetCounter().GetValue())}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, slog.String(lp.GetName(), lp.GetValue()))
			}

			s.logger.Debug("request totals", attrs...)
		}
	}
}

// newHTTPClient returns an instrumented client shared by token endpoint and
// Web API calls. A zero request timeout leaves requests bounded only by the
// command context.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.RequestTimeout,
	}
}

func interactiveFlow(name string) auth.InteractiveFlow {
	if name == config.FlowBrowser {
		return &auth.BrowserFlow{}
	}

	return &auth.DeviceCodeFlow{Display: func(da auth.DeviceAuth) {
		// Always shown, even with --quiet: the user must act on it.
		fmt.Fprintf(os.Stderr, "To sign in, visit: %s\nEnter code: %s\n", da.VerificationURI, da.UserCode)
	}}
}

// withSession opens a Session for the duration of fn.
func withSession(ctx context.Context, cc *CLIContext, fn func(*Session) error) error {
	s, err := NewSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	// Deferred so the token cache is flushed even if fn panics.
	defer func() {
		if err := s.Close(); err != nil {
			cc.Logger.Warn("closing session", slog.String("error", err.Error()))
		}
	}()

	return fn(s)
}

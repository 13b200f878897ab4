package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/dataverse-go/internal/auth"
	"github.com/tonimelisma/dataverse-go/internal/config"
	"github.com/tonimelisma/dataverse-go/internal/dataverse"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testResolvedConfig(t *testing.T, backend string) *config.Resolved {
	t.Helper()

	ext := ".json"
	if backend == config.BackendSQLite {
		ext = ".db"
	}

	return &config.Resolved{
		ClientID:          "client-1",
		TenantID:          "tenant-1",
		TokenCachePath:    filepath.Join(t.TempDir(), "cache"+ext),
		TokenCacheBackend: backend,
		InteractiveFlow:   config.FlowDeviceCode,
		Org:               "contoso",
		APIVersion:        "9.2",
		MaxAttempts:       3,
		BaseBackoff:       time.Second,
		MaxBackoff:        time.Minute,
		RequestsPerSecond: 5,
		RateBurst:         1,
	}
}

func TestNewSession_FileBackend(t *testing.T) {
	cfg := testResolvedConfig(t, config.BackendFile)

	s, err := NewSession(context.Background(), cfg, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "https://contoso.api.crm.dynamics.com/api/data/v9.2", s.Client.BaseURL())
	assert.Empty(t, s.Provider.Accounts())
	assert.NoError(t, s.Close())
}

func TestNewSession_SQLiteBackend(t *testing.T) {
	cfg := testResolvedConfig(t, config.BackendSQLite)

	s, err := NewSession(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.FileExists(t, cfg.TokenCachePath)
}

func TestNewSession_MissingOrg(t *testing.T) {
	cfg := testResolvedConfig(t, config.BackendFile)
	cfg.Org = ""

	_, err := NewSession(context.Background(), cfg, discardLogger())
	require.ErrorIs(t, err, dataverse.ErrMissingOrg)
	assert.Contains(t, err.Error(), "--org")
}

func TestNewSession_EnvironmentURL(t *testing.T) {
	cfg := testResolvedConfig(t, config.BackendFile)
	cfg.Org = "https://contoso.crm4.dynamics.com"
	cfg.APIVersion = "9.1"

	s, err := NewSession(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "https://contoso.crm4.dynamics.com/api/data/v9.1", s.Client.BaseURL())
}

func TestSession_CloseLogsTotalsAtDebug(t *testing.T) {
	cfg := testResolvedConfig(t, config.BackendFile)
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s, err := NewSession(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestWithSession_ReturnsCallbackError(t *testing.T) {
	cc := &CLIContext{Cfg: testResolvedConfig(t, config.BackendFile), Logger: discardLogger()}
	boom := errors.New("boom")

	called := false
	err := withSession(context.Background(), cc, func(s *Session) error {
		called = true
		assert.NotNil(t, s.Client)

		return boom
	})

	assert.True(t, called)
	assert.ErrorIs(t, err, boom)
}

func TestWithSession_PanicStillFlushesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"app-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	cfg := testResolvedConfig(t, config.BackendFile)
	cfg.ClientSecret = "secret"
	cfg.Authority = srv.URL + "/tenant-1"

	cc := &CLIContext{Cfg: cfg, Logger: discardLogger()}

	assert.PanicsWithValue(t, "boom", func() {
		_ = withSession(context.Background(), cc, func(s *Session) error {
			_, err := s.Provider.Token(context.Background())
			require.NoError(t, err)

			panic("boom")
		})
	})

	data, err := os.ReadFile(cfg.TokenCachePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "app-token")
}

func TestInteractiveFlow(t *testing.T) {
	assert.Equal(t, auth.FlowBrowser, interactiveFlow(config.FlowBrowser).Name())
	assert.Equal(t, auth.FlowDeviceCode, interactiveFlow(config.FlowDeviceCode).Name())
	assert.Equal(t, auth.FlowDeviceCode, interactiveFlow("").Name())
}

func TestNewHTTPClient(t *testing.T) {
	cfg := testResolvedConfig(t, config.BackendFile)
	cfg.RequestTimeout = 30 * time.Second

	c := newHTTPClient(cfg)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.NotNil(t, c.Transport)
}

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestDeviceCodeFlow_ThroughProvider(t *testing.T) {
	var polls atomic.Int32

	m := newMockIdentity(t, func(w http.ResponseWriter, _ *http.Request) {
		n := polls.Add(1)
		w.Header().Set("Content-Type", "application/json")

		if n == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"authorization_pending"}`))

			return
		}

		_, _ = w.Write([]byte(tokenResponse("device-token", "device-refresh")))
	})

	var displayed DeviceAuth

	flow := &DeviceCodeFlow{Display: func(da DeviceAuth) { displayed = da }}
	p := NewProvider(context.Background(), publicCreds(m), nil, WithInteractiveFlow(flow))
	defer p.Close()

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "device-token", tok.Value)
	assert.Equal(t, "ABCD-1234", displayed.UserCode)
	assert.Equal(t, "https://microsoft.com/devicelogin", displayed.VerificationURI)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestDeviceCodeFlow_UserDeclined(t *testing.T) {
	m := newMockIdentity(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"access_denied","error_description":"user declined"}`))
	})

	p := NewProvider(context.Background(), publicCreds(m), nil,
		WithInteractiveFlow(&DeviceCodeFlow{}))
	defer p.Close()

	_, err := p.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquisition)

	var ae *AcquisitionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, FlowDeviceCode, ae.Flow)
	assert.Contains(t, err.Error(), "access_denied")
}

func TestDeviceCodeFlow_ContextCancel(t *testing.T) {
	m := newMockIdentity(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"authorization_pending"}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p := NewProvider(ctx, publicCreds(m), nil, WithInteractiveFlow(&DeviceCodeFlow{}))
	defer p.Close()

	_, err := p.Token(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// newMockAuthCodeServer serves /authorize (redirecting back with a code)
// and /token.
func newMockAuthCodeServer(t *testing.T, state string) *oauth2.Config {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /authorize", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.NotEmpty(t, q.Get("code_challenge"))

		returned := q.Get("state")
		if state != "" {
			returned = state
		}

		callback := q.Get("redirect_uri") + "?code=test-auth-code&state=" + url.QueryEscape(returned)
		http.Redirect(w, r, callback, http.StatusFound)
	})

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "test-auth-code", r.PostForm.Get("code"))
		assert.NotEmpty(t, r.PostForm.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tokenResponse("browser-token", "browser-refresh")))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &oauth2.Config{
		ClientID: "client-1",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/authorize",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{testResource + "/user_impersonation", offlineAccessScope},
	}
}

// simulateBrowser plays the browser: it hits the authorize URL and follows
// the redirect to the localhost callback.
func simulateBrowser(t *testing.T) func(string) error {
	t.Helper()

	client := &http.Client{
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return func(authURL string) error {
		resp, err := client.Get(authURL) //nolint:noctx // test helper
		if err != nil {
			return err
		}
		resp.Body.Close()

		location := resp.Header.Get("Location")
		if location == "" {
			return nil
		}

		callbackResp, err := http.Get(location) //nolint:noctx // test helper
		if err != nil {
			return err
		}
		callbackResp.Body.Close()

		return nil
	}
}

func TestBrowserFlow_Success(t *testing.T) {
	cfg := newMockAuthCodeServer(t, "")
	flow := &BrowserFlow{OpenURL: simulateBrowser(t)}

	tok, err := flow.Acquire(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "browser-token", tok.AccessToken)
	assert.Equal(t, "browser-refresh", tok.RefreshToken)
	assert.Empty(t, cfg.RedirectURL, "caller config is not mutated")
}

func TestBrowserFlow_StateMismatchKeepsWaiting(t *testing.T) {
	cfg := newMockAuthCodeServer(t, "wrong-state-value")
	flow := &BrowserFlow{OpenURL: simulateBrowser(t)}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := flow.Acquire(ctx, cfg, slog.Default())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBrowserFlow_ContextCancel(t *testing.T) {
	cfg := newMockAuthCodeServer(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// The browser never completes the redirect.
	flow := &BrowserFlow{OpenURL: func(string) error { return nil }}

	_, err := flow.Acquire(ctx, cfg, slog.Default())
	require.Error(t, err)
	assert.ErrorContains(t, err, "browser sign-in canceled")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedirectReceiver_ProviderError(t *testing.T) {
	rr := newRedirectReceiver()

	rec := httptest.NewRecorder()
	rr.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/?state="+url.QueryEscape(rr.state)+"&error=access_denied&error_description=nope", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := rr.wait(context.Background())

	var ae *AcquisitionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "access_denied", ae.Code)
	assert.Equal(t, "nope", ae.Description)
}

func TestRedirectReceiver_MissingCode(t *testing.T) {
	rr := newRedirectReceiver()

	rec := httptest.NewRecorder()
	rr.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?state="+url.QueryEscape(rr.state), nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := rr.wait(context.Background())
	assert.ErrorContains(t, err, "missing authorization code")
}

func TestRedirectReceiver_FirstResultWins(t *testing.T) {
	rr := newRedirectReceiver()

	ok := "/?code=abc&state=" + url.QueryEscape(rr.state)
	rr.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, ok, nil))
	rr.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?code=evil&state=other", nil))

	code, err := rr.wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", code)
}

func TestRedirectReceiver_ForeignStateIgnored(t *testing.T) {
	rr := newRedirectReceiver()

	forged := httptest.NewRecorder()
	rr.ServeHTTP(forged, httptest.NewRequest(http.MethodGet, "/?code=evil&state=other", nil))
	assert.Equal(t, http.StatusBadRequest, forged.Code)
	assert.Empty(t, rr.result)

	ok := httptest.NewRecorder()
	rr.ServeHTTP(ok, httptest.NewRequest(http.MethodGet, "/?code=abc&state="+url.QueryEscape(rr.state), nil))
	assert.Equal(t, http.StatusOK, ok.Code)

	code, err := rr.wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", code)
}

func TestRedirectReceiver_OtherPathsNotFound(t *testing.T) {
	rr := newRedirectReceiver()

	rec := httptest.NewRecorder()
	rr.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rr.result)
}

func TestRedirectReceiver_StateIsRandom(t *testing.T) {
	a, b := newRedirectReceiver(), newRedirectReceiver()

	assert.NotEmpty(t, a.state)
	assert.NotEqual(t, a.state, b.state)
}

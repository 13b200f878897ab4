package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// Interactive flow names.
const (
	FlowDeviceCode        = "device_code"
	FlowBrowser           = "browser"
	FlowClientCredentials = "client_credentials"
	FlowRefresh           = "refresh_token"
)

// InteractiveFlow obtains a token with the user present. The Provider picks
// one at construction and uses it when no cached or refreshable token exists
// and no client secret is configured.
type InteractiveFlow interface {
	Name() string
	Acquire(ctx context.Context, cfg *oauth2.Config, logger *slog.Logger) (*oauth2.Token, error)
}

// DeviceAuth holds the device code response fields shown to the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// DeviceCodeFlow runs the OAuth device authorization grant. Display is
// called once with the code the user must enter.
type DeviceCodeFlow struct {
	Display func(DeviceAuth)
}

// Name implements InteractiveFlow.
func (f *DeviceCodeFlow) Name() string { return FlowDeviceCode }

// Acquire requests a device code, shows it, and polls until the user
// authorizes or ctx ends.
func (f *DeviceCodeFlow) Acquire(ctx context.Context, cfg *oauth2.Config, logger *slog.Logger) (*oauth2.Token, error) {
	logger.Info("starting device code auth flow")

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: device auth request failed: %w", err)
	}

	logger.Info("device code received, waiting for user authorization")

	if f.Display != nil {
		f.Display(DeviceAuth{
			UserCode:        da.UserCode,
			VerificationURI: da.VerificationURI,
		})
	}

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("auth: device code authorization failed: %w", err)
	}

	logger.Info("user authorized", slog.Time("expiry", tok.Expiry))

	return tok, nil
}

// BrowserFlow runs the authorization code grant with PKCE, receiving the
// redirect on a localhost listener. OpenURL launches the browser; when it
// is nil or fails the URL is printed to stderr instead.
type BrowserFlow struct {
	OpenURL func(string) error
}

// Name implements InteractiveFlow.
func (f *BrowserFlow) Name() string { return FlowBrowser }

// Acquire opens the authorization URL and exchanges the returned code.
func (f *BrowserFlow) Acquire(ctx context.Context, cfg *oauth2.Config, logger *slog.Logger) (*oauth2.Token, error) {
	rr := newRedirectReceiver()

	redirectURL, stop, err := rr.listen(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer stop()

	// The registered redirect is "http://localhost" with any port.
	flowCfg := *cfg
	flowCfg.RedirectURL = redirectURL

	verifier := oauth2.GenerateVerifier()
	authURL := flowCfg.AuthCodeURL(rr.state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	logger.Info("waiting for browser sign-in", slog.String("redirect", redirectURL))
	f.open(authURL, logger)

	code, err := rr.wait(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := flowCfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging authorization code: %w", err)
	}

	logger.Info("browser sign-in complete", slog.Time("expiry", tok.Expiry))

	return tok, nil
}

func (f *BrowserFlow) open(authURL string, logger *slog.Logger) {
	if f.OpenURL != nil {
		err := f.OpenURL(authURL)
		if err == nil {
			return
		}

		logger.Warn("could not open browser", slog.String("error", err.Error()))
	}

	fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
}

// redirectReceiver accepts exactly one authorization redirect carrying the
// expected state. Requests with any other state are refused and ignored, as
// is everything after the first accepted redirect.
type redirectReceiver struct {
	state  string
	result chan redirectResult
}

type redirectResult struct {
	code string
	err  error
}

// Bounds header reads and shutdown draining of the loopback server.
const loopbackTimeout = 5 * time.Second

func newRedirectReceiver() *redirectReceiver {
	return &redirectReceiver{
		state:  rand.Text(),
		result: make(chan redirectResult, 1),
	}
}

// listen serves the receiver on an ephemeral loopback port. The returned
// stop func shuts the server down.
func (rr *redirectReceiver) listen(ctx context.Context, logger *slog.Logger) (string, func(), error) {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("auth: binding loopback listener: %w", err)
	}

	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		ln.Close()
		return "", nil, errors.New("auth: loopback listener is not TCP")
	}

	srv := &http.Server{Handler: rr, ReadHeaderTimeout: loopbackTimeout}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rr.deliver(redirectResult{err: fmt.Errorf("auth: loopback server: %w", err)})
		}
	}()

	stop := func() {
		sctx, cancel := context.WithTimeout(context.Background(), loopbackTimeout)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("stopping loopback server", slog.String("error", err.Error()))
		}
	}

	return fmt.Sprintf("http://localhost:%d", addr.Port), stop, nil
}

func (rr *redirectReceiver) deliver(res redirectResult) {
	select {
	case rr.result <- res:
	default:
	}
}

// ServeHTTP handles the redirect from the authorization endpoint.
func (rr *redirectReceiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()

	// Not ours: a stale tab, a prefetch or a forged request. Keep waiting.
	if q.Get("state") != rr.state {
		http.Error(w, "Unexpected sign-in state.", http.StatusBadRequest)
		return
	}

	var res redirectResult

	switch {
	case q.Get("error") != "":
		res.err = &AcquisitionError{Flow: FlowBrowser, Code: q.Get("error"), Description: q.Get("error_description")}
	case q.Get("code") == "":
		res.err = errors.New("auth: redirect missing authorization code")
	default:
		res.code = q.Get("code")
	}

	rr.deliver(res)

	if res.err != nil {
		http.Error(w, "Sign-in failed. Return to the terminal for details.", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Signed in to dataverse-go. You can close this window.")
}

func (rr *redirectReceiver) wait(ctx context.Context) (string, error) {
	select {
	case res := <-rr.result:
		return res.code, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("auth: browser sign-in canceled: %w", ctx.Err())
	}
}

// Package auth acquires bearer tokens for the Dataverse Web API. A Provider
// answers from its token cache when it can, redeems a cached refresh token
// next, and only then runs the client-credentials grant or an interactive
// flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/dataverse-go/internal/tokencache"
)

// expirySkew is how long before expiry a cached token stops being served.
const expirySkew = 5 * time.Minute

// offlineAccessScope asks the identity platform for a refresh token.
const offlineAccessScope = "offline_access"

// AccessToken is a bearer token with the scopes it covers.
type AccessToken struct {
	Value     string
	Scopes    []string
	ExpiresOn time.Time
}

// Provider hands out access tokens for one set of Credentials. It is safe for
// concurrent use; concurrent requests for the same scopes share one
// acquisition.
type Provider struct {
	creds       Credentials
	cache       *tokencache.Cache
	store       tokencache.Store
	interactive InteractiveFlow
	httpClient  *http.Client
	logger      *slog.Logger
	nowFunc     func() time.Time

	group     singleflight.Group
	flightMu  sync.Mutex
	flights   map[string]*flight
	flightSeq uint64
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Provider.
type Option func(*Provider)

// WithInteractiveFlow sets the flow used for delegated sign-in.
// Defaults to a device code flow that prints to stderr.
func WithInteractiveFlow(f InteractiveFlow) Option {
	return func(p *Provider) { p.interactive = f }
}

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvider builds a Provider and loads the persisted cache from store.
// A store that cannot be read or decoded is logged and the provider starts
// with an empty cache. store may be nil for an in-memory cache.
func NewProvider(ctx context.Context, creds Credentials, store tokencache.Store, opts ...Option) *Provider {
	p := &Provider{
		creds:   creds,
		cache:   tokencache.New(),
		store:   store,
		logger:  slog.Default(),
		nowFunc: time.Now,
		flights: make(map[string]*flight),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.interactive == nil {
		p.interactive = &DeviceCodeFlow{Display: printDeviceAuth}
	}

	p.load(ctx)

	return p
}

func (p *Provider) load(ctx context.Context) {
	if p.store == nil {
		return
	}

	blob, err := p.store.Load(ctx)
	if err != nil {
		p.logger.Warn("token cache unreadable, starting empty", slog.String("error", err.Error()))
		return
	}

	if blob == nil {
		p.logger.Debug("no persisted token cache")
		return
	}

	if err := p.cache.Unmarshal(blob); err != nil {
		p.logger.Warn("token cache corrupt, starting empty", slog.String("error", err.Error()))
		return
	}

	p.logger.Debug("token cache loaded", slog.Int("bytes", len(blob)))
}

// Token returns a valid access token for the credential's resource.
func (p *Provider) Token(ctx context.Context) (AccessToken, error) {
	if err := p.creds.validate(); err != nil {
		return AccessToken{}, err
	}

	scopes := p.creds.Scopes()
	key := strings.Join(scopes, " ")

	f, ch := p.join(ctx, key, scopes)

	select {
	case res := <-ch:
		f.leave()

		if res.Err != nil {
			return AccessToken{}, res.Err
		}

		if res.Shared {
			p.logger.Debug("token acquisition shared with concurrent caller")
		}

		tok, _ := res.Val.(AccessToken)

		return tok, nil
	case <-ctx.Done():
		f.leave()
		return AccessToken{}, fmt.Errorf("auth: token acquisition canceled: %w", ctx.Err())
	}
}

// flight is one shared acquisition. Its context is detached from any single
// caller and canceled only when every waiting caller has given up.
type flight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	mu      *sync.Mutex
	waiters int
}

func (f *flight) leave() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.waiters--
	if f.waiters == 0 {
		f.cancel()
	}
}

// join registers the caller on the in-progress acquisition for key, starting
// one if none is running.
func (p *Provider) join(ctx context.Context, key string, scopes []string) (*flight, <-chan singleflight.Result) {
	p.flightMu.Lock()
	defer p.flightMu.Unlock()

	// An abandoned flight is still unwinding; start a fresh one beside it.
	f, ok := p.flights[key]
	if !ok || f.ctx.Err() != nil {
		p.flightSeq++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{key: fmt.Sprintf("%s#%d", key, p.flightSeq), ctx: fctx, cancel: cancel, mu: &p.flightMu}
		p.flights[key] = f
	}

	f.waiters++

	// The acquisition removes its flight before returning, under flightMu, so
	// a caller holding the lock either joins the running call or starts anew.
	ch := p.group.DoChan(f.key, func() (any, error) {
		defer func() {
			p.flightMu.Lock()
			if p.flights[key] == f {
				delete(p.flights, key)
			}
			p.flightMu.Unlock()
		}()

		return p.acquire(f.ctx, scopes)
	})

	return f, ch
}

// BearerToken returns just the token value, for use as a request
// authorizer.
func (p *Provider) BearerToken(ctx context.Context) (string, error) {
	tok, err := p.Token(ctx)
	if err != nil {
		return "", err
	}

	return tok.Value, nil
}

func (p *Provider) acquire(ctx context.Context, scopes []string) (AccessToken, error) {
	if tok, ok := p.acquireSilent(ctx, scopes); ok {
		return tok, nil
	}

	if p.creds.Confidential() {
		return p.acquireClientCredentials(ctx, scopes)
	}

	return p.acquireInteractive(ctx, scopes)
}

// acquireSilent serves from cache or redeems a cached refresh token. Refresh
// failures are logged and fall through to a full acquisition.
func (p *Provider) acquireSilent(ctx context.Context, scopes []string) (AccessToken, bool) {
	accounts := p.cache.Accounts(p.creds.ClientID, p.creds.realm())
	if len(accounts) == 0 {
		return AccessToken{}, false
	}

	acct := accounts[0]

	if at, ok := p.cache.AccessToken(acct, p.creds.ClientID, scopes); ok {
		if at.Expiry().After(p.nowFunc().Add(expirySkew)) {
			p.logger.Debug("access token served from cache",
				slog.String("account", acct.Username),
				slog.Time("expiry", at.Expiry()),
			)

			return AccessToken{Value: at.Secret, Scopes: at.Scopes(), ExpiresOn: at.Expiry()}, true
		}
	}

	rt, ok := p.cache.RefreshToken(acct, p.creds.ClientID)
	if !ok {
		return AccessToken{}, false
	}

	cfg := p.oauthConfig(scopes)

	tok, err := cfg.TokenSource(p.withHTTPClient(ctx), &oauth2.Token{RefreshToken: rt.Secret}).Token()
	if err != nil {
		p.logger.Warn("refresh token redemption failed",
			slog.String("account", acct.Username),
			slog.String("error", newAcquisitionError(FlowRefresh, err).Error()),
		)

		return AccessToken{}, false
	}

	p.logger.Info("access token refreshed",
		slog.String("account", acct.Username),
		slog.Time("expiry", tok.Expiry),
	)

	return p.remember(acct, scopes, tok), true
}

func (p *Provider) acquireClientCredentials(ctx context.Context, scopes []string) (AccessToken, error) {
	endpoint := p.creds.endpoint()

	cc := clientcredentials.Config{
		ClientID:     p.creds.ClientID,
		ClientSecret: p.creds.ClientSecret,
		TokenURL:     endpoint.TokenURL,
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	p.logger.Info("requesting token with client credentials",
		slog.String("client_id", p.creds.ClientID),
	)

	tok, err := cc.Token(p.withHTTPClient(ctx))
	if err != nil {
		return AccessToken{}, newAcquisitionError(FlowClientCredentials, err)
	}

	acct := accountFromToken(tok, p.creds)

	return p.remember(acct, scopes, tok), nil
}

func (p *Provider) acquireInteractive(ctx context.Context, scopes []string) (AccessToken, error) {
	cfg := p.oauthConfig(scopes)

	tok, err := p.interactive.Acquire(p.withHTTPClient(ctx), cfg, p.logger)
	if err != nil {
		var ae *AcquisitionError
		if errors.As(err, &ae) {
			return AccessToken{}, ae
		}

		return AccessToken{}, newAcquisitionError(p.interactive.Name(), err)
	}

	acct := accountFromToken(tok, p.creds)

	p.logger.Info("interactive sign-in complete",
		slog.String("flow", p.interactive.Name()),
		slog.String("account", acct.Username),
	)

	return p.remember(acct, scopes, tok), nil
}

// remember caches tok under acct and returns it as an AccessToken.
func (p *Provider) remember(acct tokencache.Account, scopes []string, tok *oauth2.Token) AccessToken {
	now := p.nowFunc()

	p.cache.Store(tokencache.Entry{
		Account:      acct,
		ClientID:     p.creds.ClientID,
		Scopes:       scopes,
		AccessToken:  tok.AccessToken,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
		ExpiresOn:    tok.Expiry,
		CachedAt:     now,
	})

	return AccessToken{Value: tok.AccessToken, Scopes: scopes, ExpiresOn: tok.Expiry}
}

func (p *Provider) oauthConfig(scopes []string) *oauth2.Config {
	wire := append([]string{}, scopes...)
	if !p.creds.Confidential() {
		wire = append(wire, offlineAccessScope)
	}

	return &oauth2.Config{
		ClientID:     p.creds.ClientID,
		ClientSecret: p.creds.ClientSecret,
		Endpoint:     p.creds.endpoint(),
		Scopes:       wire,
	}
}

func (p *Provider) withHTTPClient(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// Accounts lists cached accounts for the credential's client and tenant.
func (p *Provider) Accounts() []tokencache.Account {
	return p.cache.Accounts(p.creds.ClientID, p.creds.realm())
}

// Logout forgets every cached token for the client and persists the result.
// It returns the number of accounts removed.
func (p *Provider) Logout(ctx context.Context) (int, error) {
	n := p.cache.RemoveAccounts(p.creds.ClientID)
	p.logger.Info("removed cached accounts", slog.Int("count", n))

	if err := p.Flush(ctx); err != nil {
		return n, err
	}

	return n, nil
}

// Flush persists the cache if it changed since it was loaded or last saved.
func (p *Provider) Flush(ctx context.Context) error {
	if p.store == nil || !p.cache.HasStateChanged() {
		return nil
	}

	blob, gen, err := p.cache.Snapshot()
	if err != nil {
		return err
	}

	if err := p.store.Save(ctx, blob); err != nil {
		return fmt.Errorf("auth: persisting token cache: %w", err)
	}

	p.cache.MarkSaved(gen)
	p.logger.Debug("token cache persisted")

	return nil
}

// Close flushes a changed cache and releases the store. A failed flush is
// logged, not returned. Close is idempotent.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		if err := p.Flush(context.Background()); err != nil {
			p.logger.Warn("token cache not persisted", slog.String("error", err.Error()))
		}

		if p.store != nil {
			p.closeErr = p.store.Close()
		}
	})

	return p.closeErr
}

func printDeviceAuth(da DeviceAuth) {
	fmt.Fprintf(os.Stderr, "To sign in, open %s and enter the code %s\n", da.VerificationURI, da.UserCode)
}

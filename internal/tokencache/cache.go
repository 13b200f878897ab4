// Package tokencache holds OAuth accounts, access tokens and refresh tokens
// keyed the way MSAL caches key them, plus the stores that persist the
// serialized cache between processes.
package tokencache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Account identifies a signed-in principal (user or service identity).
type Account struct {
	HomeAccountID  string `json:"home_account_id"`
	Environment    string `json:"environment"`
	Realm          string `json:"realm"`
	LocalAccountID string `json:"local_account_id,omitempty"`
	Username       string `json:"username,omitempty"`
	AuthorityType  string `json:"authority_type,omitempty"`
}

// Key returns the cache key for the account.
func (a Account) Key() string {
	return joinKey(a.HomeAccountID, a.Environment, a.Realm)
}

// AccessToken is a cached bearer token. Target holds the space-separated
// scopes it was issued for.
type AccessToken struct {
	HomeAccountID string `json:"home_account_id"`
	Environment   string `json:"environment"`
	Realm         string `json:"realm"`
	ClientID      string `json:"client_id"`
	Target        string `json:"target"`
	Secret        string `json:"secret"`
	TokenType     string `json:"token_type,omitempty"`
	ExpiresOn     int64  `json:"expires_on"`
	CachedAt      int64  `json:"cached_at"`
}

// Expiry returns ExpiresOn as a time.
func (t AccessToken) Expiry() time.Time {
	return time.Unix(t.ExpiresOn, 0)
}

// Scopes splits Target.
func (t AccessToken) Scopes() []string {
	return strings.Fields(t.Target)
}

func (t AccessToken) key() string {
	return joinKey(t.HomeAccountID, t.Environment, "accesstoken", t.ClientID, t.Realm, t.Target)
}

// RefreshToken is a cached refresh token for one client.
type RefreshToken struct {
	HomeAccountID string `json:"home_account_id"`
	Environment   string `json:"environment"`
	ClientID      string `json:"client_id"`
	Secret        string `json:"secret"`
}

func (t RefreshToken) key() string {
	return joinKey(t.HomeAccountID, t.Environment, "refreshtoken", t.ClientID, "", "")
}

// Entry is the result of one token acquisition, ready to be stored.
type Entry struct {
	Account      Account
	ClientID     string
	Scopes       []string
	AccessToken  string
	TokenType    string
	RefreshToken string
	ExpiresOn    time.Time
	CachedAt     time.Time
}

// contract is the serialized form.
type contract struct {
	Accounts      map[string]Account      `json:"Account"`
	AccessTokens  map[string]AccessToken  `json:"AccessToken"`
	RefreshTokens map[string]RefreshToken `json:"RefreshToken"`
}

func newContract() contract {
	return contract{
		Accounts:      map[string]Account{},
		AccessTokens:  map[string]AccessToken{},
		RefreshTokens: map[string]RefreshToken{},
	}
}

// Cache is an in-memory token cache. It is safe for concurrent use and
// tracks whether its contents changed since it was loaded or last saved.
type Cache struct {
	mu      sync.Mutex
	data    contract
	gen     uint64
	savedAt uint64
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{data: newContract()}
}

// Unmarshal replaces the cache contents with a serialized blob. The loaded
// state counts as saved. An empty blob resets the cache.
func (c *Cache) Unmarshal(blob []byte) error {
	next := newContract()

	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &next); err != nil {
			return fmt.Errorf("tokencache: decoding cache: %w", err)
		}

		if next.Accounts == nil {
			next.Accounts = map[string]Account{}
		}

		if next.AccessTokens == nil {
			next.AccessTokens = map[string]AccessToken{}
		}

		if next.RefreshTokens == nil {
			next.RefreshTokens = map[string]RefreshToken{}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = next
	c.gen++
	c.savedAt = c.gen

	return nil
}

// Marshal serializes the cache.
func (c *Cache) Marshal() ([]byte, error) {
	blob, _, err := c.Snapshot()
	return blob, err
}

// Snapshot serializes the cache and returns the generation it reflects, for
// use with MarkSaved.
func (c *Cache) Snapshot() ([]byte, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	blob, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return nil, 0, fmt.Errorf("tokencache: encoding cache: %w", err)
	}

	return blob, c.gen, nil
}

// HasStateChanged reports whether the cache was modified since it was
// loaded or last marked saved.
func (c *Cache) HasStateChanged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gen != c.savedAt
}

// MarkSaved records that the snapshot taken at generation gen was persisted.
// Changes made after that snapshot keep the cache dirty.
func (c *Cache) MarkSaved(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen > c.savedAt && gen <= c.gen {
		c.savedAt = gen
	}
}

// Accounts returns the accounts in realm that hold a token for clientID,
// ordered by key so the first account is stable across runs.
func (c *Cache) Accounts(clientID, realm string) []Account {
	c.mu.Lock()
	defer c.mu.Unlock()

	homes := make(map[string]bool)

	for _, at := range c.data.AccessTokens {
		if strings.EqualFold(at.ClientID, clientID) {
			homes[at.HomeAccountID] = true
		}
	}

	for _, rt := range c.data.RefreshTokens {
		if strings.EqualFold(rt.ClientID, clientID) {
			homes[rt.HomeAccountID] = true
		}
	}

	keys := make([]string, 0, len(c.data.Accounts))
	for k := range c.data.Accounts {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var out []Account

	for _, k := range keys {
		acct := c.data.Accounts[k]
		if realm != "" && !strings.EqualFold(acct.Realm, realm) {
			continue
		}

		if homes[acct.HomeAccountID] {
			out = append(out, acct)
		}
	}

	return out
}

// AccessToken finds a cached access token for the account and client whose
// scopes cover all requested scopes. Expiry is not checked.
func (c *Cache) AccessToken(acct Account, clientID string, scopes []string) (AccessToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, at := range c.data.AccessTokens {
		if at.HomeAccountID != acct.HomeAccountID ||
			!strings.EqualFold(at.Environment, acct.Environment) ||
			!strings.EqualFold(at.Realm, acct.Realm) ||
			!strings.EqualFold(at.ClientID, clientID) {
			continue
		}

		if coversScopes(at.Scopes(), scopes) {
			return at, true
		}
	}

	return AccessToken{}, false
}

// RefreshToken finds the refresh token for the account and client.
func (c *Cache) RefreshToken(acct Account, clientID string) (RefreshToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rt, ok := c.data.RefreshTokens[RefreshToken{
		HomeAccountID: acct.HomeAccountID,
		Environment:   acct.Environment,
		ClientID:      clientID,
	}.key()]

	return rt, ok
}

// Store records an acquisition result. Access tokens with overlapping scopes
// for the same account and client are replaced. An empty refresh token
// leaves any cached one in place.
func (c *Cache) Store(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	acct := e.Account
	c.data.Accounts[acct.Key()] = acct

	if e.AccessToken != "" {
		at := AccessToken{
			HomeAccountID: acct.HomeAccountID,
			Environment:   acct.Environment,
			Realm:         acct.Realm,
			ClientID:      e.ClientID,
			Target:        strings.Join(e.Scopes, " "),
			Secret:        e.AccessToken,
			TokenType:     e.TokenType,
			ExpiresOn:     e.ExpiresOn.Unix(),
			CachedAt:      e.CachedAt.Unix(),
		}

		for k, old := range c.data.AccessTokens {
			if old.HomeAccountID == at.HomeAccountID && old.Realm == at.Realm &&
				old.Environment == at.Environment && old.ClientID == at.ClientID &&
				scopesIntersect(old.Scopes(), e.Scopes) {
				delete(c.data.AccessTokens, k)
			}
		}

		c.data.AccessTokens[at.key()] = at
	}

	if e.RefreshToken != "" {
		rt := RefreshToken{
			HomeAccountID: acct.HomeAccountID,
			Environment:   acct.Environment,
			ClientID:      e.ClientID,
			Secret:        e.RefreshToken,
		}
		c.data.RefreshTokens[rt.key()] = rt
	}

	c.gen++
}

// RemoveAccounts drops every token issued to clientID and any account left
// without tokens. It returns the number of accounts removed.
func (c *Cache) RemoveAccounts(clientID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false

	for k, at := range c.data.AccessTokens {
		if strings.EqualFold(at.ClientID, clientID) {
			delete(c.data.AccessTokens, k)
			changed = true
		}
	}

	for k, rt := range c.data.RefreshTokens {
		if strings.EqualFold(rt.ClientID, clientID) {
			delete(c.data.RefreshTokens, k)
			changed = true
		}
	}

	inUse := make(map[string]bool)
	for _, at := range c.data.AccessTokens {
		inUse[at.HomeAccountID] = true
	}

	for _, rt := range c.data.RefreshTokens {
		inUse[rt.HomeAccountID] = true
	}

	removed := 0

	for k, acct := range c.data.Accounts {
		if !inUse[acct.HomeAccountID] {
			delete(c.data.Accounts, k)
			removed++
			changed = true
		}
	}

	if changed {
		c.gen++
	}

	return removed
}

func joinKey(parts ...string) string {
	return strings.ToLower(strings.Join(parts, "-"))
}

func coversScopes(have, want []string) bool {
	for _, w := range want {
		found := false

		for _, h := range have {
			if strings.EqualFold(h, w) {
				found = true
				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

func scopesIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}

	return false
}

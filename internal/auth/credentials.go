package auth

import (
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// DefaultAuthorityHost is the Microsoft identity platform host used when no
// authority is configured.
const DefaultAuthorityHost = "https://login.microsoftonline.com"

// Credentials identify the app registration and the resource it calls.
// A non-empty ClientSecret selects the client-credentials grant.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Authority    string
	ResourceURL  string
}

// AuthorityURL returns the configured authority or the tenant authority on
// the default host.
func (c Credentials) AuthorityURL() string {
	if c.Authority != "" {
		return strings.TrimRight(c.Authority, "/")
	}

	return DefaultAuthorityHost + "/" + c.TenantID
}

// Confidential reports whether the credentials carry a client secret.
func (c Credentials) Confidential() bool {
	return c.ClientSecret != ""
}

// Scopes returns the scopes requested for the resource: ".default" for a
// service identity, "user_impersonation" for a delegated user.
func (c Credentials) Scopes() []string {
	resource := strings.TrimRight(c.ResourceURL, "/")
	if c.Confidential() {
		return []string{resource + "/.default"}
	}

	return []string{resource + "/user_impersonation"}
}

func (c Credentials) validate() error {
	var missing []string

	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}

	if c.TenantID == "" && c.Authority == "" {
		missing = append(missing, "tenant_id")
	}

	if c.ResourceURL == "" {
		missing = append(missing, "resource_url")
	}

	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}

	return nil
}

// endpoint returns the OAuth endpoints for the authority.
func (c Credentials) endpoint() oauth2.Endpoint {
	var ep oauth2.Endpoint

	if c.Authority == "" {
		ep = microsoft.AzureADEndpoint(c.TenantID)
	} else {
		base := c.AuthorityURL() + "/oauth2/v2.0"
		ep = oauth2.Endpoint{
			AuthURL:       base + "/authorize",
			TokenURL:      base + "/token",
			DeviceAuthURL: base + "/devicecode",
		}
	}

	// Public clients have no secret to put in a Basic header.
	ep.AuthStyle = oauth2.AuthStyleInParams

	return ep
}

// environment is the authority host, used to key cache entries.
func (c Credentials) environment() string {
	u, err := url.Parse(c.AuthorityURL())
	if err != nil || u.Host == "" {
		return "login.microsoftonline.com"
	}

	return strings.ToLower(u.Host)
}

// realm is the tenant the credentials target: TenantID, or the last path
// segment of a custom authority.
func (c Credentials) realm() string {
	if c.TenantID != "" {
		return strings.ToLower(c.TenantID)
	}

	u, err := url.Parse(c.AuthorityURL())
	if err != nil {
		return ""
	}

	path := strings.Trim(u.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}

	return strings.ToLower(path)
}

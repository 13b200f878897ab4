package auth

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func TestCredentials_AuthorityAndEndpoint(t *testing.T) {
	c := Credentials{TenantID: "contoso.onmicrosoft.com", ClientID: "c", ResourceURL: testResource}

	assert.Equal(t, "https://login.microsoftonline.com/contoso.onmicrosoft.com", c.AuthorityURL())
	assert.Equal(t, "https://login.microsoftonline.com/contoso.onmicrosoft.com/oauth2/v2.0/token",
		c.endpoint().TokenURL)
	assert.Equal(t, oauth2.AuthStyleInParams, c.endpoint().AuthStyle)
	assert.Equal(t, "login.microsoftonline.com", c.environment())
	assert.Equal(t, "contoso.onmicrosoft.com", c.realm())

	custom := Credentials{Authority: "https://login.microsoftonline.us/Tenant-X/", ClientID: "c"}
	assert.Equal(t, "https://login.microsoftonline.us/Tenant-X", custom.AuthorityURL())
	assert.Equal(t, "https://login.microsoftonline.us/Tenant-X/oauth2/v2.0/devicecode",
		custom.endpoint().DeviceAuthURL)
	assert.Equal(t, "login.microsoftonline.us", custom.environment())
	assert.Equal(t, "tenant-x", custom.realm())
}

func TestCredentials_Scopes(t *testing.T) {
	c := Credentials{ResourceURL: testResource + "/"}
	assert.Equal(t, []string{testResource + "/user_impersonation"}, c.Scopes())
	assert.False(t, c.Confidential())

	c.ClientSecret = "s"
	assert.Equal(t, []string{testResource + "/.default"}, c.Scopes())
	assert.True(t, c.Confidential())
}

func TestAccountFromToken(t *testing.T) {
	creds := Credentials{TenantID: "tenant-1", ClientID: "client-1", ClientSecret: "s", ResourceURL: testResource}

	t.Run("access token claims", func(t *testing.T) {
		tok := &oauth2.Token{AccessToken: testJWT(t, jwt.MapClaims{
			"oid": "sp-oid", "tid": "tid-1", "app_displayname": "Integration App",
		})}

		acct := accountFromToken(tok, creds)
		assert.Equal(t, "sp-oid.tid-1", acct.HomeAccountID)
		assert.Equal(t, "sp-oid", acct.LocalAccountID)
		assert.Equal(t, "Integration App", acct.Username)
		assert.Equal(t, authorityTypeApp, acct.AuthorityType)
		assert.Equal(t, "tenant-1", acct.Realm)
	})

	t.Run("opaque token falls back to client identity", func(t *testing.T) {
		acct := accountFromToken(&oauth2.Token{AccessToken: "opaque"}, creds)
		assert.Equal(t, "client-1.tenant-1", acct.HomeAccountID)
		assert.Equal(t, "client-1", acct.Username)
	})
}

func TestErrors(t *testing.T) {
	ce := &ConfigError{Missing: []string{"client_id", "tenant_id"}}
	assert.Equal(t, "auth: missing required configuration: client_id, tenant_id", ce.Error())
	assert.ErrorIs(t, ce, ErrAuthConfig)

	cause := &oauth2.RetrieveError{ErrorCode: "invalid_scope", ErrorDescription: "bad scope"}
	ae := newAcquisitionError(FlowRefresh, cause)
	assert.ErrorIs(t, ae, ErrAcquisition)
	assert.Equal(t, "auth: refresh_token token acquisition failed: invalid_scope - bad scope", ae.Error())

	var re *oauth2.RetrieveError
	assert.True(t, errors.As(ae, &re))

	plain := newAcquisitionError(FlowBrowser, errors.New("boom"))
	assert.Equal(t, "auth: browser token acquisition failed: boom", plain.Error())
}

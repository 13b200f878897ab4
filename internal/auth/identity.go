package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/dataverse-go/internal/tokencache"
)

// Authority types recorded on cached accounts.
const (
	authorityTypeUser = "MSSTS"
	authorityTypeApp  = "APP"
)

// accountFromToken derives the cache account for a token response. Claims
// come from the id_token when present, else from the access token.
// Signatures are not verified; the claims only key the cache.
func accountFromToken(tok *oauth2.Token, creds Credentials) tokencache.Account {
	acct := tokencache.Account{
		Environment:   creds.environment(),
		Realm:         creds.realm(),
		AuthorityType: authorityTypeUser,
	}

	if creds.Confidential() {
		acct.AuthorityType = authorityTypeApp
	}

	claims := tokenClaims(tok)

	oid, _ := claims["oid"].(string)
	tid, _ := claims["tid"].(string)

	switch {
	case oid != "" && tid != "":
		acct.HomeAccountID = oid + "." + tid
		acct.LocalAccountID = oid
	default:
		acct.HomeAccountID = creds.ClientID + "." + creds.realm()
	}

	for _, name := range []string{"preferred_username", "upn", "unique_name", "app_displayname"} {
		if v, ok := claims[name].(string); ok && v != "" {
			acct.Username = v
			break
		}
	}

	if acct.Username == "" && creds.Confidential() {
		acct.Username = creds.ClientID
	}

	return acct
}

func tokenClaims(tok *oauth2.Token) jwt.MapClaims {
	parser := jwt.NewParser()

	candidates := []string{}
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		candidates = append(candidates, idToken)
	}

	candidates = append(candidates, tok.AccessToken)

	for _, raw := range candidates {
		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(raw, claims); err == nil {
			return claims
		}
	}

	return jwt.MapClaims{}
}

package dataverse

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultAPIVersion is the Web API version used when none is configured.
const DefaultAPIVersion = "9.2"

// ErrMissingOrg is returned when no organization name or URL is configured.
var ErrMissingOrg = errors.New("dataverse: organization is not configured")

// BaseURL derives the Web API service root from an organization name
// ("contoso") or URL. URLs that already contain "/api/data" are used as is.
func BaseURL(org, apiVersion string) (string, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return "", ErrMissingOrg
	}

	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	if !isURL(org) {
		return fmt.Sprintf("https://%s.api.crm.dynamics.com/api/data/v%s", org, apiVersion), nil
	}

	org = strings.TrimRight(org, "/")
	if strings.Contains(org, "/api/data") {
		return org, nil
	}

	return org + "/api/data/v" + apiVersion, nil
}

// ResourceURL derives the token audience for an organization: the
// environment origin without the ".api" host label.
func ResourceURL(org string) (string, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return "", ErrMissingOrg
	}

	if !isURL(org) {
		return fmt.Sprintf("https://%s.crm.dynamics.com", org), nil
	}

	u, err := url.Parse(org)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("dataverse: invalid organization URL %q", org)
	}

	host := strings.Replace(u.Host, ".api.crm", ".crm", 1)

	return u.Scheme + "://" + host, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Package testutil provides shared environment helpers for E2E tests. It
// depends only on stdlib so that E2E tests (which cannot import internal/)
// can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AllowedOrgsEnv names the comma-separated list of organizations E2E tests
// may write to.
const AllowedOrgsEnv = "DATAVERSE_ALLOWED_TEST_ORGS"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, value)
		}
	}
}

// ValidateAllowlist crashes the process unless the organization named by
// orgEnvVar appears in DATAVERSE_ALLOWED_TEST_ORGS. E2E tests create and
// delete records, so they must never point at an org by accident.
func ValidateAllowlist(orgEnvVar string) string {
	allowlist := os.Getenv(AllowedOrgsEnv)
	if allowlist == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", AllowedOrgsEnv)
		fmt.Fprintf(os.Stderr, "Example: %s=contoso-dev\n", AllowedOrgsEnv)
		os.Exit(1)
	}

	org := os.Getenv(orgEnvVar)
	if org == "" {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", orgEnvVar)
		os.Exit(1)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.EqualFold(strings.TrimSpace(a), org) {
			return org
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: %s=%q is not in %s=%q\n", orgEnvVar, org, AllowedOrgsEnv, allowlist)
	os.Exit(1)

	return ""
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

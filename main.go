package main

import (
	"errors"

	"github.com/tonimelisma/dataverse-go/internal/auth"
	"github.com/tonimelisma/dataverse-go/internal/dataverse"
)

// Process exit codes.
const (
	exitFailure = 1
	exitAuth    = 2
	exitHTTP    = 3

	// 128 + SIGINT, as shells report it.
	exitInterrupted = 130
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}

// exitCode maps an error to the process exit status so scripts can tell
// sign-in problems from service rejections.
func exitCode(err error) int {
	var httpErr *dataverse.HTTPError

	switch {
	case errors.Is(err, auth.ErrAuthConfig), errors.Is(err, auth.ErrAcquisition):
		return exitAuth
	case errors.As(err, &httpErr):
		return exitHTTP
	default:
		return exitFailure
	}
}

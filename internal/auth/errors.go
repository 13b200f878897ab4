package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// Sentinel errors. Use errors.Is to classify failures from Provider.
var (
	ErrAuthConfig  = errors.New("auth: incomplete client configuration")
	ErrAcquisition = errors.New("auth: token acquisition failed")
)

// ConfigError reports required credential fields that are empty.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("auth: missing required configuration: %s", strings.Join(e.Missing, ", "))
}

func (e *ConfigError) Unwrap() error {
	return ErrAuthConfig
}

// AcquisitionError describes a failed token request. Code and Description
// carry the OAuth "error" and "error_description" fields when the identity
// platform returned them.
type AcquisitionError struct {
	Flow        string
	Code        string
	Description string
	Err         error
}

func (e *AcquisitionError) Error() string {
	msg := "auth: " + e.Flow + " token acquisition failed"

	switch {
	case e.Code != "" && e.Description != "":
		msg += ": " + e.Code + " - " + e.Description
	case e.Code != "":
		msg += ": " + e.Code
	case e.Description != "":
		msg += ": " + e.Description
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *AcquisitionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAcquisition}
	}

	return []error{ErrAcquisition, e.Err}
}

// newAcquisitionError wraps err, lifting the OAuth error fields out of an
// *oauth2.RetrieveError when present.
func newAcquisitionError(flow string, err error) *AcquisitionError {
	ae := &AcquisitionError{Flow: flow, Err: err}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		ae.Code = re.ErrorCode
		ae.Description = re.ErrorDescription
	}

	return ae
}

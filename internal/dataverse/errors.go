package dataverse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, dataverse.ErrNotFound) to check.
var (
	ErrBadRequest         = errors.New("dataverse: bad request")
	ErrUnauthorized       = errors.New("dataverse: unauthorized")
	ErrForbidden          = errors.New("dataverse: forbidden")
	ErrNotFound           = errors.New("dataverse: not found")
	ErrConflict           = errors.New("dataverse: conflict")
	ErrPreconditionFailed = errors.New("dataverse: precondition failed")
	ErrThrottled          = errors.New("dataverse: throttled")
	ErrServerError        = errors.New("dataverse: server error")
	ErrUnexpectedStatus   = errors.New("dataverse: unexpected status")
)

// HTTPError is a non-retried or retry-exhausted error response. Message is
// the Web API "error.message" when the body is a JSON error, otherwise the
// raw body text.
type HTTPError struct {
	StatusCode int
	RequestID  string
	Code       string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}

	if e.RequestID != "" {
		return fmt.Sprintf("dataverse: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, msg)
	}

	return fmt.Sprintf("dataverse: HTTP %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// TransportError reports a request that never produced an HTTP response
// after all attempts.
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dataverse: %s %s failed after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// apiError is the Web API error envelope.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newHTTPError(status int, header http.Header, body []byte) *HTTPError {
	e := &HTTPError{
		StatusCode: status,
		RequestID:  requestID(header),
		Message:    strings.TrimSpace(string(body)),
		Err:        classifyStatus(status),
	}

	var env apiError
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		e.Code = env.Error.Code
		e.Message = env.Error.Message
	}

	return e
}

func requestID(h http.Header) string {
	for _, k := range []string{"REQ_ID", "x-ms-service-request-id", "request-id"} {
		if v := h.Get(k); v != "" {
			return v
		}
	}

	return ""
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpectedStatus
	}
}

// isRetryable reports whether a status is worth another attempt: throttling
// and temporary unavailability only.
func isRetryable(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

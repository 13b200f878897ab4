package odata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const crlf = "\r\n"

// Sentinel errors for batch encoding.
var (
	ErrEmptyBatch     = errors.New("odata: batch has no operations")
	ErrGetInChangeset = errors.New("odata: GET is not allowed inside a changeset")
)

// BatchOperation is one request inside a changeset. URL is relative to the
// service root (or absolute). Body, when non-nil, is encoded as JSON.
type BatchOperation struct {
	Method    string `json:"method" yaml:"method"`
	URL       string `json:"url" yaml:"url"`
	Body      any    `json:"body,omitempty" yaml:"body,omitempty"`
	ContentID string `json:"content_id,omitempty" yaml:"content_id,omitempty"`
}

// Batch encodes operations into a single multipart/mixed $batch payload
// carrying one changeset, so the server applies them atomically.
type Batch struct {
	BatchBoundary     string
	ChangesetBoundary string
}

// NewBatch returns a Batch with fresh random boundaries.
func NewBatch() *Batch {
	return &Batch{
		BatchBoundary:     "batch_" + uuid.NewString(),
		ChangesetBoundary: "changeset_" + uuid.NewString(),
	}
}

// ContentType is the header value for the outer batch request.
func (b *Batch) ContentType() string {
	return "multipart/mixed; boundary=" + b.BatchBoundary
}

// Encode renders ops in order. Lines are CRLF-terminated and the payload
// ends with the closing batch delimiter.
func (b *Batch) Encode(ops []BatchOperation) ([]byte, string, error) {
	if len(ops) == 0 {
		return nil, "", ErrEmptyBatch
	}

	var buf bytes.Buffer

	line := func(s string) {
		buf.WriteString(s)
		buf.WriteString(crlf)
	}

	line("--" + b.BatchBoundary)
	line("Content-Type: multipart/mixed; boundary=" + b.ChangesetBoundary)
	line("")

	for i, op := range ops {
		method := strings.ToUpper(strings.TrimSpace(op.Method))
		if method == "" || op.URL == "" {
			return nil, "", fmt.Errorf("odata: batch operation %d: method and url are required", i)
		}

		if method == http.MethodGet {
			return nil, "", fmt.Errorf("odata: batch operation %d: %w", i, ErrGetInChangeset)
		}

		line("--" + b.ChangesetBoundary)
		line("Content-Type: application/http")
		line("Content-Transfer-Encoding: binary")

		if op.ContentID != "" {
			line("Content-ID: " + op.ContentID)
		}

		line("")
		line(method + " " + op.URL + " HTTP/1.1")
		line("Content-Type: application/json; type=entry")
		line("")

		if op.Body != nil {
			data, err := json.Marshal(op.Body)
			if err != nil {
				return nil, "", fmt.Errorf("odata: batch operation %d: encoding body: %w", i, err)
			}

			line(string(data))
			line("")
		}
	}

	line("--" + b.ChangesetBoundary + "--")
	buf.WriteString("--" + b.BatchBoundary + "--")

	return buf.Bytes(), b.ContentType(), nil
}

// EncodeBatch is a convenience for NewBatch().Encode(ops).
func EncodeBatch(ops []BatchOperation) ([]byte, string, error) {
	return NewBatch().Encode(ops)
}

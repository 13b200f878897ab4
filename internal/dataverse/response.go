package dataverse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotJSON is returned when decoding a response that carries no JSON.
var ErrNotJSON = errors.New("dataverse: response body is not JSON")

// Kind tags the shape of a successful response body.
type Kind int

// Response kinds.
const (
	KindNoContent Kind = iota
	KindJSON
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindNoContent:
		return "no-content"
	case KindJSON:
		return "json"
	case KindRaw:
		return "raw"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Response is a successful Web API reply. A 204 is KindNoContent, which is
// distinct from an empty JSON object.
type Response struct {
	Kind       Kind
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Record is one entity as returned by the Web API. Numbers are kept as
// json.Number so large integers and decimals survive.
type Record map[string]any

func newResponse(status int, header http.Header, body []byte) *Response {
	r := &Response{StatusCode: status, Header: header, Body: body}

	switch {
	case status == http.StatusNoContent:
		r.Kind = KindNoContent
		r.Body = nil
	case len(bytes.TrimSpace(body)) > 0 && json.Valid(body):
		r.Kind = KindJSON
	default:
		r.Kind = KindRaw
	}

	return r
}

// Decode unmarshals a JSON body into v, preserving numbers as json.Number
// inside maps.
func (r *Response) Decode(v any) error {
	if r.Kind != KindJSON {
		return fmt.Errorf("%w (kind %s, status %d)", ErrNotJSON, r.Kind, r.StatusCode)
	}

	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("dataverse: decoding response: %w", err)
	}

	return nil
}

// Record decodes a JSON body as a single entity.
func (r *Response) Record() (Record, error) {
	var rec Record
	if err := r.Decode(&rec); err != nil {
		return nil, err
	}

	return rec, nil
}

// EntityID returns the key from the OData-EntityId header of a create or
// upsert, e.g. the GUID in ".../accounts(00000000-0000-0000-0000-000000000001)".
// It returns "" when the header is absent.
func (r *Response) EntityID() string {
	v := r.Header.Get("OData-EntityId")

	open := strings.LastIndex(v, "(")
	closing := strings.LastIndex(v, ")")

	if open < 0 || closing <= open {
		return ""
	}

	return v[open+1 : closing]
}

package odata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedBatch() *Batch {
	return &Batch{BatchBoundary: "batch_X", ChangesetBoundary: "changeset_Y"}
}

func TestBatchEncode_Layout(t *testing.T) {
	ops := []BatchOperation{
		{Method: "POST", URL: "accounts", Body: map[string]any{"name": "A"}, ContentID: "1"},
		{Method: "patch", URL: "accounts(1)", Body: map[string]any{"name": "B"}},
	}

	body, contentType, err := fixedBatch().Encode(ops)
	require.NoError(t, err)

	want := strings.Join([]string{
		"--batch_X",
		"Content-Type: multipart/mixed; boundary=changeset_Y",
		"",
		"--changeset_Y",
		"Content-Type: application/http",
		"Content-Transfer-Encoding: binary",
		"Content-ID: 1",
		"",
		"POST accounts HTTP/1.1",
		"Content-Type: application/json; type=entry",
		"",
		`{"name":"A"}`,
		"",
		"--changeset_Y",
		"Content-Type: application/http",
		"Content-Transfer-Encoding: binary",
		"",
		"PATCH accounts(1) HTTP/1.1",
		"Content-Type: application/json; type=entry",
		"",
		`{"name":"B"}`,
		"",
		"--changeset_Y--",
		"--batch_X--",
	}, "\r\n")

	assert.Equal(t, want, string(body))
	assert.Equal(t, "multipart/mixed; boundary=batch_X", contentType)
}

func TestBatchEncode_NoBody(t *testing.T) {
	body, _, err := fixedBatch().Encode([]BatchOperation{{Method: "DELETE", URL: "accounts(1)"}})
	require.NoError(t, err)

	assert.Contains(t, string(body), "DELETE accounts(1) HTTP/1.1\r\nContent-Type: application/json; type=entry\r\n\r\n--changeset_Y--")
}

func TestBatchEncode_BoundariesMatch(t *testing.T) {
	b := NewBatch()
	require.True(t, strings.HasPrefix(b.BatchBoundary, "batch_"))
	require.True(t, strings.HasPrefix(b.ChangesetBoundary, "changeset_"))

	body, contentType, err := b.Encode([]BatchOperation{{Method: "POST", URL: "accounts", Body: map[string]any{"a": 1}}})
	require.NoError(t, err)

	s := string(body)
	assert.True(t, strings.HasPrefix(s, "--"+b.BatchBoundary+"\r\n"))
	assert.True(t, strings.HasSuffix(s, "--"+b.BatchBoundary+"--"))
	assert.Contains(t, s, "boundary="+b.ChangesetBoundary+"\r\n")
	assert.Contains(t, s, "--"+b.ChangesetBoundary+"--\r\n")
	assert.Equal(t, "multipart/mixed; boundary="+b.BatchBoundary, contentType)
}

func TestBatchEncode_IdempotentModuloBoundaries(t *testing.T) {
	ops := []BatchOperation{
		{Method: "POST", URL: "accounts", Body: map[string]any{"name": "A"}, ContentID: "1"},
		{Method: "DELETE", URL: "accounts(2)"},
	}

	b1, b2 := NewBatch(), NewBatch()
	assert.NotEqual(t, b1.BatchBoundary, b2.BatchBoundary)

	first, _, err := b1.Encode(ops)
	require.NoError(t, err)

	second, _, err := b2.Encode(ops)
	require.NoError(t, err)

	normalize := func(s string, b *Batch) string {
		s = strings.ReplaceAll(s, b.BatchBoundary, "B")
		return strings.ReplaceAll(s, b.ChangesetBoundary, "C")
	}

	assert.Equal(t, normalize(string(first), b1), normalize(string(second), b2))
}

func TestBatchEncode_Errors(t *testing.T) {
	_, _, err := fixedBatch().Encode(nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, _, err = fixedBatch().Encode([]BatchOperation{{Method: "get", URL: "accounts"}})
	assert.ErrorIs(t, err, ErrGetInChangeset)

	_, _, err = fixedBatch().Encode([]BatchOperation{{Method: "POST"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation 0")

	_, _, err = fixedBatch().Encode([]BatchOperation{{Method: "POST", URL: "x", Body: make(chan int)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoding body")
}

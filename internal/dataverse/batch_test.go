package dataverse

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/dataverse-go/internal/odata"
)

func batchReply(parts ...string) string {
	lines := []string{
		"--batchresponse_1",
		"Content-Type: multipart/mixed; boundary=changesetresponse_1",
		"",
	}

	for i, p := range parts {
		lines = append(lines,
			"--changesetresponse_1",
			"Content-Type: application/http",
			"Content-Transfer-Encoding: binary",
			"Content-ID: "+string(rune('1'+i)),
			"",
			p,
		)
	}

	lines = append(lines, "--changesetresponse_1--", "--batchresponse_1--", "")

	return strings.Join(lines, "\r\n")
}

func TestBatch_SingleExchange(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/$batch", r.URL.Path)

		ct := r.Header.Get("Content-Type")
		assert.True(t, strings.HasPrefix(ct, "multipart/mixed; boundary=batch_"))

		body, _ := io.ReadAll(r.Body)
		boundary := strings.TrimPrefix(ct, "multipart/mixed; boundary=")
		assert.True(t, strings.HasPrefix(string(body), "--"+boundary+"\r\n"))
		assert.True(t, strings.HasSuffix(string(body), "--"+boundary+"--"))
		assert.Contains(t, string(body), "POST accounts HTTP/1.1")
		assert.Contains(t, string(body), "DELETE accounts(2) HTTP/1.1")

		w.Header().Set("Content-Type", "multipart/mixed; boundary=batchresponse_1")
		_, _ = w.Write([]byte(batchReply(
			"HTTP/1.1 204 No Content\r\nOData-EntityId: https://x/api/data/v9.2/accounts(9)\r\n\r\n",
			"HTTP/1.1 204 No Content\r\n\r\n",
		)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	parts, err := c.Batch(context.Background(), []odata.BatchOperation{
		{Method: "POST", URL: "accounts", Body: map[string]any{"name": "A"}, ContentID: "1"},
		{Method: "DELETE", URL: "accounts(2)", ContentID: "2"},
	})
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "1", parts[0].ContentID)
	assert.Equal(t, http.StatusNoContent, parts[0].StatusCode)
	assert.Contains(t, parts[0].Header.Get("OData-EntityId"), "accounts(9)")
	assert.Equal(t, "2", parts[1].ContentID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBatch_ChangesetRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "multipart/mixed; boundary=batchresponse_1")
		_, _ = w.Write([]byte(batchReply(
			"HTTP/1.1 400 Bad Request\r\nContent-Type: application/json\r\n\r\n" +
				`{"error":{"code":"0x80040237","message":"duplicate record"}}`,
		)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	parts, err := c.Batch(context.Background(), []odata.BatchOperation{
		{Method: "POST", URL: "accounts", Body: map[string]any{"name": "A"}},
	})
	require.Error(t, err)
	assert.Nil(t, parts)
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Contains(t, err.Error(), "duplicate record")
}

func TestBatch_EncodeErrorsBeforeNetwork(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")

	_, err := c.Batch(context.Background(), nil)
	assert.ErrorIs(t, err, odata.ErrEmptyBatch)

	_, err = c.Batch(context.Background(), []odata.BatchOperation{{Method: "GET", URL: "accounts"}})
	assert.ErrorIs(t, err, odata.ErrGetInChangeset)
}

func TestBatch_ThrottledNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sleeps := &recordingSleep{}
	c := newTestClient(t, srv.URL)
	c.sleepFunc = sleeps.sleep

	_, err := c.Batch(context.Background(), []odata.BatchOperation{
		{Method: "POST", URL: "accounts", Body: map[string]any{"name": "A"}},
	})

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, sleeps.delays)
}

package main

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/dataverse-go/internal/odata"
)

func TestWriteBatchParts(t *testing.T) {
	parts := []odata.BatchPartResponse{
		{
			ContentID:  "1",
			StatusCode: http.StatusNoContent,
			Header:     http.Header{"Odata-Entityid": []string{"https://x/api/data/v9.2/accounts(abc)"}},
		},
		{ContentID: "2", StatusCode: http.StatusOK, Body: []byte(`{"ok":true}`)},
	}

	var table, js bytes.Buffer

	require.NoError(t, writeBatchParts(&table, outputTable, parts))
	assert.Contains(t, table.String(), "accounts(abc)")
	assert.Contains(t, table.String(), "204")

	require.NoError(t, writeBatchParts(&js, outputJSON, parts))
	assert.Contains(t, js.String(), `"status": 200`)
	assert.Contains(t, js.String(), `"content_id": "1"`)
}

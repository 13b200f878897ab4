package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tonimelisma/dataverse-go/internal/dataverse"
)

func sampleRecords() []dataverse.Record {
	return []dataverse.Record{
		{
			"@odata.etag": `W/"123"`,
			"name":        "Contoso",
			"revenue":     json.Number("1500000"),
			"_parentaccountid_value@OData.Community.Display.V1.FormattedValue": "Fabrikam",
		},
		{"name": "Fabrikam", "revenue": json.Number("12.5"), "active": true},
	}
}

func TestValidateOutput(t *testing.T) {
	for _, f := range []string{outputTable, outputJSON, outputYAML} {
		assert.NoError(t, validateOutput(f), f)
	}

	err := validateOutput("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestWriteRecords_Table(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeRecords(&buf, outputTable, sampleRecords(), nil))

	out := buf.String()
	assert.Contains(t, out, "Contoso")
	assert.Contains(t, out, "Fabrikam")
	assert.Contains(t, out, "1500000")
	assert.Contains(t, out, "12.5")
	assert.NotContains(t, out, "123", "annotations are not columns")
}

func TestWriteRecords_SelectedColumns(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeRecords(&buf, outputTable, sampleRecords(), []string{"name"}))

	out := buf.String()
	assert.Contains(t, out, "Contoso")
	assert.NotContains(t, out, "1500000")
}

func TestWriteRecords_JSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeRecords(&buf, outputJSON, sampleRecords(), nil))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Contoso", got[0]["name"])
	assert.InDelta(t, 1500000, got[0]["revenue"], 0.1)
}

func TestWriteRecords_EmptyJSONIsArray(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeRecords(&buf, outputJSON, nil, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteRecords_YAMLNumbersUnquoted(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeRecords(&buf, outputYAML, sampleRecords(), nil))

	out := buf.String()
	assert.Contains(t, out, "revenue: 1500000")
	assert.Contains(t, out, "revenue: 12.5")
	assert.NotContains(t, out, `"1500000"`)

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestWriteRecord_TableListsFields(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeRecord(&buf, outputTable, dataverse.Record{"name": "Contoso", "emailaddress1": nil}))

	out := buf.String()
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "Contoso")
	assert.Contains(t, out, "emailaddress1")
	assert.Less(t, strings.Index(out, "emailaddress1"), strings.Index(out, "Contoso"), "fields sorted")
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"number", json.Number("42"), "42"},
		{"bool", false, "false"},
		{"object", map[string]any{"a": json.Number("1")}, `{"a":1}`},
		{"array", []any{"x", "y"}, `["x","y"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCell(tt.in))
		})
	}
}

func TestFormatCell_Truncates(t *testing.T) {
	long := strings.Repeat("é", maxCellWidth+10)

	got := formatCell(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, maxCellWidth, len([]rune(got)))
}

func TestRecordColumns_SkipsAnnotations(t *testing.T) {
	assert.Equal(t, []string{"active", "name", "revenue"}, recordColumns(sampleRecords()))
}

func TestPlainValue(t *testing.T) {
	in := dataverse.Record{
		"int":    json.Number("7"),
		"float":  json.Number("2.5"),
		"nested": map[string]any{"n": json.Number("1")},
		"list":   []any{json.Number("3")},
	}

	got, ok := plainValue(in).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(7), got["int"])
	assert.InDelta(t, 2.5, got["float"], 0.0001)
	assert.Equal(t, map[string]any{"n": int64(1)}, got["nested"])
	assert.Equal(t, []any{int64(3)}, got["list"])
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/tonimelisma/dataverse-go/internal/dataverse"
)

// Output formats accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// maxCellWidth truncates long table cells such as nested objects.
const maxCellWidth = 60

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("invalid --output %q: must be one of table, json, yaml", format)
	}
}

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// writeStructured encodes v as JSON or YAML. It reports false for the table
// format so callers can render their own view.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(v); err != nil {
			return true, fmt.Errorf("encoding JSON output: %w", err)
		}

		return true, nil
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(plainValue(v)); err != nil {
			return true, fmt.Errorf("encoding YAML output: %w", err)
		}

		return true, enc.Close()
	default:
		return false, nil
	}
}

// writeRecords renders a record list. Table columns are the given columns,
// or the sorted union of record keys without OData annotations.
func writeRecords(w io.Writer, format string, records []dataverse.Record, columns []string) error {
	if records == nil {
		records = []dataverse.Record{}
	}

	if done, err := writeStructured(w, format, records); done {
		return err
	}

	if len(columns) == 0 {
		columns = recordColumns(records)
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = formatCell(r[col])
		}

		rows = append(rows, row)
	}

	return printTable(w, columns, rows)
}

// writeRecord renders one record; the table view is a field/value listing.
func writeRecord(w io.Writer, format string, record dataverse.Record) error {
	if done, err := writeStructured(w, format, record); done {
		return err
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, formatCell(record[k])})
	}

	return printTable(w, []string{"FIELD", "VALUE"}, rows)
}

func recordColumns(records []dataverse.Record) []string {
	seen := make(map[string]bool)

	var cols []string

	for _, r := range records {
		for k := range r {
			if strings.HasPrefix(k, "@") || strings.Contains(k, "@OData.") || seen[k] {
				continue
			}

			seen[k] = true
			cols = append(cols, k)
		}
	}

	sort.Strings(cols)

	return cols
}

// formatCell renders a JSON value compactly for a table cell.
func formatCell(v any) string {
	var s string

	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s = val
	case json.Number:
		s = val.String()
	case bool:
		s = fmt.Sprintf("%t", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprint(val)
		} else {
			s = string(b)
		}
	}

	if utf8.RuneCountInString(s) > maxCellWidth {
		return string([]rune(s)[:maxCellWidth-3]) + "..."
	}

	return s
}

// printTable writes headers and rows with tablewriter.
func printTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(toAny(headers)...)

	for _, row := range rows {
		if err := table.Append(toAny(row)...); err != nil {
			return fmt.Errorf("rendering table: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}

	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}

	return out
}

// plainValue converts json.Number leaves to int64 or float64 so YAML output
// shows numbers rather than quoted strings.
func plainValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}

		if f, err := val.Float64(); err == nil {
			return f
		}

		return val.String()
	case map[string]any:
		return plainMap(val)
	case dataverse.Record:
		return plainMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = plainValue(e)
		}

		return out
	case []dataverse.Record:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = plainValue(e)
		}

		return out
	default:
		return v
	}
}

func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, e := range m {
		out[k] = plainValue(e)
	}

	return out
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tonimelisma/dataverse-go/internal/odata"
)

var (
	errNoPayload      = errors.New("no request body: use --data or --file")
	errInvalidPayload = errors.New("request body is not valid JSON")
)

// readPayload returns the JSON request body from --data or --file. A --data
// value of "-" reads stdin and "@path" reads a file. Files ending in .yaml
// or .yml are converted to JSON.
func readPayload(data, file string, stdin io.Reader) ([]byte, error) {
	switch {
	case data != "" && file != "":
		return nil, errors.New("--data and --file are mutually exclusive")
	case data == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}

		return checkJSON(b)
	case strings.HasPrefix(data, "@"):
		return readPayloadFile(data[1:])
	case data != "":
		return checkJSON([]byte(data))
	case file != "":
		return readPayloadFile(file)
	default:
		return nil, errNoPayload
	}
}

func readPayloadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if !isYAMLPath(path) {
		return checkJSON(b)
	}

	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("converting %s to JSON: %w", path, err)
	}

	return out, nil
}

func checkJSON(b []byte) ([]byte, error) {
	if !json.Valid(b) {
		return nil, errInvalidPayload
	}

	return b, nil
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// parseParams turns name=value pairs into function parameters. Values are
// typed the way a shell user would expect: null, booleans, integers,
// decimals and GUIDs are passed as OData literals; anything else is a
// string. Wrapping a value in single quotes forces a string.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", pair)
		}

		params[name] = paramValue(value)
	}

	return params, nil
}

func paramValue(s string) any {
	if len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") {
		return s[1 : len(s)-1]
	}

	if s == "null" {
		return nil
	}

	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.Contains(s, ".") {
		return f
	}

	if id, err := uuid.Parse(s); err == nil && len(s) == 36 {
		return id
	}

	return s
}

// batchFile is the on-disk form of a batch request.
type batchFile struct {
	Operations []odata.BatchOperation `yaml:"operations"`
}

// readBatchFile parses a JSON or YAML batch file. Both a bare list of
// operations and an object with an "operations" key are accepted.
func readBatchFile(path string) ([]odata.BatchOperation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return parseBatchOps(b)
}

func parseBatchOps(b []byte) ([]odata.BatchOperation, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}

	if len(node.Content) == 0 {
		return nil, odata.ErrEmptyBatch
	}

	var ops []odata.BatchOperation

	switch node.Content[0].Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&ops); err != nil {
			return nil, fmt.Errorf("parsing batch file: %w", err)
		}
	case yaml.MappingNode:
		var f batchFile
		if err := node.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing batch file: %w", err)
		}

		ops = f.Operations
	default:
		return nil, errors.New("parsing batch file: expected a list of operations")
	}

	for i := range ops {
		ops[i].Body = jsonCompatible(ops[i].Body)
	}

	return ops, nil
}

// jsonCompatible rewrites map[any]any nodes, which encoding/json cannot
// marshal, into map[string]any.
func jsonCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, e := range val {
			val[k] = jsonCompatible(e)
		}

		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[fmt.Sprint(k)] = jsonCompatible(e)
		}

		return out
	case []any:
		for i, e := range val {
			val[i] = jsonCompatible(e)
		}

		return val
	default:
		return v
	}
}

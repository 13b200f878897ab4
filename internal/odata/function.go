package odata

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// ErrUnsupportedParam is returned when a function parameter value has no
// OData literal form.
var ErrUnsupportedParam = errors.New("odata: unsupported function parameter type")

// FunctionPath builds the path for an OData function call, optionally bound
// to an entity path: "[bound/]Name(k1=v1,k2='v2')". Parameters are sorted by
// name. A function without parameters is rendered as "Name()".
func FunctionPath(name string, params map[string]any, bound string) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	args := make([]string, 0, len(keys))

	for _, k := range keys {
		lit, err := FormatLiteral(params[k])
		if err != nil {
			return "", fmt.Errorf("odata: parameter %q: %w", k, err)
		}

		args = append(args, k+"="+lit)
	}

	path := name + "(" + strings.Join(args, ",") + ")"

	return joinBound(bound, path), nil
}

// ActionPath builds the path for an OData action: "[bound/]Name".
func ActionPath(name, bound string) string {
	return joinBound(bound, name)
}

func joinBound(bound, path string) string {
	bound = strings.Trim(bound, "/")
	if bound == "" {
		return path
	}

	return bound + "/" + path
}

// FormatLiteral renders v as an OData URL literal. Strings are single-quoted
// with embedded quotes doubled; GUIDs, numbers and booleans are bare.
func FormatLiteral(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		quoted := "'" + strings.ReplaceAll(norm.NFC.String(val), "'", "''") + "'"
		return strings.ReplaceAll(url.PathEscape(quoted), "%27", "'"), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case json.Number:
		return val.String(), nil
	case uuid.UUID:
		return val.String(), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedParam, v)
	}
}

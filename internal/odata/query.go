// Package odata implements the OData v4 wire pieces the Dataverse Web API
// needs: query option encoding, entity and function addressing, and the
// multipart $batch format.
package odata

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Characters left literal in query option values. Dataverse accepts them
// unescaped and they keep $filter and $expand expressions readable in logs.
var queryValueReplacer = strings.NewReplacer(
	"+", "%20",
	"%24", "$",
	"%28", "(",
	"%29", ")",
	"%2C", ",",
	"%27", "'",
)

// QuerySpec holds the system query options supported for collection reads.
// The zero value selects everything with server defaults.
type QuerySpec struct {
	Select  []string
	Filter  string
	Expand  []string
	OrderBy string
	Top     int
	Skip    int
}

// IsZero reports whether no query option is set.
func (q QuerySpec) IsZero() bool {
	return len(q.Select) == 0 && q.Filter == "" && len(q.Expand) == 0 &&
		q.OrderBy == "" && q.Top <= 0 && q.Skip <= 0
}

// Encode renders the query string without the leading "?". Options are
// emitted in a fixed order (select, filter, expand, orderby, top, skip) so
// the same spec always produces the same URL. Top and Skip are omitted when
// not positive.
func (q QuerySpec) Encode() string {
	var parts []string

	add := func(key, value string) {
		parts = append(parts, key+"="+EscapeQueryValue(value))
	}

	if len(q.Select) > 0 {
		add("$select", strings.Join(q.Select, ","))
	}

	if q.Filter != "" {
		add("$filter", norm.NFC.String(q.Filter))
	}

	if len(q.Expand) > 0 {
		add("$expand", strings.Join(q.Expand, ","))
	}

	if q.OrderBy != "" {
		add("$orderby", norm.NFC.String(q.OrderBy))
	}

	if q.Top > 0 {
		add("$top", fmt.Sprint(q.Top))
	}

	if q.Skip > 0 {
		add("$skip", fmt.Sprint(q.Skip))
	}

	return strings.Join(parts, "&")
}

// EscapeQueryValue percent-encodes a query option value, encoding spaces as
// %20 and leaving $ ( ) , ' literal.
func EscapeQueryValue(v string) string {
	return queryValueReplacer.Replace(url.QueryEscape(v))
}

// EntityPath addresses a single record: "accounts(00000000-...)".
func EntityPath(entitySet, id string) string {
	return entitySet + "(" + id + ")"
}

// WithQuery appends an encoded query string to path. An empty query leaves
// path untouched.
func WithQuery(path, query string) string {
	if query == "" {
		return path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + query
}

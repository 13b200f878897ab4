package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// Suggestions further away than this are noise.
const maxSuggestDistance = 3

// configKeys lists every toml key Config accepts, sorted so that equally
// close suggestions resolve the same way every run.
var configKeys = tomlKeys(reflect.TypeFor[Config]())

// tomlKeys collects toml tags, descending into embedded structs since the
// file layout is flat.
func tomlKeys(t reflect.Type) []string {
	var keys []string

	for i := range t.NumField() {
		f := t.Field(i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			keys = append(keys, tomlKeys(f.Type)...)
			continue
		}

		if name, _, _ := strings.Cut(f.Tag.Get("toml"), ","); name != "" && name != "-" {
			keys = append(keys, name)
		}
	}

	slices.Sort(keys)

	return keys
}

// checkUnknownKeys turns keys the decoder skipped into one error each.
func checkUnknownKeys(md *toml.MetaData) error {
	var (
		errs     []error
		reported = make(map[string]struct{})
	)

	for _, key := range md.Undecoded() {
		// A stray table undecodes every key inside it; report the table once.
		top := key[0]
		if _, dup := reported[top]; dup {
			continue
		}

		reported[top] = struct{}{}
		errs = append(errs, unknownKeyError(top))
	}

	return errors.Join(errs...)
}

func unknownKeyError(key string) error {
	if s := closestMatch(key, configKeys); s != "" {
		return fmt.Errorf("unknown config key %q, did you mean %q?", key, s)
	}

	return fmt.Errorf("unknown config key %q", key)
}

// closestMatch returns the candidate with the smallest edit distance to
// word, or "" when none is within maxSuggestDistance.
func closestMatch(word string, candidates []string) string {
	best, bestDist := "", maxSuggestDistance+1

	for _, c := range candidates {
		if d := levenshtein(word, c); d < bestDist {
			best, bestDist = c, d
		}
	}

	return best
}

// levenshtein is the byte-wise edit distance between a and b.
func levenshtein(a, b string) int {
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i

		for j := 1; j <= len(b); j++ {
			sub := diag
			if a[i-1] != b[j-1] {
				sub++
			}

			diag = row[j]
			row[j] = min(row[j]+1, row[j-1]+1, sub)
		}
	}

	return row[len(b)]
}

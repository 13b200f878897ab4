package config

import (
	"slices"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckUnknownKeys(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr []string
	}{
		{name: "all known", input: `org = "x"` + "\n" + `max_pages = 2`},
		{name: "typo suggests", input: `log_levl = "info"`, wantErr: []string{`"log_levl"`, `did you mean "log_level"`}},
		{name: "far off has no suggestion", input: `completely_unrelated = 1`, wantErr: []string{`unknown config key "completely_unrelated"`}},
		{name: "table reported once", input: "[network]\nmax_attempts = 2\nbase_backoff = \"1s\"", wantErr: []string{`"network"`}},
		{
			name:    "multiple keys",
			input:   "orgg = \"x\"\nmax_attemps = 3",
			wantErr: []string{`did you mean "org"`, `did you mean "max_attempts"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			md, err := toml.Decode(tt.input, cfg)
			require.NoError(t, err)

			err = checkUnknownKeys(&md)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestCheckUnknownKeys_TableCountedOnce(t *testing.T) {
	md, err := toml.Decode("[extra]\na = 1\nb = 2", DefaultConfig())
	require.NoError(t, err)

	err = checkUnknownKeys(&md)
	require.Error(t, err)
	assert.Equal(t, 1, countLines(err.Error()))
}

func countLines(s string) int {
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}

	return n
}

func TestClosestMatch(t *testing.T) {
	assert.Equal(t, "client_secret", closestMatch("client_secert", configKeys))
	assert.Equal(t, "org", closestMatch("orh", configKeys))
	assert.Empty(t, closestMatch("zzzzzzzzzz", configKeys))
}

func TestConfigKeys(t *testing.T) {
	assert.Len(t, configKeys, 20)
	assert.True(t, slices.IsSorted(configKeys))
	assert.Contains(t, configKeys, "client_secret")
	assert.Contains(t, configKeys, "max_page_size")
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("same", "same"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 3, levenshtein("abc", ""))
	assert.Equal(t, 1, levenshtein("kitten", "sitten"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"hello world":         "hello world",
		"a/b\\c:d*e?f":        "a_b_c_d_e_f",
		"__lead and trail__ ": "lead and trail",
		"x<<>>y":              "x_y",
		"今天 😀 vlog #1":        "vlog #1",
		"😀😀":                  "untitled",
		"":                    "untitled",
		"tab\tin\nname":       "tab_in_name",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "a", Truncate("aé", 2))
}

func TestShortUUID(t *testing.T) {
	id := ShortUUID()
	assert.Len(t, id, 8)
	assert.NotEqual(t, id, ShortUUID())
}

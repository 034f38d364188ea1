package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	nonASCII           = regexp.MustCompile(`[^\x00-\x7F]+`)
	reservedChars      = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	repeatedUnderscore = regexp.MustCompile(`_+`)
)

// SanitizeFilename strips emoji and other non-ASCII text, replaces characters
// that are invalid in file names and falls back to "untitled".
func SanitizeFilename(name string) string {
	clean := nonASCII.ReplaceAllString(name, "")
	clean = reservedChars.ReplaceAllString(clean, "_")
	clean = repeatedUnderscore.ReplaceAllString(clean, "_")
	clean = strings.Trim(clean, "_ ")
	if clean == "" {
		return "untitled"
	}
	return clean
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

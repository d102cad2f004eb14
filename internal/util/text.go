package util

import (
	"regexp"
	"strings"
)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeWhitespace trims and collapses whitespace to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// ContainsAnyCaseInsensitive returns true if text contains any of the needles (case-insensitive).
func ContainsAnyCaseInsensitive(text string, needles []string) bool {
	_, ok := FirstMatch(text, needles)
	return ok
}

// FirstMatch returns the first needle found in text, ignoring case.
// Empty needles never match.
func FirstMatch(text string, needles []string) (string, bool) {
	lt := strings.ToLower(text)
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(lt, strings.ToLower(n)) {
			return n, true
		}
	}
	return "", false
}

// Truncate cuts s to at most n runes, adding an ellipsis when it cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

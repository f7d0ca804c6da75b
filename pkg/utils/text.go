package utils

import "strings"

// Truncate shortens s to at most max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// SingleLine collapses all whitespace runs (including newlines) into
// single spaces, for compact one-line previews.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

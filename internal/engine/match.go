package engine

import (
	"strings"
	"unicode"

	"snipit/internal/snippet"
)

func isBlank(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r)
}

// Match returns the first candidate that equals, or is a suffix of, the
// buffer with surrounding whitespace and control characters trimmed.
// Candidates are expected longest first, so the longest trigger wins.
// There is no word-boundary check: "xttime" matches "ttime".
func Match(buffer string, candidates []snippet.Entry) (string, bool) {
	trimmed := strings.TrimFunc(buffer, isBlank)
	if trimmed == "" {
		return "", false
	}
	for _, c := range candidates {
		if c.Snippet == "" {
			continue
		}
		if trimmed == c.Snippet || strings.HasSuffix(trimmed, c.Snippet) {
			return c.Snippet, true
		}
	}
	return "", false
}

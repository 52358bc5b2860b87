// Package strings holds helpers for user-supplied text.
package strings

import (
	"strings"
	"unicode/utf8"
)

// DedupeAndTrim trims each value and drops blanks and repeats. The first
// occurrence keeps its position. Matching is case-sensitive.
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// TrimPtr trims *p in place. A nil pointer is left alone.
func TrimPtr(p *string) {
	if p != nil {
		*p = strings.TrimSpace(*p)
	}
}

// ExceedsRunes reports whether *p holds more than limit characters.
func ExceedsRunes(p *string, limit int) bool {
	return p != nil && utf8.RuneCountInString(*p) > limit
}

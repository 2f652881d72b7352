// Package slug derives filesystem-safe identifiers from arbitrary catalog
// values.
package slug

import "strings"

// Make lowercases s, collapses every run of non-alphanumeric characters to a
// single underscore, and trims leading/trailing underscores. It is
// dependency-free and idempotent: Make(Make(s)) == Make(s).
func Make(s string) string {
	lower := strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(lower))
	prevUnderscore := false
	for _, r := range lower {
		if isAlphanumeric(r) {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

func isAlphanumeric(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	default:
		return false
	}
}

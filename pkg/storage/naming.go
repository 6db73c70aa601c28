package storage

import (
	"strings"
	"unicode"
)

// Canon lower-cases name and collapses every run of characters that are
// not letters or digits into a single underscore, trimming underscores at
// both ends. An empty result becomes "_". Canon(Canon(x)) == Canon(x).
func Canon(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

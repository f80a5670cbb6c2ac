// Package string holds the request-normalization helpers shared by the
// HTTP handlers and the validator.
package string

import (
	"strings"
	"unicode"
)

// TrimStrings trims every pointed-to string in place.
func TrimStrings(ss ...*string) {
	for _, s := range ss {
		*s = strings.TrimSpace(*s)
	}
}

// TrimSlices trims every element of every slice in place.
func TrimSlices(slices ...[]string) {
	for _, ss := range slices {
		for i := range ss {
			ss[i] = strings.TrimSpace(ss[i])
		}
	}
}

// ToSnakeCase maps a Go field name to its JSON spelling for error messages,
// e.g. MerkleRoot -> merkle_root.
func ToSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 &&
			(unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Package normalize canonicalizes recognized strings into comparison keys.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Key collapses runs of whitespace to one space, trims, and upper-cases.
// Compatibility forms (full-width digits, ligatures) are folded so OCR
// variants of the same printed value compare equal. NFKC runs again after
// upper-casing because case mapping can leave a decomposed sequence.
func Key(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(fold(s)), " ")
}

func fold(s string) string {
	return norm.NFKC.String(strings.ToUpper(norm.NFKC.String(s)))
}

// StrictKey is the barcode-style key: the folded, upper-cased form with every
// rune that is not a letter or digit dropped, so "abc-123" and "ABC 123" both become "ABC123".
func StrictKey(s string) string {
	if s == "" {
		return ""
	}
	s = fold(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Len returns the rune length of the normalized key.
func Len(s string) int {
	return len([]rune(Key(s)))
}

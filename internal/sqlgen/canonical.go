package sqlgen

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Canonical returns the stored form of an identifier: trimmed, NFC
// normalized and upper-cased. "straße" becomes "STRASSE".
//
// A cases.Caser is stateful, so one is built per call; branches canonicalize
// from separate goroutines.
func Canonical(name string) string {
	return cases.Upper(language.Und).String(norm.NFC.String(strings.TrimSpace(name)))
}

// CanonicalAll canonicalizes every name, preserving order and duplicates.
func CanonicalAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Canonical(n)
	}
	return out
}

// quote wraps a canonical identifier in double quotes, doubling any embedded quote.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Package names normalizes student names for comparison. Roster imports and
// manual registration often disagree on diacritics, casing, and hyphenation
// ("Jan Novák" vs "jan-novak"), so lookups compare normalized forms.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Normalize normalizes a name for comparison: lowercase, no diacritics,
// dashes treated as spaces, whitespace collapsed.
func Normalize(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// Equal reports whether two names are the same after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

package validate

import "strings"

// Normalize canonicalizes an answer for comparison: surrounding whitespace is
// trimmed, internal runs of whitespace collapse to one space, letters are
// lowercased and trailing sentence punctuation is dropped. Diacritics are
// significant and survive normalization.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToLower(s)
	s = strings.TrimRight(s, ".,;!?")
	return strings.TrimSpace(s)
}

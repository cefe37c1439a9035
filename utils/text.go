package utils

import (
	"strings"
	"unicode"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/unicode/norm"
)

// NormalizeDisplayName trims, NFC-normalizes and collapses inner whitespace
// of a user-entered name. Line breaks and tabs count as spaces; other
// control characters are dropped.
func NormalizeDisplayName(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// SortKey folds a display name to lowercase ASCII so "Élodie" sorts next
// to "Elodie".
func SortKey(s string) string {
	return strings.ToLower(unidecode.Unidecode(s))
}

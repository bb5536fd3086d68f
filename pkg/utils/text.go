package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// NormalizeKeyword folds full-width characters (NFKC), lower-cases and
// collapses whitespace. Keyword identity is the normalized form.
func NormalizeKeyword(s string) string {
	s = norm.NFKC.String(s)
	s = lower.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Tokens splits a normalized keyword into whitespace-separated tokens.
func Tokens(s string) []string {
	return strings.Fields(NormalizeKeyword(s))
}

// TokenSet returns the distinct tokens of s.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokens(s) {
		set[t] = struct{}{}
	}
	return set
}

// SharesToken reports whether a and b have at least one token in common.
func SharesToken(a, b string) bool {
	set := TokenSet(a)
	for _, t := range Tokens(b) {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// IsASCIIAlnum reports whether s consists only of ASCII letters and digits.
func IsASCIIAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

// IsNumeric reports whether s consists only of digits (any script).
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

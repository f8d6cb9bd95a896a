package teams

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	punctRe  = regexp.MustCompile("[.,/\\\\\\-_()\\[\\]{}+*=|<>?!@#$%^&*~`'\":;]")
	digitsRe = regexp.MustCompile(`\d+`)

	// NFD decomposition + combining-mark removal strips diacritics, so
	// "Atlético" and "Atletico" normalize to the same token.
	deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Normalize reduces a team name to a comparable form: diacritics, punctuation
// and digits stripped, lowercased, words of two letters or fewer and the token
// "afc" dropped, surviving words joined with single spaces. Idempotent.
func Normalize(name string) string {
	if name == "" {
		return ""
	}

	s := strings.ToLower(name)
	if out, _, err := transform.String(deaccent, s); err == nil {
		s = out
	}
	s = punctRe.ReplaceAllString(s, "")
	s = digitsRe.ReplaceAllString(s, "")

	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if len(w) > 2 && w != "afc" {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// Matches reports whether two raw team names refer to the same team: either
// normalized form must contain the other, and neither may normalize to empty.
func Matches(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

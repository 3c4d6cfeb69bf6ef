// ABOUTME: Name normalization for lookup and matching
// ABOUTME: Folds accents and case and keeps only letters and digits
package namenorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the matching form of s: accents removed, lower case, only
// letters and digits. "José  O'Neil" becomes "joseoneil".
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Tokens splits s on anything that is not a letter or digit and normalizes
// each piece, dropping empties.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if n := Normalize(f); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Variants returns the normalized full-name orderings used for matching a
// structured name: given+middle+family, family+given+middle, given+family and
// family+given. The first entry is the exact form. Duplicates are removed.
func Variants(given, middle, family string) []string {
	g, m, f := Normalize(given), Normalize(middle), Normalize(family)
	candidates := []string{
		g + m + f,
		f + g + m,
		g + f,
		f + g,
	}
	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// EmailNickname returns the normalized local part of an email address, or ""
// when the address has none.
func EmailNickname(address string) string {
	at := strings.IndexByte(address, '@')
	if at <= 0 {
		return ""
	}
	local := address[:at]
	if plus := strings.IndexByte(local, '+'); plus > 0 {
		local = local[:plus]
	}
	return Normalize(local)
}

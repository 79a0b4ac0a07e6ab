// Package textutils normalizes free text from statement titles.
package textutils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// transactionDateMarker starts the trailing "DATA TRANSAKCJI: 2025-07-31"
// suffix that card payments carry in their title.
const transactionDateMarker = "DATA TRANSAKCJI:"

// letters without a canonical decomposition
var foldSpecial = strings.NewReplacer("ł", "l", "đ", "d", "ø", "o", "ß", "ss")

// CollapseSpaces trims s and reduces every whitespace run to one space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CleanTitle removes the transaction-date suffix and normalizes whitespace.
func CleanTitle(title string) string {
	upper := strings.ToUpper(title)
	if len(upper) != len(title) {
		upper = title
	}
	if i := strings.Index(upper, transactionDateMarker); i >= 0 {
		title = title[:i]
	}
	return CollapseSpaces(title)
}

// Fold lowercases s, strips diacritics and collapses whitespace, so that
// "ŻABKA  Łódź" and "zabka lodz" compare equal.
func Fold(s string) string {
	s = foldSpecial.Replace(strings.ToLower(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return CollapseSpaces(out)
}

// TitleCase capitalizes each word. Short all-caps words (acronyms such as
// "BP" or "KFC") and words containing '.' or '&' are kept as written.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		switch {
		case len([]rune(w)) <= 3 && isUpper(w):
			continue
		case strings.ContainsAny(w, ".&"):
			continue
		default:
			words[i] = capitalize(w)
		}
	}
	return strings.Join(words, " ")
}

func isUpper(w string) bool {
	hasLetter := false
	for _, r := range w {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func capitalize(w string) string {
	r := []rune(strings.ToLower(w))
	for i, c := range r {
		if unicode.IsLetter(c) {
			r[i] = unicode.ToUpper(c)
			break
		}
	}
	return string(r)
}

package merchant

import (
	"regexp"
	"strings"
	"unicode"

	"fjacquet/stmt-ledger/internal/textutils"
)

// Heuristic confidences. All of them stay below the pattern confidence and
// below the default auto_merchant threshold, so a guessed merchant never
// contributes merchant default tags on its own.
const (
	confidenceWithStore    = 0.7
	confidenceWithLocation = 0.6
	confidenceBare         = 0.5
	confidenceFallback     = 0.3
)

var (
	storeCode    = regexp.MustCompile(`^[A-Z]{0,2}\d{2,6}$`)
	registerCode = regexp.MustCompile(`^K\.\d{1,2}$`)
	dateToken    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}|\d{2}\.\d{2}\.\d{4})$`)
	cardToken    = regexp.MustCompile(`^(\*+\d{2,4}|X{2,}\d{2,4}|\d{4,}\*+)$`)
	digitsOnly   = regexp.MustCompile(`^[\d.,:-]+$`)
)

// boilerplate tokens that never belong to a merchant name
var noiseTokens = map[string]bool{
	"pl":     true,
	"pol":    true,
	"polska": true,
	"poland": true,
	"karta":  true,
	"card":   true,
	"zakup":  true,
}

// titleParts is what the heuristic reads out of a card-payment title such
// as "ZABKA Z1748 K.2 /WARSZAWA".
type titleParts struct {
	name       string
	storeID    string
	location   string
	confidence float64
}

func parseTitle(title string) titleParts {
	title = textutils.CollapseSpaces(title)
	if title == "" {
		return titleParts{}
	}

	var parts titleParts
	head := title
	if i := strings.Index(title, "/"); i >= 0 {
		head = title[:i]
		parts.location = cleanLocation(title[i+1:])
	}

	tokens := strings.Fields(head)
	name := tokens
	for i := 1; i < len(tokens); i++ {
		if !storeCode.MatchString(strings.ToUpper(tokens[i])) {
			continue
		}
		name = tokens[:i]
		rest := tokens[i+1:]
		parts.storeID = strings.ToUpper(tokens[i])
		if len(rest) > 0 && registerCode.MatchString(strings.ToUpper(rest[0])) {
			parts.storeID += " " + strings.ToUpper(rest[0])
			rest = rest[1:]
		}
		if parts.location == "" {
			parts.location = cleanLocation(strings.Join(rest, " "))
		}
		break
	}

	name = stripNoise(name)
	// "DECATHLON WARSZAWA /WARSZAWA"
	if parts.location != "" && len(name) > 1 &&
		textutils.Fold(name[len(name)-1]) == textutils.Fold(parts.location) {
		name = name[:len(name)-1]
	}
	parts.name = strings.Join(name, " ")

	switch {
	case parts.name == "":
		parts.name = title
		parts.storeID = ""
		parts.confidence = confidenceFallback
	case parts.storeID != "":
		parts.confidence = confidenceWithStore
	case parts.location != "":
		parts.confidence = confidenceWithLocation
	default:
		parts.confidence = confidenceBare
	}
	return parts
}

func stripNoise(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		upper := strings.ToUpper(tok)
		if dateToken.MatchString(tok) || cardToken.MatchString(upper) || digitsOnly.MatchString(tok) {
			continue
		}
		if noiseTokens[textutils.Fold(tok)] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// cleanLocation keeps the leading words of s up to the first token that is
// not a place name, and title-cases them.
func cleanLocation(s string) string {
	var words []string
	for _, tok := range strings.Fields(s) {
		if strings.Contains(tok, "/") || !isWord(tok) || noiseTokens[textutils.Fold(tok)] {
			break
		}
		words = append(words, tok)
	}
	if len(words) == 0 {
		return ""
	}
	return textutils.TitleCase(strings.ToLower(strings.Join(words, " ")))
}

func isWord(tok string) bool {
	for _, r := range tok {
		if r != '-' && !unicode.IsLetter(r) {
			return false
		}
	}
	return tok != "-"
}

package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// TagSource is the provenance of a TransactionTag link.
type TagSource string

const (
	SourceManual       TagSource = "manual"
	SourceAutoRule     TagSource = "auto_rule"
	SourceAutoMerchant TagSource = "auto_merchant"
	SourceAutoNLP      TagSource = "auto_nlp"
)

// Valid reports whether s is a known provenance.
func (s TagSource) Valid() bool {
	switch s {
	case SourceManual, SourceAutoRule, SourceAutoMerchant, SourceAutoNLP:
		return true
	}
	return false
}

// IsAutomatic reports whether links of this source carry a confidence.
func (s TagSource) IsAutomatic() bool {
	return s.Valid() && s != SourceManual
}

// Tag is a label owned by one identity. UsageCount always equals the number
// of TransactionTag links referencing the tag.
type Tag struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Color       string    `json:"color"`
	UsageCount  int       `json:"usage_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// TransactionTag links a transaction to a tag. Confidence is nil for manual links.
type TransactionTag struct {
	TransactionID string    `json:"transaction_id"`
	TagID         string    `json:"tag_id"`
	Source        TagSource `json:"source"`
	Confidence    *float64  `json:"confidence,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks provenance and confidence bounds.
func (l *TransactionTag) Validate() error {
	if l.TransactionID == "" || l.TagID == "" {
		return fmt.Errorf("tag link requires transaction and tag")
	}
	if !l.Source.Valid() {
		return fmt.Errorf("unknown tag source %q", l.Source)
	}
	if l.Confidence != nil && (*l.Confidence < 0 || *l.Confidence > 1) {
		return fmt.Errorf("confidence %.2f outside [0,1]", *l.Confidence)
	}
	return nil
}

// SynonymSource records who decided a synonym.
type SynonymSource string

const (
	SynonymManual       SynonymSource = "manual"
	SynonymNLPSuggested SynonymSource = "nlp_suggested"
	SynonymAutoMerged   SynonymSource = "auto_merged"
)

// TagSynonym redirects an alternate surface form to a canonical tag.
type TagSynonym struct {
	ID             string        `json:"id"`
	OwnerID        string        `json:"owner_id"`
	Synonym        string        `json:"synonym"`
	CanonicalTagID string        `json:"canonical_tag_id"`
	Source         SynonymSource `json:"source"`
	Confidence     float64       `json:"confidence"`
	IsActive       bool          `json:"is_active"`
	CreatedAt      time.Time     `json:"created_at"`
}

// NormalizeTagName lowercases a tag name and joins words with '-'.
// "Small Purchase", "small_purchase" and " small-purchase " all map to
// "small-purchase".
func NormalizeTagName(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(name)), func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-'
	})
	return strings.Join(fields, "-")
}

// TagDisplayName renders a normalized name for people: "small-purchase" -> "Small Purchase".
func TagDisplayName(name string) string {
	words := strings.Split(NormalizeTagName(name), "-")
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = unicode.ToUpper(r[0])
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

var tagColors = map[string]string{
	"grocery":         "#4CAF50",
	"shopping":        "#E91E63",
	"restaurant":      "#FF9800",
	"fuel":            "#795548",
	"transport":       "#2196F3",
	"entertainment":   "#9C27B0",
	"health":          "#F44336",
	"expense":         "#F44336",
	"income":          "#4CAF50",
	"transfer":        "#607D8B",
	"card-payment":    "#3F51B5",
	"blik":            "#00BCD4",
	"cash-withdrawal": "#8BC34A",
	"subscription":    "#673AB7",
	"utilities":       "#FFC107",
	"travel":          "#03A9F4",
}

// DefaultTagColor is used for names without a palette entry.
const DefaultTagColor = "#9E9E9E"

// TagColor returns the palette colour for a normalized tag name.
func TagColor(name string) string {
	if c, ok := tagColors[NormalizeTagName(name)]; ok {
		return c
	}
	return DefaultTagColor
}

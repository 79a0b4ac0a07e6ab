package models

import (
	"fmt"
	"time"
)

// Merchant is a canonical merchant identity keyed by NormalizedName.
type Merchant struct {
	ID             string    `json:"id"`
	NormalizedName string    `json:"normalized_name"`
	DisplayName    string    `json:"display_name"`
	Category       string    `json:"category,omitempty"`
	LogoURL        string    `json:"logo_url,omitempty"`
	Website        string    `json:"website,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// PatternKind selects how a MerchantPattern is matched against a title.
type PatternKind string

const (
	PatternExact     PatternKind = "exact"
	PatternSubstring PatternKind = "substring"
	PatternRegex     PatternKind = "regex"
)

// Specificity orders kinds for tie-breaks on equal priority; higher wins.
func (k PatternKind) Specificity() int {
	switch k {
	case PatternExact:
		return 3
	case PatternSubstring:
		return 2
	case PatternRegex:
		return 1
	}
	return 0
}

// Valid reports whether k is a known kind.
func (k PatternKind) Valid() bool {
	return k.Specificity() > 0
}

// MerchantPattern is a matching rule owned by a merchant.
type MerchantPattern struct {
	ID         string      `json:"id"`
	MerchantID string      `json:"merchant_id"`
	Kind       PatternKind `json:"kind"`
	Pattern    string      `json:"pattern"`
	Priority   int         `json:"priority"`
}

// Validate checks the pattern before it is stored.
func (p *MerchantPattern) Validate() error {
	if p.MerchantID == "" {
		return fmt.Errorf("merchant pattern requires a merchant")
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("unknown pattern kind %q", p.Kind)
	}
	if p.Pattern == "" {
		return fmt.Errorf("pattern must not be empty")
	}
	return nil
}

// MerchantDefaultTag pre-associates a tag name with a merchant. Tags are
// per identity, so the link is by name and resolved through the ledger.
type MerchantDefaultTag struct {
	ID         string  `json:"id"`
	MerchantID string  `json:"merchant_id"`
	TagName    string  `json:"tag_name"`
	Confidence float64 `json:"confidence"`
	Priority   int     `json:"priority"`
}

// DefaultStoreCountry is assigned to lazily created stores.
const DefaultStoreCountry = "Poland"

// Store is one physical location of a merchant, keyed by (MerchantID, Identifier).
type Store struct {
	ID         string    `json:"id"`
	MerchantID string    `json:"merchant_id"`
	Identifier string    `json:"store_identifier"`
	Name       string    `json:"name,omitempty"`
	Address    string    `json:"address,omitempty"`
	City       string    `json:"city,omitempty"`
	PostalCode string    `json:"postal_code,omitempty"`
	Country    string    `json:"country,omitempty"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MerchantUsage is one row of merchant discovery output: how many
// transactions are linked to a merchant and whether any pattern targets it.
type MerchantUsage struct {
	MerchantID       string `json:"merchant_id"`
	NormalizedName   string `json:"normalized_name"`
	DisplayName      string `json:"display_name"`
	TransactionCount int    `json:"transaction_count"`
	HasPattern       bool   `json:"has_pattern"`
}

// Package store holds the default tagging tables: known merchants with
// their patterns and default tags, and the heuristic tables the tagging
// engine reads. The defaults are embedded; a YAML file with the same layout
// replaces them.
package store

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/parsererror"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default_tables.yaml
var defaultTables []byte

// Tables is the versionable configuration data of the tagging pipeline.
type Tables struct {
	Version               int              `yaml:"version"`
	Merchants             []KnownMerchant  `yaml:"merchants"`
	MerchantTagConfidence float64          `yaml:"merchant_tag_confidence"`
	OperationTypes        []OperationRule  `yaml:"operation_types"`
	Amount                AmountThresholds `yaml:"amount"`
	Keywords              []KeywordRule    `yaml:"keywords"`
}

// KnownMerchant is a merchant seeded with its patterns and default tags.
type KnownMerchant struct {
	Name     string        `yaml:"name"`
	Category string        `yaml:"category"`
	Website  string        `yaml:"website,omitempty"`
	Patterns []PatternSpec `yaml:"patterns"`
	Tags     []DefaultTag  `yaml:"tags"`
}

// PatternSpec describes one MerchantPattern.
type PatternSpec struct {
	Kind     models.PatternKind `yaml:"kind"`
	Pattern  string             `yaml:"pattern"`
	Priority int                `yaml:"priority"`
}

// DefaultTag is a tag proposed for every transaction of a merchant. A zero
// confidence falls back to Tables.MerchantTagConfidence.
type DefaultTag struct {
	Name       string  `yaml:"name"`
	Confidence float64 `yaml:"confidence,omitempty"`
	Priority   int     `yaml:"priority"`
}

// OperationRule maps an operation type to tags.
type OperationRule struct {
	Match      string   `yaml:"match"`
	Tags       []string `yaml:"tags"`
	Confidence float64  `yaml:"confidence"`
}

// AmountThresholds drive the amount heuristics. Magnitude tags only apply
// to expenses.
type AmountThresholds struct {
	ExpenseTag          string  `yaml:"expense_tag"`
	IncomeTag           string  `yaml:"income_tag"`
	SignConfidence      float64 `yaml:"sign_confidence"`
	SmallPurchaseBelow  float64 `yaml:"small_purchase_below"`
	SmallPurchaseTag    string  `yaml:"small_purchase_tag"`
	MajorExpenseAbove   float64 `yaml:"major_expense_above"`
	MajorExpenseTag     string  `yaml:"major_expense_tag"`
	MagnitudeConfidence float64 `yaml:"magnitude_confidence"`
}

// SmallPurchaseLimit is the exclusive upper bound of a small purchase.
func (a AmountThresholds) SmallPurchaseLimit() decimal.Decimal {
	return decimal.NewFromFloat(a.SmallPurchaseBelow)
}

// MajorExpenseLimit is the exclusive lower bound of a major expense.
func (a AmountThresholds) MajorExpenseLimit() decimal.Decimal {
	return decimal.NewFromFloat(a.MajorExpenseAbove)
}

// KeywordRule maps a title keyword to tags.
type KeywordRule struct {
	Keyword    string   `yaml:"keyword"`
	Tags       []string `yaml:"tags"`
	Confidence float64  `yaml:"confidence"`
}

// Default returns the embedded tables.
func Default() (*Tables, error) {
	return Parse(defaultTables)
}

// Parse decodes and validates a tables document.
func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("error parsing tagging tables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Load reads the tables from filename, or returns the defaults when
// filename is empty.
func Load(filename string) (*Tables, error) {
	if filename == "" {
		return Default()
	}
	path, err := FindConfigFile(filename)
	if err != nil {
		return nil, fmt.Errorf("tagging tables %s: %w", filename, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading tagging tables: %w", err)
	}
	return Parse(data)
}

// Validate rejects tables the engine could not use.
func (t *Tables) Validate() error {
	for _, c := range []struct {
		field string
		value float64
	}{
		{"merchant_tag_confidence", t.MerchantTagConfidence},
		{"amount.sign_confidence", t.Amount.SignConfidence},
		{"amount.magnitude_confidence", t.Amount.MagnitudeConfidence},
	} {
		if c.value < 0 || c.value > 1 {
			return &parsererror.ValidationError{Field: c.field, Reason: "must be within [0,1]"}
		}
	}
	if t.Amount.SmallPurchaseBelow < 0 || t.Amount.MajorExpenseAbove < t.Amount.SmallPurchaseBelow {
		return &parsererror.ValidationError{Field: "amount", Reason: "thresholds must satisfy 0 <= small_purchase_below <= major_expense_above"}
	}

	seen := make(map[string]bool)
	for i, m := range t.Merchants {
		field := fmt.Sprintf("merchants[%d]", i)
		if strings.TrimSpace(m.Name) == "" {
			return &parsererror.ValidationError{Field: field, Reason: "name is required"}
		}
		if seen[m.Name] {
			return &parsererror.ValidationError{Field: field, Reason: fmt.Sprintf("duplicate merchant %q", m.Name)}
		}
		seen[m.Name] = true
		for j, p := range m.Patterns {
			if !p.Kind.Valid() || p.Pattern == "" {
				return &parsererror.ValidationError{
					Field:  fmt.Sprintf("%s.patterns[%d]", field, j),
					Reason: fmt.Sprintf("invalid pattern %q of kind %q", p.Pattern, p.Kind),
				}
			}
			if p.Kind == models.PatternRegex {
				if _, err := regexp.Compile(p.Pattern); err != nil {
					return &parsererror.ValidationError{Field: fmt.Sprintf("%s.patterns[%d]", field, j), Reason: err.Error()}
				}
			}
		}
		for j, d := range m.Tags {
			if models.NormalizeTagName(d.Name) == "" || d.Confidence < 0 || d.Confidence > 1 {
				return &parsererror.ValidationError{Field: fmt.Sprintf("%s.tags[%d]", field, j), Reason: "tag needs a name and a confidence within [0,1]"}
			}
		}
	}
	for i, r := range t.OperationTypes {
		if r.Match == "" || len(r.Tags) == 0 || r.Confidence < 0 || r.Confidence > 1 {
			return &parsererror.ValidationError{Field: fmt.Sprintf("operation_types[%d]", i), Reason: "needs match, tags and a confidence within [0,1]"}
		}
	}
	for i, r := range t.Keywords {
		if r.Keyword == "" || len(r.Tags) == 0 || r.Confidence < 0 || r.Confidence > 1 {
			return &parsererror.ValidationError{Field: fmt.Sprintf("keywords[%d]", i), Reason: "needs keyword, tags and a confidence within [0,1]"}
		}
	}
	return nil
}

// FindConfigFile looks for filename as given, then under ./config and
// $HOME/.stmt-ledger.
func FindConfigFile(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		if _, err := os.Stat(filename); err != nil {
			return "", os.ErrNotExist
		}
		return filename, nil
	}

	locations := []string{
		filename,
		filepath.Join("config", filename),
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, ".stmt-ledger", filename))
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location, nil
		}
	}
	return "", os.ErrNotExist
}

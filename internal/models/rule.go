package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRuleConfidence applies when a rule is saved without one.
const DefaultRuleConfidence = 0.9

// TaggingRule is a user rule: when Condition matches, TagIDs are proposed
// at Confidence. Condition holds the serialized predicate tree.
type TaggingRule struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Priority    int       `json:"priority"`
	Condition   string    `json:"condition"`
	TagIDs      []string  `json:"tag_ids"`
	Confidence  float64   `json:"confidence"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks everything except the condition document, which the
// tagging package parses.
func (r *TaggingRule) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return fmt.Errorf("rule requires an owner")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if len(r.TagIDs) == 0 {
		return fmt.Errorf("rule %q applies no tags", r.Name)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rule confidence %.2f outside [0,1]", r.Confidence)
	}
	return nil
}

// RuleApplication is the audit record of one rule applied to one transaction.
type RuleApplication struct {
	RuleID        string    `json:"rule_id"`
	TransactionID string    `json:"transaction_id"`
	AppliedAt     time.Time `json:"applied_at"`
}

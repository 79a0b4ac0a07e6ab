package tagging

import (
	"context"
	"fmt"
	"strings"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/parsererror"
	"fjacquet/stmt-ledger/internal/repository"
	"fjacquet/stmt-ledger/internal/store"
	"fjacquet/stmt-ledger/internal/textutils"
)

// Proposal is one proposed tag for a transaction.
type Proposal struct {
	Tag        string           `json:"tag"`
	TagID      string           `json:"tag_id,omitempty"`
	Confidence float64          `json:"confidence"`
	Source     models.TagSource `json:"source"`
	Origin     string           `json:"origin"`
	Rationale  string           `json:"rationale"`
	RuleID     string           `json:"rule_id,omitempty"`
}

// Input is what a Source looks at.
type Input struct {
	Transaction *models.Transaction
	Merchant    *models.Merchant
	Facts       Facts
}

// Source proposes tags for a transaction. Sources never write links.
type Source interface {
	// Propose returns the source's proposals, best first.
	Propose(ctx context.Context, in *Input) ([]Proposal, error)

	// Name identifies the source in logs and rationales.
	Name() string
}

// RuleSource evaluates the owner's active TaggingRules by descending
// priority. Rules that were already applied to the transaction are not
// evaluated again; rules that cannot be evaluated are skipped.
type RuleSource struct {
	rules  repository.RuleRepository
	tags   repository.TagRepository
	logger logging.Logger
}

// NewRuleSource returns a RuleSource.
func NewRuleSource(rules repository.RuleRepository, tags repository.TagRepository, logger logging.Logger) *RuleSource {
	return &RuleSource{rules: rules, tags: tags, logger: logger}
}

// Name returns "rule".
func (s *RuleSource) Name() string { return "rule" }

// Propose returns the tags of every matching rule not yet applied to the
// transaction.
func (s *RuleSource) Propose(ctx context.Context, in *Input) ([]Proposal, error) {
	tx := in.Transaction
	rules, err := s.rules.ListRules(ctx, tx.OwnerID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load tagging rules: %w", err)
	}

	var out []Proposal
	for _, r := range rules {
		applied, err := s.rules.HasApplication(ctx, r.ID, tx.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check rule application: %w", err)
		}
		if applied {
			continue
		}

		matched, err := s.evaluate(&r, in.Facts)
		if err != nil {
			s.logger.WithError(err).Warn("Skipping tagging rule",
				logging.F(logging.FieldRule, r.ID),
				logging.F(logging.FieldTransactionID, tx.ID))
			continue
		}
		if !matched {
			continue
		}

		for _, tagID := range r.TagIDs {
			tag, err := s.tags.GetTag(ctx, tagID)
			if err != nil {
				s.logger.WithError(err).Warn("Tagging rule references a missing tag",
					logging.F(logging.FieldRule, r.ID),
					logging.F(logging.FieldTag, tagID))
				continue
			}
			out = append(out, Proposal{
				Tag:        tag.Name,
				TagID:      tag.ID,
				Confidence: r.Confidence,
				Source:     models.SourceAutoRule,
				Origin:     s.Name(),
				Rationale:  fmt.Sprintf("rule %q (priority %d)", r.Name, r.Priority),
				RuleID:     r.ID,
			})
		}
	}
	return out, nil
}

func (s *RuleSource) evaluate(r *models.TaggingRule, facts Facts) (bool, error) {
	_, pred, err := parseCondition(r.Condition)
	if err != nil {
		return false, &parsererror.RuleEvaluationError{RuleID: r.ID, Err: err}
	}
	return pred(facts), nil
}

// MerchantSource proposes the default tags of the transaction's merchant,
// but only when the merchant link is confident enough.
type MerchantSource struct {
	merchants repository.MerchantRepository
	threshold float64
}

// NewMerchantSource returns a MerchantSource that ignores links below threshold.
func NewMerchantSource(merchants repository.MerchantRepository, threshold float64) *MerchantSource {
	return &MerchantSource{merchants: merchants, threshold: threshold}
}

// Name returns "merchant".
func (s *MerchantSource) Name() string { return "merchant" }

// Propose returns the merchant default tags.
func (s *MerchantSource) Propose(ctx context.Context, in *Input) ([]Proposal, error) {
	tx := in.Transaction
	if !tx.HasMerchant() || tx.MerchantConfidence < s.threshold {
		return nil, nil
	}
	defaults, err := s.merchants.DefaultTags(ctx, tx.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant default tags: %w", err)
	}

	name := tx.NormalizedMerchantName
	if in.Merchant != nil {
		name = in.Merchant.DisplayName
	}
	out := make([]Proposal, 0, len(defaults))
	for _, d := range defaults {
		out = append(out, Proposal{
			Tag:        d.TagName,
			Confidence: d.Confidence,
			Source:     models.SourceAutoMerchant,
			Origin:     s.Name(),
			Rationale:  fmt.Sprintf("default tag of merchant %s", name),
		})
	}
	return out, nil
}

// OperationTypeSource maps the bank's operation type to tags. The first
// table entry contained in the folded operation type wins.
type OperationTypeSource struct {
	rules []store.OperationRule
}

// NewOperationTypeSource returns an OperationTypeSource over rules.
func NewOperationTypeSource(rules []store.OperationRule) *OperationTypeSource {
	return &OperationTypeSource{rules: rules}
}

// Name returns "operation_type".
func (s *OperationTypeSource) Name() string { return "operation_type" }

// Propose returns the tags of the first matching operation type entry.
func (s *OperationTypeSource) Propose(ctx context.Context, in *Input) ([]Proposal, error) {
	op := in.Facts.OperationType
	if op == "" {
		return nil, nil
	}
	for _, r := range s.rules {
		if !strings.Contains(op, textutils.Fold(r.Match)) {
			continue
		}
		return tableProposals(r.Tags, r.Confidence, s.Name(),
			fmt.Sprintf("operation type %q", in.Transaction.OperationType)), nil
	}
	return nil, nil
}

// AmountSource tags by sign and, for expenses, by magnitude.
type AmountSource struct {
	t store.AmountThresholds
}

// NewAmountSource returns an AmountSource using t.
func NewAmountSource(t store.AmountThresholds) *AmountSource {
	return &AmountSource{t: t}
}

// Name returns "amount".
func (s *AmountSource) Name() string { return "amount" }

// Propose returns the sign tag and, for expenses, a magnitude tag.
func (s *AmountSource) Propose(ctx context.Context, in *Input) ([]Proposal, error) {
	amount := in.Facts.Amount
	var out []Proposal
	switch {
	case amount.IsNegative():
		out = append(out, tableProposals([]string{s.t.ExpenseTag}, s.t.SignConfidence, s.Name(), "negative amount")...)
	case amount.IsPositive():
		out = append(out, tableProposals([]string{s.t.IncomeTag}, s.t.SignConfidence, s.Name(), "positive amount")...)
		return out, nil
	default:
		return nil, nil
	}

	abs := amount.Abs()
	switch {
	case abs.LessThan(s.t.SmallPurchaseLimit()):
		out = append(out, tableProposals([]string{s.t.SmallPurchaseTag}, s.t.MagnitudeConfidence, s.Name(),
			fmt.Sprintf("expense below %s", s.t.SmallPurchaseLimit()))...)
	case abs.GreaterThan(s.t.MajorExpenseLimit()):
		out = append(out, tableProposals([]string{s.t.MajorExpenseTag}, s.t.MagnitudeConfidence, s.Name(),
			fmt.Sprintf("expense above %s", s.t.MajorExpenseLimit()))...)
	}
	return out, nil
}

// KeywordSource searches the title and the extracted location for keywords.
// Every matching keyword contributes.
type KeywordSource struct {
	rules []store.KeywordRule
}

// NewKeywordSource returns a KeywordSource over rules.
func NewKeywordSource(rules []store.KeywordRule) *KeywordSource {
	return &KeywordSource{rules: rules}
}

// Name returns "keyword".
func (s *KeywordSource) Name() string { return "keyword" }

// Propose returns the tags of every keyword found.
func (s *KeywordSource) Propose(ctx context.Context, in *Input) ([]Proposal, error) {
	text := in.Facts.Title
	if loc := textutils.Fold(in.Transaction.LocationExtracted); loc != "" {
		text += " " + loc
	}
	if text == "" {
		return nil, nil
	}

	var out []Proposal
	for _, r := range s.rules {
		kw := textutils.Fold(r.Keyword)
		if kw == "" || !strings.Contains(text, kw) {
			continue
		}
		out = append(out, tableProposals(r.Tags, r.Confidence, s.Name(), fmt.Sprintf("keyword %q", r.Keyword))...)
	}
	return out, nil
}

// tableProposals builds heuristic proposals. Heuristics have no provenance
// of their own and are recorded as auto_rule.
func tableProposals(tags []string, confidence float64, origin, rationale string) []Proposal {
	out := make([]Proposal, 0, len(tags))
	for _, t := range tags {
		name := models.NormalizeTagName(t)
		if name == "" {
			continue
		}
		out = append(out, Proposal{
			Tag:        name,
			Confidence: confidence,
			Source:     models.SourceAutoRule,
			Origin:     origin,
			Rationale:  rationale,
		})
	}
	return out
}

// Package tagging proposes tags for transactions and, on request, commits
// them through the ledger.
//
// Sources run in a fixed precedence order: user rules, merchant default
// tags, operation type, amount, keywords, then any extra source such as
// the Gemini one. Every source contributes, but when two sources propose
// the same tag the proposal of the earlier source is kept.
package tagging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fjacquet/stmt-ledger/internal/ledger"
	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/parsererror"
	"fjacquet/stmt-ledger/internal/repository"
	"fjacquet/stmt-ledger/internal/store"
)

// Defaults for Options.
const (
	DefaultMinApplyConfidence    = 0.5
	DefaultAutoMerchantThreshold = 0.8
)

// Repository is the persistence the engine reads.
type Repository interface {
	repository.RuleRepository
	repository.TagRepository
	repository.MerchantRepository
}

// Options tunes an Engine.
type Options struct {
	// MinApplyConfidence is the lowest confidence Apply commits.
	MinApplyConfidence float64
	// AutoMerchantThreshold is the merchant-match confidence needed before
	// merchant default tags are proposed.
	AutoMerchantThreshold float64
}

// Engine is the auto-tagging engine. It is safe for concurrent use.
type Engine struct {
	repo    Repository
	ledger  *ledger.Ledger
	sources []Source
	logger  logging.Logger
	opts    Options
}

// NewEngine returns an Engine with the built-in sources over tables.
func NewEngine(repo Repository, l *ledger.Ledger, tables *store.Tables, logger logging.Logger, opts Options) *Engine {
	if opts.MinApplyConfidence <= 0 {
		opts.MinApplyConfidence = DefaultMinApplyConfidence
	}
	if opts.AutoMerchantThreshold <= 0 {
		opts.AutoMerchantThreshold = DefaultAutoMerchantThreshold
	}
	return &Engine{
		repo:   repo,
		ledger: l,
		sources: []Source{
			NewRuleSource(repo, repo, logger),
			NewMerchantSource(repo, opts.AutoMerchantThreshold),
			NewOperationTypeSource(tables.OperationTypes),
			NewAmountSource(tables.Amount),
			NewKeywordSource(tables.Keywords),
		},
		logger: logger,
		opts:   opts,
	}
}

// AddSource appends a source below all existing ones.
func (e *Engine) AddSource(s Source) {
	e.sources = append(e.sources, s)
}

// Sources returns the source names in precedence order.
func (e *Engine) Sources() []string {
	names := make([]string, len(e.sources))
	for i, s := range e.sources {
		names[i] = s.Name()
	}
	return names
}

// Suggest returns the merged proposals for tx in precedence order. Nothing
// is written.
func (e *Engine) Suggest(ctx context.Context, tx *models.Transaction) ([]Proposal, error) {
	proposals, _, err := e.suggest(ctx, tx)
	return proposals, err
}

func (e *Engine) suggest(ctx context.Context, tx *models.Transaction) ([]Proposal, []string, error) {
	in := &Input{Transaction: tx}
	if tx.HasMerchant() {
		m, err := e.repo.GetMerchant(ctx, tx.MerchantID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("failed to load merchant %s: %w", tx.MerchantID, err)
		}
		in.Merchant = m
	}
	in.Facts = FactsOf(tx, in.Merchant)

	var (
		merged  []Proposal
		seen    = make(map[string]bool)
		matched []string
		rules   = make(map[string]bool)
	)
	for _, src := range e.sources {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		proposals, err := src.Propose(ctx, in)
		if err != nil {
			return nil, nil, fmt.Errorf("%s source: %w", src.Name(), err)
		}
		for _, p := range proposals {
			if p.RuleID != "" && !rules[p.RuleID] {
				rules[p.RuleID] = true
				matched = append(matched, p.RuleID)
			}
			name, err := e.ledger.CanonicalName(ctx, tx.OwnerID, p.Tag)
			if err != nil {
				return nil, nil, err
			}
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			p.Tag = name
			merged = append(merged, p)
		}
	}
	return merged, matched, nil
}

// Assignment is a proposal that Apply committed or found already linked.
type Assignment struct {
	Proposal
	Created bool `json:"created"`
}

// Apply suggests tags for tx and links every proposal whose confidence
// reaches MinApplyConfidence. Existing links are left as they are. Matched
// rules are recorded so they are not evaluated again for tx.
func (e *Engine) Apply(ctx context.Context, tx *models.Transaction) ([]Assignment, error) {
	proposals, matched, err := e.suggest(ctx, tx)
	if err != nil {
		return nil, err
	}

	var out []Assignment
	for _, p := range proposals {
		if p.Confidence < e.opts.MinApplyConfidence {
			continue
		}
		tagID := p.TagID
		if tagID == "" {
			tag, err := e.ledger.EnsureTag(ctx, tx.OwnerID, p.Tag)
			if err != nil {
				return out, err
			}
			tagID = tag.ID
		}
		confidence := p.Confidence
		created, err := e.ledger.ApplyTag(ctx, tx, tagID, p.Source, &confidence)
		if err != nil {
			return out, err
		}
		p.TagID = tagID
		out = append(out, Assignment{Proposal: p, Created: created})
	}

	for _, ruleID := range matched {
		if _, err := e.repo.RecordApplication(ctx, &models.RuleApplication{
			RuleID:        ruleID,
			TransactionID: tx.ID,
		}); err != nil {
			return out, fmt.Errorf("failed to record rule application: %w", err)
		}
	}

	if len(out) > 0 {
		e.logger.Debug("Auto-tagged transaction",
			logging.F(logging.FieldTransactionID, tx.ID),
			logging.F(logging.FieldCount, len(out)))
	}
	return out, nil
}

// SaveRule validates and stores a rule. The condition document is parsed
// and stored in canonical form, and tagNames are resolved to the owner's
// tags, created when missing. Invalid rules are rejected with a
// *parsererror.ValidationError.
func (e *Engine) SaveRule(ctx context.Context, r *models.TaggingRule, tagNames []string) error {
	c, err := ParseCondition(r.Condition)
	if err != nil {
		return err
	}
	encoded, err := c.Encode()
	if err != nil {
		return err
	}
	r.Condition = encoded

	if r.Confidence == 0 {
		r.Confidence = models.DefaultRuleConfidence
	}
	r.Name = strings.TrimSpace(r.Name)
	r.IsActive = true

	probe := *r
	probe.TagIDs = tagNames
	if err := probe.Validate(); err != nil {
		return &parsererror.ValidationError{Field: "rule", Reason: err.Error()}
	}

	r.TagIDs = nil
	seen := make(map[string]bool)
	for _, name := range tagNames {
		tag, err := e.ledger.EnsureTag(ctx, r.OwnerID, name)
		if err != nil {
			return err
		}
		if !seen[tag.ID] {
			seen[tag.ID] = true
			r.TagIDs = append(r.TagIDs, tag.ID)
		}
	}

	if err := r.Validate(); err != nil {
		return &parsererror.ValidationError{Field: "rule", Reason: err.Error()}
	}
	if err := e.repo.CreateRule(ctx, r); err != nil {
		return fmt.Errorf("failed to save rule %s: %w", r.Name, err)
	}
	e.logger.Info("Saved tagging rule",
		logging.F(logging.FieldRule, r.ID),
		logging.F(logging.FieldOwner, r.OwnerID),
		logging.F("name", r.Name))
	return nil
}

// Package merchant derives a normalized merchant and store identity from
// transaction titles.
//
// Stored MerchantPatterns are tried first, best first: higher priority,
// then the more specific kind (exact, substring, regex), then the longer
// pattern. Exact and substring patterns compare against the folded title
// (lowercase, no diacritics); regex patterns run case-insensitively on the
// title as written. When nothing matches, a heuristic reads the merchant
// name, store code and location out of the title and the merchant is
// created on the fly with a lower confidence.
package merchant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/parsererror"
	"fjacquet/stmt-ledger/internal/repository"
	"fjacquet/stmt-ledger/internal/textutils"

	"github.com/patrickmn/go-cache"
)

// DefaultPatternConfidence is the confidence of a pattern match.
const DefaultPatternConfidence = 0.95

const patternsKey = "patterns"

// Source tells how a Result was obtained.
type Source string

const (
	SourcePattern   Source = "pattern"
	SourceHeuristic Source = "heuristic"
)

// Result is the enrichment proposed for one transaction.
type Result struct {
	Merchant   *models.Merchant
	Store      *models.Store
	Pattern    *models.MerchantPattern
	Location   string
	Confidence float64
	Source     Source
}

// Enrichment converts r into the fill-only update for a transaction.
func (r Result) Enrichment() models.Enrichment {
	var e models.Enrichment
	if r.Merchant != nil {
		e.MerchantID = r.Merchant.ID
		e.NormalizedMerchantName = r.Merchant.NormalizedName
		e.Confidence = r.Confidence
	}
	if r.Store != nil {
		e.StoreID = r.Store.ID
	}
	e.Location = r.Location
	return e
}

// Options tunes an Extractor.
type Options struct {
	PatternConfidence float64
	CacheTTL          time.Duration
}

// Extractor resolves merchants. It is safe for concurrent use.
type Extractor struct {
	merchants    repository.MerchantRepository
	transactions repository.TransactionRepository
	logger       logging.Logger
	opts         Options

	cache  *cache.Cache
	loadMu sync.Mutex
}

type compiledPattern struct {
	models.MerchantPattern
	re *regexp.Regexp
}

// NewExtractor returns an Extractor backed by the given repositories.
func NewExtractor(merchants repository.MerchantRepository, transactions repository.TransactionRepository, logger logging.Logger, opts Options) *Extractor {
	if opts.PatternConfidence <= 0 {
		opts.PatternConfidence = DefaultPatternConfidence
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &Extractor{
		merchants:    merchants,
		transactions: transactions,
		logger:       logger,
		opts:         opts,
		cache:        cache.New(opts.CacheTTL, 2*opts.CacheTTL),
	}
}

// Invalidate drops cached patterns and merchants. Call it after changing
// patterns outside AddPattern.
func (e *Extractor) Invalidate() {
	e.cache.Flush()
}

// AddPattern stores a new pattern and makes it visible to the next Extract.
func (e *Extractor) AddPattern(ctx context.Context, p *models.MerchantPattern) error {
	if p.Kind == models.PatternRegex {
		if _, err := regexp.Compile("(?i)" + p.Pattern); err != nil {
			return &parsererror.ValidationError{Field: "pattern", Reason: err.Error()}
		}
	} else {
		p.Pattern = textutils.Fold(p.Pattern)
	}
	if _, err := e.merchants.AddPattern(ctx, p); err != nil {
		return err
	}
	e.Invalidate()
	return nil
}

// Extract proposes the merchant, store and location of tx. It creates
// merchants and stores that do not exist yet but never touches tx. A title
// with nothing to go on yields parsererror.ErrEnrichmentAmbiguous.
func (e *Extractor) Extract(ctx context.Context, tx *models.Transaction) (Result, error) {
	title := tx.Title
	if strings.TrimSpace(title) == "" {
		title = textutils.CleanTitle(tx.RawTitle)
	}
	if title == "" {
		return Result{}, parsererror.ErrEnrichmentAmbiguous
	}

	parts := parseTitle(title)
	res := Result{Location: parts.location}

	p, err := e.match(ctx, title, parts)
	if err != nil {
		return Result{}, err
	}
	if p != nil {
		m, err := e.merchant(ctx, p.MerchantID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to load merchant of pattern %s: %w", p.ID, err)
		}
		res.Merchant = m
		res.Pattern = &p.MerchantPattern
		res.Confidence = e.opts.PatternConfidence
		res.Source = SourcePattern
	} else {
		display := textutils.TitleCase(parts.name)
		normalized := textutils.Fold(display)
		if normalized == "" {
			return Result{}, parsererror.ErrEnrichmentAmbiguous
		}
		m, created, err := e.merchants.EnsureMerchant(ctx, &models.Merchant{
			NormalizedName: normalized,
			DisplayName:    display,
		})
		if err != nil {
			return Result{}, fmt.Errorf("failed to create merchant %q: %w", normalized, err)
		}
		if created {
			e.logger.Debug("Created merchant from title",
				logging.F(logging.FieldMerchant, normalized),
				logging.F(logging.FieldConfidence, parts.confidence))
		}
		res.Merchant = m
		res.Confidence = parts.confidence
		res.Source = SourceHeuristic
	}

	if parts.storeID != "" && parts.confidence > confidenceFallback {
		st, created, err := e.merchants.EnsureStore(ctx, &models.Store{
			MerchantID: res.Merchant.ID,
			Identifier: parts.storeID,
			City:       parts.location,
			Country:    models.DefaultStoreCountry,
		})
		if err != nil {
			return Result{}, fmt.Errorf("failed to resolve store %q: %w", parts.storeID, err)
		}
		if created {
			e.logger.Debug("Created store",
				logging.F(logging.FieldMerchant, res.Merchant.NormalizedName),
				logging.F(logging.FieldStore, parts.storeID))
		}
		res.Store = st
	}
	return res, nil
}

// Enrich extracts and persists the enrichment of tx, filling only empty
// fields, and returns the stored transaction. An ambiguous title leaves tx
// as it is and returns parsererror.ErrEnrichmentAmbiguous.
func (e *Extractor) Enrich(ctx context.Context, tx *models.Transaction) (*models.Transaction, Result, error) {
	if tx.HasMerchant() && tx.StoreID != "" && tx.LocationExtracted != "" {
		return tx, Result{}, nil
	}

	res, err := e.Extract(ctx, tx)
	if err != nil {
		if errors.Is(err, parsererror.ErrEnrichmentAmbiguous) {
			e.logger.Debug("No merchant found in title", logging.F(logging.FieldTransactionID, tx.ID))
		}
		return tx, Result{}, err
	}

	enrichment := res.Enrichment()
	if enrichment.IsEmpty() {
		return tx, res, nil
	}
	updated, err := e.transactions.FillEnrichment(ctx, tx.ID, enrichment)
	if err != nil {
		return tx, res, fmt.Errorf("failed to store enrichment: %w", err)
	}
	return updated, res, nil
}

func (e *Extractor) match(ctx context.Context, title string, parts titleParts) (*compiledPattern, error) {
	patterns, err := e.patterns(ctx)
	if err != nil {
		return nil, err
	}

	folded := textutils.Fold(title)
	foldedName := textutils.Fold(parts.name)
	for i := range patterns {
		p := &patterns[i]
		var ok bool
		switch p.Kind {
		case models.PatternExact:
			ok = folded == p.Pattern || foldedName == p.Pattern
		case models.PatternSubstring:
			ok = strings.Contains(folded, p.Pattern)
		case models.PatternRegex:
			ok = p.re != nil && p.re.MatchString(title)
		}
		if ok {
			return p, nil
		}
	}
	return nil, nil
}

// patterns returns every stored pattern, best first.
func (e *Extractor) patterns(ctx context.Context) ([]compiledPattern, error) {
	if v, found := e.cache.Get(patternsKey); found {
		return v.([]compiledPattern), nil
	}

	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if v, found := e.cache.Get(patternsKey); found {
		return v.([]compiledPattern), nil
	}

	stored, err := e.merchants.ListPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant patterns: %w", err)
	}

	compiled := make([]compiledPattern, 0, len(stored))
	for _, p := range stored {
		cp := compiledPattern{MerchantPattern: p}
		if p.Kind == models.PatternRegex {
			re, err := regexp.Compile("(?i)" + p.Pattern)
			if err != nil {
				e.logger.Warn("Skipping invalid merchant pattern",
					logging.F(logging.FieldPattern, p.Pattern),
					logging.F(logging.FieldError, err.Error()))
				continue
			}
			cp.re = re
		}
		compiled = append(compiled, cp)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		a, b := compiled[i], compiled[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Kind.Specificity() != b.Kind.Specificity() {
			return a.Kind.Specificity() > b.Kind.Specificity()
		}
		if len(a.Pattern) != len(b.Pattern) {
			return len(a.Pattern) > len(b.Pattern)
		}
		return a.Pattern < b.Pattern
	})

	e.cache.Set(patternsKey, compiled, cache.DefaultExpiration)
	return compiled, nil
}

func (e *Extractor) merchant(ctx context.Context, id string) (*models.Merchant, error) {
	key := "merchant:" + id
	if v, found := e.cache.Get(key); found {
		m := v.(models.Merchant)
		return &m, nil
	}
	m, err := e.merchants.GetMerchant(ctx, id)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, *m, cache.DefaultExpiration)
	return m, nil
}

// Package memory is an in-memory Repository. It is safe for concurrent use
// and serializes every write behind one lock, which also makes the
// multi-row operations atomic. Data is lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/repository"

	"github.com/google/uuid"
)

// Store implements repository.Repository.
type Store struct {
	mu sync.RWMutex

	batches     map[string]*models.ImportBatch
	batchByHash map[string]string

	txs      map[string]*models.Transaction
	txByHash map[string]string
	txOrder  []string

	merchants      map[string]*models.Merchant
	merchantByName map[string]string
	patterns       []models.MerchantPattern
	defaultTags    []models.MerchantDefaultTag
	stores         map[string]*models.Store
	storeByKey     map[string]string

	tags      map[string]*models.Tag
	tagByName map[string]string
	links     map[string]map[string]models.TransactionTag
	synonyms  map[string]*models.TagSynonym

	rules        map[string]*models.TaggingRule
	applications map[string]models.RuleApplication

	now func() time.Time
}

var _ repository.Repository = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		batches:        make(map[string]*models.ImportBatch),
		batchByHash:    make(map[string]string),
		txs:            make(map[string]*models.Transaction),
		txByHash:       make(map[string]string),
		merchants:      make(map[string]*models.Merchant),
		merchantByName: make(map[string]string),
		stores:         make(map[string]*models.Store),
		storeByKey:     make(map[string]string),
		tags:           make(map[string]*models.Tag),
		tagByName:      make(map[string]string),
		links:          make(map[string]map[string]models.TransactionTag),
		synonyms:       make(map[string]*models.TagSynonym),
		rules:          make(map[string]*models.TaggingRule),
		applications:   make(map[string]models.RuleApplication),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Close implements repository.Repository.
func (s *Store) Close() error { return nil }

func key(parts ...string) string {
	return strings.Join(parts, "\x00")
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// --- batches ---

func (s *Store) CreateBatch(ctx context.Context, b *models.ImportBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hk := key(b.OwnerID, b.FileHash)
	if _, exists := s.batchByHash[hk]; exists {
		return fmt.Errorf("failed to create batch: file hash %s already recorded for owner %s", b.FileHash, b.OwnerID)
	}
	b.ID = newID(b.ID)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	c := *b
	s.batches[b.ID] = &c
	s.batchByHash[hk] = b.ID
	return nil
}

func (s *Store) UpdateBatch(ctx context.Context, b *models.ImportBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.batches[b.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Status = b.Status
	stored.ErrorMessage = b.ErrorMessage
	stored.AccountNumber = b.AccountNumber
	stored.AccountType = b.AccountType
	stored.Currency = b.Currency
	stored.PeriodStart = b.PeriodStart
	stored.PeriodEnd = b.PeriodEnd
	stored.CompletedAt = b.CompletedAt
	return nil
}

func (s *Store) ResetBatch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = models.BatchProcessing
	b.TransactionsImported, b.DuplicatesSkipped, b.RowsFailed = 0, 0, 0
	b.ErrorMessage = ""
	b.CompletedAt = time.Time{}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (*models.ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *b
	return &c, nil
}

func (s *Store) FindBatchByHash(ctx context.Context, ownerID, fileHash string) (*models.ImportBatch, error) {
	s.mu.RLock()
	id, ok := s.batchByHash[key(ownerID, fileHash)]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.GetBatch(ctx, id)
}

func (s *Store) ListBatches(ctx context.Context, ownerID string) ([]models.ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ImportBatch
	for _, b := range s.batches {
		if b.OwnerID == ownerID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, tx := range s.txs {
		if tx.ImportBatchID == id {
			tx.ImportBatchID = ""
		}
	}
	delete(s.batchByHash, key(b.OwnerID, b.FileHash))
	delete(s.batches, id)
	return nil
}

// --- transactions ---

func (s *Store) RecordRow(ctx context.Context, tx *models.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[tx.ImportBatchID]
	if tx.ImportBatchID != "" && !ok {
		return false, fmt.Errorf("failed to record row: batch %s: %w", tx.ImportBatchID, repository.ErrNotFound)
	}
	if _, dup := s.txByHash[tx.Hash]; dup {
		if b != nil {
			b.DuplicatesSkipped++
		}
		return false, nil
	}

	tx.ID = newID(tx.ID)
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	c := *tx
	s.txs[tx.ID] = &c
	s.txByHash[tx.Hash] = tx.ID
	s.txOrder = append(s.txOrder, tx.ID)
	if b != nil {
		b.TransactionsImported++
	}
	return true, nil
}

func (s *Store) bumpBatch(batchID string, bump func(*models.ImportBatch)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return repository.ErrNotFound
	}
	bump(b)
	return nil
}

func (s *Store) CountDuplicate(ctx context.Context, batchID string) error {
	return s.bumpBatch(batchID, func(b *models.ImportBatch) { b.DuplicatesSkipped++ })
}

func (s *Store) CountRowError(ctx context.Context, batchID string) error {
	return s.bumpBatch(batchID, func(b *models.ImportBatch) { b.RowsFailed++ })
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *tx
	return &c, nil
}

func (s *Store) listTransactions(ownerID string, keep func(*models.Transaction) bool) []models.Transaction {
	var out []models.Transaction
	for _, id := range s.txOrder {
		tx := s.txs[id]
		if tx.OwnerID == ownerID && keep(tx) {
			out = append(out, *tx)
		}
	}
	return out
}

func (s *Store) ListTransactions(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTransactions(ownerID, func(*models.Transaction) bool { return true }), nil
}

func (s *Store) ListUntagged(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTransactions(ownerID, func(tx *models.Transaction) bool {
		return len(s.links[tx.ID]) == 0
	}), nil
}

func (s *Store) FillEnrichment(ctx context.Context, id string, e models.Enrichment) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e.ApplyTo(tx)
	c := *tx
	return &c, nil
}

func (s *Store) MerchantUsage(ctx context.Context, ownerID string, minCount int) ([]models.MerchantUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, tx := range s.txs {
		if tx.OwnerID == ownerID && tx.MerchantID != "" {
			counts[tx.MerchantID]++
		}
	}
	withPattern := make(map[string]bool)
	for _, p := range s.patterns {
		withPattern[p.MerchantID] = true
	}

	var out []models.MerchantUsage
	for id, n := range counts {
		if n < minCount {
			continue
		}
		m := s.merchants[id]
		if m == nil {
			continue
		}
		out = append(out, models.MerchantUsage{
			MerchantID:       id,
			NormalizedName:   m.NormalizedName,
			DisplayName:      m.DisplayName,
			TransactionCount: n,
			HasPattern:       withPattern[id],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TransactionCount != out[j].TransactionCount {
			return out[i].TransactionCount > out[j].TransactionCount
		}
		return out[i].NormalizedName < out[j].NormalizedName
	})
	return out, nil
}

// --- merchants ---

func (s *Store) GetMerchant(ctx context.Context, id string) (*models.Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.merchants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (s *Store) FindMerchantByName(ctx context.Context, normalizedName string) (*models.Merchant, error) {
	s.mu.RLock()
	id, ok := s.merchantByName[normalizedName]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.GetMerchant(ctx, id)
}

func (s *Store) EnsureMerchant(ctx context.Context, m *models.Merchant) (*models.Merchant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.merchantByName[m.NormalizedName]; ok {
		c := *s.merchants[id]
		return &c, false, nil
	}
	c := *m
	c.ID = newID(c.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.merchants[c.ID] = &c
	s.merchantByName[c.NormalizedName] = c.ID
	out := c
	return &out, true, nil
}

func (s *Store) ListMerchants(ctx context.Context) ([]models.Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Merchant, 0, len(s.merchants))
	for _, m := range s.merchants {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })
	return out, nil
}

func (s *Store) AddPattern(ctx context.Context, p *models.MerchantPattern) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.merchants[p.MerchantID]; !ok {
		return false, fmt.Errorf("failed to add pattern: merchant %s: %w", p.MerchantID, repository.ErrNotFound)
	}
	for _, existing := range s.patterns {
		if existing.MerchantID == p.MerchantID && existing.Kind == p.Kind && existing.Pattern == p.Pattern {
			p.ID = existing.ID
			return false, nil
		}
	}
	p.ID = newID(p.ID)
	s.patterns = append(s.patterns, *p)
	return true, nil
}

func (s *Store) ListPatterns(ctx context.Context) ([]models.MerchantPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.MerchantPattern, len(s.patterns))
	copy(out, s.patterns)
	return out, nil
}

func (s *Store) AddDefaultTag(ctx context.Context, d *models.MerchantDefaultTag) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.merchants[d.MerchantID]; !ok {
		return false, fmt.Errorf("failed to add default tag: merchant %s: %w", d.MerchantID, repository.ErrNotFound)
	}
	for _, existing := range s.defaultTags {
		if existing.MerchantID == d.MerchantID && existing.TagName == d.TagName {
			d.ID = existing.ID
			return false, nil
		}
	}
	d.ID = newID(d.ID)
	s.defaultTags = append(s.defaultTags, *d)
	return true, nil
}

func (s *Store) DefaultTags(ctx context.Context, merchantID string) ([]models.MerchantDefaultTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MerchantDefaultTag
	for _, d := range s.defaultTags {
		if d.MerchantID == merchantID {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (s *Store) EnsureStore(ctx context.Context, st *models.Store) (*models.Store, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.merchants[st.MerchantID]; !ok {
		return nil, false, fmt.Errorf("failed to ensure store: merchant %s: %w", st.MerchantID, repository.ErrNotFound)
	}
	k := key(st.MerchantID, st.Identifier)
	if id, ok := s.storeByKey[k]; ok {
		c := *s.stores[id]
		return &c, false, nil
	}
	c := *st
	c.ID = newID(c.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.stores[c.ID] = &c
	s.storeByKey[k] = c.ID
	out := c
	return &out, true, nil
}

func (s *Store) ListStores(ctx context.Context, merchantID string) ([]models.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Store
	for _, st := range s.stores {
		if st.MerchantID == merchantID {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

// --- tags ---

func (s *Store) GetTag(ctx context.Context, id string) (*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tags[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (s *Store) FindTagByName(ctx context.Context, ownerID, name string) (*models.Tag, error) {
	s.mu.RLock()
	id, ok := s.tagByName[key(ownerID, name)]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.GetTag(ctx, id)
}

func (s *Store) EnsureTag(ctx context.Context, t *models.Tag) (*models.Tag, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(t.OwnerID, t.Name)
	if id, ok := s.tagByName[k]; ok {
		c := *s.tags[id]
		return &c, false, nil
	}
	c := *t
	c.ID = newID(c.ID)
	c.UsageCount = 0
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.tags[c.ID] = &c
	s.tagByName[k] = c.ID
	out := c
	return &out, true, nil
}

func (s *Store) ListTags(ctx context.Context, ownerID string) ([]models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Tag
	for _, t := range s.tags {
		if t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) LinkTag(ctx context.Context, link *models.TransactionTag) (bool, error) {
	if err := link.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txs[link.TransactionID]; !ok {
		return false, fmt.Errorf("failed to link tag: transaction %s: %w", link.TransactionID, repository.ErrNotFound)
	}
	tag, ok := s.tags[link.TagID]
	if !ok {
		return false, fmt.Errorf("failed to link tag: tag %s: %w", link.TagID, repository.ErrNotFound)
	}
	byTag := s.links[link.TransactionID]
	if byTag == nil {
		byTag = make(map[string]models.TransactionTag)
		s.links[link.TransactionID] = byTag
	}
	if _, exists := byTag[link.TagID]; exists {
		return false, nil
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = s.now()
	}
	byTag[link.TagID] = *link
	tag.UsageCount++
	return true, nil
}

func (s *Store) UnlinkTag(ctx context.Context, transactionID, tagID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTag := s.links[transactionID]
	if _, exists := byTag[tagID]; !exists {
		return false, nil
	}
	delete(byTag, tagID)
	if len(byTag) == 0 {
		delete(s.links, transactionID)
	}
	if tag, ok := s.tags[tagID]; ok && tag.UsageCount > 0 {
		tag.UsageCount--
	}
	return true, nil
}

func (s *Store) TransactionTags(ctx context.Context, transactionID string) ([]models.TransactionTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TransactionTag, 0, len(s.links[transactionID]))
	for _, l := range s.links[transactionID] {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TagID < out[j].TagID
	})
	return out, nil
}

func (s *Store) CountLinks(ctx context.Context, tagID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, byTag := range s.links {
		if _, ok := byTag[tagID]; ok {
			n++
		}
	}
	return n, nil
}

func (s *Store) MergeTags(ctx context.Context, fromTagID, toTagID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.tags[fromTagID]
	if !ok {
		return 0, fmt.Errorf("failed to merge tags: tag %s: %w", fromTagID, repository.ErrNotFound)
	}
	to, ok := s.tags[toTagID]
	if !ok {
		return 0, fmt.Errorf("failed to merge tags: tag %s: %w", toTagID, repository.ErrNotFound)
	}
	if fromTagID == toTagID {
		return 0, nil
	}

	moved := 0
	for _, byTag := range s.links {
		l, has := byTag[fromTagID]
		if !has {
			continue
		}
		delete(byTag, fromTagID)
		if _, exists := byTag[toTagID]; exists {
			continue
		}
		l.TagID = toTagID
		byTag[toTagID] = l
		moved++
	}
	from.UsageCount = 0
	to.UsageCount += moved
	return moved, nil
}

func (s *Store) FindSynonym(ctx context.Context, ownerID, synonym string) (*models.TagSynonym, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	syn, ok := s.synonyms[key(ownerID, synonym)]
	if !ok || !syn.IsActive {
		return nil, repository.ErrNotFound
	}
	c := *syn
	return &c, nil
}

func (s *Store) SaveSynonym(ctx context.Context, syn *models.TagSynonym) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tags[syn.CanonicalTagID]; !ok {
		return fmt.Errorf("failed to save synonym: tag %s: %w", syn.CanonicalTagID, repository.ErrNotFound)
	}
	k := key(syn.OwnerID, syn.Synonym)
	if existing, ok := s.synonyms[k]; ok {
		syn.ID = existing.ID
		syn.CreatedAt = existing.CreatedAt
	}
	syn.ID = newID(syn.ID)
	if syn.CreatedAt.IsZero() {
		syn.CreatedAt = s.now()
	}
	c := *syn
	s.synonyms[k] = &c
	return nil
}

func (s *Store) ListSynonyms(ctx context.Context, ownerID string) ([]models.TagSynonym, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TagSynonym
	for _, syn := range s.synonyms {
		if syn.OwnerID == ownerID {
			out = append(out, *syn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Synonym < out[j].Synonym })
	return out, nil
}

// --- rules ---

func (s *Store) CreateRule(ctx context.Context, r *models.TaggingRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = newID(r.ID)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	c := *r
	c.TagIDs = append([]string(nil), r.TagIDs...)
	s.rules[c.ID] = &c
	return nil
}

func (s *Store) ListRules(ctx context.Context, ownerID string, activeOnly bool) ([]models.TaggingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TaggingRule
	for _, r := range s.rules {
		if r.OwnerID != ownerID || (activeOnly && !r.IsActive) {
			continue
		}
		c := *r
		c.TagIDs = append([]string(nil), r.TagIDs...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) HasApplication(ctx context.Context, ruleID, transactionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.applications[key(ruleID, transactionID)]
	return ok, nil
}

func (s *Store) RecordApplication(ctx context.Context, app *models.RuleApplication) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(app.RuleID, app.TransactionID)
	if _, ok := s.applications[k]; ok {
		return false, nil
	}
	if app.AppliedAt.IsZero() {
		app.AppliedAt = s.now()
	}
	s.applications[k] = *app
	return true, nil
}

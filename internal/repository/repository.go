// Package repository declares the persistence ports of the import pipeline.
//
// Methods that touch a counter together with the row it counts (RecordRow,
// LinkTag, UnlinkTag, MergeTags) are atomic: implementations apply both
// writes in one transaction or not at all. Lookups return ErrNotFound when
// nothing matches.
package repository

import (
	"context"
	"errors"

	"fjacquet/stmt-ledger/internal/models"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// BatchRepository stores ImportBatch records. Counters are only changed
// through TransactionRepository.
type BatchRepository interface {
	CreateBatch(ctx context.Context, b *models.ImportBatch) error
	// UpdateBatch writes status, error, declared metadata, period and
	// completion time. Counters are left untouched.
	UpdateBatch(ctx context.Context, b *models.ImportBatch) error
	// ResetBatch puts a failed batch back into processing with zero counters.
	ResetBatch(ctx context.Context, id string) error
	GetBatch(ctx context.Context, id string) (*models.ImportBatch, error)
	FindBatchByHash(ctx context.Context, ownerID, fileHash string) (*models.ImportBatch, error)
	ListBatches(ctx context.Context, ownerID string) ([]models.ImportBatch, error)
	// DeleteBatch removes the batch and clears the back-reference of its
	// transactions, which are kept.
	DeleteBatch(ctx context.Context, id string) error
}

// TransactionRepository stores transactions and the per-row batch counters.
type TransactionRepository interface {
	// RecordRow inserts tx unless a transaction with the same hash exists and
	// increments the imported or duplicate counter of tx.ImportBatchID in the
	// same transaction. It reports whether tx was inserted.
	RecordRow(ctx context.Context, tx *models.Transaction) (bool, error)
	CountDuplicate(ctx context.Context, batchID string) error
	CountRowError(ctx context.Context, batchID string) error

	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string) ([]models.Transaction, error)
	ListUntagged(ctx context.Context, ownerID string) ([]models.Transaction, error)

	// FillEnrichment sets only the enrichment fields that are still empty and
	// returns the stored transaction.
	FillEnrichment(ctx context.Context, id string, e models.Enrichment) (*models.Transaction, error)

	// MerchantUsage counts an owner's transactions per linked merchant,
	// keeping merchants with at least minCount, most used first.
	MerchantUsage(ctx context.Context, ownerID string, minCount int) ([]models.MerchantUsage, error)
}

// MerchantRepository stores merchants, their patterns, default tags and stores.
type MerchantRepository interface {
	GetMerchant(ctx context.Context, id string) (*models.Merchant, error)
	FindMerchantByName(ctx context.Context, normalizedName string) (*models.Merchant, error)
	// EnsureMerchant returns the merchant with m.NormalizedName, creating it
	// from m when absent. The bool reports creation.
	EnsureMerchant(ctx context.Context, m *models.Merchant) (*models.Merchant, bool, error)
	ListMerchants(ctx context.Context) ([]models.Merchant, error)

	// AddPattern is idempotent on (merchant, kind, pattern).
	AddPattern(ctx context.Context, p *models.MerchantPattern) (bool, error)
	ListPatterns(ctx context.Context) ([]models.MerchantPattern, error)

	// AddDefaultTag is idempotent on (merchant, tag name).
	AddDefaultTag(ctx context.Context, d *models.MerchantDefaultTag) (bool, error)
	// DefaultTags lists a merchant's default tags by descending priority.
	DefaultTags(ctx context.Context, merchantID string) ([]models.MerchantDefaultTag, error)

	// EnsureStore returns the store keyed by (s.MerchantID, s.Identifier),
	// creating it from s when absent.
	EnsureStore(ctx context.Context, s *models.Store) (*models.Store, bool, error)
	ListStores(ctx context.Context, merchantID string) ([]models.Store, error)
}

// TagRepository stores tags, transaction links and synonyms.
type TagRepository interface {
	GetTag(ctx context.Context, id string) (*models.Tag, error)
	FindTagByName(ctx context.Context, ownerID, name string) (*models.Tag, error)
	// EnsureTag returns the tag keyed by (t.OwnerID, t.Name), creating it
	// from t when absent.
	EnsureTag(ctx context.Context, t *models.Tag) (*models.Tag, bool, error)
	ListTags(ctx context.Context, ownerID string) ([]models.Tag, error)

	// LinkTag inserts the link if absent and increments the tag's usage
	// count in the same transaction. It reports whether a link was created.
	LinkTag(ctx context.Context, link *models.TransactionTag) (bool, error)
	// UnlinkTag deletes the link if present and decrements the usage count
	// in the same transaction. It reports whether a link was removed.
	UnlinkTag(ctx context.Context, transactionID, tagID string) (bool, error)
	TransactionTags(ctx context.Context, transactionID string) ([]models.TransactionTag, error)
	CountLinks(ctx context.Context, tagID string) (int, error)
	// MergeTags moves every link of fromTagID onto toTagID, dropping links
	// the target already has, and fixes both usage counts. It returns the
	// number of links created on the target.
	MergeTags(ctx context.Context, fromTagID, toTagID string) (int, error)

	// FindSynonym returns the active synonym for (owner, surface form).
	FindSynonym(ctx context.Context, ownerID, synonym string) (*models.TagSynonym, error)
	// SaveSynonym upserts on (owner, synonym).
	SaveSynonym(ctx context.Context, s *models.TagSynonym) error
	ListSynonyms(ctx context.Context, ownerID string) ([]models.TagSynonym, error)
}

// RuleRepository stores tagging rules and their application audit.
type RuleRepository interface {
	CreateRule(ctx context.Context, r *models.TaggingRule) error
	// ListRules orders by descending priority, then creation time.
	ListRules(ctx context.Context, ownerID string, activeOnly bool) ([]models.TaggingRule, error)
	HasApplication(ctx context.Context, ruleID, transactionID string) (bool, error)
	// RecordApplication is idempotent on (rule, transaction).
	RecordApplication(ctx context.Context, app *models.RuleApplication) (bool, error)
}

// Repository is the full persistence surface.
type Repository interface {
	BatchRepository
	TransactionRepository
	MerchantRepository
	TagRepository
	RuleRepository
	Close() error
}

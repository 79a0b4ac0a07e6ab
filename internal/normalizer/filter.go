package normalizer

import (
	"context"
	"fmt"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/repository"
)

// Outcome is what the duplicate filter did with one row.
type Outcome int

const (
	// Imported means the transaction was persisted.
	Imported Outcome = iota
	// Duplicate means an identical transaction was already recorded, either
	// earlier in the same file or by a previous import.
	Duplicate
)

func (o Outcome) String() string {
	if o == Imported {
		return "imported"
	}
	return "duplicate"
}

// Seen tracks the content hashes met while importing one file.
type Seen map[string]struct{}

// Add records hash and reports whether it was new.
func (s Seen) Add(hash string) bool {
	if _, ok := s[hash]; ok {
		return false
	}
	s[hash] = struct{}{}
	return true
}

// Filter persists new transactions of one batch and counts the rest as
// duplicates. It is not safe for concurrent use; the importer holds the
// owner's lock while a Filter is alive.
type Filter struct {
	repo   repository.TransactionRepository
	logger logging.Logger
	seen   Seen
}

// NewFilter returns a Filter with an empty intra-file set.
func NewFilter(repo repository.TransactionRepository, logger logging.Logger) *Filter {
	return &Filter{repo: repo, logger: logger, seen: make(Seen)}
}

// Record stores tx unless it duplicates a known transaction. The batch
// counter for the outcome is updated atomically with the insert.
func (f *Filter) Record(ctx context.Context, tx *models.Transaction) (Outcome, error) {
	if !f.seen.Add(tx.Hash) {
		if err := f.repo.CountDuplicate(ctx, tx.ImportBatchID); err != nil {
			return Duplicate, fmt.Errorf("failed to count duplicate: %w", err)
		}
		f.logDuplicate(tx, "file")
		return Duplicate, nil
	}

	inserted, err := f.repo.RecordRow(ctx, tx)
	if err != nil {
		return Imported, fmt.Errorf("failed to record transaction: %w", err)
	}
	if !inserted {
		f.logDuplicate(tx, "store")
		return Duplicate, nil
	}
	return Imported, nil
}

func (f *Filter) logDuplicate(tx *models.Transaction, where string) {
	f.logger.Debug("Skipping duplicate transaction",
		logging.F(logging.FieldHash, tx.Hash),
		logging.F(logging.FieldBatchID, tx.ImportBatchID),
		logging.F(logging.FieldSource, where))
}

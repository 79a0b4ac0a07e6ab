// Package importer runs the import pipeline for one statement file: parse,
// normalize, de-duplicate, persist, enrich and auto-tag, recording the
// outcome on an ImportBatch.
//
// Imports of one owner never overlap: each holds the owner's lock for its
// whole run. Imports of different owners run independently.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fjacquet/stmt-ledger/internal/ledger"
	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/merchant"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/normalizer"
	"fjacquet/stmt-ledger/internal/parser"
	"fjacquet/stmt-ledger/internal/parsererror"
	"fjacquet/stmt-ledger/internal/repository"
	"fjacquet/stmt-ledger/internal/tagging"
)

// Options tunes an Importer.
type Options struct {
	// Format is the statement format of every imported file.
	Format parser.Format
	// AutoEnrich runs merchant extraction on every new transaction.
	AutoEnrich bool
	// AutoTag applies auto-tagging to every new transaction.
	AutoTag bool
	// MaxRowErrorsReported caps the row errors quoted in the batch error message.
	MaxRowErrorsReported int
}

// Importer is the import orchestrator. It is safe for concurrent use.
type Importer struct {
	repo      repository.Repository
	parsers   *parser.Registry
	extractor *merchant.Extractor
	engine    *tagging.Engine
	ledger    *ledger.Ledger
	locks     *ownerLocks
	logger    logging.Logger
	opts      Options
	now       func() time.Time
}

// New returns an Importer.
func New(repo repository.Repository, parsers *parser.Registry, extractor *merchant.Extractor,
	engine *tagging.Engine, l *ledger.Ledger, logger logging.Logger, opts Options) *Importer {
	if opts.Format == "" {
		opts.Format = parser.FormatMBank
	}
	if opts.MaxRowErrorsReported <= 0 {
		opts.MaxRowErrorsReported = 20
	}
	return &Importer{
		repo:      repo,
		parsers:   parsers,
		extractor: extractor,
		engine:    engine,
		ledger:    l,
		locks:     newOwnerLocks(),
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// ImportFile imports the statement at path for ownerID.
func (i *Importer) ImportFile(ctx context.Context, ownerID, path string) (*models.ImportBatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return i.Import(ctx, ownerID, filepath.Base(path), data)
}

// Import runs the pipeline over data and returns the batch result.
//
// Re-importing content that already completed for ownerID returns an
// unsaved result with DuplicateOf set, no new rows and DuplicatesSkipped
// equal to the original import count. A failed earlier attempt is retried
// in place. Format errors and persistence failures mark the batch failed
// and are returned together with the batch; so is cancellation of ctx.
func (i *Importer) Import(ctx context.Context, ownerID, fileName string, data []byte) (*models.ImportBatch, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, &parsererror.ValidationError{Field: "owner", Reason: "empty owner"}
	}
	logger := i.logger.WithFields(
		logging.F(logging.FieldOwner, ownerID),
		logging.F(logging.FieldFile, fileName))

	unlock, err := i.locks.lock(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := i.now()
	batch, state, err := i.openBatch(ctx, ownerID, fileName, normalizer.FileHash(data))
	if err != nil {
		return nil, err
	}
	if state == batchDuplicate {
		logger.Info("Statement already imported", logging.F(logging.FieldBatchID, batch.DuplicateOf))
		return batch, nil
	}
	logger = logger.WithField(logging.FieldBatchID, batch.ID)

	if err := i.run(ctx, batch, state == batchRetry, data, logger); err != nil {
		return i.fail(ctx, batch, err, logger)
	}

	batch.Status = models.BatchCompleted
	batch.CompletedAt = i.now()
	if err := i.repo.UpdateBatch(ctx, batch); err != nil {
		return i.fail(ctx, batch, fmt.Errorf("failed to complete batch: %w", err), logger)
	}
	final, err := i.repo.GetBatch(ctx, batch.ID)
	if err != nil {
		return batch, fmt.Errorf("failed to reload batch: %w", err)
	}

	logger.Info("Import completed",
		logging.F(logging.FieldImported, final.TransactionsImported),
		logging.F(logging.FieldDuplicates, final.DuplicatesSkipped),
		logging.F(logging.FieldFailed, final.RowsFailed),
		logging.F(logging.FieldDuration, i.now().Sub(start).Milliseconds()))
	return final, nil
}

type batchState int

const (
	batchNew batchState = iota
	batchRetry
	batchDuplicate
)

// openBatch finds or creates the batch for fileHash. For batchDuplicate the
// returned batch is the unsaved no-op result.
func (i *Importer) openBatch(ctx context.Context, ownerID, fileName, fileHash string) (*models.ImportBatch, batchState, error) {
	existing, err := i.repo.FindBatchByHash(ctx, ownerID, fileHash)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		batch := &models.ImportBatch{
			OwnerID:  ownerID,
			FileName: fileName,
			FileHash: fileHash,
			Format:   string(i.opts.Format),
			Status:   models.BatchProcessing,
		}
		if err := i.repo.CreateBatch(ctx, batch); err != nil {
			return nil, batchNew, fmt.Errorf("failed to create batch: %w", err)
		}
		return batch, batchNew, nil
	case err != nil:
		return nil, batchNew, fmt.Errorf("failed to look up file hash: %w", err)
	}

	if existing.Status == models.BatchCompleted {
		now := i.now()
		return &models.ImportBatch{
			OwnerID:           ownerID,
			FileName:          fileName,
			FileHash:          fileHash,
			Format:            existing.Format,
			AccountNumber:     existing.AccountNumber,
			AccountType:       existing.AccountType,
			Currency:          existing.Currency,
			PeriodStart:       existing.PeriodStart,
			PeriodEnd:         existing.PeriodEnd,
			DuplicatesSkipped: existing.TransactionsImported,
			Status:            models.BatchCompleted,
			ErrorMessage:      parsererror.ErrDuplicateFile.Error(),
			DuplicateOf:       existing.ID,
			CreatedAt:         now,
			CompletedAt:       now,
		}, batchDuplicate, nil
	}

	// A failed attempt, or one left in processing by a crashed run: this
	// run holds the owner's lock, so nothing else is writing to it.
	if err := i.repo.ResetBatch(ctx, existing.ID); err != nil {
		return nil, batchNew, fmt.Errorf("failed to reset batch %s: %w", existing.ID, err)
	}
	batch, err := i.repo.GetBatch(ctx, existing.ID)
	if err != nil {
		return nil, batchNew, fmt.Errorf("failed to reload batch %s: %w", existing.ID, err)
	}
	i.logger.Info("Retrying failed import",
		logging.F(logging.FieldBatchID, batch.ID),
		logging.F(logging.FieldOwner, ownerID))
	return batch, batchRetry, nil
}

func (i *Importer) run(ctx context.Context, batch *models.ImportBatch, retry bool, data []byte, logger logging.Logger) error {
	p, err := i.parsers.Get(parser.Format(batch.Format))
	if err != nil {
		return &parsererror.FormatError{Format: batch.Format, Reason: err.Error()}
	}
	st, err := p.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return err
	}

	meta := st.Metadata
	batch.AccountNumber = meta.AccountNumber
	batch.AccountType = meta.AccountType
	batch.Currency = meta.Currency

	filter := normalizer.NewFilter(i.repo, logger)
	var rowErrors []string
	failed := 0
	processed := make(map[string]bool)
	for row, rowErr := range st.Rows() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rowErr != nil {
			if err := i.repo.CountRowError(ctx, batch.ID); err != nil {
				return fmt.Errorf("failed to count row error: %w", err)
			}
			failed++
			if len(rowErrors) < i.opts.MaxRowErrorsReported {
				rowErrors = append(rowErrors, rowErr.Error())
			}
			logger.WithError(rowErr).Warn("Skipping malformed row")
			continue
		}

		tx := normalizer.Normalize(batch.OwnerID, batch.ID, row)
		batch.ExtendPeriod(tx.BookingDate)
		outcome, err := filter.Record(ctx, tx)
		if err != nil {
			return err
		}
		if outcome == normalizer.Imported {
			if err := i.process(ctx, tx, logger); err != nil {
				return err
			}
			processed[tx.ID] = true
		}
	}

	if retry {
		if err := i.resume(ctx, batch.OwnerID, batch.ID, processed, logger); err != nil {
			return err
		}
	}

	if batch.PeriodStart.IsZero() {
		batch.PeriodStart, batch.PeriodEnd = meta.PeriodStart, meta.PeriodEnd
	}
	if failed > 0 {
		batch.ErrorMessage = fmt.Sprintf("%d rows failed: %s", failed, strings.Join(rowErrors, "; "))
	}
	return nil
}

// process enriches and tags one newly persisted transaction.
func (i *Importer) process(ctx context.Context, tx *models.Transaction, logger logging.Logger) error {
	if i.opts.AutoEnrich {
		enriched, _, err := i.extractor.Enrich(ctx, tx)
		switch {
		case errors.Is(err, parsererror.ErrEnrichmentAmbiguous):
			logger.Debug("Transaction left without merchant", logging.F(logging.FieldTransactionID, tx.ID))
		case err != nil:
			return err
		default:
			tx = enriched
		}
	}
	if i.opts.AutoTag {
		if _, err := i.engine.Apply(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

// resume finishes rows that an earlier attempt of batchID persisted but did
// not get to enrich or tag. A retry sees those rows as store duplicates.
func (i *Importer) resume(ctx context.Context, ownerID, batchID string, processed map[string]bool, logger logging.Logger) error {
	if !i.opts.AutoEnrich && !i.opts.AutoTag {
		return nil
	}
	txs, err := i.repo.ListTransactions(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to list transactions: %w", err)
	}
	resumed := 0
	for k := range txs {
		tx := &txs[k]
		if tx.ImportBatchID != batchID || processed[tx.ID] {
			continue
		}
		pending := i.opts.AutoEnrich && !tx.HasMerchant()
		if !pending && i.opts.AutoTag {
			links, err := i.repo.TransactionTags(ctx, tx.ID)
			if err != nil {
				return fmt.Errorf("failed to load tags of %s: %w", tx.ID, err)
			}
			pending = len(links) == 0
		}
		if !pending {
			continue
		}
		if err := i.process(ctx, tx, logger); err != nil {
			return err
		}
		resumed++
	}
	if resumed > 0 {
		logger.Info("Finished rows of an interrupted import", logging.F(logging.FieldCount, resumed))
	}
	return nil
}

// fail records cause on the batch and returns the stored batch with cause.
// The update runs even when ctx was cancelled.
func (i *Importer) fail(ctx context.Context, batch *models.ImportBatch, cause error, logger logging.Logger) (*models.ImportBatch, error) {
	ctx = context.WithoutCancel(ctx)

	batch.Status = models.BatchFailed
	batch.ErrorMessage = cause.Error()
	batch.CompletedAt = i.now()
	if err := i.repo.UpdateBatch(ctx, batch); err != nil {
		logger.WithError(err).Error("Failed to record import failure")
		return batch, errors.Join(cause, err)
	}
	if stored, err := i.repo.GetBatch(ctx, batch.ID); err == nil {
		batch = stored
	}

	logger.WithError(cause).Error("Import failed",
		logging.F(logging.FieldImported, batch.TransactionsImported),
		logging.F(logging.FieldDuplicates, batch.DuplicatesSkipped),
		logging.F(logging.FieldFailed, batch.RowsFailed))
	return batch, cause
}

package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"

	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/repository"

	"github.com/google/uuid"
)

const batchColumns = `id, owner_id, file_name, file_hash, format, account_number, account_type, currency,
	period_start, period_end, transactions_imported, duplicates_skipped, rows_failed,
	import_status, error_message, created_at, completed_at`

func (s *Store) CreateBatch(ctx context.Context, b *models.ImportBatch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now()
	}
	_, err := s.exec(ctx, s.db, `INSERT INTO import_batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.FileName, b.FileHash, b.Format,
		nullString(b.AccountNumber), nullString(b.AccountType), nullString(b.Currency),
		dateArg(b.PeriodStart), dateArg(b.PeriodEnd),
		b.TransactionsImported, b.DuplicatesSkipped, b.RowsFailed,
		string(b.Status), nullString(b.ErrorMessage),
		timestampArg(b.CreatedAt), timestampArg(b.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

func (s *Store) UpdateBatch(ctx context.Context, b *models.ImportBatch) error {
	res, err := s.exec(ctx, s.db, `UPDATE import_batches SET
		import_status = ?, error_message = ?, account_number = ?, account_type = ?, currency = ?,
		period_start = ?, period_end = ?, completed_at = ?
		WHERE id = ?`,
		string(b.Status), nullString(b.ErrorMessage),
		nullString(b.AccountNumber), nullString(b.AccountType), nullString(b.Currency),
		dateArg(b.PeriodStart), dateArg(b.PeriodEnd), timestampArg(b.CompletedAt),
		b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	return requireRow(res)
}

func (s *Store) ResetBatch(ctx context.Context, id string) error {
	res, err := s.exec(ctx, s.db, `UPDATE import_batches SET
		import_status = ?, error_message = NULL, completed_at = NULL,
		transactions_imported = 0, duplicates_skipped = 0, rows_failed = 0
		WHERE id = ?`, string(models.BatchProcessing), id)
	if err != nil {
		return fmt.Errorf("failed to reset batch: %w", err)
	}
	return requireRow(res)
}

func (s *Store) GetBatch(ctx context.Context, id string) (*models.ImportBatch, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+batchColumns+` FROM import_batches WHERE id = ?`, id)
	return scanBatch(row)
}

func (s *Store) FindBatchByHash(ctx context.Context, ownerID, fileHash string) (*models.ImportBatch, error) {
	row := s.queryRow(ctx, s.db, `SELECT `+batchColumns+` FROM import_batches
		WHERE owner_id = ? AND file_hash = ?`, ownerID, fileHash)
	return scanBatch(row)
}

func (s *Store) ListBatches(ctx context.Context, ownerID string) ([]models.ImportBatch, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+batchColumns+` FROM import_batches
		WHERE owner_id = ? ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var out []models.ImportBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `UPDATE transactions SET import_batch_id = NULL WHERE import_batch_id = ?`, id); err != nil {
			return fmt.Errorf("failed to detach transactions: %w", err)
		}
		res, err := s.exec(ctx, tx, `DELETE FROM import_batches WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete batch: %w", err)
		}
		return requireRow(res)
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*models.ImportBatch, error) {
	var (
		b                              models.ImportBatch
		status                         string
		account, accountType, currency sql.NullString
		errMsg                         sql.NullString
		periodStart, periodEnd         timeValue
		createdAt, completedAt         timeValue
	)
	err := row.Scan(&b.ID, &b.OwnerID, &b.FileName, &b.FileHash, &b.Format,
		&account, &accountType, &currency, &periodStart, &periodEnd,
		&b.TransactionsImported, &b.DuplicatesSkipped, &b.RowsFailed,
		&status, &errMsg, &createdAt, &completedAt)
	if err != nil {
		return nil, notFound(err)
	}
	b.AccountNumber = account.String
	b.AccountType = accountType.String
	b.Currency = currency.String
	b.PeriodStart = periodStart.Time
	b.PeriodEnd = periodEnd.Time
	b.Status = models.BatchStatus(status)
	b.ErrorMessage = errMsg.String
	b.CreatedAt = createdAt.Time
	b.CompletedAt = completedAt.Time
	return &b, nil
}

func requireRow(res sql.Result) error {
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"

	"fjacquet/stmt-ledger/internal/models"

	"github.com/google/uuid"
)

const transactionColumns = `id, owner_id, import_batch_id, hash, booking_date, transaction_date,
	operation_type, title, raw_title, counterparty, account_number, amount, balance_after, currency,
	merchant_id, normalized_merchant_name, store_id, location_extracted, merchant_confidence, created_at`

// RecordRow implements repository.TransactionRepository.
func (s *Store) RecordRow(ctx context.Context, t *models.Transaction) (bool, error) {
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}

	var inserted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `INSERT INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (hash) DO NOTHING`,
			id, t.OwnerID, nullString(t.ImportBatchID), t.Hash,
			dateArg(t.BookingDate), dateArg(t.TransactionDate),
			t.OperationType, t.Title, t.RawTitle, nullString(t.Counterparty), nullString(t.AccountNumber),
			t.Amount, t.BalanceAfter, t.Currency,
			nullString(t.MerchantID), nullString(t.NormalizedMerchantName), nullString(t.StoreID),
			nullString(t.LocationExtracted), nullConfidence(t.MerchantID, t.MerchantConfidence),
			timestampArg(createdAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		if inserted, err = affected(res); err != nil {
			return err
		}
		if t.ImportBatchID == "" {
			return nil
		}

		counter := "duplicates_skipped"
		if inserted {
			counter = "transactions_imported"
		}
		return s.bumpCounter(ctx, tx, t.ImportBatchID, counter)
	})
	if err != nil {
		return false, err
	}
	if inserted {
		t.ID = id
		t.CreatedAt = createdAt
	}
	return inserted, nil
}

// bumpCounter increments one of the batch counters. column is never user input.
func (s *Store) bumpCounter(ctx context.Context, q queryer, batchID, column string) error {
	res, err := s.exec(ctx, q, `UPDATE import_batches SET `+column+` = `+column+` + 1 WHERE id = ?`, batchID)
	if err != nil {
		return fmt.Errorf("failed to update batch counter: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("batch %s: %w", batchID, err)
	}
	return nil
}

func (s *Store) CountDuplicate(ctx context.Context, batchID string) error {
	return s.bumpCounter(ctx, s.db, batchID, "duplicates_skipped")
}

func (s *Store) CountRowError(ctx context.Context, batchID string) error {
	return s.bumpCounter(ctx, s.db, batchID, "rows_failed")
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return s.getTransaction(ctx, s.db, id)
}

func (s *Store) getTransaction(ctx context.Context, q queryer, id string) (*models.Transaction, error) {
	row := s.queryRow(ctx, q, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

func (s *Store) ListTransactions(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
}

func (s *Store) ListUntagged(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	return s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions t
		WHERE t.owner_id = ?
		  AND NOT EXISTS (SELECT 1 FROM transaction_tags tt WHERE tt.transaction_id = t.id)
		ORDER BY t.created_at, t.id`, ownerID)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// FillEnrichment implements repository.TransactionRepository. Every CASE
// reads the row as it was before the update, so the store is only attached
// when the resulting merchant matches the enrichment's merchant.
func (s *Store) FillEnrichment(ctx context.Context, id string, e models.Enrichment) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `UPDATE transactions SET
			merchant_id = CASE WHEN merchant_id IS NULL AND CAST(? AS TEXT) <> ''
				THEN CAST(? AS TEXT) ELSE merchant_id END,
			normalized_merchant_name = CASE WHEN merchant_id IS NULL AND CAST(? AS TEXT) <> ''
				THEN CAST(? AS TEXT) ELSE normalized_merchant_name END,
			merchant_confidence = CASE WHEN merchant_id IS NULL AND CAST(? AS TEXT) <> ''
				THEN CAST(? AS DOUBLE PRECISION) ELSE merchant_confidence END,
			store_id = CASE WHEN store_id IS NULL AND CAST(? AS TEXT) <> ''
				AND COALESCE(merchant_id, CAST(? AS TEXT)) = CAST(? AS TEXT)
				THEN CAST(? AS TEXT) ELSE store_id END,
			location_extracted = CASE WHEN COALESCE(location_extracted, '') = '' AND CAST(? AS TEXT) <> ''
				THEN CAST(? AS TEXT) ELSE location_extracted END
			WHERE id = ?`,
			e.MerchantID, e.MerchantID,
			e.MerchantID, e.NormalizedMerchantName,
			e.MerchantID, e.Confidence,
			e.StoreID, e.MerchantID, e.MerchantID, e.StoreID,
			e.Location, e.Location,
			id,
		)
		if err != nil {
			return fmt.Errorf("failed to fill enrichment: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}
		out, err = s.getTransaction(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) MerchantUsage(ctx context.Context, ownerID string, minCount int) ([]models.MerchantUsage, error) {
	rows, err := s.query(ctx, s.db, `SELECT m.id, m.normalized_name, m.display_name, COUNT(t.id) AS n,
			EXISTS (SELECT 1 FROM merchant_patterns p WHERE p.merchant_id = m.id) AS has_pattern
		FROM transactions t
		JOIN merchants m ON m.id = t.merchant_id
		WHERE t.owner_id = ?
		GROUP BY m.id, m.normalized_name, m.display_name
		HAVING COUNT(t.id) >= ?
		ORDER BY n DESC, m.normalized_name`, ownerID, minCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant usage: %w", err)
	}
	defer rows.Close()

	var out []models.MerchantUsage
	for rows.Next() {
		var u models.MerchantUsage
		if err := rows.Scan(&u.MerchantID, &u.NormalizedName, &u.DisplayName, &u.TransactionCount, &u.HasPattern); err != nil {
			return nil, fmt.Errorf("failed to scan merchant usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var (
		t                            models.Transaction
		batchID, counterparty, acct  sql.NullString
		merchantID, merchantName     sql.NullString
		storeID, location            sql.NullString
		confidence                   sql.NullFloat64
		bookingDate, transactionDate timeValue
		createdAt                    timeValue
	)
	err := row.Scan(&t.ID, &t.OwnerID, &batchID, &t.Hash, &bookingDate, &transactionDate,
		&t.OperationType, &t.Title, &t.RawTitle, &counterparty, &acct, &t.Amount, &t.BalanceAfter, &t.Currency,
		&merchantID, &merchantName, &storeID, &location, &confidence, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	t.ImportBatchID = batchID.String
	t.BookingDate = bookingDate.Time
	t.TransactionDate = transactionDate.Time
	t.Counterparty = counterparty.String
	t.AccountNumber = acct.String
	t.MerchantID = merchantID.String
	t.NormalizedMerchantName = merchantName.String
	t.StoreID = storeID.String
	t.LocationExtracted = location.String
	t.MerchantConfidence = confidence.Float64
	t.CreatedAt = createdAt.Time
	return &t, nil
}

func nullConfidence(merchantID string, c float64) sql.NullFloat64 {
	if merchantID == "" {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c, Valid: true}
}

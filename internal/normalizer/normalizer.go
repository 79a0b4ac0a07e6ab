// Package normalizer maps parsed statement rows to transactions, computes
// their content hash and filters duplicates.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"fjacquet/stmt-ledger/internal/dateutils"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/parser"
)

// hashVersion prefixes the canonical string so a future change of the hashed
// fields cannot collide with stored hashes.
const hashVersion = "TX|v1"

// Normalize builds the draft transaction for row. The result carries its
// content hash and has no ID yet.
func Normalize(ownerID, batchID string, row parser.Row) *models.Transaction {
	currency := row.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}
	txDate := row.TransactionDate
	if txDate.IsZero() {
		txDate = row.BookingDate
	}

	tx := &models.Transaction{
		OwnerID:         ownerID,
		ImportBatchID:   batchID,
		BookingDate:     row.BookingDate,
		TransactionDate: txDate,
		OperationType:   strings.TrimSpace(row.OperationType),
		Title:           row.Title,
		RawTitle:        row.RawTitle,
		Counterparty:    strings.TrimSpace(row.Counterparty),
		AccountNumber:   row.AccountNumber,
		Amount:          row.Amount.Round(2),
		BalanceAfter:    row.Balance,
		Currency:        currency,
	}
	tx.Hash = ContentHash(tx)
	return tx
}

// ContentHash is the hex SHA-256 of the transaction's immutable identity:
// owner, dates, operation type, title, amount, currency, counterparty and
// account. Enrichment and bookkeeping fields do not take part.
func ContentHash(tx *models.Transaction) string {
	var b strings.Builder
	for _, part := range []string{
		hashVersion,
		tx.OwnerID,
		dateutils.FormatISO(tx.BookingDate),
		dateutils.FormatISO(tx.TransactionDate),
		tx.OperationType,
		tx.Title,
		tx.Amount.StringFixed(2),
		tx.Currency,
		tx.Counterparty,
		tx.AccountNumber,
	} {
		b.WriteString(part)
		b.WriteByte('|')
	}
	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:])
}

// FileHash is the hex SHA-256 of a whole statement file.
func FileHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Package common holds the CSV plumbing shared by the commands: export of
// enriched transactions and reading of small CSV input files.
package common

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fjacquet/stmt-ledger/internal/dateutils"
	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"

	"github.com/gocarina/gocsv"
)

// DefaultDelimiter separates exported columns unless configured otherwise.
const DefaultDelimiter = ','

// TagSeparator joins the tag names of one exported row.
const TagSeparator = "|"

// ExportRow is one exported transaction.
type ExportRow struct {
	ID                 string `csv:"id"`
	BatchID            string `csv:"import_batch_id"`
	BookingDate        string `csv:"booking_date"`
	TransactionDate    string `csv:"transaction_date"`
	OperationType      string `csv:"operation_type"`
	Title              string `csv:"title"`
	Counterparty       string `csv:"counterparty"`
	AccountNumber      string `csv:"account_number"`
	Amount             string `csv:"amount"`
	Currency           string `csv:"currency"`
	BalanceAfter       string `csv:"balance_after"`
	Merchant           string `csv:"merchant"`
	Location           string `csv:"location"`
	MerchantConfidence string `csv:"merchant_confidence"`
	Tags               string `csv:"tags"`
}

// NewExportRow flattens a transaction and its tag names.
func NewExportRow(tx *models.Transaction, tags []string) ExportRow {
	row := ExportRow{
		ID:              tx.ID,
		BatchID:         tx.ImportBatchID,
		BookingDate:     dateutils.FormatISO(tx.BookingDate),
		TransactionDate: dateutils.FormatISO(tx.TransactionDate),
		OperationType:   tx.OperationType,
		Title:           tx.Title,
		Counterparty:    tx.Counterparty,
		AccountNumber:   tx.AccountNumber,
		Amount:          tx.Amount.StringFixed(2),
		Currency:        tx.Currency,
		Merchant:        tx.NormalizedMerchantName,
		Location:        tx.LocationExtracted,
		Tags:            strings.Join(tags, TagSeparator),
	}
	if tx.BalanceAfter.Valid {
		row.BalanceAfter = tx.BalanceAfter.Decimal.StringFixed(2)
	}
	if tx.HasMerchant() {
		row.MerchantConfidence = strconv.FormatFloat(tx.MerchantConfidence, 'f', 2, 64)
	}
	return row
}

// TransactionLister lists the transactions of an owner.
type TransactionLister interface {
	ListTransactions(ctx context.Context, ownerID string) ([]models.Transaction, error)
}

// TagNamer returns the tag names linked to a transaction.
type TagNamer interface {
	Tags(ctx context.Context, transactionID string) ([]string, error)
}

// ExportRows builds the export of every transaction of ownerID.
func ExportRows(ctx context.Context, txs TransactionLister, tags TagNamer, ownerID string) ([]ExportRow, error) {
	list, err := txs.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	rows := make([]ExportRow, 0, len(list))
	for k := range list {
		names, err := tags.Tags(ctx, list[k].ID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, NewExportRow(&list[k], names))
	}
	return rows, nil
}

// WriteTransactionsCSV writes rows with a header line.
func WriteTransactionsCSV(w io.Writer, rows []ExportRow, delimiter rune) error {
	if rows == nil {
		rows = []ExportRow{}
	}
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = delimiter
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		return fmt.Errorf("error writing CSV data: %w", err)
	}
	return nil
}

// WriteTransactionsCSVFile writes rows to path, creating its directory.
func WriteTransactionsCSVFile(path string, rows []ExportRow, delimiter rune, logger logging.Logger) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating CSV file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close file")
		}
	}()

	if err := WriteTransactionsCSV(file, rows, delimiter); err != nil {
		return err
	}
	logger.Info("Exported transactions",
		logging.F(logging.FieldFile, path),
		logging.F(logging.FieldCount, len(rows)))
	return nil
}

// ReadCSV decodes CSV records with a header line into rows of T, mapped
// through T's csv struct tags.
func ReadCSV[T any](r io.Reader, delimiter rune) ([]T, error) {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.TrimLeadingSpace = true

	var rows []T
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return nil, fmt.Errorf("error parsing CSV: %w", err)
	}
	return rows, nil
}

// ParseDelimiter turns a configured delimiter ("," ";" "tab") into a rune.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return DefaultDelimiter, nil
	case "tab", `\t`:
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 || r[0] == '"' || r[0] == '\n' || r[0] == '\r' {
		return 0, fmt.Errorf("invalid CSV delimiter %q", s)
	}
	return r[0], nil
}

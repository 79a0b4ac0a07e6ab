package mbankparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"fjacquet/stmt-ledger/internal/currencyutils"
	"fjacquet/stmt-ledger/internal/dateutils"
	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/parser"
	"fjacquet/stmt-ledger/internal/parsererror"
	"fjacquet/stmt-ledger/internal/textutils"

	"github.com/shopspring/decimal"
)

// Column positions of a transaction row.
const (
	colBookingDate = iota
	colTransactionDate
	colOperationType
	colTitle
	colCounterparty
	colAccountNumber
	colAmount
	colBalance
)

// rowSequence tokenizes body lazily. firstLine is the 1-based file line of
// body[0]. The table ends at the first row starting with '#' or made of
// empty fields.
func rowSequence(body []string, firstLine int, currency string) iter.Seq2[parser.Row, error] {
	return func(yield func(parser.Row, error) bool) {
		reader := csv.NewReader(strings.NewReader(strings.Join(body, "\n")))
		reader.Comma = Delimiter
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				line := firstLine
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					line = firstLine + perr.Line - 1
				}
				if !yield(parser.Row{Line: line}, &parsererror.RowError{Line: line, Err: err}) {
					return
				}
				continue
			}
			pos, _ := reader.FieldPos(0)
			line := firstLine + pos - 1

			if endOfTable(record) {
				return
			}

			row, rowErr := convertRow(record, line, currency)
			if !yield(row, rowErr) {
				return
			}
		}
	}
}

func endOfTable(record []string) bool {
	if strings.HasPrefix(strings.TrimSpace(record[0]), "#") {
		return true
	}
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func convertRow(record []string, line int, defaultCurrency string) (parser.Row, error) {
	row := parser.Row{Line: line, Fields: record}
	if len(record) < ColumnCount {
		return row, &parsererror.RowError{
			Line: line,
			Err:  fmt.Errorf("expected %d columns, got %d", ColumnCount, len(record)),
		}
	}

	var err error
	if row.BookingDate, err = dateutils.ParseStatementDate(record[colBookingDate]); err != nil {
		return row, fieldError(line, "booking date", record[colBookingDate], err)
	}
	row.TransactionDate = row.BookingDate
	if v := strings.TrimSpace(record[colTransactionDate]); v != "" {
		if row.TransactionDate, err = dateutils.ParseStatementDate(v); err != nil {
			return row, fieldError(line, "transaction date", v, err)
		}
	}

	row.OperationType = textutils.CollapseSpaces(record[colOperationType])
	row.RawTitle = record[colTitle]
	row.Title = textutils.CleanTitle(record[colTitle])
	row.Counterparty = textutils.CollapseSpaces(record[colCounterparty])
	row.AccountNumber = strings.NewReplacer("'", "", " ", "").Replace(strings.TrimSpace(record[colAccountNumber]))

	amount, currency, err := currencyutils.ParseAmount(record[colAmount])
	if err != nil {
		return row, fieldError(line, "amount", record[colAmount], err)
	}
	row.Amount = amount
	row.Currency = pickCurrency(currency, defaultCurrency)

	if v := strings.TrimSpace(record[colBalance]); v != "" {
		balance, _, err := currencyutils.ParseAmount(v)
		if err != nil {
			return row, fieldError(line, "balance", v, err)
		}
		row.Balance = decimal.NullDecimal{Decimal: balance, Valid: true}
	}

	return row, nil
}

func pickCurrency(fromAmount, fromHeader string) string {
	switch {
	case fromAmount != "":
		return fromAmount
	case fromHeader != "":
		return fromHeader
	default:
		return models.DefaultCurrency
	}
}

func fieldError(line int, field, value string, err error) error {
	return &parsererror.RowError{Line: line, Field: field, Value: strings.TrimSpace(value), Err: err}
}

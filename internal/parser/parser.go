// Package parser defines the format-pluggable statement parsing contract.
//
// A Parser turns raw statement bytes into a Statement: declared metadata, an
// optional summary, and a lazy, finite sequence of transaction rows. Whole-file
// problems are reported as *parsererror.FormatError from Parse; problems with a
// single row are yielded as *parsererror.RowError alongside that row so the
// caller can count and skip it.
package parser

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/shopspring/decimal"
)

// Format names a statement layout.
type Format string

// FormatMBank is the windows-1250, semicolon-delimited export of mBank.
const FormatMBank Format = "mbank"

// Parser reads one statement format.
type Parser interface {
	// Parse decodes r and locates the statement sections. Rows are parsed
	// lazily while the returned Statement is iterated.
	Parse(ctx context.Context, r io.Reader) (*Statement, error)

	// Format identifies the layout this parser understands.
	Format() Format
}

// Metadata is the account information declared in a statement header.
type Metadata struct {
	ClientName     string
	AccountNumber  string
	AccountType    string
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	OpeningBalance decimal.NullDecimal
}

// Summary holds the statement's own turnover totals. The pipeline does not
// use it; it is kept for display.
type Summary struct {
	CreditsCount  int
	CreditsAmount decimal.Decimal
	DebitsCount   int
	DebitsAmount  decimal.Decimal
	TotalCount    int
	TotalAmount   decimal.Decimal
}

// Row is one transaction row. Fields keeps the raw strings by position; the
// typed fields are filled when the row parsed cleanly.
type Row struct {
	Line   int
	Fields []string

	BookingDate     time.Time
	TransactionDate time.Time
	OperationType   string
	Title           string
	RawTitle        string
	Counterparty    string
	AccountNumber   string
	Amount          decimal.Decimal
	Currency        string
	Balance         decimal.NullDecimal
}

// Statement is a parsed statement whose rows are produced on demand.
type Statement struct {
	Format   Format
	Metadata Metadata
	Summary  *Summary
	rows     iter.Seq2[Row, error]
}

// NewStatement assembles a Statement around a row sequence.
func NewStatement(format Format, meta Metadata, summary *Summary, rows iter.Seq2[Row, error]) *Statement {
	return &Statement{Format: format, Metadata: meta, Summary: summary, rows: rows}
}

// Rows yields every transaction row in file order. A non-nil error is a
// *parsererror.RowError for that row; iteration continues after it.
func (s *Statement) Rows() iter.Seq2[Row, error] {
	if s.rows == nil {
		return func(func(Row, error) bool) {}
	}
	return s.rows
}

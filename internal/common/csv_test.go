package common

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTx() *models.Transaction {
	day := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	return &models.Transaction{
		ID:                     "tx-1",
		ImportBatchID:          "b-1",
		BookingDate:            day,
		TransactionDate:        day.AddDate(0, 0, -1),
		OperationType:          "ZAKUP PRZY UŻYCIU KARTY",
		Title:                  "ŻABKA 1234 WARSZAWA",
		Amount:                 decimal.RequireFromString("-16.4"),
		BalanceAfter:           decimal.NullDecimal{Decimal: decimal.RequireFromString("1183.57"), Valid: true},
		Currency:               "PLN",
		MerchantID:             "m-1",
		NormalizedMerchantName: "zabka",
		LocationExtracted:      "Warszawa",
		MerchantConfidence:     0.95,
	}
}

func TestNewExportRow(t *testing.T) {
	row := NewExportRow(sampleTx(), []string{"expense", "grocery"})

	assert.Equal(t, "2025-08-01", row.BookingDate)
	assert.Equal(t, "2025-07-31", row.TransactionDate)
	assert.Equal(t, "-16.40", row.Amount)
	assert.Equal(t, "1183.57", row.BalanceAfter)
	assert.Equal(t, "zabka", row.Merchant)
	assert.Equal(t, "0.95", row.MerchantConfidence)
	assert.Equal(t, "expense|grocery", row.Tags)

	bare := sampleTx()
	bare.MerchantID, bare.NormalizedMerchantName = "", ""
	bare.BalanceAfter = decimal.NullDecimal{}
	row = NewExportRow(bare, nil)
	assert.Empty(t, row.BalanceAfter)
	assert.Empty(t, row.MerchantConfidence)
	assert.Empty(t, row.Tags)
}

func TestWriteTransactionsCSV(t *testing.T) {
	var buf bytes.Buffer
	rows := []ExportRow{NewExportRow(sampleTx(), []string{"grocery"})}

	require.NoError(t, WriteTransactionsCSV(&buf, rows, ';'))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id;import_batch_id;booking_date;"))
	assert.Contains(t, lines[1], ";-16.40;PLN;1183.57;zabka;Warszawa;0.95;grocery")
}

func TestWriteTransactionsCSV_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTransactionsCSV(&buf, nil, 0))
	assert.True(t, strings.HasPrefix(buf.String(), "id,import_batch_id,"))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestWriteTransactionsCSVFile(t *testing.T) {
	logger := logging.NewMockLogger()
	path := filepath.Join(t.TempDir(), "out", "export.csv")

	require.NoError(t, WriteTransactionsCSVFile(path, []ExportRow{NewExportRow(sampleTx(), nil)}, ',', logger))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tx-1,b-1,2025-08-01")
	assert.True(t, logger.HasEntry("INFO", "Exported transactions"))
}

type fakeLister []models.Transaction

func (f fakeLister) ListTransactions(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	return f, nil
}

type fakeTags map[string][]string

func (f fakeTags) Tags(ctx context.Context, transactionID string) ([]string, error) {
	names, ok := f[transactionID]
	if !ok {
		return nil, errors.New("unknown transaction")
	}
	return names, nil
}

func TestExportRows(t *testing.T) {
	tx := sampleTx()
	rows, err := ExportRows(context.Background(), fakeLister{*tx}, fakeTags{"tx-1": {"expense"}}, "owner")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "expense", rows[0].Tags)

	_, err = ExportRows(context.Background(), fakeLister{*tx}, fakeTags{}, "owner")
	assert.Error(t, err)
}

type synonymRow struct {
	Synonym   string `csv:"synonym"`
	Canonical string `csv:"canonical"`
}

func TestReadCSV(t *testing.T) {
	in := "synonym;canonical\ngroceries; grocery\nfood;grocery\n"
	rows, err := ReadCSV[synonymRow](strings.NewReader(in), ';')
	require.NoError(t, err)
	assert.Equal(t, []synonymRow{
		{Synonym: "groceries", Canonical: "grocery"},
		{Synonym: "food", Canonical: "grocery"},
	}, rows)
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"", ',', false},
		{";", ';', false},
		{"tab", '\t', false},
		{"|", '|', false},
		{`"`, 0, true},
		{";;", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDelimiter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

package mbankparser

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/parser"
	"fjacquet/stmt-ledger/internal/parsererror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const statementHeader = `mBank S.A. Bankowość Detaliczna;
Skrytka Pocztowa 2108;
90-959 Łódź 2;
;
#Klient;
JAN KOWALSKI;
;
Lista operacji;
;
#Za okres:;01.08.2025;31.08.2025;
;
#Rodzaj rachunku;
eKonto;
;
#Waluta;
PLN;
;
#Numer rachunku;
11 1140 2004 0000 3102 1234 5678;
;
#Saldo początkowe;1 200,00 PLN;
;
#Podsumowanie obrotów;#Liczba operacji;#Wartość operacji
Uznania;1;2 500,00
Obciążenia;3;-1 029,71
Razem;4;1 470,29
;
#Data księgowania;#Data operacji;#Opis operacji;#Tytuł;#Nadawca/Odbiorca;#Numer konta;#Kwota;#Saldo po operacji;
`

const statementRows = `2025-08-01;2025-08-01;ZAKUP PRZY UŻYCIU KARTY;"ŻABKA 1234 WARSZAWA  DATA TRANSAKCJI: 2025-07-31";"  ";'';-16,43 PLN;1 183,57 PLN;
2025-08-02;2025-08-02;PRZELEW PRZYCHODZĄCY;"WYNAGRODZENIE 08/2025";"ACME SP. Z O.O.";'12345678901234567890123456';2 500,00 PLN;3 683,57 PLN;
2025-08-03;03.08.2025;BLIK ZAKUP E-COMMERCE;"ALLEGRO; ZAMÓWIENIE 77";"";'';-13,28 PLN;3 670,29 PLN;
2025-08-04;;ZAKUP PRZY UŻYCIU KARTY;"ROSSMANN 129 /Warszawa";"";'';-1 000,00 PLN;;
;
#Saldo końcowe;2 670,29 PLN;
2025-09-01;2025-09-01;IGNORED;"AFTER FOOTER";"";'';-1,00 PLN;0,00 PLN;
`

func encode1250(t *testing.T, s string) []byte {
	t.Helper()
	out, err := charmap.Windows1250.NewEncoder().String(s)
	require.NoError(t, err)
	return []byte(out)
}

func headerLineCount() int {
	return strings.Count(statementHeader, "\n")
}

func parseAll(t *testing.T, data []byte) (*parser.Statement, []parser.Row, []error) {
	t.Helper()
	st, err := NewParser(logging.NewMockLogger()).Parse(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)

	var rows []parser.Row
	var errs []error
	for row, err := range st.Rows() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows = append(rows, row)
	}
	return st, rows, errs
}

func TestParse_Windows1250Statement(t *testing.T) {
	st, rows, errs := parseAll(t, encode1250(t, statementHeader+statementRows))
	require.Empty(t, errs)
	require.Len(t, rows, 4, "rows after the footer are not part of the table")

	assert.Equal(t, parser.FormatMBank, st.Format)
	assert.Equal(t, "JAN KOWALSKI", st.Metadata.ClientName)
	assert.Equal(t, "eKonto", st.Metadata.AccountType)
	assert.Equal(t, "PLN", st.Metadata.Currency)
	assert.Equal(t, "11114020040000310212345678", st.Metadata.AccountNumber)
	assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), st.Metadata.PeriodStart)
	assert.Equal(t, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), st.Metadata.PeriodEnd)
	require.True(t, st.Metadata.OpeningBalance.Valid)
	assert.True(t, decimal.NewFromInt(1200).Equal(st.Metadata.OpeningBalance.Decimal))

	require.NotNil(t, st.Summary)
	assert.Equal(t, 1, st.Summary.CreditsCount)
	assert.Equal(t, 3, st.Summary.DebitsCount)
	assert.Equal(t, 4, st.Summary.TotalCount)
	assert.True(t, decimal.RequireFromString("-1029.71").Equal(st.Summary.DebitsAmount))

	first := rows[0]
	assert.Equal(t, headerLineCount()+1, first.Line)
	assert.Equal(t, "ZAKUP PRZY UŻYCIU KARTY", first.OperationType)
	assert.Equal(t, "ŻABKA 1234 WARSZAWA", first.Title)
	assert.Contains(t, first.RawTitle, "DATA TRANSAKCJI")
	assert.Equal(t, "", first.Counterparty)
	assert.Equal(t, "", first.AccountNumber)
	assert.True(t, decimal.RequireFromString("-16.43").Equal(first.Amount))
	assert.Equal(t, "PLN", first.Currency)
	require.True(t, first.Balance.Valid)
	assert.True(t, decimal.RequireFromString("1183.57").Equal(first.Balance.Decimal))

	assert.Equal(t, "12345678901234567890123456", rows[1].AccountNumber)
	assert.Equal(t, "ACME SP. Z O.O.", rows[1].Counterparty)

	assert.Equal(t, "ALLEGRO; ZAMÓWIENIE 77", rows[2].Title, "quoted delimiter stays in the title")
	assert.Equal(t, time.Date(2025, 8, 3, 0, 0, 0, 0, time.UTC), rows[2].TransactionDate)

	assert.Equal(t, rows[3].BookingDate, rows[3].TransactionDate, "empty operation date falls back to booking date")
	assert.False(t, rows[3].Balance.Valid)
	assert.True(t, decimal.NewFromInt(-1000).Equal(rows[3].Amount))
}

func TestParse_UTF8Statement(t *testing.T) {
	_, fromUTF8, errs := parseAll(t, []byte(statementHeader+statementRows))
	require.Empty(t, errs)
	_, from1250, _ := parseAll(t, encode1250(t, statementHeader+statementRows))
	require.Len(t, fromUTF8, len(from1250))
	for i := range fromUTF8 {
		assert.Equal(t, from1250[i].Title, fromUTF8[i].Title)
	}

	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte(statementHeader+statementRows)...)
	_, rows, _ := parseAll(t, withBOM)
	assert.Len(t, rows, 4)
}

func TestParse_RowErrorsAreIsolated(t *testing.T) {
	body := `2025-08-01;2025-08-01;ZAKUP PRZY UŻYCIU KARTY;"LIDL";"";'';-10,00 PLN;100,00 PLN;
2025-13-45;2025-08-01;ZAKUP PRZY UŻYCIU KARTY;"BAD DATE";"";'';-1,00 PLN;99,00 PLN;
2025-08-02;2025-08-02;ZAKUP PRZY UŻYCIU KARTY;"BAD AMOUNT";"";'';-1,0x PLN;98,00 PLN;
2025-08-02;2025-08-02;ZAKUP;"SHORT"
2025-08-03;2025-08-03;ZAKUP PRZY UŻYCIU KARTY;"KAUFLAND";"";'';-20,00 PLN;78,00 PLN;
`
	_, rows, errs := parseAll(t, encode1250(t, statementHeader+body))

	require.Len(t, rows, 2)
	assert.Equal(t, "LIDL", rows[0].Title)
	assert.Equal(t, "KAUFLAND", rows[1].Title)

	require.Len(t, errs, 3)
	fields := []string{}
	for _, err := range errs {
		var rowErr *parsererror.RowError
		require.True(t, errors.As(err, &rowErr), "%v", err)
		fields = append(fields, rowErr.Field)
	}
	assert.Equal(t, []string{"booking date", "amount", ""}, fields)

	var rowErr *parsererror.RowError
	require.True(t, errors.As(errs[1], &rowErr))
	assert.Equal(t, headerLineCount()+3, rowErr.Line)
}

func TestParse_FormatErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		reason string
	}{
		{"empty", []byte("  \n"), "empty file"},
		{"binary", []byte("#Klient;\x00\x01"), "binary"},
		{"undefined byte", []byte("#Klient;\n\x81\x98;\n"), "unreadable encoding"},
		{"no transaction section", []byte("#Klient;\nJAN;\n"), "missing transaction section"},
		{"comma delimited", []byte("#Data księgowania,#Data operacji,#Opis operacji,#Tytuł,#Nadawca,#Konto,#Kwota,#Saldo\n"), "wrong delimiter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(nil).Parse(context.Background(), bytes.NewReader(tt.data))
			require.Error(t, err)
			var fe *parsererror.FormatError
			require.True(t, errors.As(err, &fe), "%v", err)
			assert.Contains(t, fe.Error(), tt.reason)
			assert.True(t, parsererror.IsFatal(err))
		})
	}
}

func TestParse_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewParser(nil).Parse(ctx, strings.NewReader(statementHeader))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRows_EarlyBreak(t *testing.T) {
	st, err := NewParser(nil).Parse(context.Background(), bytes.NewReader(encode1250(t, statementHeader+statementRows)))
	require.NoError(t, err)
	n := 0
	for range st.Rows() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

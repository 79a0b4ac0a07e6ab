package mbankparser

import (
	"strconv"
	"strings"

	"fjacquet/stmt-ledger/internal/currencyutils"
	"fjacquet/stmt-ledger/internal/dateutils"
	"fjacquet/stmt-ledger/internal/parser"
	"fjacquet/stmt-ledger/internal/textutils"

	"github.com/shopspring/decimal"
)

// Section markers, compared after folding case and diacritics.
const (
	markerClient         = "#Klient"
	markerPeriod         = "#Za okres:"
	markerAccountType    = "#Rodzaj rachunku"
	markerCurrency       = "#Waluta"
	markerAccountNumber  = "#Numer rachunku"
	markerOpeningBalance = "#Saldo początkowe"
	markerSummary        = "#Podsumowanie obrotów"
	markerTransactions   = "#Data księgowania"
)

func hasMarker(line, marker string) bool {
	return strings.HasPrefix(textutils.Fold(line), textutils.Fold(marker))
}

func findTransactionHeader(lines []string) int {
	for i, l := range lines {
		if hasMarker(l, markerTransactions) {
			return i
		}
	}
	return -1
}

// nextValue returns the line after i without trailing delimiters.
func nextValue(lines []string, i int) string {
	if i+1 >= len(lines) {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(lines[i+1]), ";"))
}

func splitFields(line string) []string {
	return strings.Split(line, string(Delimiter))
}

// parseMetadata reads the header block. Missing or malformed entries are
// left empty; none of them is required to import rows.
func parseMetadata(lines []string) parser.Metadata {
	var meta parser.Metadata
	for i, line := range lines {
		switch {
		case hasMarker(line, markerClient):
			meta.ClientName = nextValue(lines, i)
		case hasMarker(line, markerPeriod):
			parts := splitFields(line)
			if len(parts) >= 3 {
				meta.PeriodStart, _ = dateutils.ParseStatementDate(parts[1])
				meta.PeriodEnd, _ = dateutils.ParseStatementDate(parts[2])
			}
		case hasMarker(line, markerAccountType):
			meta.AccountType = nextValue(lines, i)
		case hasMarker(line, markerCurrency):
			meta.Currency = strings.ToUpper(nextValue(lines, i))
		case hasMarker(line, markerAccountNumber):
			meta.AccountNumber = strings.ReplaceAll(nextValue(lines, i), " ", "")
		case hasMarker(line, markerOpeningBalance):
			parts := splitFields(line)
			if len(parts) >= 2 {
				if amount, _, err := currencyutils.ParseAmount(parts[1]); err == nil {
					meta.OpeningBalance = decimal.NullDecimal{Decimal: amount, Valid: true}
				}
			}
		}
	}
	return meta
}

// parseSummary reads the three lines (credits, debits, total) following the
// summary marker. It returns nil when the section is absent.
func parseSummary(lines []string) *parser.Summary {
	for i, line := range lines {
		if !hasMarker(line, markerSummary) {
			continue
		}
		s := &parser.Summary{}
		s.CreditsCount, s.CreditsAmount = summaryLine(lines, i+1)
		s.DebitsCount, s.DebitsAmount = summaryLine(lines, i+2)
		s.TotalCount, s.TotalAmount = summaryLine(lines, i+3)
		return s
	}
	return nil
}

func summaryLine(lines []string, i int) (int, decimal.Decimal) {
	if i >= len(lines) {
		return 0, decimal.Zero
	}
	parts := splitFields(lines[i])
	if len(parts) < 3 {
		return 0, decimal.Zero
	}
	count, _ := strconv.Atoi(strings.TrimSpace(parts[1]))
	amount, _, err := currencyutils.ParseAmount(parts[2])
	if err != nil {
		amount = decimal.Zero
	}
	return count, amount
}

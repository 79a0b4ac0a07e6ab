// Package currencyutils parses the amount literals of Polish bank statements.
package currencyutils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	trailingCurrency = regexp.MustCompile(`[\s\x{00A0}\x{202F}]*([A-Z]{3})$`)
	commaAmount      = regexp.MustCompile(`^[+-]?\d+(,\d{1,2})?$`)
	thousandSpaces   = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "")
)

// ParseAmount parses "16,43 PLN", "-1 113,28 PLN" or "250" into an exact
// decimal and the trailing currency code ("" when absent). A comma is the
// only decimal separator; spaces may group thousands.
func ParseAmount(s string) (decimal.Decimal, string, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return decimal.Zero, "", fmt.Errorf("empty amount")
	}

	currency := ""
	if m := trailingCurrency.FindStringSubmatch(raw); m != nil {
		currency = m[1]
		raw = strings.TrimSpace(raw[:len(raw)-len(m[0])])
	}

	number := thousandSpaces.Replace(raw)
	if !commaAmount.MatchString(number) {
		return decimal.Zero, "", fmt.Errorf("malformed amount %q", s)
	}

	amount, err := decimal.NewFromString(strings.Replace(strings.TrimPrefix(number, "+"), ",", ".", 1))
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("malformed amount %q: %w", s, err)
	}
	return amount, currency, nil
}

// FormatAmount renders an amount the way statements do: "-16,43 PLN".
func FormatAmount(amount decimal.Decimal, currency string) string {
	s := strings.Replace(amount.StringFixed(2), ".", ",", 1)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

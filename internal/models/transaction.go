package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when neither the row nor the statement declares one.
const DefaultCurrency = "PLN"

// Transaction is one unique financial movement owned by the identity that
// imported it. Empty string IDs stand for "no reference".
type Transaction struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id"`
	ImportBatchID string `json:"import_batch_id,omitempty"`
	Hash          string `json:"hash"`

	BookingDate     time.Time           `json:"booking_date"`
	TransactionDate time.Time           `json:"transaction_date"`
	OperationType   string              `json:"operation_type"`
	Title           string              `json:"title"`
	RawTitle        string              `json:"raw_title"`
	Counterparty    string              `json:"counterparty,omitempty"`
	AccountNumber   string              `json:"account_number,omitempty"`
	Amount          decimal.Decimal     `json:"amount"`
	BalanceAfter    decimal.NullDecimal `json:"balance_after"`
	Currency        string              `json:"currency"`

	MerchantID             string  `json:"merchant_id,omitempty"`
	NormalizedMerchantName string  `json:"normalized_merchant_name,omitempty"`
	StoreID                string  `json:"store_id,omitempty"`
	LocationExtracted      string  `json:"location_extracted,omitempty"`
	MerchantConfidence     float64 `json:"merchant_confidence,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Money returns the signed amount with its currency.
func (t *Transaction) Money() Money {
	return NewMoney(t.Amount, t.Currency)
}

// IsExpense reports an outgoing movement.
func (t *Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// IsIncome reports an incoming movement.
func (t *Transaction) IsIncome() bool {
	return t.Amount.IsPositive()
}

// HasMerchant reports whether a merchant link is set.
func (t *Transaction) HasMerchant() bool {
	return t.MerchantID != ""
}

// Enrichment is the output of merchant extraction for one transaction.
// Empty fields are "none".
type Enrichment struct {
	MerchantID             string
	NormalizedMerchantName string
	StoreID                string
	Location               string
	Confidence             float64
}

// IsEmpty reports whether nothing was extracted.
func (e Enrichment) IsEmpty() bool {
	return e.MerchantID == "" && e.StoreID == "" && e.Location == ""
}

// ApplyTo fills the empty enrichment fields of tx and reports whether any
// field changed. A store is only attached when it belongs to the merchant
// the transaction ends up linked to.
func (e Enrichment) ApplyTo(tx *Transaction) bool {
	changed := false
	if tx.MerchantID == "" && e.MerchantID != "" {
		tx.MerchantID = e.MerchantID
		tx.NormalizedMerchantName = e.NormalizedMerchantName
		tx.MerchantConfidence = e.Confidence
		changed = true
	}
	if tx.StoreID == "" && e.StoreID != "" && tx.MerchantID == e.MerchantID {
		tx.StoreID = e.StoreID
		changed = true
	}
	if tx.LocationExtracted == "" && e.Location != "" {
		tx.LocationExtracted = e.Location
		changed = true
	}
	return changed
}

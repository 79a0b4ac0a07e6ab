package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney(t *testing.T) {
	m, err := NewMoneyFromString("-16.43", "PLN")
	require.NoError(t, err)

	assert.True(t, m.IsNegative())
	assert.Equal(t, "-16.43 PLN", m.String())
	assert.Equal(t, "16.43 PLN", m.Abs().String())
	assert.True(t, m.Neg().Equal(NewMoney(decimal.RequireFromString("16.43"), "PLN")))

	sum, err := m.Add(NewMoney(decimal.NewFromInt(20), "PLN"))
	require.NoError(t, err)
	assert.Equal(t, "3.57 PLN", sum.String())

	_, err = m.Add(NewMoney(decimal.NewFromInt(1), "EUR"))
	assert.Error(t, err)

	_, err = NewMoneyFromString("abc", "PLN")
	assert.Error(t, err)
}

func TestPatternKindSpecificity(t *testing.T) {
	assert.Greater(t, PatternExact.Specificity(), PatternSubstring.Specificity())
	assert.Greater(t, PatternSubstring.Specificity(), PatternRegex.Specificity())
	assert.False(t, PatternKind("glob").Valid())
}

func TestNormalizeTagName(t *testing.T) {
	tests := map[string]string{
		"Small Purchase":   "small-purchase",
		" small_purchase ": "small-purchase",
		"small--purchase":  "small-purchase",
		"Grocery":          "grocery",
		"Cash  Withdrawal": "cash-withdrawal",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeTagName(in), in)
	}
	assert.Equal(t, "Small Purchase", TagDisplayName("small_purchase"))
	assert.Equal(t, "#4CAF50", TagColor("Grocery"))
	assert.Equal(t, DefaultTagColor, TagColor("pets"))
}

func TestTransactionTagValidate(t *testing.T) {
	ok := 0.9
	bad := 1.2
	assert.NoError(t, (&TransactionTag{TransactionID: "t", TagID: "g", Source: SourceAutoRule, Confidence: &ok}).Validate())
	assert.NoError(t, (&TransactionTag{TransactionID: "t", TagID: "g", Source: SourceManual}).Validate())
	assert.Error(t, (&TransactionTag{TransactionID: "t", TagID: "g", Source: "auto", Confidence: &ok}).Validate())
	assert.Error(t, (&TransactionTag{TransactionID: "t", TagID: "g", Source: SourceAutoRule, Confidence: &bad}).Validate())
	assert.Error(t, (&TransactionTag{TagID: "g", Source: SourceManual}).Validate())
}

func TestEnrichmentApplyTo(t *testing.T) {
	e := Enrichment{MerchantID: "m1", NormalizedMerchantName: "zabka", StoreID: "s1", Location: "Warszawa", Confidence: 0.95}

	t.Run("fills empty fields", func(t *testing.T) {
		tx := &Transaction{}
		assert.True(t, e.ApplyTo(tx))
		assert.Equal(t, "m1", tx.MerchantID)
		assert.Equal(t, "s1", tx.StoreID)
		assert.Equal(t, "Warszawa", tx.LocationExtracted)
		assert.Equal(t, 0.95, tx.MerchantConfidence)
		assert.False(t, e.ApplyTo(tx), "second application changes nothing")
	})

	t.Run("keeps a manual merchant and skips its foreign store", func(t *testing.T) {
		tx := &Transaction{MerchantID: "manual", NormalizedMerchantName: "my shop", MerchantConfidence: 1}
		assert.True(t, e.ApplyTo(tx))
		assert.Equal(t, "manual", tx.MerchantID)
		assert.Equal(t, "my shop", tx.NormalizedMerchantName)
		assert.Empty(t, tx.StoreID)
		assert.Equal(t, "Warszawa", tx.LocationExtracted)
	})
}

func TestImportBatchPeriod(t *testing.T) {
	b := &ImportBatch{}
	d1 := time.Date(2025, 8, 3, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	b.ExtendPeriod(d1)
	b.ExtendPeriod(d2)
	b.ExtendPeriod(time.Time{})
	assert.Equal(t, d2, b.PeriodStart)
	assert.Equal(t, d1, b.PeriodEnd)

	b.TransactionsImported, b.DuplicatesSkipped, b.RowsFailed = 2, 3, 1
	assert.Equal(t, 6, b.RowsSeen())
	assert.False(t, b.IsTerminal())
	b.Status = BatchFailed
	assert.True(t, b.IsTerminal())
}

func TestTaggingRuleValidate(t *testing.T) {
	r := TaggingRule{OwnerID: "u", Name: "big", TagIDs: []string{"t"}, Confidence: 0.9}
	assert.NoError(t, r.Validate())

	r.TagIDs = nil
	assert.Error(t, r.Validate())
	r.TagIDs = []string{"t"}
	r.Confidence = 2
	assert.Error(t, r.Validate())
}

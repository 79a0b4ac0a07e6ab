package tagging

import (
	"testing"

	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/parsererror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func facts(amount, title string) Facts {
	return FactsOf(&models.Transaction{
		Amount:        decimal.RequireFromString(amount),
		Title:         title,
		OperationType: "ZAKUP PRZY UŻYCIU KARTY",
		Currency:      "PLN",
	}, &models.Merchant{NormalizedName: "ikea", Category: "Furniture"})
}

func TestCondition_Evaluate(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		facts Facts
		want  bool
	}{
		{"amount lt", `{field: amount, op: lt, value: -500}`, facts("-750.00", "IKEA"), true},
		{"amount lt boundary", `{field: amount, op: lt, value: -500}`, facts("-500.00", "IKEA"), false},
		{"amount lte boundary", `{field: amount, op: lte, value: -500}`, facts("-500.00", "IKEA"), true},
		{"abs between", `{field: abs_amount, op: between, min: 10, max: 20}`, facts("-16.43", "X"), true},
		{"abs between outside", `{field: abs_amount, op: between, min: 10, max: 20}`, facts("-26.43", "X"), false},
		{"direction", `{field: direction, op: eq, value: Expense}`, facts("-1", "X"), true},
		{"direction income", `{field: direction, op: eq, value: income}`, facts("-1", "X"), false},
		{"title contains folds", `{field: title, op: contains, value: "żabka"}`, facts("-1", "ZABKA Z1 WARSZAWA"), true},
		{"operation type", `{field: operation_type, op: contains, value: karty}`, facts("-1", "X"), true},
		{"merchant category", `{field: merchant_category, op: eq, value: furniture}`, facts("-1", "X"), true},
		{"merchant ne", `{field: merchant, op: ne, value: ikea}`, facts("-1", "X"), false},
		{"currency", `{field: currency, op: eq, value: pln}`, facts("-1", "X"), true},
		{
			name: "all with nested any",
			doc: `
all:
  - { field: amount, op: lt, value: -500 }
  - any:
      - { field: title, op: contains, value: ikea }
      - { field: merchant_category, op: eq, value: electronics }
`,
			facts: facts("-750", "IKEA WARSZAWA"),
			want:  true,
		},
		{
			name:  "all short circuits on false",
			doc:   `{all: [{field: amount, op: gt, value: 0}, {field: title, op: contains, value: ikea}]}`,
			facts: facts("-750", "IKEA"),
			want:  false,
		},
		{
			name:  "json document",
			doc:   `{"any":[{"field":"title","op":"contains","value":"netflix"},{"field":"amount","op":"eq","value":"-43.00"}]}`,
			facts: facts("-43", "X"),
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCondition(tt.doc)
			require.NoError(t, err)
			pred, err := c.Compile()
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred(tt.facts))
		})
	}
}

func TestParseCondition_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "  "},
		{"not yaml", "{field: [amount"},
		{"unknown field", `{field: colour, op: eq, value: red}`},
		{"no node kind", `{op: eq, value: red}`},
		{"two node kinds", `{field: title, op: eq, value: x, all: [{field: amount, op: lt, value: 0}]}`},
		{"bad number", `{field: amount, op: lt, value: lots}`},
		{"text op on number", `{field: amount, op: contains, value: 5}`},
		{"number op on text", `{field: title, op: gt, value: a}`},
		{"missing text value", `{field: title, op: eq}`},
		{"bad direction", `{field: direction, op: eq, value: sideways}`},
		{"contains on direction", `{field: direction, op: contains, value: expense}`},
		{"inverted range", `{field: amount, op: between, min: 10, max: 1}`},
		{"bad nested", `{any: [{field: amount, op: lt, value: 0}, {field: nope, op: eq, value: x}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCondition(tt.doc)
			var verr *parsererror.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestCondition_EncodeRoundTrip(t *testing.T) {
	c, err := ParseCondition(`{field: amount, op: lt, value: -500}`)
	require.NoError(t, err)

	encoded, err := c.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"field":"amount","op":"lt","value":"-500"}`, encoded)

	again, err := ParseCondition(encoded)
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

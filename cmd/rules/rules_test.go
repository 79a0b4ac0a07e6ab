package rules

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"fjacquet/stmt-ledger/internal/config"
	"fjacquet/stmt-ledger/internal/container"
	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/parsererror"
	"fjacquet/stmt-ledger/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContainer(t *testing.T) *container.Container {
	t.Helper()
	c, err := container.NewWithRepository(context.Background(), config.Default(), memory.NewStore(), logging.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAddAndList(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t)

	var out bytes.Buffer
	require.NoError(t, add(ctx, c, "anna", ruleFlags{
		Name:       "coffee",
		Priority:   10,
		Condition:  "all:\n  - {field: title, op: contains, value: kawiarnia}\n  - {field: abs_amount, op: lt, value: \"40\"}\n",
		Tags:       "Coffee, eating_out",
		Confidence: 0.95,
	}, &out))
	assert.Contains(t, out.String(), "Rule coffee saved")

	require.NoError(t, add(ctx, c, "anna", ruleFlags{
		Name:       "rent",
		Priority:   50,
		Condition:  `{"field": "counterparty", "op": "contains", "value": "landlord"}`,
		Tags:       "rent",
		Confidence: 0.9,
	}, &out))

	out.Reset()
	require.NoError(t, list(ctx, c, "anna", true, "text", &out))
	s := out.String()
	assert.Contains(t, s, "coffee,eating-out")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("rent")), bytes.Index(out.Bytes(), []byte("coffee")))

	out.Reset()
	require.NoError(t, list(ctx, c, "bob", true, "json", &out))
	assert.Equal(t, "[]\n", out.String())
}

func TestAdd_Invalid(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t)

	tests := []struct {
		name  string
		flags ruleFlags
	}{
		{"unknown field", ruleFlags{Name: "x", Tags: "a", Condition: "{field: colour, op: eq, value: red}"}},
		{"no tags", ruleFlags{Name: "x", Tags: " , ", Condition: "{field: title, op: contains, value: a}"}},
		{"bad confidence", ruleFlags{Name: "x", Tags: "a", Confidence: 1.5, Condition: "{field: title, op: contains, value: a}"}},
		{"empty name", ruleFlags{Name: " ", Tags: "a", Condition: "{field: title, op: contains, value: a}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := add(ctx, c, "anna", tt.flags, &bytes.Buffer{})
			require.Error(t, err)
			var verr *parsererror.ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}

	rules, err := c.GetRepository().ListRules(ctx, "anna", false)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n  b\tc\n"))
}

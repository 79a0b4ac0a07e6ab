package parsererror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatError(t *testing.T) {
	cause := errors.New("bad byte")
	err := &FormatError{Format: "mbank", Reason: "unreadable encoding", Snippet: "\x81", Err: cause}

	assert.Contains(t, err.Error(), "invalid mbank statement: unreadable encoding")
	assert.Contains(t, err.Error(), "bad byte")
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("import failed: %w", err)
	var fe *FormatError
	require.True(t, errors.As(wrapped, &fe))
	assert.Equal(t, "mbank", fe.Format)
}

func TestRowError(t *testing.T) {
	err := &RowError{Line: 41, Field: "amount", Value: "12,x PLN", Err: errors.New("not a number")}
	assert.Equal(t, "line 41: invalid amount '12,x PLN': not a number", err.Error())

	short := &RowError{Line: 3, Err: errors.New("expected 8 columns, got 2")}
	assert.Equal(t, "line 3: expected 8 columns, got 2", short.Error())
}

func TestRuleEvaluationError(t *testing.T) {
	cause := errors.New("unknown field \"colour\"")
	err := &RuleEvaluationError{RuleID: "r1", Err: cause}
	assert.Equal(t, "tagging rule r1: unknown field \"colour\"", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"format", &FormatError{Format: "mbank", Reason: "no rows"}, true},
		{"wrapped format", fmt.Errorf("x: %w", &FormatError{}), true},
		{"row", &RowError{Line: 1, Err: errors.New("x")}, false},
		{"rule", &RuleEvaluationError{RuleID: "r", Err: errors.New("x")}, false},
		{"ambiguous", fmt.Errorf("tx 1: %w", ErrEnrichmentAmbiguous), false},
		{"duplicate file", ErrDuplicateFile, false},
		{"persistence", errors.New("database is locked"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

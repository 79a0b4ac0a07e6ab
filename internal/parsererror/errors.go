// Package parsererror defines the error taxonomy of the import pipeline.
//
// Only *FormatError and persistence failures are fatal to a batch. The other
// kinds are recovered where they occur and show up in batch counters or logs.
package parsererror

import (
	"errors"
	"fmt"
)

// ErrDuplicateFile marks a whole file whose content hash was already imported
// for the same identity. The batch short-circuits as a completed no-op.
var ErrDuplicateFile = errors.New("statement file already imported")

// ErrEnrichmentAmbiguous marks a transaction for which no merchant could be
// derived. The transaction keeps empty enrichment fields.
var ErrEnrichmentAmbiguous = errors.New("no confident merchant match")

// FormatError means the file cannot be read as the declared format at all:
// unreadable encoding, wrong delimiter or a missing required section.
type FormatError struct {
	Format  string
	Reason  string
	Snippet string
	Err     error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("invalid %s statement: %s", e.Format, e.Reason)
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (near '%s')", e.Snippet)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// RowError describes one malformed statement row. The row is skipped and
// counted; the batch continues.
type RowError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: invalid %s '%s': %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// RuleEvaluationError means a stored tagging rule could not be evaluated.
// The rule is skipped and the remaining rules still run.
type RuleEvaluationError struct {
	RuleID string
	Err    error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("tagging rule %s: %v", e.RuleID, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error {
	return e.Err
}

// ValidationError rejects user input at save time (rule conditions, tag
// names, synonym decisions).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsFatal reports whether err must fail the whole batch. Row, rule and
// enrichment errors are recoverable; everything else is not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var rowErr *RowError
	var ruleErr *RuleEvaluationError
	switch {
	case errors.As(err, &rowErr), errors.As(err, &ruleErr):
		return false
	case errors.Is(err, ErrEnrichmentAmbiguous), errors.Is(err, ErrDuplicateFile):
		return false
	}
	return true
}

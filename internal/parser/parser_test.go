package parser

import (
	"context"
	"errors"
	"io"
	"testing"

	"fjacquet/stmt-ledger/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubParser struct {
	format Format
}

func (s stubParser) Format() Format { return s.format }

func (s stubParser) Parse(ctx context.Context, r io.Reader) (*Statement, error) {
	return NewStatement(s.format, Metadata{}, nil, func(yield func(Row, error) bool) {
		if !yield(Row{Line: 1}, nil) {
			return
		}
		if !yield(Row{Line: 2}, errors.New("bad row")) {
			return
		}
		yield(Row{Line: 3}, nil)
	}), nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubParser{format: FormatMBank}, stubParser{format: "other"})

	p, err := r.Get("MBANK")
	require.NoError(t, err)
	assert.Equal(t, FormatMBank, p.Format())

	_, err = r.Get("camt")
	assert.Error(t, err)

	assert.Equal(t, []Format{FormatMBank, "other"}, r.Formats())
}

func TestStatementRows(t *testing.T) {
	st, err := stubParser{format: FormatMBank}.Parse(context.Background(), nil)
	require.NoError(t, err)

	var lines []int
	var failed int
	for row, err := range st.Rows() {
		if err != nil {
			failed++
			continue
		}
		lines = append(lines, row.Line)
	}
	assert.Equal(t, []int{1, 3}, lines)
	assert.Equal(t, 1, failed)

	count := 0
	for range st.Rows() {
		count++
		break
	}
	assert.Equal(t, 1, count, "early break stops the sequence")
}

func TestStatementRows_Empty(t *testing.T) {
	st := &Statement{}
	for range st.Rows() {
		t.Fatal("empty statement must not yield")
	}
}

func TestBaseParser(t *testing.T) {
	b := NewBaseParser(nil)
	assert.NotNil(t, b.GetLogger())

	mock := logging.NewMockLogger()
	b.SetLogger(mock)
	b.SetLogger(nil)
	assert.Same(t, mock, b.GetLogger())
}

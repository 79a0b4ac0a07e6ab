// Package mbankparser reads the CSV statement export of mBank: windows-1250
// text, semicolon-delimited, with '#'-marked header sections followed by the
// transaction table.
package mbankparser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/parser"
	"fjacquet/stmt-ledger/internal/parsererror"

	"golang.org/x/text/encoding/charmap"
)

const (
	// Delimiter separates columns in every section.
	Delimiter = ';'

	// ColumnCount is the number of columns of a transaction row.
	ColumnCount = 8
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parser parses mBank statements.
type Parser struct {
	parser.BaseParser
}

// NewParser creates an mBank parser logging through logger.
func NewParser(logger logging.Logger) *Parser {
	return &Parser{BaseParser: parser.NewBaseParser(logger)}
}

// Format implements parser.Parser.
func (p *Parser) Format() parser.Format {
	return parser.FormatMBank
}

// Parse implements parser.Parser. The whole file is decoded up front; rows
// are tokenized and converted while the statement is iterated.
func (p *Parser) Parse(ctx context.Context, r io.Reader) (*parser.Statement, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := decode(data)
	if err != nil {
		return nil, err
	}

	lines := splitLines(text)
	header := findTransactionHeader(lines)
	if header < 0 {
		return nil, formatError("missing transaction section", firstLine(lines), nil)
	}
	if cols := strings.Count(lines[header], string(Delimiter)) + 1; cols < ColumnCount {
		return nil, formatError(
			fmt.Sprintf("transaction header has %d columns, expected %d (wrong delimiter?)", cols, ColumnCount),
			lines[header], nil)
	}

	meta := parseMetadata(lines[:header])
	summary := parseSummary(lines)

	p.GetLogger().Debug("Parsed mBank statement header",
		logging.F(logging.FieldFormat, parser.FormatMBank),
		logging.F("account_number", meta.AccountNumber),
		logging.F("currency", meta.Currency),
		logging.F(logging.FieldLine, header+1))

	// Rows start right after the header; file lines are 1-based.
	body := lines[header+1:]
	return parser.NewStatement(parser.FormatMBank, meta, summary, rowSequence(body, header+2, meta.Currency)), nil
}

// decode converts the raw bytes to UTF-8 text. Statements are windows-1250;
// files re-saved as UTF-8 (with or without a byte order mark) are accepted.
func decode(data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", formatError("empty file", "", nil)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", formatError("unreadable encoding: binary content", "", nil)
	}

	if bytes.HasPrefix(data, utf8BOM) {
		data = data[len(utf8BOM):]
		if !utf8.Valid(data) {
			return "", formatError("unreadable encoding: invalid UTF-8 after byte order mark", "", nil)
		}
		return string(data), nil
	}

	// Polish text in windows-1250 practically never forms valid multi-byte
	// UTF-8, so a valid non-ASCII UTF-8 file was re-saved as UTF-8.
	if utf8.Valid(data) && !isASCII(data) {
		return string(data), nil
	}

	decoded, err := charmap.Windows1250.NewDecoder().Bytes(data)
	if err != nil {
		return "", formatError("unreadable encoding", "", err)
	}
	if i := bytes.IndexRune(decoded, utf8.RuneError); i >= 0 {
		return "", formatError("unreadable encoding: byte not defined in windows-1250", snippet(string(decoded[max(0, i-20):])), nil)
	}
	return string(decoded), nil
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

func formatError(reason, near string, err error) error {
	return &parsererror.FormatError{
		Format:  string(parser.FormatMBank),
		Reason:  reason,
		Snippet: snippet(near),
		Err:     err,
	}
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 40 {
		return string(r[:40])
	}
	return s
}

func firstLine(lines []string) string {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return l
		}
	}
	return ""
}

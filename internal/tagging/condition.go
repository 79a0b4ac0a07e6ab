package tagging

import (
	"encoding/json"
	"fmt"
	"strings"

	"fjacquet/stmt-ledger/internal/models"
	"fjacquet/stmt-ledger/internal/parsererror"
	"fjacquet/stmt-ledger/internal/textutils"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Op is a comparison of a Condition leaf.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpBetween  Op = "between"
	OpContains Op = "contains"
)

// Transaction fields a Condition can test.
const (
	FieldAmount           = "amount"
	FieldAbsAmount        = "abs_amount"
	FieldDirection        = "direction"
	FieldOperationType    = "operation_type"
	FieldTitle            = "title"
	FieldMerchant         = "merchant"
	FieldMerchantCategory = "merchant_category"
	FieldCounterparty     = "counterparty"
	FieldCurrency         = "currency"
)

const (
	DirectionExpense = "expense"
	DirectionIncome  = "income"
)

var numericFields = map[string]bool{
	FieldAmount:    true,
	FieldAbsAmount: true,
}

var textFields = map[string]bool{
	FieldDirection:        true,
	FieldOperationType:    true,
	FieldTitle:            true,
	FieldMerchant:         true,
	FieldMerchantCategory: true,
	FieldCounterparty:     true,
	FieldCurrency:         true,
}

// Condition is the predicate tree of a TaggingRule. A node is either a
// combinator (All or Any) or a leaf comparing Field with Value, or with
// Min and Max for between. Text comparisons ignore case and diacritics.
//
//	all:
//	  - { field: amount, op: lt, value: -500 }
//	  - any:
//	      - { field: title, op: contains, value: ikea }
//	      - { field: merchant_category, op: eq, value: furniture }
type Condition struct {
	All   []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	Any   []Condition `yaml:"any,omitempty" json:"any,omitempty"`
	Field string      `yaml:"field,omitempty" json:"field,omitempty"`
	Op    Op          `yaml:"op,omitempty" json:"op,omitempty"`
	Value string      `yaml:"value,omitempty" json:"value,omitempty"`
	Min   string      `yaml:"min,omitempty" json:"min,omitempty"`
	Max   string      `yaml:"max,omitempty" json:"max,omitempty"`
}

// Facts is the view of a transaction that conditions are evaluated against.
// Text facts are folded.
type Facts struct {
	Amount           decimal.Decimal
	OperationType    string
	Title            string
	Merchant         string
	MerchantCategory string
	Counterparty     string
	Currency         string
}

// FactsOf builds the Facts of tx. m may be nil.
func FactsOf(tx *models.Transaction, m *models.Merchant) Facts {
	f := Facts{
		Amount:        tx.Amount,
		OperationType: textutils.Fold(tx.OperationType),
		Title:         textutils.Fold(tx.Title),
		Merchant:      textutils.Fold(tx.NormalizedMerchantName),
		Counterparty:  textutils.Fold(tx.Counterparty),
		Currency:      textutils.Fold(tx.Currency),
	}
	if m != nil {
		f.MerchantCategory = textutils.Fold(m.Category)
		if f.Merchant == "" {
			f.Merchant = m.NormalizedName
		}
	}
	return f
}

func (f Facts) text(field string) string {
	switch field {
	case FieldDirection:
		switch {
		case f.Amount.IsNegative():
			return DirectionExpense
		case f.Amount.IsPositive():
			return DirectionIncome
		}
		return ""
	case FieldOperationType:
		return f.OperationType
	case FieldTitle:
		return f.Title
	case FieldMerchant:
		return f.Merchant
	case FieldMerchantCategory:
		return f.MerchantCategory
	case FieldCounterparty:
		return f.Counterparty
	case FieldCurrency:
		return f.Currency
	}
	return ""
}

func (f Facts) number(field string) decimal.Decimal {
	if field == FieldAbsAmount {
		return f.Amount.Abs()
	}
	return f.Amount
}

// Predicate is a compiled Condition.
type Predicate func(Facts) bool

// ParseCondition reads a condition document (YAML or JSON) and validates
// it. Problems are reported as *parsererror.ValidationError.
func ParseCondition(doc string) (*Condition, error) {
	c, _, err := parseCondition(doc)
	return c, err
}

func parseCondition(doc string) (*Condition, Predicate, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, nil, &parsererror.ValidationError{Field: "condition", Reason: "empty condition"}
	}
	var c Condition
	if err := yaml.Unmarshal([]byte(doc), &c); err != nil {
		return nil, nil, &parsererror.ValidationError{Field: "condition", Reason: err.Error()}
	}
	pred, err := c.Compile()
	if err != nil {
		return nil, nil, err
	}
	return &c, pred, nil
}

// Encode returns the stored form of c.
func (c *Condition) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode condition: %w", err)
	}
	return string(data), nil
}

// Compile validates c and returns its predicate.
func (c *Condition) Compile() (Predicate, error) {
	return c.compile("condition")
}

func (c *Condition) compile(path string) (Predicate, error) {
	invalid := func(format string, args ...any) error {
		return &parsererror.ValidationError{Field: path, Reason: fmt.Sprintf(format, args...)}
	}

	kinds := 0
	if len(c.All) > 0 {
		kinds++
	}
	if len(c.Any) > 0 {
		kinds++
	}
	if c.Field != "" {
		kinds++
	}
	if kinds != 1 {
		return nil, invalid("a node needs exactly one of all, any or field")
	}

	switch {
	case len(c.All) > 0:
		preds, err := compileChildren(c.All, path+".all")
		if err != nil {
			return nil, err
		}
		return func(f Facts) bool {
			for _, p := range preds {
				if !p(f) {
					return false
				}
			}
			return true
		}, nil
	case len(c.Any) > 0:
		preds, err := compileChildren(c.Any, path+".any")
		if err != nil {
			return nil, err
		}
		return func(f Facts) bool {
			for _, p := range preds {
				if p(f) {
					return true
				}
			}
			return false
		}, nil
	}

	field := c.Field
	switch {
	case numericFields[field]:
		return c.compileNumeric(field, invalid)
	case textFields[field]:
		return c.compileText(field, invalid)
	}
	return nil, invalid("unknown field %q", field)
}

func compileChildren(children []Condition, path string) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(children))
	for i := range children {
		p, err := children[i].compile(fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func (c *Condition) compileNumeric(field string, invalid func(string, ...any) error) (Predicate, error) {
	parse := func(name, s string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, invalid("%s %q is not a number", name, s)
		}
		return d, nil
	}

	if c.Op == OpBetween {
		lo, err := parse("min", c.Min)
		if err != nil {
			return nil, err
		}
		hi, err := parse("max", c.Max)
		if err != nil {
			return nil, err
		}
		if lo.GreaterThan(hi) {
			return nil, invalid("min %s is above max %s", lo, hi)
		}
		return func(f Facts) bool {
			n := f.number(field)
			return n.GreaterThanOrEqual(lo) && n.LessThanOrEqual(hi)
		}, nil
	}

	v, err := parse("value", c.Value)
	if err != nil {
		return nil, err
	}
	var cmp func(n decimal.Decimal) bool
	switch c.Op {
	case OpEq:
		cmp = func(n decimal.Decimal) bool { return n.Equal(v) }
	case OpNe:
		cmp = func(n decimal.Decimal) bool { return !n.Equal(v) }
	case OpLt:
		cmp = func(n decimal.Decimal) bool { return n.LessThan(v) }
	case OpLte:
		cmp = func(n decimal.Decimal) bool { return n.LessThanOrEqual(v) }
	case OpGt:
		cmp = func(n decimal.Decimal) bool { return n.GreaterThan(v) }
	case OpGte:
		cmp = func(n decimal.Decimal) bool { return n.GreaterThanOrEqual(v) }
	default:
		return nil, invalid("operator %q does not apply to %s", c.Op, field)
	}
	return func(f Facts) bool { return cmp(f.number(field)) }, nil
}

func (c *Condition) compileText(field string, invalid func(string, ...any) error) (Predicate, error) {
	v := textutils.Fold(c.Value)
	if v == "" {
		return nil, invalid("%s needs a value", field)
	}
	if field == FieldDirection && v != DirectionExpense && v != DirectionIncome {
		return nil, invalid("direction must be %s or %s", DirectionExpense, DirectionIncome)
	}

	switch c.Op {
	case OpEq:
		return func(f Facts) bool { return f.text(field) == v }, nil
	case OpNe:
		return func(f Facts) bool { return f.text(field) != v }, nil
	case OpContains:
		if field == FieldDirection {
			break
		}
		return func(f Facts) bool { return strings.Contains(f.text(field), v) }, nil
	}
	return nil, invalid("operator %q does not apply to %s", c.Op, field)
}

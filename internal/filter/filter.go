// Package filter defines the structured search filters extracted from a
// model tool call and renders them as predicate fragments for the hybrid
// retrieval query.
//
// Column names and operators are restricted to fixed allow-lists. Values are
// never interpolated into the query text sent to the datastore: [Bind]
// produces positional placeholders plus an argument slice. [BuildClauses]
// produces a literal rendering that is only used for logs and diagnostics.
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidFilter is returned by [Validate] and [New] when a filter names an
// unknown column, an operator the column does not allow, or a value of the
// wrong type.
var ErrInvalidFilter = errors.New("filter: invalid filter")

// Column is an allow-listed product column that can be filtered on.
type Column string

const (
	// ColumnPrice filters on the numeric product price.
	ColumnPrice Column = "price"
	// ColumnBrand filters on the product brand string.
	ColumnBrand Column = "brand"
)

// Operator is an allow-listed comparison operator.
type Operator string

const (
	// OpEq is equality.
	OpEq Operator = "="
	// OpNe is inequality.
	OpNe Operator = "!="
	// OpLt is strictly less than.
	OpLt Operator = "<"
	// OpLe is less than or equal.
	OpLe Operator = "<="
	// OpGt is strictly greater than.
	OpGt Operator = ">"
	// OpGe is greater than or equal.
	OpGe Operator = ">="
)

// Kind is the value type a column holds.
type Kind int

const (
	// KindNumber is a numeric column or value.
	KindNumber Kind = iota + 1
	// KindString is a string column or value.
	KindString
)

// columnRule describes what a column accepts.
type columnRule struct {
	kind Kind
	ops  map[Operator]bool
}

// columns is the allow-list of filterable columns. String columns accept
// equality operators only.
var columns = map[Column]columnRule{
	ColumnPrice: {
		kind: KindNumber,
		ops:  map[Operator]bool{OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true},
	},
	ColumnBrand: {
		kind: KindString,
		ops:  map[Operator]bool{OpEq: true, OpNe: true},
	},
}

// Columns returns the allow-listed column names in a stable order.
func Columns() []Column {
	return []Column{ColumnPrice, ColumnBrand}
}

// Value is a filter operand: either a number or a string.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Number constructs a numeric Value.
func Number(v float64) Value { return Value{kind: KindNumber, num: v} }

// String constructs a string Value.
func String(v string) Value { return Value{kind: KindString, str: v} }

// Kind reports whether the value is a number or a string. The zero Value has
// kind 0 and fails validation.
func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric payload. It is zero for string values.
func (v Value) Float() float64 { return v.num }

// Str returns the string payload. It is empty for numeric values.
func (v Value) Str() string { return v.str }

// Any returns the payload as the type bound to a query parameter.
func (v Value) Any() any {
	if v.kind == KindNumber {
		return v.num
	}
	return v.str
}

// Literal renders the value as it would appear in SQL text: numbers
// unquoted, strings single-quoted with embedded quotes doubled.
func (v Value) Literal() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return "'" + strings.ReplaceAll(v.str, "'", "''") + "'"
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.kind == KindNumber {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.str
}

// SearchFilter is a single typed comparison predicate. Filters in a slice are
// combined with logical AND.
type SearchFilter struct {
	// Column is the product column to compare.
	Column Column
	// Operator is the comparison operator.
	Operator Operator
	// Value is the right-hand operand.
	Value Value
}

// New validates and constructs a SearchFilter.
func New(column Column, op Operator, value Value) (SearchFilter, error) {
	f := SearchFilter{Column: column, Operator: op, Value: value}
	if err := Validate(f); err != nil {
		return SearchFilter{}, err
	}
	return f, nil
}

// Validate checks f against the column and operator allow-lists and the
// column's value type. Numeric values must be finite.
func Validate(f SearchFilter) error {
	rule, ok := columns[f.Column]
	if !ok {
		return fmt.Errorf("%w: unknown column %q", ErrInvalidFilter, f.Column)
	}
	if !rule.ops[f.Operator] {
		return fmt.Errorf("%w: operator %q not allowed for column %q", ErrInvalidFilter, f.Operator, f.Column)
	}
	if f.Value.kind != rule.kind {
		return fmt.Errorf("%w: column %q requires a %s value", ErrInvalidFilter, f.Column, kindName(rule.kind))
	}
	if f.Value.kind == KindNumber && (math.IsNaN(f.Value.num) || math.IsInf(f.Value.num, 0)) {
		return fmt.Errorf("%w: column %q requires a finite value", ErrInvalidFilter, f.Column)
	}
	return nil
}

// condition renders "<column> <operator> <rhs>".
func (f SearchFilter) condition(rhs string) string {
	return string(f.Column) + " " + string(f.Operator) + " " + rhs
}

// String renders the filter with its literal value, e.g. "price < 2000".
func (f SearchFilter) String() string {
	return f.condition(f.Value.Literal())
}

// MarshalJSON renders the filter as {"column","operator","value"} with a
// numeric or string value.
func (f SearchFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Column   Column   `json:"column"`
		Operator Operator `json:"operator"`
		Value    any      `json:"value"`
	}{f.Column, f.Operator, f.Value.Any()})
}

func kindName(k Kind) string {
	switch k {
	case KindNumber:
		return "numeric"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

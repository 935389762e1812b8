package filter

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestBuildClauses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		filters   []SearchFilter
		wantWhere string
		wantAnd   string
	}{
		{name: "nil", filters: nil},
		{name: "empty", filters: []SearchFilter{}},
		{
			name:      "single numeric",
			filters:   []SearchFilter{{Column: ColumnPrice, Operator: OpLt, Value: Number(2000)}},
			wantWhere: "WHERE price < 2000",
			wantAnd:   "AND price < 2000",
		},
		{
			name: "numeric and string",
			filters: []SearchFilter{
				{Column: ColumnPrice, Operator: OpGe, Value: Number(99.5)},
				{Column: ColumnBrand, Operator: OpEq, Value: String("Apple")},
			},
			wantWhere: "WHERE price >= 99.5 AND brand = 'Apple'",
			wantAnd:   "AND price >= 99.5 AND brand = 'Apple'",
		},
		{
			name:      "quote is doubled",
			filters:   []SearchFilter{{Column: ColumnBrand, Operator: OpNe, Value: String("O'Neill")}},
			wantWhere: "WHERE brand != 'O''Neill'",
			wantAnd:   "AND brand != 'O''Neill'",
		},
		{
			name: "invalid filter skipped",
			filters: []SearchFilter{
				{Column: "price; DROP TABLE products", Operator: OpLt, Value: Number(1)},
				{Column: ColumnBrand, Operator: OpLt, Value: String("Nike")},
				{Column: ColumnPrice, Operator: OpGt, Value: Number(10)},
			},
			wantWhere: "WHERE price > 10",
			wantAnd:   "AND price > 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			where, and := BuildClauses(tt.filters)
			if where != tt.wantWhere {
				t.Errorf("where = %q, want %q", where, tt.wantWhere)
			}
			if and != tt.wantAnd {
				t.Errorf("and = %q, want %q", and, tt.wantAnd)
			}
		})
	}
}

func TestBind(t *testing.T) {
	t.Parallel()

	filters := []SearchFilter{
		{Column: ColumnPrice, Operator: OpLt, Value: Number(2000)},
		{Column: ColumnBrand, Operator: OpEq, Value: String("x' OR '1'='1")},
	}

	c := Bind(filters, 6)

	if c.Where != "WHERE price < $6 AND brand = $7" {
		t.Errorf("where = %q", c.Where)
	}
	if c.And != "AND price < $6 AND brand = $7" {
		t.Errorf("and = %q", c.And)
	}
	if len(c.Args) != 2 {
		t.Fatalf("args = %v, want 2 values", c.Args)
	}
	if c.Args[0] != 2000.0 {
		t.Errorf("args[0] = %v, want 2000", c.Args[0])
	}
	if c.Args[1] != "x' OR '1'='1" {
		t.Errorf("args[1] = %v, want raw string", c.Args[1])
	}
}

func TestBind_Empty(t *testing.T) {
	t.Parallel()

	c := Bind(nil, 1)
	if c.Where != "" || c.And != "" || len(c.Args) != 0 {
		t.Errorf("Bind(nil) = %+v, want empty clause", c)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		f       SearchFilter
		wantErr bool
	}{
		{name: "price le", f: SearchFilter{ColumnPrice, OpLe, Number(1)}},
		{name: "brand eq", f: SearchFilter{ColumnBrand, OpEq, String("Nike")}},
		{name: "brand ne", f: SearchFilter{ColumnBrand, OpNe, String("Nike")}},
		{name: "brand lt rejected", f: SearchFilter{ColumnBrand, OpLt, String("Nike")}, wantErr: true},
		{name: "price string value", f: SearchFilter{ColumnPrice, OpLt, String("cheap")}, wantErr: true},
		{name: "unknown column", f: SearchFilter{"description", OpEq, String("x")}, wantErr: true},
		{name: "unknown operator", f: SearchFilter{ColumnPrice, "LIKE", Number(1)}, wantErr: true},
		{name: "zero value", f: SearchFilter{Column: ColumnPrice, Operator: OpEq}, wantErr: true},
		{name: "NaN price", f: SearchFilter{ColumnPrice, OpLt, Number(math.NaN())}, wantErr: true},
		{name: "infinite price", f: SearchFilter{ColumnPrice, OpGt, Number(math.Inf(1))}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tt.f)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("error %v does not wrap ErrInvalidFilter", err)
			}
		})
	}
}

func TestScope(t *testing.T) {
	t.Parallel()

	filters := []SearchFilter{
		{ColumnPrice, OpLt, Number(50)},
		{ColumnBrand, OpEq, String("Nike")},
	}

	def := DefaultScope()
	if got := def.Select(filters, StageVector); len(got) != 2 {
		t.Errorf("default vector stage = %v, want both filters", got)
	}
	if got := def.Select(filters, StageFullText); len(got) != 2 {
		t.Errorf("default fulltext stage = %v, want both filters", got)
	}

	s, err := ParseScope("price=vector+fulltext, brand=vector")
	if err != nil {
		t.Fatalf("ParseScope: %v", err)
	}
	if got := s.Select(filters, StageFullText); len(got) != 1 || got[0].Column != ColumnPrice {
		t.Errorf("fulltext stage = %v, want price only", got)
	}
	if got := s.Select(filters, StageVector); len(got) != 2 {
		t.Errorf("vector stage = %v, want both", got)
	}

	none, err := ParseScope("price=,brand=")
	if err != nil {
		t.Fatalf("ParseScope: %v", err)
	}
	if got := none.Select(filters, StageVector); len(got) != 0 {
		t.Errorf("empty scope selected %v", got)
	}
}

func TestParseScope_Errors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"price", "colour=vector", "price=semantic"} {
		if _, err := ParseScope(in); err == nil {
			t.Errorf("ParseScope(%q) expected error", in)
		}
	}
}

func TestSearchFilter_MarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		f    SearchFilter
		want string
	}{
		{
			name: "numeric",
			f:    SearchFilter{Column: ColumnPrice, Operator: OpLt, Value: Number(100)},
			want: `{"column":"price","operator":"<","value":100}`,
		},
		{
			name: "string",
			f:    SearchFilter{Column: ColumnBrand, Operator: OpNe, Value: String("Nike")},
			want: `{"column":"brand","operator":"!=","value":"Nike"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := json.Marshal(tt.f)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

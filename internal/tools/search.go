// Package tools defines the function schemas the chat model may invoke.
// The only tool is search_database, which the query-rewrite step binds so the
// model can return a cleaned search query plus optional price and brand
// filters as structured arguments.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/shopai-go/internal/filter"
)

// SearchDatabaseName is the function name the model must use for its
// arguments to be treated as a search invocation.
const SearchDatabaseName = "search_database"

// Operators advertised for each filter argument. A model reply using any
// other operator is skipped even when the column would accept it.
var (
	priceOperators = []string{">", "<", ">=", "<=", "="}
	brandOperators = []string{"=", "!="}
)

// SearchDatabaseTool describes the search_database function to the model.
// It satisfies eino's tool.BaseTool so it can be bound with WithTools.
type SearchDatabaseTool struct{}

// NewSearchDatabaseTool returns the search_database tool descriptor.
func NewSearchDatabaseTool() *SearchDatabaseTool { return &SearchDatabaseTool{} }

// Name returns the tool name registered with the model.
func (t *SearchDatabaseTool) Name() string { return SearchDatabaseName }

// Description returns the LLM-facing description of this tool.
func (t *SearchDatabaseTool) Description() string {
	return "Search PostgreSQL database for relevant products based on user query"
}

// Info returns the eino tool metadata including the JSON input schema.
func (t *SearchDatabaseTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"search_query": {
				Type:     schema.String,
				Desc:     "Query string to use for full text search, e.g. 'red shoes'",
				Required: true,
			},
			"price_filter": {
				Type: schema.Object,
				Desc: "Filter search results based on price of the product",
				SubParams: map[string]*schema.ParameterInfo{
					"comparison_operator": {
						Type: schema.String,
						Desc: "Operator to compare the column value, either '>', '<', '>=', '<=', '='",
						Enum: priceOperators,
					},
					"value": {
						Type: schema.Number,
						Desc: "Value to compare against, e.g. 30",
					},
				},
			},
			"brand_filter": {
				Type: schema.Object,
				Desc: "Filter search results based on brand of the product",
				SubParams: map[string]*schema.ParameterInfo{
					"comparison_operator": {
						Type: schema.String,
						Desc: "Operator to compare the column value, either '=' or '!='",
						Enum: brandOperators,
					},
					"value": {
						Type: schema.String,
						Desc: "Value to compare against, e.g. AirStrider",
					},
				},
			},
		}),
	}, nil
}

// FilterArgument is the nested operator/value pair of a filter argument.
// Value is kept raw because models emit numbers as strings and vice versa.
type FilterArgument struct {
	// ComparisonOperator is one of the allow-listed operators.
	ComparisonOperator string `json:"comparison_operator"`
	// Value is the raw JSON operand.
	Value json.RawMessage `json:"value"`
}

// present reports whether the argument carries any data at all.
func (a *FilterArgument) present() bool {
	return a != nil && (a.ComparisonOperator != "" || len(a.Value) > 0)
}

// Arguments is the decoded search_database argument object.
type Arguments struct {
	// SearchQuery is the rewritten query text.
	SearchQuery string `json:"search_query"`
	// PriceFilter restricts the numeric price column.
	PriceFilter *FilterArgument `json:"price_filter,omitempty"`
	// BrandFilter restricts the brand string column.
	BrandFilter *FilterArgument `json:"brand_filter,omitempty"`
}

// DecodeArguments parses the raw tool-call argument string. Some models
// double-encode the object as a JSON string; that form is unwrapped once.
func DecodeArguments(raw string) (*Arguments, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return nil, fmt.Errorf("tools: %s: empty arguments", SearchDatabaseName)
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("tools: %s: invalid arguments: %w", SearchDatabaseName, err)
		}
		data = []byte(inner)
	}
	var args Arguments
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("tools: %s: invalid arguments: %w", SearchDatabaseName, err)
	}
	return &args, nil
}

// Filters converts the present filter arguments into validated search
// filters. Arguments that are absent produce nothing; arguments that are
// present but unusable are reported in skipped and otherwise ignored.
func (a *Arguments) Filters() (filters []filter.SearchFilter, skipped []string) {
	add := func(col filter.Column, arg *FilterArgument) {
		if !arg.present() {
			return
		}
		f, err := arg.toFilter(col)
		if err != nil {
			skipped = append(skipped, err.Error())
			return
		}
		filters = append(filters, f)
	}
	add(filter.ColumnPrice, a.PriceFilter)
	add(filter.ColumnBrand, a.BrandFilter)
	return filters, skipped
}

func (a *FilterArgument) toFilter(col filter.Column) (filter.SearchFilter, error) {
	raw := strings.TrimSpace(a.ComparisonOperator)
	allowed := brandOperators
	if col == filter.ColumnPrice {
		allowed = priceOperators
	}
	if !slices.Contains(allowed, raw) {
		return filter.SearchFilter{}, fmt.Errorf("%s operator %q not offered by %s", col, raw, SearchDatabaseName)
	}
	op := filter.Operator(raw)

	var val filter.Value
	switch col {
	case filter.ColumnPrice:
		n, err := decodeNumber(a.Value)
		if err != nil {
			return filter.SearchFilter{}, fmt.Errorf("%s value: %w", col, err)
		}
		val = filter.Number(n)
	default:
		s, err := decodeString(a.Value)
		if err != nil {
			return filter.SearchFilter{}, fmt.Errorf("%s value: %w", col, err)
		}
		val = filter.String(s)
	}
	return filter.New(col, op, val)
}

// decodeNumber accepts 50, 50.5 and "50". NaN and infinities are rejected.
func decodeNumber(raw json.RawMessage) (float64, error) {
	n, err := parseNumber(raw)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not a finite number: %s", raw)
	}
	return n, nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing")
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$")), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return n, nil
}

// decodeString accepts a non-empty JSON string.
func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("not a string: %s", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("missing")
	}
	return s, nil
}

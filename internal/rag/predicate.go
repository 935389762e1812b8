package rag

import "github.com/54b3r/shopai-go/internal/filter"

// numericBounds is a numeric filter expressed as a range. negate is set for
// "!=", which callers express as the exclusion of the equality range.
type numericBounds struct {
	min, max         *float64
	minIncl, maxIncl bool
	negate           bool
}

// boundsFor converts a validated numeric filter into a range.
func boundsFor(f filter.SearchFilter) numericBounds {
	v := f.Value.Float()
	switch f.Operator {
	case filter.OpLt:
		return numericBounds{max: &v}
	case filter.OpLe:
		return numericBounds{max: &v, maxIncl: true}
	case filter.OpGt:
		return numericBounds{min: &v}
	case filter.OpGe:
		return numericBounds{min: &v, minIncl: true}
	case filter.OpNe:
		return numericBounds{min: &v, max: &v, minIncl: true, maxIncl: true, negate: true}
	default:
		return numericBounds{min: &v, max: &v, minIncl: true, maxIncl: true}
	}
}

// validFilters drops anything that fails filter.Validate so that backends
// which translate filters themselves apply exactly what Bind would.
func validFilters(fs []filter.SearchFilter) []filter.SearchFilter {
	out := make([]filter.SearchFilter, 0, len(fs))
	for _, f := range fs {
		if filter.Validate(f) == nil {
			out = append(out, f)
		}
	}
	return out
}

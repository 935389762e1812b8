package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Clause is a parameterized predicate fragment ready to be spliced into a
// query. Where and And carry placeholders ($N); Args holds the bound values
// in placeholder order.
type Clause struct {
	// Where is "" or "WHERE c1 AND c2 ...".
	Where string
	// And is "" or "AND c1 AND c2 ...".
	And string
	// Args are the values for the placeholders, starting at the firstArg
	// index passed to Bind.
	Args []any
}

// BuildClauses renders filters with literal values into a standalone WHERE
// clause and an AND-appendable clause. An empty or nil slice yields ("", "").
// Filters that fail [Validate] are skipped.
//
// The result is for logs and diagnostics only; queries use [Bind].
func BuildClauses(filters []SearchFilter) (where, and string) {
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		if Validate(f) != nil {
			continue
		}
		conds = append(conds, f.String())
	}
	return joinConditions(conds)
}

// Bind renders filters as placeholder conditions numbered from firstArg and
// returns the matching argument slice. Filters that fail [Validate] are
// skipped so that a placeholder is never emitted without its argument.
func Bind(filters []SearchFilter, firstArg int) Clause {
	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	n := firstArg
	for _, f := range filters {
		if Validate(f) != nil {
			continue
		}
		conds = append(conds, f.condition("$"+strconv.Itoa(n)))
		args = append(args, f.Value.Any())
		n++
	}
	where, and := joinConditions(conds)
	return Clause{Where: where, And: and, Args: args}
}

func joinConditions(conds []string) (string, string) {
	if len(conds) == 0 {
		return "", ""
	}
	joined := strings.Join(conds, " AND ")
	return "WHERE " + joined, "AND " + joined
}

// Stage is a retrieval sub-ranking a filter can restrict.
type Stage string

const (
	// StageVector is the nearest-neighbour vector ranking.
	StageVector Stage = "vector"
	// StageFullText is the full-text relevance ranking.
	StageFullText Stage = "fulltext"
)

// Scope maps each column to the stages its filters restrict. Columns absent
// from the map restrict no stage.
type Scope map[Column]map[Stage]bool

// DefaultScope applies every column to both stages, which is equivalent to
// pre-filtering the candidate set before either ranking runs.
func DefaultScope() Scope {
	s := Scope{}
	for _, c := range Columns() {
		s[c] = map[Stage]bool{StageVector: true, StageFullText: true}
	}
	return s
}

// Select returns the filters that restrict the given stage, preserving order.
func (s Scope) Select(filters []SearchFilter, stage Stage) []SearchFilter {
	var out []SearchFilter
	for _, f := range filters {
		if s[f.Column][stage] {
			out = append(out, f)
		}
	}
	return out
}

// ParseScope parses a scope description such as
// "price=vector+fulltext,brand=vector". An empty string yields DefaultScope.
// A column listed with no stages ("brand=") restricts nothing.
func ParseScope(desc string) (Scope, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return DefaultScope(), nil
	}
	s := Scope{}
	for _, part := range strings.Split(desc, ",") {
		name, stages, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("filter: scope entry %q must be column=stage[+stage]", part)
		}
		col := Column(strings.TrimSpace(name))
		if _, known := columns[col]; !known {
			return nil, fmt.Errorf("filter: scope names unknown column %q", col)
		}
		set := map[Stage]bool{}
		for _, st := range strings.Split(stages, "+") {
			st = strings.TrimSpace(st)
			switch Stage(st) {
			case StageVector, StageFullText:
				set[Stage(st)] = true
			case "":
			default:
				return nil, fmt.Errorf("filter: scope names unknown stage %q", st)
			}
		}
		s[col] = set
	}
	return s, nil
}

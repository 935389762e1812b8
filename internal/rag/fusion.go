package rag

import (
	"cmp"
	"slices"
)

// RankedCandidate is a product's position in each sub-ranking. A nil rank
// means the product is absent from that ranking.
type RankedCandidate struct {
	ProductID    int64
	VectorRank   *int
	FullTextRank *int
}

// Score returns the reciprocal-rank-fusion score with constant k. An absent
// rank contributes nothing.
func (c RankedCandidate) Score(k float64) float64 {
	var s float64
	if c.VectorRank != nil {
		s += 1 / (k + float64(*c.VectorRank))
	}
	if c.FullTextRank != nil {
		s += 1 / (k + float64(*c.FullTextRank))
	}
	return s
}

// RankedScore is a candidate with its fused score.
type RankedScore struct {
	RankedCandidate
	Score float64
}

// Fuse combines two ranked id lists (best first, rank = position + 1) into
// their union ordered by RRF score descending, then ProductID ascending, and
// truncated to opts.ResultLimit. Duplicate ids within a list keep their first
// position.
func Fuse(vector, fulltext []int64, opts Options) []RankedScore {
	opts = opts.withDefaults()

	byID := make(map[int64]*RankedCandidate, len(vector)+len(fulltext))
	order := make([]int64, 0, len(vector)+len(fulltext))
	get := func(id int64) *RankedCandidate {
		c, ok := byID[id]
		if !ok {
			c = &RankedCandidate{ProductID: id}
			byID[id] = c
			order = append(order, id)
		}
		return c
	}
	for i, id := range vector {
		if c := get(id); c.VectorRank == nil {
			r := i + 1
			c.VectorRank = &r
		}
	}
	for i, id := range fulltext {
		if c := get(id); c.FullTextRank == nil {
			r := i + 1
			c.FullTextRank = &r
		}
	}

	out := make([]RankedScore, 0, len(order))
	for _, id := range order {
		c := *byID[id]
		out = append(out, RankedScore{RankedCandidate: c, Score: c.Score(opts.K)})
	}
	slices.SortFunc(out, func(a, b RankedScore) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	if len(out) > opts.ResultLimit {
		out = out[:opts.ResultLimit]
	}
	return out
}

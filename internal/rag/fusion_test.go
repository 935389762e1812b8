package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(rs []RankedScore) []int64 {
	out := make([]int64, len(rs))
	for i, r := range rs {
		out[i] = r.ProductID
	}
	return out
}

func TestFuse_ScoreBothRankings(t *testing.T) {
	t.Parallel()

	// product 7 is rank 2 in vector, rank 3 in full text.
	got := Fuse([]int64{1, 7}, []int64{4, 5, 7}, Options{})
	var found bool
	for _, r := range got {
		if r.ProductID == 7 {
			found = true
			assert.InDelta(t, 1.0/62+1.0/63, r.Score, 1e-15)
			require.NotNil(t, r.VectorRank)
			require.NotNil(t, r.FullTextRank)
			assert.Equal(t, 2, *r.VectorRank)
			assert.Equal(t, 3, *r.FullTextRank)
		}
	}
	assert.True(t, found)
}

func TestFuse_SingleRankingContributesOneTerm(t *testing.T) {
	t.Parallel()

	got := Fuse([]int64{10, 11, 12}, nil, Options{})
	require.Len(t, got, 3)
	assert.Equal(t, []int64{10, 11, 12}, ids(got))
	assert.InDelta(t, 1.0/61, got[0].Score, 1e-15)
	assert.InDelta(t, 1.0/63, got[2].Score, 1e-15)
	assert.Nil(t, got[0].FullTextRank)
}

func TestFuse_UnionNotIntersection(t *testing.T) {
	t.Parallel()

	// 3 appears only in the vector ranking, 9 only in the full-text ranking.
	got := Fuse([]int64{1, 3}, []int64{1, 9}, Options{})
	assert.ElementsMatch(t, []int64{1, 3, 9}, ids(got))
	assert.Equal(t, int64(1), got[0].ProductID)
}

func TestFuse_Symmetric(t *testing.T) {
	t.Parallel()

	a := Fuse([]int64{5, 6}, []int64{6, 5}, Options{})
	require.Len(t, a, 2)
	assert.InDelta(t, a[0].Score, a[1].Score, 1e-15)
	// equal scores tie-break by id ascending
	assert.Equal(t, []int64{5, 6}, ids(a))

	b := Fuse([]int64{6, 5}, []int64{5, 6}, Options{})
	assert.Equal(t, ids(a), ids(b))
}

func TestFuse_TieBreakByProductID(t *testing.T) {
	t.Parallel()

	// 20 and 3 both hold rank 1 in exactly one list.
	got := Fuse([]int64{20}, []int64{3}, Options{})
	assert.Equal(t, []int64{3, 20}, ids(got))
}

func TestFuse_DuplicatesKeepFirstPosition(t *testing.T) {
	t.Parallel()

	got := Fuse([]int64{4, 4, 2}, nil, Options{})
	require.Len(t, got, 2)
	assert.Equal(t, []int64{4, 2}, ids(got))
	assert.Equal(t, 3, *got[1].VectorRank)
}

func TestFuse_Truncates(t *testing.T) {
	t.Parallel()

	var vec, ft []int64
	for i := int64(1); i <= 20; i++ {
		vec = append(vec, i)
		ft = append(ft, 100+i)
	}
	got := Fuse(vec, ft, Options{})
	assert.Len(t, got, DefaultResultLimit)

	got = Fuse(vec, ft, Options{ResultLimit: 5})
	assert.Len(t, got, 5)
	// rank-1 entries from both lists lead, lower id first
	assert.Equal(t, []int64{1, 101, 2, 102, 3}, ids(got))
}

func TestFuse_CustomK(t *testing.T) {
	t.Parallel()

	got := Fuse([]int64{1}, []int64{1}, Options{K: 10})
	require.Len(t, got, 1)
	assert.InDelta(t, 2.0/11, got[0].Score, 1e-15)
}

func TestFuse_Empty(t *testing.T) {
	t.Parallel()

	got := Fuse(nil, nil, Options{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFuse_Idempotent(t *testing.T) {
	t.Parallel()

	vec := []int64{8, 2, 5, 1}
	ft := []int64{5, 9, 8}
	assert.Equal(t, Fuse(vec, ft, Options{}), Fuse(vec, ft, Options{}))
}

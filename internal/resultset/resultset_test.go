package resultset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rec struct {
	key   uint64
	score float32
}

func key(r rec) uint64    { return r.key }
func score(r rec) float32 { return r.score }

func mkSet(keys ...uint64) *ResultSet[rec] {
	recs := make([]rec, len(keys))
	for i, k := range keys {
		recs[i] = rec{key: k, score: float32(k)}
	}
	return New(recs, uint32(len(recs)), key, score)
}

func values(rs *ResultSet[rec], positions []int) []uint64 {
	out := make([]uint64, len(positions))
	for i, p := range positions {
		out[i] = rs.ValueAt(p)
	}
	return out
}

func TestIntersectZeroSets(t *testing.T) {
	shortest, matches := Intersect[rec](nil)
	assert.Nil(t, shortest)
	assert.Empty(t, matches)
}

func TestIntersectSingleSet(t *testing.T) {
	s := mkSet(1, 2, 3)
	shortest, matches := Intersect([]*ResultSet[rec]{s})
	require.Equal(t, s, shortest)
	assert.Equal(t, []uint64{1, 2, 3}, values(shortest, matches))
}

func TestIntersectAnyEmptySetYieldsEmpty(t *testing.T) {
	a := mkSet(1, 2, 3)
	b := Empty[rec]()
	shortest, matches := Intersect([]*ResultSet[rec]{a, b})
	require.Equal(t, b, shortest)
	assert.Empty(t, matches)
}

func TestIntersectSoundness(t *testing.T) {
	a := mkSet(1, 2, 3, 4, 5)
	b := mkSet(2, 3, 5, 7)
	c := mkSet(2, 3, 5, 5, 5) // dedup invariant holds upstream, but exercise with distinct anyway
	c = mkSet(2, 3, 5, 9)

	shortest, matches := Intersect([]*ResultSet[rec]{a, b, c})
	got := values(shortest, matches)
	assert.Equal(t, []uint64{2, 3, 5}, got)
}

func TestIntersectNoOverlap(t *testing.T) {
	a := mkSet(1, 3, 5)
	b := mkSet(2, 4, 6)
	shortest, matches := Intersect([]*ResultSet[rec]{a, b})
	require.NotNil(t, shortest)
	assert.Empty(t, matches)
}

func TestTruncatedPredicate(t *testing.T) {
	precise := New([]rec{{key: 1}}, 1, key, score)
	truncated := New([]rec{{key: 1}}, 5, key, score)
	assert.False(t, precise.Truncated())
	assert.True(t, truncated.Truncated())
}

func TestCursorsNeverRewind(t *testing.T) {
	// Shortest set drives the outer loop; every other cursor's position
	// must be monotonically non-decreasing across the scan.
	shortest := mkSet(10, 20, 30)
	other := mkSet(5, 10, 15, 20, 25, 30, 35)

	_, matches := Intersect([]*ResultSet[rec]{shortest, other})
	assert.Equal(t, []uint64{10, 20, 30}, values(shortest, matches))
}

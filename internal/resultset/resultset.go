// Package resultset implements the in-memory view over one token's
// posting list (spec §4.5) and the sorted-list intersection algorithm
// used to combine several of them for a multi-token query.
package resultset

// ResultSet is an immutable, in-memory materialisation of one posting
// list, exposing value-sorted access by position for intersection.
type ResultSet[R any] struct {
	records    []R
	totalCount uint32
	keyFn      func(R) uint64
	scoreFn    func(R) float32
}

// New wraps already-sorted, deduplicated records with their total-count
// estimator and key/score accessors.
func New[R any](records []R, totalCount uint32, keyFn func(R) uint64, scoreFn func(R) float32) *ResultSet[R] {
	return &ResultSet[R]{records: records, totalCount: totalCount, keyFn: keyFn, scoreFn: scoreFn}
}

// Empty returns a zero-length ResultSet, used when a token routes to a
// shard that doesn't contain it (or doesn't exist at all).
func Empty[R any]() *ResultSet[R] {
	return &ResultSet[R]{}
}

// Len returns the number of records materialised in this result set.
func (rs *ResultSet[R]) Len() int { return len(rs.records) }

// TotalCount returns the total-count estimator: an upper bound on how
// many documents ever contained this token, possibly larger than Len if
// the posting list was truncated during build (spec §3 invariants).
func (rs *ResultSet[R]) TotalCount() uint32 { return rs.totalCount }

// Truncated reports whether this result set's posting list was capped
// during build: TotalCount() exceeds Len(). Per spec §4.5/§9, this local
// predicate is exactly the OR-pool classification test — a truncated
// result set is "frequent" and belongs in the OR-pool, a non-truncated
// one is "precise" and belongs in the AND-pool.
func (rs *ResultSet[R]) Truncated() bool { return int(rs.totalCount) > len(rs.records) }

// ValueAt returns the primary key of the record at position i (spec
// §4.5's "value_at" cursor).
func (rs *ResultSet[R]) ValueAt(i int) uint64 { return rs.keyFn(rs.records[i]) }

// RecordAt returns the full record at position i (spec §4.5's
// "record_at" cursor).
func (rs *ResultSet[R]) RecordAt(i int) R { return rs.records[i] }

// ScoreAt returns the score of the record at position i.
func (rs *ResultSet[R]) ScoreAt(i int) float32 { return rs.scoreFn(rs.records[i]) }

// Intersect computes the sorted intersection of k result sets (spec
// §4.5). It returns the indices, into the shortest input set, of every
// position whose primary key is present in every other set. Degenerate
// cases: zero sets or any empty set yield nil; one set yields every
// index in order.
//
// Complexity is O(sum of lengths): the shortest set drives the outer
// loop and every other set's cursor only ever advances forward, so no
// list is rescanned.
func Intersect[R any](sets []*ResultSet[R]) (shortest *ResultSet[R], matches []int) {
	if len(sets) == 0 {
		return nil, nil
	}
	if len(sets) == 1 {
		s := sets[0]
		idxs := make([]int, s.Len())
		for i := range idxs {
			idxs[i] = i
		}
		return s, idxs
	}

	shortestIdx := 0
	for i, s := range sets {
		if s.Len() < sets[shortestIdx].Len() {
			shortestIdx = i
		}
		if s.Len() == 0 {
			return sets[shortestIdx], nil
		}
	}
	s := sets[shortestIdx]

	positions := make([]int, len(sets))
	for p := 0; p < s.Len(); p++ {
		v := s.ValueAt(p)
		allEqual := true
		for ti, t := range sets {
			if ti == shortestIdx {
				continue
			}
			for positions[ti] < t.Len() && t.ValueAt(positions[ti]) < v {
				positions[ti]++
			}
			if positions[ti] >= t.Len() || t.ValueAt(positions[ti]) > v {
				allEqual = false
				break
			}
		}
		if allEqual {
			matches = append(matches, p)
		}
	}
	return s, matches
}

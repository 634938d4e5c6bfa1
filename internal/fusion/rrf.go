// Package fusion implements Reciprocal Rank Fusion for combining the
// lexical (C1) and dense (C2) candidate rankings, per spec §4.5 step 4
// and the worked arithmetic in §8 Scenario 5. Grounded on
// Aman-CERP-amanmcp's internal/search/fusion.go for the overall shape
// (an RRFFusion{K} type, a Fuse function, stable sort with a tie-break),
// but deliberately simpler: spec.md defines RRF as a straight sum over
// the lists a candidate actually appears in, with no score contribution
// for lists it is absent from, and ties broken solely by lexical rank —
// Aman-CERP-amanmcp's missing-rank padding and InBothLists tie-break are
// not carried over, since they would produce different numbers than
// Scenario 5's expected arithmetic.
package fusion

import "sort"

// DefaultK is the RRF constant spec §9 fixes as authoritative.
const DefaultK = 60

// RRF computes Reciprocal Rank Fusion scores.
type RRF struct {
	K int
}

// New builds an RRF fuser with the spec-mandated k=60 unless overridden.
func New(k int) RRF {
	if k <= 0 {
		k = DefaultK
	}
	return RRF{K: k}
}

// Result is one fused candidate: its id, its RRF score, and whichever
// ranks it held in the input lists (0 meaning absent).
type Result struct {
	ID          string
	Score       float64
	LexicalRank int // 1-based; 0 if absent from the lexical list
	DenseRank   int // 1-based; 0 if absent from the dense list
}

// Fuse combines lexicalOrder and denseOrder — each an ordered list of
// ids, best-first — into RRF-scored results sorted descending by score,
// ties broken by lexical rank (ids absent from the lexical list sort
// after ids present in it, per §4.5 step 4 "ties broken by original
// lexical rank").
func (r RRF) Fuse(lexicalOrder, denseOrder []string) []Result {
	lexRank := rankOf(lexicalOrder)
	denseRank := rankOf(denseOrder)

	scores := map[string]*Result{}
	for id, rank := range lexRank {
		scores[id] = &Result{ID: id, LexicalRank: rank}
	}
	for id, rank := range denseRank {
		res, ok := scores[id]
		if !ok {
			res = &Result{ID: id}
			scores[id] = res
		}
		res.DenseRank = rank
	}

	for _, res := range scores {
		var sum float64
		if res.LexicalRank > 0 {
			sum += 1.0 / float64(r.K+res.LexicalRank)
		}
		if res.DenseRank > 0 {
			sum += 1.0 / float64(r.K+res.DenseRank)
		}
		res.Score = sum
	}

	out := make([]Result, 0, len(scores))
	for _, res := range scores {
		out = append(out, *res)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return lexicalRankLess(out[i].LexicalRank, out[j].LexicalRank)
	})
	return out
}

// lexicalRankLess orders by lexical rank ascending, with "absent" (0)
// sorting after any present rank.
func lexicalRankLess(a, b int) bool {
	if a == 0 && b == 0 {
		return false
	}
	if a == 0 {
		return false
	}
	if b == 0 {
		return true
	}
	return a < b
}

func rankOf(order []string) map[string]int {
	ranks := make(map[string]int, len(order))
	for i, id := range order {
		if _, exists := ranks[id]; !exists {
			ranks[id] = i + 1
		}
	}
	return ranks
}

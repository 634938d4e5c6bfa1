// Package orchestrator implements the retrieval/rerank orchestrator
// (C5): the public Rank/Search/Parse/Score surface of §6, wiring C1-C4
// together per the nine-step algorithm of spec §4.5. Grounded on the
// original prototype's backend/api/main.py for the overall data flow
// (_search_trials_internal / _apply_feasibility_rerank /
// dense_only_fallback), with RRF fusion substituted for the prototype's
// weighted-sum blend per spec §9's authoritative-RRF decision.
package orchestrator

import (
	"github.com/clinical-trials-core/internal/core"
)

// RankOptions carries the per-request filters and weights named in spec
// §6's "Recognized options" table.
type RankOptions struct {
	Phase             string
	OverallStatus     string
	Condition         string
	Country           string
	BM25Weight        float64 // present for compatibility; RRF fusion ignores it
	FeasibilityWeight float64
	CandidateSize     int
	Page              int
	Size              int
	UseCandidateTotal bool
}

// DefaultRankOptions returns the spec's documented defaults: a large
// candidate pool, feasibility_weight=0.6, page 1 of 20.
func DefaultRankOptions() RankOptions {
	return RankOptions{
		BM25Weight:        0.5,
		FeasibilityWeight: 0.6,
		CandidateSize:     1000,
		Page:              1,
		Size:              20,
		UseCandidateTotal: true,
	}
}

// SearchOptions carries the filters/paging for the plain Search entry
// point (no patient profile, no feasibility scoring).
type SearchOptions struct {
	Phase             string
	OverallStatus     string
	Condition         string
	Country           string
	BM25Weight        float64
	Page              int
	Size              int
	UseCandidateTotal bool
}

// DefaultSearchOptions returns the spec's documented Search defaults: a
// small candidate pool sized to the requested page.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		BM25Weight:        0.5,
		Page:              1,
		Size:              20,
		UseCandidateTotal: true,
	}
}

// Hit is a single ranked result in a SearchResponse.
type Hit struct {
	Doc              *core.TrialDoc
	RetrievalRaw     float64
	RetrievalNorm    float64
	FeasibilityScore *int
	IsFeasible       core.Feasibility
	Reasons          []string
	FinalScore       float64
}

// SearchResponse is C5's contract return shape, per spec §6.
type SearchResponse struct {
	Total          int
	Page           int
	Size           int
	Hits           []Hit
	CandidateTotal int
	Truncated      bool
}

package lexical

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinical-trials-core/internal/core"
)

func age(v float64) *float64 { return &v }

func sampleTrials() []*core.TrialDoc {
	return []*core.TrialDoc{
		{
			NCTID:               "NCT001",
			Title:                "A Study of Osimertinib in NSCLC",
			BriefSummary:         "Evaluating EGFR-mutant non-small cell lung cancer treatment.",
			Conditions:           []string{"NSCLC"},
			Phase:                "Phase 3",
			OverallStatus:        "Recruiting",
			StudyType:            "Interventional",
			MinAgeYears:          age(18),
			MaxAgeYears:          age(99),
			Sex:                  core.SexAll,
			Locations:            []core.Location{{Country: "United States"}},
			EligibilityCriteria:  "Inclusion Criteria: NSCLC diagnosis. Exclusion Criteria: pregnancy.",
		},
		{
			NCTID:               "NCT002",
			Title:                "A Breast Cancer Prevention Trial",
			BriefSummary:         "Studying tamoxifen in high risk women.",
			Conditions:           []string{"Breast_Cancer"},
			Phase:                "Phase 2",
			OverallStatus:        "Completed",
			StudyType:            "Interventional",
			MinAgeYears:          age(40),
			MaxAgeYears:          age(70),
			Sex:                  core.SexFemale,
			Locations:            []core.Location{{Country: "Canada"}},
			EligibilityCriteria:  "Inclusion Criteria: female, high risk for breast cancer.",
		},
	}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := idx.Index(context.Background(), sampleTrials()); err != nil {
		t.Fatalf("Index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSearchMatchAllWhenQueryEmpty(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits on match-all, got %d", len(hits))
	}
}

func TestSearchTextMatch(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "NSCLC EGFR", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected at least one hit")
	}
	if hits[0].Doc.NCTID != "NCT001" {
		t.Errorf("expected NCT001 top hit, got %s", hits[0].Doc.NCTID)
	}
}

func TestSearchNoHitsReturnsNilNotError(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "gibberish_no_match_xyzzy", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search should not error on zero hits: %v", err)
	}
	if hits != nil {
		t.Errorf("expected nil hits on empty result, got %v", hits)
	}
}

func TestSearchCountryFilter(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "", Filters{Country: "Canada"}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Doc.NCTID != "NCT002" {
		t.Fatalf("expected only NCT002 for Canada filter, got %+v", hits)
	}
}

func TestSearchSexFilterIncludesAll(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "", Filters{PatientSex: core.SexMale}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Doc.NCTID != "NCT001" {
		t.Fatalf("expected NCT001 (sex=All) only for a male patient, got %+v", hits)
	}
}

func TestScoreShapingOrdersRecruitingPhase3Above(t *testing.T) {
	idx := newTestIndex(t)
	hits, err := idx.Search(context.Background(), "", Filters{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var nct1, nct2 float64
	for _, h := range hits {
		if h.Doc.NCTID == "NCT001" {
			nct1 = h.RawScore
		}
		if h.Doc.NCTID == "NCT002" {
			nct2 = h.RawScore
		}
	}
	if nct1 <= nct2 {
		t.Errorf("expected Recruiting+Phase3 trial to outscore Completed+Phase2 on an equal base match, got %v vs %v", nct1, nct2)
	}
}

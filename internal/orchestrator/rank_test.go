package orchestrator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinical-trials-core/internal/core"
	"github.com/clinical-trials-core/internal/criteria"
	"github.com/clinical-trials-core/internal/feasibility"
	"github.com/clinical-trials-core/internal/lexical"
)

func testDictionary() *criteria.Dictionary {
	return criteria.NewDictionary(map[string][]string{
		"NSCLC":       {"non-small cell lung cancer", "NSCLC"},
		"EGFR_Gene":   {"EGFR mutation", "EGFR-positive"},
		"Creatinine_Level": {"creatinine"},
	})
}

func age(v float64) *float64 { return &v }

func newTestOrchestrator(t *testing.T, trials []*core.TrialDoc) *Orchestrator {
	t.Helper()
	logger := zerolog.Nop()
	idx, err := lexical.New(logger)
	if err != nil {
		t.Fatalf("lexical.New: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := idx.Index(context.Background(), trials); err != nil {
		t.Fatalf("Index: %v", err)
	}

	dict := testDictionary()
	parser := criteria.NewParser(dict, logger, 128)
	scorer := feasibility.NewScorer(feasibility.NoopLinker{})

	return New(idx, nil, nil, dict, parser, scorer, feasibility.NoopLinker{}, 60, logger)
}

func sampleTrialDocs() []*core.TrialDoc {
	return []*core.TrialDoc{
		{
			NCTID:        "NCT001",
			Title:        "A Study of Osimertinib in NSCLC",
			BriefSummary: "A trial for non-small cell lung cancer patients with EGFR mutation.",
			Conditions:   []string{"Non-Small Cell Lung Cancer"},
			Phase:        "Phase 3",
			OverallStatus: "Recruiting",
			MinAgeYears:  age(18),
			MaxAgeYears:  age(99),
			Sex:          core.SexAll,
			EligibilityCriteria: "Inclusion Criteria: Patients must have histologically confirmed NSCLC with EGFR mutation. ECOG 0-1. Exclusion Criteria: History of HIV infection.",
		},
		{
			NCTID:        "NCT002",
			Title:        "A Study of Tamoxifen in Breast Cancer",
			BriefSummary: "A trial for breast cancer patients.",
			Conditions:   []string{"Breast Cancer"},
			Phase:        "Phase 2",
			OverallStatus: "Completed",
			MinAgeYears:  age(40),
			MaxAgeYears:  age(70),
			Sex:          core.SexFemale,
			EligibilityCriteria: "Inclusion Criteria: Female patients with breast cancer. Exclusion Criteria: Pregnancy.",
		},
	}
}

func TestRankReturnsFeasibleCandidateRanked(t *testing.T) {
	o := newTestOrchestrator(t, sampleTrialDocs())

	age := 60
	ecog := 1
	profile := &core.PatientProfile{
		Age:        &age,
		Sex:        core.SexMale,
		Conditions: []string{"Non-Small Cell Lung Cancer"},
		Biomarkers: []string{"EGFR mutation"},
		ECOG:       &ecog,
	}

	resp, err := o.Rank(context.Background(), profile, DefaultRankOptions())
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(resp.Hits) == 0 {
		t.Fatalf("expected at least one ranked hit")
	}
	if resp.Hits[0].Doc.NCTID != "NCT001" {
		t.Errorf("expected NCT001 ranked first, got %s", resp.Hits[0].Doc.NCTID)
	}
	if resp.Hits[0].FeasibilityScore == nil {
		t.Fatalf("expected a feasibility score on the top hit")
	}
}

func TestRankFiltersOutHardExclusion(t *testing.T) {
	o := newTestOrchestrator(t, sampleTrialDocs())

	age := 60
	profile := &core.PatientProfile{
		Age:        &age,
		Sex:        core.SexMale,
		Conditions: []string{"Non-Small Cell Lung Cancer"},
		History:    []string{"HIV"},
	}

	resp, err := o.Rank(context.Background(), profile, DefaultRankOptions())
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	for _, h := range resp.Hits {
		if h.Doc.NCTID == "NCT001" {
			t.Fatalf("expected NCT001 filtered out by hard exclusion, got it in results")
		}
	}
}

func TestRankSexFilterExcludesMismatch(t *testing.T) {
	o := newTestOrchestrator(t, sampleTrialDocs())

	age := 50
	profile := &core.PatientProfile{
		Age:        &age,
		Sex:        core.SexMale,
		Conditions: []string{"Breast Cancer"},
	}

	resp, err := o.Rank(context.Background(), profile, DefaultRankOptions())
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	for _, h := range resp.Hits {
		if h.Doc.NCTID == "NCT002" {
			t.Fatalf("expected NCT002 (Female-only) excluded from a Male patient's results")
		}
	}
}

func TestRankValidatesPageAndSize(t *testing.T) {
	o := newTestOrchestrator(t, sampleTrialDocs())
	opts := DefaultRankOptions()
	opts.Page = 0

	_, err := o.Rank(context.Background(), &core.PatientProfile{}, opts)
	if err == nil {
		t.Fatalf("expected a validation error for page=0")
	}
	var verr *core.ValidationError
	if !asValidationError(err, &verr) {
		t.Fatalf("expected *core.ValidationError, got %T: %v", err, err)
	}
}

func TestRankValidatesWeightRange(t *testing.T) {
	o := newTestOrchestrator(t, sampleTrialDocs())
	opts := DefaultRankOptions()
	opts.FeasibilityWeight = 1.5

	_, err := o.Rank(context.Background(), &core.PatientProfile{}, opts)
	if err == nil {
		t.Fatalf("expected a validation error for feasibility_weight out of [0,1]")
	}
}

func TestRankEmptyCandidateSetReturnsEmptyResponse(t *testing.T) {
	o := newTestOrchestrator(t, sampleTrialDocs())
	opts := DefaultRankOptions()
	opts.Condition = "Nonexistent Condition Nobody Has"

	resp, err := o.Rank(context.Background(), &core.PatientProfile{}, opts)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(resp.Hits) != 0 {
		t.Fatalf("expected zero hits, got %d", len(resp.Hits))
	}
}

func TestSearchHasNoFeasibilityScores(t *testing.T) {
	o := newTestOrchestrator(t, sampleTrialDocs())

	resp, err := o.Search(context.Background(), "lung cancer", DefaultSearchOptions())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range resp.Hits {
		if h.FeasibilityScore != nil {
			t.Errorf("expected Search to never populate FeasibilityScore, got %v on %s", *h.FeasibilityScore, h.Doc.NCTID)
		}
	}
}

func asValidationError(err error, target **core.ValidationError) bool {
	if v, ok := err.(*core.ValidationError); ok {
		*target = v
		return true
	}
	return false
}

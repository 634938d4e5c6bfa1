package feasibility

import (
	"context"
	"testing"

	"github.com/clinical-trials-core/internal/core"
)

func intPtr(v int) *int { return &v }

func TestScoreHardExclusionShortCircuit(t *testing.T) {
	profile := &core.PatientProfile{Conditions: []string{"Pregnancy"}}
	parsed := core.NewParsedCriteria()
	parsed.Exclusions[core.ExclusionPregnancy] = struct{}{}

	s := NewScorer(nil)
	result, err := s.Score(context.Background(), profile, parsed, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.Score != 0 || result.IsFeasible != core.FeasibilityFalse {
		t.Fatalf("got %+v, want score 0 infeasible", result)
	}
	if len(result.Reasons) != 1 {
		t.Fatalf("expected exactly one reason, got %v", result.Reasons)
	}
}

func TestScoreConditionOnlyRelevance(t *testing.T) {
	// Scenario 2 from spec §8: age 60 Male NSCLC vs trial [18,99] All.
	profile := &core.PatientProfile{
		Age:        intPtr(60),
		Sex:        core.SexMale,
		Conditions: []string{"NSCLC"},
	}
	parsed := core.NewParsedCriteria()
	parsed.Conditions["NSCLC"] = struct{}{}
	parsed.AgeMin, parsed.AgeMax = 18, 99
	parsed.Sex = core.SexAll

	s := NewScorer(nil)
	result, err := s.Score(context.Background(), profile, parsed, map[string]struct{}{})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.IsFeasible != core.FeasibilityTrue {
		t.Fatalf("expected feasible, got %+v", result)
	}
	if result.Score < 50 {
		t.Fatalf("expected score >= 50, got %d (%v)", result.Score, result.Reasons)
	}
}

func TestScoreECOGGate(t *testing.T) {
	profile := &core.PatientProfile{ECOG: intPtr(2)}
	parsed := core.NewParsedCriteria()
	parsed.ECOGAllowed[0] = struct{}{}
	parsed.ECOGAllowed[1] = struct{}{}

	s := NewScorer(nil)
	result, err := s.Score(context.Background(), profile, parsed, map[string]struct{}{})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.IsFeasible != core.FeasibilityFalse || result.Score != 0 {
		t.Fatalf("expected infeasible score 0, got %+v", result)
	}
	found := false
	for _, r := range result.Reasons {
		if contains(r, "ECOG") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a reason mentioning ECOG, got %v", result.Reasons)
	}
}

func TestScoreLabFailure(t *testing.T) {
	profile := &core.PatientProfile{Labs: map[string]float64{"Creatinine": 2.0}}
	parsed := core.NewParsedCriteria()
	parsed.Labs["Creatinine"] = core.LabRule{Operator: core.OpLess, Value: 1.5}

	s := NewScorer(nil)
	result, err := s.Score(context.Background(), profile, parsed, map[string]struct{}{})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.IsFeasible != core.FeasibilityFalse {
		t.Fatalf("expected infeasible, got %+v", result)
	}
	found := false
	for _, r := range result.Reasons {
		if contains(r, "Lab Failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a lab-failure reason, got %v", result.Reasons)
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	profile := &core.PatientProfile{
		Age:        intPtr(55),
		Sex:        core.SexFemale,
		Conditions: []string{"NSCLC"},
		Biomarkers: []string{"EGFR"},
		ECOG:       intPtr(1),
	}
	parsed := core.NewParsedCriteria()
	parsed.Conditions["NSCLC"] = struct{}{}
	parsed.Biomarkers["EGFR"] = struct{}{}
	parsed.ECOGAllowed[0] = struct{}{}
	parsed.ECOGAllowed[1] = struct{}{}
	parsed.AgeMin, parsed.AgeMax = 18, 99
	parsed.Sex = core.SexAll

	s := NewScorer(nil)
	r1, err := s.Score(context.Background(), profile, parsed, map[string]struct{}{})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	r2, err := s.Score(context.Background(), profile, parsed, map[string]struct{}{})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if r1.Score != r2.Score || r1.IsFeasible != r2.IsFeasible {
		t.Fatalf("scoring not idempotent: %+v vs %+v", r1, r2)
	}
}

func TestScoreNeverExceeds100(t *testing.T) {
	profile := &core.PatientProfile{
		Age:                    intPtr(55),
		Sex:                    core.SexFemale,
		Conditions:             []string{"NSCLC"},
		Biomarkers:             []string{"EGFR"},
		ECOG:                   intPtr(0),
		PriorLines:             intPtr(1),
		DaysSinceLastTreatment: intPtr(30),
		Labs:                   map[string]float64{"Creatinine": 1.0, "AST": 20},
	}
	parsed := core.NewParsedCriteria()
	parsed.Conditions["NSCLC"] = struct{}{}
	parsed.Biomarkers["EGFR"] = struct{}{}
	parsed.ECOGAllowed[0] = struct{}{}
	parsed.AgeMin, parsed.AgeMax = 18, 99
	parsed.Sex = core.SexAll
	washout := 14
	parsed.Temporal.ChemoWashoutDays = &washout
	parsed.LinesOfTherapy = core.LinesOfTherapy{Min: 0, Max: 3}
	parsed.Labs["Creatinine"] = core.LabRule{Operator: core.OpLess, Value: 1.5}
	parsed.Labs["AST"] = core.LabRule{Operator: core.OpLess, Value: 40}

	s := NewScorer(nil)
	result, err := s.Score(context.Background(), profile, parsed, map[string]struct{}{})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.Score > 100 {
		t.Fatalf("score must be clamped at 100, got %d", result.Score)
	}
	if result.IsFeasible != core.FeasibilityTrue {
		t.Fatalf("expected feasible, got %+v", result)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

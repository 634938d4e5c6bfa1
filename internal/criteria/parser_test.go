package criteria

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinical-trials-core/internal/core"
)

func testDictionary() *Dictionary {
	return NewDictionary(map[string][]string{
		"NSCLC":             {"NSCLC", "non-small cell lung cancer"},
		"EGFR_Gene":         {"EGFR", "epidermal growth factor receptor"},
		"Creatinine_Level":  {"creatinine"},
		"Breast_Cancer":     {"breast cancer"},
	})
}

func TestParserAgeExtraction(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMin float64
		wantMax float64
	}{
		{"no bounds", "Patients with NSCLC.", 0, 120},
		{"min only", "Age >= 18 years.", 18, 120},
		{"min and max", "At least 18 years, up to 75 years.", 18, 75},
		{"min exceeds max discards max", "At least 90 years, up to 75 years.", 90, 120},
	}

	p := NewParser(testDictionary(), zerolog.Nop(), 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := p.Parse(context.Background(), tt.text, TrialMetadata{})
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if pc.AgeMin != tt.wantMin || pc.AgeMax != tt.wantMax {
				t.Errorf("got [%v,%v], want [%v,%v]", pc.AgeMin, pc.AgeMax, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestParserSexExtraction(t *testing.T) {
	tests := []struct {
		name string
		text string
		want core.Sex
	}{
		{"no mention", "NSCLC patients.", core.SexAll},
		{"female only", "Female patients with breast cancer.", core.SexFemale},
		{"male only", "Male patients only.", core.SexMale},
		{"both mentioned", "Men and women eligible.", core.SexAll},
	}

	p := NewParser(testDictionary(), zerolog.Nop(), 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := p.Parse(context.Background(), tt.text, TrialMetadata{})
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if pc.Sex != tt.want {
				t.Errorf("got %v, want %v", pc.Sex, tt.want)
			}
		})
	}
}

func TestParserConditionsAndExclusionsDisjoint(t *testing.T) {
	text := "Inclusion Criteria: Patients with NSCLC. Exclusion Criteria: Pregnant women excluded."
	p := NewParser(testDictionary(), zerolog.Nop(), 0)
	pc, err := p.Parse(context.Background(), text, TrialMetadata{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := pc.Conditions["NSCLC"]; !ok {
		t.Errorf("expected NSCLC in conditions, got %v", pc.Conditions)
	}
	if _, ok := pc.Exclusions[core.ExclusionPregnancy]; !ok {
		t.Errorf("expected Pregnancy exclusion flag, got %v", pc.Exclusions)
	}
}

func TestParserExclusionSuppressesCondition(t *testing.T) {
	// CNS_Mets is both an ExclusionFlag and, incidentally, shaped like a
	// condition key — the disjointness pass must remove it from
	// Conditions if it ever landed there under the same string.
	dict := NewDictionary(map[string][]string{
		"CNS_Mets": {"cns tumor"},
	})
	p := NewParser(dict, zerolog.Nop(), 0)
	text := "Inclusion Criteria: history of cns tumor. Exclusion Criteria: brain metastases excluded."
	pc, err := p.Parse(context.Background(), text, TrialMetadata{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := pc.Conditions["CNS_Mets"]; ok {
		t.Errorf("CNS_Mets must not survive in Conditions once it is an exclusion flag, got %v", pc.Conditions)
	}
}

func TestParserMetadataOverrides(t *testing.T) {
	p := NewParser(testDictionary(), zerolog.Nop(), 0)
	minAge, maxAge := 21.0, 65.0
	meta := TrialMetadata{
		MinAgeYears:    &minAge,
		MaxAgeYears:    &maxAge,
		Sex:            core.SexFemale,
		Conditions:     []string{"breast cancer"},
		ConditionsCUIs: []string{"C0006142"},
	}
	pc, err := p.Parse(context.Background(), "Age >= 18 years. Male patients.", meta)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.AgeMin != 21 || pc.AgeMax != 65 {
		t.Errorf("metadata age override not applied: got [%v,%v]", pc.AgeMin, pc.AgeMax)
	}
	if pc.Sex != core.SexFemale {
		t.Errorf("metadata sex override not applied: got %v", pc.Sex)
	}
	if _, ok := pc.Conditions["Breast_Cancer"]; !ok {
		t.Errorf("structured condition not unioned in: %v", pc.Conditions)
	}
	if _, ok := pc.ConditionsCUIs["C0006142"]; !ok {
		t.Errorf("structured CUI not attached: %v", pc.ConditionsCUIs)
	}
}

func TestParserECOGPatterns(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[int]struct{}
	}{
		{"range", "ECOG performance status 0-1 required.", map[int]struct{}{0: {}, 1: {}}},
		{"lte", "ECOG performance status up to 2.", map[int]struct{}{0: {}, 1: {}, 2: {}}},
	}
	p := NewParser(testDictionary(), zerolog.Nop(), 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := p.Parse(context.Background(), tt.text, TrialMetadata{})
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(pc.ECOGAllowed) != len(tt.want) {
				t.Fatalf("got %v, want %v", pc.ECOGAllowed, tt.want)
			}
			for k := range tt.want {
				if _, ok := pc.ECOGAllowed[k]; !ok {
					t.Errorf("missing ECOG value %d in %v", k, pc.ECOGAllowed)
				}
			}
		})
	}
}

func TestParserLinesOfTherapyNaive(t *testing.T) {
	p := NewParser(testDictionary(), zerolog.Nop(), 0)
	pc, err := p.Parse(context.Background(), "Treatment naive patients only.", TrialMetadata{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.LinesOfTherapy.Max != 0 || pc.LinesOfTherapy.NoMax {
		t.Errorf("treatment-naive should force max=0, got %+v", pc.LinesOfTherapy)
	}
}

func TestParserCachesOnSecondCall(t *testing.T) {
	p := NewParser(testDictionary(), zerolog.Nop(), 16)
	text := "Patients with NSCLC, age >= 18 years."
	first, err := p.Parse(context.Background(), text, TrialMetadata{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	second, err := p.Parse(context.Background(), text, TrialMetadata{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if first != second {
		t.Errorf("expected identical cached pointer on second parse")
	}
}

func TestParserEmptyTextReturnsDefaults(t *testing.T) {
	p := NewParser(testDictionary(), zerolog.Nop(), 0)
	pc, err := p.Parse(context.Background(), "", TrialMetadata{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pc.AgeMin != 0 || pc.AgeMax != 120 {
		t.Errorf("empty text should produce default age bounds, got [%v,%v]", pc.AgeMin, pc.AgeMax)
	}
	if pc.Sex != core.SexAll {
		t.Errorf("empty text should produce default sex All, got %v", pc.Sex)
	}
}

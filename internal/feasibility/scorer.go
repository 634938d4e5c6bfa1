package feasibility

import (
	"context"
	"fmt"

	"github.com/clinical-trials-core/internal/core"
)

// Result is the outcome of scoring a single patient profile against a
// single trial's parsed criteria, mirroring C4's contract in spec §4.4.
type Result struct {
	Score      int
	IsFeasible core.Feasibility
	Reasons    []string
}

// Scorer evaluates a PatientProfile against a ParsedCriteria, grounded
// directly on the original prototype's FeasibilityScorer.score_patient,
// generalized to spec.md's richer point allocation (CUI-first condition
// matching, the fuller +5/+15/+25 weighting, and the drop of the
// prototype's ad hoc global relevance threshold — see DESIGN.md).
type Scorer struct {
	linker ConceptLinker
}

// NewScorer builds a Scorer around linker. A nil linker falls back to
// NoopLinker.
func NewScorer(linker ConceptLinker) *Scorer {
	if linker == nil {
		linker = NoopLinker{}
	}
	return &Scorer{linker: linker}
}

// Score runs the nine-step evaluation order of spec §4.4 and compiles
// the final result. patientCUIs may be nil; when nil and the profile has
// conditions, the scorer computes them once via the linker.
func (s *Scorer) Score(ctx context.Context, profile *core.PatientProfile, parsed *core.ParsedCriteria, patientCUIs map[string]struct{}) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapCancellation(ctx, err)
	}

	if patientCUIs == nil {
		conditions := profile.NormalizedConditions()
		if len(conditions) > 0 {
			cuis, err := s.linker.ExtractCUIsMany(ctx, conditions)
			if err != nil {
				return nil, fmt.Errorf("concept linking: %w", err)
			}
			patientCUIs = cuis
		} else {
			patientCUIs = map[string]struct{}{}
		}
	}

	score := 0
	feasible := true
	var reasons []string

	// Step 1: hard exclusion short-circuit.
	if flag, hit := hardExclusionHit(profile, parsed); hit {
		return &Result{
			Score:      0,
			IsFeasible: core.FeasibilityFalse,
			Reasons:    []string{fmt.Sprintf("Hard Exclusion: %s", flag)},
		}, nil
	}

	delta, ok, reason := evalConditionMatch(profile, parsed, patientCUIs)
	score += delta
	if !ok {
		feasible = false
	}
	reasons = append(reasons, reason)

	if delta, reason, hit := evalBiomarkerMatch(profile, parsed); hit {
		score += delta
		reasons = append(reasons, reason)
	}

	if delta, ok, reason, applicable := evalECOG(profile, parsed); applicable {
		score += delta
		if !ok {
			feasible = false
		}
		reasons = append(reasons, reason)
	}

	labScore, labFeasible, labReasons := evalLabs(profile, parsed)
	score += labScore
	if !labFeasible {
		feasible = false
	}
	reasons = append(reasons, labReasons...)

	if delta, ok, applicable := evalAge(profile, parsed); applicable {
		score += delta
		if !ok {
			feasible = false
			reasons = append(reasons, fmt.Sprintf("Age %d outside [%.0f-%.0f]", *profile.Age, parsed.AgeMin, parsed.AgeMax))
		}
	}

	if delta, ok, applicable, reason := evalSex(profile, parsed); applicable {
		score += delta
		if !ok {
			feasible = false
		}
		if reason != "" {
			reasons = append(reasons, reason)
		}
	}

	if delta, ok, applicable, reason := evalWashout(profile, parsed); applicable {
		score += delta
		if !ok {
			feasible = false
		}
		reasons = append(reasons, reason)
	}

	if delta, ok, applicable, reason := evalLinesOfTherapy(profile, parsed); applicable {
		score += delta
		if !ok {
			feasible = false
		}
		reasons = append(reasons, reason)
	}

	return compile(score, feasible, reasons), nil
}

func hardExclusionHit(profile *core.PatientProfile, parsed *core.ParsedCriteria) (core.ExclusionFlag, bool) {
	evidence := map[string]struct{}{}
	for _, c := range profile.NormalizedConditions() {
		evidence[c] = struct{}{}
	}
	for _, h := range profile.NormalizedHistory() {
		evidence[h] = struct{}{}
	}
	for flag := range parsed.Exclusions {
		if _, present := evidence[normalizeText(string(flag))]; present {
			return flag, true
		}
	}
	return "", false
}

// evalConditionMatch implements spec §4.4 step 2: CUI intersection first,
// substring fallback second, missing-conditions soft pass third.
func evalConditionMatch(profile *core.PatientProfile, parsed *core.ParsedCriteria, patientCUIs map[string]struct{}) (int, bool, string) {
	if len(parsed.ConditionsCUIs) > 0 && len(patientCUIs) > 0 {
		for cui := range patientCUIs {
			if _, hit := parsed.ConditionsCUIs[cui]; hit {
				return 40, true, fmt.Sprintf("Condition Match (CUI): %s", cui)
			}
		}
	}

	patientConditions := profile.NormalizedConditions()
	if len(patientConditions) == 0 {
		return 5, true, "Condition relevance unclear: patient conditions not provided"
	}

	trialConditions := parsed.Conditions
	if len(trialConditions) == 0 {
		return 5, true, "Condition relevance unclear: trial specifies no condition"
	}

	for _, pc := range patientConditions {
		for tc := range trialConditions {
			if containsSubstring(pc, normalizeText(tc)) {
				return 40, true, fmt.Sprintf("Condition Match: %s", tc)
			}
		}
	}
	return 0, false, "Condition Mismatch: no overlap with trial conditions"
}

func containsSubstring(a, b string) bool {
	return a == b || (len(a) > 0 && len(b) > 0 && (indexOf(a, b) >= 0 || indexOf(b, a) >= 0))
}

func indexOf(haystack, needle string) int {
	n, h := len(needle), len(haystack)
	if n == 0 || n > h {
		return -1
	}
	for i := 0; i+n <= h; i++ {
		if haystack[i:i+n] == needle {
			return i
		}
	}
	return -1
}

func evalBiomarkerMatch(profile *core.PatientProfile, parsed *core.ParsedCriteria) (int, string, bool) {
	patientBios := map[string]struct{}{}
	for _, b := range profile.Biomarkers {
		patientBios[normalizeText(b)] = struct{}{}
	}
	var matched []string
	for tb := range parsed.Biomarkers {
		if _, hit := patientBios[normalizeText(tb)]; hit {
			matched = append(matched, tb)
		}
	}
	if len(matched) == 0 {
		return 0, "", false
	}
	return 25, fmt.Sprintf("Biomarker Match: %v", matched), true
}

func evalECOG(profile *core.PatientProfile, parsed *core.ParsedCriteria) (int, bool, string, bool) {
	if len(parsed.ECOGAllowed) == 0 || profile.ECOG == nil {
		return 0, true, "", false
	}
	ecog := *profile.ECOG
	if _, ok := parsed.ECOGAllowed[ecog]; ok {
		return 15, true, fmt.Sprintf("ECOG %d is allowed", ecog), true
	}
	return 0, false, fmt.Sprintf("ECOG %d excluded by trial", ecog), true
}

// evalLabs implements spec §4.4 step 5: each passing lab adds +5, capped
// at +15; any failure sets is_feasible = false.
func evalLabs(profile *core.PatientProfile, parsed *core.ParsedCriteria) (int, bool, []string) {
	const perLab = 5
	const capScore = 15
	score := 0
	feasible := true
	var reasons []string
	for labName, rule := range parsed.Labs {
		val, present := profile.Labs[labName]
		if !present {
			continue
		}
		if rule.Evaluate(val) {
			if score < capScore {
				score += perLab
				if score > capScore {
					score = capScore
				}
			}
			reasons = append(reasons, fmt.Sprintf("Lab Passed: %s %.2f %s %.2f", labName, val, rule.Operator, rule.Value))
		} else {
			feasible = false
			reasons = append(reasons, fmt.Sprintf("Lab Failed: %s %.2f not %s %.2f", labName, val, rule.Operator, rule.Value))
		}
	}
	return score, feasible, reasons
}

func evalAge(profile *core.PatientProfile, parsed *core.ParsedCriteria) (int, bool, bool) {
	if profile.Age == nil {
		return 0, true, false
	}
	age := float64(*profile.Age)
	if age >= parsed.AgeMin && age <= parsed.AgeMax {
		return 5, true, true
	}
	return 0, false, true
}

func evalSex(profile *core.PatientProfile, parsed *core.ParsedCriteria) (int, bool, bool, string) {
	if profile.Sex == core.SexUnknown {
		return 0, true, false, ""
	}
	if parsed.Sex == core.SexAll || parsed.Sex == core.SexUnknown {
		return 5, true, true, ""
	}
	if profile.Sex == parsed.Sex {
		return 5, true, true, ""
	}
	return 0, false, true, fmt.Sprintf("Sex Mismatch: patient %s vs trial %s", profile.Sex, parsed.Sex)
}

func evalWashout(profile *core.PatientProfile, parsed *core.ParsedCriteria) (int, bool, bool, string) {
	if profile.DaysSinceLastTreatment == nil || parsed.Temporal.ChemoWashoutDays == nil {
		return 0, true, false, ""
	}
	patientDays := *profile.DaysSinceLastTreatment
	required := *parsed.Temporal.ChemoWashoutDays
	if patientDays >= required {
		return 5, true, true, fmt.Sprintf("Washout Cleared: %dd >= %dd", patientDays, required)
	}
	return 0, false, true, fmt.Sprintf("Washout Fail: only %dd (needs %dd)", patientDays, required)
}

func evalLinesOfTherapy(profile *core.PatientProfile, parsed *core.ParsedCriteria) (int, bool, bool, string) {
	if profile.PriorLines == nil {
		return 0, true, false, ""
	}
	n := *profile.PriorLines
	if parsed.LinesOfTherapy.Allows(n) {
		return 10, true, true, fmt.Sprintf("Lines of Therapy: %d allowed", n)
	}
	return 0, false, true, fmt.Sprintf("Lines Fail: patient has %d prior lines", n)
}

// compile clamps the score at 100 and forces it to 0 when infeasible, per
// spec §4.4's final compilation step. Unlike the prototype's
// _compile_result, there is no additional global relevance threshold —
// the condition-match rule in step 2 already encodes that gate.
func compile(score int, feasible bool, reasons []string) *Result {
	if score > 100 {
		score = 100
	}
	verdict := core.FeasibilityTrue
	if !feasible {
		verdict = core.FeasibilityFalse
		score = 0
	}
	return &Result{Score: score, IsFeasible: verdict, Reasons: reasons}
}

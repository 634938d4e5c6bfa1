// Package core holds the data model shared by every component of the
// retrieval-and-ranking pipeline: trial documents, parsed eligibility
// criteria, patient profiles, and the per-request candidate set.
package core

import "strings"

// Sex is the trial or patient sex constraint.
type Sex string

const (
	SexMale    Sex = "Male"
	SexFemale  Sex = "Female"
	SexAll     Sex = "All"
	SexUnknown Sex = ""
)

// Location is a single trial site.
type Location struct {
	City    string
	State   string
	Country string
}

// RetrievalMeta carries the raw lexical score attached when a TrialDoc is
// returned from the lexical index client.
type RetrievalMeta struct {
	LexicalScore float64
}

// TrialDoc is the read-only record produced by the lexical index. Ingestion
// and index-building are external collaborators; the core never mutates
// a TrialDoc once it is loaded.
type TrialDoc struct {
	NCTID                string
	Title                string
	BriefSummary         string
	DetailedDescription  string
	Conditions           []string
	ConditionsCUIs        []string
	Interventions        []string
	Phase                string
	OverallStatus        string
	StudyType            string
	MinAgeYears          *float64
	MaxAgeYears          *float64
	Sex                  Sex
	Locations            []Location
	EligibilityCriteria  string
	ParsedCriteria       *ParsedCriteria
	RetrievalMeta        *RetrievalMeta
}

// AgeBounds returns the trial's effective age bounds, defaulting absent
// bounds to [0, 120] per the TrialDoc invariant in §3.
func (t *TrialDoc) AgeBounds() (float64, float64) {
	lo, hi := 0.0, 120.0
	if t.MinAgeYears != nil {
		lo = *t.MinAgeYears
	}
	if t.MaxAgeYears != nil {
		hi = *t.MaxAgeYears
	}
	return lo, hi
}

// EffectiveSex returns the trial's sex constraint, defaulting to All.
func (t *TrialDoc) EffectiveSex() Sex {
	if t.Sex == SexUnknown {
		return SexAll
	}
	return t.Sex
}

// LabOperator is one of the five comparison operators a parsed lab
// threshold can carry.
type LabOperator string

const (
	OpLess           LabOperator = "<"
	OpLessOrEqual    LabOperator = "≤"
	OpEqual          LabOperator = "="
	OpGreaterOrEqual LabOperator = "≥"
	OpGreater        LabOperator = ">"
)

// LabRule is a single parsed lab threshold, e.g. "Creatinine < 1.5 mg/dL".
type LabRule struct {
	Operator LabOperator
	Value    float64
	Unit     string
}

// Evaluate reports whether patientValue satisfies the rule.
func (r LabRule) Evaluate(patientValue float64) bool {
	switch r.Operator {
	case OpLess:
		return patientValue < r.Value
	case OpLessOrEqual:
		return patientValue <= r.Value
	case OpEqual:
		return patientValue == r.Value
	case OpGreaterOrEqual:
		return patientValue >= r.Value
	case OpGreater:
		return patientValue > r.Value
	default:
		return false
	}
}

// Temporal holds washout requirements, in days.
type Temporal struct {
	ChemoWashoutDays   *int
	SurgeryWashoutDays *int
}

// LinesOfTherapy is an inclusive (min, max) bound on prior treatment lines.
// Max is unbounded (no upper limit) when NoMax is true.
type LinesOfTherapy struct {
	Min   int
	Max   int
	NoMax bool
}

// Allows reports whether n prior lines satisfies the bound.
func (l LinesOfTherapy) Allows(n int) bool {
	if n < l.Min {
		return false
	}
	if l.NoMax {
		return true
	}
	return n <= l.Max
}

// ExclusionFlag is a canonical hard-exclusion condition.
type ExclusionFlag string

const (
	ExclusionCNSMets             ExclusionFlag = "CNS_Mets"
	ExclusionHIV                 ExclusionFlag = "HIV"
	ExclusionHepatitis           ExclusionFlag = "Hepatitis"
	ExclusionPregnancy           ExclusionFlag = "Pregnancy"
	ExclusionPriorMalignancy     ExclusionFlag = "Prior_Malignancy"
	ExclusionCardiacDysfunction  ExclusionFlag = "Cardiac_Dysfunction"
	ExclusionRenalDysfunction    ExclusionFlag = "Renal_Dysfunction"
	ExclusionHepaticDysfunction  ExclusionFlag = "Hepatic_Dysfunction"
	ExclusionPulmonaryDysfunction ExclusionFlag = "Pulmonary_Dysfunction"
	ExclusionAutoimmuneDisease   ExclusionFlag = "Autoimmune_Disease"
	ExclusionActiveInfection     ExclusionFlag = "Active_Infection"
	ExclusionBleedingDisorder    ExclusionFlag = "Bleeding_Disorder"
	ExclusionSeizureDisorder     ExclusionFlag = "Seizure_Disorder"
)

// AllExclusionFlags lists every recognized exclusion flag, in the order
// their detector regexes run.
var AllExclusionFlags = []ExclusionFlag{
	ExclusionCNSMets,
	ExclusionHIV,
	ExclusionHepatitis,
	ExclusionPregnancy,
	ExclusionPriorMalignancy,
	ExclusionCardiacDysfunction,
	ExclusionRenalDysfunction,
	ExclusionHepaticDysfunction,
	ExclusionPulmonaryDysfunction,
	ExclusionAutoimmuneDisease,
	ExclusionActiveInfection,
	ExclusionBleedingDisorder,
	ExclusionSeizureDisorder,
}

// ParsedCriteria is the structured, cacheable representation of a trial's
// eligibility text, produced by the criteria parser (C3).
type ParsedCriteria struct {
	AgeMin          float64
	AgeMax          float64
	Sex             Sex
	Conditions      map[string]struct{}
	Biomarkers      map[string]struct{}
	ECOGAllowed     map[int]struct{}
	Labs            map[string]LabRule
	Temporal        Temporal
	LinesOfTherapy  LinesOfTherapy
	Exclusions      map[ExclusionFlag]struct{}
	ConditionsCUIs  map[string]struct{}
}

// NewParsedCriteria returns a ParsedCriteria with every set/map field
// initialized and default bounds per the §3 invariants.
func NewParsedCriteria() *ParsedCriteria {
	return &ParsedCriteria{
		AgeMin:         0,
		AgeMax:         120,
		Sex:            SexAll,
		Conditions:     map[string]struct{}{},
		Biomarkers:     map[string]struct{}{},
		ECOGAllowed:    map[int]struct{}{},
		Labs:           map[string]LabRule{},
		LinesOfTherapy: LinesOfTherapy{Min: 0, NoMax: true},
		Exclusions:     map[ExclusionFlag]struct{}{},
		ConditionsCUIs: map[string]struct{}{},
	}
}

// PatientProfile is the structured patient input to a ranking request.
type PatientProfile struct {
	Age                    *int
	Sex                    Sex
	Conditions             []string
	Biomarkers             []string
	History                []string
	ECOG                   *int
	PriorLines             *int
	DaysSinceLastTreatment *int
	Labs                   map[string]float64
}

// NormalizedConditions lower-cases and trims every condition string.
func (p *PatientProfile) NormalizedConditions() []string {
	return normalizeStrings(p.Conditions)
}

// NormalizedHistory lower-cases and trims every history string.
func (p *PatientProfile) NormalizedHistory() []string {
	return normalizeStrings(p.History)
}

func normalizeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}

// Feasibility is a trivalent verdict: a trial can be feasible, infeasible,
// or undetermined (when parsing/scoring for a single candidate failed).
type Feasibility int

const (
	FeasibilityUndetermined Feasibility = iota
	FeasibilityTrue
	FeasibilityFalse
)

// Candidate is a single trial in a request-scoped QueryCandidateSet, with
// its retrieval and feasibility score slots.
type Candidate struct {
	Doc             *TrialDoc
	RetrievalRaw    float64
	RetrievalNorm   float64
	FeasibilityScore *int // nil when undetermined
	IsFeasible      Feasibility
	Reasons         []string
	FinalScore      float64
}

// SplitEligibility splits raw eligibility text into its inclusion and
// exclusion halves by locating an "exclusion criteria" heading
// (case-insensitive). If no such heading exists, the whole text is
// inclusion and the exclusion half is empty. Shared by the criteria
// parser and the lexical query builder so both halves are computed the
// same way everywhere.
func SplitEligibility(text string) (inclusion, exclusion string) {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, "exclusion criteria")
	if idx < 0 {
		return text, ""
	}
	return text[:idx], text[idx:]
}

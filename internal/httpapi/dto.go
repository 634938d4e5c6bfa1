// Package httpapi wires the orchestrator's Rank/Search/Parse/Score
// surface into HTTP handlers, the way the teacher's internal/handlers
// wraps internal/api.ClinicalTrialsClient. This package is demo-only —
// §1 and SPEC_FULL.md's non-goals put HTTP routing out of scope for the
// core itself.
package httpapi

import (
	"github.com/clinical-trials-core/internal/core"
	"github.com/clinical-trials-core/internal/criteria"
	"github.com/clinical-trials-core/internal/orchestrator"
)

// patientDTO is the wire shape for a PatientProfile.
type patientDTO struct {
	Age                    *int               `json:"age,omitempty"`
	Sex                    string             `json:"sex,omitempty"`
	Conditions             []string           `json:"conditions,omitempty"`
	Biomarkers             []string           `json:"biomarkers,omitempty"`
	History                []string           `json:"history,omitempty"`
	ECOG                   *int               `json:"ecog,omitempty"`
	PriorLines             *int               `json:"prior_lines,omitempty"`
	DaysSinceLastTreatment *int               `json:"days_since_last_treatment,omitempty"`
	Labs                   map[string]float64 `json:"labs,omitempty"`
}

func (p patientDTO) toProfile() *core.PatientProfile {
	return &core.PatientProfile{
		Age:                    p.Age,
		Sex:                    core.Sex(p.Sex),
		Conditions:             p.Conditions,
		Biomarkers:             p.Biomarkers,
		History:                p.History,
		ECOG:                   p.ECOG,
		PriorLines:             p.PriorLines,
		DaysSinceLastTreatment: p.DaysSinceLastTreatment,
		Labs:                   p.Labs,
	}
}

// rankRequest is the POST /api/v1/trials/rank request body.
type rankRequest struct {
	Patient           patientDTO `json:"patient"`
	Phase             string     `json:"phase,omitempty"`
	OverallStatus     string     `json:"overall_status,omitempty"`
	Condition         string     `json:"condition,omitempty"`
	Country           string     `json:"country,omitempty"`
	FeasibilityWeight *float64   `json:"feasibility_weight,omitempty"`
	CandidateSize     int        `json:"candidate_size,omitempty"`
	Page              int        `json:"page,omitempty"`
	Size              int        `json:"size,omitempty"`
}

func (req rankRequest) toOptions() orchestrator.RankOptions {
	opts := orchestrator.DefaultRankOptions()
	opts.Phase = req.Phase
	opts.OverallStatus = req.OverallStatus
	opts.Condition = req.Condition
	opts.Country = req.Country
	if req.FeasibilityWeight != nil {
		opts.FeasibilityWeight = *req.FeasibilityWeight
	}
	if req.CandidateSize > 0 {
		opts.CandidateSize = req.CandidateSize
	}
	if req.Page > 0 {
		opts.Page = req.Page
	}
	if req.Size > 0 {
		opts.Size = req.Size
	}
	return opts
}

// searchRequest is the GET /api/v1/trials/search request shape, read
// from the URL query string.
type searchRequest struct {
	Query         string `json:"query,omitempty"`
	Phase         string `json:"phase,omitempty"`
	OverallStatus string `json:"overall_status,omitempty"`
	Condition     string `json:"condition,omitempty"`
	Country       string `json:"country,omitempty"`
	Page          int    `json:"page,omitempty"`
	Size          int    `json:"size,omitempty"`
}

func (req searchRequest) toOptions() orchestrator.SearchOptions {
	opts := orchestrator.DefaultSearchOptions()
	opts.Phase = req.Phase
	opts.OverallStatus = req.OverallStatus
	opts.Condition = req.Condition
	opts.Country = req.Country
	if req.Page > 0 {
		opts.Page = req.Page
	}
	if req.Size > 0 {
		opts.Size = req.Size
	}
	return opts
}

// parseRequest is the POST /api/v1/criteria/parse request body.
type parseRequest struct {
	EligibilityText string   `json:"eligibility_text"`
	MinAgeYears     *float64 `json:"min_age_years,omitempty"`
	MaxAgeYears     *float64 `json:"max_age_years,omitempty"`
	Sex             string   `json:"sex,omitempty"`
	Conditions      []string `json:"conditions,omitempty"`
	ConditionsCUIs  []string `json:"conditions_cuis,omitempty"`
}

func (req parseRequest) toMetadata() criteria.TrialMetadata {
	return criteria.TrialMetadata{
		MinAgeYears:    req.MinAgeYears,
		MaxAgeYears:    req.MaxAgeYears,
		Sex:            core.Sex(req.Sex),
		Conditions:     req.Conditions,
		ConditionsCUIs: req.ConditionsCUIs,
	}
}

// scoreRequest is the POST /api/v1/feasibility/score request body: a
// patient plus a trial's raw eligibility text, composing C3 then C4 the
// way a caller without a pre-parsed ParsedCriteria would use the public
// API surface.
type scoreRequest struct {
	Patient patientDTO `json:"patient"`
	parseRequest
}

// hitDTO is the wire shape for a single orchestrator.Hit.
type hitDTO struct {
	NCTID            string   `json:"nct_id"`
	Title            string   `json:"title"`
	Phase            string   `json:"phase"`
	OverallStatus    string   `json:"overall_status"`
	RetrievalRaw     float64  `json:"retrieval_raw"`
	RetrievalNorm    float64  `json:"retrieval_norm"`
	FeasibilityScore *int     `json:"feasibility_score"`
	IsFeasible       string   `json:"is_feasible"`
	Reasons          []string `json:"reasons,omitempty"`
	FinalScore       float64  `json:"final_score"`
}

func feasibilityString(f core.Feasibility) string {
	switch f {
	case core.FeasibilityTrue:
		return "true"
	case core.FeasibilityFalse:
		return "false"
	default:
		return "undetermined"
	}
}

func toHitDTO(h orchestrator.Hit) hitDTO {
	return hitDTO{
		NCTID:            h.Doc.NCTID,
		Title:            h.Doc.Title,
		Phase:            h.Doc.Phase,
		OverallStatus:    h.Doc.OverallStatus,
		RetrievalRaw:     h.RetrievalRaw,
		RetrievalNorm:    h.RetrievalNorm,
		FeasibilityScore: h.FeasibilityScore,
		IsFeasible:       feasibilityString(h.IsFeasible),
		Reasons:          h.Reasons,
		FinalScore:       h.FinalScore,
	}
}

// searchResponseDTO is the wire shape for an orchestrator.SearchResponse.
type searchResponseDTO struct {
	Total          int      `json:"total"`
	Page           int      `json:"page"`
	Size           int      `json:"size"`
	Hits           []hitDTO `json:"hits"`
	CandidateTotal int      `json:"candidate_total"`
	Truncated      bool     `json:"truncated"`
}

func toSearchResponseDTO(resp *orchestrator.SearchResponse) searchResponseDTO {
	hits := make([]hitDTO, len(resp.Hits))
	for i, h := range resp.Hits {
		hits[i] = toHitDTO(h)
	}
	return searchResponseDTO{
		Total:          resp.Total,
		Page:           resp.Page,
		Size:           resp.Size,
		Hits:           hits,
		CandidateTotal: resp.CandidateTotal,
		Truncated:      resp.Truncated,
	}
}

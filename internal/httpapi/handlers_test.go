package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinical-trials-core/internal/cache"
	"github.com/clinical-trials-core/internal/core"
	"github.com/clinical-trials-core/internal/criteria"
	"github.com/clinical-trials-core/internal/feasibility"
	"github.com/clinical-trials-core/internal/lexical"
	"github.com/clinical-trials-core/internal/orchestrator"
)

func testHandler(t *testing.T) *Handler {
	t.Helper()
	logger := zerolog.Nop()
	idx, err := lexical.New(logger)
	if err != nil {
		t.Fatalf("lexical.New: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	age := 70.0
	minAge := 18.0
	doc := &core.TrialDoc{
		NCTID:               "NCT001",
		Title:               "A Study of Osimertinib in NSCLC",
		BriefSummary:        "A trial for non-small cell lung cancer patients.",
		Conditions:          []string{"Non-Small Cell Lung Cancer"},
		Phase:               "Phase 3",
		OverallStatus:       "Recruiting",
		MinAgeYears:         &minAge,
		MaxAgeYears:         &age,
		Sex:                 core.SexAll,
		EligibilityCriteria: "Inclusion Criteria: Patients must have NSCLC.",
	}
	if err := idx.Index(context.Background(), []*core.TrialDoc{doc}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	dict := criteria.NewDictionary(map[string][]string{"NSCLC": {"non-small cell lung cancer"}})
	parser := criteria.NewParser(dict, logger, 64)
	scorer := feasibility.NewScorer(feasibility.NoopLinker{})
	orch := orchestrator.New(idx, nil, nil, dict, parser, scorer, feasibility.NoopLinker{}, 60, logger)

	return NewHandler(orch, cache.NewCache(0), true)
}

func TestHealthEndpoint(t *testing.T) {
	h := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSearchTrialsEndpoint(t *testing.T) {
	h := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trials/search?query=lung+cancer", nil)
	w := httptest.NewRecorder()
	h.SearchTrials(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp searchResponseDTO
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Hits) == 0 {
		t.Fatalf("expected at least one hit")
	}
}

func TestRankTrialsEndpointRejectsBadWeight(t *testing.T) {
	h := testHandler(t)
	body := `{"patient":{"conditions":["Non-Small Cell Lung Cancer"]},"feasibility_weight":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trials/rank", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.RankTrials(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an out-of-range weight, got %d: %s", w.Code, w.Body.String())
	}
}

func TestParseCriteriaEndpoint(t *testing.T) {
	h := testHandler(t)
	body := `{"eligibility_text":"Inclusion Criteria: Patients with NSCLC, ECOG 0-1."}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/criteria/parse", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ParseCriteria(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

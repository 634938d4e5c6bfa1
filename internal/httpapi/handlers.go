package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clinical-trials-core/internal/cache"
	"github.com/clinical-trials-core/internal/core"
	"github.com/clinical-trials-core/internal/middleware"
	"github.com/clinical-trials-core/internal/orchestrator"
)

// Handler exposes the orchestrator's Rank/Search/Parse/Score surface
// over HTTP, grounded on the teacher's TrialsHandler — same cache-wrap,
// writeJSON/writeError, and getLogger(ctx) shape, generalized from a
// ClinicalTrialsClient-backed handler to an Orchestrator-backed one.
type Handler struct {
	orch         *orchestrator.Orchestrator
	cache        *cache.Cache
	cacheEnabled bool
}

// NewHandler builds a Handler around orch. A nil cache disables
// response caching outright.
func NewHandler(orch *orchestrator.Orchestrator, c *cache.Cache, cacheEnabled bool) *Handler {
	return &Handler{orch: orch, cache: c, cacheEnabled: cacheEnabled && c != nil}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// RankTrials handles POST /api/v1/trials/rank.
func (h *Handler) RankTrials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := getLogger(ctx)

	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	opts := req.toOptions()
	cacheKey := ""
	if h.cacheEnabled {
		cacheKey = cache.GenerateCacheKey("rank", rankCacheParams(req))
		if cached, found := h.cache.Get(cacheKey); found {
			if resp, ok := cached.(searchResponseDTO); ok {
				logger.Info().Str("cache_key", cacheKey).Msg("rank cache hit")
				h.writeJSON(w, http.StatusOK, resp)
				return
			}
		}
	}

	resp, err := h.orch.Rank(ctx, req.Patient.toProfile(), opts)
	if err != nil {
		h.writeOrchestratorError(w, logger, "rank", err)
		return
	}

	dto := toSearchResponseDTO(resp)
	if h.cacheEnabled {
		h.cache.Set(cacheKey, dto)
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// SearchTrials handles GET /api/v1/trials/search.
func (h *Handler) SearchTrials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := getLogger(ctx)

	req := parseSearchQuery(r)
	opts := req.toOptions()

	cacheKey := ""
	if h.cacheEnabled {
		cacheKey = cache.GenerateCacheKey("search", searchCacheParams(req))
		if cached, found := h.cache.Get(cacheKey); found {
			if resp, ok := cached.(searchResponseDTO); ok {
				logger.Info().Str("cache_key", cacheKey).Msg("search cache hit")
				h.writeJSON(w, http.StatusOK, resp)
				return
			}
		}
	}

	resp, err := h.orch.Search(ctx, req.Query, opts)
	if err != nil {
		h.writeOrchestratorError(w, logger, "search", err)
		return
	}

	dto := toSearchResponseDTO(resp)
	if h.cacheEnabled {
		h.cache.Set(cacheKey, dto)
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// ParseCriteria handles POST /api/v1/criteria/parse.
func (h *Handler) ParseCriteria(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := getLogger(ctx)

	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	parsed, err := h.orch.Parse(ctx, req.EligibilityText, req.toMetadata())
	if err != nil {
		h.writeOrchestratorError(w, logger, "parse", err)
		return
	}
	h.writeJSON(w, http.StatusOK, parsed)
}

// ScoreFeasibility handles POST /api/v1/feasibility/score: parses the
// supplied eligibility text (C3), then scores the patient against the
// result (C4) — exercising both halves of the public API surface in one
// convenience round trip.
func (h *Handler) ScoreFeasibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := getLogger(ctx)

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	parsed, err := h.orch.Parse(ctx, req.EligibilityText, req.toMetadata())
	if err != nil {
		h.writeOrchestratorError(w, logger, "parse", err)
		return
	}

	result, err := h.orch.Score(ctx, req.Patient.toProfile(), parsed, nil)
	if err != nil {
		h.writeOrchestratorError(w, logger, "score", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func rankCacheParams(req rankRequest) map[string]interface{} {
	params := map[string]interface{}{
		"conditions": req.Patient.Conditions,
		"biomarkers": req.Patient.Biomarkers,
		"sex":        req.Patient.Sex,
		"phase":      req.Phase,
		"status":     req.OverallStatus,
		"condition":  req.Condition,
		"country":    req.Country,
		"page":       req.Page,
		"size":       req.Size,
	}
	if req.Patient.Age != nil {
		params["age"] = *req.Patient.Age
	}
	if req.FeasibilityWeight != nil {
		params["feasibility_weight"] = *req.FeasibilityWeight
	}
	return params
}

func searchCacheParams(req searchRequest) map[string]interface{} {
	return map[string]interface{}{
		"query":     req.Query,
		"phase":     req.Phase,
		"status":    req.OverallStatus,
		"condition": req.Condition,
		"country":   req.Country,
		"page":      req.Page,
		"size":      req.Size,
	}
}

func parseSearchQuery(r *http.Request) searchRequest {
	q := r.URL.Query()
	req := searchRequest{
		Query:         q.Get("query"),
		Phase:         q.Get("phase"),
		OverallStatus: q.Get("status"),
		Condition:     q.Get("condition"),
		Country:       q.Get("country"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		req.Page = page
	}
	if size, err := strconv.Atoi(q.Get("size")); err == nil {
		req.Size = size
	}
	return req
}

// writeOrchestratorError maps the Rank/Search/Parse/Score error taxonomy
// of spec §7 to HTTP statuses — a ValidationError is the caller's fault,
// everything else is the server's.
func (h *Handler) writeOrchestratorError(w http.ResponseWriter, logger zerolog.Logger, op string, err error) {
	var verr *core.ValidationError
	if ok := isValidationError(err, &verr); ok {
		h.writeError(w, http.StatusBadRequest, verr.Error())
		return
	}
	var cancelled *core.Cancelled
	if ok := isCancelled(err, &cancelled); ok {
		h.writeError(w, http.StatusRequestTimeout, cancelled.Error())
		return
	}
	logger.Error().Err(err).Str("op", op).Msg("request failed")
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

func isValidationError(err error, target **core.ValidationError) bool {
	if v, ok := err.(*core.ValidationError); ok {
		*target = v
		return true
	}
	return false
}

func isCancelled(err error, target **core.Cancelled) bool {
	if c, ok := err.(*core.Cancelled); ok {
		*target = c
		return true
	}
	return false
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("error encoding JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// getLogger extracts a request-scoped logger, the same pattern as the
// teacher's internal/handlers/trials.go getLogger(ctx).
func getLogger(ctx context.Context) zerolog.Logger {
	requestID := ctx.Value(middleware.RequestIDKey{})
	if id, ok := requestID.(string); ok {
		return log.With().Str("request_id", id).Logger()
	}
	return log.Logger
}

// Routes registers every handler on router, mirroring the route table in
// the teacher's cmd/server/main.go.
func Routes(router *mux.Router, h *Handler) {
	router.HandleFunc("/health", h.Health).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/trials/rank", h.RankTrials).Methods("POST")
	api.HandleFunc("/trials/search", h.SearchTrials).Methods("GET")
	api.HandleFunc("/criteria/parse", h.ParseCriteria).Methods("POST")
	api.HandleFunc("/feasibility/score", h.ScoreFeasibility).Methods("POST")
}

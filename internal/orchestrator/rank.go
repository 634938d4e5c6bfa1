package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinical-trials-core/internal/core"
	"github.com/clinical-trials-core/internal/criteria"
	"github.com/clinical-trials-core/internal/dense"
	"github.com/clinical-trials-core/internal/feasibility"
	"github.com/clinical-trials-core/internal/fusion"
	"github.com/clinical-trials-core/internal/lexical"
)

// Orchestrator wires C1-C4 behind the Rank/Search/Parse/Score surface of
// spec §6. It holds only read-only, shareable collaborators (spec §5):
// constructing it is the one place wiring happens, every call below is
// request-scoped and touches no shared mutable state.
type Orchestrator struct {
	lexicalIdx *lexical.Index
	denseIdx   *dense.Index
	encoder    dense.Encoder
	dict       *criteria.Dictionary
	parser     *criteria.Parser
	scorer     *feasibility.Scorer
	linker     feasibility.ConceptLinker
	rrf        fusion.RRF
	logger     zerolog.Logger
	maxWorkers int
}

// New builds an Orchestrator from its collaborators. denseIdx/encoder
// may be nil, in which case dense fusion and the dense-only fallback are
// always skipped — equivalent to "missing dense artifacts" in spec §8's
// boundary behaviors.
func New(
	lexicalIdx *lexical.Index,
	denseIdx *dense.Index,
	encoder dense.Encoder,
	dict *criteria.Dictionary,
	parser *criteria.Parser,
	scorer *feasibility.Scorer,
	linker feasibility.ConceptLinker,
	rrfK int,
	logger zerolog.Logger,
) *Orchestrator {
	if linker == nil {
		linker = feasibility.NoopLinker{}
	}
	return &Orchestrator{
		lexicalIdx: lexicalIdx,
		denseIdx:   denseIdx,
		encoder:    encoder,
		dict:       dict,
		parser:     parser,
		scorer:     scorer,
		linker:     linker,
		rrf:        fusion.New(rrfK),
		logger:     logger,
		maxWorkers: 8,
	}
}

func (o *Orchestrator) denseReady() bool {
	return o.denseIdx != nil && o.encoder != nil && o.denseIdx.Ready()
}

// Rank implements C5's contract: rank(profile, options) → SearchResponse,
// per the nine-step algorithm in spec §4.5.
func (o *Orchestrator) Rank(ctx context.Context, profile *core.PatientProfile, opts RankOptions) (*SearchResponse, error) {
	if err := validateOptions(opts.Page, opts.Size, opts.BM25Weight, opts.FeasibilityWeight); err != nil {
		return nil, err
	}
	if opts.CandidateSize <= 0 {
		opts.CandidateSize = DefaultRankOptions().CandidateSize
	}

	// Step 1: normalize patient conditions/biomarkers to canonical keys.
	normConditions := o.dict.NormalizeAll(profile.Conditions)
	normBiomarkers := o.dict.NormalizeAll(profile.Biomarkers)
	normalizedProfile := *profile
	normalizedProfile.Conditions = normConditions
	normalizedProfile.Biomarkers = normBiomarkers

	// Step 2: build query text; age/sex are filters, not text.
	queryText := buildQueryText(&normalizedProfile)

	filters := lexical.Filters{
		Phase:         opts.Phase,
		OverallStatus: opts.OverallStatus,
		Country:       opts.Country,
		PatientSex:    profile.Sex,
	}
	if opts.Condition != "" {
		filters.Conditions = []string{opts.Condition}
	}
	if profile.Age != nil {
		age := float64(*profile.Age)
		filters.PatientAge = &age
	}

	candidates, candidateTotal, truncated, err := o.buildCandidateSet(ctx, queryText, filters, opts.CandidateSize, opts.UseCandidateTotal)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return &SearchResponse{Page: opts.Page, Size: opts.Size, CandidateTotal: candidateTotal, Truncated: truncated}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, core.WrapCancellation(ctx, err)
	}

	// Step 6: compute patient_cuis once.
	patientCUIs, err := o.computePatientCUIs(ctx, &normalizedProfile)
	if err != nil {
		return nil, err
	}

	if err := o.evaluateFeasibility(ctx, &normalizedProfile, candidates, patientCUIs); err != nil {
		return nil, err
	}

	// Step 7: blend.
	blend(candidates, opts.FeasibilityWeight)

	// Step 8: filter + sort.
	feasible := filterFeasible(candidates)
	sortByFinalScoreDesc(feasible)

	// Step 9: paginate.
	return paginate(feasible, opts.Page, opts.Size, candidateTotal, truncated), nil
}

// buildCandidateSet runs steps 3-5: the C1 call, optional C2 fusion, and
// the dense-only fallback when C1 returns zero hits.
func (o *Orchestrator) buildCandidateSet(ctx context.Context, queryText string, filters lexical.Filters, candidateSize int, useCandidateTotal bool) ([]*core.Candidate, int, bool, error) {
	var lexHits []lexical.Hit
	var denseResults []dense.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := o.lexicalIdx.Search(gctx, queryText, filters, candidateSize)
		if err != nil {
			return err
		}
		lexHits = hits
		return nil
	})
	if o.denseReady() && queryText != "" {
		g.Go(func() error {
			vec, err := o.encoder.Encode(gctx, queryText)
			if err != nil {
				// Encoder failure degrades to lexical-only, it is not
				// fatal the way a C1 failure is (spec §7 only names
				// LexicalBackendError as request-fatal).
				o.logger.Warn().Err(err).Msg("dense encode failed, degrading to lexical-only")
				return nil
			}
			k := candidateSize * 3
			if k < candidateSize {
				k = candidateSize
			}
			results, err := o.denseIdx.Search(gctx, vec, k)
			if err != nil {
				o.logger.Warn().Err(err).Msg("dense search failed, degrading to lexical-only")
				return nil
			}
			denseResults = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, 0, false, core.WrapCancellation(ctx, err)
		}
		return nil, 0, false, core.NewLexicalBackendError("search", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, 0, false, core.WrapCancellation(ctx, err)
	}

	if len(lexHits) == 0 {
		// Step 5: dense-only fallback, only taken when C1 succeeds with
		// zero hits and C2 is ready (spec §7).
		if o.denseReady() && len(denseResults) > 0 {
			return o.denseOnlyFallback(denseResults)
		}
		return nil, 0, false, nil
	}

	candidates := make([]*core.Candidate, len(lexHits))
	lexOrder := make([]string, len(lexHits))
	for i, h := range lexHits {
		candidates[i] = &core.Candidate{Doc: h.Doc, RetrievalRaw: h.RawScore}
		lexOrder[i] = h.Doc.NCTID
	}

	if len(denseResults) > 0 {
		denseOrder := make([]string, len(denseResults))
		for i, r := range denseResults {
			denseOrder[i] = r.NCTID
		}
		fused := o.rrf.Fuse(lexOrder, denseOrder)
		scoreByID := make(map[string]float64, len(fused))
		for _, f := range fused {
			scoreByID[f.ID] = f.Score
		}
		for _, c := range candidates {
			if s, ok := scoreByID[c.Doc.NCTID]; ok {
				c.RetrievalRaw = s
			}
		}
	}

	candidateTotal := len(candidates)
	truncated := false
	if useCandidateTotal {
		total, err := o.lexicalIdx.DocCount()
		if err == nil && total > candidateSize {
			truncated = true
		}
	}
	return candidates, candidateTotal, truncated, nil
}

// denseOnlyFallback implements spec §4.5 step 5: dense top-k → fetch
// source records by id → min-max normalize → treat as the candidate set.
func (o *Orchestrator) denseOnlyFallback(results []dense.Result) ([]*core.Candidate, int, bool, error) {
	candidates := make([]*core.Candidate, 0, len(results))
	similarities := make([]float64, 0, len(results))
	for _, r := range results {
		doc, ok := o.lexicalIdx.Get(r.NCTID)
		if !ok {
			continue
		}
		candidates = append(candidates, &core.Candidate{Doc: doc, RetrievalRaw: r.Similarity})
		similarities = append(similarities, r.Similarity)
	}
	normalized := core.MinMaxNormalize(similarities)
	for i, c := range candidates {
		c.RetrievalNorm = normalized[i]
		c.RetrievalRaw = normalized[i]
	}
	return candidates, len(candidates), false, nil
}

// computePatientCUIs runs the linker once over the profile's conditions,
// per spec §4.5 step 6's "compute patient_cuis once."
func (o *Orchestrator) computePatientCUIs(ctx context.Context, profile *core.PatientProfile) (map[string]struct{}, error) {
	conditions := profile.NormalizedConditions()
	if len(conditions) == 0 {
		return map[string]struct{}{}, nil
	}
	cuis, err := o.linker.ExtractCUIsMany(ctx, conditions)
	if err != nil {
		return nil, fmt.Errorf("concept linking: %w", err)
	}
	return cuis, nil
}

// evaluateFeasibility fans C4 out across candidates, the "embarrassingly
// parallel... recommended fan-out point" of spec §5, bounded by a worker
// pool built on errgroup.Group.SetLimit. A cancellation is checked before
// each candidate's evaluation, per §5's suspension points.
func (o *Orchestrator) evaluateFeasibility(ctx context.Context, profile *core.PatientProfile, candidates []*core.Candidate, patientCUIs map[string]struct{}) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxWorkers)

	for _, c := range candidates {
		c := c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return core.WrapCancellation(gctx, err)
			}
			o.scoreCandidate(gctx, profile, c, patientCUIs)
			return nil
		})
	}
	return g.Wait()
}

// scoreCandidate resolves a ParsedCriteria (preferring the trial's
// cached parse) and scores it, degrading the single candidate to
// undetermined feasibility on any parse/score error rather than failing
// the request — spec §4.5's error-handling note and §7's ParseError /
// ScoreError taxonomy.
func (o *Orchestrator) scoreCandidate(ctx context.Context, profile *core.PatientProfile, c *core.Candidate, patientCUIs map[string]struct{}) {
	parsed := c.Doc.ParsedCriteria
	if parsed == nil && c.Doc.EligibilityCriteria == "" && c.Doc.MinAgeYears == nil &&
		c.Doc.MaxAgeYears == nil && c.Doc.Sex == core.SexUnknown && len(c.Doc.Conditions) == 0 {
		// No eligibility text and no structured metadata: the candidate is
		// kept with no feasibility score and an undetermined verdict.
		c.IsFeasible = core.FeasibilityUndetermined
		c.Reasons = []string{"Feasibility undetermined: no eligibility criteria or structured metadata"}
		return
	}
	if parsed == nil {
		meta := criteria.TrialMetadata{
			MinAgeYears: c.Doc.MinAgeYears,
			MaxAgeYears: c.Doc.MaxAgeYears,
			Sex:         c.Doc.Sex,
			Conditions:  c.Doc.Conditions,
		}
		p, err := o.parser.Parse(ctx, c.Doc.EligibilityCriteria, meta)
		if err != nil {
			c.IsFeasible = core.FeasibilityUndetermined
			c.Reasons = []string{(&core.ParseError{NCTID: c.Doc.NCTID, Err: err}).Error()}
			return
		}
		parsed = p
	}

	result, err := o.scorer.Score(ctx, profile, parsed, patientCUIs)
	if err != nil {
		c.IsFeasible = core.FeasibilityUndetermined
		c.Reasons = []string{(&core.ScoreError{NCTID: c.Doc.NCTID, Err: err}).Error()}
		return
	}
	score := result.Score
	c.FeasibilityScore = &score
	c.IsFeasible = result.IsFeasible
	c.Reasons = result.Reasons
}

// blend implements spec §4.5 step 7: min-max normalize retrieval scores
// across the whole candidate set, then combine with feasibility.
func blend(candidates []*core.Candidate, feasibilityWeight float64) {
	raws := make([]float64, len(candidates))
	for i, c := range candidates {
		raws[i] = c.RetrievalRaw
	}
	normalized := core.MinMaxNormalize(raws)
	for i, c := range candidates {
		c.RetrievalNorm = normalized[i]
		var feasNorm float64
		if c.FeasibilityScore != nil {
			feasNorm = float64(*c.FeasibilityScore) / 100.0
		}
		c.FinalScore = (1-feasibilityWeight)*c.RetrievalNorm + feasibilityWeight*feasNorm
	}
}

// filterFeasible drops candidates whose is_feasible = false, per spec
// §4.5 step 8. Undetermined candidates are kept, matching §4.5's error
// note ("the candidate is kept").
func filterFeasible(candidates []*core.Candidate) []*core.Candidate {
	out := make([]*core.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.IsFeasible == core.FeasibilityFalse {
			continue
		}
		out = append(out, c)
	}
	return out
}

func sortByFinalScoreDesc(candidates []*core.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FinalScore > candidates[j].FinalScore
	})
}

// paginate implements spec §4.5 step 9.
func paginate(candidates []*core.Candidate, page, size, candidateTotal int, truncated bool) *SearchResponse {
	total := len(candidates)
	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	hits := make([]Hit, 0, end-start)
	for _, c := range candidates[start:end] {
		hits = append(hits, Hit{
			Doc:              c.Doc,
			RetrievalRaw:     c.RetrievalRaw,
			RetrievalNorm:    c.RetrievalNorm,
			FeasibilityScore: c.FeasibilityScore,
			IsFeasible:       c.IsFeasible,
			Reasons:          c.Reasons,
			FinalScore:       c.FinalScore,
		})
	}

	return &SearchResponse{
		Total:          total,
		Page:           page,
		Size:           size,
		Hits:           hits,
		CandidateTotal: candidateTotal,
		Truncated:      truncated,
	}
}

// buildQueryText ports the original prototype's
// build_profile_query_text: concatenated short phrases from non-empty
// profile fields, per spec §4.5 step 2. Age and sex are excluded — they
// are filters, not text.
func buildQueryText(profile *core.PatientProfile) string {
	var parts []string
	if len(profile.Conditions) > 0 {
		parts = append(parts, fmt.Sprintf("with %s", strings.Join(profile.Conditions, ", ")))
	}
	if profile.ECOG != nil {
		parts = append(parts, fmt.Sprintf("ECOG %d", *profile.ECOG))
	}
	if len(profile.Biomarkers) > 0 {
		parts = append(parts, fmt.Sprintf("Biomarkers: %s", strings.Join(profile.Biomarkers, ", ")))
	}
	if len(profile.History) > 0 {
		parts = append(parts, fmt.Sprintf("History of %s", strings.Join(profile.History, ", ")))
	}
	if profile.PriorLines != nil {
		parts = append(parts, fmt.Sprintf("%d prior lines of systemic therapy", *profile.PriorLines))
	}
	if profile.DaysSinceLastTreatment != nil {
		parts = append(parts, fmt.Sprintf("%d days since last treatment", *profile.DaysSinceLastTreatment))
	}
	return strings.Join(parts, ". ")
}

func validateOptions(page, size int, weights ...float64) error {
	if page < 1 {
		return core.NewValidationError("page", "must be >= 1")
	}
	if size < 1 || size > 100 {
		return core.NewValidationError("size", "must be in [1, 100]")
	}
	for _, w := range weights {
		if w < 0 || w > 1 {
			return core.NewValidationError("weight", "must be in [0, 1]")
		}
	}
	return nil
}

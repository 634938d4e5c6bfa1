// Package lexical implements the lexical index client (C1): a BM25-style
// search and filter engine over TrialDoc records. Grounded on
// Aman-CERP-amanmcp's internal/store/bm25.go — the same
// custom-analyzer-registration and batch-index pattern, generalized from
// source-code tokens to clinical eligibility text. Because §6 describes
// the lexical store's required capabilities (boolean filters, weighted
// multi-field match, function-score multipliers, _source projection) as
// a closed list that an in-process Bleve index already satisfies, this
// package is simultaneously the client and a usable reference lexical
// store — there is no separate "external" service to stand up.
package lexical

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/rs/zerolog"

	"github.com/clinical-trials-core/internal/core"
)

const (
	clinicalAnalyzerName = "clinical_text"
	clinicalStopFilter   = "clinical_stop"
)

func init() {
	_ = registry.RegisterTokenFilter(clinicalStopFilter, clinicalStopFilterConstructor)
}

// clinicalStopWords trims common English filler and a handful of
// boilerplate eligibility-section words that would otherwise dominate
// term frequency without discriminating between trials.
var clinicalStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "and": {}, "or": {}, "in": {},
	"to": {}, "with": {}, "for": {}, "is": {}, "are": {}, "be": {}, "as": {},
	"at": {}, "by": {}, "on": {}, "that": {}, "this": {}, "patients": {},
	"patient": {}, "criteria": {}, "inclusion": {}, "exclusion": {},
}

func clinicalStopFilterConstructor(map[string]interface{}, *registry.Cache) (analysis.TokenFilter, error) {
	return &clinicalStopFilterImpl{}, nil
}

type clinicalStopFilterImpl struct{}

func (clinicalStopFilterImpl) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, tok := range input {
		if _, stop := clinicalStopWords[strings.ToLower(string(tok.Term))]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

// fieldWeights implements spec §4.1's disjunctive multi-field match
// weighting.
var fieldWeights = map[string]float64{
	"title":                   3,
	"brief_summary":           2,
	"detailed_description":    1,
	"conditions":              4,
	"conditions_all":          5,
	"interventions":           1,
	"criteria_inclusion_clean": 2,
}

// bleveDoc is the Bleve document shape a TrialDoc is projected into for
// indexing. conditions_all duplicates conditions as a single blob field
// so a disjunction can weight "any condition word" independently from
// the per-term "conditions" field, the way the spec's two separate
// conditions/conditions_all weights imply two different field shapes
// over the same data.
type bleveDoc struct {
	Title                  string   `json:"title"`
	BriefSummary           string   `json:"brief_summary"`
	DetailedDescription    string   `json:"detailed_description"`
	Conditions             []string `json:"conditions"`
	ConditionsAll          string   `json:"conditions_all"`
	Interventions          []string `json:"interventions"`
	CriteriaInclusionClean string   `json:"criteria_inclusion_clean"`
	Phase                  string   `json:"phase"`
	OverallStatus          string   `json:"overall_status"`
	StudyType              string   `json:"study_type"`
	Sex                    string   `json:"sex"`
	MinAgeYears            float64  `json:"min_age_years"`
	MaxAgeYears            float64  `json:"max_age_years"`
	LocationsCountry       []string `json:"locations_country"`
}

// Index wraps a Bleve index together with its own store of the full
// TrialDoc records it was built from, so it can serve both lexical
// queries and the by-id lookups C5's dense-only fallback needs (§4.5
// step 5, §6's "_source projection").
type Index struct {
	mu     sync.RWMutex
	bleve  bleve.Index
	docs   map[string]*core.TrialDoc
	logger zerolog.Logger
}

// New builds an in-memory Index (bleve.NewMemOnly) over the custom
// clinical-text analyzer mapping. A persistent, on-disk index is out of
// scope here the same way ingestion/index-building is out of scope per
// spec §1 — this package is the query-time client + an in-process
// reference store, not an offline indexer.
func New(logger zerolog.Logger) (*Index, error) {
	indexMapping, err := buildMapping()
	if err != nil {
		return nil, core.NewLexicalBackendError("build_mapping", err)
	}
	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, core.NewLexicalBackendError("open", err)
	}
	return &Index{bleve: idx, docs: map[string]*core.TrialDoc{}, logger: logger}, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(clinicalAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": "unicode",
		"token_filters": []string{
			lowercase.Name,
			clinicalStopFilter,
		},
	}); err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}
	im.DefaultAnalyzer = clinicalAnalyzerName

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = clinicalAnalyzerName

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = "keyword"

	numericField := bleve.NewNumericFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", textField)
	doc.AddFieldMappingsAt("brief_summary", textField)
	doc.AddFieldMappingsAt("detailed_description", textField)
	doc.AddFieldMappingsAt("conditions", keywordField)
	doc.AddFieldMappingsAt("conditions_all", textField)
	doc.AddFieldMappingsAt("interventions", keywordField)
	doc.AddFieldMappingsAt("criteria_inclusion_clean", textField)
	doc.AddFieldMappingsAt("phase", keywordField)
	doc.AddFieldMappingsAt("overall_status", keywordField)
	doc.AddFieldMappingsAt("study_type", keywordField)
	doc.AddFieldMappingsAt("sex", keywordField)
	doc.AddFieldMappingsAt("locations_country", keywordField)
	doc.AddFieldMappingsAt("min_age_years", numericField)
	doc.AddFieldMappingsAt("max_age_years", numericField)

	im.AddDocumentMapping("_default", doc)
	return im, nil
}

// Index adds or replaces trial documents in the index.
func (idx *Index) Index(ctx context.Context, trials []*core.TrialDoc) error {
	if len(trials) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	batch := idx.bleve.NewBatch()
	for _, t := range trials {
		minAge, maxAge := t.AgeBounds()
		inclusion, _ := core.SplitEligibility(t.EligibilityCriteria)
		doc := bleveDoc{
			Title:                  t.Title,
			BriefSummary:           t.BriefSummary,
			DetailedDescription:    t.DetailedDescription,
			Conditions:             t.Conditions,
			ConditionsAll:          strings.Join(t.Conditions, " "),
			Interventions:          t.Interventions,
			CriteriaInclusionClean: inclusion,
			Phase:                  t.Phase,
			OverallStatus:          t.OverallStatus,
			StudyType:              t.StudyType,
			Sex:                    string(t.EffectiveSex()),
			MinAgeYears:            minAge,
			MaxAgeYears:            maxAge,
			LocationsCountry:       countries(t.Locations),
		}
		if err := batch.Index(t.NCTID, doc); err != nil {
			return core.NewLexicalBackendError("index", fmt.Errorf("trial %s: %w", t.NCTID, err))
		}
		idx.docs[t.NCTID] = t
	}
	if err := idx.bleve.Batch(batch); err != nil {
		return core.NewLexicalBackendError("batch", err)
	}
	return nil
}

func countries(locs []core.Location) []string {
	out := make([]string, 0, len(locs))
	for _, l := range locs {
		if l.Country != "" {
			out = append(out, l.Country)
		}
	}
	return out
}

// Get fetches a single trial by id from the index's source store,
// used by the dense-only fallback (§4.5 step 5) to turn dense hit ids
// back into TrialDocs.
func (idx *Index) Get(nctID string) (*core.TrialDoc, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	doc, ok := idx.docs[nctID]
	return doc, ok
}

// DocCount reports the number of indexed trials.
func (idx *Index) DocCount() (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, err := idx.bleve.DocCount()
	if err != nil {
		return 0, core.NewLexicalBackendError("doc_count", err)
	}
	return int(n), nil
}

// Close releases the underlying Bleve index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.bleve.Close()
}

package lexical

import (
	"context"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/clinical-trials-core/internal/core"
)

// Filters holds the optional, AND-combined filters spec §4.1 names.
type Filters struct {
	Phase         string
	OverallStatus string
	Conditions    []string
	Country       string
	PatientAge    *float64
	PatientSex    core.Sex
}

// Hit pairs a retrieved TrialDoc with its raw (post-shaping) lexical
// score, as returned by Search per §4.1's contract.
type Hit struct {
	Doc      *core.TrialDoc
	RawScore float64
}

// Search implements C1's contract: lexical_search(query_text?, filters,
// candidate_size) → ordered list of (TrialDoc, raw_score). Paging
// happens upstream in the orchestrator, not here — Search always returns
// from offset 0 up to candidateSize.
func (idx *Index) Search(ctx context.Context, queryText string, filters Filters, candidateSize int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapCancellation(ctx, err)
	}

	q := buildQuery(queryText, filters)
	req := bleve.NewSearchRequest(q)
	req.Size = candidateSize
	req.From = 0

	idx.mu.RLock()
	result, err := idx.bleve.SearchInContext(ctx, req)
	idx.mu.RUnlock()
	if err != nil {
		return nil, core.NewLexicalBackendError("search", err)
	}

	if len(result.Hits) == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		doc, ok := idx.Get(h.ID)
		if !ok {
			continue
		}
		hits = append(hits, Hit{
			Doc:      doc,
			RawScore: shapeScore(h.Score, doc),
		})
	}
	return hits, nil
}

// buildQuery assembles the disjunctive multi-field match combined with
// the AND filter set, per spec §4.1.
func buildQuery(queryText string, filters Filters) query.Query {
	var textQuery query.Query
	if queryText == "" {
		textQuery = bleve.NewMatchAllQuery()
	} else {
		disjunction := bleve.NewDisjunctionQuery()
		for field, weight := range fieldWeights {
			mq := bleve.NewMatchQuery(queryText)
			mq.SetField(field)
			mq.SetBoost(weight)
			disjunction.AddQuery(mq)
		}
		textQuery = disjunction
	}

	filterQuery := buildFilterQuery(filters)
	if filterQuery == nil {
		return textQuery
	}

	conjunction := bleve.NewConjunctionQuery(textQuery, filterQuery)
	return conjunction
}

func buildFilterQuery(filters Filters) query.Query {
	var clauses []query.Query

	if filters.Phase != "" {
		clauses = append(clauses, newTermQuery("phase", filters.Phase))
	}
	if filters.OverallStatus != "" {
		clauses = append(clauses, newTermQuery("overall_status", filters.OverallStatus))
	}
	if len(filters.Conditions) > 0 {
		and := bleve.NewConjunctionQuery()
		for _, c := range filters.Conditions {
			and.AddQuery(newTermQuery("conditions", c))
		}
		clauses = append(clauses, and)
	}
	if filters.Country != "" {
		clauses = append(clauses, newTermQuery("locations_country", filters.Country))
	}
	if filters.PatientAge != nil {
		age := *filters.PatientAge
		minQ := bleve.NewNumericRangeQuery(nil, &age)
		minQ.SetField("min_age_years")
		maxQ := bleve.NewNumericRangeQuery(&age, nil)
		maxQ.SetField("max_age_years")
		clauses = append(clauses, minQ, maxQ)
	}
	if filters.PatientSex != core.SexUnknown && filters.PatientSex != core.SexAll {
		sexOr := bleve.NewDisjunctionQuery(
			newTermQuery("sex", string(filters.PatientSex)),
			newTermQuery("sex", string(core.SexAll)),
		)
		clauses = append(clauses, sexOr)
	}

	if len(clauses) == 0 {
		return nil
	}
	conj := bleve.NewConjunctionQuery(clauses...)
	return conj
}

func newTermQuery(field, value string) query.Query {
	tq := bleve.NewTermQuery(value)
	tq.SetField(field)
	return tq
}

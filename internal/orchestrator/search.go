package orchestrator

import (
	"context"

	"github.com/clinical-trials-core/internal/lexical"
)

// Search implements the plain search(query_text?, filters, page, size)
// entry point of spec §6: lexical retrieval (with dense fusion when
// available) and no patient profile, no feasibility scoring. Every hit
// is kept — there is nothing to filter on feasibility.
func (o *Orchestrator) Search(ctx context.Context, queryText string, opts SearchOptions) (*SearchResponse, error) {
	if err := validateOptions(opts.Page, opts.Size); err != nil {
		return nil, err
	}

	candidateSize := opts.Size * opts.Page
	if candidateSize < opts.Size {
		candidateSize = opts.Size
	}
	if candidateSize < DefaultSearchOptions().Size {
		candidateSize = DefaultSearchOptions().Size
	}

	filters := lexical.Filters{
		Phase:         opts.Phase,
		OverallStatus: opts.OverallStatus,
		Country:       opts.Country,
	}
	if opts.Condition != "" {
		filters.Conditions = []string{opts.Condition}
	}

	candidates, candidateTotal, truncated, err := o.buildCandidateSet(ctx, queryText, filters, candidateSize, opts.UseCandidateTotal)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &SearchResponse{Page: opts.Page, Size: opts.Size, CandidateTotal: candidateTotal, Truncated: truncated}, nil
	}

	blend(candidates, 0) // no feasibility signal in plain Search: weight 0
	sortByFinalScoreDesc(candidates)

	return paginate(candidates, opts.Page, opts.Size, candidateTotal, truncated), nil
}

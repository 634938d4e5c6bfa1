package orchestrator

import (
	"context"

	"github.com/clinical-trials-core/internal/core"
	"github.com/clinical-trials-core/internal/criteria"
	"github.com/clinical-trials-core/internal/feasibility"
)

// Parse exposes C3 directly, per spec §6's public API surface — callers
// that only want parsed criteria (no ranking) use this instead of Rank.
func (o *Orchestrator) Parse(ctx context.Context, eligibilityText string, meta criteria.TrialMetadata) (*core.ParsedCriteria, error) {
	return o.parser.Parse(ctx, eligibilityText, meta)
}

// Score exposes C4 directly, per spec §6's public API surface. A nil
// patientCUIs triggers on-the-fly concept linking via the configured
// ConceptLinker, same as the internal fan-out in Rank.
func (o *Orchestrator) Score(ctx context.Context, profile *core.PatientProfile, parsed *core.ParsedCriteria, patientCUIs map[string]struct{}) (*feasibility.Result, error) {
	return o.scorer.Score(ctx, profile, parsed, patientCUIs)
}

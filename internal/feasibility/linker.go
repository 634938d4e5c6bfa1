// Package feasibility implements the feasibility scorer (C4): scoring a
// patient profile against a trial's parsed eligibility criteria.
package feasibility

import (
	"context"
	"strings"
	"sync"
)

// ConceptLinker maps free text to a set of normalized concept identifiers
// (CUIs). It stands in for the UMLS linker named in spec §9 — the linker
// implementation itself is out of scope; the core only owns this
// interface and a process-wide lazy singleton around it, per §5's
// "process-wide lazy init with a one-time guard" requirement.
type ConceptLinker interface {
	ExtractCUIs(ctx context.Context, text string) (map[string]struct{}, error)
	ExtractCUIsMany(ctx context.Context, texts []string) (map[string]struct{}, error)
}

// NoopLinker is the default ConceptLinker: it never errors and always
// returns an empty set, so condition matching falls through to the
// substring fallback in evalConditionMatch until a real linker is wired.
type NoopLinker struct{}

func (NoopLinker) ExtractCUIs(context.Context, string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (NoopLinker) ExtractCUIsMany(context.Context, []string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

var (
	linkerOnce sync.Once
	linkerInst ConceptLinker
)

// DefaultLinker returns the process-wide ConceptLinker singleton,
// initializing it to NoopLinker on first use. Call SetDefaultLinker
// before the first DefaultLinker call to install a real implementation.
func DefaultLinker() ConceptLinker {
	linkerOnce.Do(func() {
		if linkerInst == nil {
			linkerInst = NoopLinker{}
		}
	})
	return linkerInst
}

// SetDefaultLinker installs linker as the process-wide ConceptLinker. It
// only has an effect if called before the first DefaultLinker call.
func SetDefaultLinker(linker ConceptLinker) {
	linkerOnce.Do(func() {
		linkerInst = linker
	})
}

// normalizeText lower-cases and trims, the shared normalization applied
// before any substring match in the condition-matching fallback.
func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

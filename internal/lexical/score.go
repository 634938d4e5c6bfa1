package lexical

import "github.com/clinical-trials-core/internal/core"

// shapeScore applies spec §4.1's function-score multipliers, composed
// multiplicatively: ×1.05 when Recruiting, ×1.10 for Phase 3/4, ×1.05
// for Phase 2. Bleve's query-time scoring has no notion of this kind of
// post-hoc status/phase boosting, so it is applied here, once, after the
// raw hit score comes back from the index.
func shapeScore(raw float64, doc *core.TrialDoc) float64 {
	score := raw
	if doc.OverallStatus == "Recruiting" {
		score *= 1.05
	}
	switch doc.Phase {
	case "Phase 3", "Phase 4":
		score *= 1.10
	case "Phase 2":
		score *= 1.05
	}
	return score
}

package score

import (
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Merchant-like suppression bounds: sustained, non-clustered volume over a
// long span with no structural pattern reads as a legitimate high-volume
// account, not laundering.
const (
	merchantMinTxCount = 20
	merchantMinSpan    = 30 * 24 * time.Hour
)

// suppressed reports whether an account is dropped from the final list. An
// account carrying any structural tag is always retained; velocity, bonus,
// and custom tags alone do not override the merchant test. Filtering is
// idempotent: the decision depends only on immutable per-run facts.
func (a *Aggregation) suppressed(st *accountState) bool {
	for _, tag := range st.patterns {
		if domain.IsStructuralPattern(tag) {
			return false
		}
	}

	node := a.g.Nodes[st.id]
	stats := a.stats[st.id]
	if node == nil || stats == nil {
		return false
	}

	return node.TotalTxCount >= merchantMinTxCount &&
		stats.last.Sub(stats.first) >= merchantMinSpan
}

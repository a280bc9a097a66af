package risk

import (
	"sync"

	"github.com/tradedesk/riskmon/pkg/types"
)

// TransitionTracker holds the previous risk level per ticker so the
// monitor can tell edge-triggered transitions from continuations. It is
// the single canonical "is this alert new" rule; all consumers subscribe
// to its output rather than recomputing their own.
//
// The map always reflects the most recently completed tick: comparisons
// read it, and Commit replaces it only after a tick has fully emitted
// its events.
type TransitionTracker struct {
	mu   sync.RWMutex
	prev map[string]types.RiskLevel
}

func NewTransitionTracker() *TransitionTracker {
	return &TransitionTracker{prev: make(map[string]types.RiskLevel)}
}

// IsNew reports whether a position arriving at level should trigger
// alert side effects. Only a strict severity increase counts; an
// improvement (CRITICAL -> WARNING) is not new, but re-entering CRITICAL
// afterwards is. A first observation is new unless it is SAFE.
func (t *TransitionTracker) IsNew(ticker string, level types.RiskLevel) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	prev, seen := t.prev[ticker]
	if !seen {
		return level != types.RiskLevelSafe
	}
	return level.MoreSevereThan(prev)
}

// Previous returns the level recorded for ticker in the last completed
// tick, if any.
func (t *TransitionTracker) Previous(ticker string) (types.RiskLevel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	level, ok := t.prev[ticker]
	return level, ok
}

// Commit replaces the tracked state with this tick's levels. Tickers
// absent from the map are dropped, so closed positions cannot leave
// stale entries behind.
func (t *TransitionTracker) Commit(levels map[string]types.RiskLevel) {
	next := make(map[string]types.RiskLevel, len(levels))
	for ticker, level := range levels {
		next[ticker] = level
	}

	t.mu.Lock()
	t.prev = next
	t.mu.Unlock()
}

// Reset clears all tracked state. Called when monitoring restarts.
func (t *TransitionTracker) Reset() {
	t.mu.Lock()
	t.prev = make(map[string]types.RiskLevel)
	t.mu.Unlock()
}

// Len returns the number of tracked tickers.
func (t *TransitionTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.prev)
}

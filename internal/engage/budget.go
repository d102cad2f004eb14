package engage

import (
	"sync"

	"xnom/internal/metrics"
)

// HourlyBudget counts successful likes in the current hour window. The
// window is a fixed timer from the engine's first Start or spend, not the
// wall-clock hour, and the count is not persisted across restarts.
type HourlyBudget struct {
	mu   sync.Mutex
	used int
}

// Used returns the count in the current window.
func (b *HourlyBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Exhausted reports whether max actions were already spent. A max of zero
// or less allows nothing.
func (b *HourlyBudget) Exhausted(max int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used >= max
}

// Spend counts one successful action.
func (b *HourlyBudget) Spend() {
	b.mu.Lock()
	b.used++
	n := b.used
	b.mu.Unlock()
	metrics.HourlyBudgetUsed.Set(float64(n))
}

// Reset opens a new window and returns the previous count.
func (b *HourlyBudget) Reset() int {
	b.mu.Lock()
	prev := b.used
	b.used = 0
	b.mu.Unlock()
	metrics.HourlyBudgetUsed.Set(0)
	return prev
}

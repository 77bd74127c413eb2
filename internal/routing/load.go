package routing

import (
	"sync"

	"github.com/S-Corkum/agent-router/internal/models"
)

// LoadTracker counts in-flight requests per agent. The capacity bound is
// a scoring parameter, not a hard ceiling: an agent past capacity is
// penalized, never excluded. Counters are process-local; the selector
// increments only when it returns a successful selection, so routing
// errors never leak load.
type LoadTracker struct {
	mu              sync.RWMutex
	counts          map[string]int
	capacities      map[string]int
	defaultCapacity int
}

// NewLoadTracker creates a tracker with the given default capacity
func NewLoadTracker(defaultCapacity int) *LoadTracker {
	if defaultCapacity <= 0 {
		defaultCapacity = 10
	}
	return &LoadTracker{
		counts:          make(map[string]int),
		capacities:      make(map[string]int),
		defaultCapacity: defaultCapacity,
	}
}

// SetCapacity overrides the capacity for one agent (its max_workload)
func (t *LoadTracker) SetCapacity(agentID string, capacity int) {
	if capacity <= 0 {
		return
	}
	t.mu.Lock()
	t.capacities[agentID] = capacity
	t.mu.Unlock()
}

// Increment adds one in-flight request for the agent
func (t *LoadTracker) Increment(agentID string) {
	t.mu.Lock()
	t.counts[agentID]++
	t.mu.Unlock()
}

// Decrement removes one in-flight request, flooring at zero
func (t *LoadTracker) Decrement(agentID string) {
	t.mu.Lock()
	if t.counts[agentID] > 0 {
		t.counts[agentID]--
	}
	t.mu.Unlock()
}

// Count returns the current in-flight count for the agent
func (t *LoadTracker) Count(agentID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[agentID]
}

// Ratio returns count/capacity for the agent
func (t *LoadTracker) Ratio(agentID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	capacity := t.capacities[agentID]
	if capacity <= 0 {
		capacity = t.defaultCapacity
	}
	return float64(t.counts[agentID]) / float64(capacity)
}

// LoadLevel returns the qualitative band for the agent's current load
func (t *LoadTracker) LoadLevel(agentID string) models.LoadLevel {
	return models.LoadLevelForRatio(t.Ratio(agentID))
}

// Counts returns a snapshot of all non-zero counters
func (t *LoadTracker) Counts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int, len(t.counts))
	for id, n := range t.counts {
		if n > 0 {
			out[id] = n
		}
	}
	return out
}

package learning

import (
	"sync"

	"github.com/S-Corkum/agent-router/internal/models"
)

// outcomeRing is a fixed-capacity ring buffer over recorded outcomes.
// When full, the oldest entry is overwritten. It backs the in-memory
// learning window so the engine never scans the database on the ingest
// path.
type outcomeRing struct {
	mu    sync.RWMutex
	buf   []*models.TaskOutcome
	head  int
	count int
}

func newOutcomeRing(capacity int) *outcomeRing {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &outcomeRing{buf: make([]*models.TaskOutcome, capacity)}
}

// Push appends an outcome, evicting the oldest when full
func (r *outcomeRing) Push(outcome *models.TaskOutcome) {
	r.mu.Lock()
	r.buf[r.head] = outcome
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
}

// Len returns the number of buffered outcomes
func (r *outcomeRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Snapshot returns the buffered outcomes oldest-first
func (r *outcomeRing) Snapshot() []*models.TaskOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.TaskOutcome, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// ForAgent returns the buffered outcomes for one agent, oldest-first,
// optionally filtered to a task key.
func (r *outcomeRing) ForAgent(agentID, taskKey string) []*models.TaskOutcome {
	var out []*models.TaskOutcome
	for _, o := range r.Snapshot() {
		if o.AgentID != agentID {
			continue
		}
		if taskKey != "" && o.TaskKey() != taskKey {
			continue
		}
		out = append(out, o)
	}
	return out
}

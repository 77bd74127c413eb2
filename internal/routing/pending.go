package routing

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agent-router/internal/models"
)

// PendingRouting is the in-memory stub of an emitted selection awaiting
// its outcome report.
type PendingRouting struct {
	RoutingID  uuid.UUID
	AgentID    string
	TaskType   string
	Complexity models.Complexity
	EmittedAt  time.Time
}

// PendingRoutings tracks selections without a reported outcome. The
// selector adds exactly one entry per emitted selection and the recorder
// takes it exactly once, which makes outcome recording idempotent and
// keeps the load-tracker sum equal to the number of outcome-less
// routing records.
type PendingRoutings struct {
	mu      sync.Mutex
	entries map[uuid.UUID]PendingRouting
}

// NewPendingRoutings creates an empty table
func NewPendingRoutings() *PendingRoutings {
	return &PendingRoutings{entries: make(map[uuid.UUID]PendingRouting)}
}

// Add registers an emitted selection
func (p *PendingRoutings) Add(entry PendingRouting) {
	p.mu.Lock()
	p.entries[entry.RoutingID] = entry
	p.mu.Unlock()
}

// Take removes and returns the entry for a routing id. The second
// return is false when the id is unknown or already taken.
func (p *PendingRoutings) Take(routingID uuid.UUID) (PendingRouting, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[routingID]
	if ok {
		delete(p.entries, routingID)
	}
	return entry, ok
}

// Len returns the number of outcome-less selections
func (p *PendingRoutings) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// ExpireOlderThan drops orphaned entries emitted before the cutoff and
// returns them so the caller can release their load counts.
func (p *PendingRoutings) ExpireOlderThan(cutoff time.Time) []PendingRouting {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []PendingRouting
	for id, entry := range p.entries {
		if entry.EmittedAt.Before(cutoff) {
			expired = append(expired, entry)
			delete(p.entries, id)
		}
	}
	return expired
}

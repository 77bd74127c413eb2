package routing

import (
	"context"
	"sort"

	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
)

// Registry supplies candidate agents for a task. It exclusively owns
// agent rows; other components see agents only through candidate sets.
type Registry struct {
	store  Store
	logger observability.Logger
}

// NewRegistry creates a registry over the given store
func NewRegistry(store Store, logger observability.Logger) *Registry {
	if logger == nil {
		logger = observability.NewLogger("routing.registry")
	}
	return &Registry{store: store, logger: logger}
}

// Candidates returns the ordered candidate set for a task.
//
// Preference order: explicitly preferred agents (caller order) when any
// are active; otherwise active agents covering every required
// capability, ordered by descending capability priority then ascending
// creation time; otherwise all active agents.
func (r *Registry) Candidates(ctx context.Context, task *models.TaskContext) ([]*models.Agent, error) {
	active, err := r.store.ListActiveAgents(ctx)
	if err != nil {
		return nil, WrapError(KindPersistenceUnavailable, err, "failed to list active agents")
	}

	byID := make(map[string]*models.Agent, len(active))
	for _, a := range active {
		byID[a.ID] = a
	}

	if len(task.PreferredAgents) > 0 {
		var preferred []*models.Agent
		for _, id := range task.PreferredAgents {
			if a, ok := byID[id]; ok {
				preferred = append(preferred, a)
			}
		}
		if len(preferred) > 0 {
			return preferred, nil
		}
		// All preferred agents unavailable; fall through to the general
		// selection rules.
		r.logger.Debug("No preferred agents available, widening candidate set", map[string]interface{}{
			"task_type": task.TaskType,
			"preferred": task.PreferredAgents,
		})
	}

	if len(task.RequiredCapabilities) > 0 {
		var capable []*models.Agent
		for _, a := range active {
			if a.HasCapabilities(task.RequiredCapabilities) {
				capable = append(capable, a)
			}
		}
		sort.SliceStable(capable, func(i, j int) bool {
			pi, pj := capable[i].MaxCapabilityPriority(), capable[j].MaxCapabilityPriority()
			if pi != pj {
				return pi > pj
			}
			return capable[i].CreatedAt.Before(capable[j].CreatedAt)
		})
		if len(capable) == 0 {
			return nil, NewError(KindNoCapableAgent, "no active agent covers capabilities %v", task.RequiredCapabilities)
		}
		return capable, nil
	}

	if len(active) == 0 {
		return nil, NewError(KindNoCapableAgent, "no active agents registered")
	}
	return active, nil
}

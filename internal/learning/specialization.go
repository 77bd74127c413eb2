package learning

import (
	"context"
	"time"

	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
	"github.com/S-Corkum/agent-router/internal/routing"
)

const (
	specializationWindow = 30 * 24 * time.Hour

	// A group is a specialization when the agent beats its own overall
	// mean by at least this margin with a high absolute success rate.
	specializationMinMean      = 0.8
	specializationMinAdvantage = 0.15

	// minGroupSamples is the floor below which a group is too thin to
	// qualify as a specialization on its own. Thin groups still count
	// toward the agent's baseline.
	minGroupSamples = 5
)

// SpecializationDetector discovers (task_type, complexity) combinations
// on which an agent materially outperforms its own baseline. Discovered
// facts are persisted and mirrored into the engine's cache so the router
// can consult them without touching the store.
type SpecializationDetector struct {
	store   Store
	engine  *Engine
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewSpecializationDetector creates the detector
func NewSpecializationDetector(store Store, engine *Engine, logger observability.Logger, metrics observability.MetricsClient) *SpecializationDetector {
	if logger == nil {
		logger = observability.NewLogger("learning.specialization")
	}
	if metrics == nil {
		metrics = observability.NoopMetricsClient{}
	}
	return &SpecializationDetector{store: store, engine: engine, logger: logger, metrics: metrics}
}

// Scan runs one detection pass over the outcome history. Each pass is a
// full recomputation: specializations no longer supported by the data
// are deactivated, not left to decay.
func (d *SpecializationDetector) Scan(ctx context.Context) error {
	// Every group comes back regardless of size so the per-agent baseline
	// covers the agent's full window, not just its busy task keys.
	since := time.Now().UTC().Add(-specializationWindow)
	groups, err := d.store.OutcomeGroups(ctx, since, 1)
	if err != nil {
		return routing.WrapError(routing.KindPersistenceUnavailable, err, "failed to aggregate outcomes for specialization scan")
	}

	byAgent := make(map[string][]*models.OutcomeGroupStats)
	totals := make(map[string]int)
	means := make(map[string]float64)
	for i := range groups {
		g := &groups[i]
		byAgent[g.AgentID] = append(byAgent[g.AgentID], g)
		totals[g.AgentID] += g.SampleSize
		means[g.AgentID] += g.MeanSuccess * float64(g.SampleSize)
	}
	for agentID, total := range totals {
		means[agentID] /= float64(total)
	}

	discovered := 0
	for agentID, agentGroups := range byAgent {
		if totals[agentID] < d.engine.cfg.MinimumSampleSize {
			continue
		}

		keep := make([]string, 0, len(agentGroups))
		for _, g := range agentGroups {
			if g.SampleSize < minGroupSamples {
				continue
			}
			advantage := g.MeanSuccess - means[agentID]
			if g.MeanSuccess < specializationMinMean || advantage < specializationMinAdvantage {
				continue
			}

			spec := &models.AgentSpecialization{
				AgentID:               agentID,
				SpecializationType:    g.TaskKey(),
				TaskTypes:             []string{g.TaskType},
				ComplexityPreferences: []models.Complexity{g.Complexity},
				Confidence:            min1(2 * advantage),
				PerformanceAdvantage:  advantage,
				SampleSize:            g.SampleSize,
				IsActive:              true,
			}
			if err := d.store.UpsertSpecialization(ctx, spec); err != nil {
				return routing.WrapError(routing.KindPersistenceUnavailable, err, "failed to persist specialization for agent %s", agentID)
			}
			keep = append(keep, spec.SpecializationType)
			discovered++

			d.logger.Info("Specialization discovered", map[string]interface{}{
				"agent_id":    agentID,
				"task_key":    spec.SpecializationType,
				"advantage":   advantage,
				"confidence":  spec.Confidence,
				"sample_size": g.SampleSize,
			})
		}

		if err := d.store.DeactivateSpecializations(ctx, agentID, keep); err != nil {
			return routing.WrapError(routing.KindPersistenceUnavailable, err, "failed to prune specializations for agent %s", agentID)
		}
	}

	d.metrics.RecordGauge("learning.specializations.active", float64(discovered), nil)
	return d.engine.RefreshSpecializations(ctx)
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

package routing

import (
	"context"
	"math"
	"time"

	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
)

// pendingTTL bounds how long an emitted selection may wait for its
// outcome report before its load slot is reclaimed.
const pendingTTL = time.Hour

// Maintenance implements the periodic routing upkeep invoked by the
// background runner: score cache refresh, performance snapshots, and
// reclamation of load slots whose outcome report never arrived.
type Maintenance struct {
	store   Store
	scorer  *Scorer
	loads   *LoadTracker
	pending *PendingRoutings
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewMaintenance wires the maintenance jobs
func NewMaintenance(store Store, scorer *Scorer, loads *LoadTracker, pending *PendingRoutings, logger observability.Logger, metrics observability.MetricsClient) *Maintenance {
	if logger == nil {
		logger = observability.NewLogger("routing.maintenance")
	}
	if metrics == nil {
		metrics = observability.NoopMetricsClient{}
	}
	return &Maintenance{
		store:   store,
		scorer:  scorer,
		loads:   loads,
		pending: pending,
		logger:  logger,
		metrics: metrics,
	}
}

// RefreshScores recomputes and reseeds the cached aggregate for every
// active agent, and reclaims stale pending slots while it is at it.
func (m *Maintenance) RefreshScores(ctx context.Context) error {
	agents, err := m.store.ListActiveAgents(ctx)
	if err != nil {
		return WrapError(KindPersistenceUnavailable, err, "failed to list agents for score refresh")
	}

	for _, agent := range agents {
		if agent.MaxWorkload > 0 {
			m.loads.SetCapacity(agent.ID, agent.MaxWorkload)
		}
		if err := m.scorer.Refresh(ctx, agent.ID); err != nil {
			return err
		}
	}

	expired := m.pending.ExpireOlderThan(time.Now().UTC().Add(-pendingTTL))
	for _, entry := range expired {
		m.loads.Decrement(entry.AgentID)
		m.logger.Warn("Reclaimed load slot for abandoned routing", map[string]interface{}{
			"routing_id": entry.RoutingID.String(),
			"agent_id":   entry.AgentID,
			"emitted_at": entry.EmittedAt.Format(time.RFC3339),
		})
	}
	if len(expired) > 0 {
		m.metrics.IncrementCounter("routing.pending_expired", float64(len(expired)))
	}
	return nil
}

// CaptureSnapshots persists a point-in-time performance snapshot row per
// active agent.
func (m *Maintenance) CaptureSnapshots(ctx context.Context) error {
	agents, err := m.store.ListActiveAgents(ctx)
	if err != nil {
		return WrapError(KindPersistenceUnavailable, err, "failed to list agents for snapshots")
	}

	now := time.Now().UTC()
	for _, agent := range agents {
		score := m.scorer.BaseScore(ctx, agent.ID)
		snap := &models.PerformanceSnapshot{
			AgentID:                agent.ID,
			SnapshotTime:           now,
			Score:                  *score,
			ActiveRequests:         m.loads.Count(agent.ID),
			LoadLevel:              m.loads.LoadLevel(agent.ID),
			PredictiveFailureScore: m.predictiveFailure(ctx, agent.ID),
		}
		if err := m.store.InsertSnapshot(ctx, snap); err != nil {
			return WrapError(KindPersistenceUnavailable, err, "failed to insert snapshot for agent %s", agent.ID)
		}
	}
	return nil
}

// predictiveFailure estimates near-term failure likelihood from the
// recent failure rate and error density.
func (m *Maintenance) predictiveFailure(ctx context.Context, agentID string) float64 {
	agg := m.scorer.AgentAggregate(ctx, agentID)
	if agg.SampleCount == 0 {
		return 0
	}
	failureRate := 1 - agg.SuccessRate
	errorDensity := math.Min(1, agg.AvgErrorCount)
	return clamp01(0.7*failureRate + 0.3*errorDensity)
}

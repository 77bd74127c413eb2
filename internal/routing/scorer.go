package routing

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/S-Corkum/agent-router/internal/cache"
	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
)

// Scoring defaults used when an agent has no history in the window.
const (
	defaultSuccessRate = 0.8
	defaultExecutionMs = 1000.0
	defaultCostCents   = 10.0

	scoreCacheTTL = 5 * time.Minute

	historyWindow    = 7 * 24 * time.Hour
	historicalWindow = 30 * 24 * time.Hour
)

// Overall score weights. Load enters twice: as the 0.10-weighted
// sub-score and as the multiplicative penalty applied afterwards.
const (
	weightReliability     = 0.25
	weightPerformance     = 0.20
	weightCost            = 0.15
	weightCapabilityMatch = 0.20
	weightLoad            = 0.10
	weightHistorical      = 0.10
)

// Scorer computes the multi-dimensional PerformanceScore per candidate.
// It is a pure reader: agent aggregates are cached in an in-process LRU
// (L1) and Redis (L2) with a 5 minute TTL, invalidated on outcome
// writes. A store failure degrades to defaults, never aborts a request.
type Scorer struct {
	store     Store
	redis     cache.Cache
	loads     *LoadTracker
	logger    observability.Logger
	aggCache  *expirable.LRU[string, models.AgentAggregate]
	taskCache *expirable.LRU[string, models.TaskTypeAggregate]
}

// NewScorer creates a scorer. redis may be nil (L1-only caching).
func NewScorer(store Store, redis cache.Cache, loads *LoadTracker, logger observability.Logger) *Scorer {
	if logger == nil {
		logger = observability.NewLogger("routing.scorer")
	}
	return &Scorer{
		store:     store,
		redis:     redis,
		loads:     loads,
		logger:    logger,
		aggCache:  expirable.NewLRU[string, models.AgentAggregate](1024, nil, scoreCacheTTL),
		taskCache: expirable.NewLRU[string, models.TaskTypeAggregate](4096, nil, scoreCacheTTL),
	}
}

// Score computes the PerformanceScore for one candidate against a task.
func (s *Scorer) Score(ctx context.Context, agent *models.Agent, task *models.TaskContext) *models.PerformanceScore {
	agg := s.agentAggregate(ctx, agent.ID)

	successRate := defaultSuccessRate
	avgExecMs := defaultExecutionMs
	avgCost := defaultCostCents
	if agg.SampleCount > 0 {
		successRate = agg.SuccessRate
		avgExecMs = agg.AvgExecutionMs
		if agg.AvgCostCents > 0 {
			avgCost = agg.AvgCostCents
		}
	}

	score := &models.PerformanceScore{
		AgentID:         agent.ID,
		Reliability:     clamp01(successRate),
		Performance:     clamp01(1 - (avgExecMs-100)/5000),
		CostEfficiency:  clamp(20/avgCost, 0.1, 1.0),
		CapabilityMatch: 0.8,
		Load:            1.0,
		Historical:      s.historical(ctx, agent.ID, task),
		ComputedAt:      time.Now().UTC(),
	}

	overall := weightReliability*score.Reliability +
		weightPerformance*score.Performance +
		weightCost*score.CostEfficiency +
		weightCapabilityMatch*score.CapabilityMatch +
		weightLoad*score.Load +
		weightHistorical*score.Historical

	// Load penalty applies multiplicatively on top of the weighted sum.
	penalty := loadPenalty(s.loads.Ratio(agent.ID))
	score.Load = 1 - penalty
	overall *= 1 - penalty

	overall = applyTaskAdjustments(overall, score, task)
	score.Overall = clamp01(overall)
	return score
}

// BaseScore computes an agent-level score with no task adjustments, used
// by the snapshot and refresh loops and the health surface.
func (s *Scorer) BaseScore(ctx context.Context, agentID string) *models.PerformanceScore {
	agent := &models.Agent{ID: agentID}
	task := &models.TaskContext{Complexity: models.ComplexityModerate, Priority: 5}
	return s.Score(ctx, agent, task)
}

// Refresh recomputes an agent's aggregate and reseeds both cache levels.
// Used by the performance-refresh loop.
func (s *Scorer) Refresh(ctx context.Context, agentID string) error {
	agg, err := s.store.AgentAggregate(ctx, agentID, time.Now().UTC().Add(-historyWindow))
	if err != nil {
		return WrapError(KindPersistenceUnavailable, err, "failed to refresh aggregate for agent %s", agentID)
	}
	s.aggCache.Add(agentID, *agg)
	if s.redis != nil {
		if err := s.redis.Set(ctx, cache.ScoreKey(agentID), agg, scoreCacheTTL); err != nil {
			s.logger.Warn("Failed to seed score cache", map[string]interface{}{
				"agent_id": agentID,
				"error":    err.Error(),
			})
		}
	}
	return nil
}

// Invalidate drops the cached aggregate for an agent. Called by the
// outcome recorder after every write.
func (s *Scorer) Invalidate(ctx context.Context, agentID string) {
	s.aggCache.Remove(agentID)
	if s.redis != nil {
		if err := s.redis.Delete(ctx, cache.ScoreKey(agentID)); err != nil {
			s.logger.Warn("Failed to invalidate score cache", map[string]interface{}{
				"agent_id": agentID,
				"error":    err.Error(),
			})
		}
	}
}

// AgentAggregate exposes the cached rollup for the health surface.
func (s *Scorer) AgentAggregate(ctx context.Context, agentID string) models.AgentAggregate {
	return s.agentAggregate(ctx, agentID)
}

func (s *Scorer) agentAggregate(ctx context.Context, agentID string) models.AgentAggregate {
	if agg, ok := s.aggCache.Get(agentID); ok {
		return agg
	}

	if s.redis != nil {
		var agg models.AgentAggregate
		if err := s.redis.Get(ctx, cache.ScoreKey(agentID), &agg); err == nil {
			s.aggCache.Add(agentID, agg)
			return agg
		}
	}

	agg, err := s.store.AgentAggregate(ctx, agentID, time.Now().UTC().Add(-historyWindow))
	if err != nil {
		s.logger.Warn("Aggregate query failed, scoring with defaults", map[string]interface{}{
			"agent_id": agentID,
			"error":    err.Error(),
		})
		return models.AgentAggregate{AgentID: agentID}
	}

	s.aggCache.Add(agentID, *agg)
	if s.redis != nil {
		_ = s.redis.Set(ctx, cache.ScoreKey(agentID), agg, scoreCacheTTL)
	}
	return *agg
}

func (s *Scorer) historical(ctx context.Context, agentID string, task *models.TaskContext) float64 {
	if task.TaskType == "" {
		return defaultSuccessRate
	}

	key := agentID + ":" + task.TaskKey()
	if agg, ok := s.taskCache.Get(key); ok {
		if agg.SampleCount == 0 {
			return defaultSuccessRate
		}
		return clamp01(agg.SuccessRate)
	}

	agg, err := s.store.TaskTypeAggregate(ctx, agentID, task.TaskType, task.Complexity, time.Now().UTC().Add(-historicalWindow))
	if err != nil {
		s.logger.Warn("Historical query failed, using default", map[string]interface{}{
			"agent_id": agentID,
			"task_key": task.TaskKey(),
			"error":    err.Error(),
		})
		return defaultSuccessRate
	}
	s.taskCache.Add(key, *agg)
	if agg.SampleCount == 0 {
		return defaultSuccessRate
	}
	return clamp01(agg.SuccessRate)
}

// loadPenalty maps a load ratio to the multiplicative penalty band.
func loadPenalty(ratio float64) float64 {
	switch {
	case ratio < 0.3:
		return 0
	case ratio < 0.7:
		return 0.1
	case ratio < 0.9:
		return 0.3
	default:
		return 0.7
	}
}

// applyTaskAdjustments reshapes the overall score for the task's
// priority, complexity, and deadline. Order matters and follows the
// scoring pipeline: priority, then complexity, then deadline.
func applyTaskAdjustments(overall float64, score *models.PerformanceScore, task *models.TaskContext) float64 {
	if task.Priority >= 8 && score.Reliability >= 0.9 {
		overall *= 1.1
	}
	if task.Priority > 0 && task.Priority <= 3 {
		overall = 0.7*overall + 0.3*score.CostEfficiency
	}

	switch task.Complexity {
	case models.ComplexityCritical:
		overall = 0.6*score.Reliability + 0.4*overall
	case models.ComplexitySimple:
		overall = 0.7*overall + 0.3*score.CostEfficiency
	}

	if task.Deadline != nil && time.Until(*task.Deadline) <= 5*time.Minute {
		overall = 0.6*overall + 0.4*score.Performance
	}
	return overall
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

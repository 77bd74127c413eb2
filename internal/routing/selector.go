package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
)

const estimateWindow = 14 * 24 * time.Hour

// Selector ranks scored candidates and emits the routing decision. It
// persists the RoutingRecord before returning so outcome reports can
// join on the routing id, and increments the load tracker only when a
// selection is actually returned.
type Selector struct {
	registry *Registry
	breaker  *CircuitBreaker
	scorer   *Scorer
	loads    *LoadTracker
	pending  *PendingRoutings
	store    Store
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewSelector wires the selection pipeline
func NewSelector(registry *Registry, breaker *CircuitBreaker, scorer *Scorer, loads *LoadTracker, pending *PendingRoutings, store Store, logger observability.Logger, metrics observability.MetricsClient) *Selector {
	if logger == nil {
		logger = observability.NewLogger("routing.selector")
	}
	if metrics == nil {
		metrics = observability.NoopMetricsClient{}
	}
	return &Selector{
		registry: registry,
		breaker:  breaker,
		scorer:   scorer,
		loads:    loads,
		pending:  pending,
		store:    store,
		logger:   logger,
		metrics:  metrics,
	}
}

// RankedCandidate pairs an eligible agent with its computed score.
// Rankings are ordered best-first.
type RankedCandidate struct {
	Agent *models.Agent
	Score *models.PerformanceScore
}

// Select runs the full pipeline: candidates -> breaker filter -> score ->
// rank -> emit. The returned selection is immutable.
func (s *Selector) Select(ctx context.Context, task *models.TaskContext) (*models.AgentSelection, error) {
	started := time.Now()
	ranked, err := s.Rank(ctx, task)
	if err != nil {
		return nil, err
	}
	return s.Commit(ctx, task, ranked, 0, started)
}

// Rank enumerates candidates, applies the breaker filter, and returns
// the scored candidates best-first. No state is mutated: callers that
// reorder the pick (the learning-aware router) commit separately.
func (s *Selector) Rank(ctx context.Context, task *models.TaskContext) ([]RankedCandidate, error) {
	candidates, err := s.registry.Candidates(ctx, task)
	if err != nil {
		return nil, err
	}

	eligible := s.breaker.Filter(ctx, candidates)
	if len(eligible) == 0 {
		return nil, NewError(KindAllBreakersOpen, "all %d candidates have open circuit breakers", len(candidates))
	}

	ranked := make([]RankedCandidate, 0, len(eligible))
	for _, agent := range eligible {
		ranked = append(ranked, RankedCandidate{Agent: agent, Score: s.scorer.Score(ctx, agent, task)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.Overall > ranked[j].Score.Overall
	})
	return ranked, nil
}

// Commit emits the selection of ranked[pickIndex]: it persists the
// routing record, takes the load slot, and registers the pending entry.
// Fallbacks are the next best candidates after the pick, in rank order.
func (s *Selector) Commit(ctx context.Context, task *models.TaskContext, ranked []RankedCandidate, pickIndex int, started time.Time) (*models.AgentSelection, error) {
	if pickIndex < 0 || pickIndex >= len(ranked) {
		return nil, NewError(KindInternalError, "pick index %d out of range for %d candidates", pickIndex, len(ranked))
	}
	pick := ranked[pickIndex]

	fallbacks := make([]string, 0, 3)
	for i, rc := range ranked {
		if i == pickIndex || len(fallbacks) == 3 {
			continue
		}
		fallbacks = append(fallbacks, rc.Agent.ID)
	}

	loadCount := s.loads.Count(pick.Agent.ID)
	selection := &models.AgentSelection{
		RoutingID:      uuid.New(),
		AgentID:        pick.Agent.ID,
		AgentName:      pick.Agent.Name,
		Confidence:     pick.Score.Overall,
		Reason:         s.buildReason(pick.Score, task),
		FallbackAgents: fallbacks,
		Metadata: models.SelectionMetadata{
			Score:      *pick.Score,
			LoadLevel:  s.loads.LoadLevel(pick.Agent.ID),
			LoadCount:  loadCount,
			SelectedAt: time.Now().UTC(),
		},
	}
	selection.EstimatedCompletionSeconds = s.estimateCompletion(ctx, pick.Agent.ID, task, loadCount)
	selection.EstimatedCostCents = s.estimateCost(ctx, pick.Agent.ID, task)

	record := &models.RoutingRecord{
		RoutingID:      selection.RoutingID,
		AgentID:        pick.Agent.ID,
		TaskType:       task.TaskType,
		Complexity:     task.Complexity,
		SelectionScore: pick.Score.Overall,
		RoutingTimeMs:  float64(time.Since(started).Microseconds()) / 1000,
		TaskMetadata:   task.Metadata,
	}
	if err := s.store.InsertRoutingRecord(ctx, record); err != nil {
		return nil, WrapError(KindPersistenceUnavailable, err, "failed to persist routing record")
	}

	// Load is taken only after the record is durable: a routing error
	// must never leak an in-flight count.
	s.loads.Increment(pick.Agent.ID)
	s.pending.Add(PendingRouting{
		RoutingID:  selection.RoutingID,
		AgentID:    pick.Agent.ID,
		TaskType:   task.TaskType,
		Complexity: task.Complexity,
		EmittedAt:  selection.Metadata.SelectedAt,
	})

	s.metrics.IncrementCounterWithLabels("routing.selections", 1, map[string]string{
		"agent_id":   pick.Agent.ID,
		"complexity": string(task.Complexity),
	})
	s.metrics.RecordDuration("routing.selection_time", time.Since(started))
	s.logger.Debug("Agent selected", map[string]interface{}{
		"routing_id": selection.RoutingID.String(),
		"agent_id":   pick.Agent.ID,
		"task_type":  task.TaskType,
		"score":      pick.Score.Overall,
	})
	return selection, nil
}

func (s *Selector) estimateCompletion(ctx context.Context, agentID string, task *models.TaskContext, loadCount int) float64 {
	base := task.Complexity.DefaultCompletionSeconds()
	agg, err := s.store.TaskTypeAggregate(ctx, agentID, task.TaskType, task.Complexity, time.Now().UTC().Add(-estimateWindow))
	if err == nil && agg.SampleCount > 0 && agg.AvgCompletionSeconds > 0 {
		base = agg.AvgCompletionSeconds
	}
	return base * (1 + 0.1*float64(loadCount))
}

func (s *Selector) estimateCost(ctx context.Context, agentID string, task *models.TaskContext) int {
	agg, err := s.store.TaskTypeAggregate(ctx, agentID, task.TaskType, task.Complexity, time.Now().UTC().Add(-estimateWindow))
	if err == nil && agg.SampleCount > 0 && agg.AvgCostCents > 0 {
		return int(agg.AvgCostCents + 0.5)
	}
	return task.Complexity.DefaultCostCents()
}

// buildReason assembles a human-readable selection rationale from up to
// three of the strongest signals.
func (s *Selector) buildReason(score *models.PerformanceScore, task *models.TaskContext) string {
	var reasons []string
	if score.Reliability >= 0.9 {
		reasons = append(reasons, fmt.Sprintf("high reliability (%.0f%%)", score.Reliability*100))
	}
	if score.Performance >= 0.9 {
		reasons = append(reasons, "excellent response time")
	}
	if score.CostEfficiency >= 0.8 {
		reasons = append(reasons, "cost efficient")
	}
	if score.Load >= 0.99 {
		reasons = append(reasons, "low current load")
	}
	if score.Historical >= 0.85 {
		reasons = append(reasons, fmt.Sprintf("strong performance on similar %s tasks", task.Complexity))
	}
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	if len(reasons) == 0 {
		return "Selected for best available option"
	}
	return "Selected for " + strings.Join(reasons, ", ")
}

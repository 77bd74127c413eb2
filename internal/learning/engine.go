// Package learning implements the adaptive layer over the router: the
// incremental weight matrix, the ensemble weight optimizer,
// specialization discovery, and success prediction.
package learning

import (
	"context"
	"sync"

	"github.com/S-Corkum/agent-router/internal/config"
	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
	"github.com/S-Corkum/agent-router/internal/repository"
)

const (
	ringCapacity = 10_000

	// defaultWeight is the neutral routing weight for an unseen
	// (agent, task_key) pair.
	defaultWeight = 0.5

	// completionReference scales the learning signal: a completion at
	// this many seconds contributes a neutral time factor of 1.0.
	completionReference = 30.0
)

// Engine holds the live learning state: the routing weight matrix, the
// outcome ring buffer, and the cached specialization snapshot. Ingest is
// called synchronously from the outcome recorder; everything it does is
// in-memory, so it never blocks on I/O.
type Engine struct {
	store   Store
	cfg     config.LearningConfig
	logger  observability.Logger
	metrics observability.MetricsClient

	ring *outcomeRing

	mu      sync.RWMutex
	weights models.WeightMatrix
	specs   map[string][]*models.AgentSpecialization
	seen    map[string]int
}

// NewEngine creates the learning engine with an empty weight matrix
func NewEngine(store Store, cfg config.LearningConfig, logger observability.Logger, metrics observability.MetricsClient) *Engine {
	if logger == nil {
		logger = observability.NewLogger("learning.engine")
	}
	if metrics == nil {
		metrics = observability.NoopMetricsClient{}
	}
	return &Engine{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		ring:    newOutcomeRing(ringCapacity),
		weights: make(models.WeightMatrix),
		specs:   make(map[string][]*models.AgentSpecialization),
		seen:    make(map[string]int),
	}
}

// LoadActive seeds the weight matrix from the active optimization
// snapshot and the specialization cache from the store. Called once at
// startup; missing rows just mean a cold start.
func (e *Engine) LoadActive(ctx context.Context) error {
	opt, err := e.store.GetActiveOptimization(ctx)
	if err != nil && err != repository.ErrNotFound {
		return err
	}
	if opt != nil {
		e.mu.Lock()
		e.weights = opt.AgentWeights.Clone()
		e.mu.Unlock()
		e.logger.Info("Loaded active optimization", map[string]interface{}{
			"version":     opt.OptimizationVersion,
			"sample_size": opt.SampleSize,
		})
	}
	return e.RefreshSpecializations(ctx)
}

// Ingest folds one recorded outcome into the live weight matrix and the
// ring buffer. The learning signal rewards fast successes: a success
// finishing well under the reference completion time can exceed 1.0 and
// pull the weight above the raw success score. Only the resulting weight
// is clamped, not the signal.
func (e *Engine) Ingest(outcome *models.TaskOutcome) {
	if !e.cfg.Enabled {
		return
	}
	e.ring.Push(outcome)

	signal := outcome.SuccessScore * (2.0 - outcome.CompletionSeconds/completionReference)

	key := outcome.TaskKey()
	e.mu.Lock()
	row, ok := e.weights[outcome.AgentID]
	if !ok {
		row = make(map[string]float64)
		e.weights[outcome.AgentID] = row
	}
	current, ok := row[key]
	if !ok {
		current = defaultWeight
	}
	updated := clamp01(current + e.cfg.LearningRate*(signal-current))
	row[key] = updated
	e.seen[outcome.AgentID]++
	total := e.seen[outcome.AgentID]
	e.mu.Unlock()

	e.metrics.RecordGauge("learning.weight", updated, map[string]string{
		"agent_id": outcome.AgentID,
		"task_key": key,
	})

	if total >= e.cfg.MinimumSampleSize {
		e.inlineSpecializationCheck(outcome)
	}
}

// inlineSpecializationCheck re-evaluates the ingested outcome's task
// group against the agent's baseline once the agent has enough history,
// so a hot specialization surfaces between periodic scans. Only the
// in-memory cache is touched; the scan owns persistence.
func (e *Engine) inlineSpecializationCheck(outcome *models.TaskOutcome) {
	key := outcome.TaskKey()
	history := e.ring.ForAgent(outcome.AgentID, "")
	if len(history) < e.cfg.MinimumSampleSize {
		return
	}

	baseline := 0.0
	groupSum, groupN := 0.0, 0
	for _, o := range history {
		baseline += o.SuccessScore
		if o.TaskKey() == key {
			groupSum += o.SuccessScore
			groupN++
		}
	}
	baseline /= float64(len(history))
	if groupN < minGroupSamples {
		return
	}
	groupMean := groupSum / float64(groupN)
	advantage := groupMean - baseline

	e.mu.Lock()
	defer e.mu.Unlock()

	specs := e.specs[outcome.AgentID]
	idx := -1
	for i, s := range specs {
		if s.SpecializationType == key {
			idx = i
			break
		}
	}

	if groupMean < specializationMinMean || advantage < specializationMinAdvantage {
		if idx >= 0 {
			e.specs[outcome.AgentID] = append(specs[:idx], specs[idx+1:]...)
		}
		return
	}

	spec := &models.AgentSpecialization{
		AgentID:               outcome.AgentID,
		SpecializationType:    key,
		TaskTypes:             []string{outcome.TaskType},
		ComplexityPreferences: []models.Complexity{outcome.Complexity},
		Confidence:            min1(2 * advantage),
		PerformanceAdvantage:  advantage,
		SampleSize:            groupN,
		IsActive:              true,
	}
	if idx >= 0 {
		specs[idx] = spec
	} else {
		e.specs[outcome.AgentID] = append(specs, spec)
	}
}

// Weight returns the routing weight for (agent, task key), reporting
// whether the pair has ever been learned.
func (e *Engine) Weight(agentID, taskKey string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights.Get(agentID, taskKey)
}

// Weights returns a snapshot of the full matrix
func (e *Engine) Weights() models.WeightMatrix {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights.Clone()
}

// SetWeights swaps in a newly optimized matrix
func (e *Engine) SetWeights(w models.WeightMatrix) {
	e.mu.Lock()
	e.weights = w.Clone()
	e.mu.Unlock()
}

// BufferedOutcomes reports the ring buffer depth
func (e *Engine) BufferedOutcomes() int {
	return e.ring.Len()
}

// RefreshSpecializations reloads the active specialization cache from
// the store. Called at startup and after every specialization scan.
func (e *Engine) RefreshSpecializations(ctx context.Context) error {
	specs, err := e.store.ListActiveSpecializations(ctx)
	if err != nil {
		return err
	}
	byAgent := make(map[string][]*models.AgentSpecialization)
	for _, spec := range specs {
		byAgent[spec.AgentID] = append(byAgent[spec.AgentID], spec)
	}
	e.mu.Lock()
	e.specs = byAgent
	e.mu.Unlock()
	return nil
}

// SpecializationFor returns the agent's active specialization covering
// the given task, or nil.
func (e *Engine) SpecializationFor(agentID, taskType string, complexity models.Complexity) *models.AgentSpecialization {
	key := models.TaskKey(taskType, complexity)
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, spec := range e.specs[agentID] {
		if spec.SpecializationType == key {
			return spec
		}
	}
	return nil
}

// Specializations returns the cached active specializations for an agent
func (e *Engine) Specializations(agentID string) []*models.AgentSpecialization {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.specs[agentID]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

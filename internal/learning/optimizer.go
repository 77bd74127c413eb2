package learning

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
	"github.com/S-Corkum/agent-router/internal/routing"
)

const (
	optimizationWindow   = 30 * 24 * time.Hour
	validationPeriodDays = 7
)

// Optimizer recomputes the routing weight matrix from aggregated outcome
// history using an ensemble of three estimators per (agent, task_key)
// group, then persists and activates the result atomically. Runs are
// rate limited to one per minute; a run inside the window returns the
// previous result without recomputing.
type Optimizer struct {
	store   Store
	engine  *Engine
	logger  observability.Logger
	metrics observability.MetricsClient

	limiter *rate.Limiter

	mu   sync.Mutex
	last *models.RoutingOptimization
}

// NewOptimizer creates the optimizer over the given engine
func NewOptimizer(store Store, engine *Engine, logger observability.Logger, metrics observability.MetricsClient) *Optimizer {
	if logger == nil {
		logger = observability.NewLogger("learning.optimizer")
	}
	if metrics == nil {
		metrics = observability.NoopMetricsClient{}
	}
	return &Optimizer{
		store:   store,
		engine:  engine,
		logger:  logger,
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
}

// Run executes one optimization cycle. Underflow (not enough grouped
// history) is a typed error, not a degraded run: the active matrix stays
// in place untouched.
func (o *Optimizer) Run(ctx context.Context) (*models.RoutingOptimization, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.limiter.Allow() {
		if o.last != nil {
			return o.last, nil
		}
		if opt, err := o.store.GetActiveOptimization(ctx); err == nil {
			o.last = opt
			return opt, nil
		}
		return nil, routing.NewError(routing.KindOptimizationUnderflow, "no optimization available inside rate window")
	}

	since := time.Now().UTC().Add(-optimizationWindow)
	groups, err := o.store.OutcomeGroups(ctx, since, o.engine.cfg.MinimumSampleSize)
	if err != nil {
		return nil, routing.WrapError(routing.KindPersistenceUnavailable, err, "failed to aggregate outcomes for optimization")
	}

	totalSamples := 0
	for _, g := range groups {
		totalSamples += g.SampleSize
	}
	if len(groups) == 0 || totalSamples < o.engine.cfg.MinimumSampleSize {
		return nil, routing.NewError(routing.KindOptimizationUnderflow,
			"insufficient outcome history: %d samples in %d groups, need %d",
			totalSamples, len(groups), o.engine.cfg.MinimumSampleSize)
	}

	globalMean := 0.0
	for _, g := range groups {
		globalMean += g.MeanSuccess * float64(g.SampleSize)
	}
	globalMean /= float64(totalSamples)

	previous := o.engine.Weights()
	matrix := make(models.WeightMatrix)
	for i := range groups {
		g := &groups[i]
		weight := ensembleWeight(g, globalMean)
		row, ok := matrix[g.AgentID]
		if !ok {
			row = make(map[string]float64)
			matrix[g.AgentID] = row
		}
		row[g.TaskKey()] = weight
	}

	improvement := matrixImprovement(previous, matrix, groups)
	opt := &models.RoutingOptimization{
		OptimizationVersion:    fmt.Sprintf("opt-%s", time.Now().UTC().Format("20060102-150405")),
		AgentWeights:           matrix,
		PerformanceImprovement: improvement,
		ConfidenceLower:        improvement * 0.7,
		ConfidenceUpper:        improvement * 1.3,
		OptimizationMethod:     "ensemble",
		SampleSize:             totalSamples,
		ValidationPeriodDays:   validationPeriodDays,
	}
	if err := o.store.InsertOptimization(ctx, opt); err != nil {
		return nil, routing.WrapError(routing.KindPersistenceUnavailable, err, "failed to persist optimization")
	}

	o.engine.SetWeights(matrix)
	o.last = opt

	o.metrics.IncrementCounter("learning.optimizations", 1)
	if err := o.store.InsertLearningMetric(ctx, &models.LearningMetric{
		Name:  "optimization_improvement",
		Value: improvement,
		Metadata: map[string]interface{}{
			"version":     opt.OptimizationVersion,
			"sample_size": totalSamples,
			"groups":      len(groups),
		},
	}); err != nil {
		o.logger.Warn("Failed to record optimization metric", map[string]interface{}{
			"error": err.Error(),
		})
	}

	o.logger.Info("Optimization applied", map[string]interface{}{
		"version":     opt.OptimizationVersion,
		"sample_size": totalSamples,
		"groups":      len(groups),
		"improvement": improvement,
	})
	return opt, nil
}

// Last returns the most recent optimization produced by this process
func (o *Optimizer) Last() *models.RoutingOptimization {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// ensembleWeight blends three estimators for one outcome group: a
// Bayesian posterior mean shrunk by sample uncertainty, a
// performance-advantage estimate shaped by completion time and
// satisfaction, and a variance-penalized risk estimate.
func ensembleWeight(g *models.OutcomeGroupStats, globalMean float64) float64 {
	alpha := 1.0 + float64(g.Successes)
	beta := 1.0 + float64(g.Failures)
	bayesian := (alpha / (alpha + beta)) * (1 - 1/(alpha+beta))

	advantage := g.MeanSuccess - globalMean
	timeFactor := math.Max(0.1, 1-(g.AvgCompletionSeconds-5)/30)
	satisfactionFactor := g.AvgSatisfaction / 5
	performance := clamp01((0.5 + advantage*2) * timeFactor * satisfactionFactor)

	riskAdjusted := clamp01((g.MeanSuccess - g.StdSuccess/2) * math.Min(1, float64(g.SampleSize)/50))

	return clamp01((bayesian + performance + riskAdjusted) / 3)
}

// matrixImprovement measures the expected weight improvement of the new
// matrix against the previous one, weighting each group's delta by its
// sample size so heavily exercised pairs dominate. Missing prior entries
// count as neutral.
func matrixImprovement(previous, next models.WeightMatrix, groups []models.OutcomeGroupStats) float64 {
	total := 0.0
	samples := 0
	for i := range groups {
		g := &groups[i]
		weight, ok := next.Get(g.AgentID, g.TaskKey())
		if !ok {
			continue
		}
		prior, ok := previous.Get(g.AgentID, g.TaskKey())
		if !ok {
			prior = defaultWeight
		}
		total += (weight - prior) * float64(g.SampleSize)
		samples += g.SampleSize
	}
	if samples == 0 {
		return 0
	}
	return total / float64(samples)
}

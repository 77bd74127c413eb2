package learning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
	"github.com/S-Corkum/agent-router/internal/routing"
)

func newTestOptimizer(store Store, engine *Engine) *Optimizer {
	return NewOptimizer(store, engine, observability.NoopLogger{}, observability.NoopMetricsClient{})
}

func optimizerGroups() []models.OutcomeGroupStats {
	return []models.OutcomeGroupStats{
		{
			AgentID: "a", TaskType: "code_review", Complexity: models.ComplexityModerate,
			SampleSize: 60, Successes: 54, Failures: 6,
			MeanSuccess: 0.9, StdSuccess: 0.1, AvgCompletionSeconds: 5, AvgSatisfaction: 5,
		},
		{
			AgentID: "b", TaskType: "code_review", Complexity: models.ComplexityModerate,
			SampleSize: 40, Successes: 20, Failures: 20,
			MeanSuccess: 0.5, StdSuccess: 0.2, AvgCompletionSeconds: 20, AvgSatisfaction: 4,
		},
	}
}

func TestRunProducesActiveOptimization(t *testing.T) {
	store := &mockStore{}
	store.On("OutcomeGroups", mock.Anything, mock.Anything, testLearningConfig().MinimumSampleSize).
		Return(optimizerGroups(), nil).Once()
	store.On("InsertOptimization", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("InsertLearningMetric", mock.Anything, mock.Anything).Return(nil).Once()

	engine := newTestEngine(store)
	opt, err := newTestOptimizer(store, engine).Run(context.Background())
	require.NoError(t, err)

	assert.Regexp(t, `^opt-\d{8}-\d{6}$`, opt.OptimizationVersion)
	assert.Equal(t, "ensemble", opt.OptimizationMethod)
	assert.Equal(t, 100, opt.SampleSize)
	assert.Equal(t, validationPeriodDays, opt.ValidationPeriodDays)
	assert.InDelta(t, opt.PerformanceImprovement*0.7, opt.ConfidenceLower, 1e-9)
	assert.InDelta(t, opt.PerformanceImprovement*1.3, opt.ConfidenceUpper, 1e-9)

	// The stronger group ends up with the higher weight, and the engine
	// adopts the new matrix.
	key := models.TaskKey("code_review", models.ComplexityModerate)
	wa, _ := opt.AgentWeights.Get("a", key)
	wb, _ := opt.AgentWeights.Get("b", key)
	assert.Greater(t, wa, wb)

	engineWeight, ok := engine.Weight("a", key)
	require.True(t, ok)
	assert.Equal(t, wa, engineWeight)
	store.AssertExpectations(t)
}

func TestRunUnderflowWithoutHistory(t *testing.T) {
	store := &mockStore{}
	store.On("OutcomeGroups", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.OutcomeGroupStats{}, nil)

	_, err := newTestOptimizer(store, newTestEngine(store)).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, routing.KindOptimizationUnderflow, routing.KindOf(err))
}

func TestRunUnderflowBelowMinimumSamples(t *testing.T) {
	store := &mockStore{}
	store.On("OutcomeGroups", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.OutcomeGroupStats{
			{AgentID: "a", TaskType: "deploy", Complexity: models.ComplexitySimple, SampleSize: 30, MeanSuccess: 0.9},
		}, nil)

	_, err := newTestOptimizer(store, newTestEngine(store)).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, routing.KindOptimizationUnderflow, routing.KindOf(err))
}

func TestRunIsRateLimited(t *testing.T) {
	store := &mockStore{}
	store.On("OutcomeGroups", mock.Anything, mock.Anything, mock.Anything).
		Return(optimizerGroups(), nil)
	store.On("InsertOptimization", mock.Anything, mock.Anything).Return(nil)
	store.On("InsertLearningMetric", mock.Anything, mock.Anything).Return(nil)

	optimizer := newTestOptimizer(store, newTestEngine(store))
	first, err := optimizer.Run(context.Background())
	require.NoError(t, err)

	// Inside the rate window the previous result comes back without a
	// recomputation.
	second, err := optimizer.Run(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	store.AssertNumberOfCalls(t, "OutcomeGroups", 1)
}

func TestRunRateLimitedFallsBackToStoredActive(t *testing.T) {
	store := &mockStore{}
	store.On("OutcomeGroups", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.OutcomeGroupStats{}, nil).Once()
	active := &models.RoutingOptimization{OptimizationVersion: "opt-20260801-120000"}
	store.On("GetActiveOptimization", mock.Anything).Return(active, nil).Once()

	optimizer := newTestOptimizer(store, newTestEngine(store))

	// First call burns the rate token and underflows.
	_, err := optimizer.Run(context.Background())
	require.Error(t, err)

	got, err := optimizer.Run(context.Background())
	require.NoError(t, err)
	assert.Same(t, active, got)
}

func TestEnsembleWeightBlendsEstimators(t *testing.T) {
	g := &models.OutcomeGroupStats{
		SampleSize: 60, Successes: 54, Failures: 6,
		MeanSuccess: 0.9, StdSuccess: 0.1, AvgCompletionSeconds: 5, AvgSatisfaction: 5,
	}

	bayesian := (55.0 / 62.0) * (1 - 1.0/62.0)
	performance := 0.5 + (0.9-0.74)*2 // time and satisfaction factors are 1 here
	risk := 0.9 - 0.1/2

	expected := (bayesian + performance + risk) / 3
	assert.InDelta(t, expected, ensembleWeight(g, 0.74), 1e-9)
}

func TestEnsembleWeightPenalizesThinSlowGroups(t *testing.T) {
	strong := &models.OutcomeGroupStats{
		SampleSize: 80, Successes: 72, Failures: 8,
		MeanSuccess: 0.9, StdSuccess: 0.05, AvgCompletionSeconds: 4, AvgSatisfaction: 4.5,
	}
	weak := &models.OutcomeGroupStats{
		SampleSize: 6, Successes: 3, Failures: 3,
		MeanSuccess: 0.5, StdSuccess: 0.4, AvgCompletionSeconds: 60, AvgSatisfaction: 2,
	}

	assert.Greater(t, ensembleWeight(strong, 0.7), ensembleWeight(weak, 0.7))
}

func TestMatrixImprovementWeightsBySampleSize(t *testing.T) {
	groups := []models.OutcomeGroupStats{
		{AgentID: "a", TaskType: "code_review", Complexity: models.ComplexityModerate, SampleSize: 60},
		{AgentID: "b", TaskType: "code_review", Complexity: models.ComplexityModerate, SampleSize: 40},
	}
	key := models.TaskKey("code_review", models.ComplexityModerate)
	next := models.WeightMatrix{
		"a": {key: 0.7},
		"b": {key: 0.6},
	}

	// No prior entries: deltas measure against the 0.5 default, weighted
	// 60/40 by sample size: (0.2*60 + 0.1*40) / 100.
	assert.InDelta(t, 0.16, matrixImprovement(models.WeightMatrix{}, next, groups), 1e-9)

	previous := models.WeightMatrix{"a": {key: 0.8}}
	// a: -0.1 over 60 samples, b: +0.1 over 40 samples.
	assert.InDelta(t, -0.02, matrixImprovement(previous, next, groups), 1e-9)

	assert.Zero(t, matrixImprovement(previous, models.WeightMatrix{}, groups))
	assert.Zero(t, matrixImprovement(previous, next, nil))
}

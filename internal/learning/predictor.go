package learning

import (
	"context"
	"math"
	"time"

	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
	"github.com/S-Corkum/agent-router/internal/repository"
	"github.com/S-Corkum/agent-router/internal/routing"
)

const (
	predictionWindow     = 30 * 24 * time.Hour
	predictionMinSamples = 5
	predictionHistoryCap = 200

	// baselineRate is the predicted success rate used before an
	// (agent, task_key) pair has enough history.
	baselineRate = 0.7

	validationLookback = 7 * 24 * time.Hour
	validationBatch    = 100
)

// Predictor forecasts the success probability of routing a task to an
// agent. Every emitted prediction is persisted and later calibrated
// against the first matching outcome.
type Predictor struct {
	store   Store
	engine  *Engine
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewPredictor creates the predictor over the given engine
func NewPredictor(store Store, engine *Engine, logger observability.Logger, metrics observability.MetricsClient) *Predictor {
	if logger == nil {
		logger = observability.NewLogger("learning.predictor")
	}
	if metrics == nil {
		metrics = observability.NoopMetricsClient{}
	}
	return &Predictor{store: store, engine: engine, logger: logger, metrics: metrics}
}

// Predict forecasts the success rate of routing the given task to the
// agent and persists the prediction for calibration. With thin history
// it falls back to a baseline blended with the learned weight and tags
// the prediction accordingly; with history, the forecast is adjusted
// for the task's priority and deadline pressure.
func (p *Predictor) Predict(ctx context.Context, agentID string, task *models.TaskContext) (*models.SuccessPrediction, error) {
	key := task.TaskKey()

	history := p.engine.ring.ForAgent(agentID, key)
	if len(history) < predictionMinSamples {
		stored, err := p.store.AgentOutcomes(ctx, agentID, time.Now().UTC().Add(-predictionWindow), predictionHistoryCap)
		if err != nil {
			return nil, routing.WrapError(routing.KindPersistenceUnavailable, err, "failed to load outcome history for prediction")
		}
		history = history[:0]
		// AgentOutcomes returns newest-first; prediction math wants
		// oldest-first.
		for i := len(stored) - 1; i >= 0; i-- {
			if stored[i].TaskKey() == key {
				history = append(history, stored[i])
			}
		}
	}

	var pred *models.SuccessPrediction
	if len(history) < predictionMinSamples {
		pred = p.baselinePrediction(agentID, task, key)
	} else {
		pred = p.historicalPrediction(agentID, task, history)
	}

	if err := p.store.InsertPrediction(ctx, pred); err != nil {
		return nil, routing.WrapError(routing.KindPersistenceUnavailable, err, "failed to persist prediction")
	}
	p.metrics.IncrementCounterWithLabels("learning.predictions", 1, map[string]string{
		"model": pred.PredictionModel,
	})
	return pred, nil
}

func (p *Predictor) baselinePrediction(agentID string, task *models.TaskContext, key string) *models.SuccessPrediction {
	rate := baselineRate
	if spec := p.engine.SpecializationFor(agentID, task.TaskType, task.Complexity); spec != nil {
		rate += spec.PerformanceAdvantage * 0.3
	}
	if weight, ok := p.engine.Weight(agentID, key); ok {
		rate = (rate + weight) / 2
	}
	rate = clamp01(rate)

	risks := []string{models.RiskLimitedHistory}
	if task.Complexity == models.ComplexityCritical {
		risks = append(risks, models.RiskHighComplexity)
	}

	return &models.SuccessPrediction{
		AgentID:         agentID,
		TaskType:        task.TaskType,
		Complexity:      task.Complexity,
		PredictedRate:   rate,
		ConfidenceLower: clamp01(rate - 0.3),
		ConfidenceUpper: clamp01(rate + 0.3),
		RiskFactors:     risks,
		PredictionModel: "baseline",
	}
}

func (p *Predictor) historicalPrediction(agentID string, task *models.TaskContext, history []*models.TaskOutcome) *models.SuccessPrediction {
	n := len(history)
	mean := 0.0
	for _, o := range history {
		mean += o.SuccessScore
	}
	mean /= float64(n)

	variance := 0.0
	for _, o := range history {
		variance += (o.SuccessScore - mean) * (o.SuccessScore - mean)
	}
	std := math.Sqrt(variance / float64(n))

	// Trend compares the recent half against the older half.
	half := n / 2
	older, recent := 0.0, 0.0
	for i, o := range history {
		if i < half {
			older += o.SuccessScore
		} else {
			recent += o.SuccessScore
		}
	}
	older /= float64(half)
	recent /= float64(n - half)
	trend := recent - older

	rate := mean + 0.2*trend + contextAdjustment(task)

	var risks []string
	if std > 0.3 {
		risks = append(risks, models.RiskHighVariability)
	}
	errorCount, retryCount := 0, 0
	for _, o := range history[half:] {
		errorCount += o.ErrorCount
		retryCount += o.RetryAttempts
	}
	if errorCount > 0 {
		risks = append(risks, models.RiskRecentErrors)
	}
	if retryCount > 0 {
		risks = append(risks, models.RiskRetryPattern)
	}
	if trend < -0.1 {
		risks = append(risks, models.RiskDecliningTrend)
	}

	rate = clamp01(rate)
	margin := 1.96 * std / math.Sqrt(float64(n))

	return &models.SuccessPrediction{
		AgentID:         agentID,
		TaskType:        task.TaskType,
		Complexity:      task.Complexity,
		PredictedRate:   rate,
		ConfidenceLower: clamp01(rate - margin),
		ConfidenceUpper: clamp01(rate + margin),
		RiskFactors:     risks,
		PredictionModel: "historical",
	}
}

// contextAdjustment shifts a historical forecast for the pressure the
// task itself carries: high-priority work fails slightly more often,
// low-priority work slightly less, and a tight deadline costs the most.
func contextAdjustment(task *models.TaskContext) float64 {
	adjustment := 0.0
	switch {
	case task.Priority >= 8:
		adjustment -= 0.05
	case task.Priority > 0 && task.Priority <= 3:
		adjustment += 0.05
	}
	if task.Deadline != nil && time.Until(*task.Deadline) <= 2*time.Hour {
		adjustment -= 0.1
	}
	return adjustment
}

// ValidatePending calibrates unvalidated predictions against the first
// matching outcome recorded after each prediction was made. Predictions
// older than the lookback are abandoned rather than validated late.
func (p *Predictor) ValidatePending(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-validationLookback)
	preds, err := p.store.UnvalidatedPredictions(ctx, cutoff, validationBatch)
	if err != nil {
		return routing.WrapError(routing.KindPersistenceUnavailable, err, "failed to load unvalidated predictions")
	}

	validated := 0
	for _, pred := range preds {
		outcome, err := p.store.FindOutcomeForPrediction(ctx, pred.AgentID, pred.TaskType, pred.Complexity, pred.CreatedAt)
		if err != nil {
			if err == repository.ErrNotFound {
				continue
			}
			return routing.WrapError(routing.KindPersistenceUnavailable, err, "failed to match outcome for prediction %s", pred.ID)
		}

		accuracy := 1 - math.Abs(pred.PredictedRate-outcome.SuccessScore)
		if err := p.store.ValidatePrediction(ctx, pred.ID, outcome.ID, accuracy); err != nil {
			return routing.WrapError(routing.KindPersistenceUnavailable, err, "failed to validate prediction %s", pred.ID)
		}
		validated++
	}

	if validated > 0 {
		p.logger.Debug("Predictions validated", map[string]interface{}{
			"validated": validated,
			"pending":   len(preds) - validated,
		})
		p.metrics.IncrementCounter("learning.predictions.validated", float64(validated))
	}
	return nil
}

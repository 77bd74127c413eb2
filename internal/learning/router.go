package learning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
	"github.com/S-Corkum/agent-router/internal/routing"
)

// Weight override bounds: a pick whose learned weight has fallen below
// the floor is swapped for an alternative above the ceiling.
const (
	weightOverrideFloor   = 0.4
	weightOverrideCeiling = 0.6

	// predictionAlternativeCap bounds how many alternatives are probed
	// when the pick's predicted success rate is below threshold.
	predictionAlternativeCap = 10
)

// Applied optimization tags reported on enhanced selections.
const (
	OptimizationSpecialization = "specialization_match"
	OptimizationRoutingWeight  = "routing_weight"
	OptimizationPrediction     = "prediction_swap"
)

// LearningInsights summarizes what the learning layer did to a
// selection: which optimization fired, whether the base pick was
// replaced, and the learned figure behind the override.
type LearningInsights struct {
	AppliedOptimization     string  `json:"applied_optimization,omitempty"`
	AlternativeSelected     bool    `json:"alternative_selected"`
	SpecializationAdvantage float64 `json:"specialization_advantage,omitempty"`
	LearnedWeight           float64 `json:"learned_weight,omitempty"`
}

// EnhancedSelection is a base selection augmented with the learning
// layer's adjustments.
type EnhancedSelection struct {
	*models.AgentSelection
	Prediction             *models.SuccessPrediction `json:"prediction,omitempty"`
	AppliedOptimization    string                    `json:"applied_optimization,omitempty"`
	Insights               LearningInsights          `json:"learning_insights"`
	OptimizationConfidence float64                   `json:"optimization_confidence"`
	Alternatives           []string                  `json:"alternatives"`
	Explanation            string                    `json:"explanation"`
}

// IntelligentRouter layers the learning state over the base selector.
// Overrides apply in a fixed order: specialization match first, then the
// learned weight matrix, then the success prediction gate. Each stage
// reorders the pick before anything is emitted, so the routing record
// always reflects the final choice.
type IntelligentRouter struct {
	selector  *routing.Selector
	engine    *Engine
	predictor *Predictor
	logger    observability.Logger
	metrics   observability.MetricsClient
}

// NewIntelligentRouter wires the learning-aware routing pipeline
func NewIntelligentRouter(selector *routing.Selector, engine *Engine, predictor *Predictor, logger observability.Logger, metrics observability.MetricsClient) *IntelligentRouter {
	if logger == nil {
		logger = observability.NewLogger("learning.router")
	}
	if metrics == nil {
		metrics = observability.NoopMetricsClient{}
	}
	return &IntelligentRouter{
		selector:  selector,
		engine:    engine,
		predictor: predictor,
		logger:    logger,
		metrics:   metrics,
	}
}

// Route selects an agent for the task with learning overrides applied.
// With learning disabled it is equivalent to the base selector.
func (r *IntelligentRouter) Route(ctx context.Context, task *models.TaskContext) (*EnhancedSelection, error) {
	started := time.Now()

	ranked, err := r.selector.Rank(ctx, task)
	if err != nil {
		return nil, err
	}

	if !r.engine.cfg.Enabled {
		selection, err := r.selector.Commit(ctx, task, ranked, 0, started)
		if err != nil {
			return nil, err
		}
		return &EnhancedSelection{
			AgentSelection:         selection,
			OptimizationConfidence: selection.Confidence,
			Alternatives:           selection.FallbackAgents,
			Explanation:            selection.Reason,
		}, nil
	}

	pickIndex := 0
	applied := ""
	var note string
	var insights LearningInsights
	var chosenSpec *models.AgentSpecialization
	optimizationConfidence := 0.0

	if idx, spec := r.bestSpecialist(ranked, task); spec != nil {
		pickIndex = idx
		applied = OptimizationSpecialization
		note = fmt.Sprintf("specialized in %s tasks (advantage %.0f%%)", spec.SpecializationType, spec.PerformanceAdvantage*100)
		chosenSpec = spec
		insights.SpecializationAdvantage = spec.PerformanceAdvantage
		optimizationConfidence = spec.Confidence
	} else if idx, weight := r.weightOverride(ranked, task); idx >= 0 {
		pickIndex = idx
		applied = OptimizationRoutingWeight
		note = fmt.Sprintf("learned routing weight %.2f", weight)
		insights.LearnedWeight = weight
		optimizationConfidence = weight
	}

	prediction := r.predict(ctx, ranked[pickIndex].Agent.ID, task)
	if prediction != nil && prediction.PredictedRate < r.engine.cfg.PredictionThreshold {
		if idx, alt := r.predictionSwap(ctx, ranked, pickIndex, task); alt != nil {
			pickIndex = idx
			prediction = alt
			applied = OptimizationPrediction
			note = "(alternative due to low success prediction)"
			optimizationConfidence = alt.PredictedRate
		}
	}

	selection, err := r.selector.Commit(ctx, task, ranked, pickIndex, started)
	if err != nil {
		return nil, err
	}

	insights.AppliedOptimization = applied
	insights.AlternativeSelected = pickIndex != 0
	if applied == "" {
		optimizationConfidence = selection.Confidence
	}

	enhanced := &EnhancedSelection{
		AgentSelection:         selection,
		Prediction:             prediction,
		AppliedOptimization:    applied,
		Insights:               insights,
		OptimizationConfidence: optimizationConfidence,
		Alternatives:           selection.FallbackAgents,
	}
	enhanced.Explanation = buildExplanation(selection.Reason, note, prediction)
	if applied == OptimizationSpecialization && chosenSpec != nil {
		enhanced.Confidence = min1(enhanced.Confidence + chosenSpec.PerformanceAdvantage)
	}

	if applied != "" {
		r.metrics.IncrementCounterWithLabels("learning.routing_overrides", 1, map[string]string{
			"optimization": applied,
		})
		r.logger.Debug("Learning override applied", map[string]interface{}{
			"routing_id":   selection.RoutingID.String(),
			"agent_id":     selection.AgentID,
			"optimization": applied,
		})
	}
	return enhanced, nil
}

// buildExplanation assembles the human-readable routing rationale: the
// base reason, the override note, the forecast, and the top two risk
// factors.
func buildExplanation(reason, note string, prediction *models.SuccessPrediction) string {
	parts := []string{reason}
	if note != "" {
		parts = append(parts, note)
	}
	if prediction != nil {
		parts = append(parts, fmt.Sprintf("predicted success %.0f%%", prediction.PredictedRate*100))
		if len(prediction.RiskFactors) > 0 {
			risks := prediction.RiskFactors
			if len(risks) > 2 {
				risks = risks[:2]
			}
			parts = append(parts, "risks: "+strings.Join(risks, ", "))
		}
	}
	return strings.Join(parts, "; ")
}

// bestSpecialist returns the ranked index of the candidate with the
// strongest active specialization for the task, if any.
func (r *IntelligentRouter) bestSpecialist(ranked []routing.RankedCandidate, task *models.TaskContext) (int, *models.AgentSpecialization) {
	bestIdx := -1
	var best *models.AgentSpecialization
	for i, rc := range ranked {
		spec := r.engine.SpecializationFor(rc.Agent.ID, task.TaskType, task.Complexity)
		if spec == nil || spec.PerformanceAdvantage <= 0 {
			continue
		}
		if best == nil || spec.PerformanceAdvantage > best.PerformanceAdvantage {
			bestIdx, best = i, spec
		}
	}
	return bestIdx, best
}

// weightOverride swaps the pick when its learned weight has degraded
// below the floor and a better-weighted alternative exists. Returns
// (-1, 0) when no override applies.
func (r *IntelligentRouter) weightOverride(ranked []routing.RankedCandidate, task *models.TaskContext) (int, float64) {
	key := task.TaskKey()
	pickWeight, ok := r.engine.Weight(ranked[0].Agent.ID, key)
	if !ok || pickWeight >= weightOverrideFloor {
		return -1, 0
	}

	bestIdx := -1
	bestWeight := weightOverrideCeiling
	for i := 1; i < len(ranked); i++ {
		if w, ok := r.engine.Weight(ranked[i].Agent.ID, key); ok && w > bestWeight {
			bestIdx, bestWeight = i, w
		}
	}
	if bestIdx < 0 {
		return -1, 0
	}
	return bestIdx, bestWeight
}

// predictionSwap probes alternatives in rank order for one with a
// predicted success rate above threshold, best predicted rate winning.
func (r *IntelligentRouter) predictionSwap(ctx context.Context, ranked []routing.RankedCandidate, pickIndex int, task *models.TaskContext) (int, *models.SuccessPrediction) {
	bestIdx := -1
	var best *models.SuccessPrediction
	probed := 0
	for i, rc := range ranked {
		if i == pickIndex {
			continue
		}
		if probed == predictionAlternativeCap {
			break
		}
		probed++
		pred := r.predict(ctx, rc.Agent.ID, task)
		if pred == nil || pred.PredictedRate < r.engine.cfg.PredictionThreshold {
			continue
		}
		if best == nil || pred.PredictedRate > best.PredictedRate {
			bestIdx, best = i, pred
		}
	}
	return bestIdx, best
}

// predict never fails a routing request: a prediction error degrades to
// routing without a forecast.
func (r *IntelligentRouter) predict(ctx context.Context, agentID string, task *models.TaskContext) *models.SuccessPrediction {
	pred, err := r.predictor.Predict(ctx, agentID, task)
	if err != nil {
		r.logger.Warn("Success prediction failed", map[string]interface{}{
			"agent_id":  agentID,
			"task_type": task.TaskType,
			"error":     err.Error(),
		})
		return nil
	}
	return pred
}

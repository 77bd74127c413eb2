package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskOutcome is the observed result of an executed task. The success
// score is a real in [0,1], not just a boolean: the recorder averages a
// boolean success with the mean of quality metrics when present.
type TaskOutcome struct {
	ID                uuid.UUID              `json:"id" db:"id"`
	RoutingID         uuid.UUID              `json:"routing_id" db:"routing_id"`
	AgentID           string                 `json:"agent_id" db:"agent_id"`
	TaskType          string                 `json:"task_type" db:"task_type"`
	Complexity        Complexity             `json:"complexity" db:"complexity"`
	SuccessScore      float64                `json:"success_score" db:"success_score"`
	CompletionSeconds float64                `json:"completion_time_seconds" db:"completion_time_seconds"`
	QualityMetrics    map[string]float64     `json:"quality_metrics,omitempty"`
	UserSatisfaction  *float64               `json:"user_satisfaction,omitempty" db:"user_satisfaction"`
	ErrorCount        int                    `json:"error_count" db:"error_count"`
	RetryAttempts     int                    `json:"retry_attempts" db:"retry_attempts"`
	CostActualCents   *int                   `json:"cost_actual_cents,omitempty" db:"cost_actual_cents"`
	ContextMetadata   map[string]interface{} `json:"context_metadata,omitempty"`
	CreatedAt         time.Time              `json:"created_at" db:"created_at"`
}

// TaskKey returns the learning key for this outcome.
func (o *TaskOutcome) TaskKey() string {
	return TaskKey(o.TaskType, o.Complexity)
}

// AgentSpecialization is a discovered fact: a (task_type, complexity)
// combination on which an agent outperforms its own mean by a material
// margin with enough samples. Unique on (agent_id, specialization_type).
type AgentSpecialization struct {
	ID                     uuid.UUID    `json:"id" db:"id"`
	AgentID                string       `json:"agent_id" db:"agent_id"`
	SpecializationType     string       `json:"specialization_type" db:"specialization_type"`
	TaskTypes              []string     `json:"task_types"`
	ComplexityPreferences  []Complexity `json:"complexity_preferences"`
	Confidence             float64      `json:"confidence_score" db:"confidence_score"`
	PerformanceAdvantage   float64      `json:"performance_advantage" db:"performance_advantage"`
	SampleSize             int          `json:"sample_size" db:"sample_size"`
	DiscoveredAt           time.Time    `json:"discovered_at" db:"discovered_at"`
	LastValidated          time.Time    `json:"last_validated" db:"last_validated"`
	IsActive               bool         `json:"is_active" db:"is_active"`
}

// WeightMatrix is the learned routing weight matrix
// W[agent_id][task_key] in [0,1].
type WeightMatrix map[string]map[string]float64

// Clone returns a deep copy of the matrix. Readers of the live matrix
// take snapshots; writers swap whole maps.
func (w WeightMatrix) Clone() WeightMatrix {
	out := make(WeightMatrix, len(w))
	for agent, row := range w {
		cp := make(map[string]float64, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[agent] = cp
	}
	return out
}

// Get returns the weight for (agent, taskKey) and whether it was present.
func (w WeightMatrix) Get(agentID, taskKey string) (float64, bool) {
	row, ok := w[agentID]
	if !ok {
		return 0, false
	}
	v, ok := row[taskKey]
	return v, ok
}

// RoutingOptimization is a versioned snapshot of the full routing weight
// matrix. At most one row is active at any instant.
type RoutingOptimization struct {
	ID                     uuid.UUID    `json:"id" db:"id"`
	OptimizationVersion    string       `json:"optimization_version" db:"optimization_version"`
	AgentWeights           WeightMatrix `json:"agent_weights"`
	PerformanceImprovement float64      `json:"performance_improvement" db:"performance_improvement"`
	ConfidenceLower        float64      `json:"confidence_lower" db:"confidence_lower"`
	ConfidenceUpper        float64      `json:"confidence_upper" db:"confidence_upper"`
	OptimizationMethod     string       `json:"optimization_method" db:"optimization_method"`
	SampleSize             int          `json:"sample_size" db:"sample_size"`
	AppliedAt              time.Time    `json:"applied_at" db:"applied_at"`
	ValidationPeriodDays   int          `json:"validation_period_days" db:"validation_period_days"`
	IsActive               bool         `json:"is_active" db:"is_active"`
}

// SuccessPrediction is a recorded forecast of the success probability of
// routing a specific task to a specific agent. Every emitted prediction
// is stored for later calibration.
type SuccessPrediction struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	AgentID         string     `json:"agent_id" db:"agent_id"`
	TaskType        string     `json:"task_type" db:"task_type"`
	Complexity      Complexity `json:"complexity" db:"complexity"`
	PredictedRate   float64    `json:"predicted_success_rate" db:"predicted_success_rate"`
	ConfidenceLower float64    `json:"confidence_lower" db:"confidence_lower"`
	ConfidenceUpper float64    `json:"confidence_upper" db:"confidence_upper"`
	RiskFactors     []string   `json:"risk_factors"`
	PredictionModel string     `json:"prediction_model" db:"prediction_model"`
	Accuracy        *float64   `json:"prediction_accuracy,omitempty" db:"prediction_accuracy"`
	ActualOutcomeID *uuid.UUID `json:"actual_outcome_id,omitempty" db:"actual_outcome_id"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ValidatedAt     *time.Time `json:"validated_at,omitempty" db:"validated_at"`
}

// Risk factor tags attached to predictions.
const (
	RiskLimitedHistory      = "limited_historical_data"
	RiskHighComplexity      = "high_complexity_task"
	RiskHighVariability     = "high_performance_variability"
	RiskRecentErrors        = "recent_errors_detected"
	RiskRetryPattern        = "retry_pattern_observed"
	RiskDecliningTrend      = "declining_performance_trend"
)

// LearningMetric is a single recorded learning measurement row.
type LearningMetric struct {
	ID        uuid.UUID              `json:"id" db:"id"`
	Name      string                 `json:"metric_name" db:"metric_name"`
	Value     float64                `json:"metric_value" db:"metric_value"`
	Metadata  map[string]interface{} `json:"metric_metadata,omitempty"`
	Timestamp time.Time              `json:"measurement_timestamp" db:"measurement_timestamp"`
}

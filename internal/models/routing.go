package models

import (
	"time"

	"github.com/google/uuid"
)

// PerformanceScore is the multi-dimensional score computed per candidate.
// Every sub-score and the overall are clamped to [0,1].
type PerformanceScore struct {
	AgentID         string    `json:"agent_id"`
	Reliability     float64   `json:"reliability"`
	Performance     float64   `json:"performance"`
	CostEfficiency  float64   `json:"cost_efficiency"`
	CapabilityMatch float64   `json:"capability_match"`
	Load            float64   `json:"load"`
	Historical      float64   `json:"historical"`
	Overall         float64   `json:"overall"`
	ComputedAt      time.Time `json:"computed_at"`
}

// SelectionMetadata captures the score breakdown and load state observed
// at selection time.
type SelectionMetadata struct {
	Score      PerformanceScore `json:"score"`
	LoadLevel  LoadLevel        `json:"load_level"`
	LoadCount  int              `json:"load_count"`
	SelectedAt time.Time        `json:"selected_at"`
}

// AgentSelection is the output of a successful routing decision.
// Immutable once emitted.
type AgentSelection struct {
	RoutingID                  uuid.UUID         `json:"routing_id"`
	AgentID                    string            `json:"agent_id"`
	AgentName                  string            `json:"agent_name"`
	Confidence                 float64           `json:"confidence"`
	Reason                     string            `json:"reason"`
	FallbackAgents             []string          `json:"fallback_agents"`
	EstimatedCompletionSeconds float64           `json:"estimated_completion_seconds"`
	EstimatedCostCents         int               `json:"estimated_cost_cents"`
	Metadata                   SelectionMetadata `json:"selection_metadata"`
}

// RoutingRecord is the durable row representing one dispatch decision.
// Created on dispatch, updated exactly once when the caller reports the
// outcome, never mutated thereafter.
type RoutingRecord struct {
	ID               uuid.UUID              `json:"id" db:"id"`
	RoutingID        uuid.UUID              `json:"routing_id" db:"routing_id"`
	AgentID          string                 `json:"agent_id" db:"agent_id"`
	TaskType         string                 `json:"task_type" db:"task_type"`
	Complexity       Complexity             `json:"complexity" db:"complexity"`
	SelectionScore   float64                `json:"selection_score" db:"selection_score"`
	RoutingTimeMs    float64                `json:"routing_time_ms" db:"routing_time_ms"`
	ExecutionSuccess *bool                  `json:"execution_success,omitempty" db:"execution_success"`
	ExecutionTimeMs  *float64               `json:"execution_time_ms,omitempty" db:"execution_time_ms"`
	CostActualCents  *int                   `json:"cost_actual_cents,omitempty" db:"cost_actual_cents"`
	TaskMetadata     map[string]interface{} `json:"task_metadata,omitempty"`
	CreatedAt        time.Time              `json:"created_at" db:"created_at"`
}

// BreakerState is the circuit breaker state for one agent
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// IsValid checks if the breaker state is valid
func (s BreakerState) IsValid() bool {
	switch s {
	case BreakerClosed, BreakerOpen, BreakerHalfOpen:
		return true
	}
	return false
}

// CircuitBreakerState is the durable per-agent breaker row. Transitions
// are the only mutation path.
type CircuitBreakerState struct {
	AgentID           string       `json:"agent_id" db:"agent_id"`
	State             BreakerState `json:"state" db:"state"`
	FailureCount      int          `json:"failure_count" db:"failure_count"`
	SuccessCount      int          `json:"success_count" db:"success_count"`
	LastFailureTime   *time.Time   `json:"last_failure_time,omitempty" db:"last_failure_time"`
	NextRetryTime     *time.Time   `json:"next_retry_time,omitempty" db:"next_retry_time"`
	FailureThreshold  int          `json:"failure_threshold" db:"failure_threshold"`
	RecoveryTimeoutMs int          `json:"recovery_timeout_ms" db:"recovery_timeout_ms"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// PerformanceSnapshot is a point-in-time score snapshot row for
// dashboards.
type PerformanceSnapshot struct {
	ID                     uuid.UUID        `json:"id" db:"id"`
	AgentID                string           `json:"agent_id" db:"agent_id"`
	SnapshotTime           time.Time        `json:"snapshot_time" db:"snapshot_time"`
	Score                  PerformanceScore `json:"score"`
	ActiveRequests         int              `json:"active_requests" db:"active_requests"`
	LoadLevel              LoadLevel        `json:"load_level" db:"load_level"`
	PredictiveFailureScore float64          `json:"predictive_failure_score" db:"predictive_failure_score"`
}

package models

// AgentAggregate is the rolled-up view of one agent's recent outcomes
// used by the scorer and the health surface. Zero SampleCount means the
// caller should fall back to defaults.
type AgentAggregate struct {
	AgentID              string  `json:"agent_id" db:"agent_id"`
	SuccessRate          float64 `json:"success_rate" db:"success_rate"`
	AvgExecutionMs       float64 `json:"avg_execution_ms" db:"avg_execution_ms"`
	AvgCostCents         float64 `json:"avg_cost_cents" db:"avg_cost_cents"`
	P95ExecutionMs       float64 `json:"p95_execution_ms" db:"p95_execution_ms"`
	AvgErrorCount        float64 `json:"avg_error_count" db:"avg_error_count"`
	SampleCount          int     `json:"sample_count" db:"sample_count"`
}

// TaskTypeAggregate is the rolled-up view of one agent's outcomes for a
// single (task_type, complexity) pair.
type TaskTypeAggregate struct {
	AgentID              string     `json:"agent_id" db:"agent_id"`
	TaskType             string     `json:"task_type" db:"task_type"`
	Complexity           Complexity `json:"complexity" db:"complexity"`
	SuccessRate          float64    `json:"success_rate" db:"success_rate"`
	AvgCompletionSeconds float64    `json:"avg_completion_seconds" db:"avg_completion_seconds"`
	AvgCostCents         float64    `json:"avg_cost_cents" db:"avg_cost_cents"`
	SampleCount          int        `json:"sample_count" db:"sample_count"`
}

// OutcomeGroupStats is one (agent, task_type, complexity) group produced
// by the optimizer's aggregation query.
type OutcomeGroupStats struct {
	AgentID              string     `json:"agent_id" db:"agent_id"`
	TaskType             string     `json:"task_type" db:"task_type"`
	Complexity           Complexity `json:"complexity" db:"complexity"`
	SampleSize           int        `json:"sample_size" db:"sample_size"`
	Successes            int        `json:"successes" db:"successes"`
	Failures             int        `json:"failures" db:"failures"`
	MeanSuccess          float64    `json:"mean_success" db:"mean_success"`
	StdSuccess           float64    `json:"std_success" db:"std_success"`
	AvgCompletionSeconds float64    `json:"avg_completion_seconds" db:"avg_completion_seconds"`
	AvgSatisfaction      float64    `json:"avg_satisfaction" db:"avg_satisfaction"`
}

// TaskKey returns the learning key for this group.
func (g *OutcomeGroupStats) TaskKey() string {
	return TaskKey(g.TaskType, g.Complexity)
}

// AnalyticsReport is the aggregate returned by the analytics surface.
type AnalyticsReport struct {
	WindowHours int                      `json:"window_hours"`
	Overall     AnalyticsOverall         `json:"overall"`
	PerAgent    []AgentAggregate         `json:"per_agent"`
	PerTaskType []TaskTypeAggregate      `json:"per_task_type"`
	Breakers    []CircuitBreakerState    `json:"breakers"`
	Loads       map[string]int           `json:"loads"`
}

// AnalyticsOverall holds the window-wide totals.
type AnalyticsOverall struct {
	TotalRoutings        int     `json:"total_routings"`
	CompletedRoutings    int     `json:"completed_routings"`
	SuccessRate          float64 `json:"success_rate"`
	AvgExecutionMs       float64 `json:"avg_execution_ms"`
	AvgCostCents         float64 `json:"avg_cost_cents"`
	AvgSelectionScore    float64 `json:"avg_selection_score"`
}

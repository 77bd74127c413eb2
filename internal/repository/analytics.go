package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/S-Corkum/agent-router/internal/models"
)

// RoutingOverall rolls up the routing records in the window for the
// analytics surface.
func (r *Postgres) RoutingOverall(ctx context.Context, since time.Time) (*models.AnalyticsOverall, error) {
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) AS total_routings,
			COUNT(execution_success) AS completed_routings,
			COALESCE(AVG(CASE WHEN execution_success THEN 1.0 ELSE 0.0 END), 0) AS success_rate,
			COALESCE(AVG(execution_time_ms), 0) AS avg_execution_ms,
			COALESCE(AVG(cost_actual_cents), 0) AS avg_cost_cents,
			COALESCE(AVG(selection_score), 0) AS avg_selection_score
		FROM %s.agent_routing_metrics
		WHERE created_at >= $1
	`, r.schema)

	var overall models.AnalyticsOverall
	row := r.db.QueryRowxContext(ctx, query, since)
	if err := row.Scan(
		&overall.TotalRoutings, &overall.CompletedRoutings, &overall.SuccessRate,
		&overall.AvgExecutionMs, &overall.AvgCostCents, &overall.AvgSelectionScore,
	); err != nil {
		return nil, fmt.Errorf("failed to aggregate routing records: %w", err)
	}
	return &overall, nil
}

// OutcomesPerAgent rolls up outcomes per agent in the window
func (r *Postgres) OutcomesPerAgent(ctx context.Context, since time.Time) ([]models.AgentAggregate, error) {
	query := fmt.Sprintf(`
		SELECT
			agent_id,
			COUNT(*) AS sample_count,
			COALESCE(AVG(success_score), 0) AS success_rate,
			COALESCE(AVG(completion_time_seconds) * 1000, 0) AS avg_execution_ms,
			COALESCE(AVG(cost_actual_cents), 0) AS avg_cost_cents,
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY completion_time_seconds) * 1000, 0) AS p95_execution_ms,
			COALESCE(AVG(error_count), 0) AS avg_error_count
		FROM %s.agent_task_outcomes
		WHERE created_at >= $1
		GROUP BY agent_id
		ORDER BY agent_id
	`, r.schema)

	var aggs []models.AgentAggregate
	if err := r.db.SelectContext(ctx, &aggs, query, since); err != nil {
		return nil, fmt.Errorf("failed to aggregate per-agent outcomes: %w", err)
	}
	return aggs, nil
}

// OutcomesPerTaskType rolls up outcomes per (agent, task_type, complexity)
// in the window.
func (r *Postgres) OutcomesPerTaskType(ctx context.Context, since time.Time) ([]models.TaskTypeAggregate, error) {
	query := fmt.Sprintf(`
		SELECT
			agent_id, task_type, complexity,
			COUNT(*) AS sample_count,
			COALESCE(AVG(success_score), 0) AS success_rate,
			COALESCE(AVG(completion_time_seconds), 0) AS avg_completion_seconds,
			COALESCE(AVG(cost_actual_cents), 0) AS avg_cost_cents
		FROM %s.agent_task_outcomes
		WHERE created_at >= $1
		GROUP BY agent_id, task_type, complexity
		ORDER BY agent_id, task_type, complexity
	`, r.schema)

	var aggs []models.TaskTypeAggregate
	if err := r.db.SelectContext(ctx, &aggs, query, since); err != nil {
		return nil, fmt.Errorf("failed to aggregate per-task-type outcomes: %w", err)
	}
	return aggs, nil
}

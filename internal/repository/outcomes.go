package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agent-router/internal/models"
)

// InsertOutcome persists one task outcome row
func (r *Postgres) InsertOutcome(ctx context.Context, outcome *models.TaskOutcome) error {
	if outcome.ID == uuid.Nil {
		outcome.ID = uuid.New()
	}
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now().UTC()
	}

	qualityJSON, err := marshalBlob(outcome.QualityMetrics)
	if err != nil {
		return err
	}
	contextJSON, err := marshalBlob(outcome.ContextMetadata)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.agent_task_outcomes (
			id, routing_id, agent_id, task_type, complexity, success_score,
			completion_time_seconds, quality_metrics, user_satisfaction,
			error_count, retry_attempts, cost_actual_cents, context_metadata,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, r.schema)

	if _, err := r.db.ExecContext(ctx, query,
		outcome.ID, outcome.RoutingID, outcome.AgentID, outcome.TaskType,
		outcome.Complexity, outcome.SuccessScore, outcome.CompletionSeconds,
		qualityJSON, outcome.UserSatisfaction, outcome.ErrorCount,
		outcome.RetryAttempts, outcome.CostActualCents, contextJSON,
		outcome.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert task outcome: %w", err)
	}
	return nil
}

// AgentAggregate rolls up one agent's outcomes since the given time.
// A zero SampleCount result means no history in the window.
func (r *Postgres) AgentAggregate(ctx context.Context, agentID string, since time.Time) (*models.AgentAggregate, error) {
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) AS sample_count,
			COALESCE(AVG(success_score), 0) AS success_rate,
			COALESCE(AVG(completion_time_seconds) * 1000, 0) AS avg_execution_ms,
			COALESCE(AVG(cost_actual_cents), 0) AS avg_cost_cents,
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY completion_time_seconds) * 1000, 0) AS p95_execution_ms,
			COALESCE(AVG(error_count), 0) AS avg_error_count
		FROM %s.agent_task_outcomes
		WHERE agent_id = $1 AND created_at >= $2
	`, r.schema)

	agg := models.AgentAggregate{AgentID: agentID}
	row := r.db.QueryRowxContext(ctx, query, agentID, since)
	if err := row.Scan(&agg.SampleCount, &agg.SuccessRate, &agg.AvgExecutionMs,
		&agg.AvgCostCents, &agg.P95ExecutionMs, &agg.AvgErrorCount); err != nil {
		return nil, fmt.Errorf("failed to aggregate agent outcomes: %w", err)
	}
	return &agg, nil
}

// TaskTypeAggregate rolls up one agent's outcomes for a single
// (task_type, complexity) pair since the given time.
func (r *Postgres) TaskTypeAggregate(ctx context.Context, agentID, taskType string, complexity models.Complexity, since time.Time) (*models.TaskTypeAggregate, error) {
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) AS sample_count,
			COALESCE(AVG(success_score), 0) AS success_rate,
			COALESCE(AVG(completion_time_seconds), 0) AS avg_completion_seconds,
			COALESCE(AVG(cost_actual_cents), 0) AS avg_cost_cents
		FROM %s.agent_task_outcomes
		WHERE agent_id = $1 AND task_type = $2 AND complexity = $3 AND created_at >= $4
	`, r.schema)

	agg := models.TaskTypeAggregate{AgentID: agentID, TaskType: taskType, Complexity: complexity}
	row := r.db.QueryRowxContext(ctx, query, agentID, taskType, complexity, since)
	if err := row.Scan(&agg.SampleCount, &agg.SuccessRate, &agg.AvgCompletionSeconds, &agg.AvgCostCents); err != nil {
		return nil, fmt.Errorf("failed to aggregate task type outcomes: %w", err)
	}
	return &agg, nil
}

// OutcomeGroups aggregates outcomes since the given time grouped by
// (agent, task_type, complexity), keeping only groups with at least
// minSamples rows. Success counts treat success_score >= 0.5 as success.
func (r *Postgres) OutcomeGroups(ctx context.Context, since time.Time, minSamples int) ([]models.OutcomeGroupStats, error) {
	query := fmt.Sprintf(`
		SELECT
			agent_id, task_type, complexity,
			COUNT(*) AS sample_size,
			COUNT(*) FILTER (WHERE success_score >= 0.5) AS successes,
			COUNT(*) FILTER (WHERE success_score < 0.5) AS failures,
			AVG(success_score) AS mean_success,
			COALESCE(STDDEV_POP(success_score), 0) AS std_success,
			AVG(completion_time_seconds) AS avg_completion_seconds,
			COALESCE(AVG(user_satisfaction), 4.0) AS avg_satisfaction
		FROM %s.agent_task_outcomes
		WHERE created_at >= $1
		GROUP BY agent_id, task_type, complexity
		HAVING COUNT(*) >= $2
		ORDER BY agent_id, task_type, complexity
	`, r.schema)

	var groups []models.OutcomeGroupStats
	if err := r.db.SelectContext(ctx, &groups, query, since, minSamples); err != nil {
		return nil, fmt.Errorf("failed to aggregate outcome groups: %w", err)
	}
	return groups, nil
}

// AgentOutcomes returns one agent's most recent outcomes since the given
// time, newest first.
func (r *Postgres) AgentOutcomes(ctx context.Context, agentID string, since time.Time, limit int) ([]*models.TaskOutcome, error) {
	query := fmt.Sprintf(`
		SELECT id, routing_id, agent_id, task_type, complexity, success_score,
		       completion_time_seconds, quality_metrics, user_satisfaction,
		       error_count, retry_attempts, cost_actual_cents, context_metadata,
		       created_at
		FROM %s.agent_task_outcomes
		WHERE agent_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, r.schema)

	rows, err := r.db.QueryxContext(ctx, query, agentID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var outcomes []*models.TaskOutcome
	for rows.Next() {
		outcome, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

// FindOutcomeForPrediction returns the earliest outcome for the given
// (agent, task_type, complexity) recorded after a prediction was made,
// for prediction calibration. ErrNotFound when no outcome matched yet.
func (r *Postgres) FindOutcomeForPrediction(ctx context.Context, agentID, taskType string, complexity models.Complexity, after time.Time) (*models.TaskOutcome, error) {
	query := fmt.Sprintf(`
		SELECT id, routing_id, agent_id, task_type, complexity, success_score,
		       completion_time_seconds, quality_metrics, user_satisfaction,
		       error_count, retry_attempts, cost_actual_cents, context_metadata,
		       created_at
		FROM %s.agent_task_outcomes
		WHERE agent_id = $1 AND task_type = $2 AND complexity = $3 AND created_at >= $4
		ORDER BY created_at ASC
		LIMIT 1
	`, r.schema)

	rows, err := r.db.QueryxContext(ctx, query, agentID, taskType, complexity, after)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcome for prediction: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanOutcome(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOutcome(row rowScanner) (*models.TaskOutcome, error) {
	var outcome models.TaskOutcome
	var qualityJSON, contextJSON []byte
	if err := row.Scan(
		&outcome.ID, &outcome.RoutingID, &outcome.AgentID, &outcome.TaskType,
		&outcome.Complexity, &outcome.SuccessScore, &outcome.CompletionSeconds,
		&qualityJSON, &outcome.UserSatisfaction, &outcome.ErrorCount,
		&outcome.RetryAttempts, &outcome.CostActualCents, &contextJSON,
		&outcome.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan outcome row: %w", err)
	}
	if len(qualityJSON) > 0 {
		if err := json.Unmarshal(qualityJSON, &outcome.QualityMetrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quality metrics: %w", err)
		}
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &outcome.ContextMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context metadata: %w", err)
		}
	}
	return &outcome, nil
}

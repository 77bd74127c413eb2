package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/S-Corkum/agent-router/internal/models"
)

// GetBreakerState fetches one agent's breaker row. ErrNotFound means the
// agent has never failed; callers treat that as CLOSED.
func (r *Postgres) GetBreakerState(ctx context.Context, agentID string) (*models.CircuitBreakerState, error) {
	query := fmt.Sprintf(`
		SELECT agent_id, state, failure_count, success_count, last_failure_time,
		       next_retry_time, failure_threshold, recovery_timeout_ms, updated_at
		FROM %s.agent_circuit_breakers
		WHERE agent_id = $1
	`, r.schema)

	var state models.CircuitBreakerState
	if err := r.db.GetContext(ctx, &state, query, agentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get breaker state: %w", err)
	}
	return &state, nil
}

// GetBreakerStates fetches breaker rows for the given agents. Agents
// without a row are absent from the result map.
func (r *Postgres) GetBreakerStates(ctx context.Context, agentIDs []string) (map[string]*models.CircuitBreakerState, error) {
	query := fmt.Sprintf(`
		SELECT agent_id, state, failure_count, success_count, last_failure_time,
		       next_retry_time, failure_threshold, recovery_timeout_ms, updated_at
		FROM %s.agent_circuit_breakers
		WHERE agent_id = ANY($1)
	`, r.schema)

	var states []models.CircuitBreakerState
	if err := r.db.SelectContext(ctx, &states, query, pq.Array(agentIDs)); err != nil {
		return nil, fmt.Errorf("failed to get breaker states: %w", err)
	}

	out := make(map[string]*models.CircuitBreakerState, len(states))
	for i := range states {
		out[states[i].AgentID] = &states[i]
	}
	return out, nil
}

// ListBreakerStates returns every breaker row
func (r *Postgres) ListBreakerStates(ctx context.Context) ([]models.CircuitBreakerState, error) {
	query := fmt.Sprintf(`
		SELECT agent_id, state, failure_count, success_count, last_failure_time,
		       next_retry_time, failure_threshold, recovery_timeout_ms, updated_at
		FROM %s.agent_circuit_breakers
		ORDER BY agent_id
	`, r.schema)

	var states []models.CircuitBreakerState
	if err := r.db.SelectContext(ctx, &states, query); err != nil {
		return nil, fmt.Errorf("failed to list breaker states: %w", err)
	}
	return states, nil
}

// RecordBreakerResult upserts the counter update for one outcome. On
// success the success counter advances; on failure the failure counter
// advances and, when the failure threshold is crossed while CLOSED, the
// row is armed with a next_retry_time so the transition loop (or the next
// filter) opens it. State changes themselves happen via TransitionBreaker.
func (r *Postgres) RecordBreakerResult(ctx context.Context, agentID string, success bool, failureThreshold, recoveryTimeoutMs int) error {
	now := time.Now().UTC()

	if success {
		query := fmt.Sprintf(`
			INSERT INTO %s.agent_circuit_breakers (
				agent_id, state, failure_count, success_count,
				failure_threshold, recovery_timeout_ms, updated_at
			) VALUES ($1, 'closed', 0, 1, $2, $3, $4)
			ON CONFLICT (agent_id) DO UPDATE SET
				success_count = %s.agent_circuit_breakers.success_count + 1,
				updated_at = $4
		`, r.schema, r.schema)
		if _, err := r.db.ExecContext(ctx, query, agentID, failureThreshold, recoveryTimeoutMs, now); err != nil {
			return fmt.Errorf("failed to record breaker success: %w", err)
		}
		return nil
	}

	// Failure path: bump the counter, remember the failure time, and arm
	// next_retry_time once the threshold is crossed.
	query := fmt.Sprintf(`
		INSERT INTO %s.agent_circuit_breakers (
			agent_id, state, failure_count, success_count, last_failure_time,
			failure_threshold, recovery_timeout_ms, updated_at
		) VALUES ($1, 'closed', 1, 0, $4, $2, $3, $4)
		ON CONFLICT (agent_id) DO UPDATE SET
			failure_count = %s.agent_circuit_breakers.failure_count + 1,
			last_failure_time = $4,
			next_retry_time = CASE
				WHEN %s.agent_circuit_breakers.failure_count + 1 >= %s.agent_circuit_breakers.failure_threshold
				THEN $4::timestamptz + (%s.agent_circuit_breakers.recovery_timeout_ms || ' milliseconds')::interval
				ELSE %s.agent_circuit_breakers.next_retry_time
			END,
			updated_at = $4
	`, r.schema, r.schema, r.schema, r.schema, r.schema, r.schema)
	if _, err := r.db.ExecContext(ctx, query, agentID, failureThreshold, recoveryTimeoutMs, now); err != nil {
		return fmt.Errorf("failed to record breaker failure: %w", err)
	}
	return nil
}

// TransitionBreaker performs a conditional state transition keyed on the
// observed prior state, so two concurrent filters cannot both apply the
// same transition. Returns whether this call won the transition.
func (r *Postgres) TransitionBreaker(ctx context.Context, agentID string, from, to models.BreakerState) (bool, error) {
	now := time.Now().UTC()

	var query string
	var args []interface{}
	switch {
	case from == models.BreakerClosed && to == models.BreakerOpen:
		// Arm the retry window on open.
		query = fmt.Sprintf(`
			UPDATE %s.agent_circuit_breakers
			SET state = 'open',
			    next_retry_time = $2::timestamptz + (recovery_timeout_ms || ' milliseconds')::interval,
			    updated_at = $2
			WHERE agent_id = $1 AND state = 'closed' AND failure_count >= failure_threshold
		`, r.schema)
		args = []interface{}{agentID, now}
	case from == models.BreakerOpen && to == models.BreakerHalfOpen:
		// Both counters reset so that any failure observed while probing
		// is unambiguous.
		query = fmt.Sprintf(`
			UPDATE %s.agent_circuit_breakers
			SET state = 'half_open', failure_count = 0, success_count = 0, updated_at = $2
			WHERE agent_id = $1 AND state = 'open' AND next_retry_time <= $2
		`, r.schema)
		args = []interface{}{agentID, now}
	case from == models.BreakerHalfOpen && to == models.BreakerClosed:
		query = fmt.Sprintf(`
			UPDATE %s.agent_circuit_breakers
			SET state = 'closed', failure_count = 0, success_count = 0, updated_at = $2
			WHERE agent_id = $1 AND state = 'half_open'
		`, r.schema)
		args = []interface{}{agentID, now}
	case from == models.BreakerHalfOpen && to == models.BreakerOpen:
		query = fmt.Sprintf(`
			UPDATE %s.agent_circuit_breakers
			SET state = 'open', success_count = 0,
			    next_retry_time = $2::timestamptz + (recovery_timeout_ms || ' milliseconds')::interval,
			    updated_at = $2
			WHERE agent_id = $1 AND state = 'half_open'
		`, r.schema)
		args = []interface{}{agentID, now}
	default:
		return false, fmt.Errorf("unsupported breaker transition %s -> %s", from, to)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition breaker %s -> %s: %w", from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

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

// InsertRoutingRecord persists a freshly emitted routing decision
func (r *Postgres) InsertRoutingRecord(ctx context.Context, record *models.RoutingRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	metadataJSON, err := marshalBlob(record.TaskMetadata)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.agent_routing_metrics (
			id, routing_id, agent_id, task_type, complexity,
			selection_score, routing_time_ms, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.schema)

	if _, err := r.db.ExecContext(ctx, query,
		record.ID, record.RoutingID, record.AgentID, record.TaskType, record.Complexity,
		record.SelectionScore, record.RoutingTimeMs, metadataJSON, record.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert routing record: %w", err)
	}
	return nil
}

// CompleteRoutingRecord fills in the outcome columns of a routing record
// exactly once. It only touches the matching record created within the
// last minute whose outcome is still unset, so a duplicate report is a
// no-op. Returns whether a row was updated.
func (r *Postgres) CompleteRoutingRecord(ctx context.Context, routingID uuid.UUID, agentID string, success bool, executionMs float64, costCents *int) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s.agent_routing_metrics
		SET execution_success = $3,
		    execution_time_ms = $4,
		    cost_actual_cents = $5,
		    task_completion_time = $6
		WHERE routing_id = $1
		  AND agent_id = $2
		  AND execution_success IS NULL
		  AND created_at >= $7
	`, r.schema)

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		routingID, agentID, success, executionMs, costCents, now, now.Add(-time.Minute),
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete routing record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// GetRoutingRecord fetches one routing record by routing id
func (r *Postgres) GetRoutingRecord(ctx context.Context, routingID uuid.UUID) (*models.RoutingRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, routing_id, agent_id, task_type, complexity, selection_score,
		       routing_time_ms, execution_success, execution_time_ms,
		       cost_actual_cents, metadata, created_at
		FROM %s.agent_routing_metrics
		WHERE routing_id = $1
	`, r.schema)

	row := r.db.QueryRowxContext(ctx, query, routingID)

	var record models.RoutingRecord
	var metadata []byte
	if err := row.Scan(
		&record.ID, &record.RoutingID, &record.AgentID, &record.TaskType, &record.Complexity,
		&record.SelectionScore, &record.RoutingTimeMs, &record.ExecutionSuccess,
		&record.ExecutionTimeMs, &record.CostActualCents, &metadata, &record.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get routing record: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.TaskMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal routing record metadata: %w", err)
		}
	}
	return &record, nil
}

// InsertSnapshot persists a point-in-time performance snapshot row
func (r *Postgres) InsertSnapshot(ctx context.Context, snap *models.PerformanceSnapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.SnapshotTime.IsZero() {
		snap.SnapshotTime = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.agent_performance_snapshots (
			id, agent_id, snapshot_time, overall, reliability, performance,
			cost, capability_match, load, historical, active_requests,
			load_level, predictive_failure_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, r.schema)

	if _, err := r.db.ExecContext(ctx, query,
		snap.ID, snap.AgentID, snap.SnapshotTime,
		snap.Score.Overall, snap.Score.Reliability, snap.Score.Performance,
		snap.Score.CostEfficiency, snap.Score.CapabilityMatch, snap.Score.Load,
		snap.Score.Historical, snap.ActiveRequests, snap.LoadLevel,
		snap.PredictiveFailureScore,
	); err != nil {
		return fmt.Errorf("failed to insert performance snapshot: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/S-Corkum/agent-router/internal/models"
)

// UpsertSpecialization inserts or refreshes a discovered specialization,
// unique on (agent_id, specialization_type).
func (r *Postgres) UpsertSpecialization(ctx context.Context, spec *models.AgentSpecialization) error {
	if spec.ID == uuid.Nil {
		spec.ID = uuid.New()
	}
	now := time.Now().UTC()
	if spec.DiscoveredAt.IsZero() {
		spec.DiscoveredAt = now
	}
	spec.LastValidated = now

	complexities := make([]string, len(spec.ComplexityPreferences))
	for i, c := range spec.ComplexityPreferences {
		complexities[i] = string(c)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.agent_specializations (
			id, agent_id, specialization_type, task_types, complexity_preferences,
			confidence_score, performance_advantage, sample_size,
			discovered_at, last_validated, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (agent_id, specialization_type) DO UPDATE SET
			task_types = EXCLUDED.task_types,
			complexity_preferences = EXCLUDED.complexity_preferences,
			confidence_score = EXCLUDED.confidence_score,
			performance_advantage = EXCLUDED.performance_advantage,
			sample_size = EXCLUDED.sample_size,
			last_validated = EXCLUDED.last_validated,
			is_active = EXCLUDED.is_active
	`, r.schema)

	if _, err := r.db.ExecContext(ctx, query,
		spec.ID, spec.AgentID, spec.SpecializationType,
		pq.Array(spec.TaskTypes), pq.Array(complexities),
		spec.Confidence, spec.PerformanceAdvantage, spec.SampleSize,
		spec.DiscoveredAt, spec.LastValidated, spec.IsActive,
	); err != nil {
		return fmt.Errorf("failed to upsert specialization: %w", err)
	}
	return nil
}

// DeactivateSpecializations marks an agent's specializations inactive
// except those whose types are in keep. Used when a rescan supersedes
// previously discovered facts.
func (r *Postgres) DeactivateSpecializations(ctx context.Context, agentID string, keep []string) error {
	query := fmt.Sprintf(`
		UPDATE %s.agent_specializations
		SET is_active = false, last_validated = $3
		WHERE agent_id = $1 AND is_active = true AND NOT (specialization_type = ANY($2))
	`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, agentID, pq.Array(keep), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to deactivate specializations: %w", err)
	}
	return nil
}

// ListActiveSpecializations returns all active specializations
func (r *Postgres) ListActiveSpecializations(ctx context.Context) ([]*models.AgentSpecialization, error) {
	query := fmt.Sprintf(`
		SELECT id, agent_id, specialization_type, task_types, complexity_preferences,
		       confidence_score, performance_advantage, sample_size,
		       discovered_at, last_validated, is_active
		FROM %s.agent_specializations
		WHERE is_active = true
		ORDER BY agent_id, specialization_type
	`, r.schema)
	return r.querySpecializations(ctx, query)
}

func (r *Postgres) querySpecializations(ctx context.Context, query string, args ...interface{}) ([]*models.AgentSpecialization, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query specializations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var specs []*models.AgentSpecialization
	for rows.Next() {
		var spec models.AgentSpecialization
		var taskTypes, complexities pq.StringArray
		if err := rows.Scan(
			&spec.ID, &spec.AgentID, &spec.SpecializationType, &taskTypes, &complexities,
			&spec.Confidence, &spec.PerformanceAdvantage, &spec.SampleSize,
			&spec.DiscoveredAt, &spec.LastValidated, &spec.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan specialization row: %w", err)
		}
		spec.TaskTypes = taskTypes
		spec.ComplexityPreferences = make([]models.Complexity, len(complexities))
		for i, c := range complexities {
			spec.ComplexityPreferences[i] = models.Complexity(c)
		}
		specs = append(specs, &spec)
	}
	return specs, rows.Err()
}

// InsertOptimization persists a new weight matrix snapshot and activates
// it, deactivating the prior active row in the same transaction so that
// readers always see exactly one active snapshot.
func (r *Postgres) InsertOptimization(ctx context.Context, opt *models.RoutingOptimization) error {
	if opt.ID == uuid.Nil {
		opt.ID = uuid.New()
	}
	if opt.AppliedAt.IsZero() {
		opt.AppliedAt = time.Now().UTC()
	}

	weightsJSON, err := json.Marshal(opt.AgentWeights)
	if err != nil {
		return fmt.Errorf("failed to marshal agent weights: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deactivate := fmt.Sprintf(`
		UPDATE %s.routing_optimizations SET is_active = false WHERE is_active = true
	`, r.schema)
	if _, err := tx.ExecContext(ctx, deactivate); err != nil {
		return fmt.Errorf("failed to deactivate prior optimization: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s.routing_optimizations (
			id, optimization_version, agent_weights, performance_improvement,
			confidence_lower, confidence_upper, optimization_method, sample_size,
			applied_at, validation_period_days, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true)
	`, r.schema)
	if _, err := tx.ExecContext(ctx, insert,
		opt.ID, opt.OptimizationVersion, weightsJSON, opt.PerformanceImprovement,
		opt.ConfidenceLower, opt.ConfidenceUpper, opt.OptimizationMethod,
		opt.SampleSize, opt.AppliedAt, opt.ValidationPeriodDays,
	); err != nil {
		return fmt.Errorf("failed to insert optimization: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit optimization swap: %w", err)
	}
	opt.IsActive = true
	return nil
}

// GetActiveOptimization returns the single active snapshot, or
// ErrNotFound before the first optimization run.
func (r *Postgres) GetActiveOptimization(ctx context.Context) (*models.RoutingOptimization, error) {
	query := fmt.Sprintf(`
		SELECT id, optimization_version, agent_weights, performance_improvement,
		       confidence_lower, confidence_upper, optimization_method, sample_size,
		       applied_at, validation_period_days, is_active
		FROM %s.routing_optimizations
		WHERE is_active = true
	`, r.schema)

	row := r.db.QueryRowxContext(ctx, query)

	var opt models.RoutingOptimization
	var weightsJSON []byte
	if err := row.Scan(
		&opt.ID, &opt.OptimizationVersion, &weightsJSON, &opt.PerformanceImprovement,
		&opt.ConfidenceLower, &opt.ConfidenceUpper, &opt.OptimizationMethod,
		&opt.SampleSize, &opt.AppliedAt, &opt.ValidationPeriodDays, &opt.IsActive,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active optimization: %w", err)
	}
	if err := json.Unmarshal(weightsJSON, &opt.AgentWeights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent weights: %w", err)
	}
	return &opt, nil
}

// InsertPrediction persists an emitted success prediction for later
// calibration.
func (r *Postgres) InsertPrediction(ctx context.Context, pred *models.SuccessPrediction) error {
	if pred.ID == uuid.Nil {
		pred.ID = uuid.New()
	}
	if pred.CreatedAt.IsZero() {
		pred.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.success_predictions (
			id, agent_id, task_type, complexity, predicted_success_rate,
			confidence_lower, confidence_upper, risk_factors, prediction_model,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.schema)

	if _, err := r.db.ExecContext(ctx, query,
		pred.ID, pred.AgentID, pred.TaskType, pred.Complexity, pred.PredictedRate,
		pred.ConfidenceLower, pred.ConfidenceUpper, pq.Array(pred.RiskFactors),
		pred.PredictionModel, pred.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// UnvalidatedPredictions returns predictions awaiting calibration that
// were created after the cutoff (older ones are abandoned).
func (r *Postgres) UnvalidatedPredictions(ctx context.Context, createdAfter time.Time, limit int) ([]*models.SuccessPrediction, error) {
	query := fmt.Sprintf(`
		SELECT id, agent_id, task_type, complexity, predicted_success_rate,
		       confidence_lower, confidence_upper, risk_factors, prediction_model,
		       prediction_accuracy, actual_outcome_id, created_at, validated_at
		FROM %s.success_predictions
		WHERE validated_at IS NULL AND created_at >= $1
		ORDER BY created_at ASC
		LIMIT $2
	`, r.schema)

	rows, err := r.db.QueryxContext(ctx, query, createdAfter, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unvalidated predictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var preds []*models.SuccessPrediction
	for rows.Next() {
		var pred models.SuccessPrediction
		var risks pq.StringArray
		if err := rows.Scan(
			&pred.ID, &pred.AgentID, &pred.TaskType, &pred.Complexity, &pred.PredictedRate,
			&pred.ConfidenceLower, &pred.ConfidenceUpper, &risks, &pred.PredictionModel,
			&pred.Accuracy, &pred.ActualOutcomeID, &pred.CreatedAt, &pred.ValidatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan prediction row: %w", err)
		}
		pred.RiskFactors = risks
		preds = append(preds, &pred)
	}
	return preds, rows.Err()
}

// ValidatePrediction links a prediction to its observed outcome and
// records the calibration accuracy.
func (r *Postgres) ValidatePrediction(ctx context.Context, predictionID, outcomeID uuid.UUID, accuracy float64) error {
	query := fmt.Sprintf(`
		UPDATE %s.success_predictions
		SET actual_outcome_id = $2, prediction_accuracy = $3, validated_at = $4
		WHERE id = $1 AND validated_at IS NULL
	`, r.schema)
	if _, err := r.db.ExecContext(ctx, query, predictionID, outcomeID, accuracy, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to validate prediction: %w", err)
	}
	return nil
}

// InsertLearningMetric persists one learning measurement row
func (r *Postgres) InsertLearningMetric(ctx context.Context, metric *models.LearningMetric) error {
	if metric.ID == uuid.Nil {
		metric.ID = uuid.New()
	}
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now().UTC()
	}

	metadataJSON, err := marshalBlob(metric.Metadata)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.learning_metrics (
			id, metric_name, metric_value, metric_metadata, measurement_timestamp
		) VALUES ($1, $2, $3, $4, $5)
	`, r.schema)
	if _, err := r.db.ExecContext(ctx, query,
		metric.ID, metric.Name, metric.Value, metadataJSON, metric.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to insert learning metric: %w", err)
	}
	return nil
}

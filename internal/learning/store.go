package learning

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agent-router/internal/models"
)

// Store is the persistence surface the learning engine needs. The
// Postgres repository satisfies it; tests substitute mocks.
type Store interface {
	// Outcome aggregation
	OutcomeGroups(ctx context.Context, since time.Time, minSamples int) ([]models.OutcomeGroupStats, error)
	AgentOutcomes(ctx context.Context, agentID string, since time.Time, limit int) ([]*models.TaskOutcome, error)
	FindOutcomeForPrediction(ctx context.Context, agentID, taskType string, complexity models.Complexity, after time.Time) (*models.TaskOutcome, error)

	// Specializations
	UpsertSpecialization(ctx context.Context, spec *models.AgentSpecialization) error
	DeactivateSpecializations(ctx context.Context, agentID string, keep []string) error
	ListActiveSpecializations(ctx context.Context) ([]*models.AgentSpecialization, error)

	// Optimizations
	InsertOptimization(ctx context.Context, opt *models.RoutingOptimization) error
	GetActiveOptimization(ctx context.Context) (*models.RoutingOptimization, error)

	// Predictions
	InsertPrediction(ctx context.Context, pred *models.SuccessPrediction) error
	UnvalidatedPredictions(ctx context.Context, createdAfter time.Time, limit int) ([]*models.SuccessPrediction, error)
	ValidatePrediction(ctx context.Context, predictionID, outcomeID uuid.UUID, accuracy float64) error

	// Metrics
	InsertLearningMetric(ctx context.Context, metric *models.LearningMetric) error
}

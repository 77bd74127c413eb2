package learning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/S-Corkum/agent-router/internal/models"
)

// mockStore is a testify mock over the learning Store interface shared
// by the learning package tests.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) OutcomeGroups(ctx context.Context, since time.Time, minSamples int) ([]models.OutcomeGroupStats, error) {
	args := m.Called(ctx, since, minSamples)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OutcomeGroupStats), args.Error(1)
}

func (m *mockStore) AgentOutcomes(ctx context.Context, agentID string, since time.Time, limit int) ([]*models.TaskOutcome, error) {
	args := m.Called(ctx, agentID, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TaskOutcome), args.Error(1)
}

func (m *mockStore) FindOutcomeForPrediction(ctx context.Context, agentID, taskType string, complexity models.Complexity, after time.Time) (*models.TaskOutcome, error) {
	args := m.Called(ctx, agentID, taskType, complexity, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaskOutcome), args.Error(1)
}

func (m *mockStore) UpsertSpecialization(ctx context.Context, spec *models.AgentSpecialization) error {
	args := m.Called(ctx, spec)
	return args.Error(0)
}

func (m *mockStore) DeactivateSpecializations(ctx context.Context, agentID string, keep []string) error {
	args := m.Called(ctx, agentID, keep)
	return args.Error(0)
}

func (m *mockStore) ListActiveSpecializations(ctx context.Context) ([]*models.AgentSpecialization, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AgentSpecialization), args.Error(1)
}

func (m *mockStore) InsertOptimization(ctx context.Context, opt *models.RoutingOptimization) error {
	args := m.Called(ctx, opt)
	return args.Error(0)
}

func (m *mockStore) GetActiveOptimization(ctx context.Context) (*models.RoutingOptimization, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoutingOptimization), args.Error(1)
}

func (m *mockStore) InsertPrediction(ctx context.Context, pred *models.SuccessPrediction) error {
	args := m.Called(ctx, pred)
	return args.Error(0)
}

func (m *mockStore) UnvalidatedPredictions(ctx context.Context, createdAfter time.Time, limit int) ([]*models.SuccessPrediction, error) {
	args := m.Called(ctx, createdAfter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SuccessPrediction), args.Error(1)
}

func (m *mockStore) ValidatePrediction(ctx context.Context, predictionID, outcomeID uuid.UUID, accuracy float64) error {
	args := m.Called(ctx, predictionID, outcomeID, accuracy)
	return args.Error(0)
}

func (m *mockStore) InsertLearningMetric(ctx context.Context, metric *models.LearningMetric) error {
	args := m.Called(ctx, metric)
	return args.Error(0)
}

var _ Store = (*mockStore)(nil)

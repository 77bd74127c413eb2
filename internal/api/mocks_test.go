package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/S-Corkum/agent-router/internal/learning"
	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/routing"
)

// mockAPIStore is a testify mock over the handler-facing Store interface.
type mockAPIStore struct {
	mock.Mock
}

func (m *mockAPIStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	args := m.Called(ctx, agent)
	return args.Error(0)
}

func (m *mockAPIStore) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *mockAPIStore) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Agent), args.Error(1)
}

func (m *mockAPIStore) UpdateAgentStatus(ctx context.Context, agentID string, status models.AgentStatus) error {
	args := m.Called(ctx, agentID, status)
	return args.Error(0)
}

func (m *mockAPIStore) ListBreakerStates(ctx context.Context) ([]models.CircuitBreakerState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CircuitBreakerState), args.Error(1)
}

func (m *mockAPIStore) GetRoutingRecord(ctx context.Context, routingID uuid.UUID) (*models.RoutingRecord, error) {
	args := m.Called(ctx, routingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoutingRecord), args.Error(1)
}

func (m *mockAPIStore) RoutingOverall(ctx context.Context, since time.Time) (*models.AnalyticsOverall, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AnalyticsOverall), args.Error(1)
}

func (m *mockAPIStore) OutcomesPerAgent(ctx context.Context, since time.Time) ([]models.AgentAggregate, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AgentAggregate), args.Error(1)
}

func (m *mockAPIStore) OutcomesPerTaskType(ctx context.Context, since time.Time) ([]models.TaskTypeAggregate, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TaskTypeAggregate), args.Error(1)
}

var _ Store = (*mockAPIStore)(nil)

// mockRoutingStore backs the real routing components under the server.
type mockRoutingStore struct {
	mock.Mock
}

func (m *mockRoutingStore) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Agent), args.Error(1)
}

func (m *mockRoutingStore) ListActiveAgents(ctx context.Context) ([]*models.Agent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Agent), args.Error(1)
}

func (m *mockRoutingStore) GetBreakerStates(ctx context.Context, agentIDs []string) (map[string]*models.CircuitBreakerState, error) {
	args := m.Called(ctx, agentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*models.CircuitBreakerState), args.Error(1)
}

func (m *mockRoutingStore) ListBreakerStates(ctx context.Context) ([]models.CircuitBreakerState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CircuitBreakerState), args.Error(1)
}

func (m *mockRoutingStore) TransitionBreaker(ctx context.Context, agentID string, from, to models.BreakerState) (bool, error) {
	args := m.Called(ctx, agentID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockRoutingStore) RecordBreakerResult(ctx context.Context, agentID string, success bool, failureThreshold, recoveryTimeoutMs int) error {
	args := m.Called(ctx, agentID, success, failureThreshold, recoveryTimeoutMs)
	return args.Error(0)
}

func (m *mockRoutingStore) InsertRoutingRecord(ctx context.Context, record *models.RoutingRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockRoutingStore) CompleteRoutingRecord(ctx context.Context, routingID uuid.UUID, agentID string, success bool, executionMs float64, costCents *int) (bool, error) {
	args := m.Called(ctx, routingID, agentID, success, executionMs, costCents)
	return args.Bool(0), args.Error(1)
}

func (m *mockRoutingStore) InsertOutcome(ctx context.Context, outcome *models.TaskOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

func (m *mockRoutingStore) AgentAggregate(ctx context.Context, agentID string, since time.Time) (*models.AgentAggregate, error) {
	args := m.Called(ctx, agentID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AgentAggregate), args.Error(1)
}

func (m *mockRoutingStore) TaskTypeAggregate(ctx context.Context, agentID, taskType string, complexity models.Complexity, since time.Time) (*models.TaskTypeAggregate, error) {
	args := m.Called(ctx, agentID, taskType, complexity, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaskTypeAggregate), args.Error(1)
}

func (m *mockRoutingStore) InsertSnapshot(ctx context.Context, snap *models.PerformanceSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

var _ routing.Store = (*mockRoutingStore)(nil)

// mockLearningStore backs the real learning components under the server.
type mockLearningStore struct {
	mock.Mock
}

func (m *mockLearningStore) OutcomeGroups(ctx context.Context, since time.Time, minSamples int) ([]models.OutcomeGroupStats, error) {
	args := m.Called(ctx, since, minSamples)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OutcomeGroupStats), args.Error(1)
}

func (m *mockLearningStore) AgentOutcomes(ctx context.Context, agentID string, since time.Time, limit int) ([]*models.TaskOutcome, error) {
	args := m.Called(ctx, agentID, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TaskOutcome), args.Error(1)
}

func (m *mockLearningStore) FindOutcomeForPrediction(ctx context.Context, agentID, taskType string, complexity models.Complexity, after time.Time) (*models.TaskOutcome, error) {
	args := m.Called(ctx, agentID, taskType, complexity, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaskOutcome), args.Error(1)
}

func (m *mockLearningStore) UpsertSpecialization(ctx context.Context, spec *models.AgentSpecialization) error {
	args := m.Called(ctx, spec)
	return args.Error(0)
}

func (m *mockLearningStore) DeactivateSpecializations(ctx context.Context, agentID string, keep []string) error {
	args := m.Called(ctx, agentID, keep)
	return args.Error(0)
}

func (m *mockLearningStore) ListActiveSpecializations(ctx context.Context) ([]*models.AgentSpecialization, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AgentSpecialization), args.Error(1)
}

func (m *mockLearningStore) InsertOptimization(ctx context.Context, opt *models.RoutingOptimization) error {
	args := m.Called(ctx, opt)
	return args.Error(0)
}

func (m *mockLearningStore) GetActiveOptimization(ctx context.Context) (*models.RoutingOptimization, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoutingOptimization), args.Error(1)
}

func (m *mockLearningStore) InsertPrediction(ctx context.Context, pred *models.SuccessPrediction) error {
	args := m.Called(ctx, pred)
	return args.Error(0)
}

func (m *mockLearningStore) UnvalidatedPredictions(ctx context.Context, createdAfter time.Time, limit int) ([]*models.SuccessPrediction, error) {
	args := m.Called(ctx, createdAfter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SuccessPrediction), args.Error(1)
}

func (m *mockLearningStore) ValidatePrediction(ctx context.Context, predictionID, outcomeID uuid.UUID, accuracy float64) error {
	args := m.Called(ctx, predictionID, outcomeID, accuracy)
	return args.Error(0)
}

func (m *mockLearningStore) InsertLearningMetric(ctx context.Context, metric *models.LearningMetric) error {
	args := m.Called(ctx, metric)
	return args.Error(0)
}

var _ learning.Store = (*mockLearningStore)(nil)

package routing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/S-Corkum/agent-router/internal/models"
)

// mockStore is a testify mock over the Store interface shared by the
// routing package tests.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Agent), args.Error(1)
}

func (m *mockStore) ListActiveAgents(ctx context.Context) ([]*models.Agent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Agent), args.Error(1)
}

func (m *mockStore) GetBreakerStates(ctx context.Context, agentIDs []string) (map[string]*models.CircuitBreakerState, error) {
	args := m.Called(ctx, agentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*models.CircuitBreakerState), args.Error(1)
}

func (m *mockStore) ListBreakerStates(ctx context.Context) ([]models.CircuitBreakerState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CircuitBreakerState), args.Error(1)
}

func (m *mockStore) TransitionBreaker(ctx context.Context, agentID string, from, to models.BreakerState) (bool, error) {
	args := m.Called(ctx, agentID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) RecordBreakerResult(ctx context.Context, agentID string, success bool, failureThreshold, recoveryTimeoutMs int) error {
	args := m.Called(ctx, agentID, success, failureThreshold, recoveryTimeoutMs)
	return args.Error(0)
}

func (m *mockStore) InsertRoutingRecord(ctx context.Context, record *models.RoutingRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockStore) CompleteRoutingRecord(ctx context.Context, routingID uuid.UUID, agentID string, success bool, executionMs float64, costCents *int) (bool, error) {
	args := m.Called(ctx, routingID, agentID, success, executionMs, costCents)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) InsertOutcome(ctx context.Context, outcome *models.TaskOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

func (m *mockStore) AgentAggregate(ctx context.Context, agentID string, since time.Time) (*models.AgentAggregate, error) {
	args := m.Called(ctx, agentID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AgentAggregate), args.Error(1)
}

func (m *mockStore) TaskTypeAggregate(ctx context.Context, agentID, taskType string, complexity models.Complexity, since time.Time) (*models.TaskTypeAggregate, error) {
	args := m.Called(ctx, agentID, taskType, complexity, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaskTypeAggregate), args.Error(1)
}

func (m *mockStore) InsertSnapshot(ctx context.Context, snap *models.PerformanceSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

var _ Store = (*mockStore)(nil)

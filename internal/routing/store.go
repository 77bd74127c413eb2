package routing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/S-Corkum/agent-router/internal/models"
)

// Store is the persistence surface the routing components need. The
// Postgres repository satisfies it; tests substitute mocks.
type Store interface {
	// Agents
	ListAgents(ctx context.Context) ([]*models.Agent, error)
	ListActiveAgents(ctx context.Context) ([]*models.Agent, error)

	// Circuit breakers
	GetBreakerStates(ctx context.Context, agentIDs []string) (map[string]*models.CircuitBreakerState, error)
	ListBreakerStates(ctx context.Context) ([]models.CircuitBreakerState, error)
	TransitionBreaker(ctx context.Context, agentID string, from, to models.BreakerState) (bool, error)
	RecordBreakerResult(ctx context.Context, agentID string, success bool, failureThreshold, recoveryTimeoutMs int) error

	// Routing records
	InsertRoutingRecord(ctx context.Context, record *models.RoutingRecord) error
	CompleteRoutingRecord(ctx context.Context, routingID uuid.UUID, agentID string, success bool, executionMs float64, costCents *int) (bool, error)

	// Outcomes
	InsertOutcome(ctx context.Context, outcome *models.TaskOutcome) error
	AgentAggregate(ctx context.Context, agentID string, since time.Time) (*models.AgentAggregate, error)
	TaskTypeAggregate(ctx context.Context, agentID, taskType string, complexity models.Complexity, since time.Time) (*models.TaskTypeAggregate, error)

	// Snapshots
	InsertSnapshot(ctx context.Context, snap *models.PerformanceSnapshot) error
}

package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S-Corkum/agent-router/internal/models"
)

func newMockRepo(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(sqlx.NewDb(db, "sqlmock"), "router"), mock
}

func TestCompleteRoutingRecordIsIdempotent(t *testing.T) {
	repo, mock := newMockRepo(t)
	routingID := uuid.New()

	mock.ExpectExec(`UPDATE router\.agent_routing_metrics`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE router\.agent_routing_metrics`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.CompleteRoutingRecord(context.Background(), routingID, "a", true, 1200, nil)
	require.NoError(t, err)
	assert.True(t, updated)

	// The guarded UPDATE matches nothing the second time.
	updated, err = repo.CompleteRoutingRecord(context.Background(), routingID, "a", true, 1200, nil)
	require.NoError(t, err)
	assert.False(t, updated)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRoutingRecordAssignsID(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO router\.agent_routing_metrics`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &models.RoutingRecord{
		RoutingID:  uuid.New(),
		AgentID:    "a",
		TaskType:   "code_review",
		Complexity: models.ComplexityModerate,
	}
	require.NoError(t, repo.InsertRoutingRecord(context.Background(), record))

	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAgentStatusNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE router\.agents SET status`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAgentStatus(context.Background(), "ghost", models.AgentStatusInactive)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAgentNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`FROM router\.agents WHERE id`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetAgent(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionBreakerConditionalUpdate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE router\.agent_circuit_breakers\s+SET state = 'open'`).
		WithArgs("a", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.TransitionBreaker(context.Background(), "a", models.BreakerClosed, models.BreakerOpen)
	require.NoError(t, err)
	assert.True(t, won)

	// A concurrent transition already moved the row: zero rows affected
	// means this call lost the race, not an error.
	mock.ExpectExec(`UPDATE router\.agent_circuit_breakers\s+SET state = 'half_open'`).
		WithArgs("a", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err = repo.TransitionBreaker(context.Background(), "a", models.BreakerOpen, models.BreakerHalfOpen)
	require.NoError(t, err)
	assert.False(t, won)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionBreakerRejectsUnsupportedPair(t *testing.T) {
	repo, _ := newMockRepo(t)

	_, err := repo.TransitionBreaker(context.Background(), "a", models.BreakerClosed, models.BreakerHalfOpen)
	assert.Error(t, err)
}

func TestRecordBreakerResultUpserts(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO router\.agent_circuit_breakers`).
		WithArgs("a", 5, 60_000, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RecordBreakerResult(context.Background(), "a", true, 5, 60_000))

	mock.ExpectExec(`INSERT INTO router\.agent_circuit_breakers`).
		WithArgs("a", 5, 60_000, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RecordBreakerResult(context.Background(), "a", false, 5, 60_000))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertOptimizationSwapsActiveRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE router\.routing_optimizations SET is_active = false`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO router\.routing_optimizations`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	opt := &models.RoutingOptimization{
		OptimizationVersion: "opt-20260824-120000",
		AgentWeights:        models.WeightMatrix{"a": {"code_review_moderate": 0.8}},
		OptimizationMethod:  "ensemble",
		SampleSize:          100,
	}
	require.NoError(t, repo.InsertOptimization(context.Background(), opt))

	assert.True(t, opt.IsActive)
	assert.NotEqual(t, uuid.Nil, opt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertOptimizationRollsBackOnFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE router\.routing_optimizations SET is_active = false`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.InsertOptimization(context.Background(), &models.RoutingOptimization{
		OptimizationVersion: "opt-20260824-120000",
		AgentWeights:        models.WeightMatrix{},
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveOptimizationParsesWeights(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	applied := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "optimization_version", "agent_weights", "performance_improvement",
		"confidence_lower", "confidence_upper", "optimization_method", "sample_size",
		"applied_at", "validation_period_days", "is_active",
	}).AddRow(id, "opt-20260824-120000", []byte(`{"a":{"code_review_moderate":0.8}}`),
		0.05, 0.035, 0.065, "ensemble", 100, applied, 7, true)
	mock.ExpectQuery(`FROM router\.routing_optimizations`).WillReturnRows(rows)

	opt, err := repo.GetActiveOptimization(context.Background())
	require.NoError(t, err)

	w, ok := opt.AgentWeights.Get("a", "code_review_moderate")
	require.True(t, ok)
	assert.InDelta(t, 0.8, w, 1e-9)
	assert.True(t, opt.IsActive)
}

func TestGetActiveOptimizationNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`FROM router\.routing_optimizations`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetActiveOptimization(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

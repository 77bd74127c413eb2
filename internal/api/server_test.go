package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/S-Corkum/agent-router/internal/config"
	"github.com/S-Corkum/agent-router/internal/learning"
	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
	"github.com/S-Corkum/agent-router/internal/routing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type serverFixture struct {
	apiStore      *mockAPIStore
	routingStore  *mockRoutingStore
	learningStore *mockLearningStore
	loads         *routing.LoadTracker
	server        *Server
}

func newServerFixture(learningEnabled bool) *serverFixture {
	apiStore := &mockAPIStore{}
	routingStore := &mockRoutingStore{}
	learningStore := &mockLearningStore{}

	logger := observability.NoopLogger{}
	metrics := observability.NoopMetricsClient{}

	loads := routing.NewLoadTracker(10)
	pending := routing.NewPendingRoutings()
	registry := routing.NewRegistry(routingStore, logger)
	breaker := routing.NewCircuitBreaker(routingStore, config.BreakerConfig{
		FailureThreshold:        5,
		RecoveryTimeoutMs:       60_000,
		HalfOpenSuccessRequired: 3,
	}, logger, metrics)
	scorer := routing.NewScorer(routingStore, nil, loads, logger)
	selector := routing.NewSelector(registry, breaker, scorer, loads, pending, routingStore, logger, metrics)

	engine := learning.NewEngine(learningStore, config.LearningConfig{
		Enabled:             learningEnabled,
		LearningRate:        0.01,
		MinimumSampleSize:   50,
		PredictionThreshold: 0.6,
	}, logger, metrics)
	predictor := learning.NewPredictor(learningStore, engine, logger, metrics)
	router := learning.NewIntelligentRouter(selector, engine, predictor, logger, metrics)
	optimizer := learning.NewOptimizer(learningStore, engine, logger, metrics)
	recorder := routing.NewOutcomeRecorder(routingStore, breaker, loads, scorer, pending, engine, logger, metrics)

	server := NewServer(config.APIConfig{ListenAddress: ":0", RequestTimeout: 5 * time.Second}, Deps{
		Store:     apiStore,
		Router:    router,
		Recorder:  recorder,
		Optimizer: optimizer,
		Engine:    engine,
		Scorer:    scorer,
		Loads:     loads,
		Logger:    logger,
		Metrics:   metrics,
	})
	return &serverFixture{
		apiStore:      apiStore,
		routingStore:  routingStore,
		learningStore: learningStore,
		loads:         loads,
		server:        server,
	}
}

func (f *serverFixture) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *serverFixture) expectRoutableAgents(ids ...string) {
	out := make([]*models.Agent, len(ids))
	for i, id := range ids {
		out[i] = &models.Agent{ID: id, Status: models.AgentStatusActive}
	}
	f.routingStore.On("ListActiveAgents", mock.Anything).Return(out, nil)
	f.routingStore.On("GetBreakerStates", mock.Anything, mock.Anything).
		Return(map[string]*models.CircuitBreakerState{}, nil)
	f.routingStore.On("AgentAggregate", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.AgentAggregate{}, nil)
	f.routingStore.On("TaskTypeAggregate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&models.TaskTypeAggregate{}, nil)
	f.routingStore.On("InsertRoutingRecord", mock.Anything, mock.Anything).Return(nil)
}

func TestLiveness(t *testing.T) {
	f := newServerFixture(false)
	w := f.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouteReturnsSelection(t *testing.T) {
	f := newServerFixture(false)
	f.expectRoutableAgents("agent-1")

	w := f.request(t, http.MethodPost, "/api/v1/route", gin.H{
		"task_type":  "code_review",
		"complexity": "moderate",
		"priority":   5,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		AgentID    string  `json:"agent_id"`
		RoutingID  string  `json:"routing_id"`
		Confidence float64 `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "agent-1", resp.AgentID)
	assert.NotEmpty(t, resp.RoutingID)
	assert.Greater(t, resp.Confidence, 0.0)
	assert.Equal(t, 1, f.loads.Count("agent-1"))

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Contains(t, raw, "learning_insights")
	assert.Contains(t, raw, "optimization_confidence")
	assert.Contains(t, raw, "alternatives")
	assert.Contains(t, raw, "explanation")
}

func TestRouteValidatesRequest(t *testing.T) {
	f := newServerFixture(false)

	w := f.request(t, http.MethodPost, "/api/v1/route", gin.H{"complexity": "moderate"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.request(t, http.MethodPost, "/api/v1/route", gin.H{"task_type": "x", "complexity": "extreme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouteNoCapableAgentIs404(t *testing.T) {
	f := newServerFixture(false)
	f.routingStore.On("ListActiveAgents", mock.Anything).Return([]*models.Agent{}, nil)

	w := f.request(t, http.MethodPost, "/api/v1/route", gin.H{"task_type": "code_review"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(routing.KindNoCapableAgent), resp.Error)
}

func TestRouteAllBreakersOpenIs503(t *testing.T) {
	f := newServerFixture(false)
	retry := time.Now().UTC().Add(time.Minute)
	f.routingStore.On("ListActiveAgents", mock.Anything).
		Return([]*models.Agent{{ID: "a", Status: models.AgentStatusActive}}, nil)
	f.routingStore.On("GetBreakerStates", mock.Anything, mock.Anything).
		Return(map[string]*models.CircuitBreakerState{
			"a": {AgentID: "a", State: models.BreakerOpen, NextRetryTime: &retry},
		}, nil)

	w := f.request(t, http.MethodPost, "/api/v1/route", gin.H{"task_type": "code_review"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestOutcomeRoundTrip(t *testing.T) {
	f := newServerFixture(false)
	f.expectRoutableAgents("agent-1")
	f.routingStore.On("CompleteRoutingRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(true, nil)
	f.routingStore.On("RecordBreakerResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)
	f.routingStore.On("InsertOutcome", mock.Anything, mock.Anything).Return(nil)

	w := f.request(t, http.MethodPost, "/api/v1/route", gin.H{"task_type": "code_review"})
	require.Equal(t, http.StatusOK, w.Code)
	var selection struct {
		RoutingID string `json:"routing_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &selection))

	report := gin.H{"routing_id": selection.RoutingID, "success": true, "execution_ms": 1200}
	w = f.request(t, http.MethodPost, "/api/v1/outcomes", report)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, f.loads.Count("agent-1"))

	// A duplicate report is rejected without side effects.
	w = f.request(t, http.MethodPost, "/api/v1/outcomes", report)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOutcomeDeferredIs202(t *testing.T) {
	f := newServerFixture(false)
	f.expectRoutableAgents("agent-1")
	f.routingStore.On("CompleteRoutingRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, assert.AnError)

	w := f.request(t, http.MethodPost, "/api/v1/route", gin.H{"task_type": "code_review"})
	require.Equal(t, http.StatusOK, w.Code)
	var selection struct {
		RoutingID string `json:"routing_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &selection))

	w = f.request(t, http.MethodPost, "/api/v1/outcomes", gin.H{
		"routing_id": selection.RoutingID, "success": false, "execution_ms": 300,
	})
	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Deferred bool `json:"deferred"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Deferred)
}

func TestOutcomeUnknownRoutingIs404(t *testing.T) {
	f := newServerFixture(false)

	w := f.request(t, http.MethodPost, "/api/v1/outcomes", gin.H{
		"routing_id": uuid.NewString(), "success": true,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRoutingValidation(t *testing.T) {
	f := newServerFixture(false)

	w := f.request(t, http.MethodGet, "/api/v1/routings/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAgentDefaults(t *testing.T) {
	f := newServerFixture(false)
	f.apiStore.On("CreateAgent", mock.Anything, mock.Anything).Return(nil).Once()

	w := f.request(t, http.MethodPost, "/api/v1/agents", gin.H{
		"name":         "Coder",
		"max_workload": 20,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var agent models.Agent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agent))
	assert.NotEmpty(t, agent.ID)
	assert.Equal(t, models.AgentStatusActive, agent.Status)
	f.apiStore.AssertExpectations(t)
}

func TestCreateAgentRejectsInvalidStatus(t *testing.T) {
	f := newServerFixture(false)

	w := f.request(t, http.MethodPost, "/api/v1/agents", gin.H{
		"name":   "Coder",
		"status": "hibernating",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAgentStatus(t *testing.T) {
	f := newServerFixture(false)
	f.apiStore.On("UpdateAgentStatus", mock.Anything, "agent-1", models.AgentStatusInactive).Return(nil).Once()

	w := f.request(t, http.MethodPut, "/api/v1/agents/agent-1/status", gin.H{"status": "inactive"})
	assert.Equal(t, http.StatusOK, w.Code)
	f.apiStore.AssertExpectations(t)
}

func TestHealthStatusDefaultsBreakerClosed(t *testing.T) {
	f := newServerFixture(false)
	f.apiStore.On("ListAgents", mock.Anything).Return([]*models.Agent{
		{ID: "a", Name: "Coder", Status: models.AgentStatusActive},
		{ID: "b", Name: "Reviewer", Status: models.AgentStatusActive},
	}, nil)
	f.apiStore.On("ListBreakerStates", mock.Anything).Return([]models.CircuitBreakerState{
		{AgentID: "b", State: models.BreakerOpen},
	}, nil)
	f.routingStore.On("AgentAggregate", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.AgentAggregate{}, nil)

	w := f.request(t, http.MethodGet, "/api/v1/agents/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Agents []struct {
			AgentID      string              `json:"agent_id"`
			BreakerState models.BreakerState `json:"breaker_state"`
		} `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Agents, 2)
	assert.Equal(t, models.BreakerClosed, resp.Agents[0].BreakerState)
	assert.Equal(t, models.BreakerOpen, resp.Agents[1].BreakerState)
}

func TestAnalyticsWindowValidation(t *testing.T) {
	f := newServerFixture(false)

	w := f.request(t, http.MethodGet, "/api/v1/analytics?window_hours=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.request(t, http.MethodGet, "/api/v1/analytics?window_hours=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyticsReport(t *testing.T) {
	f := newServerFixture(false)
	f.apiStore.On("RoutingOverall", mock.Anything, mock.Anything).
		Return(&models.AnalyticsOverall{TotalRoutings: 42, SuccessRate: 0.9}, nil)
	f.apiStore.On("OutcomesPerAgent", mock.Anything, mock.Anything).
		Return([]models.AgentAggregate{}, nil)
	f.apiStore.On("OutcomesPerTaskType", mock.Anything, mock.Anything).
		Return([]models.TaskTypeAggregate{}, nil)
	f.apiStore.On("ListBreakerStates", mock.Anything).
		Return([]models.CircuitBreakerState{}, nil)

	w := f.request(t, http.MethodGet, "/api/v1/analytics?window_hours=48", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Report struct {
			WindowHours int `json:"window_hours"`
			Overall     struct {
				TotalRoutings int `json:"total_routings"`
			} `json:"overall"`
		} `json:"report"`
		Learning struct {
			BufferedOutcomes int `json:"buffered_outcomes"`
		} `json:"learning"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 48, resp.Report.WindowHours)
	assert.Equal(t, 42, resp.Report.Overall.TotalRoutings)
}

func TestOptimizeUnderflowIs422(t *testing.T) {
	f := newServerFixture(false)
	f.learningStore.On("OutcomeGroups", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.OutcomeGroupStats{}, nil)

	w := f.request(t, http.MethodPost, "/api/v1/optimize", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(routing.KindOptimizationUnderflow), resp.Error)
}

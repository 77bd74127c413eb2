// Package api exposes the router over HTTP: task routing, outcome
// reporting, agent management, the health surface, analytics, and the
// manual optimization trigger.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/S-Corkum/agent-router/internal/config"
	"github.com/S-Corkum/agent-router/internal/learning"
	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
	"github.com/S-Corkum/agent-router/internal/routing"
)

// Store is the persistence surface the handlers need beyond what the
// routing and learning components already encapsulate.
type Store interface {
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, agentID string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]*models.Agent, error)
	UpdateAgentStatus(ctx context.Context, agentID string, status models.AgentStatus) error

	ListBreakerStates(ctx context.Context) ([]models.CircuitBreakerState, error)
	GetRoutingRecord(ctx context.Context, routingID uuid.UUID) (*models.RoutingRecord, error)

	RoutingOverall(ctx context.Context, since time.Time) (*models.AnalyticsOverall, error)
	OutcomesPerAgent(ctx context.Context, since time.Time) ([]models.AgentAggregate, error)
	OutcomesPerTaskType(ctx context.Context, since time.Time) ([]models.TaskTypeAggregate, error)
}

// Deps bundles the wired components the server serves
type Deps struct {
	Store     Store
	Router    *learning.IntelligentRouter
	Recorder  *routing.OutcomeRecorder
	Optimizer *learning.Optimizer
	Engine    *learning.Engine
	Scorer    *routing.Scorer
	Loads     *routing.LoadTracker
	Logger    observability.Logger
	Metrics   observability.MetricsClient
}

// Server is the HTTP API server
type Server struct {
	router *gin.Engine
	server *http.Server
	cfg    config.APIConfig
	deps   Deps
	logger observability.Logger
}

// NewServer builds the gin engine, wires middleware, and registers
// routes.
func NewServer(cfg config.APIConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger("api")
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetricsClient{}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(deps.Logger))
	router.Use(MetricsMiddleware(deps.Metrics))
	router.Use(TracingMiddleware())
	if cfg.EnableCORS {
		router.Use(CORSMiddleware())
	}

	s := &Server{
		router: router,
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		server: &http.Server{
			Addr:    cfg.ListenAddress,
			Handler: router,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleLiveness)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/route", s.handleRoute)
		v1.POST("/outcomes", s.handleRecordOutcome)
		v1.GET("/routings/:id", s.handleGetRouting)

		v1.GET("/agents", s.handleListAgents)
		v1.POST("/agents", s.handleCreateAgent)
		v1.GET("/agents/:id", s.handleGetAgent)
		v1.PUT("/agents/:id/status", s.handleUpdateAgentStatus)
		v1.GET("/agents/health", s.handleHealthStatus)

		v1.GET("/analytics", s.handleAnalytics)
		v1.POST("/optimize", s.handleRunOptimization)
	}
}

// Handler exposes the underlying handler for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("API server listening", map[string]interface{}{
		"address": s.cfg.ListenAddress,
	})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/routing"
)

// handleRoute selects an agent for the submitted task
func (s *Server) handleRoute(c *gin.Context) {
	var task models.TaskContext
	if err := c.ShouldBindJSON(&task); err != nil {
		writeBadRequest(c, err)
		return
	}
	if task.TaskType == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "task_type is required"})
		return
	}
	if task.Complexity == "" {
		task.Complexity = models.ComplexityModerate
	}
	if !task.Complexity.IsValid() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "invalid complexity: " + string(task.Complexity)})
		return
	}

	ctx := c.Request.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	selection, err := s.deps.Router.Route(ctx, &task)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = routing.WrapError(routing.KindRoutingTimeout, err, "routing timed out after %s", s.cfg.RequestTimeout)
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, selection)
}

// handleRecordOutcome registers the outcome of a routed task. Recording
// is idempotent: a repeat report for the same routing id is rejected
// with OutcomeNotFound and changes nothing.
func (s *Server) handleRecordOutcome(c *gin.Context) {
	var report routing.OutcomeReport
	if err := c.ShouldBindJSON(&report); err != nil {
		writeBadRequest(c, err)
		return
	}
	if report.RoutingID == uuid.Nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "routing_id is required"})
		return
	}

	deferred, err := s.deps.Recorder.Record(c.Request.Context(), &report)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if deferred {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{
		"status":     "recorded",
		"routing_id": report.RoutingID,
		"deferred":   deferred,
	})
}

// handleGetRouting returns one routing record by routing id
func (s *Server) handleGetRouting(c *gin.Context) {
	routingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBadRequest(c, err)
		return
	}
	record, err := s.deps.Store.GetRoutingRecord(c.Request.Context(), routingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// agentHealthEntry augments the health status with the breaker state
type agentHealthEntry struct {
	models.AgentHealthStatus
	BreakerState models.BreakerState `json:"breaker_state"`
}

// handleHealthStatus returns the per-agent health surface
func (s *Server) handleHealthStatus(c *gin.Context) {
	ctx := c.Request.Context()

	agents, err := s.deps.Store.ListAgents(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	breakers, err := s.deps.Store.ListBreakerStates(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	breakerByAgent := make(map[string]models.BreakerState, len(breakers))
	for _, b := range breakers {
		breakerByAgent[b.AgentID] = b.State
	}

	now := time.Now().UTC()
	entries := make([]agentHealthEntry, 0, len(agents))
	for _, agent := range agents {
		agg := s.deps.Scorer.AgentAggregate(ctx, agent.ID)
		entry := agentHealthEntry{
			AgentHealthStatus: models.AgentHealthStatus{
				AgentID:             agent.ID,
				Name:                agent.Name,
				Status:              agent.Status,
				LoadLevel:           s.deps.Loads.LoadLevel(agent.ID),
				SuccessRate:         agg.SuccessRate,
				ErrorRate:           1 - agg.SuccessRate,
				P95ResponseMs:       agg.P95ExecutionMs,
				CostPerRequestCents: agg.AvgCostCents,
				LastHealthCheck:     now,
				CapacityUtilization: s.deps.Loads.Ratio(agent.ID),
			},
			BreakerState: models.BreakerClosed,
		}
		if agg.SampleCount > 0 {
			entry.PredictiveFailureScore = 0.7*(1-agg.SuccessRate) + 0.3*math.Min(1, agg.AvgErrorCount)
		} else {
			entry.SuccessRate = 0
			entry.ErrorRate = 0
		}
		if state, ok := breakerByAgent[agent.ID]; ok {
			entry.BreakerState = state
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp": now,
		"agents":    entries,
	})
}

// learningAnalytics is the learning section of the analytics report
type learningAnalytics struct {
	BufferedOutcomes    int                         `json:"buffered_outcomes"`
	LastOptimization    *models.RoutingOptimization `json:"last_optimization,omitempty"`
	ActiveLearnedAgents int                         `json:"active_learned_agents"`
}

// handleAnalytics returns the routing analytics over the requested
// window (window_hours, default 24).
func (s *Server) handleAnalytics(c *gin.Context) {
	windowHours := 24
	if raw := c.Query("window_hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "window_hours must be a positive integer"})
			return
		}
		windowHours = parsed
	}

	ctx := c.Request.Context()
	since := time.Now().UTC().Add(-time.Duration(windowHours) * time.Hour)

	overall, err := s.deps.Store.RoutingOverall(ctx, since)
	if err != nil {
		writeError(c, err)
		return
	}
	perAgent, err := s.deps.Store.OutcomesPerAgent(ctx, since)
	if err != nil {
		writeError(c, err)
		return
	}
	perTaskType, err := s.deps.Store.OutcomesPerTaskType(ctx, since)
	if err != nil {
		writeError(c, err)
		return
	}
	breakers, err := s.deps.Store.ListBreakerStates(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	report := models.AnalyticsReport{
		WindowHours: windowHours,
		Overall:     *overall,
		PerAgent:    perAgent,
		PerTaskType: perTaskType,
		Breakers:    breakers,
		Loads:       s.deps.Loads.Counts(),
	}
	c.JSON(http.StatusOK, gin.H{
		"report": report,
		"learning": learningAnalytics{
			BufferedOutcomes:    s.deps.Engine.BufferedOutcomes(),
			LastOptimization:    s.deps.Optimizer.Last(),
			ActiveLearnedAgents: len(s.deps.Engine.Weights()),
		},
	})
}

// handleRunOptimization triggers an optimization cycle. Runs are rate
// limited to one per minute; a request inside the window returns the
// previous result.
func (s *Server) handleRunOptimization(c *gin.Context) {
	opt, err := s.deps.Optimizer.Run(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, opt)
}

// handleListAgents returns all registered agents
func (s *Server) handleListAgents(c *gin.Context) {
	agents, err := s.deps.Store.ListAgents(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

// handleCreateAgent registers a new agent
func (s *Server) handleCreateAgent(c *gin.Context) {
	var agent models.Agent
	if err := c.ShouldBindJSON(&agent); err != nil {
		writeBadRequest(c, err)
		return
	}
	if agent.Name == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "name is required"})
		return
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.Status == "" {
		agent.Status = models.AgentStatusActive
	}
	if !agent.Status.IsValid() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "invalid status: " + string(agent.Status)})
		return
	}

	if err := s.deps.Store.CreateAgent(c.Request.Context(), &agent); err != nil {
		writeError(c, err)
		return
	}
	if agent.MaxWorkload > 0 {
		s.deps.Loads.SetCapacity(agent.ID, agent.MaxWorkload)
	}
	c.JSON(http.StatusCreated, agent)
}

// handleGetAgent returns one agent by id
func (s *Server) handleGetAgent(c *gin.Context) {
	agent, err := s.deps.Store.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// handleUpdateAgentStatus changes an agent's lifecycle status
func (s *Server) handleUpdateAgentStatus(c *gin.Context) {
	var body struct {
		Status models.AgentStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBadRequest(c, err)
		return
	}
	if !body.Status.IsValid() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: "invalid status: " + string(body.Status)})
		return
	}

	agentID := c.Param("id")
	if err := s.deps.Store.UpdateAgentStatus(c.Request.Context(), agentID, body.Status); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "status": body.Status})
}

package routing

import (
	"context"
	"time"

	"github.com/S-Corkum/agent-router/internal/config"
	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
)

// CircuitBreaker gates candidate eligibility per agent. State lives in
// the store; transitions are conditional updates keyed on the observed
// prior state, so concurrent filters racing on the same agent resolve to
// exactly one winner. Agents with no breaker row are treated as CLOSED.
//
// This is distinct from internal/resilience, which guards infrastructure
// calls: this breaker tracks agent task failures, not store failures.
type CircuitBreaker struct {
	store   Store
	cfg     config.BreakerConfig
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewCircuitBreaker creates the per-agent breaker over the given store
func NewCircuitBreaker(store Store, cfg config.BreakerConfig, logger observability.Logger, metrics observability.MetricsClient) *CircuitBreaker {
	if logger == nil {
		logger = observability.NewLogger("routing.breaker")
	}
	if metrics == nil {
		metrics = observability.NoopMetricsClient{}
	}
	return &CircuitBreaker{store: store, cfg: cfg, logger: logger, metrics: metrics}
}

// Filter returns the candidates eligible for routing: CLOSED and
// HALF_OPEN pass; OPEN passes only once its retry window has elapsed, in
// which case the agent is transitioned to HALF_OPEN within this call.
// A store failure degrades to admitting everything rather than aborting
// the routing request.
func (b *CircuitBreaker) Filter(ctx context.Context, candidates []*models.Agent) []*models.Agent {
	if len(candidates) == 0 {
		return candidates
	}

	ids := make([]string, len(candidates))
	for i, a := range candidates {
		ids[i] = a.ID
	}

	states, err := b.store.GetBreakerStates(ctx, ids)
	if err != nil {
		b.logger.Warn("Breaker state lookup failed, admitting all candidates", map[string]interface{}{
			"error": err.Error(),
		})
		return candidates
	}

	now := time.Now().UTC()
	eligible := make([]*models.Agent, 0, len(candidates))
	for _, agent := range candidates {
		state, ok := states[agent.ID]
		if !ok {
			// No row yet: treated as CLOSED.
			eligible = append(eligible, agent)
			continue
		}

		switch state.State {
		case models.BreakerClosed, models.BreakerHalfOpen:
			eligible = append(eligible, agent)
		case models.BreakerOpen:
			if state.NextRetryTime != nil && !state.NextRetryTime.After(now) {
				// Retry window elapsed: probe via HALF_OPEN. Losing the
				// conditional update just means another filter already
				// transitioned it, which still makes the agent eligible.
				won, err := b.store.TransitionBreaker(ctx, agent.ID, models.BreakerOpen, models.BreakerHalfOpen)
				if err != nil {
					b.logger.Warn("Breaker half-open transition failed", map[string]interface{}{
						"agent_id": agent.ID,
						"error":    err.Error(),
					})
					continue
				}
				if won {
					b.logger.Info("Circuit breaker half-open", map[string]interface{}{
						"agent_id": agent.ID,
					})
					b.metrics.IncrementCounterWithLabels("routing.breaker.transition", 1, map[string]string{
						"to": string(models.BreakerHalfOpen),
					})
				}
				eligible = append(eligible, agent)
			}
		}
	}
	return eligible
}

// RecordResult advances the breaker counters for one observed outcome.
// Counter thresholds are applied by ApplyTransitions (and the failure
// path arms next_retry_time inside the store when the threshold is
// crossed).
func (b *CircuitBreaker) RecordResult(ctx context.Context, agentID string, success bool) error {
	return b.store.RecordBreakerResult(ctx, agentID, success, b.cfg.FailureThreshold, b.cfg.RecoveryTimeoutMs)
}

// ApplyTransitions scans breaker rows and applies the threshold-based
// transitions: CLOSED->OPEN at the failure threshold, HALF_OPEN->CLOSED
// after enough probe successes, HALF_OPEN->OPEN on any probe failure.
// Invoked by the breaker-transitions control loop.
func (b *CircuitBreaker) ApplyTransitions(ctx context.Context) error {
	states, err := b.store.ListBreakerStates(ctx)
	if err != nil {
		return WrapError(KindPersistenceUnavailable, err, "failed to scan breaker states")
	}

	for _, state := range states {
		switch state.State {
		case models.BreakerClosed:
			if state.FailureCount >= state.FailureThreshold {
				b.transition(ctx, state.AgentID, models.BreakerClosed, models.BreakerOpen)
			}
		case models.BreakerHalfOpen:
			// Counters were zeroed on entering HALF_OPEN, so any failure
			// count here came from a probe.
			if state.FailureCount > 0 {
				b.transition(ctx, state.AgentID, models.BreakerHalfOpen, models.BreakerOpen)
			} else if state.SuccessCount >= b.cfg.HalfOpenSuccessRequired {
				b.transition(ctx, state.AgentID, models.BreakerHalfOpen, models.BreakerClosed)
			}
		}
	}
	return nil
}

func (b *CircuitBreaker) transition(ctx context.Context, agentID string, from, to models.BreakerState) {
	won, err := b.store.TransitionBreaker(ctx, agentID, from, to)
	if err != nil {
		b.logger.Warn("Breaker transition failed", map[string]interface{}{
			"agent_id": agentID,
			"from":     string(from),
			"to":       string(to),
			"error":    err.Error(),
		})
		return
	}
	if won {
		b.logger.Info("Circuit breaker transition", map[string]interface{}{
			"agent_id": agentID,
			"from":     string(from),
			"to":       string(to),
		})
		b.metrics.IncrementCounterWithLabels("routing.breaker.transition", 1, map[string]string{
			"to": string(to),
		})
	}
}

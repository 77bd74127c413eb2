package routing

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/S-Corkum/agent-router/internal/models"
	"github.com/S-Corkum/agent-router/internal/observability"
)

// Learner receives every recorded outcome for in-memory learning. The
// learning engine implements it.
type Learner interface {
	Ingest(outcome *models.TaskOutcome)
}

// OutcomeReport is the caller's report of a completed task.
type OutcomeReport struct {
	RoutingID        uuid.UUID          `json:"routing_id"`
	Success          bool               `json:"success"`
	ExecutionMs      float64            `json:"execution_ms"`
	CostCents        *int               `json:"cost_cents,omitempty"`
	QualityMetrics   map[string]float64 `json:"quality_metrics,omitempty"`
	UserSatisfaction *float64           `json:"user_satisfaction,omitempty"`
	ErrorCount       int                `json:"error_count,omitempty"`
	RetryAttempts    int                `json:"retry_attempts,omitempty"`
}

// OutcomeRecorder persists routing outcomes and keeps the live state
// consistent. In-memory state (load counter, score cache, learning ring)
// is updated before any durable write, so a store outage never desyncs
// the running system; the durable write is retried once synchronously
// and then queued.
type OutcomeRecorder struct {
	store   Store
	breaker *CircuitBreaker
	loads   *LoadTracker
	scorer  *Scorer
	pending *PendingRoutings
	learner Learner
	logger  observability.Logger
	metrics observability.MetricsClient

	queue chan *models.TaskOutcome
}

// NewOutcomeRecorder wires the recorder
func NewOutcomeRecorder(store Store, breaker *CircuitBreaker, loads *LoadTracker, scorer *Scorer, pending *PendingRoutings, learner Learner, logger observability.Logger, metrics observability.MetricsClient) *OutcomeRecorder {
	if logger == nil {
		logger = observability.NewLogger("routing.recorder")
	}
	if metrics == nil {
		metrics = observability.NoopMetricsClient{}
	}
	return &OutcomeRecorder{
		store:   store,
		breaker: breaker,
		loads:   loads,
		scorer:  scorer,
		pending: pending,
		learner: learner,
		logger:  logger,
		metrics: metrics,
		queue:   make(chan *models.TaskOutcome, 1024),
	}
}

// Record registers the outcome for an emitted selection. Returns whether
// the durable write was deferred to the retry queue. A second call with
// the same routing id returns OutcomeNotFound and changes nothing.
func (r *OutcomeRecorder) Record(ctx context.Context, report *OutcomeReport) (deferred bool, err error) {
	info, ok := r.pending.Take(report.RoutingID)
	if !ok {
		return false, NewError(KindOutcomeNotFound, "no pending routing %s", report.RoutingID)
	}

	outcome := r.buildOutcome(&info, report)

	// In-memory state first, unconditionally.
	r.loads.Decrement(info.AgentID)
	r.scorer.Invalidate(ctx, info.AgentID)
	if r.learner != nil {
		r.learner.Ingest(outcome)
	}
	r.metrics.IncrementCounterWithLabels("routing.outcomes", 1, map[string]string{
		"agent_id": info.AgentID,
		"success":  boolLabel(report.Success),
	})

	if err := r.persist(ctx, outcome, report); err != nil {
		r.logger.Warn("Outcome persistence failed, queueing for retry", map[string]interface{}{
			"routing_id": report.RoutingID.String(),
			"agent_id":   info.AgentID,
			"error":      err.Error(),
		})
		select {
		case r.queue <- outcome:
		default:
			r.logger.Error("Outcome retry queue full, dropping durable write", map[string]interface{}{
				"routing_id": report.RoutingID.String(),
			})
		}
		return true, nil
	}
	return false, nil
}

func (r *OutcomeRecorder) buildOutcome(info *PendingRouting, report *OutcomeReport) *models.TaskOutcome {
	// The success score is a real: a boolean report averaged with the
	// mean quality metric when quality metrics are present.
	score := 0.0
	if report.Success {
		score = 1.0
	}
	if len(report.QualityMetrics) > 0 {
		sum := 0.0
		for _, v := range report.QualityMetrics {
			sum += v
		}
		score = (score + sum/float64(len(report.QualityMetrics))) / 2
	}

	return &models.TaskOutcome{
		ID:                uuid.New(),
		RoutingID:         report.RoutingID,
		AgentID:           info.AgentID,
		TaskType:          info.TaskType,
		Complexity:        info.Complexity,
		SuccessScore:      clamp01(score),
		CompletionSeconds: report.ExecutionMs / 1000,
		QualityMetrics:    report.QualityMetrics,
		UserSatisfaction:  report.UserSatisfaction,
		ErrorCount:        report.ErrorCount,
		RetryAttempts:     report.RetryAttempts,
		CostActualCents:   report.CostCents,
		CreatedAt:         time.Now().UTC(),
	}
}

// persist performs the durable writes with one synchronous retry.
func (r *OutcomeRecorder) persist(ctx context.Context, outcome *models.TaskOutcome, report *OutcomeReport) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 1), ctx)
	return backoff.Retry(func() error {
		return r.persistOnce(ctx, outcome, report)
	}, policy)
}

func (r *OutcomeRecorder) persistOnce(ctx context.Context, outcome *models.TaskOutcome, report *OutcomeReport) error {
	updated, err := r.store.CompleteRoutingRecord(ctx, outcome.RoutingID, outcome.AgentID, report.Success, report.ExecutionMs, report.CostCents)
	if err != nil {
		return err
	}
	if !updated {
		// The record was already completed or aged out of the join
		// window; the outcome row is still worth keeping.
		r.logger.Debug("Routing record not updated", map[string]interface{}{
			"routing_id": outcome.RoutingID.String(),
		})
	}
	if err := r.breaker.RecordResult(ctx, outcome.AgentID, report.Success); err != nil {
		return err
	}
	return r.store.InsertOutcome(ctx, outcome)
}

// Flush drains the retry queue, used by the background flusher and at
// shutdown.
func (r *OutcomeRecorder) Flush(ctx context.Context) {
	for {
		select {
		case outcome := <-r.queue:
			success := outcome.SuccessScore >= 0.5
			report := &OutcomeReport{
				RoutingID:   outcome.RoutingID,
				Success:     success,
				ExecutionMs: outcome.CompletionSeconds * 1000,
				CostCents:   outcome.CostActualCents,
			}
			if err := r.persistOnce(ctx, outcome, report); err != nil {
				r.logger.Warn("Outcome flush failed, re-queueing", map[string]interface{}{
					"routing_id": outcome.RoutingID.String(),
					"error":      err.Error(),
				})
				select {
				case r.queue <- outcome:
				default:
				}
				return
			}
		default:
			return
		}
	}
}

// QueueDepth reports the number of outcomes awaiting durable writes
func (r *OutcomeRecorder) QueueDepth() int {
	return len(r.queue)
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

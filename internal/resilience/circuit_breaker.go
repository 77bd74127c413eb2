// Package resilience wraps store I/O in circuit breakers so that a
// failing Postgres or Redis does not stall the routing hot path. These
// breakers guard infrastructure calls; the per-agent routing breaker in
// internal/routing is a separate, persisted state machine.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/S-Corkum/agent-router/internal/observability"
)

// CircuitBreakerConfig holds configuration for infrastructure breakers
type CircuitBreakerConfig struct {
	Name         string        `mapstructure:"name"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// Common circuit breaker names
const (
	DatabaseCircuitBreaker = "database"
	RedisCircuitBreaker    = "redis"
)

// Manager manages a set of named circuit breakers
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	configs  map[string]CircuitBreakerConfig
	logger   observability.Logger
}

// NewManager creates a breaker manager with per-name configs
func NewManager(configs map[string]CircuitBreakerConfig, logger observability.Logger) *Manager {
	if logger == nil {
		logger = observability.NewLogger("resilience")
	}
	return &Manager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		configs:  configs,
		logger:   logger,
	}
}

func (m *Manager) get(name string) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[name]; ok {
		return cb
	}

	config, ok := m.configs[name]
	if !ok {
		config = CircuitBreakerConfig{Name: name}
	}
	if config.Name == "" {
		config.Name = name
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = 5
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.FailureRatio == 0 {
		config.FailureRatio = 0.5
	}

	logger := m.logger
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= config.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Infrastructure circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	}

	cb = gobreaker.NewCircuitBreaker(settings)
	m.breakers[name] = cb
	return cb
}

// Execute runs fn under the named breaker, honoring context cancellation
func (m *Manager) Execute(ctx context.Context, name string, fn func() (interface{}, error)) (interface{}, error) {
	cb := m.get(name)

	resultCh := make(chan struct {
		result interface{}
		err    error
	}, 1)

	go func() {
		result, err := cb.Execute(fn)
		resultCh <- struct {
			result interface{}
			err    error
		}{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		return res.result, res.err
	}
}

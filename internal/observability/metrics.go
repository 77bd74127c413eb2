package observability

import (
	"sync"
	"time"
)

// MetricsClient defines the interface for recording operational metrics
type MetricsClient interface {
	IncrementCounter(name string, value float64)
	IncrementCounterWithLabels(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordDuration(name string, duration time.Duration)
	RecordOperation(component string, operation string, success bool, durationSeconds float64, labels map[string]string)

	// StartTimer returns a function that records the elapsed time when called
	StartTimer(name string, labels map[string]string) func()

	Close() error
}

// metricsClient is an in-process MetricsClient. Values are aggregated in
// memory and exposed through Snapshot for the analytics endpoint; an OTLP
// exporter can be layered on without changing call sites.
type metricsClient struct {
	mu        sync.Mutex
	enabled   bool
	counters  map[string]float64
	gauges    map[string]float64
	durations map[string]time.Duration
}

// MetricsOptions contains configuration options for creating a metrics client
type MetricsOptions struct {
	Enabled bool
}

// NewMetricsClient creates a new metrics client with default options
func NewMetricsClient() MetricsClient {
	return NewMetricsClientWithOptions(MetricsOptions{Enabled: true})
}

// NewMetricsClientWithOptions creates a new metrics client with specific options
func NewMetricsClientWithOptions(options MetricsOptions) MetricsClient {
	return &metricsClient{
		enabled:   options.Enabled,
		counters:  make(map[string]float64),
		gauges:    make(map[string]float64),
		durations: make(map[string]time.Duration),
	}
}

// IncrementCounter increments a counter metric by a given value
func (m *metricsClient) IncrementCounter(name string, value float64) {
	m.IncrementCounterWithLabels(name, value, nil)
}

// IncrementCounterWithLabels increments a counter metric with custom labels
func (m *metricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[labeledKey(name, labels)] += value
}

// RecordGauge records a point-in-time gauge value
func (m *metricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[labeledKey(name, labels)] = value
}

// RecordDuration records a duration metric
func (m *metricsClient) RecordDuration(name string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[name] = duration
}

// RecordOperation records the outcome and duration of a component operation
func (m *metricsClient) RecordOperation(component string, operation string, success bool, durationSeconds float64, labels map[string]string) {
	if !m.enabled {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.IncrementCounterWithLabels(component+"."+operation+"."+status, 1, labels)
}

// StartTimer returns a function that records elapsed time when invoked
func (m *metricsClient) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		m.RecordDuration(name, time.Since(start))
	}
}

// Close flushes and shuts down the client
func (m *metricsClient) Close() error {
	return nil
}

func labeledKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	key := name
	for k, v := range labels {
		key += "," + k + "=" + v
	}
	return key
}

// NoopMetricsClient discards all metrics. Used in tests.
type NoopMetricsClient struct{}

func (NoopMetricsClient) IncrementCounter(name string, value float64)                        {}
func (NoopMetricsClient) IncrementCounterWithLabels(string, float64, map[string]string)      {}
func (NoopMetricsClient) RecordGauge(name string, value float64, labels map[string]string)   {}
func (NoopMetricsClient) RecordDuration(name string, duration time.Duration)                 {}
func (NoopMetricsClient) RecordOperation(string, string, bool, float64, map[string]string)   {}
func (NoopMetricsClient) StartTimer(name string, labels map[string]string) func()            { return func() {} }
func (NoopMetricsClient) Close() error                                                       { return nil }

var _ MetricsClient = (*metricsClient)(nil)
var _ MetricsClient = NoopMetricsClient{}

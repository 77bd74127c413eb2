// Package models defines the domain types shared by the routing and
// learning packages. Cross-references between rows are kept as opaque
// ids; no type here holds a pointer into another store-backed type.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// AgentStatus represents the registration status of an agent
type AgentStatus string

const (
	AgentStatusActive      AgentStatus = "active"
	AgentStatusInactive    AgentStatus = "inactive"
	AgentStatusFailed      AgentStatus = "failed"
	AgentStatusRateLimited AgentStatus = "rate_limited"
)

// String returns the string representation of the agent status
func (s AgentStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid
func (s AgentStatus) IsValid() bool {
	switch s {
	case AgentStatusActive, AgentStatusInactive, AgentStatusFailed, AgentStatusRateLimited:
		return true
	}
	return false
}

// Scan implements sql.Scanner for database operations
func (s *AgentStatus) Scan(value interface{}) error {
	if value == nil {
		*s = AgentStatusInactive
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = AgentStatus(v)
	case []byte:
		*s = AgentStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into AgentStatus", value)
	}
	if !s.IsValid() {
		return fmt.Errorf("invalid agent status: %s", *s)
	}
	return nil
}

// Value implements driver.Valuer for database operations
func (s AgentStatus) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid agent status: %s", s)
	}
	return string(s), nil
}

// CapabilityLink associates an agent with a named capability at a priority
// in 1..10. Higher priority means the agent advertises stronger support.
type CapabilityLink struct {
	Name     string `json:"name" db:"name"`
	Priority int    `json:"priority" db:"priority"`
}

// Capability is a globally unique named skill tag. Created on first
// reference.
type Capability struct {
	ID         string                 `json:"id" db:"id"`
	Name       string                 `json:"name" db:"name"`
	Category   string                 `json:"category" db:"category"`
	Parameters map[string]interface{} `json:"parameters,omitempty" db:"parameters"`
}

// Agent represents a registered LLM-backed agent. The router never calls
// the agent itself; it only advises which agent should handle a task.
type Agent struct {
	ID           string           `json:"id" db:"id"`
	Name         string           `json:"name" db:"name"`
	Status       AgentStatus      `json:"status" db:"status"`
	Provider     string           `json:"provider" db:"provider"`
	Capabilities []CapabilityLink `json:"capabilities"`
	MaxWorkload  int              `json:"max_workload" db:"max_workload"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// HasCapabilities reports whether the agent's capability set is a
// superset of required.
func (a *Agent) HasCapabilities(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]bool, len(a.Capabilities))
	for _, c := range a.Capabilities {
		have[c.Name] = true
	}
	for _, name := range required {
		if !have[name] {
			return false
		}
	}
	return true
}

// MaxCapabilityPriority returns the highest priority among the agent's
// capability links, or 0 when the agent declares none.
func (a *Agent) MaxCapabilityPriority() int {
	max := 0
	for _, c := range a.Capabilities {
		if c.Priority > max {
			max = c.Priority
		}
	}
	return max
}

// LoadLevel is the qualitative band derived from in-flight requests vs
// configured capacity.
type LoadLevel string

const (
	LoadLevelLow        LoadLevel = "low"
	LoadLevelMedium     LoadLevel = "medium"
	LoadLevelHigh       LoadLevel = "high"
	LoadLevelOverloaded LoadLevel = "overloaded"
)

// LoadLevelForRatio maps a load ratio to its band.
func LoadLevelForRatio(ratio float64) LoadLevel {
	switch {
	case ratio < 0.3:
		return LoadLevelLow
	case ratio < 0.7:
		return LoadLevelMedium
	case ratio < 0.9:
		return LoadLevelHigh
	default:
		return LoadLevelOverloaded
	}
}

// AgentHealthStatus is the per-agent entry returned by the health surface.
type AgentHealthStatus struct {
	AgentID                string      `json:"agent_id"`
	Name                   string      `json:"name"`
	Status                 AgentStatus `json:"status"`
	LoadLevel              LoadLevel   `json:"load_level"`
	SuccessRate            float64     `json:"success_rate"`
	ErrorRate              float64     `json:"error_rate"`
	P95ResponseMs          float64     `json:"p95_response_ms"`
	CostPerRequestCents    float64     `json:"cost_per_request_cents"`
	LastHealthCheck        time.Time   `json:"last_health_check"`
	PredictiveFailureScore float64     `json:"predictive_failure_score"`
	CapacityUtilization    float64     `json:"capacity_utilization"`
}

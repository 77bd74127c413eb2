package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Complexity is the coarse task classification used as a routing feature
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityCritical Complexity = "critical"
)

// String returns the string representation of the complexity
func (c Complexity) String() string {
	return string(c)
}

// IsValid checks if the complexity is valid
func (c Complexity) IsValid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex, ComplexityCritical:
		return true
	}
	return false
}

// Scan implements sql.Scanner for database operations
func (c *Complexity) Scan(value interface{}) error {
	if value == nil {
		*c = ComplexityModerate
		return nil
	}
	switch v := value.(type) {
	case string:
		*c = Complexity(v)
	case []byte:
		*c = Complexity(v)
	default:
		return fmt.Errorf("cannot scan %T into Complexity", value)
	}
	if !c.IsValid() {
		return fmt.Errorf("invalid complexity: %s", *c)
	}
	return nil
}

// Value implements driver.Valuer for database operations
func (c Complexity) Value() (driver.Value, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("invalid complexity: %s", c)
	}
	return string(c), nil
}

// DefaultCompletionSeconds returns the fallback completion estimate for a
// task of this complexity when no history exists.
func (c Complexity) DefaultCompletionSeconds() float64 {
	switch c {
	case ComplexitySimple:
		return 2
	case ComplexityModerate:
		return 10
	case ComplexityComplex:
		return 30
	case ComplexityCritical:
		return 60
	default:
		return 10
	}
}

// DefaultCostCents returns the fallback cost estimate for a task of this
// complexity when no history exists.
func (c Complexity) DefaultCostCents() int {
	switch c {
	case ComplexitySimple:
		return 1
	case ComplexityModerate:
		return 5
	case ComplexityComplex:
		return 20
	case ComplexityCritical:
		return 50
	default:
		return 5
	}
}

// TaskContext describes a single unit of work to route. It is ephemeral:
// never persisted as a first-class row, only embedded into the routing
// record's metadata.
type TaskContext struct {
	TaskType             string                 `json:"task_type"`
	Complexity           Complexity             `json:"complexity"`
	Priority             int                    `json:"priority"`
	Deadline             *time.Time             `json:"deadline,omitempty"`
	ProjectID            string                 `json:"project_id,omitempty"`
	UserID               string                 `json:"user_id,omitempty"`
	RequiredCapabilities []string               `json:"required_capabilities,omitempty"`
	PreferredAgents      []string               `json:"preferred_agents,omitempty"`
	FallbackAgents       []string               `json:"fallback_agents,omitempty"`
	SensitiveData        bool                   `json:"sensitive_data,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}

// TaskKey returns the learning key "<task_type>_<complexity>" used to
// index the routing weight matrix and specializations.
func (t *TaskContext) TaskKey() string {
	return TaskKey(t.TaskType, t.Complexity)
}

// TaskKey builds the "<task_type>_<complexity>" learning key.
func TaskKey(taskType string, complexity Complexity) string {
	return fmt.Sprintf("%s_%s", taskType, complexity)
}

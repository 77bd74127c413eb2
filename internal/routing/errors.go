// Package routing implements the agent router core: candidate
// enumeration, circuit-breaker gating, load tracking, multi-criteria
// scoring, selection, and outcome recording.
package routing

import "fmt"

// ErrorKind is the stable error classification exposed at the API
// surface.
type ErrorKind string

const (
	KindNoCapableAgent         ErrorKind = "NoCapableAgent"
	KindAllBreakersOpen        ErrorKind = "AllBreakersOpen"
	KindRoutingTimeout         ErrorKind = "RoutingTimeout"
	KindInsufficientData       ErrorKind = "InsufficientData"
	KindOutcomeNotFound        ErrorKind = "OutcomeNotFound"
	KindOptimizationUnderflow  ErrorKind = "OptimizationUnderflow"
	KindPersistenceUnavailable ErrorKind = "PersistenceUnavailable"
	KindInternalError          ErrorKind = "InternalError"
)

// Error is a typed routing error carrying a stable kind string and a
// free-form message. The selector never signals "no candidate" through
// panics or sentinel comparisons; callers switch on Kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a routing error of the given kind
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a routing error of the given kind wrapping a cause
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the error kind, defaulting to InternalError for
// untyped errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if re, ok := err.(*Error); ok {
		return re.Kind
	}
	return KindInternalError
}

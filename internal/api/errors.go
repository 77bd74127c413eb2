package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/S-Corkum/agent-router/internal/repository"
	"github.com/S-Corkum/agent-router/internal/routing"
)

// errorResponse is the uniform error body
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusForKind maps the routing error taxonomy onto HTTP status codes
func statusForKind(kind routing.ErrorKind) int {
	switch kind {
	case routing.KindNoCapableAgent, routing.KindOutcomeNotFound:
		return http.StatusNotFound
	case routing.KindAllBreakersOpen, routing.KindPersistenceUnavailable:
		return http.StatusServiceUnavailable
	case routing.KindRoutingTimeout:
		return http.StatusRequestTimeout
	case routing.KindInsufficientData, routing.KindOptimizationUnderflow:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders an error with its taxonomy kind as the stable
// error code.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "NotFound", Message: err.Error()})
		return
	}
	kind := routing.KindOf(err)
	c.JSON(statusForKind(kind), errorResponse{Error: string(kind), Message: err.Error()})
}

// writeBadRequest renders a request validation failure
func writeBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: "BadRequest", Message: err.Error()})
}

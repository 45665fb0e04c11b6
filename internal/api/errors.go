package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mescon/tickr/internal/logger"
	"github.com/mescon/tickr/internal/services"
)

// Standard error messages (don't leak internal details)
const (
	ErrMsgDatabaseError       = "Database error"
	ErrMsgAuthenticationError = "Authentication error"
	ErrMsgInvalidRequest      = "Invalid request"
	ErrMsgInternalError       = "Internal server error"
	ErrMsgTimerNotFound       = "Timer not found"
)

// respondWithError sends a JSON error response and logs the actual error
func respondWithError(c *gin.Context, status int, publicMsg string, err error) {
	if err != nil {
		logger.Debugf("%s: %v", publicMsg, err)
	}
	c.JSON(status, gin.H{"error": publicMsg})
}

// respondDatabaseError handles database errors consistently
func respondDatabaseError(c *gin.Context, err error) {
	respondWithError(c, http.StatusInternalServerError, ErrMsgDatabaseError, err)
}

// respondAuthError handles authentication errors consistently
func respondAuthError(c *gin.Context, err error) {
	respondWithError(c, http.StatusInternalServerError, ErrMsgAuthenticationError, err)
}

// respondBadRequest handles bad request errors, optionally exposing the error message
// Use exposeError=true only for validation errors safe to show users
func respondBadRequest(c *gin.Context, err error, exposeError bool) {
	if exposeError && err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	respondWithError(c, http.StatusBadRequest, ErrMsgInvalidRequest, err)
}

// respondServiceError maps registry errors onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTimerNotFound):
		respondWithError(c, http.StatusNotFound, ErrMsgTimerNotFound, err)
	case errors.Is(err, services.ErrDuplicateName):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidDefinition):
		respondBadRequest(c, err, true)
	default:
		respondDatabaseError(c, err)
	}
}

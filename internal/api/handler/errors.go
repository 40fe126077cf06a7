package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/service"
)

// respondError maps service errors onto HTTP status codes. Anything that is
// not an input or lookup error is a 500 with a generic message.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrMemberNotFound), errors.Is(err, service.ErrClassNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.With(logger.Fields{"error": err.Error()}).Error(c.Request.Context(), "Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

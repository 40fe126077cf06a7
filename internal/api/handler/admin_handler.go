package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gymflow/internal/cache"
	"github.com/timmy/gymflow/internal/logger"
)

// CacheWarmer runs warming cycles on demand.
type CacheWarmer interface {
	Trigger(ctx context.Context) (string, error)
	Status() cache.WarmStatus
}

// CacheInvalidator drops cached entries of a member.
type CacheInvalidator interface {
	InvalidateMember(ctx context.Context, memberID string) (int, error)
}

// AdminHandler handles cache administration.
type AdminHandler struct {
	warmer      CacheWarmer
	invalidator CacheInvalidator
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - warmer: cache warmer.
//   - invalidator: cache layer used for member invalidation.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(warmer CacheWarmer, invalidator CacheInvalidator) *AdminHandler {
	return &AdminHandler{
		warmer:      warmer,
		invalidator: invalidator,
	}
}

// TriggerWarm handles POST /api/v1/admin/cache/warm. It answers 202 with
// the run id, or 409 when a cycle is already running.
func (h *AdminHandler) TriggerWarm(c *gin.Context) {
	runID, err := h.warmer.Trigger(c.Request.Context())
	if errors.Is(err, cache.ErrWarmInProgress) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  err.Error(),
			"status": h.warmer.Status(),
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	logger.CtxInfo(c.Request.Context(), "Cache warming triggered: run_id=%s", runID)
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Cache warming started",
		"run_id":  runID,
	})
}

// WarmStatus handles GET /api/v1/admin/cache/warm.
func (h *AdminHandler) WarmStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.warmer.Status())
}

// InvalidateMember handles DELETE /api/v1/admin/cache/members/:memberId.
func (h *AdminHandler) InvalidateMember(c *gin.Context) {
	memberID := strings.TrimSpace(c.Param("memberId"))
	if memberID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member id is required"})
		return
	}
	n, err := h.invalidator.InvalidateMember(c.Request.Context(), memberID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"member_id":   memberID,
		"invalidated": n,
	})
}

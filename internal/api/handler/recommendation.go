package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gymflow/internal/service"
)

// Recommender produces class recommendations.
type Recommender interface {
	Recommend(ctx context.Context, req service.RecommendationRequest) (*service.RecommendationResponse, error)
}

// ScheduleSuggester produces schedule suggestions.
type ScheduleSuggester interface {
	Suggest(ctx context.Context, req service.ScheduleRequest) (*service.ScheduleResponse, error)
}

// SuggestionHandler serves class recommendations and schedule suggestions.
type SuggestionHandler struct {
	recommender Recommender
	schedules   ScheduleSuggester
}

// NewSuggestionHandler creates a new suggestion handler.
func NewSuggestionHandler(recommender Recommender, schedules ScheduleSuggester) *SuggestionHandler {
	return &SuggestionHandler{recommender: recommender, schedules: schedules}
}

// GetRecommendations handles GET /api/v1/classes/recommendations/:memberId.
// Query: useAI (default false), useVector (default true), skipCache, limit.
func (h *SuggestionHandler) GetRecommendations(c *gin.Context) {
	req := service.RecommendationRequest{MemberID: c.Param("memberId")}
	var err error
	if req.UseAI, err = queryBool(c, "useAI", false); err != nil {
		respondError(c, err)
		return
	}
	if req.UseVector, err = queryBool(c, "useVector", true); err != nil {
		respondError(c, err)
		return
	}
	if req.SkipCache, err = queryBool(c, "skipCache", false); err != nil {
		respondError(c, err)
		return
	}
	if req.Limit, err = queryInt(c, "limit"); err != nil {
		respondError(c, err)
		return
	}

	resp, err := h.recommender.Recommend(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetScheduleSuggestions handles GET /api/v1/schedules/suggestions/:memberId.
// Query: classId, category, trainerId, dateRange (YYYY-MM-DD:YYYY-MM-DD),
// useAI, skipCache, limit.
func (h *SuggestionHandler) GetScheduleSuggestions(c *gin.Context) {
	req := service.ScheduleRequest{
		MemberID:  c.Param("memberId"),
		ClassID:   c.Query("classId"),
		Category:  c.Query("category"),
		TrainerID: c.Query("trainerId"),
		DateRange: c.Query("dateRange"),
	}
	var err error
	if req.UseAI, err = queryBool(c, "useAI", false); err != nil {
		respondError(c, err)
		return
	}
	if req.SkipCache, err = queryBool(c, "skipCache", false); err != nil {
		respondError(c, err)
		return
	}
	if req.Limit, err = queryInt(c, "limit"); err != nil {
		respondError(c, err)
		return
	}

	resp, err := h.schedules.Suggest(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

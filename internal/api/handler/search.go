package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gymflow/internal/service"
)

// ClassSearcher runs semantic class searches.
type ClassSearcher interface {
	Search(ctx context.Context, req *service.SearchRequest) (*service.SearchResponse, error)
}

// SearchHandler handles search-related endpoints.
type SearchHandler struct {
	searchService ClassSearcher
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - searchService: search service instance.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(searchService ClassSearcher) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// SemanticSearch handles POST /api/v1/classes/search/semantic.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) SemanticSearch(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	result, err := h.searchService.Search(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/gymflow/internal/domain"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/monitoring"
	"github.com/timmy/gymflow/internal/repository"
)

const (
	defaultSearchTopK = 10
	maxSearchTopK     = 50
	maxQueryLength    = 500
)

// ClassSearcher reads classes by ID and by keyword.
type ClassSearcher interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.Class, error)
	KeywordSearch(ctx context.Context, query string, limit int) ([]domain.Class, error)
}

// SearchRequest represents a semantic class search request.
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

// SearchResult represents a single matching class.
type SearchResult struct {
	ClassID         string               `json:"class_id"`
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	Category        domain.ClassCategory `json:"category"`
	Difficulty      domain.Difficulty    `json:"difficulty"`
	DurationMinutes int                  `json:"duration_minutes"`
	Score           float64              `json:"score"`
}

// SearchResponse represents the search response.
type SearchResponse struct {
	Results []SearchResult    `json:"results"`
	Total   int               `json:"total"`
	Query   string            `json:"query"`
	Method  Method            `json:"method"`
	Skipped []SkippedStrategy `json:"skipped,omitempty"`
}

// SearchService finds classes matching a free-text description.
type SearchService struct {
	classes  ClassSearcher
	index    repository.VectorIndex
	embedder Embedder
	timeout  time.Duration
}

// NewSearchService creates a new search service. index and embedder may be
// nil, in which case every search uses keyword matching.
func NewSearchService(classes ClassSearcher, index repository.VectorIndex, embedder Embedder, queryTimeout time.Duration) *SearchService {
	return &SearchService{
		classes:  classes,
		index:    index,
		embedder: embedder,
		timeout:  queryTimeout,
	}
}

// Search embeds the query and returns the nearest active classes. When the
// embedding provider or the index yields nothing, it falls back to keyword
// matching over class name and description.
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	query := normalizeWhitespace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if len(query) > maxQueryLength {
		query = query[:maxQueryLength]
	}
	topK := req.TopK
	switch {
	case topK <= 0:
		topK = defaultSearchTopK
	case topK > maxSearchTopK:
		topK = maxSearchTopK
	}

	ctx = logger.WithFields(ctx, logger.Fields{logger.FieldComponent: "search"})
	start := time.Now()

	strategies := []Strategy[[]SearchResult]{
		{Name: "vector_embedding", Method: MethodVector, Attempt: func(ctx context.Context) ([]SearchResult, error) {
			return s.vectorSearch(ctx, query, topK)
		}},
		{Name: "keyword", Method: MethodKeyword, Attempt: func(ctx context.Context) ([]SearchResult, error) {
			return s.keywordSearch(ctx, query, topK)
		}},
	}
	results, method, skipped, err := runStrategies(ctx, "search", strategies)
	if err != nil {
		return nil, err
	}

	monitoring.SuggestionDuration.WithLabelValues("search", string(method)).Observe(time.Since(start).Seconds())
	logger.CtxInfo(ctx, "Class search: query=%q, method=%s, results=%d", query, method, len(results))

	return &SearchResponse{
		Results: results,
		Total:   len(results),
		Query:   query,
		Method:  method,
		Skipped: skipped,
	}, nil
}

func (s *SearchService) vectorSearch(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if s.embedder == nil || s.index == nil {
		return nil, skip("vector_search_unavailable")
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	matches := s.index.Search(ctx, vec, topK)
	monitoring.VectorMatches.Observe(float64(len(matches)))
	if len(matches) == 0 {
		return nil, skip("no_vector_matches")
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ClassID
	}
	qctx, cancel := withTimeout(ctx, s.timeout)
	classes, err := s.classes.GetByIDs(qctx, ids)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to load matched classes: %w", err)
	}
	byID := make(map[string]*domain.Class, len(classes))
	for i := range classes {
		byID[classes[i].ID] = &classes[i]
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		c, ok := byID[m.ClassID]
		if !ok || !c.Active {
			continue
		}
		results = append(results, toSearchResult(c, m.Similarity))
	}
	if len(results) == 0 {
		return nil, skip("no_vector_matches")
	}
	return results, nil
}

// keywordSearch always succeeds unless the class store is unreadable; an
// empty match list is a valid answer.
func (s *SearchService) keywordSearch(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	qctx, cancel := withTimeout(ctx, s.timeout)
	classes, err := s.classes.KeywordSearch(qctx, strings.ToLower(query), topK)
	cancel()
	if err != nil {
		return nil, fatal(fmt.Errorf("keyword search failed: %w", err))
	}
	results := make([]SearchResult, len(classes))
	for i := range classes {
		results[i] = toSearchResult(&classes[i], 0)
	}
	return results, nil
}

func toSearchResult(c *domain.Class, score float64) SearchResult {
	return SearchResult{
		ClassID:         c.ID,
		Name:            c.Name,
		Description:     c.Description,
		Category:        c.Category,
		Difficulty:      c.Difficulty,
		DurationMinutes: c.DurationMinutes,
		Score:           score,
	}
}

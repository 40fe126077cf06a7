package repository

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/timmy/gymflow/internal/logger"
	"gorm.io/gorm"
)

// PgvectorIndex searches class embeddings stored in the classes table with
// the pgvector cosine distance operator.
type PgvectorIndex struct {
	db         *gorm.DB
	dimensions int
	timeout    time.Duration
}

// NewPgvectorIndex creates a PgvectorIndex.
// Parameters:
//   - db: database handle; must be PostgreSQL with the vector extension.
//   - dimensions: expected embedding length, queries of another length are rejected.
//   - timeout: per-query timeout, zero disables it.
func NewPgvectorIndex(db *gorm.DB, dimensions int, timeout time.Duration) *PgvectorIndex {
	return &PgvectorIndex{db: db, dimensions: dimensions, timeout: timeout}
}

// Name returns the backend name.
func (p *PgvectorIndex) Name() string {
	return "pgvector"
}

// Search returns the k active classes closest to query.
func (p *PgvectorIndex) Search(ctx context.Context, query []float32, k int) []VectorMatch {
	if len(query) == 0 || k <= 0 {
		return []VectorMatch{}
	}
	if p.dimensions > 0 && len(query) != p.dimensions {
		logger.With(logger.Fields{
			"expected": p.dimensions,
			"actual":   len(query),
		}).Warn(ctx, "Vector search skipped: query dimension mismatch")
		return []VectorMatch{}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	vec := pgvector.NewVector(query)
	var rows []VectorMatch
	err := p.db.WithContext(ctx).Raw(`
		SELECT id AS class_id, 1 - (embedding <=> ?) AS similarity
		FROM classes
		WHERE active = TRUE AND embedding IS NOT NULL
		ORDER BY embedding <=> ?
		LIMIT ?`, vec, vec, k).Scan(&rows).Error
	if err != nil {
		logger.With(logger.Fields{
			logger.FieldStage: "vector_search",
			"error":           err.Error(),
		}).Warn(ctx, "pgvector search failed, returning no matches")
		return []VectorMatch{}
	}

	logger.With(logger.Fields{
		logger.FieldCount:      len(rows),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Debug(ctx, "pgvector search completed")
	return rows
}

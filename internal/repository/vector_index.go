package repository

import (
	"context"

	"github.com/timmy/gymflow/internal/domain"
)

// VectorMatch is one nearest-neighbour hit. Similarity is cosine based and
// lies in [-1, 1].
type VectorMatch struct {
	ClassID    string  `json:"class_id"`
	Similarity float64 `json:"similarity"`
}

// VectorIndex retrieves the classes closest to a query embedding.
//
// Search returns at most k matches ordered by similarity descending and only
// considers active classes with an embedding. Backend failures are logged and
// produce an empty slice: callers treat empty as "no vector signal", never as
// "no classes exist".
type VectorIndex interface {
	Search(ctx context.Context, query []float32, k int) []VectorMatch
	Name() string
}

// VectorUpserter is implemented by indexes that keep their own copy of class
// embeddings and must be told when one changes. The pgvector index reads the
// classes table directly and does not implement it.
type VectorUpserter interface {
	Upsert(ctx context.Context, class *domain.Class, embedding []float32) error
}

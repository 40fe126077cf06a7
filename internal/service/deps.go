package service

import (
	"context"
	"time"

	"github.com/timmy/gymflow/internal/domain"
)

// MemberStore reads member profiles and stores profile embeddings.
type MemberStore interface {
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
}

// ClassReader reads class definitions.
type ClassReader interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.Class, error)
	ListActive(ctx context.Context, limit int) ([]domain.Class, error)
}

// HistoryStore reads member history and records served recommendations.
type HistoryStore interface {
	RecentAttendance(ctx context.Context, memberID string, limit int) ([]domain.AttendanceEvent, error)
	RecentBookings(ctx context.Context, memberID string, limit int) ([]domain.BookingEvent, error)
	RecentRecommendedCategories(ctx context.Context, memberID string, n int) ([]domain.ClassCategory, error)
	LogRecommendations(ctx context.Context, logs []domain.RecommendationLog) error
}

// Embedder produces document and query embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Dimensions() int
}

// Dispatcher runs best-effort side effects in the background. Submit must
// not block and reports false when the task was dropped.
type Dispatcher interface {
	Submit(kind string, fn func(ctx context.Context) error) bool
}

// withTimeout bounds a single store call. A zero timeout leaves ctx as is.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

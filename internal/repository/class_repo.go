package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/timmy/gymflow/internal/domain"
	"gorm.io/gorm"
)

// ClassRepository handles class data operations.
type ClassRepository struct {
	db *gorm.DB
}

// NewClassRepository creates a new ClassRepository.
func NewClassRepository(db *gorm.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create inserts a new class record.
func (r *ClassRepository) Create(ctx context.Context, class *domain.Class) error {
	return r.db.WithContext(ctx).Create(class).Error
}

// GetByID retrieves a class by ID.
// Returns ErrNotFound when no class matches.
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*domain.Class, error) {
	var class domain.Class
	if err := r.db.WithContext(ctx).First(&class, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &class, nil
}

// GetByIDs retrieves classes by a list of IDs. Order is not guaranteed.
func (r *ClassRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Class, error) {
	if len(ids) == 0 {
		return []domain.Class{}, nil
	}
	var classes []domain.Class
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&classes).Error; err != nil {
		return nil, fmt.Errorf("failed to get classes by IDs: %w", err)
	}
	return classes, nil
}

// ListActive returns up to limit active classes ordered by name.
func (r *ClassRepository) ListActive(ctx context.Context, limit int) ([]domain.Class, error) {
	var classes []domain.Class
	query := r.db.WithContext(ctx).Where("active = ?", true).Order("name, id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&classes).Error; err != nil {
		return nil, err
	}
	return classes, nil
}

// Update saves all class fields except the embedding.
func (r *ClassRepository) Update(ctx context.Context, class *domain.Class) error {
	return r.db.WithContext(ctx).Model(class).
		Select("name", "description", "category", "difficulty", "capacity",
			"duration_minutes", "equipment", "active", "updated_at").
		Updates(class).Error
}

// UpdateEmbedding stores a regenerated class embedding.
func (r *ClassRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.Class{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding":            &vec,
			"embedding_updated_at": now,
		}).Error
}

// ListIDsNeedingEmbedding returns class IDs whose embedding is missing or
// older than the last update. With force set, all classes are returned.
func (r *ClassRepository) ListIDsNeedingEmbedding(ctx context.Context, limit int, force bool) ([]string, error) {
	var ids []string
	query := r.db.WithContext(ctx).Model(&domain.Class{})
	if !force {
		query = query.Where("embedding IS NULL OR embedding_updated_at IS NULL OR embedding_updated_at < updated_at")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// KeywordSearch matches active classes whose name or description contains
// every whitespace-separated term of query, case-insensitively.
func (r *ClassRepository) KeywordSearch(ctx context.Context, query string, limit int) ([]domain.Class, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []domain.Class{}, nil
	}
	db := r.db.WithContext(ctx).Where("active = ?", true)
	for _, term := range terms {
		pattern := "%" + escapeLike(term) + "%"
		db = db.Where("(LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\')", pattern, pattern)
	}
	var classes []domain.Class
	if err := db.Order("name, id").Limit(limit).Find(&classes).Error; err != nil {
		return nil, err
	}
	return classes, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

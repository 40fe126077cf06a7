package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/gymflow/internal/domain"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/repository"
)

// ClassStore reads and writes class definitions.
type ClassStore interface {
	GetByID(ctx context.Context, id string) (*domain.Class, error)
	Update(ctx context.Context, class *domain.Class) error
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
}

// ClassService updates classes and keeps their embeddings current.
type ClassService struct {
	classes  ClassStore
	index    repository.VectorIndex
	embedder Embedder
	tasks    Dispatcher
}

// NewClassService creates a ClassService. index and embedder may be nil.
func NewClassService(classes ClassStore, index repository.VectorIndex, embedder Embedder, tasks Dispatcher) *ClassService {
	return &ClassService{
		classes:  classes,
		index:    index,
		embedder: embedder,
		tasks:    tasks,
	}
}

// UpdateClass applies update to the class. When a field that feeds the
// embedding text changes, the embedding is regenerated in the background;
// that regeneration never fails the update.
func (s *ClassService) UpdateClass(ctx context.Context, classID string, update domain.ClassUpdate) (*domain.Class, error) {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return nil, fmt.Errorf("%w: class id is required", ErrInvalidInput)
	}
	if err := validateClassUpdate(&update); err != nil {
		return nil, err
	}
	ctx = logger.WithField(ctx, logger.FieldClassID, classID)

	class, err := s.classes.GetByID(ctx, classID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, classID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load class %s: %w", classID, err)
	}

	before := *class
	update.Apply(class)
	class.UpdatedAt = time.Now()
	if err := s.classes.Update(ctx, class); err != nil {
		return nil, fmt.Errorf("failed to update class %s: %w", classID, err)
	}

	if domain.EmbeddingFieldsChanged(&before, class) || before.Active != class.Active {
		s.scheduleEmbedding(ctx, class)
	}
	logger.CtxInfo(ctx, "Class updated: name=%q", class.Name)
	return class, nil
}

func validateClassUpdate(u *domain.ClassUpdate) error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if u.Category != nil && !u.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, *u.Category)
	}
	if u.Difficulty != nil && !u.Difficulty.Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInput, *u.Difficulty)
	}
	if u.Capacity != nil && *u.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidInput)
	}
	if u.DurationMinutes != nil && *u.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration_minutes must be positive", ErrInvalidInput)
	}
	return nil
}

func (s *ClassService) scheduleEmbedding(ctx context.Context, class *domain.Class) {
	if s.embedder == nil || s.tasks == nil {
		return
	}
	snapshot := *class
	fields := logger.GetFields(ctx)
	s.tasks.Submit("class_embedding", func(taskCtx context.Context) error {
		return s.RefreshEmbedding(logger.WithFields(taskCtx, fields), &snapshot)
	})
}

// RefreshEmbedding regenerates and stores the embedding of class. Indexes
// that keep their own copy are updated too.
func (s *ClassService) RefreshEmbedding(ctx context.Context, class *domain.Class) error {
	if s.embedder == nil {
		return fmt.Errorf("%w: no embedding provider configured", ErrUpstreamUnavailable)
	}
	text := buildClassEmbeddingText(class)
	if text == "" {
		return fmt.Errorf("%w: class %s has no text to embed", ErrEmptyText, class.ID)
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed class %s: %w", class.ID, err)
	}
	if err := s.classes.UpdateEmbedding(ctx, class.ID, vec); err != nil {
		return fmt.Errorf("store class embedding %s: %w", class.ID, err)
	}
	if up, ok := s.index.(repository.VectorUpserter); ok {
		if err := up.Upsert(ctx, class, vec); err != nil {
			return fmt.Errorf("upsert class %s into %s: %w", class.ID, s.index.Name(), err)
		}
	}
	return nil
}

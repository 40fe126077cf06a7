package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/gymflow/internal/logger"
)

// ReembedTarget selects which embeddings a backfill regenerates.
type ReembedTarget string

const (
	ReembedClasses ReembedTarget = "classes"
	ReembedMembers ReembedTarget = "members"
)

// ReembedClassStore lists classes whose embedding is missing or stale.
type ReembedClassStore interface {
	ClassStore
	ListIDsNeedingEmbedding(ctx context.Context, limit int, force bool) ([]string, error)
}

// ReembedMemberStore lists members without a profile embedding.
type ReembedMemberStore interface {
	MemberStore
	ListIDsMissingEmbedding(ctx context.Context, limit int, force bool) ([]string, error)
}

// ReembedService backfills class and member embeddings with a worker pool.
type ReembedService struct {
	classes  ReembedClassStore
	members  ReembedMemberStore
	classSvc *ClassService
	embedder Embedder
	workers  int
}

// ReembedConfig holds configuration for the reembed service.
type ReembedConfig struct {
	Workers int
}

// NewReembedService creates a new reembed service.
func NewReembedService(classes ReembedClassStore, members ReembedMemberStore, classSvc *ClassService, embedder Embedder, cfg *ReembedConfig) *ReembedService {
	workers := 4
	if cfg != nil && cfg.Workers > 0 {
		workers = cfg.Workers
	}
	return &ReembedService{
		classes:  classes,
		members:  members,
		classSvc: classSvc,
		embedder: embedder,
		workers:  workers,
	}
}

// ReembedStats holds statistics for a backfill run.
type ReembedStats struct {
	TotalItems     int64
	ProcessedItems int64
	SkippedItems   int64
	FailedItems    int64
	StartTime      time.Time
	EndTime        time.Time
}

// ReembedOptions holds options for a backfill run.
type ReembedOptions struct {
	Force bool // regenerate every embedding, not only missing or stale ones
}

type reembedResult struct {
	id      string
	skipped bool
	err     error
}

// errNothingToEmbed marks a record with no text to embed.
var errNothingToEmbed = errors.New("skipped: nothing to embed")

// Run regenerates up to limit embeddings of target. Individual failures are
// counted and logged; only failing to list the work is an error.
func (s *ReembedService) Run(ctx context.Context, target ReembedTarget, limit int, opts *ReembedOptions) (*ReembedStats, error) {
	if opts == nil {
		opts = &ReembedOptions{}
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", ErrUpstreamUnavailable)
	}

	var (
		ids     []string
		err     error
		process func(ctx context.Context, id string) error
	)
	switch target {
	case ReembedClasses:
		ids, err = s.classes.ListIDsNeedingEmbedding(ctx, limit, opts.Force)
		process = s.reembedClass
	case ReembedMembers:
		ids, err = s.members.ListIDsMissingEmbedding(ctx, limit, opts.Force)
		process = s.reembedMember
	default:
		return nil, fmt.Errorf("%w: unknown reembed target %q", ErrInvalidInput, target)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s to reembed: %w", target, err)
	}

	stats := &ReembedStats{
		StartTime:  time.Now(),
		TotalItems: int64(len(ids)),
	}
	ctx = logger.SetComponent(ctx, "reembed")
	logger.FromContext(ctx).WithFields(logger.Fields{
		"target": target,
		"total":  len(ids),
		"force":  opts.Force,
	}).Info("Starting embedding backfill")

	idsChan := make(chan string, s.workers*2)
	resultsChan := make(chan *reembedResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idsChan {
				if ctx.Err() != nil {
					return
				}
				result := &reembedResult{id: id}
				if err := process(ctx, id); err != nil {
					if errors.Is(err, errNothingToEmbed) {
						result.skipped = true
					} else {
						result.err = err
					}
				}
				resultsChan <- result
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			atomic.AddInt64(&stats.ProcessedItems, 1)
			if result.skipped {
				atomic.AddInt64(&stats.SkippedItems, 1)
			} else if result.err != nil {
				atomic.AddInt64(&stats.FailedItems, 1)
				logger.FromContext(ctx).WithFields(logger.Fields{
					"id": result.id,
				}).WithError(result.err).Error("Failed to reembed item")
			}
		}
		close(done)
	}()

feed:
	for _, id := range ids {
		select {
		case idsChan <- id:
		case <-ctx.Done():
			break feed
		}
	}

	close(idsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	stats.EndTime = time.Now()
	logger.FromContext(ctx).WithFields(logger.Fields{
		"target":    target,
		"total":     stats.TotalItems,
		"processed": stats.ProcessedItems,
		"skipped":   stats.SkippedItems,
		"failed":    stats.FailedItems,
		"duration":  stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Embedding backfill completed")

	return stats, ctx.Err()
}

func (s *ReembedService) reembedClass(ctx context.Context, id string) error {
	class, err := s.classes.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load class: %w", err)
	}
	if buildClassEmbeddingText(class) == "" {
		return errNothingToEmbed
	}
	return s.classSvc.RefreshEmbedding(ctx, class)
}

func (s *ReembedService) reembedMember(ctx context.Context, id string) error {
	member, err := s.members.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load member: %w", err)
	}
	text := buildMemberEmbeddingText(member)
	if text == "" {
		return errNothingToEmbed
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed member profile: %w", err)
	}
	return s.members.UpdateEmbedding(ctx, id, vec)
}

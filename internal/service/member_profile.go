package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/timmy/gymflow/internal/cache"
	"github.com/timmy/gymflow/internal/domain"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/repository"
)

// MemberProfileStore reads and writes member profiles.
type MemberProfileStore interface {
	MemberStore
	UpdateProfile(ctx context.Context, member *domain.Member) error
}

// MemberProfileService applies profile changes and keeps the derived state
// (embedding, cached suggestions) in step with them.
type MemberProfileService struct {
	members  MemberProfileStore
	embedder Embedder
	cache    *cache.Layer
	tasks    Dispatcher
}

// NewMemberProfileService creates a MemberProfileService. embedder may be nil.
func NewMemberProfileService(members MemberProfileStore, embedder Embedder, cacheLayer *cache.Layer, tasks Dispatcher) *MemberProfileService {
	return &MemberProfileService{
		members:  members,
		embedder: embedder,
		cache:    cacheLayer,
		tasks:    tasks,
	}
}

// UpdateProfile applies update to the member. Any change invalidates the
// member's cached suggestions. A goal change also regenerates the profile
// embedding in the background and invalidates again once it is stored.
// Clearing every goal drops the embedding instead.
func (s *MemberProfileService) UpdateProfile(ctx context.Context, memberID string, update domain.MemberProfileUpdate) (*domain.Member, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	if update.FitnessGoals == nil && update.MedicalConditions == nil && update.Tier == nil && update.AIOptIn == nil {
		return nil, fmt.Errorf("%w: no profile fields to update", ErrInvalidInput)
	}
	if update.Tier != nil && !update.Tier.Valid() {
		return nil, fmt.Errorf("%w: unknown membership tier %q", ErrInvalidInput, *update.Tier)
	}
	ctx = logger.SetMemberID(ctx, memberID)

	member, err := s.members.GetByID(ctx, memberID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load member %s: %w", memberID, err)
	}

	before := *member
	if update.FitnessGoals != nil {
		member.FitnessGoals = domain.StringArray(dedupeStrings(*update.FitnessGoals))
	}
	if update.MedicalConditions != nil {
		member.MedicalConditions = domain.StringArray(dedupeStrings(*update.MedicalConditions))
	}
	if update.Tier != nil {
		member.Tier = *update.Tier
	}
	if update.AIOptIn != nil {
		member.AIOptIn = *update.AIOptIn
	}

	goalsChanged := !before.FitnessGoals.Equal(member.FitnessGoals)
	if goalsChanged && buildMemberEmbeddingText(member) == "" {
		// No goals left to embed; the stored vector describes the old ones.
		member.Embedding = nil
	}

	if err := s.members.UpdateProfile(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to update member %s: %w", memberID, err)
	}
	s.invalidate(ctx, memberID)

	if goalsChanged {
		s.scheduleEmbedding(ctx, member)
	}

	logger.CtxInfo(ctx, "Member profile updated")
	return member, nil
}

func (s *MemberProfileService) invalidate(ctx context.Context, memberID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.InvalidateMember(ctx, memberID); err != nil {
		logger.With(logger.Fields{logger.FieldStage: "cache_invalidate", "error": err.Error()}).
			Warn(ctx, "Failed to invalidate member cache")
	}
}

func (s *MemberProfileService) scheduleEmbedding(ctx context.Context, member *domain.Member) {
	if s.embedder == nil || s.tasks == nil {
		return
	}
	text := buildMemberEmbeddingText(member)
	if text == "" {
		return
	}
	memberID := member.ID
	fields := logger.GetFields(ctx)
	s.tasks.Submit("member_embedding", func(taskCtx context.Context) error {
		taskCtx = logger.WithFields(taskCtx, fields)
		vec, err := s.embedder.Embed(taskCtx, text)
		if err != nil {
			return fmt.Errorf("embed member profile: %w", err)
		}
		if err := s.members.UpdateEmbedding(taskCtx, memberID, vec); err != nil {
			return fmt.Errorf("store member embedding: %w", err)
		}
		s.invalidate(taskCtx, memberID)
		return nil
	})
}

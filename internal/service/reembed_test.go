package service

import (
	"context"
	"errors"
	"testing"

	"github.com/timmy/gymflow/internal/domain"
)

type reembedClassStore struct {
	*fakeClasses
	ids       []string
	lastForce bool
}

func (s *reembedClassStore) ListIDsNeedingEmbedding(_ context.Context, limit int, force bool) ([]string, error) {
	s.lastForce = force
	if len(s.ids) > limit {
		return s.ids[:limit], nil
	}
	return s.ids, nil
}

type reembedMemberStore struct {
	*fakeMembers
	ids []string
	err error
}

func (s *reembedMemberStore) ListIDsMissingEmbedding(_ context.Context, limit int, _ bool) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.ids) > limit {
		return s.ids[:limit], nil
	}
	return s.ids, nil
}

func TestReembedClasses(t *testing.T) {
	empty := domain.Class{ID: "blank", Active: true}
	classes := &reembedClassStore{
		fakeClasses: &fakeClasses{classes: []domain.Class{
			testClass("yoga", domain.CategoryYoga, domain.DifficultyBeginner),
			testClass("hiit", domain.CategoryHIIT, domain.DifficultyAdvanced),
			empty,
		}},
		ids: []string{"yoga", "hiit", "blank", "gone"},
	}
	embedder := &fakeEmbedder{vec: []float32{1, 0}, dims: 2}
	classSvc := NewClassService(classes, nil, embedder, nil)
	svc := NewReembedService(classes, &reembedMemberStore{fakeMembers: newFakeMembers()}, classSvc, embedder, &ReembedConfig{Workers: 3})

	stats, err := svc.Run(context.Background(), ReembedClasses, 10, &ReembedOptions{Force: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.TotalItems != 4 || stats.ProcessedItems != 4 {
		t.Errorf("total/processed = %d/%d, want 4/4", stats.TotalItems, stats.ProcessedItems)
	}
	if stats.SkippedItems != 1 || stats.FailedItems != 1 {
		t.Errorf("skipped/failed = %d/%d, want 1/1", stats.SkippedItems, stats.FailedItems)
	}
	if !classes.lastForce {
		t.Error("force option not passed to the store")
	}
	if len(classes.embeddings) != 2 {
		t.Errorf("stored %d embeddings, want 2", len(classes.embeddings))
	}
}

func TestReembedMembers(t *testing.T) {
	members := &reembedMemberStore{
		fakeMembers: newFakeMembers(
			&domain.Member{ID: "m1", FitnessGoals: domain.StringArray{"endurance"}},
			&domain.Member{ID: "m2"},
		),
		ids: []string{"m1", "m2"},
	}
	embedder := &fakeEmbedder{vec: []float32{1, 0}, dims: 2}
	svc := NewReembedService(&reembedClassStore{fakeClasses: &fakeClasses{}}, members, nil, embedder, nil)

	stats, err := svc.Run(context.Background(), ReembedMembers, 1, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.TotalItems != 1 || stats.ProcessedItems != 1 || stats.FailedItems != 0 {
		t.Errorf("stats = %+v, want one processed member", stats)
	}
	if len(members.embeddings["m1"]) != 2 {
		t.Errorf("member embedding not stored")
	}
}

func TestReembedErrors(t *testing.T) {
	members := &reembedMemberStore{fakeMembers: newFakeMembers(), err: errStoreDown}
	classes := &reembedClassStore{fakeClasses: &fakeClasses{}}
	embedder := &fakeEmbedder{}

	testCases := []struct {
		name     string
		embedder Embedder
		target   ReembedTarget
		want     error
	}{
		{name: "unknown target", embedder: embedder, target: "trainers", want: ErrInvalidInput},
		{name: "listing fails", embedder: embedder, target: ReembedMembers, want: errStoreDown},
		{name: "no provider", embedder: nil, target: ReembedClasses, want: ErrUpstreamUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewReembedService(classes, members, nil, tc.embedder, nil)
			if _, err := svc.Run(context.Background(), tc.target, 10, nil); !errors.Is(err, tc.want) {
				t.Errorf("Run() error = %v, want %v", err, tc.want)
			}
		})
	}
}

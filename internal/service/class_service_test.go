package service

import (
	"context"
	"errors"
	"testing"

	"github.com/timmy/gymflow/internal/domain"
)

func TestUpdateClass(t *testing.T) {
	name := "Power Yoga"
	capacity := 30
	inactive := false
	badCategory := domain.ClassCategory("zumba")
	emptyName := " "

	testCases := []struct {
		name        string
		classID     string
		update      domain.ClassUpdate
		wantErr     error
		wantReembed bool
	}{
		{name: "text change reembeds", classID: "yoga", update: domain.ClassUpdate{Name: &name}, wantReembed: true},
		{name: "capacity change does not", classID: "yoga", update: domain.ClassUpdate{Capacity: &capacity}},
		{name: "deactivation reembeds", classID: "yoga", update: domain.ClassUpdate{Active: &inactive}, wantReembed: true},
		{name: "unknown category", classID: "yoga", update: domain.ClassUpdate{Category: &badCategory}, wantErr: ErrInvalidInput},
		{name: "empty name", classID: "yoga", update: domain.ClassUpdate{Name: &emptyName}, wantErr: ErrInvalidInput},
		{name: "missing id", classID: "", update: domain.ClassUpdate{Name: &name}, wantErr: ErrInvalidInput},
		{name: "unknown class", classID: "nope", update: domain.ClassUpdate{Name: &name}, wantErr: ErrClassNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			classes := &fakeClasses{classes: []domain.Class{testClass("yoga", domain.CategoryYoga, domain.DifficultyBeginner)}}
			index := &upsertingIndex{}
			tasks := &syncDispatcher{}
			svc := NewClassService(classes, index, &fakeEmbedder{vec: []float32{1, 2}, dims: 2}, tasks)

			updated, err := svc.UpdateClass(context.Background(), tc.classID, tc.update)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("UpdateClass() error = %v, want %v", err, tc.wantErr)
				}
				if len(classes.updated) != 0 {
					t.Error("class written despite the error")
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateClass() error = %v", err)
			}
			if len(classes.updated) != 1 || classes.updated[0].UpdatedAt.IsZero() {
				t.Errorf("class not written with a new UpdatedAt")
			}

			reembedded := tasks.count("class_embedding") == 1
			if reembedded != tc.wantReembed {
				t.Errorf("reembedded = %v, want %v", reembedded, tc.wantReembed)
			}
			if tc.wantReembed {
				if len(classes.embeddings["yoga"]) != 2 {
					t.Errorf("embedding not stored")
				}
				if len(index.upserted) != 1 || index.upserted[0] != updated.ID {
					t.Errorf("index upserts = %v, want [%s]", index.upserted, updated.ID)
				}
			}
		})
	}
}

func TestRefreshEmbeddingWithoutProvider(t *testing.T) {
	svc := NewClassService(&fakeClasses{}, nil, nil, nil)
	class := testClass("yoga", domain.CategoryYoga, domain.DifficultyBeginner)
	if err := svc.RefreshEmbedding(context.Background(), &class); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("RefreshEmbedding() error = %v, want ErrUpstreamUnavailable", err)
	}
}

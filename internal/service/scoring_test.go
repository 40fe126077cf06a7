package service

import (
	"math"
	"testing"

	"github.com/timmy/gymflow/internal/domain"
)

const epsilon = 1e-9

func TestWeightsNormalize(t *testing.T) {
	testCases := []struct {
		name string
		in   Weights
		want Weights
	}{
		{
			name: "already normalised",
			in:   Weights{0.4, 0.3, 0.2, 0.1},
			want: Weights{0.4, 0.3, 0.2, 0.1},
		},
		{
			name: "scaled up",
			in:   Weights{4, 3, 2, 1},
			want: Weights{0.4, 0.3, 0.2, 0.1},
		},
		{
			name: "negative counts as zero",
			in:   Weights{1, -5, 1, 0},
			want: Weights{0.5, 0, 0.5, 0},
		},
		{
			name: "all zero falls back to defaults",
			in:   Weights{},
			want: Weights{0.4, 0.3, 0.2, 0.1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.Normalize()
			sum := got.Similarity + got.Popularity + got.Recency + got.Diversity
			if math.Abs(sum-1) > epsilon {
				t.Errorf("sum = %v, want 1", sum)
			}
			if math.Abs(got.Similarity-tc.want.Similarity) > epsilon ||
				math.Abs(got.Popularity-tc.want.Popularity) > epsilon ||
				math.Abs(got.Recency-tc.want.Recency) > epsilon ||
				math.Abs(got.Diversity-tc.want.Diversity) > epsilon {
				t.Errorf("Normalize() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestFinalScore(t *testing.T) {
	engine := NewScoringEngine(DefaultWeights)

	testCases := []struct {
		name string
		card CandidateCard
		want float64
	}{
		{
			name: "perfect candidate",
			card: CandidateCard{Similarity: 1, Popularity: 1, Recency: 1, Diversity: 1},
			want: 1,
		},
		{
			name: "opposite similarity contributes nothing",
			card: CandidateCard{Similarity: -1},
			want: 0,
		},
		{
			name: "neutral similarity",
			card: CandidateCard{Similarity: 0, Popularity: 0.5, Recency: 0.5, Diversity: 1},
			want: 0.4*0.5 + 0.3*0.5 + 0.2*0.5 + 0.1*1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.FinalScore(tc.card)
			if math.Abs(got-tc.want) > epsilon {
				t.Errorf("FinalScore() = %v, want %v", got, tc.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("FinalScore() = %v, out of [0,1]", got)
			}
		})
	}
}

func TestScoreAndRankOrder(t *testing.T) {
	engine := NewScoringEngine(DefaultWeights)
	cards := []CandidateCard{
		{Class: domain.Class{ID: "low"}, Similarity: -0.5, Popularity: 0.1, Position: 0},
		{Class: domain.Class{ID: "high"}, Similarity: 0.9, Popularity: 0.9, Recency: 1, Diversity: 1, Position: 1},
		{Class: domain.Class{ID: "mid"}, Similarity: 0.3, Popularity: 0.5, Recency: 0.5, Diversity: 0.6, Position: 2},
	}

	ranked := engine.ScoreAndRank(cards)
	want := []string{"high", "mid", "low"}
	for i, id := range want {
		if ranked[i].Class.ID != id {
			t.Fatalf("rank %d = %s, want %s", i, ranked[i].Class.ID, id)
		}
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].FinalScore > ranked[i-1].FinalScore {
			t.Errorf("scores not descending at %d: %v > %v", i, ranked[i].FinalScore, ranked[i-1].FinalScore)
		}
	}
	if cards[0].FinalScore != 0 {
		t.Errorf("input slice was modified")
	}
}

// TestScoreAndRankPermutation verifies that equal scores are ordered by
// retrieval position whatever the input order.
func TestScoreAndRankPermutation(t *testing.T) {
	engine := NewScoringEngine(DefaultWeights)
	base := []CandidateCard{
		{Class: domain.Class{ID: "a"}, Similarity: 0.2, Popularity: 0.5, Position: 0},
		{Class: domain.Class{ID: "b"}, Similarity: 0.2, Popularity: 0.5, Position: 1},
		{Class: domain.Class{ID: "c"}, Similarity: 0.8, Popularity: 0.5, Position: 2},
		{Class: domain.Class{ID: "d"}, Similarity: 0.2, Popularity: 0.5, Position: 3},
	}
	permutations := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	want := []string{"c", "a", "b", "d"}

	for _, perm := range permutations {
		input := make([]CandidateCard, len(perm))
		for i, p := range perm {
			input[i] = base[p]
		}
		ranked := engine.ScoreAndRank(input)
		for i, id := range want {
			if ranked[i].Class.ID != id {
				t.Errorf("permutation %v: rank %d = %s, want %s", perm, i, ranked[i].Class.ID, id)
			}
		}
	}
}

func TestDiversityScore(t *testing.T) {
	yoga, hiit := domain.CategoryYoga, domain.CategoryHIIT
	repeat := func(c domain.ClassCategory, n int) []domain.ClassCategory {
		out := make([]domain.ClassCategory, n)
		for i := range out {
			out[i] = c
		}
		return out
	}

	testCases := []struct {
		name   string
		recent []domain.ClassCategory
		want   float64
	}{
		{name: "no history", recent: nil, want: 1.0},
		{name: "rare", recent: append(repeat(yoga, 2), repeat(hiit, 8)...), want: 1.0},
		{name: "30 percent", recent: append(repeat(yoga, 3), repeat(hiit, 7)...), want: 0.6},
		{name: "50 percent", recent: append(repeat(yoga, 5), repeat(hiit, 5)...), want: 0.6},
		{name: "dominant", recent: append(repeat(yoga, 6), repeat(hiit, 4)...), want: 0.3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DiversityScore(yoga, tc.recent); got != tc.want {
				t.Errorf("DiversityScore() = %v, want %v", got, tc.want)
			}
		})
	}
}

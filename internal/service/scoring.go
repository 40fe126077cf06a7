package service

import (
	"sort"

	"github.com/timmy/gymflow/internal/domain"
)

// Weights are the relative importance of the four ranking signals. They are
// normalised before use, so only their ratios matter.
type Weights struct {
	Similarity float64 `json:"similarity"`
	Popularity float64 `json:"popularity"`
	Recency    float64 `json:"recency"`
	Diversity  float64 `json:"diversity"`
}

// DefaultWeights is the ranking configuration used when none is set.
var DefaultWeights = Weights{Similarity: 0.4, Popularity: 0.3, Recency: 0.2, Diversity: 0.1}

// Normalize rescales w to sum to 1. Negative entries count as 0 and an
// all-zero configuration falls back to DefaultWeights.
func (w Weights) Normalize() Weights {
	pos := func(v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	}
	n := Weights{pos(w.Similarity), pos(w.Popularity), pos(w.Recency), pos(w.Diversity)}
	sum := n.Similarity + n.Popularity + n.Recency + n.Diversity
	if sum == 0 {
		return DefaultWeights.Normalize()
	}
	return Weights{
		Similarity: n.Similarity / sum,
		Popularity: n.Popularity / sum,
		Recency:    n.Recency / sum,
		Diversity:  n.Diversity / sum,
	}
}

// CandidateCard is a class annotated with its ranking signals for a single
// request. Position is the retrieval order and breaks score ties.
type CandidateCard struct {
	Class      domain.Class `json:"class"`
	Similarity float64      `json:"similarity"`
	Popularity float64      `json:"popularity"`
	Recency    float64      `json:"recency"`
	Diversity  float64      `json:"diversity"`
	FinalScore float64      `json:"final_score"`
	Position   int          `json:"-"`
}

// DiversityScore rewards categories that are rare among the member's recent
// recommendations: 1.0 below a 30% share, 0.6 from 30% to 50%, 0.3 above 50%.
func DiversityScore(category domain.ClassCategory, recent []domain.ClassCategory) float64 {
	if len(recent) == 0 {
		return 1.0
	}
	count := 0
	for _, c := range recent {
		if c == category {
			count++
		}
	}
	share := float64(count) / float64(len(recent))
	switch {
	case share > 0.5:
		return 0.3
	case share >= 0.3:
		return 0.6
	default:
		return 1.0
	}
}

// ScoringEngine combines the ranking signals into one score.
type ScoringEngine struct {
	weights Weights
}

// NewScoringEngine creates a ScoringEngine with normalised weights.
func NewScoringEngine(w Weights) *ScoringEngine {
	return &ScoringEngine{weights: w.Normalize()}
}

// Weights returns the normalised weights in use.
func (e *ScoringEngine) Weights() Weights {
	return e.weights
}

// FinalScore computes w1·((sim+1)/2) + w2·pop + w3·rec + w4·div, clamped to [0,1].
func (e *ScoringEngine) FinalScore(c CandidateCard) float64 {
	w := e.weights
	return clamp01(w.Similarity*((c.Similarity+1)/2) +
		w.Popularity*c.Popularity +
		w.Recency*c.Recency +
		w.Diversity*c.Diversity)
}

// ScoreAndRank fills FinalScore on every card and returns them sorted by
// score descending. Equal scores keep their retrieval Position order, so the
// result does not depend on the order of the input slice.
func (e *ScoringEngine) ScoreAndRank(cards []CandidateCard) []CandidateCard {
	ranked := make([]CandidateCard, len(cards))
	copy(ranked, cards)
	for i := range ranked {
		ranked[i].FinalScore = e.FinalScore(ranked[i])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		return ranked[i].Position < ranked[j].Position
	})
	return ranked
}

package service

import (
	"context"

	"github.com/timmy/gymflow/internal/domain"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/monitoring"
)

// Reasons a candidate is removed by the hard constraints.
const (
	ReasonMedical  = "medical_contraindication"
	ReasonInactive = "inactive"
)

// cardioConditions are medical tags that rule out advanced high-intensity
// classes. Tags are compared after domain.StringArray normalisation.
var cardioConditions = map[string]bool{
	"heart_condition":        true,
	"hypertension":           true,
	"arrhythmia":             true,
	"cardiovascular_disease": true,
	"chest_pain":             true,
}

// HasCardioCondition reports whether any of the member's medical tags is
// cardio relevant.
func HasCardioCondition(member *domain.Member) bool {
	if member == nil {
		return false
	}
	for _, tag := range member.MedicalConditions.Normalized() {
		if cardioConditions[tag] {
			return true
		}
	}
	return false
}

// ExclusionReason returns why class must not be suggested to member, or ""
// if it may be.
func ExclusionReason(member *domain.Member, class *domain.Class) string {
	if !class.Active {
		return ReasonInactive
	}
	if class.Difficulty == domain.DifficultyAdvanced &&
		class.Category.IsHighIntensity() &&
		HasCardioCondition(member) {
		return ReasonMedical
	}
	return ""
}

// FilterCandidates drops the cards that violate a hard constraint and keeps
// the rest in input order. Each card is judged on its own, so the kept set
// does not depend on ordering. An empty result is logged as "no safe
// options"; it is a valid outcome, not an error.
func FilterCandidates(ctx context.Context, member *domain.Member, cards []CandidateCard) []CandidateCard {
	kept := make([]CandidateCard, 0, len(cards))
	removed := make(map[string]int)
	for _, card := range cards {
		if reason := ExclusionReason(member, &card.Class); reason != "" {
			removed[reason]++
			continue
		}
		kept = append(kept, card)
	}

	for reason, n := range removed {
		monitoring.FilteredCandidates.WithLabelValues(reason).Add(float64(n))
	}
	if len(cards) > 0 && len(kept) == 0 {
		logger.With(logger.Fields{
			logger.FieldCount: len(cards),
			"removed":         removed,
		}).Info(ctx, "No safe options: every candidate was filtered out")
	}
	return kept
}

package service

import "github.com/timmy/gymflow/internal/domain"

// goalCategories maps normalised fitness goals to the categories that serve
// them. A goal equal to a category name also matches that category.
var goalCategories = map[string][]domain.ClassCategory{
	"weight_loss":     {domain.CategoryHIIT, domain.CategoryCardio, domain.CategoryCycling, domain.CategoryDance, domain.CategoryBoxing},
	"muscle_gain":     {domain.CategoryStrength, domain.CategoryCrossfit},
	"strength":        {domain.CategoryStrength, domain.CategoryCrossfit, domain.CategoryPilates},
	"flexibility":     {domain.CategoryYoga, domain.CategoryPilates, domain.CategoryMobility},
	"endurance":       {domain.CategoryCardio, domain.CategoryCycling, domain.CategoryHIIT},
	"stress_relief":   {domain.CategoryYoga, domain.CategoryMobility, domain.CategoryDance},
	"general_fitness": {domain.CategoryStrength, domain.CategoryCardio, domain.CategoryYoga, domain.CategoryPilates},
	"rehabilitation":  {domain.CategoryMobility, domain.CategoryPilates, domain.CategoryYoga},
	"core":            {domain.CategoryPilates, domain.CategoryStrength},
}

// goalMatch reports whether any goal is served by category.
func goalMatch(category domain.ClassCategory, goals []string) bool {
	for _, g := range goals {
		if g == string(category) {
			return true
		}
		for _, c := range goalCategories[g] {
			if c == category {
				return true
			}
		}
	}
	return false
}

// ruleAffinity scores how well a category fits the member in [0,1]: goal
// match weighs 0.6 and attendance share of the category, relative to the
// member's most attended category, weighs 0.4.
func ruleAffinity(category domain.ClassCategory, goals []string, attended map[domain.ClassCategory]int) float64 {
	var score float64
	if goalMatch(category, goals) {
		score += 0.6
	}
	maxFreq := 0
	for _, n := range attended {
		if n > maxFreq {
			maxFreq = n
		}
	}
	if maxFreq > 0 {
		score += 0.4 * float64(attended[category]) / float64(maxFreq)
	}
	return score
}

// gettingStarted is the fixed cold-start set. The entries describe class
// types rather than concrete classes, so they carry no class ID.
var gettingStarted = []RecommendedClass{
	{Name: "Beginner Yoga", Category: domain.CategoryYoga, Difficulty: domain.DifficultyBeginner, DurationMinutes: 60,
		Reason: "A gentle introduction to movement and breathing"},
	{Name: "Intro to Strength Training", Category: domain.CategoryStrength, Difficulty: domain.DifficultyBeginner, DurationMinutes: 45,
		Reason: "Learn the basic lifts with coaching"},
	{Name: "Low-Impact Cardio", Category: domain.CategoryCardio, Difficulty: domain.DifficultyBeginner, DurationMinutes: 45,
		Reason: "Build endurance without stressing the joints"},
	{Name: "Pilates Fundamentals", Category: domain.CategoryPilates, Difficulty: domain.DifficultyBeginner, DurationMinutes: 50,
		Reason: "Core strength and posture basics"},
	{Name: "Mobility and Stretching", Category: domain.CategoryMobility, Difficulty: domain.DifficultyBeginner, DurationMinutes: 30,
		Reason: "Improve range of motion and recovery"},
}

// coldStart returns the getting-started set for members with no usable
// history or profile signal.
func coldStart(limit int) recommendationOutcome {
	n := len(gettingStarted)
	if limit > 0 && limit < n {
		n = limit
	}
	items := make([]RecommendedClass, n)
	for i := 0; i < n; i++ {
		items[i] = gettingStarted[i]
		items[i].Score = 1 - float64(i)*0.1
	}
	return recommendationOutcome{items: items, result: &RuleBased{ColdStart: true}}
}

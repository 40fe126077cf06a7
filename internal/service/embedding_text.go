package service

import (
	"fmt"
	"strings"

	"github.com/timmy/gymflow/internal/domain"
)

func normalizeWhitespace(text string) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

// buildClassEmbeddingText renders the class fields that define its
// embedding. Any change to these fields requires a new embedding.
func buildClassEmbeddingText(c *domain.Class) string {
	segments := make([]string, 0, 6)
	if name := normalizeWhitespace(c.Name); name != "" {
		segments = append(segments, "name:"+name)
	}
	if desc := normalizeWhitespace(c.Description); desc != "" {
		segments = append(segments, "desc:"+desc)
	}
	if c.Category != "" {
		segments = append(segments, "category:"+string(c.Category))
	}
	if c.Difficulty != "" {
		segments = append(segments, "difficulty:"+string(c.Difficulty))
	}
	if c.DurationMinutes > 0 {
		segments = append(segments, fmt.Sprintf("duration:%d minutes", c.DurationMinutes))
	}
	if equipment := dedupeStrings(c.Equipment); len(equipment) > 0 {
		segments = append(segments, "equipment:"+strings.Join(equipment, " "))
	}
	return strings.Join(segments, "\n")
}

// buildMemberEmbeddingText renders a member profile for embedding. Only the
// goals are used; medical conditions are enforced by filtering, not by
// similarity. Returns "" when the member has no goals.
func buildMemberEmbeddingText(m *domain.Member) string {
	goals := dedupeStrings(m.FitnessGoals)
	if len(goals) == 0 {
		return ""
	}
	return "goals:" + strings.Join(goals, ", ")
}

func dedupeStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

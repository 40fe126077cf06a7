package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"github.com/timmy/gymflow/internal/config"
	"github.com/timmy/gymflow/internal/domain"
	"github.com/timmy/gymflow/internal/prompts"
)

// AIPick is one item chosen by the AI advisor.
type AIPick struct {
	ID         string  `json:"id"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Advisor produces AI-assisted picks. Implementations must only return IDs
// taken from the candidates they were given.
type Advisor interface {
	RecommendClasses(ctx context.Context, member *domain.Member, patterns MemberPatterns, classes []domain.Class, limit int) ([]AIPick, error)
	RankSlots(ctx context.Context, member *domain.Member, patterns MemberPatterns, slots []domain.ScheduleSlot, limit int) ([]AIPick, error)
}

// ChatAdvisor asks an OpenAI-compatible chat completion API for picks.
type ChatAdvisor struct {
	client   *resty.Client
	model    string
	endpoint string
	hasKey   bool
	breaker  *gobreaker.CircuitBreaker[string]
}

// NewChatAdvisor creates a ChatAdvisor.
// Parameters:
//   - cfg: AI configuration including model, API key and timeout.
//   - breakerCfg: circuit breaker thresholds.
//
// Returns:
//   - *ChatAdvisor: initialized advisor.
func NewChatAdvisor(cfg *config.AIConfig, breakerCfg config.BreakerConfig) *ChatAdvisor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	return &ChatAdvisor{
		client:   client,
		model:    cfg.Model,
		endpoint: strings.TrimRight(baseURL, "/") + "/chat/completions",
		hasKey:   cfg.APIKey != "",
		breaker:  newBreaker[string]("ai-advisor", breakerCfg),
	}
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type picksEnvelope struct {
	Picks []AIPick `json:"picks"`
}

// RecommendClasses asks the model to pick classes from the catalogue.
func (a *ChatAdvisor) RecommendClasses(ctx context.Context, member *domain.Member, patterns MemberPatterns, classes []domain.Class, limit int) ([]AIPick, error) {
	allowed := make(map[string]bool, len(classes))
	lines := make([]string, 0, len(classes))
	for _, c := range classes {
		allowed[c.ID] = true
		lines = append(lines, fmt.Sprintf("- id=%s name=%q category=%s difficulty=%s duration=%dmin",
			c.ID, c.Name, c.Category, c.Difficulty, c.DurationMinutes))
	}
	user := fmt.Sprintf(prompts.ClassAdvisorUserPrompt,
		describeMember(member), describePatterns(patterns), strings.Join(lines, "\n"), limit)

	content, err := a.complete(ctx, prompts.ClassAdvisorSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	return parsePicks(content, allowed, limit)
}

// RankSlots asks the model to pick upcoming sessions.
func (a *ChatAdvisor) RankSlots(ctx context.Context, member *domain.Member, patterns MemberPatterns, slots []domain.ScheduleSlot, limit int) ([]AIPick, error) {
	allowed := make(map[string]bool, len(slots))
	lines := make([]string, 0, len(slots))
	for _, s := range slots {
		allowed[s.Occurrence.ID] = true
		lines = append(lines, fmt.Sprintf("- id=%s class=%q category=%s trainer=%s start=%s free=%.0f%%",
			s.Occurrence.ID, s.Class.Name, s.Class.Category, s.Occurrence.TrainerID,
			s.Occurrence.StartTime.Format(time.RFC3339), s.FreeRatio()*100))
	}
	user := fmt.Sprintf(prompts.ScheduleAdvisorUserPrompt,
		describeMember(member), describePatterns(patterns), strings.Join(lines, "\n"), limit)

	content, err := a.complete(ctx, prompts.ScheduleAdvisorSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	return parsePicks(content, allowed, limit)
}

func (a *ChatAdvisor) complete(ctx context.Context, system, user string) (string, error) {
	if !a.hasKey {
		return "", fmt.Errorf("ai advisor: %w", ErrMissingCredentials)
	}

	content, err := a.breaker.Execute(func() (string, error) {
		var resp chatResponse
		httpResp, err := a.client.R().
			SetContext(ctx).
			SetBody(chatRequest{
				Model: a.model,
				Messages: []chatMessage{
					{Role: "system", Content: system},
					{Role: "user", Content: user},
				},
				MaxTokens:      600,
				Temperature:    0.2,
				ResponseFormat: &responseFormat{Type: "json_object"},
			}).
			SetResult(&resp).
			SetError(&resp).
			Post(a.endpoint)
		if err != nil {
			return "", fmt.Errorf("failed to call chat API: %w", err)
		}
		if httpResp.StatusCode() != http.StatusOK || resp.Error != nil {
			return "", classifyHTTPError("chat", httpResp.StatusCode(), resp.Error, string(httpResp.Body()))
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("chat: %w: no choices", ErrMalformedResponse)
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return "", err
	}
	return content, nil
}

// parsePicks decodes the model output, dropping unknown and duplicate IDs.
// An answer with no usable pick is malformed.
func parsePicks(content string, allowed map[string]bool, limit int) ([]AIPick, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var env picksEnvelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	seen := make(map[string]bool)
	picks := make([]AIPick, 0, len(env.Picks))
	for _, p := range env.Picks {
		if !allowed[p.ID] || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		p.Confidence = clamp01(p.Confidence)
		picks = append(picks, p)
		if limit > 0 && len(picks) == limit {
			break
		}
	}
	if len(picks) == 0 {
		return nil, fmt.Errorf("%w: no known ids in answer", ErrMalformedResponse)
	}
	return picks, nil
}

func describeMember(m *domain.Member) string {
	goals := strings.Join(m.FitnessGoals, ", ")
	if goals == "" {
		goals = "none stated"
	}
	conditions := strings.Join(m.MedicalConditions, ", ")
	if conditions == "" {
		conditions = "none"
	}
	return fmt.Sprintf("goals: %s\nmedical conditions: %s\ntier: %s", goals, conditions, m.Tier)
}

func describePatterns(p MemberPatterns) string {
	if !p.HasHistory() {
		return "no history"
	}
	return fmt.Sprintf("hours: %v\nweekdays: %v\ncategories: %v\nattendance rate: %.0f%%\ncancellation rate: %.0f%%",
		p.PreferredHours, p.PreferredWeekdays, p.PreferredCategories, p.AttendanceRate, p.CancellationRate)
}

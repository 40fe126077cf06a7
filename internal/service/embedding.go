package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/gymflow/internal/config"
)

const (
	jinaEndpoint      = "https://api.jina.ai/v1/embeddings"
	openAIBaseURL     = "https://api.openai.com/v1"
	rateLimitCode     = "rate_limit_exceeded"
	defaultEmbedLimit = 30 * time.Second
)

// EmbeddingProvider turns text into a fixed-length vector.
type EmbeddingProvider interface {
	// Embed embeds a document (class description or member profile).
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	GetModel() string
	GetDimensions() int
}

// NewEmbeddingProvider creates the provider named by cfg.Provider.
// A missing API key is not an error here; every call then fails with
// ErrMissingCredentials so callers fall back instead of refusing to start.
func NewEmbeddingProvider(cfg *config.EmbeddingConfig) (EmbeddingProvider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEmbedLimit
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	switch cfg.Provider {
	case "jina":
		endpoint := jinaEndpoint
		if cfg.BaseURL != "" {
			endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/embeddings"
		}
		return &jinaProvider{
			client:     client,
			endpoint:   endpoint,
			model:      cfg.Model,
			dimensions: cfg.Dimensions,
			hasKey:     cfg.APIKey != "",
		}, nil
	case "openai-compatible":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openAIBaseURL
		}
		return &openAIEmbeddingProvider{
			client:     client,
			endpoint:   strings.TrimRight(baseURL, "/") + "/embeddings",
			model:      cfg.Model,
			dimensions: cfg.Dimensions,
			hasKey:     cfg.APIKey != "",
		}, nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
}

// apiError is the error envelope shared by OpenAI-compatible APIs.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// classifyHTTPError maps a non-200 provider response to a sentinel error.
func classifyHTTPError(provider string, status int, apiErr *apiError, detail string) error {
	msg := detail
	if apiErr != nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	if status == http.StatusTooManyRequests || (apiErr != nil && (apiErr.Code == rateLimitCode || apiErr.Type == rateLimitCode)) {
		return fmt.Errorf("%s: %w: %s", provider, ErrRateLimited, msg)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%s: %w: status %d", provider, ErrMissingCredentials, status)
	}
	if status >= 500 {
		return fmt.Errorf("%s: %w: status %d %s", provider, ErrUpstreamUnavailable, status, msg)
	}
	return fmt.Errorf("%s API error: status %d %s", provider, status, msg)
}

// checkDimensions rejects vectors of the wrong length instead of truncating.
func checkDimensions(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

// Jina API request/response structures
type jinaRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
}

type jinaProvider struct {
	client     *resty.Client
	endpoint   string
	model      string
	dimensions int
	hasKey     bool
}

func (p *jinaProvider) GetModel() string   { return p.model }
func (p *jinaProvider) GetDimensions() int { return p.dimensions }

func (p *jinaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text, "retrieval.passage")
}

func (p *jinaProvider) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return p.embed(ctx, query, "retrieval.query")
}

func (p *jinaProvider) embed(ctx context.Context, text, task string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if !p.hasKey {
		return nil, fmt.Errorf("jina: %w", ErrMissingCredentials)
	}

	var resp jinaResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(jinaRequest{
			Model:         p.model,
			Task:          task,
			Dimensions:    p.dimensions,
			Input:         []string{text},
			EmbeddingType: "float",
		}).
		SetResult(&resp).
		SetError(&resp).
		Post(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call Jina API: %w", err)
	}
	if httpResp.StatusCode() != http.StatusOK {
		return nil, classifyHTTPError("jina", httpResp.StatusCode(), nil, resp.Detail)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("jina: %w: no embedding returned", ErrMalformedResponse)
	}

	vec := resp.Data[0].Embedding
	if err := checkDimensions(vec, p.dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

type openAIEmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

type openAIEmbeddingProvider struct {
	client     *resty.Client
	endpoint   string
	model      string
	dimensions int
	hasKey     bool
}

func (p *openAIEmbeddingProvider) GetModel() string   { return p.model }
func (p *openAIEmbeddingProvider) GetDimensions() int { return p.dimensions }

func (p *openAIEmbeddingProvider) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return p.Embed(ctx, query)
}

func (p *openAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if !p.hasKey {
		return nil, fmt.Errorf("openai: %w", ErrMissingCredentials)
	}

	var resp openAIEmbeddingResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(openAIEmbeddingRequest{
			Model:      p.model,
			Input:      []string{text},
			Dimensions: p.dimensions,
		}).
		SetResult(&resp).
		SetError(&resp).
		Post(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}
	if httpResp.StatusCode() != http.StatusOK || resp.Error != nil {
		return nil, classifyHTTPError("openai", httpResp.StatusCode(), resp.Error, "")
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: %w: no embedding returned", ErrMalformedResponse)
	}

	vec := resp.Data[0].Embedding
	if err := checkDimensions(vec, p.dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/timmy/gymflow/internal/config"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/monitoring"
)

// EmbeddingClient guards an EmbeddingProvider with a per-call timeout and a
// circuit breaker, and records the outcome of each call.
type EmbeddingClient struct {
	provider EmbeddingProvider
	name     string
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker[[]float32]
}

// NewEmbeddingClient wraps provider.
// Parameters:
//   - provider: the embedding backend.
//   - name: label used in logs and metrics.
//   - timeout: per-call timeout.
//   - cfg: circuit breaker thresholds.
func NewEmbeddingClient(provider EmbeddingProvider, name string, timeout time.Duration, cfg config.BreakerConfig) *EmbeddingClient {
	if timeout <= 0 {
		timeout = defaultEmbedLimit
	}
	return &EmbeddingClient{
		provider: provider,
		name:     name,
		timeout:  timeout,
		breaker:  newBreaker[[]float32]("embedding-"+name, cfg),
	}
}

// Dimensions returns the configured vector length.
func (c *EmbeddingClient) Dimensions() int {
	return c.provider.GetDimensions()
}

// Embed embeds a document text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.call(ctx, func(callCtx context.Context) ([]float32, error) {
		return c.provider.Embed(callCtx, text)
	})
}

// EmbedQuery embeds a search query.
func (c *EmbeddingClient) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return c.call(ctx, func(callCtx context.Context) ([]float32, error) {
		return c.provider.EmbedQuery(callCtx, query)
	})
}

func (c *EmbeddingClient) call(ctx context.Context, fn func(context.Context) ([]float32, error)) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	vec, err := c.breaker.Execute(func() ([]float32, error) {
		return fn(callCtx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	outcome := "ok"
	if err != nil {
		outcome = failureReason(err)
		if errors.Is(err, ErrEmptyText) {
			outcome = "invalid_input"
		}
	}
	monitoring.EmbeddingRequests.WithLabelValues(c.name, outcome).Inc()

	fields := logger.Fields{
		"provider":             c.name,
		"model":                c.provider.GetModel(),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}
	switch {
	case err == nil:
		logger.With(fields).Debug(ctx, "Embedding generated")
	case errors.Is(err, ErrRateLimited):
		fields[logger.FieldReason] = "rate_limited"
		logger.With(fields).Warn(ctx, "Embedding provider rate limited: %v", err)
	case errors.Is(err, ErrDimensionMismatch):
		fields[logger.FieldReason] = "dimension_mismatch"
		logger.With(fields).Warn(ctx, "Embedding rejected: %v", err)
	default:
		fields[logger.FieldReason] = outcome
		logger.With(fields).Warn(ctx, "Embedding call failed: %v", err)
	}
	return vec, err
}

// newBreaker builds a circuit breaker that opens after consecutive upstream
// failures. Input and credential errors do not count against the upstream.
func newBreaker[T any](name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker[T] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	monitoring.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrEmptyText) ||
				errors.Is(err, ErrInvalidInput) ||
				errors.Is(err, ErrMissingCredentials)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker %s changed state: %s -> %s", name, from.String(), to.String())
			monitoring.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			monitoring.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

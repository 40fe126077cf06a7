package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/monitoring"
)

// Method names the strategy that produced a response.
type Method string

const (
	MethodVector  Method = "vector_embedding"
	MethodAI      Method = "ai_based"
	MethodRule    Method = "rule_based"
	MethodKeyword Method = "keyword"
)

// Strategy is one step of a degradation chain. Attempt returns a result, or
// an error built with skip for an expected pass, or any other error for a
// failure. Both let the chain move on; an error built with fatal stops it.
type Strategy[T any] struct {
	Name    string
	Method  Method
	Attempt func(ctx context.Context) (T, error)
}

// SkippedStrategy records why a strategy did not produce the result.
type SkippedStrategy struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
	Error    string `json:"error,omitempty"`
}

type skipError struct {
	reason string
}

func (e *skipError) Error() string { return "skipped: " + e.reason }

// skip marks an expected pass (not requested, no data) with a reason.
func skip(reason string) error {
	return &skipError{reason: reason}
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// fatal stops the chain and surfaces err to the caller.
func fatal(err error) error {
	return &fatalError{err: err}
}

// errNoStrategy is returned when every strategy passed. Chains end with a
// strategy that always succeeds, so this indicates a wiring bug.
var errNoStrategy = errors.New("no strategy produced a result")

// runStrategies tries strategies in order and returns the first result with
// the method that produced it and the reasons the earlier ones were passed
// over. Rate limits are logged apart from other failures.
func runStrategies[T any](ctx context.Context, flow string, strategies []Strategy[T]) (T, Method, []SkippedStrategy, error) {
	var zero T
	skipped := make([]SkippedStrategy, 0, len(strategies))

	for _, st := range strategies {
		sctx := logger.WithField(ctx, logger.FieldStrategy, st.Name)
		result, err := st.Attempt(sctx)
		if err == nil {
			monitoring.StrategyOutcomes.WithLabelValues(flow, st.Name, "served").Inc()
			return result, st.Method, skipped, nil
		}

		var fe *fatalError
		if errors.As(err, &fe) {
			monitoring.StrategyOutcomes.WithLabelValues(flow, st.Name, "fatal").Inc()
			return zero, "", skipped, fmt.Errorf("%s strategy: %w", st.Name, fe.err)
		}

		var se *skipError
		if errors.As(err, &se) {
			monitoring.StrategyOutcomes.WithLabelValues(flow, st.Name, "skipped").Inc()
			logger.With(logger.Fields{logger.FieldReason: se.reason}).Debug(sctx, "Strategy skipped")
			skipped = append(skipped, SkippedStrategy{Strategy: st.Name, Reason: se.reason})
			continue
		}

		reason := failureReason(err)
		monitoring.StrategyOutcomes.WithLabelValues(flow, st.Name, reason).Inc()
		entry := logger.With(logger.Fields{
			logger.FieldReason: reason,
			logger.FieldStage:  st.Name,
			"error":            err.Error(),
		})
		if reason == "rate_limited" {
			entry.Warn(sctx, "Strategy rate limited upstream, falling back")
		} else {
			entry.Warn(sctx, "Strategy failed, falling back")
		}
		skipped = append(skipped, SkippedStrategy{Strategy: st.Name, Reason: reason, Error: err.Error()})
	}
	return zero, "", skipped, errNoStrategy
}

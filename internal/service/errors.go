package service

import (
	"context"
	"errors"
)

// Input errors. Handlers map these to 400.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyText    = errors.New("text is empty")
)

// ErrMemberNotFound and ErrClassNotFound map to 404.
var (
	ErrMemberNotFound = errors.New("member not found")
	ErrClassNotFound  = errors.New("class not found")
)

// Upstream errors. These are absorbed by the suggestion flows and only
// logged; rate limits are reported separately from generic failures.
var (
	ErrRateLimited         = errors.New("upstream rate limited")
	ErrMissingCredentials  = errors.New("upstream credentials not configured")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrMalformedResponse   = errors.New("malformed upstream response")
	ErrAIDisabled          = errors.New("ai suggestions disabled")
)

// failureReason classifies an upstream error for logs and skip reasons.
func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "failed"
}

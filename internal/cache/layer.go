package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/monitoring"
	"golang.org/x/sync/singleflight"
)

// Layer stores JSON values in a Store. Every store call runs under its own
// timeout and store failures are logged and treated as misses, so an
// unreachable cache never fails a request.
type Layer struct {
	store     Store
	opTimeout time.Duration
	group     singleflight.Group
}

// NewLayer creates a Layer over store.
func NewLayer(store Store, opTimeout time.Duration) *Layer {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &Layer{store: store, opTimeout: opTimeout}
}

// Get decodes the value at key into dest and reports whether it was found.
func (l *Layer) Get(ctx context.Context, key string, dest interface{}) bool {
	opCtx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	data, err := l.store.Get(opCtx, key)
	if errors.Is(err, ErrMiss) {
		monitoring.CacheLookups.WithLabelValues("miss").Inc()
		return false
	}
	if err != nil {
		monitoring.CacheLookups.WithLabelValues("error").Inc()
		logger.With(logger.Fields{
			logger.FieldCacheKey: key,
			logger.FieldStage:    "cache_get",
			"error":              err.Error(),
		}).Warn(ctx, "Cache read failed, treating as miss")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		monitoring.CacheLookups.WithLabelValues("error").Inc()
		logger.With(logger.Fields{
			logger.FieldCacheKey: key,
			"error":              err.Error(),
		}).Warn(ctx, "Cached value is not decodable, treating as miss")
		return false
	}
	monitoring.CacheLookups.WithLabelValues("hit").Inc()
	return true
}

// Set encodes value as JSON and stores it with ttl. Failures are logged only.
func (l *Layer) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		logger.With(logger.Fields{
			logger.FieldCacheKey: key,
			"error":              err.Error(),
		}).Warn(ctx, "Failed to encode cache value")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()
	if err := l.store.SetEx(opCtx, key, ttl, data); err != nil {
		logger.With(logger.Fields{
			logger.FieldCacheKey: key,
			logger.FieldStage:    "cache_set",
			"error":              err.Error(),
		}).Warn(ctx, "Cache write failed")
	}
}

// InvalidateMember removes every cached entry of a member and returns the
// number of keys deleted.
func (l *Layer) InvalidateMember(ctx context.Context, memberID string) (int, error) {
	opCtx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var keys []string
	for _, pattern := range MemberPatterns(memberID) {
		matched, err := l.store.Keys(opCtx, pattern)
		if err != nil {
			return 0, err
		}
		keys = append(keys, matched...)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := l.store.Del(opCtx, keys...); err != nil {
		return 0, err
	}
	monitoring.CacheInvalidations.Add(float64(len(keys)))
	logger.With(logger.Fields{
		logger.FieldMemberID: memberID,
		logger.FieldCount:    len(keys),
	}).Info(ctx, "Invalidated member cache entries")
	return len(keys), nil
}

// FetchOptions tune a single Fetch call.
type FetchOptions struct {
	TTL time.Duration
	// SkipRead bypasses the cache read; the fresh value is still stored.
	SkipRead bool
}

// Fetch returns the cached value at key or computes it with load and stores
// it. Concurrent misses on the same key share one load. The load runs on a
// context detached from the caller's cancellation so an abandoned request
// still populates the cache; load must apply its own timeouts.
//
// The returned flag reports whether the value came from the cache.
func Fetch[T any](ctx context.Context, l *Layer, key string, opts FetchOptions, load func(context.Context) (T, error)) (T, bool, error) {
	var cached T
	if !opts.SkipRead {
		if l.Get(ctx, key, &cached) {
			return cached, true, nil
		}
	} else {
		monitoring.CacheLookups.WithLabelValues("bypass").Inc()
	}

	detached := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (interface{}, error) {
		value, err := load(detached)
		if err != nil {
			return value, err
		}
		l.Set(detached, key, value, opts.TTL)
		return value, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		// The load keeps running and fills the cache for the next caller.
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Shared {
			logger.With(logger.Fields{logger.FieldCacheKey: key}).Debug(ctx, "Coalesced concurrent cache miss")
		}
		if res.Err != nil {
			return zero, false, res.Err
		}
		value, ok := res.Val.(T)
		if !ok {
			return zero, false, errors.New("cache: unexpected value type from load")
		}
		return value, false, nil
	}
}

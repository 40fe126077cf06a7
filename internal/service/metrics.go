package service

import (
	"context"
	"math"
	"time"

	"github.com/timmy/gymflow/internal/domain"
	"github.com/timmy/gymflow/internal/logger"
	"golang.org/x/sync/errgroup"
)

// CalculatePopularity scores a class in [0,1] from its historical aggregates:
//
//	0.3·min(attendance/100,1) + 0.2·min(bookings/100,1)
//	  + 0.3·((avgRating−1)/4) + 0.2·min(completionRate,1)
//
// A class without ratings has avgRating 0, which pulls the rating term below
// zero; the final clamp keeps the result in range.
func CalculatePopularity(m domain.ClassMetrics) float64 {
	score := 0.3*normalizeCount(m.AttendanceCount, 100) +
		0.2*normalizeCount(m.BookingCount, 100) +
		0.3*((m.AverageRating-1)/4) +
		0.2*math.Min(math.Max(m.CompletionRate, 0), 1)
	return clamp01(score)
}

// CalculateRecency scores how recently a class last ran. Nil means the class
// has never run.
//
//	≤ 7 days     1.0
//	7–30 days    linear 1.0 → 0.2
//	30–90 days   linear 0.2 → 0.1
//	> 90 days    0.1
//	no history   0.5
func CalculateRecency(daysSinceLast *float64) float64 {
	if daysSinceLast == nil {
		return 0.5
	}
	d := *daysSinceLast
	switch {
	case d <= 7:
		return 1.0
	case d <= 30:
		return 1.0 - 0.8*(d-7)/23
	case d <= 90:
		return 0.2 - 0.1*(d-30)/60
	default:
		return 0.1
	}
}

func normalizeCount(n, ceiling int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(float64(n)/float64(ceiling), 1)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MetricsSource is the aggregation backend of the collector.
type MetricsSource interface {
	AttendanceCounts(ctx context.Context, classIDs []string) (map[string]int, error)
	BookingCounts(ctx context.Context, classIDs []string) (map[string]int, error)
	AverageRatings(ctx context.Context, classIDs []string) (map[string]float64, error)
	LastOccurrences(ctx context.Context, classIDs []string, now time.Time) (map[string]time.Time, error)
}

// MetricsCollector aggregates class metrics for a batch of candidates.
type MetricsCollector struct {
	source  MetricsSource
	timeout time.Duration
	now     func() time.Time
}

// NewMetricsCollector creates a MetricsCollector. timeout bounds each query.
func NewMetricsCollector(source MetricsSource, timeout time.Duration) *MetricsCollector {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MetricsCollector{source: source, timeout: timeout, now: time.Now}
}

// Collect returns metrics for every class ID. The four aggregates are queried
// concurrently; an aggregate that fails or times out is logged and left at
// zero, so a class always gets a metrics value.
func (c *MetricsCollector) Collect(ctx context.Context, classIDs []string) map[string]domain.ClassMetrics {
	out := make(map[string]domain.ClassMetrics, len(classIDs))
	for _, id := range classIDs {
		out[id] = domain.ClassMetrics{ClassID: id}
	}
	if len(classIDs) == 0 {
		return out
	}

	now := c.now()
	var (
		attendance map[string]int
		bookings   map[string]int
		ratings    map[string]float64
		last       map[string]time.Time
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	run := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()
			if err := fn(qctx); err != nil {
				logger.With(logger.Fields{
					logger.FieldStage: "metrics_" + name,
					"error":           err.Error(),
				}).Warn(ctx, "Class metrics aggregate unavailable, using zero")
			}
			return nil
		})
	}
	run("attendance", func(qctx context.Context) (err error) {
		attendance, err = c.source.AttendanceCounts(qctx, classIDs)
		return err
	})
	run("bookings", func(qctx context.Context) (err error) {
		bookings, err = c.source.BookingCounts(qctx, classIDs)
		return err
	})
	run("ratings", func(qctx context.Context) (err error) {
		ratings, err = c.source.AverageRatings(qctx, classIDs)
		return err
	})
	run("last_occurrence", func(qctx context.Context) (err error) {
		last, err = c.source.LastOccurrences(qctx, classIDs, now)
		return err
	})
	_ = g.Wait()

	for _, id := range classIDs {
		m := out[id]
		m.AttendanceCount = attendance[id]
		m.BookingCount = bookings[id]
		m.AverageRating = ratings[id]
		if m.BookingCount > 0 {
			m.CompletionRate = float64(m.AttendanceCount) / float64(m.BookingCount)
		}
		if t, ok := last[id]; ok {
			lastRun := t
			m.LastOccurrence = &lastRun
		}
		out[id] = m
	}
	return out
}

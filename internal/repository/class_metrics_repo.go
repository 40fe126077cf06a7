package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/gymflow/internal/domain"
	"gorm.io/gorm"
)

// ClassMetricsRepository runs the aggregation queries behind class
// popularity and recency. Each method covers a batch of classes with one
// grouped query; classes without rows are absent from the result map.
type ClassMetricsRepository struct {
	db *gorm.DB
}

// NewClassMetricsRepository creates a new ClassMetricsRepository.
func NewClassMetricsRepository(db *gorm.DB) *ClassMetricsRepository {
	return &ClassMetricsRepository{db: db}
}

type classCount struct {
	ClassID string
	Total   int
}

// AttendanceCounts counts attendance rows per class.
func (r *ClassMetricsRepository) AttendanceCounts(ctx context.Context, classIDs []string) (map[string]int, error) {
	var rows []classCount
	err := r.db.WithContext(ctx).Model(&domain.Attendance{}).
		Select("class_id, COUNT(*) AS total").
		Where("class_id IN ?", classIDs).
		Group("class_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count attendance: %w", err)
	}
	return countsByClass(rows), nil
}

// BookingCounts counts non-cancelled bookings per class.
func (r *ClassMetricsRepository) BookingCounts(ctx context.Context, classIDs []string) (map[string]int, error) {
	var rows []classCount
	err := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Select("class_id, COUNT(*) AS total").
		Where("class_id IN ? AND status <> ?", classIDs, domain.BookingCancelled).
		Group("class_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	return countsByClass(rows), nil
}

// AverageRatings averages the non-null attendance ratings per class.
func (r *ClassMetricsRepository) AverageRatings(ctx context.Context, classIDs []string) (map[string]float64, error) {
	type row struct {
		ClassID   string
		AvgRating float64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&domain.Attendance{}).
		Select("class_id, AVG(rating) AS avg_rating").
		Where("class_id IN ? AND rating IS NOT NULL", classIDs).
		Group("class_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to average ratings: %w", err)
	}
	out := make(map[string]float64, len(rows))
	for _, rw := range rows {
		out[rw.ClassID] = rw.AvgRating
	}
	return out, nil
}

// LastOccurrences returns the latest non-cancelled occurrence per class that
// started at or before now.
func (r *ClassMetricsRepository) LastOccurrences(ctx context.Context, classIDs []string, now time.Time) (map[string]time.Time, error) {
	type row struct {
		ClassID   string
		LastStart scanTime
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&domain.ScheduleOccurrence{}).
		Select("class_id, MAX(start_time) AS last_start").
		Where("class_id IN ? AND status <> ? AND start_time <= ?", classIDs, domain.ScheduleStatusCancelled, now).
		Group("class_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load last occurrences: %w", err)
	}
	out := make(map[string]time.Time, len(rows))
	for _, rw := range rows {
		if rw.LastStart.Valid {
			out[rw.ClassID] = rw.LastStart.Time
		}
	}
	return out, nil
}

func countsByClass(rows []classCount) map[string]int {
	out := make(map[string]int, len(rows))
	for _, rw := range rows {
		out[rw.ClassID] = rw.Total
	}
	return out
}

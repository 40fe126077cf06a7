package repository

import (
	"context"
	"fmt"

	"github.com/timmy/gymflow/internal/domain"
	"gorm.io/gorm"
)

// HistoryRepository reads attendance and booking history and records the
// classes served to members.
type HistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// CreateAttendance inserts an attendance record. Attendance rows are never
// updated afterwards.
func (r *HistoryRepository) CreateAttendance(ctx context.Context, a *domain.Attendance) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// CreateBooking inserts a booking record.
func (r *HistoryRepository) CreateBooking(ctx context.Context, b *domain.Booking) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// RecentAttendance returns the member's most recent attendance, newest first,
// joined with the occurrence trainer and start time and the class category.
func (r *HistoryRepository) RecentAttendance(ctx context.Context, memberID string, limit int) ([]domain.AttendanceEvent, error) {
	type row struct {
		ScheduleID string
		ClassID    string
		Category   string
		TrainerID  string
		StartTime  scanTime
		Rating     *int
	}
	var rows []row
	err := r.db.WithContext(ctx).Table("attendances a").
		Select("a.schedule_id, a.class_id, c.category, s.trainer_id, s.start_time, a.rating").
		Joins("JOIN class_schedules s ON s.id = a.schedule_id").
		Joins("JOIN classes c ON c.id = a.class_id").
		Where("a.member_id = ?", memberID).
		Order("a.attended_at DESC, a.id").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance history: %w", err)
	}

	events := make([]domain.AttendanceEvent, len(rows))
	for i, rw := range rows {
		events[i] = domain.AttendanceEvent{
			ScheduleID: rw.ScheduleID,
			ClassID:    rw.ClassID,
			Category:   domain.ClassCategory(rw.Category),
			TrainerID:  rw.TrainerID,
			StartTime:  rw.StartTime.Time,
			Rating:     rw.Rating,
		}
	}
	return events, nil
}

// RecentBookings returns the member's most recent bookings, newest first,
// joined with the occurrence start time.
func (r *HistoryRepository) RecentBookings(ctx context.Context, memberID string, limit int) ([]domain.BookingEvent, error) {
	type row struct {
		ScheduleID string
		ClassID    string
		Status     string
		BookedAt   scanTime
		StartTime  scanTime
	}
	var rows []row
	err := r.db.WithContext(ctx).Table("bookings b").
		Select("b.schedule_id, b.class_id, b.status, b.booked_at, s.start_time").
		Joins("JOIN class_schedules s ON s.id = b.schedule_id").
		Where("b.member_id = ?", memberID).
		Order("b.booked_at DESC, b.id").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load booking history: %w", err)
	}

	events := make([]domain.BookingEvent, len(rows))
	for i, rw := range rows {
		events[i] = domain.BookingEvent{
			ScheduleID: rw.ScheduleID,
			ClassID:    rw.ClassID,
			Status:     domain.BookingStatus(rw.Status),
			BookedAt:   rw.BookedAt.Time,
			StartTime:  rw.StartTime.Time,
		}
	}
	return events, nil
}

// RecentRecommendedCategories returns the categories of the last n classes
// served to the member, newest first.
func (r *HistoryRepository) RecentRecommendedCategories(ctx context.Context, memberID string, n int) ([]domain.ClassCategory, error) {
	var categories []domain.ClassCategory
	err := r.db.WithContext(ctx).Model(&domain.RecommendationLog{}).
		Where("member_id = ?", memberID).
		Order("created_at DESC, id").
		Limit(n).
		Pluck("category", &categories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent recommendations: %w", err)
	}
	return categories, nil
}

// LogRecommendations stores the classes served in one response.
func (r *HistoryRepository) LogRecommendations(ctx context.Context, logs []domain.RecommendationLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}

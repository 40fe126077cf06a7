package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/gymflow/internal/domain"
	"gorm.io/gorm"
)

// SlotQuery narrows the upcoming occurrences returned by ListUpcomingSlots.
// Empty string fields are ignored.
type SlotQuery struct {
	From      time.Time
	To        time.Time
	ClassID   string
	Category  string
	TrainerID string
	Limit     int
}

// ScheduleRepository reads schedule occurrences and their derived booking load.
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create inserts a new schedule occurrence.
func (r *ScheduleRepository) Create(ctx context.Context, occ *domain.ScheduleOccurrence) error {
	return r.db.WithContext(ctx).Create(occ).Error
}

// ListUpcomingSlots returns scheduled occurrences of active classes starting
// within [q.From, q.To), ordered by start time. The confirmed count of each
// slot is counted from booking rows rather than trusted from the occurrence.
func (r *ScheduleRepository) ListUpcomingSlots(ctx context.Context, q SlotQuery) ([]domain.ScheduleSlot, error) {
	db := r.db.WithContext(ctx).
		Where("status = ?", domain.ScheduleStatusScheduled).
		Where("start_time >= ? AND start_time < ?", q.From, q.To)
	if q.ClassID != "" {
		db = db.Where("class_id = ?", q.ClassID)
	}
	if q.TrainerID != "" {
		db = db.Where("trainer_id = ?", q.TrainerID)
	}
	if q.Category != "" {
		db = db.Where("class_id IN (?)",
			r.db.Model(&domain.Class{}).Select("id").Where("category = ?", q.Category))
	}
	db = db.Order("start_time, id")
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var occurrences []domain.ScheduleOccurrence
	if err := db.Find(&occurrences).Error; err != nil {
		return nil, fmt.Errorf("failed to list upcoming occurrences: %w", err)
	}
	if len(occurrences) == 0 {
		return []domain.ScheduleSlot{}, nil
	}

	classIDs := make([]string, 0, len(occurrences))
	scheduleIDs := make([]string, 0, len(occurrences))
	seen := make(map[string]bool)
	for _, occ := range occurrences {
		scheduleIDs = append(scheduleIDs, occ.ID)
		if !seen[occ.ClassID] {
			seen[occ.ClassID] = true
			classIDs = append(classIDs, occ.ClassID)
		}
	}

	var classes []domain.Class
	if err := r.db.WithContext(ctx).Where("id IN ?", classIDs).Find(&classes).Error; err != nil {
		return nil, fmt.Errorf("failed to load classes for slots: %w", err)
	}
	classByID := make(map[string]domain.Class, len(classes))
	for _, c := range classes {
		classByID[c.ID] = c
	}

	counts, err := r.confirmedCounts(ctx, scheduleIDs)
	if err != nil {
		return nil, err
	}

	slots := make([]domain.ScheduleSlot, 0, len(occurrences))
	for _, occ := range occurrences {
		class, ok := classByID[occ.ClassID]
		if !ok {
			continue
		}
		slots = append(slots, domain.ScheduleSlot{
			Occurrence:     occ,
			Class:          class,
			ConfirmedCount: counts[occ.ID],
		})
	}
	return slots, nil
}

func (r *ScheduleRepository) confirmedCounts(ctx context.Context, scheduleIDs []string) (map[string]int, error) {
	type row struct {
		ScheduleID string
		Total      int
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Select("schedule_id, COUNT(*) AS total").
		Where("schedule_id IN ? AND status = ?", scheduleIDs, domain.BookingConfirmed).
		Group("schedule_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count confirmed bookings: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, rw := range rows {
		counts[rw.ScheduleID] = rw.Total
	}
	return counts, nil
}

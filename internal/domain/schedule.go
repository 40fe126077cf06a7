package domain

import "time"

// ScheduleStatus is the lifecycle state of a schedule occurrence.
type ScheduleStatus string

const (
	ScheduleStatusScheduled  ScheduleStatus = "scheduled"
	ScheduleStatusInProgress ScheduleStatus = "in_progress"
	ScheduleStatusCompleted  ScheduleStatus = "completed"
	ScheduleStatusCancelled  ScheduleStatus = "cancelled"
)

// ScheduleOccurrence is a concrete, time-boxed instance of a class.
type ScheduleOccurrence struct {
	ID        string         `gorm:"type:text;primaryKey" json:"id"`
	ClassID   string         `gorm:"type:text;not null;index:idx_class_schedules_class" json:"class_id"`
	TrainerID string         `gorm:"type:text;index:idx_class_schedules_trainer" json:"trainer_id"`
	RoomID    string         `gorm:"type:text" json:"room_id"`
	StartTime time.Time      `gorm:"index:idx_class_schedules_start" json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Capacity  int            `json:"capacity"`
	Status    ScheduleStatus `gorm:"type:text;default:scheduled" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName returns the database table name for ScheduleOccurrence.
func (ScheduleOccurrence) TableName() string {
	return "class_schedules"
}

// ScheduleSlot is an occurrence joined with its class and the confirmed
// booking count derived from booking records.
type ScheduleSlot struct {
	Occurrence     ScheduleOccurrence `json:"occurrence"`
	Class          Class              `json:"class"`
	ConfirmedCount int                `json:"confirmed_count"`
}

// FreeRatio returns the share of capacity still available, in [0,1].
func (s *ScheduleSlot) FreeRatio() float64 {
	capacity := s.Occurrence.Capacity
	if capacity <= 0 {
		capacity = s.Class.Capacity
	}
	if capacity <= 0 {
		return 0
	}
	free := float64(capacity-s.ConfirmedCount) / float64(capacity)
	if free < 0 {
		return 0
	}
	if free > 1 {
		return 1
	}
	return free
}

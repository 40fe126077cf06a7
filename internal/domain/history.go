package domain

import "time"

// Attendance records that a member attended an occurrence. Rows are
// immutable once created.
type Attendance struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	MemberID   string    `gorm:"type:text;not null;index:idx_attendances_member" json:"member_id"`
	ScheduleID string    `gorm:"type:text;not null;index:idx_attendances_schedule" json:"schedule_id"`
	ClassID    string    `gorm:"type:text;not null;index:idx_attendances_class" json:"class_id"`
	AttendedAt time.Time `json:"attended_at"`
	Rating     *int      `json:"rating,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Attendance.
func (Attendance) TableName() string {
	return "attendances"
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingConfirmed  BookingStatus = "confirmed"
	BookingWaitlisted BookingStatus = "waitlisted"
	BookingCancelled  BookingStatus = "cancelled"
)

// Booking records that a member reserved an occurrence.
type Booking struct {
	ID         string        `gorm:"type:text;primaryKey" json:"id"`
	MemberID   string        `gorm:"type:text;not null;index:idx_bookings_member" json:"member_id"`
	ScheduleID string        `gorm:"type:text;not null;index:idx_bookings_schedule" json:"schedule_id"`
	ClassID    string        `gorm:"type:text;not null;index:idx_bookings_class" json:"class_id"`
	Status     BookingStatus `gorm:"type:text;default:confirmed" json:"status"`
	BookedAt   time.Time     `json:"booked_at"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Booking.
func (Booking) TableName() string {
	return "bookings"
}

// AttendanceEvent is an attendance joined with the occurrence and class
// fields the pattern analysis needs.
type AttendanceEvent struct {
	ScheduleID string
	ClassID    string
	Category   ClassCategory
	TrainerID  string
	StartTime  time.Time
	Rating     *int
}

// BookingEvent is a booking joined with its occurrence start time.
type BookingEvent struct {
	ScheduleID string
	ClassID    string
	Status     BookingStatus
	BookedAt   time.Time
	StartTime  time.Time
}

// RecommendationLog records a class that was served to a member. The most
// recent rows form the member's recent recommendation set.
type RecommendationLog struct {
	ID        string        `gorm:"type:text;primaryKey" json:"id"`
	MemberID  string        `gorm:"type:text;not null;index:idx_recommendation_logs_member" json:"member_id"`
	ClassID   string        `gorm:"type:text" json:"class_id"`
	Category  ClassCategory `gorm:"type:text" json:"category"`
	Method    string        `gorm:"type:text" json:"method"`
	CreatedAt time.Time     `gorm:"index:idx_recommendation_logs_created" json:"created_at"`
}

// TableName returns the database table name for RecommendationLog.
func (RecommendationLog) TableName() string {
	return "recommendation_logs"
}

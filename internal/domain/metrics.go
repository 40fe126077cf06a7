package domain

import "time"

// ClassMetrics holds the historical aggregates of one class.
type ClassMetrics struct {
	ClassID         string     `json:"class_id"`
	AttendanceCount int        `json:"attendance_count"`
	BookingCount    int        `json:"booking_count"`
	AverageRating   float64    `json:"average_rating"`
	CompletionRate  float64    `json:"completion_rate"`
	LastOccurrence  *time.Time `json:"last_occurrence,omitempty"`
}

// DaysSinceLastOccurrence returns the whole days between the last occurrence
// and now, or nil when the class has never run.
func (m ClassMetrics) DaysSinceLastOccurrence(now time.Time) *float64 {
	if m.LastOccurrence == nil {
		return nil
	}
	days := now.Sub(*m.LastOccurrence).Hours() / 24
	if days < 0 {
		days = 0
	}
	return &days
}

package service

import (
	"math"
	"time"

	"github.com/timmy/gymflow/internal/domain"
)

// leadTimeAlpha is the smoothing factor of the booking lead time average.
const leadTimeAlpha = 0.3

// MemberPatterns summarises a member's attendance and booking behaviour.
// Rates are percentages in [0,100].
type MemberPatterns struct {
	PreferredHours      map[int]int                  `json:"preferred_hours"`
	PreferredWeekdays   map[int]int                  `json:"preferred_weekdays"`
	PreferredCategories map[domain.ClassCategory]int `json:"preferred_categories"`
	PreferredTrainers   map[string]int               `json:"preferred_trainers"`
	AttendanceRate      float64                      `json:"attendance_rate"`
	CancellationRate    float64                      `json:"cancellation_rate"`
	NoShowRate          float64                      `json:"no_show_rate"`
	LeadTimeHours       float64                      `json:"lead_time_hours"`
	AttendanceCount     int                          `json:"attendance_count"`
	BookingCount        int                          `json:"booking_count"`
}

// HasHistory reports whether any attendance or booking was analysed.
func (p MemberPatterns) HasHistory() bool {
	return p.AttendanceCount > 0 || p.BookingCount > 0
}

// PatternAnalyzer mines member history. Hours and weekdays are read in loc.
type PatternAnalyzer struct {
	loc *time.Location
	now func() time.Time
}

// NewPatternAnalyzer creates a PatternAnalyzer. A nil location means UTC.
func NewPatternAnalyzer(loc *time.Location) *PatternAnalyzer {
	if loc == nil {
		loc = time.UTC
	}
	return &PatternAnalyzer{loc: loc, now: time.Now}
}

// Analyze builds the member's patterns from attendance and bookings, both
// ordered most recent first. Every rate is 0 when its denominator is 0.
func (a *PatternAnalyzer) Analyze(attendance []domain.AttendanceEvent, bookings []domain.BookingEvent) MemberPatterns {
	p := MemberPatterns{
		PreferredHours:      make(map[int]int),
		PreferredWeekdays:   make(map[int]int),
		PreferredCategories: make(map[domain.ClassCategory]int),
		PreferredTrainers:   make(map[string]int),
		AttendanceCount:     len(attendance),
		BookingCount:        len(bookings),
	}

	attended := make(map[string]bool, len(attendance))
	for _, ev := range attendance {
		attended[ev.ScheduleID] = true
		if !ev.StartTime.IsZero() {
			start := ev.StartTime.In(a.loc)
			p.PreferredHours[start.Hour()]++
			p.PreferredWeekdays[int(start.Weekday())]++
		}
		if ev.Category != "" {
			p.PreferredCategories[ev.Category]++
		}
		if ev.TrainerID != "" {
			p.PreferredTrainers[ev.TrainerID]++
		}
	}

	now := a.now()
	var cancelled, active, started, noShows int
	for _, b := range bookings {
		if b.Status == domain.BookingCancelled {
			cancelled++
			continue
		}
		active++
		if !b.StartTime.IsZero() && b.StartTime.Before(now) {
			started++
			if !attended[b.ScheduleID] {
				noShows++
			}
		}
	}

	p.AttendanceRate = math.Min(percent(len(attendance), active), 100)
	p.CancellationRate = percent(cancelled, len(bookings))
	p.NoShowRate = percent(noShows, started)
	p.LeadTimeHours = smoothedLeadTime(bookings)
	return p
}

// smoothedLeadTime averages booked-at to start-time deltas exponentially,
// oldest to newest, seeded with the oldest delta.
func smoothedLeadTime(bookings []domain.BookingEvent) float64 {
	var ema float64
	seeded := false
	for i := len(bookings) - 1; i >= 0; i-- {
		b := bookings[i]
		if b.StartTime.IsZero() || b.BookedAt.IsZero() {
			continue
		}
		delta := b.StartTime.Sub(b.BookedAt).Hours()
		if delta < 0 {
			continue
		}
		if !seeded {
			ema, seeded = delta, true
			continue
		}
		ema = leadTimeAlpha*delta + (1-leadTimeAlpha)*ema
	}
	return ema
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Time-of-day bands used by the schedule band bonus.
const (
	BandMorning   = "morning"
	BandAfternoon = "afternoon"
	BandEvening   = "evening"
)

// timeBand returns the band of an hour, or "" outside 05:00–22:59.
func timeBand(hour int) string {
	switch {
	case hour >= 5 && hour <= 11:
		return BandMorning
	case hour >= 12 && hour <= 16:
		return BandAfternoon
	case hour >= 17 && hour <= 22:
		return BandEvening
	}
	return ""
}

// ScoreSchedule ranks a slot against the member's patterns. The score is a
// sum of points, not a probability:
//
//	hour match       up to 20 (frequency capped at 5)
//	weekday match    up to 15 (capped at 3)
//	category match   up to 25 (capped at 10)
//	trainer match    up to 30 (capped at 5)
//	availability     +10 above 50% free, +5 above 20% free
//	time band        +5 if a preferred hour falls in the slot's band,
//	                 −5 if the member has preferred hours but none there
func (a *PatternAnalyzer) ScoreSchedule(slot domain.ScheduleSlot, p MemberPatterns) float64 {
	start := slot.Occurrence.StartTime.In(a.loc)
	hour := start.Hour()

	score := capped(p.PreferredHours[hour], 5, 20) +
		capped(p.PreferredWeekdays[int(start.Weekday())], 3, 15) +
		capped(p.PreferredCategories[slot.Class.Category], 10, 25) +
		capped(p.PreferredTrainers[slot.Occurrence.TrainerID], 5, 30)

	switch free := slot.FreeRatio(); {
	case free > 0.5:
		score += 10
	case free > 0.2:
		score += 5
	}

	if band := timeBand(hour); band != "" && len(p.PreferredHours) > 0 {
		inBand := false
		for h, n := range p.PreferredHours {
			if n > 0 && timeBand(h) == band {
				inBand = true
				break
			}
		}
		if inBand {
			score += 5
		} else {
			score -= 5
		}
	}
	return score
}

// capped scales freq/limit (at most 1) to maxPoints.
func capped(freq, limit int, maxPoints float64) float64 {
	if freq <= 0 {
		return 0
	}
	if freq > limit {
		freq = limit
	}
	return maxPoints * float64(freq) / float64(limit)
}

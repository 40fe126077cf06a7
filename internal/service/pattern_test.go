package service

import (
	"math"
	"testing"
	"time"

	"github.com/timmy/gymflow/internal/domain"
)

func TestPatternAnalyzerAnalyze(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	analyzer := NewPatternAnalyzer(time.UTC)
	analyzer.now = func() time.Time { return now }

	// Monday 2024-03-04 and Wednesday 2024-03-06, both at 18:00.
	mon := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)
	wed := time.Date(2024, 3, 6, 18, 0, 0, 0, time.UTC)
	fri := time.Date(2024, 3, 8, 7, 0, 0, 0, time.UTC)

	attendance := []domain.AttendanceEvent{
		{ScheduleID: "s2", ClassID: "c1", Category: domain.CategoryYoga, TrainerID: "t1", StartTime: wed},
		{ScheduleID: "s1", ClassID: "c1", Category: domain.CategoryYoga, TrainerID: "t1", StartTime: mon},
	}
	bookings := []domain.BookingEvent{
		{ScheduleID: "s4", Status: domain.BookingCancelled, BookedAt: fri.Add(-48 * time.Hour), StartTime: fri},
		{ScheduleID: "s3", Status: domain.BookingConfirmed, BookedAt: fri.Add(-10 * time.Hour), StartTime: fri},
		{ScheduleID: "s2", Status: domain.BookingConfirmed, BookedAt: wed.Add(-20 * time.Hour), StartTime: wed},
		{ScheduleID: "s1", Status: domain.BookingConfirmed, BookedAt: mon.Add(-10 * time.Hour), StartTime: mon},
	}

	p := analyzer.Analyze(attendance, bookings)

	if !p.HasHistory() {
		t.Fatal("HasHistory() = false, want true")
	}
	if p.PreferredHours[18] != 2 {
		t.Errorf("PreferredHours[18] = %d, want 2", p.PreferredHours[18])
	}
	if p.PreferredWeekdays[int(time.Monday)] != 1 || p.PreferredWeekdays[int(time.Wednesday)] != 1 {
		t.Errorf("PreferredWeekdays = %v", p.PreferredWeekdays)
	}
	if p.PreferredCategories[domain.CategoryYoga] != 2 {
		t.Errorf("PreferredCategories = %v", p.PreferredCategories)
	}
	if p.PreferredTrainers["t1"] != 2 {
		t.Errorf("PreferredTrainers = %v", p.PreferredTrainers)
	}

	// 2 attendances over 3 non-cancelled bookings.
	if math.Abs(p.AttendanceRate-200.0/3) > 1e-6 {
		t.Errorf("AttendanceRate = %v, want %v", p.AttendanceRate, 200.0/3)
	}
	if p.CancellationRate != 25 {
		t.Errorf("CancellationRate = %v, want 25", p.CancellationRate)
	}
	// s3 started but was not attended.
	if math.Abs(p.NoShowRate-100.0/3) > 1e-6 {
		t.Errorf("NoShowRate = %v, want %v", p.NoShowRate, 100.0/3)
	}
	// Oldest first: 10, 20, 10, 48.
	want := 10.0
	for _, delta := range []float64{20, 10, 48} {
		want = 0.3*delta + 0.7*want
	}
	if math.Abs(p.LeadTimeHours-want) > 1e-6 {
		t.Errorf("LeadTimeHours = %v, want %v", p.LeadTimeHours, want)
	}
}

func TestPatternAnalyzerEmptyHistory(t *testing.T) {
	p := NewPatternAnalyzer(nil).Analyze(nil, nil)
	if p.HasHistory() {
		t.Error("HasHistory() = true, want false")
	}
	if p.AttendanceRate != 0 || p.CancellationRate != 0 || p.NoShowRate != 0 || p.LeadTimeHours != 0 {
		t.Errorf("rates = %+v, want zeros", p)
	}
}

func TestPatternAnalyzerTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	analyzer := NewPatternAnalyzer(loc)
	start := time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC) // 01:00 Tuesday local

	p := analyzer.Analyze([]domain.AttendanceEvent{{ScheduleID: "s1", StartTime: start}}, nil)
	if p.PreferredHours[1] != 1 {
		t.Errorf("PreferredHours = %v, want hour 1", p.PreferredHours)
	}
	if p.PreferredWeekdays[int(time.Tuesday)] != 1 {
		t.Errorf("PreferredWeekdays = %v, want Tuesday", p.PreferredWeekdays)
	}
}

func TestScoreSchedule(t *testing.T) {
	analyzer := NewPatternAnalyzer(time.UTC)
	evening := time.Date(2024, 3, 11, 18, 0, 0, 0, time.UTC) // Monday
	morning := time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC)  // Tuesday

	patterns := MemberPatterns{
		PreferredHours:      map[int]int{18: 7},
		PreferredWeekdays:   map[int]int{int(time.Monday): 3},
		PreferredCategories: map[domain.ClassCategory]int{domain.CategoryYoga: 12},
		PreferredTrainers:   map[string]int{"t1": 5},
	}

	slot := func(start time.Time, category domain.ClassCategory, trainer string, confirmed int) domain.ScheduleSlot {
		return domain.ScheduleSlot{
			Occurrence:     domain.ScheduleOccurrence{ID: "s", StartTime: start, TrainerID: trainer, Capacity: 10},
			Class:          testClass("c", category, domain.DifficultyBeginner),
			ConfirmedCount: confirmed,
		}
	}

	testCases := []struct {
		name     string
		slot     domain.ScheduleSlot
		patterns MemberPatterns
		want     float64
	}{
		{
			name:     "every signal matches",
			slot:     slot(evening, domain.CategoryYoga, "t1", 2),
			patterns: patterns,
			want:     20 + 15 + 25 + 30 + 10 + 5,
		},
		{
			name:     "nothing matches and class is full",
			slot:     slot(morning, domain.CategoryHIIT, "t9", 10),
			patterns: patterns,
			want:     -5,
		},
		{
			name:     "partial availability",
			slot:     slot(morning, domain.CategoryHIIT, "t9", 6),
			patterns: patterns,
			want:     5 - 5,
		},
		{
			name: "frequencies below the caps",
			slot: slot(evening, domain.CategoryYoga, "t1", 10),
			patterns: MemberPatterns{
				PreferredHours:      map[int]int{18: 1},
				PreferredWeekdays:   map[int]int{int(time.Monday): 1},
				PreferredCategories: map[domain.ClassCategory]int{domain.CategoryYoga: 5},
				PreferredTrainers:   map[string]int{"t1": 1},
			},
			want: 20.0/5 + 15.0/3 + 25.0/2 + 30.0/5 + 5,
		},
		{
			name:     "no history gives availability only",
			slot:     slot(morning, domain.CategoryHIIT, "t9", 0),
			patterns: MemberPatterns{},
			want:     10,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := analyzer.ScoreSchedule(tc.slot, tc.patterns)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("ScoreSchedule() = %v, want %v", got, tc.want)
			}
		})
	}
}

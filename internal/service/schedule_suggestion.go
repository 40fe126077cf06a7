package service

import (
	"cmp"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/timmy/gymflow/internal/cache"
	"github.com/timmy/gymflow/internal/domain"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/monitoring"
	"github.com/timmy/gymflow/internal/repository"
)

const (
	dateLayout          = "2006-01-02"
	maxScheduleLimit    = 50
	scheduleSlotCeiling = 500
)

// SlotReader lists upcoming occurrences with their booking load.
type SlotReader interface {
	ListUpcomingSlots(ctx context.Context, q repository.SlotQuery) ([]domain.ScheduleSlot, error)
}

// DateRange is a half-open [From, To) window of whole days.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ParseDateRange parses "YYYY-MM-DD:YYYY-MM-DD" in loc. Both days are
// included. An empty value yields the next days days starting today.
func ParseDateRange(value string, now time.Time, days int, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	if value == "" {
		y, m, d := now.In(loc).Date()
		from := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return DateRange{From: from, To: from.AddDate(0, 0, days)}, nil
	}

	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return DateRange{}, fmt.Errorf("%w: dateRange must be YYYY-MM-DD:YYYY-MM-DD", ErrInvalidInput)
	}
	from, err := time.ParseInLocation(dateLayout, strings.TrimSpace(parts[0]), loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: invalid dateRange start %q", ErrInvalidInput, parts[0])
	}
	to, err := time.ParseInLocation(dateLayout, strings.TrimSpace(parts[1]), loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: invalid dateRange end %q", ErrInvalidInput, parts[1])
	}
	if to.Before(from) {
		return DateRange{}, fmt.Errorf("%w: dateRange end is before start", ErrInvalidInput)
	}
	return DateRange{From: from, To: to.AddDate(0, 0, 1)}, nil
}

// String renders the window as its inclusive "YYYY-MM-DD:YYYY-MM-DD" form.
func (r DateRange) String() string {
	return r.From.Format(dateLayout) + ":" + r.To.AddDate(0, 0, -1).Format(dateLayout)
}

// ScheduleRequest are the parameters of a schedule suggestion call.
type ScheduleRequest struct {
	MemberID  string
	ClassID   string
	Category  string
	TrainerID string
	DateRange string
	UseAI     bool
	SkipCache bool
	Limit     int
}

// ScheduleSuggestion is one suggested occurrence.
type ScheduleSuggestion struct {
	ScheduleID     string               `json:"schedule_id"`
	ClassID        string               `json:"class_id"`
	ClassName      string               `json:"class_name"`
	Category       domain.ClassCategory `json:"category"`
	Difficulty     domain.Difficulty    `json:"difficulty"`
	TrainerID      string               `json:"trainer_id,omitempty"`
	RoomID         string               `json:"room_id,omitempty"`
	StartTime      time.Time            `json:"start_time"`
	EndTime        time.Time            `json:"end_time"`
	Capacity       int                  `json:"capacity"`
	ConfirmedCount int                  `json:"confirmed_count"`
	Score          float64              `json:"score"`
	Reason         string               `json:"reason,omitempty"`
}

// PatternSummary is the member behaviour returned next to suggestions.
type PatternSummary struct {
	TopHours         []int                  `json:"top_hours"`
	TopWeekdays      []int                  `json:"top_weekdays"`
	TopCategories    []domain.ClassCategory `json:"top_categories"`
	TopTrainers      []string               `json:"top_trainers"`
	AttendanceRate   float64                `json:"attendance_rate"`
	CancellationRate float64                `json:"cancellation_rate"`
	NoShowRate       float64                `json:"no_show_rate"`
	LeadTimeHours    float64                `json:"lead_time_hours"`
}

// ScheduleResponse is the answer to a schedule suggestion request.
type ScheduleResponse struct {
	MemberID    string               `json:"member_id"`
	Method      Method               `json:"method"`
	Cached      bool                 `json:"cached"`
	Suggestions []ScheduleSuggestion `json:"suggestions"`
	Patterns    PatternSummary       `json:"patterns"`
	Window      DateRange            `json:"window"`
	Skipped     []SkippedStrategy    `json:"skipped,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// ScheduleConfig tunes the schedule suggestion flow.
type ScheduleConfig struct {
	Days          int
	Limit         int
	HistoryLimit  int
	CacheTTL      time.Duration
	QueryTimeout  time.Duration
	AIEnabled     bool
	EligibleTiers []string
	Location      *time.Location
}

// ScheduleDeps are the collaborators of ScheduleService. Advisor may be nil.
type ScheduleDeps struct {
	Members  MemberStore
	History  HistoryStore
	Slots    SlotReader
	Advisor  Advisor
	Analyzer *PatternAnalyzer
	Cache    *cache.Layer
}

// ScheduleService suggests concrete upcoming occurrences for a member.
type ScheduleService struct {
	ScheduleDeps
	cfg ScheduleConfig
	now func() time.Time
}

// NewScheduleService creates a ScheduleService.
func NewScheduleService(deps ScheduleDeps, cfg ScheduleConfig) *ScheduleService {
	if cfg.Days <= 0 {
		cfg.Days = 7
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ScheduleService{ScheduleDeps: deps, cfg: cfg, now: time.Now}
}

// Suggest returns ranked upcoming occurrences for a member.
func (s *ScheduleService) Suggest(ctx context.Context, req ScheduleRequest) (*ScheduleResponse, error) {
	req.MemberID = strings.TrimSpace(req.MemberID)
	if req.MemberID == "" {
		return nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	window, err := ParseDateRange(req.DateRange, s.now(), s.cfg.Days, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	switch {
	case req.Limit <= 0:
		req.Limit = s.cfg.Limit
	case req.Limit > maxScheduleLimit:
		req.Limit = maxScheduleLimit
	}
	ctx = logger.SetMemberID(ctx, req.MemberID)

	start := time.Now()
	key := cache.ScheduleKey(req.MemberID, cache.Params{}.
		String("classId", req.ClassID).
		String("category", strings.ToLower(req.Category)).
		String("trainerId", req.TrainerID).
		String("dateRange", window.String()).
		Bool("useAI", req.UseAI).
		Int("limit", req.Limit))

	resp, cached, err := cache.Fetch(ctx, s.Cache, key,
		cache.FetchOptions{TTL: s.cfg.CacheTTL, SkipRead: req.SkipCache},
		func(loadCtx context.Context) (*ScheduleResponse, error) {
			return s.compute(loadCtx, req, window)
		})
	if err != nil {
		return nil, err
	}

	out := *resp
	out.Cached = cached
	if cached {
		out.Suggestions = startingAfter(out.Suggestions, s.now())
	}
	monitoring.SuggestionDuration.WithLabelValues("schedules", string(out.Method)).Observe(time.Since(start).Seconds())
	logger.With(logger.Fields{
		"method":               out.Method,
		"cached":               cached,
		logger.FieldCount:      len(out.Suggestions),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Schedule suggestions served")
	return &out, nil
}

type scheduleOutcome struct {
	suggestions []ScheduleSuggestion
}

func (s *ScheduleService) compute(ctx context.Context, req ScheduleRequest, window DateRange) (*ScheduleResponse, error) {
	state, err := loadMember(ctx, s.Members, s.History, s.Analyzer, req.MemberID,
		s.cfg.HistoryLimit, 0, s.cfg.QueryTimeout)
	if err != nil {
		return nil, err
	}

	now := s.now()
	slots, err := s.upcomingSlots(ctx, req, window, now)
	if err != nil {
		return nil, err
	}

	safe := make([]domain.ScheduleSlot, 0, len(slots))
	for _, slot := range slots {
		if !slot.Occurrence.StartTime.After(now) {
			continue
		}
		if reason := ExclusionReason(state.member, &slot.Class); reason != "" {
			monitoring.FilteredCandidates.WithLabelValues(reason).Inc()
			continue
		}
		safe = append(safe, slot)
	}

	strategies := []Strategy[scheduleOutcome]{
		{Name: "ai_based", Method: MethodAI, Attempt: func(ctx context.Context) (scheduleOutcome, error) {
			return s.aiStrategy(ctx, req, state, safe)
		}},
		{Name: "pattern_based", Method: MethodRule, Attempt: func(ctx context.Context) (scheduleOutcome, error) {
			return s.patternStrategy(req, state, safe), nil
		}},
	}
	outcome, method, skipped, err := runStrategies(ctx, "schedules", strategies)
	if err != nil {
		return nil, err
	}

	return &ScheduleResponse{
		MemberID:    req.MemberID,
		Method:      method,
		Suggestions: outcome.suggestions,
		Patterns:    summarizePatterns(state.patterns),
		Window:      window,
		Skipped:     skipped,
		GeneratedAt: s.now().UTC(),
	}, nil
}

// upcomingSlots lists the occurrences of the window that have not started
// yet. A window entirely in the past yields nothing without a query.
func (s *ScheduleService) upcomingSlots(ctx context.Context, req ScheduleRequest, window DateRange, now time.Time) ([]domain.ScheduleSlot, error) {
	from := window.From
	if now.After(from) {
		from = now
	}
	if !from.Before(window.To) {
		return []domain.ScheduleSlot{}, nil
	}

	qctx, cancel := withTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	slots, err := s.Slots.ListUpcomingSlots(qctx, repository.SlotQuery{
		From:      from,
		To:        window.To,
		ClassID:   req.ClassID,
		Category:  strings.ToLower(req.Category),
		TrainerID: req.TrainerID,
		Limit:     scheduleSlotCeiling,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming slots: %w", err)
	}
	return slots, nil
}

// startingAfter drops suggestions that started at or before now. Cached
// responses outlive the moment they were computed.
func startingAfter(items []ScheduleSuggestion, now time.Time) []ScheduleSuggestion {
	out := make([]ScheduleSuggestion, 0, len(items))
	for _, item := range items {
		if item.StartTime.After(now) {
			out = append(out, item)
		}
	}
	return out
}

func (s *ScheduleService) aiStrategy(ctx context.Context, req ScheduleRequest, state *memberState, slots []domain.ScheduleSlot) (scheduleOutcome, error) {
	var none scheduleOutcome
	if !req.UseAI {
		return none, skip("not_requested")
	}
	if !s.cfg.AIEnabled || s.Advisor == nil {
		return none, skip("ai_disabled")
	}
	if ok, reason := tierPermitsAI(state.member, s.cfg.EligibleTiers); !ok {
		return none, skip(reason)
	}
	if len(slots) == 0 {
		return none, skip("no_upcoming_slots")
	}

	picks, err := s.Advisor.RankSlots(ctx, state.member, state.patterns, slots, req.Limit)
	if err != nil {
		return none, err
	}
	byID := make(map[string]domain.ScheduleSlot, len(slots))
	for _, slot := range slots {
		byID[slot.Occurrence.ID] = slot
	}
	out := make([]ScheduleSuggestion, 0, len(picks))
	for _, p := range picks {
		out = append(out, toSuggestion(byID[p.ID], p.Confidence, p.Reason))
	}
	return scheduleOutcome{suggestions: out}, nil
}

func (s *ScheduleService) patternStrategy(req ScheduleRequest, state *memberState, slots []domain.ScheduleSlot) scheduleOutcome {
	type scored struct {
		slot  domain.ScheduleSlot
		score float64
	}
	ranked := make([]scored, len(slots))
	for i, slot := range slots {
		ranked[i] = scored{slot: slot, score: s.Analyzer.ScoreSchedule(slot, state.patterns)}
	}
	// Slots arrive in start-time order, which breaks ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > req.Limit {
		ranked = ranked[:req.Limit]
	}

	out := make([]ScheduleSuggestion, len(ranked))
	for i, r := range ranked {
		out[i] = toSuggestion(r.slot, r.score, slotReason(r.slot, state.patterns))
	}
	return scheduleOutcome{suggestions: out}
}

func toSuggestion(slot domain.ScheduleSlot, score float64, reason string) ScheduleSuggestion {
	capacity := slot.Occurrence.Capacity
	if capacity <= 0 {
		capacity = slot.Class.Capacity
	}
	return ScheduleSuggestion{
		ScheduleID:     slot.Occurrence.ID,
		ClassID:        slot.Class.ID,
		ClassName:      slot.Class.Name,
		Category:       slot.Class.Category,
		Difficulty:     slot.Class.Difficulty,
		TrainerID:      slot.Occurrence.TrainerID,
		RoomID:         slot.Occurrence.RoomID,
		StartTime:      slot.Occurrence.StartTime,
		EndTime:        slot.Occurrence.EndTime,
		Capacity:       capacity,
		ConfirmedCount: slot.ConfirmedCount,
		Score:          score,
		Reason:         reason,
	}
}

func slotReason(slot domain.ScheduleSlot, p MemberPatterns) string {
	var parts []string
	if p.PreferredTrainers[slot.Occurrence.TrainerID] > 0 {
		parts = append(parts, "trainer you have trained with")
	}
	if p.PreferredCategories[slot.Class.Category] > 0 {
		parts = append(parts, "category you attend")
	}
	if slot.FreeRatio() > 0.5 {
		parts = append(parts, "plenty of spots left")
	}
	if len(parts) == 0 {
		return "Fits your schedule"
	}
	return "Matches: " + strings.Join(parts, ", ")
}

// topKeys returns up to n keys of freq ordered by count desc then key.
func topKeys[K cmp.Ordered](freq map[K]int, n int) []K {
	keys := make([]K, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] != freq[keys[j]] {
			return freq[keys[i]] > freq[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func summarizePatterns(p MemberPatterns) PatternSummary {
	return PatternSummary{
		TopHours:         topKeys(p.PreferredHours, 3),
		TopWeekdays:      topKeys(p.PreferredWeekdays, 3),
		TopCategories:    topKeys(p.PreferredCategories, 3),
		TopTrainers:      topKeys(p.PreferredTrainers, 3),
		AttendanceRate:   p.AttendanceRate,
		CancellationRate: p.CancellationRate,
		NoShowRate:       p.NoShowRate,
		LeadTimeHours:    p.LeadTimeHours,
	}
}

// WarmMember recomputes and caches the default schedule suggestion entry.
func (s *ScheduleService) WarmMember(ctx context.Context, memberID string) error {
	_, err := s.Suggest(ctx, ScheduleRequest{MemberID: memberID, SkipCache: true})
	return err
}

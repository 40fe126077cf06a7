package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/gymflow/internal/cache"
	"github.com/timmy/gymflow/internal/domain"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/monitoring"
	"github.com/timmy/gymflow/internal/repository"
)

const (
	maxRecommendationLimit = 50
	ruleCandidateLimit     = 500
)

// RecommendedClass is the uniform view of one suggested class. Cold-start
// suggestions are generic and carry no ClassID.
type RecommendedClass struct {
	ClassID         string               `json:"class_id,omitempty"`
	Name            string               `json:"name"`
	Category        domain.ClassCategory `json:"category"`
	Difficulty      domain.Difficulty    `json:"difficulty"`
	DurationMinutes int                  `json:"duration_minutes,omitempty"`
	Score           float64              `json:"score"`
	Reason          string               `json:"reason,omitempty"`
}

// RecommendationResult is the strategy-specific payload of a response. It is
// one of *VectorBased, *AIBased or *RuleBased.
type RecommendationResult interface {
	recommendationResult()
}

// VectorBased is produced by embedding similarity retrieval.
type VectorBased struct {
	Candidates         []CandidateCard `json:"candidates"`
	Retrieved          int             `json:"retrieved"`
	Filtered           int             `json:"filtered"`
	GeneratedEmbedding bool            `json:"generated_embedding"`
}

// AIBased is produced by the AI advisor.
type AIBased struct {
	Picks []AIPick `json:"picks"`
}

// RuleBased is produced by goal and history affinity scoring, or by the
// fixed cold-start set when ColdStart is true.
type RuleBased struct {
	ColdStart  bool            `json:"cold_start"`
	Candidates []CandidateCard `json:"candidates,omitempty"`
}

func (*VectorBased) recommendationResult() {}
func (*AIBased) recommendationResult()     {}
func (*RuleBased) recommendationResult()   {}

// RecommendationResponse is the answer to a class recommendation request.
// Exactly one of Vector, AI and Rule is set, matching Method.
type RecommendationResponse struct {
	MemberID        string             `json:"member_id"`
	Method          Method             `json:"method"`
	Cached          bool               `json:"cached"`
	Recommendations []RecommendedClass `json:"recommendations"`
	Vector          *VectorBased       `json:"vector,omitempty"`
	AI              *AIBased           `json:"ai,omitempty"`
	Rule            *RuleBased         `json:"rule,omitempty"`
	Skipped         []SkippedStrategy  `json:"skipped,omitempty"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// Result returns the strategy payload.
func (r *RecommendationResponse) Result() RecommendationResult {
	switch {
	case r.Vector != nil:
		return r.Vector
	case r.AI != nil:
		return r.AI
	case r.Rule != nil:
		return r.Rule
	}
	return nil
}

// RecommendationRequest are the parameters of a recommendation call.
type RecommendationRequest struct {
	MemberID  string
	UseAI     bool
	UseVector bool
	SkipCache bool
	Limit     int
}

// RecommendationConfig tunes the recommendation flow.
type RecommendationConfig struct {
	CandidateK    int
	Limit         int
	RecentWindow  int
	HistoryLimit  int
	CacheTTL      time.Duration
	QueryTimeout  time.Duration
	AIEnabled     bool
	EligibleTiers []string
}

// RecommendationDeps are the collaborators of RecommendationService.
// Embedder, Advisor and Index may be nil; the matching strategies then pass.
type RecommendationDeps struct {
	Members  MemberStore
	Classes  ClassReader
	History  HistoryStore
	Index    repository.VectorIndex
	Embedder Embedder
	Advisor  Advisor
	Metrics  *MetricsCollector
	Scoring  *ScoringEngine
	Analyzer *PatternAnalyzer
	Cache    *cache.Layer
	Tasks    Dispatcher
}

// RecommendationService answers "which class should this member book next".
type RecommendationService struct {
	RecommendationDeps
	cfg RecommendationConfig
	now func() time.Time
}

// NewRecommendationService creates a RecommendationService.
func NewRecommendationService(deps RecommendationDeps, cfg RecommendationConfig) *RecommendationService {
	if cfg.CandidateK <= 0 {
		cfg.CandidateK = 50
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 20
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &RecommendationService{RecommendationDeps: deps, cfg: cfg, now: time.Now}
}

// Recommend returns ranked class recommendations for a member.
//
// The flow is cache check, then strategies in order: ai_based (only when
// requested and permitted), vector_embedding, rule_based, and finally the
// fixed cold-start set. Upstream failures move to the next strategy; only
// input errors, unknown members and an unreadable primary store are
// returned as errors.
func (s *RecommendationService) Recommend(ctx context.Context, req RecommendationRequest) (*RecommendationResponse, error) {
	return s.serve(ctx, req, true)
}

// serve runs the flow. record controls whether served classes are logged
// for the diversity window; warming does not count as serving.
func (s *RecommendationService) serve(ctx context.Context, req RecommendationRequest, record bool) (*RecommendationResponse, error) {
	req.MemberID = strings.TrimSpace(req.MemberID)
	if req.MemberID == "" {
		return nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	req.Limit = s.clampLimit(req.Limit)
	ctx = logger.SetMemberID(ctx, req.MemberID)

	start := time.Now()
	key := cache.RecommendationKey(req.MemberID, cache.Params{}.
		Bool("useAI", req.UseAI).
		Bool("useVector", req.UseVector).
		Int("limit", req.Limit))

	resp, cached, err := cache.Fetch(ctx, s.Cache, key,
		cache.FetchOptions{TTL: s.cfg.CacheTTL, SkipRead: req.SkipCache},
		func(loadCtx context.Context) (*RecommendationResponse, error) {
			return s.compute(loadCtx, req)
		})
	if err != nil {
		return nil, err
	}

	out := *resp
	out.Cached = cached
	if record && !cached {
		s.logServed(ctx, &out)
	}

	monitoring.SuggestionDuration.WithLabelValues("recommendations", string(out.Method)).Observe(time.Since(start).Seconds())
	logger.With(logger.Fields{
		"method":               out.Method,
		"cached":               cached,
		logger.FieldCount:      len(out.Recommendations),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Recommendations served")
	return &out, nil
}

func (s *RecommendationService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.Limit
	}
	if limit > maxRecommendationLimit {
		return maxRecommendationLimit
	}
	return limit
}

// memberState is the per-request view of a member and their history.
type memberState struct {
	member   *domain.Member
	patterns MemberPatterns
	recent   []domain.ClassCategory
}

// loadMember reads the member and their history. A missing member is
// ErrMemberNotFound and any other member read error is fatal; history read
// failures degrade to empty history.
func loadMember(ctx context.Context, members MemberStore, history HistoryStore, analyzer *PatternAnalyzer,
	memberID string, historyLimit, recentWindow int, timeout time.Duration) (*memberState, error) {
	qctx, cancel := withTimeout(ctx, timeout)
	member, err := members.GetByID(qctx, memberID)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load member %s: %w", memberID, err)
	}

	state := &memberState{member: member}

	qctx, cancel = withTimeout(ctx, timeout)
	attendance, err := history.RecentAttendance(qctx, memberID, historyLimit)
	cancel()
	if err != nil {
		logger.With(logger.Fields{logger.FieldStage: "history_attendance", "error": err.Error()}).
			Warn(ctx, "Attendance history unavailable, continuing without it")
	}

	qctx, cancel = withTimeout(ctx, timeout)
	bookings, err := history.RecentBookings(qctx, memberID, historyLimit)
	cancel()
	if err != nil {
		logger.With(logger.Fields{logger.FieldStage: "history_bookings", "error": err.Error()}).
			Warn(ctx, "Booking history unavailable, continuing without it")
	}
	state.patterns = analyzer.Analyze(attendance, bookings)

	if recentWindow > 0 {
		qctx, cancel = withTimeout(ctx, timeout)
		state.recent, err = history.RecentRecommendedCategories(qctx, memberID, recentWindow)
		cancel()
		if err != nil {
			logger.With(logger.Fields{logger.FieldStage: "recent_recommendations", "error": err.Error()}).
				Warn(ctx, "Recent recommendations unavailable, diversity treats all categories as fresh")
		}
	}
	return state, nil
}

type recommendationOutcome struct {
	items  []RecommendedClass
	result RecommendationResult
}

func (s *RecommendationService) compute(ctx context.Context, req RecommendationRequest) (*RecommendationResponse, error) {
	state, err := loadMember(ctx, s.Members, s.History, s.Analyzer, req.MemberID,
		s.cfg.HistoryLimit, s.cfg.RecentWindow, s.cfg.QueryTimeout)
	if err != nil {
		return nil, err
	}

	strategies := []Strategy[recommendationOutcome]{
		{Name: "ai_based", Method: MethodAI, Attempt: func(ctx context.Context) (recommendationOutcome, error) {
			return s.aiStrategy(ctx, req, state)
		}},
		{Name: "vector_embedding", Method: MethodVector, Attempt: func(ctx context.Context) (recommendationOutcome, error) {
			return s.vectorStrategy(ctx, req, state)
		}},
		{Name: "rule_based", Method: MethodRule, Attempt: func(ctx context.Context) (recommendationOutcome, error) {
			return s.ruleStrategy(ctx, req, state)
		}},
		{Name: "cold_start", Method: MethodRule, Attempt: func(ctx context.Context) (recommendationOutcome, error) {
			return coldStart(req.Limit), nil
		}},
	}

	outcome, method, skipped, err := runStrategies(ctx, "recommendations", strategies)
	if err != nil {
		return nil, err
	}

	resp := &RecommendationResponse{
		MemberID:        req.MemberID,
		Method:          method,
		Recommendations: outcome.items,
		Skipped:         skipped,
		GeneratedAt:     s.now().UTC(),
	}
	switch r := outcome.result.(type) {
	case *VectorBased:
		resp.Vector = r
	case *AIBased:
		resp.AI = r
	case *RuleBased:
		resp.Rule = r
	}
	return resp, nil
}

// aiEligible reports whether the member's tier and opt-in permit AI paths.
func (s *RecommendationService) aiEligible(m *domain.Member) (bool, string) {
	return tierPermitsAI(m, s.cfg.EligibleTiers)
}

func tierPermitsAI(m *domain.Member, eligible []string) (bool, string) {
	if !m.AIOptIn {
		return false, "not_opted_in"
	}
	for _, tier := range eligible {
		if strings.EqualFold(tier, string(m.Tier)) {
			return true, ""
		}
	}
	return false, "tier_not_eligible"
}

func (s *RecommendationService) aiStrategy(ctx context.Context, req RecommendationRequest, state *memberState) (recommendationOutcome, error) {
	var none recommendationOutcome
	if !req.UseAI {
		return none, skip("not_requested")
	}
	if !s.cfg.AIEnabled || s.Advisor == nil {
		return none, skip("ai_disabled")
	}
	if ok, reason := s.aiEligible(state.member); !ok {
		return none, skip(reason)
	}

	classes, err := s.activeClasses(ctx)
	if err != nil {
		return none, err
	}
	safe := make([]domain.Class, 0, len(classes))
	byID := make(map[string]domain.Class, len(classes))
	for _, c := range classes {
		if ExclusionReason(state.member, &c) == "" {
			safe = append(safe, c)
			byID[c.ID] = c
		}
	}
	if len(safe) == 0 {
		return none, skip("no_safe_options")
	}

	picks, err := s.Advisor.RecommendClasses(ctx, state.member, state.patterns, safe, req.Limit)
	if err != nil {
		return none, err
	}

	items := make([]RecommendedClass, 0, len(picks))
	for _, p := range picks {
		c := byID[p.ID]
		items = append(items, RecommendedClass{
			ClassID:         c.ID,
			Name:            c.Name,
			Category:        c.Category,
			Difficulty:      c.Difficulty,
			DurationMinutes: c.DurationMinutes,
			Score:           p.Confidence,
			Reason:          p.Reason,
		})
	}
	return recommendationOutcome{items: items, result: &AIBased{Picks: picks}}, nil
}

func (s *RecommendationService) vectorStrategy(ctx context.Context, req RecommendationRequest, state *memberState) (recommendationOutcome, error) {
	var none recommendationOutcome
	if !req.UseVector {
		return none, skip("not_requested")
	}
	if s.Index == nil {
		return none, skip("vector_index_unavailable")
	}

	vec := state.member.EmbeddingSlice()
	generated := false
	if len(vec) == 0 {
		text := buildMemberEmbeddingText(state.member)
		if text == "" || s.Embedder == nil {
			return none, skip("no_embedding")
		}
		var err error
		vec, err = s.Embedder.Embed(ctx, text)
		if err != nil {
			return none, err
		}
		generated = true
		s.persistMemberEmbedding(ctx, state.member.ID, vec)
	}
	if s.Embedder != nil && s.Embedder.Dimensions() > 0 && len(vec) != s.Embedder.Dimensions() {
		logger.With(logger.Fields{"expected": s.Embedder.Dimensions(), "actual": len(vec)}).
			Warn(ctx, "Stored member embedding has the wrong dimension")
		return none, fmt.Errorf("%w: member embedding has %d dimensions", ErrDimensionMismatch, len(vec))
	}

	matches := s.Index.Search(ctx, vec, s.cfg.CandidateK)
	monitoring.VectorMatches.Observe(float64(len(matches)))
	if len(matches) == 0 {
		return none, skip("no_vector_matches")
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ClassID
	}
	qctx, cancel := withTimeout(ctx, s.cfg.QueryTimeout)
	classes, err := s.Classes.GetByIDs(qctx, ids)
	cancel()
	if err != nil {
		return none, fmt.Errorf("failed to load vector candidates: %w", err)
	}
	byID := make(map[string]domain.Class, len(classes))
	for _, c := range classes {
		byID[c.ID] = c
	}

	cards := make([]CandidateCard, 0, len(matches))
	for i, m := range matches {
		c, ok := byID[m.ClassID]
		if !ok {
			continue
		}
		cards = append(cards, CandidateCard{Class: c, Similarity: m.Similarity, Position: i})
	}

	kept := FilterCandidates(ctx, state.member, cards)
	if len(kept) == 0 {
		return none, skip("no_safe_options")
	}
	ranked := s.rank(ctx, kept, state.recent, req.Limit)

	return recommendationOutcome{
		items: cardsToItems(ranked, "Similar to your goals and past classes"),
		result: &VectorBased{
			Candidates:         ranked,
			Retrieved:          len(matches),
			Filtered:           len(cards) - len(kept),
			GeneratedEmbedding: generated,
		},
	}, nil
}

func (s *RecommendationService) ruleStrategy(ctx context.Context, req RecommendationRequest, state *memberState) (recommendationOutcome, error) {
	var none recommendationOutcome
	classes, err := s.activeClasses(ctx)
	if err != nil {
		return none, fatal(err)
	}
	if len(classes) == 0 {
		return none, skip("no_active_classes")
	}
	if !state.patterns.HasHistory() && !state.member.HasEmbedding() {
		return none, skip("no_history")
	}

	goals := state.member.FitnessGoals.Normalized()
	cards := make([]CandidateCard, len(classes))
	for i, c := range classes {
		affinity := ruleAffinity(c.Category, goals, state.patterns.PreferredCategories)
		cards[i] = CandidateCard{Class: c, Similarity: 2*affinity - 1, Position: i}
	}

	kept := FilterCandidates(ctx, state.member, cards)
	if len(kept) == 0 {
		return none, skip("no_safe_options")
	}
	ranked := s.rank(ctx, kept, state.recent, req.Limit)

	return recommendationOutcome{
		items:  cardsToItems(ranked, "Matches your goals and attendance history"),
		result: &RuleBased{Candidates: ranked},
	}, nil
}

// rank enriches cards with popularity, recency and diversity, scores them
// and returns the top limit.
func (s *RecommendationService) rank(ctx context.Context, cards []CandidateCard, recent []domain.ClassCategory, limit int) []CandidateCard {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.Class.ID
	}
	metrics := s.Metrics.Collect(ctx, ids)
	now := s.now()
	for i := range cards {
		m := metrics[cards[i].Class.ID]
		cards[i].Popularity = CalculatePopularity(m)
		cards[i].Recency = CalculateRecency(m.DaysSinceLastOccurrence(now))
		cards[i].Diversity = DiversityScore(cards[i].Class.Category, recent)
	}

	ranked := s.Scoring.ScoreAndRank(cards)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func (s *RecommendationService) activeClasses(ctx context.Context) ([]domain.Class, error) {
	qctx, cancel := withTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	classes, err := s.Classes.ListActive(qctx, ruleCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active classes: %w", err)
	}
	return classes, nil
}

// persistMemberEmbedding stores an on-the-fly embedding in the background.
func (s *RecommendationService) persistMemberEmbedding(ctx context.Context, memberID string, vec []float32) {
	if s.Tasks == nil {
		return
	}
	fields := logger.GetFields(ctx)
	s.Tasks.Submit("member_embedding", func(taskCtx context.Context) error {
		taskCtx = logger.WithFields(taskCtx, fields)
		return s.Members.UpdateEmbedding(taskCtx, memberID, vec)
	})
}

// logServed records the served classes for the diversity window.
func (s *RecommendationService) logServed(ctx context.Context, resp *RecommendationResponse) {
	if s.Tasks == nil {
		return
	}
	now := s.now().UTC()
	logs := make([]domain.RecommendationLog, 0, len(resp.Recommendations))
	for _, item := range resp.Recommendations {
		if item.ClassID == "" {
			continue
		}
		logs = append(logs, domain.RecommendationLog{
			ID:        uuid.New().String(),
			MemberID:  resp.MemberID,
			ClassID:   item.ClassID,
			Category:  item.Category,
			Method:    string(resp.Method),
			CreatedAt: now,
		})
	}
	if len(logs) == 0 {
		return
	}
	s.Tasks.Submit("recommendation_log", func(taskCtx context.Context) error {
		return s.History.LogRecommendations(taskCtx, logs)
	})
}

// WarmMember recomputes and caches the default recommendation entry.
func (s *RecommendationService) WarmMember(ctx context.Context, memberID string) error {
	_, err := s.serve(ctx, RecommendationRequest{
		MemberID:  memberID,
		UseVector: true,
		SkipCache: true,
	}, false)
	return err
}

func cardsToItems(cards []CandidateCard, reason string) []RecommendedClass {
	items := make([]RecommendedClass, len(cards))
	for i, c := range cards {
		items[i] = RecommendedClass{
			ClassID:         c.Class.ID,
			Name:            c.Class.Name,
			Category:        c.Class.Category,
			Difficulty:      c.Class.Difficulty,
			DurationMinutes: c.Class.DurationMinutes,
			Score:           c.FinalScore,
			Reason:          reason,
		}
	}
	return items
}

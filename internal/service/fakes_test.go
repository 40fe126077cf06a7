package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/timmy/gymflow/internal/cache"
	"github.com/timmy/gymflow/internal/domain"
	"github.com/timmy/gymflow/internal/repository"
)

var errStoreDown = errors.New("store down")

type fakeMembers struct {
	mu         sync.Mutex
	members    map[string]*domain.Member
	err        error
	embeddings map[string][]float32
	updated    []domain.Member
}

func newFakeMembers(members ...*domain.Member) *fakeMembers {
	f := &fakeMembers{
		members:    make(map[string]*domain.Member),
		embeddings: make(map[string][]float32),
	}
	for _, m := range members {
		f.members[m.ID] = m
	}
	return f
}

func (f *fakeMembers) GetByID(_ context.Context, id string) (*domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.members[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMembers) UpdateEmbedding(_ context.Context, id string, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings[id] = embedding
	return nil
}

func (f *fakeMembers) UpdateProfile(_ context.Context, m *domain.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *m
	f.members[m.ID] = &copied
	f.updated = append(f.updated, copied)
	return nil
}

type fakeClasses struct {
	mu         sync.Mutex
	classes    []domain.Class
	err        error
	keyword    []domain.Class
	updated    []domain.Class
	embeddings map[string][]float32
}

func (f *fakeClasses) GetByIDs(_ context.Context, ids []string) ([]domain.Class, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Class
	for _, c := range f.classes {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClasses) GetByID(_ context.Context, id string) (*domain.Class, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, c := range f.classes {
		if c.ID == id {
			copied := c
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeClasses) ListActive(_ context.Context, limit int) ([]domain.Class, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Class
	for _, c := range f.classes {
		if c.Active {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeClasses) KeywordSearch(_ context.Context, query string, limit int) ([]domain.Class, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.keyword != nil {
		return f.keyword, nil
	}
	var out []domain.Class
	for _, c := range f.classes {
		text := strings.ToLower(c.Name + " " + c.Description)
		if c.Active && strings.Contains(text, query) {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeClasses) Update(_ context.Context, c *domain.Class) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, *c)
	return nil
}

func (f *fakeClasses) UpdateEmbedding(_ context.Context, id string, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embeddings == nil {
		f.embeddings = make(map[string][]float32)
	}
	f.embeddings[id] = embedding
	return nil
}

type fakeHistory struct {
	mu         sync.Mutex
	attendance []domain.AttendanceEvent
	bookings   []domain.BookingEvent
	recent     []domain.ClassCategory
	err        error
	logged     []domain.RecommendationLog
}

func (f *fakeHistory) RecentAttendance(context.Context, string, int) ([]domain.AttendanceEvent, error) {
	return f.attendance, f.err
}

func (f *fakeHistory) RecentBookings(context.Context, string, int) ([]domain.BookingEvent, error) {
	return f.bookings, f.err
}

func (f *fakeHistory) RecentRecommendedCategories(context.Context, string, int) ([]domain.ClassCategory, error) {
	return f.recent, f.err
}

func (f *fakeHistory) LogRecommendations(_ context.Context, logs []domain.RecommendationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, logs...)
	return nil
}

type fakeIndex struct {
	matches  []repository.VectorMatch
	queries  int
	upserted []string
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, k int) []repository.VectorMatch {
	f.queries++
	if len(f.matches) > k {
		return f.matches[:k]
	}
	return f.matches
}

func (f *fakeIndex) Name() string { return "fake" }

// upsertingIndex also mirrors embeddings, like the qdrant index.
type upsertingIndex struct {
	fakeIndex
}

func (f *upsertingIndex) Upsert(_ context.Context, c *domain.Class, _ []float32) error {
	f.upserted = append(f.upserted, c.ID)
	return nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	vec   []float32
	err   error
	dims  int
	calls int
	texts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return f.Embed(ctx, query)
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

type fakeMetricsSource struct {
	attendance  map[string]int
	bookings    map[string]int
	ratings     map[string]float64
	last        map[string]time.Time
	failRatings bool
}

func (f *fakeMetricsSource) AttendanceCounts(context.Context, []string) (map[string]int, error) {
	return f.attendance, nil
}

func (f *fakeMetricsSource) BookingCounts(context.Context, []string) (map[string]int, error) {
	return f.bookings, nil
}

func (f *fakeMetricsSource) AverageRatings(context.Context, []string) (map[string]float64, error) {
	if f.failRatings {
		return nil, errStoreDown
	}
	return f.ratings, nil
}

func (f *fakeMetricsSource) LastOccurrences(context.Context, []string, time.Time) (map[string]time.Time, error) {
	return f.last, nil
}

type fakeAdvisor struct {
	classPicks []AIPick
	slotPicks  []AIPick
	err        error
	calls      int
	seen       []string
}

func (f *fakeAdvisor) RecommendClasses(_ context.Context, _ *domain.Member, _ MemberPatterns, classes []domain.Class, _ int) ([]AIPick, error) {
	f.calls++
	for _, c := range classes {
		f.seen = append(f.seen, c.ID)
	}
	return f.classPicks, f.err
}

func (f *fakeAdvisor) RankSlots(_ context.Context, _ *domain.Member, _ MemberPatterns, slots []domain.ScheduleSlot, _ int) ([]AIPick, error) {
	f.calls++
	for _, s := range slots {
		f.seen = append(f.seen, s.Occurrence.ID)
	}
	return f.slotPicks, f.err
}

// syncDispatcher runs tasks inline and records their kinds.
type syncDispatcher struct {
	mu    sync.Mutex
	kinds []string
	errs  []error
}

func (d *syncDispatcher) Submit(kind string, fn func(ctx context.Context) error) bool {
	err := fn(context.Background())
	d.mu.Lock()
	d.kinds = append(d.kinds, kind)
	d.errs = append(d.errs, err)
	d.mu.Unlock()
	return true
}

func (d *syncDispatcher) count(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, k := range d.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func newTestCache() *cache.Layer {
	return cache.NewLayer(cache.NewMemoryStore(nil), time.Second)
}

func vector(values ...float32) *pgvector.Vector {
	v := pgvector.NewVector(values)
	return &v
}

func testClass(id string, category domain.ClassCategory, difficulty domain.Difficulty) domain.Class {
	return domain.Class{
		ID:              id,
		Name:            "Class " + id,
		Description:     string(category) + " session",
		Category:        category,
		Difficulty:      difficulty,
		Capacity:        20,
		DurationMinutes: 45,
		Active:          true,
	}
}

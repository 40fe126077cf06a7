package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStoreTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()

	if err := store.SetEx(ctx, "k", time.Minute, []byte("v")); err != nil {
		t.Fatalf("SetEx() error = %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get() = %q, %v; want v", got, err)
	}

	clock.Advance(59 * time.Second)
	if _, err := store.Get(ctx, "k"); err != nil {
		t.Errorf("Get() before expiry error = %v", err)
	}

	clock.Advance(time.Second)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get() after expiry error = %v, want ErrMiss", err)
	}
}

func TestMemoryStoreKeysAndDel(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	for _, k := range []string{"recommendations:m1:a", "recommendations:m1:b", "recommendations:m2:a", "schedule_suggestions:m1:a"} {
		_ = store.SetEx(ctx, k, time.Minute, []byte("x"))
	}

	keys, err := store.Keys(ctx, "recommendations:m1:*")
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "recommendations:m1:a" || keys[1] != "recommendations:m1:b" {
		t.Errorf("Keys() = %v", keys)
	}

	if err := store.Del(ctx, keys...); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	if _, err := store.Get(ctx, "recommendations:m1:a"); !errors.Is(err, ErrMiss) {
		t.Errorf("deleted key still present")
	}
	if _, err := store.Get(ctx, "recommendations:m2:a"); err != nil {
		t.Errorf("unrelated key removed: %v", err)
	}
}

func TestKeysAreDeterministic(t *testing.T) {
	a := ScheduleKey("m1", Params{}.
		String("category", "yoga").
		Bool("useAI", true).
		Int("limit", 10).
		String("trainerId", ""))
	b := ScheduleKey("m1", Params{"limit": "10", "useAI": "1", "category": "yoga", "ignored": "x"})

	if a != b {
		t.Errorf("keys differ:\n%s\n%s", a, b)
	}
	want := "schedule_suggestions:m1:category=yoga&limit=10&useAI=true"
	if a != want {
		t.Errorf("ScheduleKey() = %s, want %s", a, want)
	}

	testCases := []struct {
		name string
		p    Params
	}{
		{name: "useAI", p: Params{}.Bool("useAI", false).Bool("useVector", true).Int("limit", 10)},
		{name: "useVector", p: Params{}.Bool("useAI", true).Bool("useVector", false).Int("limit", 10)},
		{name: "limit", p: Params{}.Bool("useAI", true).Bool("useVector", true).Int("limit", 5)},
	}
	base := RecommendationKey("m1", Params{}.Bool("useAI", true).Bool("useVector", true).Int("limit", 10))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if RecommendationKey("m1", tc.p) == base {
				t.Errorf("changing %s did not change the key", tc.name)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	layer := NewLayer(NewMemoryStore(nil), time.Second)
	ctx := context.Background()
	var loads int32
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&loads, 1)
		return 42, nil
	}

	v, cached, err := Fetch(ctx, layer, "recommendations:m1:limit=10", FetchOptions{TTL: time.Minute}, load)
	if err != nil || v != 42 || cached {
		t.Fatalf("first Fetch() = %d, %v, %v", v, cached, err)
	}
	v, cached, err = Fetch(ctx, layer, "recommendations:m1:limit=10", FetchOptions{TTL: time.Minute}, load)
	if err != nil || v != 42 || !cached {
		t.Fatalf("second Fetch() = %d, %v, %v; want cached", v, cached, err)
	}
	_, cached, _ = Fetch(ctx, layer, "recommendations:m1:limit=10", FetchOptions{TTL: time.Minute, SkipRead: true}, load)
	if cached {
		t.Error("SkipRead returned a cached value")
	}
	if got := atomic.LoadInt32(&loads); got != 2 {
		t.Errorf("load ran %d times, want 2", got)
	}
}

func TestFetchLoadError(t *testing.T) {
	layer := NewLayer(NewMemoryStore(nil), time.Second)
	errLoad := errors.New("boom")

	_, _, err := Fetch(context.Background(), layer, "k", FetchOptions{TTL: time.Minute}, func(context.Context) (string, error) {
		return "", errLoad
	})
	if !errors.Is(err, errLoad) {
		t.Fatalf("Fetch() error = %v, want %v", err, errLoad)
	}
	var v string
	if layer.Get(context.Background(), "k", &v) {
		t.Error("failed load was cached")
	}
}

type failingStore struct {
	Store
}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) SetEx(context.Context, string, time.Duration, []byte) error {
	return errors.New("connection refused")
}

func TestFetchStoreDown(t *testing.T) {
	layer := NewLayer(failingStore{}, time.Second)
	v, cached, err := Fetch(context.Background(), layer, "k", FetchOptions{TTL: time.Minute}, func(context.Context) (string, error) {
		return "fresh", nil
	})
	if err != nil || v != "fresh" || cached {
		t.Errorf("Fetch() = %q, %v, %v; want fresh value despite the store", v, cached, err)
	}
}

func TestInvalidateMember(t *testing.T) {
	layer := NewLayer(NewMemoryStore(nil), time.Second)
	ctx := context.Background()
	layer.Set(ctx, RecommendationKey("m1", Params{}.Int("limit", 10)), 1, time.Minute)
	layer.Set(ctx, ScheduleKey("m1", Params{}.Int("limit", 10)), 1, time.Minute)
	layer.Set(ctx, RecommendationKey("m10", Params{}.Int("limit", 10)), 1, time.Minute)

	n, err := layer.InvalidateMember(ctx, "m1")
	if err != nil {
		t.Fatalf("InvalidateMember() error = %v", err)
	}
	if n != 2 {
		t.Errorf("invalidated %d keys, want 2", n)
	}
	var v int
	if !layer.Get(ctx, RecommendationKey("m10", Params{}.Int("limit", 10)), &v) {
		t.Error("another member's entry was invalidated")
	}
}

func TestInvalidateMemberUnusualIDs(t *testing.T) {
	testCases := []struct {
		name      string
		target    string
		neighbour string
	}{
		{name: "separator in neighbour id", target: "a", neighbour: "a:b"},
		{name: "star", target: "m*", neighbour: "m1"},
		{name: "question mark", target: "m?", neighbour: "m1"},
		{name: "character class", target: "m[0-9]", neighbour: "m1"},
		{name: "backslash", target: `m`, neighbour: "m1"},
		{name: "slash", target: "a/b", neighbour: "a"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			layer := NewLayer(NewMemoryStore(nil), time.Second)
			ctx := context.Background()
			params := Params{}.Int("limit", 10)
			layer.Set(ctx, RecommendationKey(tc.target, params), 1, time.Minute)
			layer.Set(ctx, ScheduleKey(tc.target, params), 1, time.Minute)
			layer.Set(ctx, RecommendationKey(tc.neighbour, params), 1, time.Minute)
			layer.Set(ctx, ScheduleKey(tc.neighbour, params), 1, time.Minute)

			n, err := layer.InvalidateMember(ctx, tc.target)
			if err != nil {
				t.Fatalf("InvalidateMember() error = %v", err)
			}
			if n != 2 {
				t.Errorf("invalidated %d keys, want 2", n)
			}
			var v int
			if layer.Get(ctx, RecommendationKey(tc.target, params), &v) {
				t.Errorf("entry of %q survived", tc.target)
			}
			if !layer.Get(ctx, RecommendationKey(tc.neighbour, params), &v) || !layer.Get(ctx, ScheduleKey(tc.neighbour, params), &v) {
				t.Errorf("entry of %q was invalidated", tc.neighbour)
			}
		})
	}
}

type fakeMemberSource struct {
	ids []string
	err error
}

func (f *fakeMemberSource) ListRecentlyActiveIDs(context.Context, time.Time, int) ([]string, error) {
	return f.ids, f.err
}

type blockingWarmer struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	warmed  []string
	fail    map[string]bool
}

func (w *blockingWarmer) WarmMember(_ context.Context, memberID string) error {
	if w.started != nil {
		w.started <- struct{}{}
		<-w.release
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail[memberID] {
		return errors.New("warm failed")
	}
	w.warmed = append(w.warmed, memberID)
	return nil
}

func TestWarmerRunOnce(t *testing.T) {
	target := &blockingWarmer{fail: map[string]bool{"m2": true}}
	warmer := NewWarmer(&fakeMemberSource{ids: []string{"m1", "m2", "m3"}}, target, WarmerConfig{})

	status, err := warmer.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if status.Running || status.Members != 3 || status.Warmed != 2 || status.Failed != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestWarmerRejectsOverlap(t *testing.T) {
	target := &blockingWarmer{started: make(chan struct{}), release: make(chan struct{})}
	warmer := NewWarmer(&fakeMemberSource{ids: []string{"m1"}}, target, WarmerConfig{})

	runID, err := warmer.Trigger(context.Background())
	if err != nil || runID == "" {
		t.Fatalf("Trigger() = %q, %v", runID, err)
	}
	<-target.started

	if _, err := warmer.Trigger(context.Background()); !errors.Is(err, ErrWarmInProgress) {
		t.Errorf("second Trigger() error = %v, want ErrWarmInProgress", err)
	}
	if _, err := warmer.RunOnce(context.Background()); !errors.Is(err, ErrWarmInProgress) {
		t.Errorf("RunOnce() during a cycle error = %v, want ErrWarmInProgress", err)
	}
	if !warmer.Status().Running {
		t.Error("Status().Running = false during a cycle")
	}

	close(target.release)
	deadline := time.Now().Add(2 * time.Second)
	for warmer.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("cycle did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if warmer.Status().RunID != runID {
		t.Errorf("RunID = %s, want %s", warmer.Status().RunID, runID)
	}
}

func TestWarmerSourceError(t *testing.T) {
	warmer := NewWarmer(&fakeMemberSource{err: errors.New("db down")}, &blockingWarmer{}, WarmerConfig{})
	status, err := warmer.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if status.Error == "" {
		t.Error("status does not report the listing failure")
	}
}

func TestMultiWarmer(t *testing.T) {
	ok := &blockingWarmer{}
	failing := &blockingWarmer{fail: map[string]bool{"m1": true}}

	err := MultiWarmer{ok, failing}.WarmMember(context.Background(), "m1")
	if err == nil {
		t.Fatal("WarmMember() error = nil, want the failing target's error")
	}
	if len(ok.warmed) != 1 {
		t.Error("a failing target stopped the others")
	}
}

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/monitoring"
)

// ErrWarmInProgress is returned when a warming cycle is already running.
var ErrWarmInProgress = errors.New("cache warming already in progress")

// MemberSource lists the members whose entries are worth precomputing.
type MemberSource interface {
	ListRecentlyActiveIDs(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// MemberWarmer recomputes and stores the default cached entries of a member.
type MemberWarmer interface {
	WarmMember(ctx context.Context, memberID string) error
}

// WarmerConfig configures the Warmer.
type WarmerConfig struct {
	Interval    time.Duration
	ActiveDays  int
	MemberLimit int
	// MemberTimeout bounds the work for a single member.
	MemberTimeout time.Duration
}

// WarmStatus describes the current or last warming cycle.
type WarmStatus struct {
	Running    bool      `json:"running"`
	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Members    int       `json:"members"`
	Warmed     int       `json:"warmed"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// Warmer periodically precomputes the cache entries of recently active
// members. Two cycles never overlap: a tick or trigger that finds a cycle
// running is skipped.
type Warmer struct {
	source  MemberSource
	target  MemberWarmer
	cfg     WarmerConfig
	now     func() time.Time
	running atomic.Bool

	mu     sync.Mutex
	status WarmStatus
}

// NewWarmer creates a Warmer.
func NewWarmer(source MemberSource, target MemberWarmer, cfg WarmerConfig) *Warmer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.ActiveDays <= 0 {
		cfg.ActiveDays = 14
	}
	if cfg.MemberLimit <= 0 {
		cfg.MemberLimit = 200
	}
	if cfg.MemberTimeout <= 0 {
		cfg.MemberTimeout = time.Minute
	}
	return &Warmer{source: source, target: target, cfg: cfg, now: time.Now}
}

// Serve runs a warming cycle every interval until ctx is cancelled.
// It implements suture.Service.
func (w *Warmer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); errors.Is(err, ErrWarmInProgress) {
				logger.CtxInfo(ctx, "Skipping scheduled cache warming: previous cycle still running")
			}
		}
	}
}

// String names the service for the supervisor.
func (w *Warmer) String() string {
	return "cache-warmer"
}

// Trigger starts a cycle in the background and returns immediately.
// Returns ErrWarmInProgress when a cycle is already running.
func (w *Warmer) Trigger(ctx context.Context) (string, error) {
	if !w.running.CompareAndSwap(false, true) {
		monitoring.WarmRuns.WithLabelValues("skipped").Inc()
		return "", ErrWarmInProgress
	}
	runID := uuid.New().String()
	go w.run(context.WithoutCancel(ctx), runID)
	return runID, nil
}

// RunOnce runs one cycle synchronously.
// Returns ErrWarmInProgress when a cycle is already running.
func (w *Warmer) RunOnce(ctx context.Context) (WarmStatus, error) {
	if !w.running.CompareAndSwap(false, true) {
		monitoring.WarmRuns.WithLabelValues("skipped").Inc()
		return w.Status(), ErrWarmInProgress
	}
	w.run(ctx, uuid.New().String())
	return w.Status(), nil
}

// Status returns a snapshot of the current or last cycle.
func (w *Warmer) Status() WarmStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// run performs a cycle. The caller must hold the running flag.
func (w *Warmer) run(ctx context.Context, runID string) {
	defer w.running.Store(false)

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldComponent: "cache_warmer",
		logger.FieldRunID:     runID,
	})
	started := w.now()
	w.setStatus(WarmStatus{Running: true, RunID: runID, StartedAt: started})

	since := started.AddDate(0, 0, -w.cfg.ActiveDays)
	members, err := w.source.ListRecentlyActiveIDs(ctx, since, w.cfg.MemberLimit)
	if err != nil {
		logger.With(logger.Fields{"error": err.Error()}).Error(ctx, "Cache warming could not list active members")
		monitoring.WarmRuns.WithLabelValues("failed").Inc()
		w.setStatus(WarmStatus{RunID: runID, StartedAt: started, FinishedAt: w.now(), Error: err.Error()})
		return
	}

	warmed, failed := 0, 0
	for _, memberID := range members {
		if ctx.Err() != nil {
			break
		}
		memberCtx, cancel := context.WithTimeout(ctx, w.cfg.MemberTimeout)
		err := w.target.WarmMember(memberCtx, memberID)
		cancel()
		if err != nil {
			failed++
			logger.With(logger.Fields{
				logger.FieldMemberID: memberID,
				"error":              err.Error(),
			}).Warn(ctx, "Failed to warm member cache")
			continue
		}
		warmed++
	}

	finished := w.now()
	w.setStatus(WarmStatus{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		Members:    len(members),
		Warmed:     warmed,
		Failed:     failed,
	})
	monitoring.WarmRuns.WithLabelValues("completed").Inc()
	logger.With(logger.Fields{
		logger.FieldCount:      warmed,
		"failed":               failed,
		logger.FieldDurationMs: finished.Sub(started).Milliseconds(),
	}).Info(ctx, "Cache warming completed")
}

func (w *Warmer) setStatus(s WarmStatus) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

// MultiWarmer warms every target in order and joins their errors.
type MultiWarmer []MemberWarmer

// WarmMember implements MemberWarmer.
func (m MultiWarmer) WarmMember(ctx context.Context, memberID string) error {
	var errs []error
	for _, t := range m {
		if err := t.WarmMember(ctx, memberID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

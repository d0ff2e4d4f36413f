package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eargollo/tracenav/internal/scan"
)

// Scheduler wraps robfig/cron and tracks the next scheduled rescan.
type Scheduler struct {
	mu       sync.RWMutex
	c        *cron.Cron
	entryID  cron.EntryID
	cronExpr string
}

// New creates a stopped Scheduler. Call Start to activate it.
func New() *Scheduler {
	return &Scheduler{
		c: cron.New(),
	}
}

// SetJob replaces the current rescan job with the given expression and
// callback. If the scheduler is already running, the new job takes effect
// immediately.
func (s *Scheduler) SetJob(expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.c.AddFunc(expr, fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if s.entryID != 0 {
		s.c.Remove(s.entryID)
	}
	s.entryID = id
	s.cronExpr = expr
	slog.Info("scheduler: job set", "cron", expr)
	return nil
}

// AddJob adds a background job that fires on the given cron expression.
// Unlike SetJob, this does not replace the tracked rescan job.
func (s *Scheduler) AddJob(expr string, fn func()) error {
	_, err := s.c.AddFunc(expr, fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	slog.Info("scheduler: background job added", "cron", expr)
	return nil
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// NextRunAt returns the next scheduled rescan, or nil if no job is set or
// the scheduler has not been started.
func (s *Scheduler) NextRunAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.entryID == 0 {
		return nil
	}
	entry := s.c.Entry(s.entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// CronExpr returns the current rescan expression.
func (s *Scheduler) CronExpr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cronExpr
}

// Rescanner repeats the most recent scan.
type Rescanner interface {
	RepeatLast(ctx context.Context) (scan.Snapshot, error)
}

// RescanJob returns a cron callback that repeats the last scan. Having no
// prior scan or one already running is expected and only logged at debug.
func RescanJob(r Rescanner) func() {
	return func() {
		snap, err := r.RepeatLast(scan.WithTrigger(context.Background(), "schedule"))
		switch {
		case errors.Is(err, scan.ErrNoPriorScan), errors.Is(err, scan.ErrAlreadyRunning):
			slog.Debug("scheduler: rescan skipped", "reason", err)
		case err != nil:
			slog.Error("scheduler: rescan failed", "error", err)
		default:
			slog.Info("scheduler: rescan started", "run", snap.RunID, "term", snap.Term)
		}
	}
}

// Pruner deletes finished history older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneJob returns a cron callback that drops history older than retention.
func PruneJob(p Pruner, retention time.Duration) func() {
	return func() {
		n, err := p.Prune(context.Background(), time.Now().Add(-retention))
		if err != nil {
			slog.Error("scheduler: history prune failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("scheduler: pruned scan history", "rows", n)
		}
	}
}

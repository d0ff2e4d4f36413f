package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StatusSink receives progress for a status surface such as a status bar.
// done/total pairs for one run are non-decreasing; the final call of every
// run is Progress(false, "", 0, 0).
type StatusSink interface {
	Progress(active bool, label string, done, total uint)
}

// LogStatus is a StatusSink that logs progress at debug level, at most once
// per Every (default 1s) plus the first and last update of a run.
type LogStatus struct {
	Every time.Duration

	mu   sync.Mutex
	last time.Time
}

// Progress implements StatusSink.
func (l *LogStatus) Progress(active bool, label string, done, total uint) {
	every := l.Every
	if every == 0 {
		every = time.Second
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if active && done != 0 && done != total && now.Sub(l.last) < every {
		return
	}
	l.last = now
	if !active {
		slog.Debug("scan status cleared")
		return
	}
	slog.Debug("scan progress", "label", label, "done", done, "total", total)
}

// progressReporter writes the run's live counters to history every interval
// until stop is closed, then flushes once more.
func progressReporter(ctx context.Context, h History, runID, historyID int64, snap func() Snapshot, interval time.Duration, stop <-chan struct{}) {
	flush := func() {
		s := snap()
		if s.RunID != runID {
			return
		}
		err := h.Progress(context.WithoutCancel(ctx), historyID, s.FilesProcessed, s.Hits, s.Warnings)
		if err != nil {
			slog.Warn("progress reporter: update failed", "run", runID, "error", err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			flush()
		case <-stop:
			flush() // final flush
			return
		}
	}
}

// Package scan runs single-flight background searches for a term across the
// files of one or more projects.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidArgument is returned for missing or empty required arguments.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrEmptySelection is returned when Start is called without projects.
var ErrEmptySelection = fmt.Errorf("%w: no projects selected", ErrInvalidArgument)

// ErrAlreadyRunning is returned when a scan is started while one is in progress.
var ErrAlreadyRunning = errors.New("a scan is already in progress")

// ErrNoPriorScan is returned by RepeatLast before any successful Start.
var ErrNoPriorScan = errors.New("no previous scan to repeat")

// ErrNoActiveScan is returned by Stop with no scan running.
var ErrNoActiveScan = errors.New("no scan is currently running")

// DefaultLabel is reported to the StatusSink while a scan runs.
const DefaultLabel = "tracenav"

type triggerKey struct{}

// WithTrigger tags ctx with who started a scan ("manual", "schedule", ...).
// The tag is stored in run history.
func WithTrigger(ctx context.Context, who string) context.Context {
	return context.WithValue(ctx, triggerKey{}, who)
}

func triggerFrom(ctx context.Context) string {
	if who, ok := ctx.Value(triggerKey{}).(string); ok && who != "" {
		return who
	}
	return "manual"
}

// Deps are the collaborators a Manager drives. Enumerator and Content are
// required; the rest have defaults.
type Deps struct {
	Enumerator Enumerator
	Content    ContentSource
	Scanner    FileScanner // default: &Matcher{}
	Status     StatusSink  // default: &LogStatus{}
	History    History     // default: none
	Label      string      // default: DefaultLabel
	// HistoryInterval is how often live counters are flushed to History.
	HistoryInterval time.Duration
}

// run is the per-run bookkeeping that outlives a single lock hold.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	req    *Request
	id     int64

	// historyID is the History record of the run; 0 if none was written.
	historyID int64

	reporterStop chan struct{}
	reporterWG   sync.WaitGroup
}

// Manager enforces a single-active-scan invariant and exposes
// Start/RepeatLast/Stop. It is safe for concurrent use.
//
// Started is published on the goroutine that called Start or RepeatLast,
// before the worker goroutine begins. Hits and Stopped are published from
// the worker.
type Manager struct {
	mu   sync.Mutex // guards st, cur, last, lastSummary
	st   RunState
	cur  *run
	last *Request

	lastSummary *Summary

	// emitMu orders run boundaries: the worker holds it from the moment it
	// resets state until Stopped is delivered, so the next Started can never
	// overtake the previous Stopped.
	emitMu sync.Mutex
	// reportMu serialises per-file progress so StatusSink sees ordered pairs.
	reportMu sync.Mutex

	deps   Deps
	events broker
	seq    atomic.Int64
}

// NewManager creates an idle Manager.
func NewManager(d Deps) *Manager {
	if d.Scanner == nil {
		d.Scanner = &Matcher{}
	}
	if d.Status == nil {
		d.Status = &LogStatus{}
	}
	if d.Label == "" {
		d.Label = DefaultLabel
	}
	if d.HistoryInterval <= 0 {
		d.HistoryInterval = time.Second
	}
	return &Manager{deps: d, st: RunState{State: StateIdle}}
}

// Subscribe returns a stream of events for all future runs. The channel is
// never closed; call cancel when done reading. Publishing blocks on slow
// subscribers, so buf should cover bursts of hits.
func (m *Manager) Subscribe(buf int) (<-chan Event, func()) {
	return m.events.subscribe(buf)
}

// IsRunning reports whether a run is between Started and Stopped.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.State == StateRunning || m.st.State == StateStopping
}

// Snapshot returns a copy of the current run state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.snapshot()
}

// LastSummary returns the summary of the most recently finished run, or nil.
func (m *Manager) LastSummary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSummary == nil {
		return nil
	}
	s := *m.lastSummary
	return &s
}

// HasPrior reports whether RepeatLast has a request to replay.
func (m *Manager) HasPrior() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last != nil
}

// Start enumerates the files of projects and launches an asynchronous scan
// for term. ctx bounds enumeration and is the parent of the scan's context;
// pass a context that outlives the call (not a request context) for a
// background scan.
func (m *Manager) Start(ctx context.Context, projects []Project, term string) (Snapshot, error) {
	if len(projects) == 0 {
		return Snapshot{}, ErrEmptySelection
	}
	if strings.TrimSpace(term) == "" {
		return Snapshot{}, fmt.Errorf("%w: empty search term", ErrInvalidArgument)
	}
	if m.deps.Enumerator == nil || m.deps.Content == nil {
		return Snapshot{}, fmt.Errorf("%w: manager has no enumerator or content source", ErrInvalidArgument)
	}

	r, err := m.reserve(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	req, err := gatherRequest(r.ctx, m.deps.Enumerator, projects, term)
	if err != nil {
		m.abort(r)
		return Snapshot{}, fmt.Errorf("enumerate project files: %w", err)
	}

	m.mu.Lock()
	m.last = req
	m.mu.Unlock()

	return m.launch(ctx, r, req), nil
}

// RepeatLast starts a new scan with the request of the last successful Start.
// Files are not re-enumerated.
func (m *Manager) RepeatLast(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	req := m.last
	m.mu.Unlock()
	if req == nil {
		return Snapshot{}, ErrNoPriorScan
	}

	r, err := m.reserve(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return m.launch(ctx, r, req), nil
}

// Stop requests cancellation of the running scan. With block it returns only
// after Stopped has been delivered. Returns ErrNoActiveScan when idle.
func (m *Manager) Stop(block bool) (Snapshot, error) {
	m.mu.Lock()
	r := m.cur
	if r == nil {
		m.mu.Unlock()
		return Snapshot{}, ErrNoActiveScan
	}
	if m.st.State != StateStopping {
		if err := m.st.transition(StateStopping); err != nil {
			m.mu.Unlock()
			return Snapshot{}, err
		}
	}
	m.st.StopRequested = true
	snap := m.st.snapshot()
	m.mu.Unlock()

	r.cancel()
	if block {
		<-r.done
	}
	return snap, nil
}

// StopIfRunning is Stop without the idle error.
func (m *Manager) StopIfRunning(block bool) {
	_, _ = m.Stop(block)
}

// reserve claims the single run slot.
func (m *Manager) reserve(ctx context.Context) (*run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.st.State != StateIdle {
		return nil, ErrAlreadyRunning
	}
	if err := m.st.transition(StateStarting); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	m.cur = r
	return r, nil
}

// abort releases a reservation whose run never started. No events are
// published; blocked stoppers are released.
func (m *Manager) abort(r *run) {
	m.mu.Lock()
	m.st.reset()
	m.cur = nil
	m.mu.Unlock()
	r.cancel()
	close(r.done)
}

// launch records the run, publishes Started and hands off to the worker.
func (m *Manager) launch(ctx context.Context, r *run, req *Request) Snapshot {
	startedAt := time.Now()
	r.req = req

	id := m.seq.Add(1)
	r.id = id
	if m.deps.History != nil {
		hid, err := m.deps.History.Begin(ctx, req, triggerFrom(ctx), startedAt)
		if err != nil {
			slog.Warn("scan history: begin failed", "run", id, "error", err)
		} else {
			r.historyID = hid
		}
	}

	m.mu.Lock()
	if m.st.State == StateStarting {
		_ = m.st.transition(StateRunning)
	}
	m.st.RunID = id
	m.st.Term = req.Term
	m.st.Projects = len(req.Projects)
	m.st.TotalFiles = req.TotalFiles()
	m.st.StartedAt = startedAt
	snap := m.st.snapshot()
	m.mu.Unlock()

	slog.Info("scan started", "run", id, "term", req.Term,
		"projects", len(req.Projects), "files", snap.TotalFiles, "triggered_by", triggerFrom(ctx))

	m.deps.Status.Progress(true, m.deps.Label, 0, snap.TotalFiles)

	m.emitMu.Lock()
	m.events.publish(Event{Kind: EventStarted, RunID: id, Snapshot: snap})
	m.emitMu.Unlock()

	if r.historyID != 0 {
		r.reporterStop = make(chan struct{})
		r.reporterWG.Add(1)
		go func() {
			defer r.reporterWG.Done()
			progressReporter(r.ctx, m.deps.History, id, r.historyID, m.Snapshot, m.deps.HistoryInterval, r.reporterStop)
		}()
	}

	go m.work(r)
	return snap
}

// work scans the request's projects in order. A failing project is logged
// and the run moves on; a stop ends the run after the current project.
func (m *Manager) work(r *run) {
	for i, pf := range r.req.Projects {
		m.mu.Lock()
		m.st.CurrentProject = i
		stop := m.st.StopRequested
		m.mu.Unlock()
		if stop || r.ctx.Err() != nil {
			break
		}

		err := m.scanProject(r, pf)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("project scan failed", "run", r.id, "project", pf.Project.Name, "error", err)
		}

		m.mu.Lock()
		m.st.CurrentProject = i + 1
		stop = m.st.StopRequested
		m.mu.Unlock()
		if stop {
			break
		}
	}
	m.finish(r)
}

// scanProject runs the scanner for one project, converting a panic in the
// scanner into an error so one bad project cannot take the run down.
func (m *Manager) scanProject(r *run, pf ProjectFiles) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scanner panic: %v", p)
		}
	}()
	return m.deps.Scanner.Scan(r.ctx, pf.Files, r.req.Term, m.deps.Content, func(res FileResult) {
		m.fileDone(r, res)
	})
}

// fileDone routes one file's hits and advances progress. Results that arrive
// after a stop was requested are dropped.
func (m *Manager) fileDone(r *run, res FileResult) {
	m.mu.Lock()
	if m.cur != r || m.st.StopRequested {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	hits := res.Hits
	if res.Err != nil {
		slog.Warn("scan file failed", "run", r.id, "path", res.Path, "error", res.Err)
		hits = append(hits, Hit{FilePath: res.Path, Term: r.req.Term, Warning: res.Err.Error()})
	}
	for i := range hits {
		h := hits[i]
		m.events.publish(Event{Kind: EventHit, RunID: r.id, Hit: &h})
	}

	m.reportMu.Lock()
	defer m.reportMu.Unlock()

	m.mu.Lock()
	m.st.FilesProcessed++
	for _, h := range hits {
		if h.Warning != "" {
			m.st.Warnings++
		} else {
			m.st.Hits++
		}
	}
	done, total := m.st.FilesProcessed, m.st.TotalFiles
	m.mu.Unlock()

	m.deps.Status.Progress(true, m.deps.Label, done, total)
}

// finish tears the run down and publishes Stopped from the worker goroutine.
func (m *Manager) finish(r *run) {
	if r.reporterStop != nil {
		close(r.reporterStop)
		r.reporterWG.Wait()
	}

	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	summary := Summary{
		RunID:          r.id,
		HistoryID:      r.historyID,
		Term:           m.st.Term,
		Projects:       m.st.Projects,
		FilesProcessed: m.st.FilesProcessed,
		TotalFiles:     m.st.TotalFiles,
		Hits:           m.st.Hits,
		Warnings:       m.st.Warnings,
		Cancelled:      m.st.StopRequested || r.ctx.Err() != nil,
		StartedAt:      m.st.StartedAt,
		FinishedAt:     time.Now(),
	}
	if err := m.st.transition(StateIdle); err != nil {
		slog.Error("scan state", "run", r.id, "error", err)
	}
	m.st.reset()
	m.cur = nil
	m.lastSummary = &summary
	m.mu.Unlock()

	r.cancel()
	m.deps.Status.Progress(false, "", 0, 0)

	if r.historyID != 0 {
		if err := m.deps.History.Finish(context.WithoutCancel(r.ctx), r.historyID, summary); err != nil {
			slog.Error("scan history: finish failed", "run", r.id, "error", err)
		}
	}

	slog.Info("scan finished", "run", r.id, "status", summary.Status(),
		"files", summary.FilesProcessed, "hits", summary.Hits, "warnings", summary.Warnings)

	m.events.publish(Event{Kind: EventStopped, RunID: r.id, Summary: &summary})
	close(r.done)
}

package navigate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eargollo/tracenav/internal/scan"
	"github.com/eargollo/tracenav/internal/trace"
)

// Activation describes what activating a token did.
type Activation struct {
	Kind   trace.Kind     `json:"kind"`
	Target *trace.Target  `json:"target,omitempty"`
	Term   string         `json:"term,omitempty"`
	Run    *scan.Snapshot `json:"run,omitempty"`
}

// maxTrackedRuns bounds how many finished runs the dispatcher remembers.
const maxTrackedRuns = 16

type runResult struct {
	first   *scan.Hit
	stopped bool
}

// Dispatcher handles activated tokens: file references navigate directly,
// method references start a scan and navigate to its first hit once the run
// stops. Run must be consuming the manager's events for the latter.
type Dispatcher struct {
	classifier *trace.Classifier
	root       func() string
	projects   func() []scan.Project
	mgr        *scan.Manager
	nav        Navigator

	mu      sync.Mutex
	results map[int64]*runResult
	order   []int64
	wanted  map[int64]bool
	queue   chan navRequest
}

// NewDispatcher wires a dispatcher. root and projects are read on every
// activation so configuration changes apply immediately.
func NewDispatcher(c *trace.Classifier, root func() string, projects func() []scan.Project, mgr *scan.Manager, nav Navigator) *Dispatcher {
	if c == nil {
		c = trace.Default()
	}
	if nav == nil {
		nav = LogNavigator{}
	}
	return &Dispatcher{
		classifier: c,
		root:       root,
		projects:   projects,
		mgr:        mgr,
		nav:        nav,
		results:    make(map[int64]*runResult),
		wanted:     make(map[int64]bool),
		queue:      make(chan navRequest, navQueueSize),
	}
}

// Activate acts on a token. A file token that cannot be resolved returns a
// *trace.ResolutionError and navigates nowhere.
func (d *Dispatcher) Activate(ctx context.Context, tok trace.Token) (Activation, error) {
	switch tok.Kind {
	case trace.KindFile:
		target, err := d.classifier.ResolveFileTarget(tok.Text, d.root())
		if err != nil {
			slog.Warn("activate: unresolvable file reference", "token", tok.Text, "error", err)
			return Activation{Kind: tok.Kind}, err
		}
		line := target.Line - 1
		if line < 0 {
			line = 0
		}
		if err := d.nav.Open(ctx, target.Path, line, 0); err != nil {
			return Activation{Kind: tok.Kind, Target: &target}, err
		}
		return Activation{Kind: tok.Kind, Target: &target}, nil

	case trace.KindMethod:
		_, name := trace.MethodName(tok.Text)
		if name == "" {
			return Activation{Kind: tok.Kind}, fmt.Errorf("%w: no method name in %q", scan.ErrInvalidArgument, tok.Text)
		}
		term := name + "("
		snap, err := d.mgr.Start(scan.WithTrigger(context.Background(), "activate"), d.projects(), term)
		if err != nil {
			return Activation{Kind: tok.Kind, Term: term}, err
		}
		d.await(snap.RunID)
		return Activation{Kind: tok.Kind, Term: term, Run: &snap}, nil
	}
	return Activation{Kind: tok.Kind}, fmt.Errorf("%w: %s tokens cannot be activated", scan.ErrInvalidArgument, tok.Kind)
}

// await marks runID for navigation, or navigates now if it already stopped.
func (d *Dispatcher) await(runID int64) {
	d.mu.Lock()
	r := d.results[runID]
	if r == nil || !r.stopped {
		d.wanted[runID] = true
		d.mu.Unlock()
		return
	}
	first := r.first
	d.mu.Unlock()
	d.enqueue(navRequest{runID: runID, hit: first})
}

// navQueueSize bounds pending navigations. Requests beyond it are dropped so a
// stuck editor can never stall the event reader.
const navQueueSize = 4

type navRequest struct {
	runID int64
	hit   *scan.Hit
}

// Run consumes manager events until ctx is cancelled. Navigation happens on a
// separate goroutine; event reading never waits for the editor.
func (d *Dispatcher) Run(ctx context.Context, events <-chan scan.Event) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-d.queue:
				d.navigateTo(ctx, req.runID, req.hit)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if req, ok := d.apply(ev); ok {
				d.enqueue(req)
			}
		}
	}
}

func (d *Dispatcher) enqueue(req navRequest) {
	select {
	case d.queue <- req:
	default:
		slog.Warn("activate: navigation dropped, editor busy", "run", req.runID)
	}
}

// apply records ev and reports whether it completes a run awaiting
// navigation.
func (d *Dispatcher) apply(ev scan.Event) (navRequest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.track(ev.RunID)
	switch ev.Kind {
	case scan.EventHit:
		if r.first == nil && ev.Hit != nil && ev.Hit.Warning == "" {
			h := *ev.Hit
			r.first = &h
		}
	case scan.EventStopped:
		r.stopped = true
		if d.wanted[ev.RunID] {
			delete(d.wanted, ev.RunID)
			return navRequest{runID: ev.RunID, hit: r.first}, true
		}
	}
	return navRequest{}, false
}

// track returns the result slot for runID, evicting the oldest. d.mu held.
func (d *Dispatcher) track(runID int64) *runResult {
	if r, ok := d.results[runID]; ok {
		return r
	}
	r := &runResult{}
	d.results[runID] = r
	d.order = append(d.order, runID)
	if len(d.order) > maxTrackedRuns {
		old := d.order[0]
		d.order = d.order[1:]
		delete(d.results, old)
		delete(d.wanted, old)
	}
	return r
}

func (d *Dispatcher) navigateTo(ctx context.Context, runID int64, hit *scan.Hit) {
	if hit == nil {
		slog.Info("activate: no definition found", "run", runID)
		return
	}
	if err := d.nav.Open(ctx, hit.FilePath, hit.Line-1, hit.Column-1); err != nil {
		slog.Warn("activate: navigation failed", "run", runID, "path", hit.FilePath, "error", err)
	}
}

package scan

import (
	"context"
	"sync"
)

// Collector keeps the hits of the current (or most recent) run in memory for
// callers that poll instead of subscribing. It forgets them when the next
// run starts.
type Collector struct {
	limit int

	mu      sync.RWMutex
	runID   int64
	hits    []Hit
	dropped int
	summary *Summary
}

// NewCollector keeps at most limit hits per run; 0 means no limit.
func NewCollector(limit int) *Collector {
	return &Collector{limit: limit}
}

// Run consumes events until ctx is cancelled.
func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			c.Apply(ev)
		}
	}
}

// Apply folds one event into the collector.
func (c *Collector) Apply(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case EventStarted:
		c.runID = ev.RunID
		c.hits = nil
		c.dropped = 0
		c.summary = nil
	case EventHit:
		if ev.RunID != c.runID || ev.Hit == nil {
			return
		}
		if c.limit > 0 && len(c.hits) >= c.limit {
			c.dropped++
			return
		}
		c.hits = append(c.hits, *ev.Hit)
	case EventStopped:
		if ev.RunID == c.runID && ev.Summary != nil {
			s := *ev.Summary
			c.summary = &s
		}
	}
}

// Results is a copy of the collected state.
type Results struct {
	RunID   int64    `json:"run_id"`
	Hits    []Hit    `json:"hits"`
	Dropped int      `json:"dropped"`
	Summary *Summary `json:"summary"`
}

// Results returns the hits of the current or last run.
func (c *Collector) Results() Results {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := Results{RunID: c.runID, Dropped: c.dropped, Hits: make([]Hit, len(c.hits))}
	copy(res.Hits, c.hits)
	if c.summary != nil {
		s := *c.summary
		res.Summary = &s
	}
	return res
}

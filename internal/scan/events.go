package scan

import (
	"fmt"
	"sync"
	"time"
)

// EventKind tags an Event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventHit
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventHit:
		return "hit"
	case EventStopped:
		return "stopped"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one entry of a run's event stream. For every run a subscriber sees
// exactly one EventStarted, then zero or more EventHit, then one EventStopped.
type Event struct {
	Kind     EventKind
	RunID    int64
	Snapshot Snapshot // state right after Started; zero otherwise
	Hit      *Hit     // EventHit only
	Summary  *Summary // EventStopped only
}

// Summary describes a finished run.
type Summary struct {
	RunID          int64     `json:"run_id"`
	HistoryID      int64     `json:"history_id,omitempty"` // 0 when not recorded
	Term           string    `json:"term"`
	Projects       int       `json:"projects"`
	FilesProcessed uint      `json:"files_processed"`
	TotalFiles     uint      `json:"total_files"`
	Hits           int       `json:"hits"`
	Warnings       int       `json:"warnings"`
	Cancelled      bool      `json:"cancelled"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Status is the history status string for the summary.
func (s Summary) Status() string {
	if s.Cancelled {
		return "cancelled"
	}
	return "completed"
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// broker fans events out to subscribers. Delivery blocks until each live
// subscriber accepts the event, which keeps every stream complete and
// ordered; a subscriber that stops reading must unsubscribe.
type broker struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscriber
}

func (b *broker) subscribe(buf int) (<-chan Event, func()) {
	if buf < 0 {
		buf = 0
	}
	s := &subscriber{ch: make(chan Event, buf), done: make(chan struct{})}

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]*subscriber)
	}
	id := b.next
	b.next++
	b.subs[id] = s
	b.mu.Unlock()

	cancel := func() {
		s.once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.done)
		})
	}
	return s.ch, cancel
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		}
	}
}

package scan

import (
	"fmt"
	"time"
)

// State is the orchestrator's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

var stateNames = [...]string{
	StateIdle:     "idle",
	StateStarting: "starting",
	StateRunning:  "running",
	StateStopping: "stopping",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown scan state %q", b)
}

// allowedTransitions is the complete state graph. Starting may fall back to
// Idle when file enumeration fails; Stopping is reachable from Starting so a
// stop issued during enumeration is honoured once the run begins.
var allowedTransitions = map[State][]State{
	StateIdle:     {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateIdle},
	StateRunning:  {StateStopping, StateIdle},
	StateStopping: {StateIdle},
}

// RunState is the single mutable record owned by a Manager. It is only
// touched under Manager.mu and only leaves the Manager as a Snapshot.
type RunState struct {
	State          State
	StopRequested  bool
	RunID          int64
	Term           string
	Projects       int
	CurrentProject int
	FilesProcessed uint
	TotalFiles     uint
	Hits           int
	Warnings       int
	StartedAt      time.Time
}

// transition moves s to next or reports an illegal edge.
func (s *RunState) transition(next State) error {
	for _, to := range allowedTransitions[s.State] {
		if to == next {
			s.State = next
			return nil
		}
	}
	return fmt.Errorf("illegal scan state transition %s -> %s", s.State, next)
}

// reset returns s to Idle, clearing everything a run owns.
func (s *RunState) reset() {
	*s = RunState{State: StateIdle}
}

// Snapshot is a read-only copy of the run state.
type Snapshot struct {
	State          State     `json:"state"`
	Running        bool      `json:"running"`
	StopRequested  bool      `json:"stop_requested"`
	RunID          int64     `json:"run_id"`
	Term           string    `json:"term"`
	Projects       int       `json:"projects"`
	CurrentProject int       `json:"current_project"`
	FilesProcessed uint      `json:"files_processed"`
	TotalFiles     uint      `json:"total_files"`
	Hits           int       `json:"hits"`
	Warnings       int       `json:"warnings"`
	StartedAt      time.Time `json:"started_at"`
}

func (s RunState) snapshot() Snapshot {
	return Snapshot{
		State:          s.State,
		Running:        s.State == StateRunning || s.State == StateStopping,
		StopRequested:  s.StopRequested,
		RunID:          s.RunID,
		Term:           s.Term,
		Projects:       s.Projects,
		CurrentProject: s.CurrentProject,
		FilesProcessed: s.FilesProcessed,
		TotalFiles:     s.TotalFiles,
		Hits:           s.Hits,
		Warnings:       s.Warnings,
		StartedAt:      s.StartedAt,
	}
}

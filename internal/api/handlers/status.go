package handlers

import (
	"net/http"
	"time"

	"github.com/eargollo/tracenav/internal/scan"
	"github.com/eargollo/tracenav/internal/scheduler"
	"github.com/eargollo/tracenav/internal/workspace"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	Manager *scan.Manager
	Sched   *scheduler.Scheduler
	Content *workspace.Content
	Version string
}

type statusResponse struct {
	Version     string        `json:"version"`
	Scan        scan.Snapshot `json:"scan"`
	LastScan    *scan.Summary `json:"last_scan"`
	CanRepeat   bool          `json:"can_repeat"`
	Schedule    scheduleInfo  `json:"schedule"`
	OpenBuffers int           `json:"open_buffers"`
	CachedFiles int           `json:"cached_files"`
}

type scheduleInfo struct {
	Cron      string     `json:"cron"`
	NextRunAt *time.Time `json:"next_run_at"`
}

// ServeHTTP returns the system status as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:   h.Version,
		Scan:      h.Manager.Snapshot(),
		LastScan:  h.Manager.LastSummary(),
		CanRepeat: h.Manager.HasPrior(),
	}
	if h.Sched != nil {
		resp.Schedule = scheduleInfo{Cron: h.Sched.CronExpr(), NextRunAt: h.Sched.NextRunAt()}
	}
	if h.Content != nil {
		resp.OpenBuffers = len(h.Content.Buffers().Paths())
		resp.CachedFiles = h.Content.Cached()
	}
	writeJSON(w, http.StatusOK, resp)
}

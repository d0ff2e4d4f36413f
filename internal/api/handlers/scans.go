package handlers

import (
	"context"
	"net/http"

	"github.com/eargollo/tracenav/internal/scan"
)

// ScansHandler handles scan-related API endpoints.
type ScansHandler struct {
	Manager   *scan.Manager
	History   *scan.SQLHistory
	Collector *scan.Collector
	// Projects resolves project names; no names means every project.
	Projects func(names ...string) ([]scan.Project, error)
}

type createScanRequest struct {
	Term     string   `json:"term"`
	Projects []string `json:"projects"`
}

// Create handles POST /api/scans — starts a search over the named projects,
// or all configured projects when none are named.
func (h *ScansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createScanRequest
	if !readJSON(w, r, &req) {
		return
	}
	projects, err := h.Projects(req.Projects...)
	if err != nil {
		writeDomainError(w, "scans: projects", err)
		return
	}
	snap, err := h.Manager.Start(scan.WithTrigger(context.Background(), "manual"), projects, req.Term)
	if err != nil {
		writeDomainError(w, "scans: start", err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// Repeat handles POST /api/scans/repeat.
func (h *ScansHandler) Repeat(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Manager.RepeatLast(scan.WithTrigger(context.Background(), "repeat"))
	if err != nil {
		writeDomainError(w, "scans: repeat", err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// Cancel handles DELETE /api/scans/current. With ?wait=true the response is
// sent once the run has stopped.
func (h *ScansHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	wait := r.URL.Query().Get("wait") == "true"
	snap, err := h.Manager.Stop(wait)
	if err != nil {
		writeDomainError(w, "scans: stop", err)
		return
	}
	if wait {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"run_id":  snap.RunID,
			"stopped": true,
			"summary": h.Manager.LastSummary(),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// Hits handles GET /api/scans/current/hits — hits of the current or most
// recent run.
func (h *ScansHandler) Hits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Collector.Results())
}

// List handles GET /api/scans — returns scan history newest first.
func (h *ScansHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	items, err := h.History.List(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, "scans: list", err)
		return
	}
	if items == nil {
		items = []scan.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, ListResponse[scan.HistoryEntry]{
		Items:  items,
		Limit:  limit,
		Offset: offset,
	})
}

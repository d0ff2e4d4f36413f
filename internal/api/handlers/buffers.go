package handlers

import (
	"net/http"

	"github.com/eargollo/tracenav/internal/workspace"
)

// BuffersHandler lets the host publish the text of documents it has open,
// which scans read instead of the file on disk.
type BuffersHandler struct {
	Buffers *workspace.Buffers
}

type bufferRequest struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

// Put handles PUT /api/buffers.
func (h *BuffersHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req bufferRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "path is required")
		return
	}
	h.Buffers.Set(req.Path, req.Text)
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/buffers?path=... when the host closes a document.
func (h *BuffersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "path is required")
		return
	}
	if !h.Buffers.Close(path) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Buffer is not open")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/buffers.
func (h *BuffersHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"paths": h.Buffers.Paths()})
}

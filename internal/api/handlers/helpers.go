package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eargollo/tracenav/internal/scan"
	"github.com/eargollo/tracenav/internal/trace"
)

// maxBodyBytes bounds request bodies; buffers carry whole documents.
const maxBodyBytes = 16 << 20

// ListResponse is the standard paginated list envelope.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ErrorBody is the standard error envelope.
type ErrorBody struct {
	Error APIError `json:"error"`
}

// APIError holds a machine-readable code and a human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON serialises v as JSON with status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON encode", "error", err)
	}
}

// writeError writes a standard error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{
		Error: APIError{Code: code, Message: message},
	})
}

// readJSON decodes the request body into v, answering 400 on failure.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeDomainError maps scan, trace and navigation errors onto HTTP codes.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, scan.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "SCAN_ALREADY_RUNNING", "A scan is already in progress")
	case errors.Is(err, scan.ErrEmptySelection):
		writeError(w, http.StatusBadRequest, "EMPTY_SELECTION", "No projects selected")
	case errors.Is(err, scan.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case errors.Is(err, scan.ErrNoPriorScan):
		writeError(w, http.StatusNotFound, "NO_PRIOR_SCAN", "No previous scan to repeat")
	case errors.Is(err, scan.ErrNoActiveScan):
		writeError(w, http.StatusNotFound, "NO_ACTIVE_SCAN", "No scan is currently running")
	case errors.Is(err, trace.ErrResolution):
		writeError(w, http.StatusUnprocessableEntity, "RESOLUTION_FAILED", err.Error())
	default:
		slog.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// parsePagination extracts limit and offset from query parameters.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return
}

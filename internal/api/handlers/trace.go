package handlers

import (
	"net/http"

	"github.com/eargollo/tracenav/internal/navigate"
	"github.com/eargollo/tracenav/internal/trace"
)

// TraceHandler handles classification, resolution and activation of stack
// trace text.
type TraceHandler struct {
	Classifier *trace.Classifier
	Root       func() string
	Dispatcher *navigate.Dispatcher
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Tokens []trace.Token `json:"tokens"`
}

// Classify handles POST /api/classify.
func (h *TraceHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !readJSON(w, r, &req) {
		return
	}
	tokens := h.Classifier.Classify(req.Text)
	if tokens == nil {
		tokens = []trace.Token{}
	}
	writeJSON(w, http.StatusOK, classifyResponse{Tokens: tokens})
}

type resolveRequest struct {
	Token string `json:"token"`
	Root  string `json:"root"`
}

// Resolve handles POST /api/resolve. Root defaults to the configured
// solution root.
func (h *TraceHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !readJSON(w, r, &req) {
		return
	}
	root := req.Root
	if root == "" {
		root = h.Root()
	}
	target, err := h.Classifier.ResolveFileTarget(req.Token, root)
	if err != nil {
		writeDomainError(w, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

// Activate handles POST /api/activate with a token as returned by Classify.
func (h *TraceHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var tok trace.Token
	if !readJSON(w, r, &tok) {
		return
	}
	act, err := h.Dispatcher.Activate(r.Context(), tok)
	if err != nil {
		writeDomainError(w, "activate", err)
		return
	}
	status := http.StatusOK
	if act.Run != nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, act)
}

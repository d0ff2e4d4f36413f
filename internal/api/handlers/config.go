package handlers

import (
	"net/http"

	"github.com/eargollo/tracenav/internal/config"
	"github.com/eargollo/tracenav/internal/trace"
)

// ConfigHandler exposes the loaded configuration read-only.
type ConfigHandler struct {
	Cfg        *config.Config
	Classifier *trace.Classifier
}

// configView reports the locales the classifier actually runs with in place
// of the configured ones.
type configView struct {
	*config.Config
	Locales []trace.Locale `json:"locales"`
}

// Get handles GET /api/config.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configView{Config: h.Cfg, Locales: h.Classifier.Locales()})
}

// Projects handles GET /api/projects.
func (h *ConfigHandler) Projects(w http.ResponseWriter, r *http.Request) {
	projects := h.Cfg.Projects
	if projects == nil {
		projects = []config.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"solution_root": h.Cfg.SolutionRoot,
		"projects":      projects,
	})
}

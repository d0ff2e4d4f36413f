package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eargollo/tracenav/internal/api/handlers"
	"github.com/eargollo/tracenav/internal/config"
	"github.com/eargollo/tracenav/internal/navigate"
	"github.com/eargollo/tracenav/internal/scan"
	"github.com/eargollo/tracenav/internal/scheduler"
	"github.com/eargollo/tracenav/internal/trace"
	"github.com/eargollo/tracenav/internal/workspace"
)

// Deps are the components the HTTP surface exposes.
type Deps struct {
	Config     *config.Config
	Classifier *trace.Classifier
	Manager    *scan.Manager
	History    *scan.SQLHistory
	Collector  *scan.Collector
	Dispatcher *navigate.Dispatcher
	Content    *workspace.Content
	Scheduler  *scheduler.Scheduler
	Version    string
}

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
}

// New wires all routes and returns a Server ready to Run.
func New(addr string, d Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	statusH := &handlers.StatusHandler{Manager: d.Manager, Sched: d.Scheduler, Content: d.Content, Version: d.Version}
	traceH := &handlers.TraceHandler{
		Classifier: d.Classifier,
		Root:       func() string { return d.Config.SolutionRoot },
		Dispatcher: d.Dispatcher,
	}
	scansH := &handlers.ScansHandler{
		Manager:   d.Manager,
		History:   d.History,
		Collector: d.Collector,
		Projects:  d.Config.ScanProjects,
	}
	buffersH := &handlers.BuffersHandler{Buffers: d.Content.Buffers()}
	configH := &handlers.ConfigHandler{Cfg: d.Config, Classifier: d.Classifier}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusH.ServeHTTP)

		r.Post("/classify", traceH.Classify)
		r.Post("/resolve", traceH.Resolve)
		r.Post("/activate", traceH.Activate)

		r.Get("/projects", configH.Projects)
		r.Get("/config", configH.Get)

		r.Post("/scans", scansH.Create)
		r.Get("/scans", scansH.List)
		r.Post("/scans/repeat", scansH.Repeat)
		r.Delete("/scans/current", scansH.Cancel)
		r.Get("/scans/current/hits", scansH.Hits)

		r.Get("/buffers", buffersH.List)
		r.Put("/buffers", buffersH.Put)
		r.Delete("/buffers", buffersH.Delete)
	})

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: r},
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

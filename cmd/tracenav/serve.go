package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eargollo/tracenav/internal/api"
	"github.com/eargollo/tracenav/internal/config"
	"github.com/eargollo/tracenav/internal/db"
	"github.com/eargollo/tracenav/internal/navigate"
	"github.com/eargollo/tracenav/internal/scan"
	"github.com/eargollo/tracenav/internal/scheduler"
	"github.com/eargollo/tracenav/internal/trace"
	"github.com/eargollo/tracenav/internal/workspace"
)

// collectorLimit caps the hits kept in memory for GET /api/scans/current/hits.
const collectorLimit = 10000

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service for editor integrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	slog.Info("tracenav starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTPAddr,
		"db_path", cfg.DBPath,
		"solution_root", cfg.SolutionRoot,
		"projects", len(cfg.Projects))

	// ── Database ───────────────────────────────────────────────────────────
	database, err := db.OpenMigrated(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	// Mark any scans that were 'running' when last process exited as failed.
	if err := scan.MarkStaleScansFailed(database); err != nil {
		slog.Warn("mark stale scans", "error", err)
	}

	// ── Trace classifier ───────────────────────────────────────────────────
	classifier, err := trace.NewClassifier(cfg.Locales...)
	if err != nil {
		return err
	}

	// ── Workspace ──────────────────────────────────────────────────────────
	content, err := workspace.NewContent(nil, cfg.ContentCacheSize)
	if err != nil {
		return err
	}
	if cfg.WatchFiles {
		roots := make([]string, 0, len(cfg.Projects))
		for _, p := range cfg.Projects {
			roots = append(roots, p.Root)
		}
		watcher, err := workspace.Watch(content, roots...)
		if err != nil {
			slog.Warn("file watching disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	// ── Scan manager ───────────────────────────────────────────────────────
	history := scan.NewSQLHistory(database)
	mgr := scan.NewManager(scan.Deps{
		Enumerator: &workspace.Enumerator{Workers: cfg.ScanWorkers.Walkers},
		Content:    content,
		Scanner:    &scan.Matcher{Workers: cfg.ScanWorkers.Matchers, MaxHitsPerFile: cfg.MaxHitsPerFile},
		History:    history,
	})

	nav, err := newNavigator(cfg)
	if err != nil {
		return err
	}
	projects := func() []scan.Project {
		p, _ := cfg.ScanProjects()
		return p
	}
	dispatcher := navigate.NewDispatcher(classifier, func() string { return cfg.SolutionRoot }, projects, mgr, nav)
	collector := scan.NewCollector(collectorLimit)

	// Event consumers outlive the manager so a final blocking stop can
	// deliver Stopped.
	consumeCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	dispatchEvents, unsubDispatch := mgr.Subscribe(256)
	defer unsubDispatch()
	collectEvents, unsubCollect := mgr.Subscribe(256)
	defer unsubCollect()
	go dispatcher.Run(consumeCtx, dispatchEvents)
	go collector.Run(consumeCtx, collectEvents)
	defer mgr.StopIfRunning(true)

	// ── Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.New()
	if cfg.RescanSchedule != "" {
		if err := sched.SetJob(cfg.RescanSchedule, scheduler.RescanJob(mgr)); err != nil {
			slog.Warn("invalid cron expression", "expr", cfg.RescanSchedule, "error", err)
		}
	}
	retention := time.Duration(cfg.HistoryRetentionDays) * 24 * time.Hour
	if err := sched.AddJob("0 3 * * *", scheduler.PruneJob(history, retention)); err != nil {
		slog.Warn("failed to register history prune job", "error", err)
	}
	sched.Start()
	defer sched.Stop()

	// ── HTTP server ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.New(cfg.HTTPAddr, api.Deps{
		Config:     cfg,
		Classifier: classifier,
		Manager:    mgr,
		History:    history,
		Collector:  collector,
		Dispatcher: dispatcher,
		Content:    content,
		Scheduler:  sched,
		Version:    version,
	})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("tracenav stopped")
	return nil
}

func newNavigator(cfg *config.Config) (navigate.Navigator, error) {
	if len(cfg.Navigator.Command) == 0 {
		return navigate.LogNavigator{}, nil
	}
	return navigate.NewCommandNavigator(cfg.Navigator.Command)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/eargollo/tracenav/internal/scan"
	"github.com/eargollo/tracenav/internal/workspace"
)

func newFindCmd(opts *rootOptions) *cobra.Command {
	var projectNames []string
	cmd := &cobra.Command{
		Use:   "find TERM",
		Short: "Search the configured projects for TERM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			projects, err := cfg.ScanProjects(projectNames...)
			if err != nil {
				return err
			}
			content, err := workspace.NewContent(nil, cfg.ContentCacheSize)
			if err != nil {
				return err
			}
			mgr := scan.NewManager(scan.Deps{
				Enumerator: &workspace.Enumerator{Workers: cfg.ScanWorkers.Walkers},
				Content:    content,
				Scanner:    &scan.Matcher{Workers: cfg.ScanWorkers.Matchers, MaxHitsPerFile: cfg.MaxHitsPerFile},
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return find(ctx, cmd, mgr, projects, args[0])
		},
	}
	cmd.Flags().StringSliceVarP(&projectNames, "project", "p", nil, "limit the search to these projects (repeatable)")
	return cmd
}

// find prints hits as they arrive. Cancelling ctx stops the scan; the
// partial results stay printed.
func find(ctx context.Context, cmd *cobra.Command, mgr *scan.Manager, projects []scan.Project, term string) error {
	events, unsubscribe := mgr.Subscribe(256)
	defer unsubscribe()

	if _, err := mgr.Start(scan.WithTrigger(context.Background(), "cli"), projects, term); err != nil {
		return err
	}
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			mgr.StopIfRunning(true)
		case <-stopped:
		}
	}()

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	for ev := range events {
		switch ev.Kind {
		case scan.EventHit:
			h := ev.Hit
			if h.Warning != "" {
				fmt.Fprintf(errOut, "%s: %s\n", h.FilePath, h.Warning)
				continue
			}
			fmt.Fprintf(out, "%s:%d:%d: %s\n", h.FilePath, h.Line, h.Column, h.LineText)
		case scan.EventStopped:
			s := ev.Summary
			fmt.Fprintf(errOut, "%s: %d hits in %d/%d files\n", s.Status(), s.Hits, s.FilesProcessed, s.TotalFiles)
			return nil
		}
	}
	return nil
}

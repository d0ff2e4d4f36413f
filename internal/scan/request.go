package scan

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Project is a non-owning handle to a host project: where it lives and
// which of its files are candidates for scanning.
type Project struct {
	Name      string   `json:"name"`
	Root      string   `json:"root"`
	Include   []string `json:"include,omitempty"`
	Exclude   []string `json:"exclude,omitempty"`
	Gitignore bool     `json:"gitignore"`
}

// Enumerator lists the files belonging to a project as absolute paths.
type Enumerator interface {
	ProjectFiles(ctx context.Context, p Project) ([]string, error)
}

// ProjectFiles pairs a project with the files captured for one run.
type ProjectFiles struct {
	Project Project
	Files   []string
}

// Request is the immutable input of a scan run, captured once by Start and
// replayed as-is by RepeatLast.
type Request struct {
	Term     string
	Projects []ProjectFiles
}

// TotalFiles is the number of files across all projects.
func (r *Request) TotalFiles() uint {
	var n uint
	for _, p := range r.Projects {
		n += uint(len(p.Files))
	}
	return n
}

// ProjectNames returns the project names in scan order.
func (r *Request) ProjectNames() []string {
	names := make([]string, len(r.Projects))
	for i, p := range r.Projects {
		names[i] = p.Project.Name
	}
	return names
}

// gatherRequest enumerates every project concurrently; the result keeps the
// caller's project order.
func gatherRequest(ctx context.Context, enum Enumerator, projects []Project, term string) (*Request, error) {
	out := make([]ProjectFiles, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range projects {
		g.Go(func() error {
			files, err := enum.ProjectFiles(gctx, p)
			if err != nil {
				return fmt.Errorf("project %q: %w", p.Name, err)
			}
			out[i] = ProjectFiles{Project: p, Files: files}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Request{Term: term, Projects: out}, nil
}

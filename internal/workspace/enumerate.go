// Package workspace provides the host-side collaborators of a scan: listing
// a project's files and reading their current text.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/eargollo/tracenav/internal/scan"
)

// ErrPathEscapes is returned by AbsolutePath for paths that climb above base.
var ErrPathEscapes = errors.New("path escapes base directory")

// skipDirs are never descended into: VCS metadata, build output and
// dependency caches.
var skipDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	".vs":          {},
	".idea":        {},
	"bin":          {},
	"obj":          {},
	"node_modules": {},
	"packages":     {},
}

// Enumerator lists project files from disk. It implements scan.Enumerator.
type Enumerator struct {
	// Workers is the number of directory-walking goroutines per project.
	Workers int
}

var _ scan.Enumerator = (*Enumerator)(nil)

// ValidatePatterns reports the first invalid include or exclude glob.
func ValidatePatterns(include, exclude []string) error {
	for _, p := range include {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid include pattern %q", p)
		}
	}
	for _, p := range exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return nil
}

// ProjectFiles walks the project root and returns the sorted absolute paths
// of the files that pass the project's include/exclude globs (matched against
// slash-separated paths relative to the root) and, when enabled, its
// .gitignore.
func (e *Enumerator) ProjectFiles(ctx context.Context, p scan.Project) ([]string, error) {
	if err := ValidatePatterns(p.Include, p.Exclude); err != nil {
		return nil, fmt.Errorf("project %q: %w", p.Name, err)
	}
	root, err := filepath.Abs(p.Root)
	if err != nil {
		return nil, fmt.Errorf("project %q root: %w", p.Name, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("project %q root: %w", p.Name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project %q root %q is not a directory", p.Name, root)
	}

	var gi *ignore.GitIgnore
	if p.Gitignore {
		gi = loadGitignore(root)
	}

	keep := func(path string, isDir bool) bool {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return false
		}
		rel = filepath.ToSlash(rel)

		if isDir {
			if _, skip := skipDirs[filepath.Base(path)]; skip {
				return false
			}
			if gi != nil && gi.MatchesPath(rel+"/") {
				return false
			}
			return !matchAny(p.Exclude, rel)
		}

		if gi != nil && gi.MatchesPath(rel) {
			return false
		}
		if matchAny(p.Exclude, rel) {
			return false
		}
		return len(p.Include) == 0 || matchAny(p.Include, rel)
	}

	out := make(chan string, 256)
	go walk(ctx, root, e.Workers, keep, out, func(path string, err error) {
		slog.Warn("enumerate: unreadable directory", "project", p.Name, "path", path, "error", err)
	})

	var files []string
	for f := range out {
		files = append(files, f)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if m, _ := doublestar.Match(p, rel); m {
			return true
		}
	}
	return false
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

// AbsolutePath joins a relative path onto an absolute base, resolving "." and
// ".." segments. It refuses to climb above base.
func AbsolutePath(rel, base string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q is not relative", rel)
	}
	if !filepath.IsAbs(base) {
		return "", fmt.Errorf("base %q is not absolute", base)
	}
	joined := filepath.Join(base, rel)
	back, err := filepath.Rel(filepath.Clean(base), joined)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q from %q: %w", rel, base, ErrPathEscapes)
	}
	return joined, nil
}

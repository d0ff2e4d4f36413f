package scan

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// Hit is one textual match. Line and Column are 1-based. A file that could
// not be scanned is reported as a Hit with Warning set and Line 0.
type Hit struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	LineText string `json:"line_text"`
	Term     string `json:"term"`
	Warning  string `json:"warning,omitempty"`
}

// FileResult is what a FileScanner reports for each file it finishes.
type FileResult struct {
	Path string
	Hits []Hit
	Err  error
}

// ContentSource returns the current text of a file, preferring a buffer the
// host has open over the copy on disk.
type ContentSource interface {
	Content(path string) (string, error)
}

// FileScanner searches files for a term. It must check ctx between files and
// return early once it is done; a file already being read may finish. done
// is called once per finished file and may be called concurrently.
type FileScanner interface {
	Scan(ctx context.Context, files []string, term string, content ContentSource, done func(FileResult)) error
}

// Matcher is the default FileScanner: plain substring containment, line by
// line. With Workers > 1 files are scanned concurrently and results arrive
// out of order.
type Matcher struct {
	Workers int
	// MaxHitsPerFile caps hits reported for one file; 0 means no cap.
	MaxHitsPerFile int
}

// Scan implements FileScanner.
func (m *Matcher) Scan(ctx context.Context, files []string, term string, content ContentSource, done func(FileResult)) error {
	workers := m.Workers
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			done(m.scanFile(path, term, content))
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (m *Matcher) scanFile(path, term string, content ContentSource) FileResult {
	text, err := content.Content(path)
	if err != nil {
		return FileResult{Path: path, Err: err}
	}
	return FileResult{Path: path, Hits: m.matchText(path, text, term)}
}

func (m *Matcher) matchText(path, text, term string) []Hit {
	var hits []Hit
	lineNo := 0
	for len(text) > 0 {
		lineNo++
		line := text
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line, text = text[:i], text[i+1:]
		} else {
			text = ""
		}
		line = strings.TrimSuffix(line, "\r")

		idx := strings.Index(line, term)
		if idx < 0 {
			continue
		}
		hits = append(hits, Hit{
			FilePath: path,
			Line:     lineNo,
			Column:   utf8.RuneCountInString(line[:idx]) + 1,
			LineText: strings.TrimSpace(line),
			Term:     term,
		})
		if m.MaxHitsPerFile > 0 && len(hits) >= m.MaxHitsPerFile {
			break
		}
	}
	return hits
}

package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/eargollo/tracenav/internal/scan"
)

// ErrFileTooLarge is returned for files above Content's size limit.
var ErrFileTooLarge = errors.New("file too large to scan")

// Buffers holds the text of documents the host has open, which may differ
// from what is on disk. Safe for concurrent use.
type Buffers struct {
	mu    sync.RWMutex
	texts map[string]string
}

// NewBuffers returns an empty buffer set.
func NewBuffers() *Buffers {
	return &Buffers{texts: make(map[string]string)}
}

// Set records the live text of path.
func (b *Buffers) Set(path, text string) {
	b.mu.Lock()
	b.texts[filepath.Clean(path)] = text
	b.mu.Unlock()
}

// Close forgets path, so reads fall back to disk.
func (b *Buffers) Close(path string) bool {
	path = filepath.Clean(path)
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.texts[path]
	delete(b.texts, path)
	return ok
}

// Get returns the live text of path if it is open.
func (b *Buffers) Get(path string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	text, ok := b.texts[filepath.Clean(path)]
	return text, ok
}

// Paths lists open documents.
func (b *Buffers) Paths() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.texts))
	for p := range b.texts {
		out = append(out, p)
	}
	return out
}

type cachedFile struct {
	size  int64
	mtime time.Time
	text  string
}

// Content implements scan.ContentSource: open buffers win, otherwise the
// file is read from disk through an LRU cache validated by size and mtime.
type Content struct {
	buffers  *Buffers
	cache    *lru.Cache[string, cachedFile]
	maxBytes int64
}

var _ scan.ContentSource = (*Content)(nil)

// DefaultMaxFileBytes is the largest file Content will read.
const DefaultMaxFileBytes = 8 << 20

// NewContent creates a content source caching up to cacheSize files.
// buffers may be nil.
func NewContent(buffers *Buffers, cacheSize int) (*Content, error) {
	if buffers == nil {
		buffers = NewBuffers()
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, cachedFile](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create content cache: %w", err)
	}
	return &Content{buffers: buffers, cache: cache, maxBytes: DefaultMaxFileBytes}, nil
}

// Buffers returns the open-document overlay.
func (c *Content) Buffers() *Buffers { return c.buffers }

// Content returns the current text of path. Binary files read as "".
func (c *Content) Content(path string) (string, error) {
	path = filepath.Clean(path)
	if text, ok := c.buffers.Get(path); ok {
		return text, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > c.maxBytes {
		return "", fmt.Errorf("%s: %d bytes: %w", path, info.Size(), ErrFileTooLarge)
	}
	if cf, ok := c.cache.Get(path); ok && cf.size == info.Size() && cf.mtime.Equal(info.ModTime()) {
		return cf.text, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var text string
	if !isBinary(data) {
		text = string(data)
	}
	c.cache.Add(path, cachedFile{size: info.Size(), mtime: info.ModTime(), text: text})
	return text, nil
}

// Invalidate drops path from the disk cache.
func (c *Content) Invalidate(path string) {
	c.cache.Remove(filepath.Clean(path))
}

// Cached is the number of files held in the disk cache.
func (c *Content) Cached() int { return c.cache.Len() }

func isBinary(data []byte) bool {
	if len(data) > 8000 {
		data = data[:8000]
	}
	return bytes.IndexByte(data, 0) >= 0
}

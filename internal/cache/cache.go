package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/rag"
)

// Entry pairs a document's retriever with its composed chain. An entry is
// only ever published complete; readers never observe a half-built pair.
type Entry struct {
	Retriever *rag.Retriever
	Chain     *rag.Chain
}

// BuildFunc constructs the entry for a document id. It runs at most once
// per id at a time; concurrent callers share the result.
type BuildFunc func(ctx context.Context) (*Entry, error)

// Cache is the process-local registry of retriever/chain pairs. It is
// rebuilt lazily after a restart from the persisted vector namespaces;
// nothing here is durable.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	group   singleflight.Group
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
	}
}

// Get returns the entry for documentID without blocking. ErrNotReady
// means no entry exists yet; it is a valid degraded mode, not a failure.
func (c *Cache) Get(documentID string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.entries[documentID]; ok {
		return entry, nil
	}
	return nil, fmt.Errorf("%w: no chain for document %s", models.ErrNotReady, documentID)
}

// GetOrBuild returns the cached entry or constructs it via build. Builds
// for the same id are single-flight: concurrent callers wait for the
// first build and observe its result. Unrelated ids build in parallel.
func (c *Cache) GetOrBuild(ctx context.Context, documentID string, build BuildFunc) (*Entry, error) {
	if entry, err := c.Get(documentID); err == nil {
		return entry, nil
	}

	result, err, _ := c.group.Do(documentID, func() (interface{}, error) {
		// Re-check under the flight: a racing caller may have finished.
		if entry, err := c.Get(documentID); err == nil {
			return entry, nil
		}
		entry, err := build(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[documentID] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Entry), nil
}

// Invalidate drops the entry for documentID, if any.
func (c *Cache) Invalidate(documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, documentID)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

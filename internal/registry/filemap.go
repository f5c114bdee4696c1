package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/docuchat/docuchat/internal/models"
)

// BlobChecker is the slice of the storage backend the registry needs to
// validate that a mapped blob still exists.
type BlobChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// Entry maps a document id to its stored blob.
type Entry struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileMap is the durable id -> blob mapping. It is the only record a
// restart has to recover; everything else is rebuilt lazily. Persisted
// as a JSON file written atomically on every mutation.
type FileMap struct {
	mu      sync.RWMutex
	path    string
	entries map[string]Entry
	blobs   BlobChecker
}

func NewFileMap(path string, blobs BlobChecker) (*FileMap, error) {
	m := &FileMap{
		path:    path,
		entries: make(map[string]Entry),
		blobs:   blobs,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *FileMap) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read file map: %w", err)
	}
	if err := json.Unmarshal(data, &m.entries); err != nil {
		return fmt.Errorf("failed to parse file map: %w", err)
	}
	return nil
}

// save writes the map to a temp file and renames it over the old one.
// Caller must hold the write lock.
func (m *FileMap) save() error {
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file map: %w", err)
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create map directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".filemap-*")
	if err != nil {
		return fmt.Errorf("failed to create temp map file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file map: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file map: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("failed to replace file map: %w", err)
	}
	return nil
}

// Register records a new id -> blob mapping. Ids are generated once at
// upload; a duplicate registration is caller misuse, never an overwrite.
func (m *FileMap) Register(id, key, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; ok {
		return fmt.Errorf("%w: %s", models.ErrDocumentExists, id)
	}
	m.entries[id] = Entry{
		ID:        id,
		Key:       key,
		Filename:  filename,
		CreatedAt: time.Now().UTC(),
	}
	return m.save()
}

// Resolve returns the entry for id. A mapping whose backing blob has been
// removed out-of-band resolves to ErrNotFound, not a stale key.
func (m *FileMap) Resolve(ctx context.Context, id string) (Entry, error) {
	m.mu.RLock()
	entry, ok := m.entries[id]
	m.mu.RUnlock()

	if !ok {
		return Entry{}, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}

	exists, err := m.blobs.Exists(ctx, entry.Key)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to check blob %s: %w", entry.Key, err)
	}
	if !exists {
		return Entry{}, fmt.Errorf("%w: blob missing for document %s", models.ErrNotFound, id)
	}
	return entry, nil
}

// Lookup returns the entry without validating the blob. Used by teardown,
// which wants the key even when the blob is already gone.
func (m *FileMap) Lookup(id string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	return entry, ok
}

// Forget removes the mapping. Forgetting an unknown id is a no-op.
func (m *FileMap) Forget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return nil
	}
	delete(m.entries, id)
	return m.save()
}

// Clear removes every mapping.
func (m *FileMap) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return nil
	}
	m.entries = make(map[string]Entry)
	return m.save()
}

// List returns all entries ordered by creation time.
func (m *FileMap) List() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries
}

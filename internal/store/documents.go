package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

const (
	indexFileName  = "index.json"
	chunksFileName = "chunks.json"
)

var (
	ErrIndexCorrupt        = errors.New("document index is corrupt")
	ErrInvalidCollectionID = errors.New("invalid collection id")

	collectionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Collection is a chunk list with its matching vector index.
type Collection struct {
	ID     string
	Chunks []string
	Index  *FlatL2Index
}

// DocumentStore keeps one collection per directory under root:
// <root>/<id>/chunks.json and <root>/<id>/index.json.
type DocumentStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func NewDocumentStore(root string) *DocumentStore {
	return &DocumentStore{root: root, locks: make(map[string]*sync.RWMutex)}
}

func (s *DocumentStore) lockFor(id string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[id] = l
	}
	return l
}

func (s *DocumentStore) dir(id string) (string, error) {
	if !collectionIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCollectionID, id)
	}
	return filepath.Join(s.root, id), nil
}

// Exists reports whether the collection has a persisted index file.
func (s *DocumentStore) Exists(id string) (bool, error) {
	dir, err := s.dir(id)
	if err != nil {
		return false, err
	}
	l := s.lockFor(id)
	l.RLock()
	defer l.RUnlock()

	_, err = os.Stat(filepath.Join(dir, indexFileName))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat index for collection %s: %w", id, err)
}

// Save replaces the collection. Both files are encoded before anything on
// disk changes, so an unencodable collection leaves the old one intact. The
// old index is removed before the new chunks land and the new index is
// written last, so an index file is only ever next to its own chunks.
func (s *DocumentStore) Save(c *Collection) error {
	if c.Index == nil || len(c.Chunks) != c.Index.Len() {
		return fmt.Errorf("%w: chunk count does not match vector count", ErrIndexCorrupt)
	}
	dir, err := s.dir(c.ID)
	if err != nil {
		return err
	}

	chunksData, err := json.Marshal(c.Chunks)
	if err != nil {
		return fmt.Errorf("failed to encode chunks: %w", err)
	}
	indexData, err := json.Marshal(c.Index)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}

	l := s.lockFor(c.ID)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create collection dir %s: %w", dir, err)
	}
	indexPath := filepath.Join(dir, indexFileName)
	if err := os.Remove(indexPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove old index: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, chunksFileName), chunksData); err != nil {
		return fmt.Errorf("failed to write chunks: %w", err)
	}
	if err := writeFileAtomic(indexPath, indexData); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// Load reads a collection back. It returns os.ErrNotExist (wrapped) when the
// collection was never saved.
func (s *DocumentStore) Load(id string) (*Collection, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	l := s.lockFor(id)
	l.RLock()
	defer l.RUnlock()

	var idx FlatL2Index
	if err := readJSON(filepath.Join(dir, indexFileName), &idx); err != nil {
		return nil, err
	}
	var chunks []string
	if err := readJSON(filepath.Join(dir, chunksFileName), &chunks); err != nil {
		return nil, err
	}
	if len(chunks) != idx.Len() {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrIndexCorrupt, len(chunks), idx.Len())
	}
	return &Collection{ID: id, Chunks: chunks, Index: &idx}, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIndexCorrupt, path, err)
	}
	return nil
}

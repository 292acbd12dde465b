package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileVersion is the current version of the state file format.
const FileVersion = 1

// fileState is the on-disk layout of a FileStore.
type fileState struct {
	Version int               `cbor:"1,keyasint"`
	SavedAt time.Time         `cbor:"2,keyasint"`
	Items   map[string][]byte `cbor:"3,keyasint"`
}

// FileStore persists all keys in a single CBOR file.
// Every SetItem and RemoveItem rewrites the file through a temp file and rename,
// so a crash never leaves a partially written state.
type FileStore struct {
	mu     sync.Mutex
	path   string
	items  map[string][]byte
	closed bool
}

// OpenFileStore opens the store at path, loading existing state if present.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, items: make(map[string][]byte)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var state fileState
	if err := Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	if state.Version > FileVersion {
		return fmt.Errorf("%s: unsupported state version %d", s.path, state.Version)
	}
	if state.Items != nil {
		s.items = state.Items
	}
	return nil
}

// save writes the current items. Caller holds s.mu.
func (s *FileStore) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := Marshal(fileState{
		Version: FileVersion,
		SavedAt: time.Now(),
		Items:   s.items,
	})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

// GetItem implements Storage.
func (s *FileStore) GetItem(_ context.Context, key string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	data, ok := s.items[key]
	if !ok {
		return false, nil
	}
	return true, Unmarshal(data, dst)
}

// SetItem implements Storage.
func (s *FileStore) SetItem(_ context.Context, key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	prev, had := s.items[key]
	s.items[key] = data
	if err := s.save(); err != nil {
		if had {
			s.items[key] = prev
		} else {
			delete(s.items, key)
		}
		return err
	}
	return nil
}

// RemoveItem implements Storage.
func (s *FileStore) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	prev, had := s.items[key]
	if !had {
		return nil
	}
	delete(s.items, key)
	if err := s.save(); err != nil {
		s.items[key] = prev
		return err
	}
	return nil
}

// Clear removes the state file and all keys.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string][]byte)
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close implements Storage.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Compile-time interface satisfaction check.
var _ Storage = (*FileStore)(nil)

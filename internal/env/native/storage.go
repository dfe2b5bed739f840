package native

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// StorageQuota is the maximum number of bytes of keys and values a LocalStorage holds.
const StorageQuota = 5 << 20

// ErrQuotaExceeded is returned when a write would grow the store beyond StorageQuota.
var ErrQuotaExceeded = errors.New("local storage quota exceeded")

type storageEntry struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// LocalStorage is a string store persisted to a YAML file after every write.
// Keys keep insertion order. A write that cannot be persisted leaves the store unchanged.
// It is safe for concurrent use.
type LocalStorage struct {
	path string

	mu    sync.RWMutex
	state storageState
}

// storageState is replaced as a whole; writes build a copy and commit it after it is saved.
type storageState struct {
	keys  []string
	items map[string]string
	size  int
}

func newStorageState() storageState {
	return storageState{items: make(map[string]string)}
}

func (st storageState) clone() storageState {
	c := storageState{
		keys:  append([]string(nil), st.keys...),
		items: make(map[string]string, len(st.items)),
		size:  st.size,
	}
	for k, v := range st.items {
		c.items[k] = v
	}
	return c
}

func (st *storageState) put(key, value string) {
	if old, ok := st.items[key]; ok {
		st.size += len(value) - len(old)
	} else {
		st.keys = append(st.keys, key)
		st.size += len(key) + len(value)
	}
	st.items[key] = value
}

func (st *storageState) remove(key string) {
	old, ok := st.items[key]
	if !ok {
		return
	}
	delete(st.items, key)
	st.size -= len(key) + len(old)
	for i, k := range st.keys {
		if k == key {
			st.keys = append(st.keys[:i], st.keys[i+1:]...)
			break
		}
	}
}

// OpenLocalStorage loads the store at path, creating it on first write.
// An empty path gives a store that lives in memory only.
func OpenLocalStorage(path string) (*LocalStorage, error) {
	s := &LocalStorage{
		path:  path,
		state: newStorageState(),
	}
	if path == "" {
		return s, nil
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read local storage: %w", err)
	}

	var entries []storageEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("could not unmarshal local storage: %w", err)
	}
	for _, e := range entries {
		s.state.put(e.Key, e.Value)
	}
	return s, nil
}

func (s *LocalStorage) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.items[key]
	return v, ok
}

func (s *LocalStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	next.put(key, value)
	if next.size > StorageQuota {
		return ErrQuotaExceeded
	}
	return s.commit(next)
}

func (s *LocalStorage) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.items[key]; !ok {
		return nil
	}
	next := s.state.clone()
	next.remove(key)
	return s.commit(next)
}

func (s *LocalStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(newStorageState())
}

func (s *LocalStorage) Key(n int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 || n >= len(s.state.keys) {
		return "", false
	}
	return s.state.keys[n], true
}

func (s *LocalStorage) Length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.keys)
}

// commit saves next and makes it the current state. It must be called with mu held.
func (s *LocalStorage) commit(next storageState) error {
	if err := s.save(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// save writes st through a temporary file so a crash never leaves a torn file.
func (s *LocalStorage) save(st storageState) error {
	if s.path == "" {
		return nil
	}

	entries := make([]storageEntry, 0, len(st.keys))
	for _, k := range st.keys {
		entries = append(entries, storageEntry{Key: k, Value: st.items[k]})
	}
	b, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("could not marshal local storage: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("could not create local storage directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("could not write local storage: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("could not replace local storage: %w", err)
	}
	return nil
}

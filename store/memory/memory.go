// Package memory provides a thread-safe in-memory implementation of store.Store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dcavalli/fidelgate/store"
)

// Store is a thread-safe in-memory implementation of store.Store.
// Suitable for testing, demos, and single-process use cases.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

var _ store.Store = (*Store)(nil)

// New creates a new empty in-memory Store.
func New() *Store {
	return &Store{data: make(map[string]map[string][]byte)}
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

func (s *Store) Get(_ context.Context, collection, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.data[collection]
	if !ok {
		return nil, store.ErrNotFound
	}
	value, ok := records[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneBytes(value), nil
}

func (s *Store) Set(_ context.Context, collection, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[collection]; !ok {
		s.data[collection] = make(map[string][]byte)
	}
	s.data[collection][key] = cloneBytes(value)
	return nil
}

func (s *Store) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if records, ok := s.data[collection]; ok {
		delete(records, key)
	}
	return nil
}

func (s *Store) Query(_ context.Context, collection string, match func(value []byte) bool) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results [][]byte
	for _, value := range s.data[collection] {
		if match == nil || match(value) {
			results = append(results, cloneBytes(value))
		}
	}
	return results, nil
}

func (s *Store) Keys(_ context.Context, collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data[collection]))
	for k := range s.data[collection] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

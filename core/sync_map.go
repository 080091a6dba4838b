package core

import "sync"

// SyncMap is a map that is safe for concurrent usage.
type SyncMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{
		m: make(map[K]V),
	}
}

func (s *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok = s.m[key]
	return
}

// LoadAndStore retrieves the value for a key, applies the function f to it, and stores the result.
// It guarantees that the whole operation is atomic.
func (s *SyncMap[K, V]) LoadAndStore(key K, f func(value V, ok bool) V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.m[key]
	s.m[key] = f(value, ok)
}

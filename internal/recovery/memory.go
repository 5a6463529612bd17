package recovery

import "sync"

// MemoryStore is a volatile Store for tests and ground tooling
type MemoryStore struct {
	mu     sync.Mutex
	values map[int]uint32
	saves  int
	// FailSave, when set, is returned by every Save
	FailSave error
	// FailLoad, when set, is returned by Load
	FailLoad error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[int]uint32)}
}

// Load returns a copy of the saved values
func (s *MemoryStore) Load() (map[int]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLoad != nil {
		return nil, s.FailLoad
	}
	out := make(map[int]uint32, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

// Save records a value
func (s *MemoryStore) Save(dest int, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSave != nil {
		return s.FailSave
	}
	s.values[dest] = value
	s.saves++
	return nil
}

// Saves returns the number of successful saves
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

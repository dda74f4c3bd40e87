package data

import (
	"sort"
	"sync"
	"time"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
)

// stateStore implements the in-memory state store
type stateStore struct {
	mu       sync.RWMutex
	states   map[domain.EntityKey]*domain.EntityState
	defaults func() domain.EntityConfig
	now      func() time.Time
}

// StateOption configures the state store
type StateOption func(*stateStore)

// WithDefaults sets the config given to newly created entities
func WithDefaults(fn func() domain.EntityConfig) StateOption {
	return func(s *stateStore) {
		s.defaults = fn
	}
}

// NewStateStore creates an empty state store
func NewStateStore(opts ...StateOption) repo.StateStore {
	s := &stateStore{
		states:   make(map[domain.EntityKey]*domain.EntityState),
		defaults: domain.DefaultConfig,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve gets or creates the state of an entity
func (s *stateStore) Resolve(key domain.EntityKey) *domain.EntityState {
	s.mu.RLock()
	st, ok := s.states[key]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check
	if st, ok := s.states[key]; ok {
		return st
	}
	st = domain.NewEntityState(key, s.now())
	st.Config = s.defaults()
	s.states[key] = st
	return st
}

// Lookup gets the state only if it exists
func (s *stateStore) Lookup(key domain.EntityKey) (*domain.EntityState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[key]
	return st, ok
}

// Keys lists all entities, groups first, then by id
func (s *stateStore) Keys() []domain.EntityKey {
	s.mu.RLock()
	keys := make([]domain.EntityKey, 0, len(s.states))
	for k := range s.states {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Scope != keys[j].Scope {
			return keys[i].Scope < keys[j].Scope
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

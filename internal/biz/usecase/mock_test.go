package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
)

// Mock implementations

type mockStateStore struct {
	mu     sync.Mutex
	states map[domain.EntityKey]*domain.EntityState
}

func newMockStateStore() *mockStateStore {
	return &mockStateStore{states: make(map[domain.EntityKey]*domain.EntityState)}
}

func (m *mockStateStore) Resolve(key domain.EntityKey) *domain.EntityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[key]; ok {
		return st
	}
	st := domain.NewEntityState(key, time.Now())
	m.states[key] = st
	return st
}

func (m *mockStateStore) Lookup(key domain.EntityKey) (*domain.EntityState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[key]
	return st, ok
}

func (m *mockStateStore) Keys() []domain.EntityKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]domain.EntityKey, 0, len(m.states))
	for k := range m.states {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

type mockGenerator struct {
	mu       sync.Mutex
	calls    int
	requests []*repo.CompletionRequest
	// fail returns the error for call n (1-based), nil means success
	fail  func(n int) error
	reply string
}

func (m *mockGenerator) Complete(ctx context.Context, req *repo.CompletionRequest) (*repo.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.requests = append(m.requests, req)
	if m.fail != nil {
		if err := m.fail(m.calls); err != nil {
			return nil, err
		}
	}
	if m.reply == "" {
		return &repo.CompletionResponse{}, nil
	}
	return &repo.CompletionResponse{Blocks: []repo.ContentBlock{
		{Type: repo.BlockThinking, Text: "hmm"},
		{Type: repo.BlockText, Text: m.reply},
	}}, nil
}

func (m *mockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockGenerator) LastRequest() *repo.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

type mockSnapshotRepo struct {
	mu        sync.Mutex
	entities  map[domain.EntityKey]*domain.Snapshot
	reminders []*domain.Reminder
	saves     int
	err       error
}

func newMockSnapshotRepo() *mockSnapshotRepo {
	return &mockSnapshotRepo{entities: make(map[domain.EntityKey]*domain.Snapshot)}
}

func (m *mockSnapshotRepo) SaveEntity(ctx context.Context, snap *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves++
	cp := *snap
	m.entities[snap.Key()] = &cp
	return nil
}

func (m *mockSnapshotRepo) LoadEntities(ctx context.Context) ([]*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Snapshot
	for _, s := range m.entities {
		out = append(out, s)
	}
	return out, nil
}

func (m *mockSnapshotRepo) SaveReminders(ctx context.Context, reminders []*domain.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reminders = reminders
	return nil
}

func (m *mockSnapshotRepo) LoadReminders(ctx context.Context) ([]*domain.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reminders, m.err
}

func (m *mockSnapshotRepo) Close() error {
	return nil
}

var errTransient = &repo.ProviderError{StatusCode: 529, Message: "overloaded", Transient: true}

var errFatal = errors.New("bad request")

func newTestGeneration(store repo.StateStore, gen repo.GeneratorRepo, persist *PersistenceUsecase) *GenerationUsecase {
	uc := NewGenerationUsecase(store, gen, persist, DefaultPromptSet(), zap.NewNop())
	uc.SetRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond})
	return uc
}

package repo

import (
	"context"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
)

// StateStore holds the per-entity state.
// Resolve never fails: absent state is created with defaults and inserted atomically,
// so concurrent callers observe one shared instance.
type StateStore interface {
	// Resolve gets or creates the state of an entity
	Resolve(key domain.EntityKey) *domain.EntityState

	// Lookup gets the state only if it was already materialized
	Lookup(key domain.EntityKey) (*domain.EntityState, bool)

	// Keys enumerates all materialized entities
	Keys() []domain.EntityKey
}

// SnapshotRepo is the durable storage behind the persistence adapter
type SnapshotRepo interface {
	// SaveEntity stores (create or replace) one entity snapshot
	SaveEntity(ctx context.Context, snap *domain.Snapshot) error

	// LoadEntities loads every stored entity snapshot
	LoadEntities(ctx context.Context) ([]*domain.Snapshot, error)

	// SaveReminders replaces the global reminder collection
	SaveReminders(ctx context.Context, reminders []*domain.Reminder) error

	// LoadReminders loads the global reminder collection
	LoadReminders(ctx context.Context) ([]*domain.Reminder, error)

	Close() error
}

package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
)

// PersistenceUsecase snapshots and restores entity state.
// Storage failures are logged and never returned to the caller that triggered them.
type PersistenceUsecase struct {
	store  repo.StateStore
	repo   repo.SnapshotRepo
	logger *zap.Logger
}

// NewPersistenceUsecase creates a new persistence usecase. A nil repo disables persistence.
func NewPersistenceUsecase(store repo.StateStore, snapshotRepo repo.SnapshotRepo, logger *zap.Logger) *PersistenceUsecase {
	return &PersistenceUsecase{
		store:  store,
		repo:   snapshotRepo,
		logger: logger.Named("persistence"),
	}
}

// Snapshot stores the entity if its save flag is on
func (uc *PersistenceUsecase) Snapshot(ctx context.Context, key domain.EntityKey) {
	if uc.repo == nil {
		return
	}
	st, ok := uc.store.Lookup(key)
	if !ok {
		return
	}

	st.Lock()
	if !st.Config.ShouldSaveData {
		st.Unlock()
		return
	}
	snap := st.Snapshot()
	st.Unlock()

	uc.Store(ctx, &snap)
}

// Store writes a snapshot regardless of the entity's save flag
func (uc *PersistenceUsecase) Store(ctx context.Context, snap *domain.Snapshot) {
	if uc.repo == nil {
		return
	}
	if err := uc.repo.SaveEntity(ctx, snap); err != nil {
		uc.logger.Error("failed to save snapshot", zap.String("entity", snap.Key().String()), zap.Error(err))
	}
}

// RestoreAll loads every stored snapshot into the state store and returns how many were restored.
// State created before the restore ran is overwritten.
func (uc *PersistenceUsecase) RestoreAll(ctx context.Context) int {
	if uc.repo == nil {
		return 0
	}
	snaps, err := uc.repo.LoadEntities(ctx)
	if err != nil {
		uc.logger.Error("failed to load snapshots", zap.Error(err))
		return 0
	}

	for _, snap := range snaps {
		st := uc.store.Resolve(snap.Key())
		st.Lock()
		st.Restore(*snap)
		st.Unlock()
	}
	uc.logger.Info("restored entities", zap.Int("count", len(snaps)))
	return len(snaps)
}

// Shutdown snapshots every entity whose save flag is on
func (uc *PersistenceUsecase) Shutdown(ctx context.Context) {
	for _, key := range uc.store.Keys() {
		uc.Snapshot(ctx, key)
	}
}

// SaveReminders stores the global reminder collection
func (uc *PersistenceUsecase) SaveReminders(ctx context.Context, reminders []*domain.Reminder) {
	if uc.repo == nil {
		return
	}
	if err := uc.repo.SaveReminders(ctx, reminders); err != nil {
		uc.logger.Error("failed to save reminders", zap.Int("count", len(reminders)), zap.Error(err))
	}
}

// LoadReminders loads the global reminder collection, empty on failure
func (uc *PersistenceUsecase) LoadReminders(ctx context.Context) []*domain.Reminder {
	if uc.repo == nil {
		return nil
	}
	reminders, err := uc.repo.LoadReminders(ctx)
	if err != nil {
		uc.logger.Error("failed to load reminders", zap.Error(err))
		return nil
	}
	return reminders
}

package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
)

func TestPersistence_ShutdownSavesFlaggedOnly(t *testing.T) {
	store := newMockStateStore()
	snapRepo := newMockSnapshotRepo()
	uc := NewPersistenceUsecase(store, snapRepo, zapNop())

	saved := domain.GroupKey("g1")
	skipped := domain.GroupKey("g2")
	store.Resolve(saved).Config.ShouldSaveData = true
	store.Resolve(skipped)

	uc.Shutdown(context.Background())

	if _, ok := snapRepo.entities[saved]; !ok {
		t.Error("Expected flagged entity saved")
	}
	if _, ok := snapRepo.entities[skipped]; ok {
		t.Error("Expected unflagged entity skipped")
	}
}

func TestPersistence_RestoreAll(t *testing.T) {
	snapRepo := newMockSnapshotRepo()
	key := domain.PrivateKey("u1")

	src := newMockStateStore()
	st := src.Resolve(key)
	st.Config.ShouldSaveData = true
	st.Config.Temperature = 0.2
	st.Log.Append(domain.UserMessage("remember me"), 30)
	NewPersistenceUsecase(src, snapRepo, zapNop()).Snapshot(context.Background(), key)

	dst := newMockStateStore()
	// state created by an early message before restore is overwritten
	dst.Resolve(key).Log.Append(domain.UserMessage("early"), 30)

	if n := NewPersistenceUsecase(dst, snapRepo, zapNop()).RestoreAll(context.Background()); n != 1 {
		t.Fatalf("Expected 1 restored entity, got %d", n)
	}
	restored := dst.Resolve(key)
	if restored.Config.Temperature != 0.2 {
		t.Errorf("Expected temperature 0.2, got %v", restored.Config.Temperature)
	}
	if entries := restored.Log.Entries(); len(entries) != 1 || entries[0].Text != "remember me" {
		t.Errorf("Unexpected restored log: %+v", entries)
	}
}

func TestPersistence_FailuresAreSwallowed(t *testing.T) {
	store := newMockStateStore()
	snapRepo := newMockSnapshotRepo()
	snapRepo.err = errors.New("disk full")
	uc := NewPersistenceUsecase(store, snapRepo, zapNop())

	key := domain.GroupKey("g1")
	store.Resolve(key).Config.ShouldSaveData = true

	uc.Snapshot(context.Background(), key)
	if n := uc.RestoreAll(context.Background()); n != 0 {
		t.Errorf("Expected 0 restored on failure, got %d", n)
	}
	if got := uc.LoadReminders(context.Background()); got != nil {
		t.Errorf("Expected nil reminders on failure, got %v", got)
	}
}

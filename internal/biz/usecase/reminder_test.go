package usecase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReminder_Lifecycle(t *testing.T) {
	snapRepo := newMockSnapshotRepo()
	persist := NewPersistenceUsecase(newMockStateStore(), snapRepo, zapNop())
	uc := NewReminderUsecase(persist, zapNop())

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return now }
	at := now.Add(time.Hour)

	r, err := uc.Add(context.Background(), ReminderRequest{OwnerID: "u1", ChannelID: "c1", Content: "tea", TriggerAt: at})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if r.ID == "" {
		t.Error("Expected an id")
	}
	if len(snapRepo.reminders) != 1 {
		t.Errorf("Expected reminder persisted, got %d", len(snapRepo.reminders))
	}

	if due := uc.Due(context.Background(), at.Add(-time.Second)); len(due) != 0 {
		t.Errorf("Expected nothing due before trigger time, got %d", len(due))
	}

	due := uc.Due(context.Background(), at)
	if len(due) != 1 || due[0].ID != r.ID {
		t.Fatalf("Expected the reminder due, got %+v", due)
	}
	if again := uc.Due(context.Background(), at.Add(time.Minute)); len(again) != 0 {
		t.Errorf("Expected no redelivery, got %d", len(again))
	}
	if len(uc.List("")) != 0 {
		t.Error("Expected collection empty after firing")
	}
	if len(snapRepo.reminders) != 0 {
		t.Error("Expected removal persisted")
	}
}

func TestReminder_Validation(t *testing.T) {
	uc := NewReminderUsecase(nil, zapNop())
	now := time.Now()

	tests := []struct {
		name string
		req  ReminderRequest
	}{
		{"empty content", ReminderRequest{OwnerID: "u1", ChannelID: "c1", Content: "  ", TriggerAt: now.Add(time.Hour)}},
		{"past", ReminderRequest{OwnerID: "u1", ChannelID: "c1", Content: "x", TriggerAt: now.Add(-time.Hour)}},
		{"no channel", ReminderRequest{OwnerID: "u1", Content: "x", TriggerAt: now.Add(time.Hour)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := uc.Add(context.Background(), tt.req); !errors.Is(err, ErrInvalidReminder) {
				t.Errorf("Expected ErrInvalidReminder, got %v", err)
			}
		})
	}
}

func TestReminder_CancelOwnedOnly(t *testing.T) {
	uc := NewReminderUsecase(nil, zapNop())
	r, err := uc.Add(context.Background(), ReminderRequest{OwnerID: "u1", ChannelID: "c1", Content: "x", TriggerAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := uc.Cancel(context.Background(), r.ID, "u2"); !errors.Is(err, ErrReminderNotFound) {
		t.Errorf("Expected ErrReminderNotFound for another owner, got %v", err)
	}
	if err := uc.Cancel(context.Background(), r.ID, "u1"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if len(uc.List("u1")) != 0 {
		t.Error("Expected reminder removed")
	}
}

func TestReminder_Restore(t *testing.T) {
	snapRepo := newMockSnapshotRepo()
	persist := NewPersistenceUsecase(newMockStateStore(), snapRepo, zapNop())

	first := NewReminderUsecase(persist, zapNop())
	at := time.Now().Add(time.Hour)
	if _, err := first.Add(context.Background(), ReminderRequest{OwnerID: "u1", ChannelID: "c1", Content: "x", TriggerAt: at}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	second := NewReminderUsecase(persist, zapNop())
	if n := second.Restore(context.Background()); n != 1 {
		t.Fatalf("Expected 1 restored reminder, got %d", n)
	}
	if got := second.List("u1"); len(got) != 1 || !got[0].TriggerAt.Equal(at) {
		t.Errorf("Unexpected restored reminders: %+v", got)
	}
}

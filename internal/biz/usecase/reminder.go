package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
)

// ReminderRequest is the input of ReminderUsecase.Add
type ReminderRequest struct {
	OwnerID   string
	ChannelID string
	GroupID   string
	Content   string
	TriggerAt time.Time
	Private   bool
}

// ReminderUsecase owns the global reminder collection.
// The command path and the scheduler sweep both go through its lock.
type ReminderUsecase struct {
	mu        sync.Mutex
	reminders map[string]*domain.Reminder
	saveMu    sync.Mutex

	persist *PersistenceUsecase
	now     func() time.Time
	logger  *zap.Logger
}

// NewReminderUsecase creates a new reminder usecase
func NewReminderUsecase(persist *PersistenceUsecase, logger *zap.Logger) *ReminderUsecase {
	return &ReminderUsecase{
		reminders: make(map[string]*domain.Reminder),
		persist:   persist,
		now:       time.Now,
		logger:    logger.Named("reminder"),
	}
}

// Restore loads the persisted collection, replacing what is in memory
func (uc *ReminderUsecase) Restore(ctx context.Context) int {
	if uc.persist == nil {
		return 0
	}
	loaded := uc.persist.LoadReminders(ctx)

	uc.mu.Lock()
	uc.reminders = make(map[string]*domain.Reminder, len(loaded))
	for _, r := range loaded {
		uc.reminders[r.ID] = r
	}
	uc.mu.Unlock()
	return len(loaded)
}

// Add creates a reminder with a fresh id
func (uc *ReminderUsecase) Add(ctx context.Context, req ReminderRequest) (*domain.Reminder, error) {
	now := uc.now()
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content must not be empty", ErrInvalidReminder)
	}
	if req.OwnerID == "" || req.ChannelID == "" {
		return nil, fmt.Errorf("%w: owner and channel are required", ErrInvalidReminder)
	}
	if !req.TriggerAt.After(now) {
		return nil, fmt.Errorf("%w: trigger time must be in the future", ErrInvalidReminder)
	}

	r := &domain.Reminder{
		ID:        uuid.NewString(),
		OwnerID:   req.OwnerID,
		ChannelID: req.ChannelID,
		GroupID:   req.GroupID,
		Content:   req.Content,
		TriggerAt: req.TriggerAt,
		Private:   req.Private,
		CreatedAt: now,
	}

	uc.mu.Lock()
	uc.reminders[r.ID] = r
	uc.mu.Unlock()

	uc.logger.Info("reminder added", zap.String("id", r.ID), zap.Time("trigger_at", r.TriggerAt))
	uc.save(ctx)
	return r, nil
}

// Cancel removes a reminder owned by ownerID
func (uc *ReminderUsecase) Cancel(ctx context.Context, id, ownerID string) error {
	uc.mu.Lock()
	r, ok := uc.reminders[id]
	if !ok || r.OwnerID != ownerID {
		uc.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrReminderNotFound, id)
	}
	delete(uc.reminders, id)
	uc.mu.Unlock()

	uc.logger.Info("reminder cancelled", zap.String("id", id))
	uc.save(ctx)
	return nil
}

// List returns the reminders of an owner sorted by trigger time; an empty owner lists all
func (uc *ReminderUsecase) List(ownerID string) []*domain.Reminder {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.listLocked(ownerID)
}

// Due removes and returns every reminder due at now, so each fires once
func (uc *ReminderUsecase) Due(ctx context.Context, now time.Time) []*domain.Reminder {
	uc.mu.Lock()
	var due []*domain.Reminder
	for id, r := range uc.reminders {
		if r.IsDue(now) {
			due = append(due, r)
			delete(uc.reminders, id)
		}
	}
	uc.mu.Unlock()
	if len(due) == 0 {
		return nil
	}

	sortReminders(due)
	uc.save(ctx)
	return due
}

// Persist stores the current collection
func (uc *ReminderUsecase) Persist(ctx context.Context) {
	uc.save(ctx)
}

func (uc *ReminderUsecase) listLocked(ownerID string) []*domain.Reminder {
	out := make([]*domain.Reminder, 0, len(uc.reminders))
	for _, r := range uc.reminders {
		if ownerID == "" || r.OwnerID == ownerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortReminders(out)
	return out
}

// save writes the collection as it is now; saveMu keeps an older write from landing last
func (uc *ReminderUsecase) save(ctx context.Context) {
	if uc.persist == nil {
		return
	}
	uc.saveMu.Lock()
	defer uc.saveMu.Unlock()
	uc.persist.SaveReminders(ctx, uc.List(""))
}

func sortReminders(rs []*domain.Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].TriggerAt.Equal(rs[j].TriggerAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].TriggerAt.Before(rs[j].TriggerAt)
	})
}

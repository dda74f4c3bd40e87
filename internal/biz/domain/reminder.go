package domain

import "time"

// Reminder is a user-owned scheduled message. Reminders are global, not per entity.
type Reminder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	ChannelID string    `json:"channel_id"`
	GroupID   string    `json:"group_id,omitempty"` // empty for reminders set in a private conversation
	Content   string    `json:"content"`
	TriggerAt time.Time `json:"trigger_at"`
	Private   bool      `json:"private"`
	// RecurEvery is reserved; reminders fire once
	RecurEvery time.Duration `json:"recur_every,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// EntityKey returns the conversation whose persona frames the reminder
func (r *Reminder) EntityKey() EntityKey {
	if r.GroupID == "" || r.Private {
		return PrivateKey(r.OwnerID)
	}
	return GroupKey(r.GroupID)
}

// IsDue checks if the reminder should fire at now
func (r *Reminder) IsDue(now time.Time) bool {
	return !r.TriggerAt.After(now)
}

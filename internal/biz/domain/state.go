package domain

import (
	"sync"
	"time"
)

// EntityState is the aggregate of everything kept for one entity.
// All fields are guarded by the state's lock; callers Lock before reading or writing.
type EntityState struct {
	mu sync.Mutex

	Key           EntityKey
	Config        EntityConfig
	Log           MessageLog
	CustomPrompt  string
	Learning      *LearningTracker
	Reactions     ReactionTracker
	LastActivity  time.Time
	HomeChannel   string // last channel a message arrived in, used for background posts
	CommentaryURL string
	UpdatedAt     time.Time

	buffer     []ChatMessage
	flushTimer *time.Timer
	flushSeq   uint64
}

// NewEntityState creates state with default settings
func NewEntityState(key EntityKey, now time.Time) *EntityState {
	return &EntityState{
		Key:          key,
		Config:       DefaultConfig(),
		Learning:     NewLearningTracker(),
		LastActivity: now,
		UpdatedAt:    now,
	}
}

// Lock acquires the entity's single-writer lock
func (s *EntityState) Lock() { s.mu.Lock() }

// Unlock releases the entity's lock
func (s *EntityState) Unlock() { s.mu.Unlock() }

// ========== Buffer ==========

// AppendBuffer adds an entry to the current burst
func (s *EntityState) AppendBuffer(msg ChatMessage) {
	s.buffer = append(s.buffer, msg)
}

// Buffer returns a copy of the current burst in arrival order
func (s *EntityState) Buffer() []ChatMessage {
	out := make([]ChatMessage, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// BufferLen returns the number of buffered entries
func (s *EntityState) BufferLen() int {
	return len(s.buffer)
}

// ConsumeBuffer drops the first n entries, the ones a finished generation used.
// Entries that arrived while generating stay for the next burst.
func (s *EntityState) ConsumeBuffer(n int) {
	if n >= len(s.buffer) {
		s.buffer = nil
		return
	}
	if n <= 0 {
		return
	}
	rest := make([]ChatMessage, len(s.buffer)-n)
	copy(rest, s.buffer[n:])
	s.buffer = rest
}

// ClearBuffer empties the burst and cancels any pending flush
func (s *EntityState) ClearBuffer() {
	s.buffer = nil
	s.CancelFlush()
}

// ========== Flush timer ==========

// ScheduleFlush cancels any pending flush and arms a new one.
// fire receives the sequence number of its arming so a superseded fire can be detected.
func (s *EntityState) ScheduleFlush(delay time.Duration, fire func(seq uint64)) uint64 {
	s.CancelFlush()
	s.flushSeq++
	seq := s.flushSeq
	s.flushTimer = time.AfterFunc(delay, func() { fire(seq) })
	return seq
}

// CancelFlush stops the pending flush, if any
func (s *EntityState) CancelFlush() {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
}

// ClaimFlush reports whether seq is still the pending flush and, if so, clears the handle
func (s *EntityState) ClaimFlush(seq uint64) bool {
	if s.flushTimer == nil || s.flushSeq != seq {
		return false
	}
	s.flushTimer = nil
	return true
}

// HasPendingFlush checks if a flush timer is armed
func (s *EntityState) HasPendingFlush() bool {
	return s.flushTimer != nil
}

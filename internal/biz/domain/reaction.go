package domain

import "time"

// ReactionCapacity is the number of reactions a tracker keeps
const ReactionCapacity = 5

// ReactionSnippetLen caps the source text stored with a reaction
const ReactionSnippetLen = 100

// Reaction is one emoji the assistant placed on a message
type Reaction struct {
	Emoji     string    `json:"emoji"`
	At        time.Time `json:"at"`
	Snippet   string    `json:"snippet"`
	ChannelID string    `json:"channel_id"`
}

// ReactionTracker keeps the most recent reactions, newest first
type ReactionTracker struct {
	items []Reaction
}

// Add inserts a reaction at the front, evicting the oldest past capacity
func (t *ReactionTracker) Add(r Reaction) {
	r.Snippet = truncateRunes(r.Snippet, ReactionSnippetLen)
	t.items = append([]Reaction{r}, t.items...)
	if len(t.items) > ReactionCapacity {
		t.items = t.items[:ReactionCapacity]
	}
}

// Recent returns a copy of the tracked reactions, newest first
func (t *ReactionTracker) Recent() []Reaction {
	out := make([]Reaction, len(t.items))
	copy(out, t.items)
	return out
}

// Replace swaps the contents, used when restoring a snapshot
func (t *ReactionTracker) Replace(items []Reaction) {
	t.items = nil
	for i := len(items) - 1; i >= 0; i-- {
		t.Add(items[i])
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

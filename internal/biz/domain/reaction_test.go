package domain

import (
	"strings"
	"testing"
	"time"
)

func TestReactionTracker_Eviction(t *testing.T) {
	var tracker ReactionTracker
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	emojis := []string{"1", "2", "3", "4", "5", "6", "7"}
	for i, e := range emojis {
		tracker.Add(Reaction{Emoji: e, At: base.Add(time.Duration(i) * time.Minute)})
	}

	recent := tracker.Recent()
	if len(recent) != ReactionCapacity {
		t.Fatalf("Expected %d reactions, got %d", ReactionCapacity, len(recent))
	}
	want := []string{"7", "6", "5", "4", "3"}
	for i, r := range recent {
		if r.Emoji != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], r.Emoji)
		}
	}
}

func TestReactionTracker_TruncatesSnippet(t *testing.T) {
	var tracker ReactionTracker
	tracker.Add(Reaction{Emoji: "x", Snippet: strings.Repeat("é", 150)})

	got := tracker.Recent()[0].Snippet
	if n := len([]rune(got)); n != ReactionSnippetLen {
		t.Errorf("Expected snippet of %d runes, got %d", ReactionSnippetLen, n)
	}
}

func TestReactionTracker_ReplaceKeepsOrder(t *testing.T) {
	var tracker ReactionTracker
	tracker.Replace([]Reaction{{Emoji: "new"}, {Emoji: "mid"}, {Emoji: "old"}})

	recent := tracker.Recent()
	if len(recent) != 3 || recent[0].Emoji != "new" || recent[2].Emoji != "old" {
		t.Errorf("Unexpected order after Replace: %+v", recent)
	}
}

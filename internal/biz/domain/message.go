package domain

// Role is the author side of a conversation entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one conversation entry
type ChatMessage struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UserMessage builds a user-role entry
func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleUser, Text: text}
}

// AssistantMessage builds an assistant-role entry
func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Text: text}
}

// MessageLog is the rolling transcript of an entity.
// After every append its length never exceeds the limit passed in; the oldest entries go first.
type MessageLog struct {
	entries []ChatMessage
}

// Append adds a message and evicts from the front until len <= limit
func (l *MessageLog) Append(msg ChatMessage, limit int) {
	l.entries = append(l.entries, msg)
	l.Trim(limit)
}

// Trim drops the oldest entries so that at most limit remain
func (l *MessageLog) Trim(limit int) {
	if limit < 0 {
		limit = 0
	}
	if over := len(l.entries) - limit; over > 0 {
		kept := make([]ChatMessage, limit)
		copy(kept, l.entries[over:])
		l.entries = kept
	}
}

// Clear empties the log
func (l *MessageLog) Clear() {
	l.entries = nil
}

// Len returns the number of retained entries
func (l *MessageLog) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the retained entries, oldest first
func (l *MessageLog) Entries() []ChatMessage {
	out := make([]ChatMessage, len(l.entries))
	copy(out, l.entries)
	return out
}

// Recent returns a copy of at most n newest entries, oldest first
func (l *MessageLog) Recent(n int) []ChatMessage {
	if n <= 0 {
		return nil
	}
	start := len(l.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]ChatMessage, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Replace swaps the contents, used when restoring a snapshot
func (l *MessageLog) Replace(entries []ChatMessage, limit int) {
	l.entries = append([]ChatMessage(nil), entries...)
	l.Trim(limit)
}

package repo

import (
	"context"
)

// HistoryMessage is one message fetched from a channel
type HistoryMessage struct {
	ID       string
	AuthorID string
	Author   string
	Content  string
	IsBot    bool
}

// MessengerRepo is the messaging platform client
type MessengerRepo interface {
	// SendText sends a text message to a channel or user
	SendText(ctx context.Context, channelID, text string) error

	// SendAudio uploads an audio file to a channel
	SendAudio(ctx context.Context, channelID, filename string, audio []byte) error

	// AddReaction adds an emoji reaction to a message
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error

	// FetchHistory gets recent messages of a channel, oldest first
	FetchHistory(ctx context.Context, channelID string, limit int) ([]HistoryMessage, error)

	// ResolveChannel finds a channel id by name within a group
	ResolveChannel(ctx context.Context, groupID, name string) (string, error)
}

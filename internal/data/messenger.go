package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
	"github.com/0x70b1a5/jeevespt/internal/infra/discord"
	"github.com/0x70b1a5/jeevespt/internal/infra/feishu"
)

// ========== Discord ==========

// DiscordAPI is the part of the Discord client the messenger uses
type DiscordAPI interface {
	SendText(ctx context.Context, channelID, text string) error
	SendFile(ctx context.Context, channelID, filename string, data []byte) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	GetChannelHistory(ctx context.Context, channelID string, limit int) ([]*discord.HistoryMessage, error)
	FindChannel(ctx context.Context, guildID, name string) (string, error)
}

// discordMessenger implements the messenger repository for Discord
type discordMessenger struct {
	client DiscordAPI
}

// NewDiscordMessenger creates a Discord messenger
func NewDiscordMessenger(client DiscordAPI) repo.MessengerRepo {
	return &discordMessenger{client: client}
}

func (m *discordMessenger) SendText(ctx context.Context, channelID, text string) error {
	return m.client.SendText(ctx, channelID, text)
}

func (m *discordMessenger) SendAudio(ctx context.Context, channelID, filename string, audio []byte) error {
	return m.client.SendFile(ctx, channelID, filename, audio)
}

func (m *discordMessenger) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return m.client.AddReaction(ctx, channelID, messageID, emoji)
}

func (m *discordMessenger) FetchHistory(ctx context.Context, channelID string, limit int) ([]repo.HistoryMessage, error) {
	msgs, err := m.client.GetChannelHistory(ctx, channelID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]repo.HistoryMessage, 0, len(msgs))
	for _, h := range msgs {
		out = append(out, repo.HistoryMessage{
			ID:       h.MsgID,
			AuthorID: h.AuthorID,
			Author:   h.AuthorName,
			Content:  h.Content,
			IsBot:    h.IsBot,
		})
	}
	return out, nil
}

func (m *discordMessenger) ResolveChannel(ctx context.Context, groupID, name string) (string, error) {
	if groupID == "" {
		return "", fmt.Errorf("channel names only resolve inside a server")
	}
	return m.client.FindChannel(ctx, groupID, name)
}

// ========== Feishu ==========

// FeishuAPI is the part of the Feishu client the messenger uses
type FeishuAPI interface {
	SendText(ctx context.Context, chatID, text string) error
	SendFile(ctx context.Context, chatID, filename string, data []byte) error
	AddReaction(ctx context.Context, messageID, emojiType string) error
	GetChatHistory(ctx context.Context, chatID string, pageSize int) ([]*feishu.HistoryMessage, error)
	ListChats(ctx context.Context) ([]*feishu.ChatInfo, error)
}

// feishuMessenger implements the messenger repository for Feishu
type feishuMessenger struct {
	client FeishuAPI
}

// NewFeishuMessenger creates a Feishu messenger
func NewFeishuMessenger(client FeishuAPI) repo.MessengerRepo {
	return &feishuMessenger{client: client}
}

func (m *feishuMessenger) SendText(ctx context.Context, chatID, text string) error {
	return m.client.SendText(ctx, chatID, text)
}

func (m *feishuMessenger) SendAudio(ctx context.Context, chatID, filename string, audio []byte) error {
	return m.client.SendFile(ctx, chatID, filename, audio)
}

// AddReaction maps the emoji to a Feishu reaction type; unknown emoji fall back to a thumbs up
func (m *feishuMessenger) AddReaction(ctx context.Context, chatID, messageID, emoji string) error {
	return m.client.AddReaction(ctx, messageID, FeishuEmojiType(emoji))
}

func (m *feishuMessenger) FetchHistory(ctx context.Context, chatID string, limit int) ([]repo.HistoryMessage, error) {
	msgs, err := m.client.GetChatHistory(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]repo.HistoryMessage, 0, len(msgs))
	for _, h := range msgs {
		msg := repo.HistoryMessage{ID: h.MsgID, Content: h.Content}
		if h.Sender != nil {
			msg.AuthorID = h.Sender.SenderID
			msg.IsBot = h.Sender.SenderType == "app"
		}
		if msg.Content == "" {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// ResolveChannel finds a chat by name. A Feishu group is a single chat,
// so an empty name resolves to the group itself.
func (m *feishuMessenger) ResolveChannel(ctx context.Context, groupID, name string) (string, error) {
	name = strings.TrimSpace(strings.TrimPrefix(name, "#"))
	if name == "" {
		if groupID == "" {
			return "", fmt.Errorf("no chat to resolve")
		}
		return groupID, nil
	}

	chats, err := m.client.ListChats(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range chats {
		if strings.EqualFold(c.Name, name) {
			return c.ChatID, nil
		}
	}
	return "", fmt.Errorf("chat %q not found", name)
}

var feishuEmoji = map[string]string{
	"👍": "THUMBSUP",
	"👎": "ThumbsDown",
	"👏": "APPLAUSE",
	"😂": "LAUGH",
	"🤣": "LAUGH",
	"😊": "SMILE",
	"🙂": "SMILE",
	"😮": "WOW",
	"😢": "CRY",
	"😭": "CRY",
	"😡": "ANGRY",
	"❤️": "HEART",
	"❤": "HEART",
	"🔥": "Fire",
	"🎉": "PARTY",
	"💪": "MUSCLE",
	"🙏": "THANKS",
	"🤔": "THINKING",
	"👌": "OK",
	"✅": "DONE",
	"😎": "COOL",
	"🥳": "PARTY",
	"💯": "Hundred",
}

// FeishuEmojiType maps a unicode emoji to a Feishu reaction type
func FeishuEmojiType(emoji string) string {
	if t, ok := feishuEmoji[emoji]; ok {
		return t
	}
	return "THUMBSUP"
}

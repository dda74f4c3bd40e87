package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// MaxMessageLength is Discord's per-message character limit
const MaxMessageLength = 2000

// Attachment is a file attached to a received message
type Attachment struct {
	URL         string
	Filename    string
	ContentType string
	Size        int
}

// IsAudio reports whether the attachment looks like an audio clip
func (a Attachment) IsAudio() bool {
	if strings.HasPrefix(a.ContentType, "audio/") {
		return true
	}
	name := strings.ToLower(a.Filename)
	for _, ext := range []string{".mp3", ".ogg", ".oga", ".wav", ".m4a", ".webm", ".flac"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Message represents a received Discord message
type Message struct {
	GuildID     string // empty for direct messages
	ChannelID   string
	MsgID       string
	AuthorID    string
	AuthorName  string
	Content     string
	MentionsBot bool // mentioned directly or replied to
	Attachments []Attachment
}

// IsDM reports whether the message arrived in a direct message channel
func (m *Message) IsDM() bool {
	return m.GuildID == ""
}

// HistoryMessage represents a message from channel history
type HistoryMessage struct {
	MsgID      string
	AuthorID   string
	AuthorName string
	Content    string
	IsBot      bool
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Discord gateway client
type Client struct {
	token      string
	session    *discordgo.Session
	onMessage  MessageHandler
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Discord client
func NewClient(token string, logger *zap.Logger) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Named("discord"),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Start opens the gateway connection
func (c *Client) Start(ctx context.Context) error {
	if c.token == "" {
		return fmt.Errorf("discord bot token is required")
	}

	session, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	session.AddHandler(c.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	c.session = session

	user := session.State.User
	c.logger.Info("connected", zap.String("bot", user.Username), zap.String("id", user.ID))
	return nil
}

// Stop closes the gateway connection
func (c *Client) Stop() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.logger.Warn("failed to close session", zap.Error(err))
	}
	c.logger.Info("disconnected")
}

// BotID returns the bot's own user id
func (c *Client) BotID() string {
	if c.session == nil || c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}

func (c *Client) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}

	msg := &Message{
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		MsgID:      m.ID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		Content:    m.ContentWithMentionsReplaced(),
	}

	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			msg.MentionsBot = true
		}
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil && ref.Author.ID == s.State.User.ID {
		msg.MentionsBot = true
	}

	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, Attachment{
			URL:         att.URL,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}

	c.logger.Debug("message received",
		zap.String("guild_id", msg.GuildID),
		zap.String("channel_id", msg.ChannelID),
		zap.Int("attachments", len(msg.Attachments)),
		zap.Bool("mentions_bot", msg.MentionsBot),
	)

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// SendText sends text to a channel, split into chunks under the length limit
func (c *Client) SendText(ctx context.Context, channelID, text string) error {
	if c.session == nil {
		return fmt.Errorf("discord session not connected")
	}
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		if _, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: chunk},
			discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send message failed: %w", err)
		}
	}
	return nil
}

// SendFile posts a file attachment to a channel
func (c *Client) SendFile(ctx context.Context, channelID, filename string, data []byte) error {
	if c.session == nil {
		return fmt.Errorf("discord session not connected")
	}
	msg := &discordgo.MessageSend{
		Files: []*discordgo.File{{Name: filename, Reader: bytes.NewReader(data)}},
	}
	if _, err := c.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send file failed: %w", err)
	}
	return nil
}

// AddReaction adds an emoji reaction to a message
func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if c.session == nil {
		return fmt.Errorf("discord session not connected")
	}
	if err := c.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add reaction failed: %w", err)
	}
	return nil
}

// GetChannelHistory returns up to limit recent messages, oldest first
func (c *Client) GetChannelHistory(ctx context.Context, channelID string, limit int) ([]*HistoryMessage, error) {
	if c.session == nil {
		return nil, fmt.Errorf("discord session not connected")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	items, err := c.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get channel history failed: %w", err)
	}

	// Discord returns newest first
	messages := make([]*HistoryMessage, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		m := items[i]
		h := &HistoryMessage{MsgID: m.ID, Content: m.Content}
		if m.Author != nil {
			h.AuthorID = m.Author.ID
			h.AuthorName = m.Author.Username
			h.IsBot = m.Author.Bot
		}
		messages = append(messages, h)
	}
	return messages, nil
}

// FindChannel returns the id of the guild text channel with the given name
func (c *Client) FindChannel(ctx context.Context, guildID, name string) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("discord session not connected")
	}
	channels, err := c.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("list guild channels failed: %w", err)
	}
	name = strings.TrimPrefix(strings.ToLower(name), "#")
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && strings.ToLower(ch.Name) == name {
			return ch.ID, nil
		}
	}
	return "", fmt.Errorf("channel %q not found in guild %s", name, guildID)
}

// Download fetches an attachment's bytes
func (c *Client) Download(ctx context.Context, att Attachment) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("download attachment: http status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return data, nil
}

// SplitMessage breaks text into chunks of at most limit runes,
// preferring to cut at a newline and then at a space
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		window := string(runes[:limit])
		if i := strings.LastIndex(window, "\n"); i > 0 {
			cut = len([]rune(window[:i]))
		} else if i := strings.LastIndex(window, " "); i > 0 {
			cut = len([]rune(window[:i]))
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), " \n"))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \n"))
	}
	if rest := strings.TrimRight(string(runes), " \n"); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

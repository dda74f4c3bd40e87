package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

const openAPIBase = "https://open.feishu.cn/open-apis"

// Chat types reported by Feishu
const (
	ChatTypeP2P   = "p2p"
	ChatTypeGroup = "group"
)

// Message represents a received Feishu message
type Message struct {
	ChatID      string
	MsgID       string
	MsgType     string // text, post, audio
	ChatType    string // p2p (private), group
	Content     string // Text content, empty for audio
	FileKey     string // Audio resource key
	Sender      *Sender
	MentionMap  map[string]string // Map from mention key (@_user_1) to real name
	MentionsBot bool
	CreateTime  int64 // Milliseconds Unix timestamp
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id
	SenderType string // user, app
	TenantKey  string
}

// ChatInfo represents information about a chat
type ChatInfo struct {
	ChatID string
	Name   string
}

// HistoryMessage represents a message from chat history
type HistoryMessage struct {
	MsgID      string
	MsgType    string
	Content    string
	CreateTime string
	Sender     *Sender
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMessage MessageHandler
	botOpenID string
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger *zap.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		logger:    logger.Named("feishu"),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// BotOpenID returns the bot's own open_id, empty until Start has fetched it
func (c *Client) BotOpenID() string {
	return c.botOpenID
}

// Start connects to Feishu via WebSocket and blocks until ctx is done
func (c *Client) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.fetchBotOpenID(c.ctx); err != nil {
		c.logger.Warn("failed to fetch bot open_id", zap.Error(err))
	}

	// The handler must return quickly so the SDK can ACK before Feishu retries
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("starting websocket connection")
	return c.wsCli.Start(c.ctx)
}

// fetchBotOpenID reads the bot's open_id so mentions of it can be detected
func (c *Client) fetchBotOpenID(ctx context.Context) error {
	tokenReq, _ := json.Marshal(map[string]string{"app_id": c.appID, "app_secret": c.appSecret})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		openAPIBase+"/auth/v3/tenant_access_token/internal", bytes.NewReader(tokenReq))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	tokenResp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	defer tokenResp.Body.Close()

	var tokenResult struct {
		Code              int    `json:"code"`
		TenantAccessToken string `json:"tenant_access_token"`
	}
	if err := json.NewDecoder(tokenResp.Body).Decode(&tokenResult); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, openAPIBase+"/bot/v3/info", nil)
	if err != nil {
		return fmt.Errorf("build bot info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tokenResult.TenantAccessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}
	defer resp.Body.Close()

	var botResult struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&botResult); err != nil {
		return fmt.Errorf("decode bot info: %w", err)
	}
	if botResult.Code != 0 {
		return fmt.Errorf("API error: %s", botResult.Msg)
	}

	c.botOpenID = botResult.Bot.OpenID
	c.logger.Info("bot identity loaded", zap.String("open_id", c.botOpenID), zap.String("name", botResult.Bot.AppName))
	return nil
}

// Stop disconnects from Feishu
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// handleMessage processes incoming Feishu messages
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	if event.Event == nil || event.Event.Message == nil {
		return
	}
	rawMsg := event.Event.Message

	// Ignore the bot's own messages
	if event.Event.Sender != nil && event.Event.Sender.SenderType != nil && *event.Event.Sender.SenderType == "app" {
		return
	}

	msg := &Message{
		ChatID:     larkcore.StringValue(rawMsg.ChatId),
		MsgID:      larkcore.StringValue(rawMsg.MessageId),
		MsgType:    larkcore.StringValue(rawMsg.MessageType),
		ChatType:   larkcore.StringValue(rawMsg.ChatType),
		MentionMap: make(map[string]string),
	}
	if ts, err := strconv.ParseInt(larkcore.StringValue(rawMsg.CreateTime), 10, 64); err == nil {
		msg.CreateTime = ts
	}

	if sender := event.Event.Sender; sender != nil {
		msg.Sender = &Sender{
			SenderType: larkcore.StringValue(sender.SenderType),
			TenantKey:  larkcore.StringValue(sender.TenantKey),
		}
		if sender.SenderId != nil {
			msg.Sender.SenderID = larkcore.StringValue(sender.SenderId.OpenId)
		}
	}

	for _, mention := range rawMsg.Mentions {
		if mention.Id != nil && mention.Id.OpenId != nil && *mention.Id.OpenId == c.botOpenID {
			msg.MentionsBot = true
		}
		if mention.Key != nil && mention.Name != nil {
			msg.MentionMap[*mention.Key] = *mention.Name
		}
	}

	content := larkcore.StringValue(rawMsg.Content)
	switch msg.MsgType {
	case larkim.MsgTypeText:
		msg.Content = parseTextContent(content, msg.MentionMap)
	case larkim.MsgTypePost:
		msg.Content = parsePostContent(content, msg.MentionMap)
	case larkim.MsgTypeAudio:
		msg.FileKey = parseFileKey(content)
		if msg.FileKey == "" {
			c.logger.Warn("audio message without file key", zap.String("msg_id", msg.MsgID))
			return
		}
	default:
		c.logger.Debug("unsupported message type", zap.String("type", msg.MsgType))
		return
	}

	c.logger.Debug("message received",
		zap.String("type", msg.MsgType),
		zap.String("chat_type", msg.ChatType),
		zap.String("chat_id", msg.ChatID),
		zap.Bool("mentions_bot", msg.MentionsBot),
	)

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// parseTextContent extracts text from a text message, replacing mention placeholders with names
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

// parsePostContent flattens a rich text message into lines of text
func parsePostContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag    string `json:"tag"`
			Text   string `json:"text,omitempty"`
			Href   string `json:"href,omitempty"`
			UserID string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}

	var lines []string
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, line := range parsed.Content {
		var parts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				parts = append(parts, elem.Text)
			case "a":
				parts = append(parts, elem.Text+" "+elem.Href)
			case "at":
				if name, ok := mentionMap[elem.UserID]; ok {
					parts = append(parts, "@"+name)
				} else if elem.UserID != "" {
					parts = append(parts, "@"+elem.UserID)
				}
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, ""))
		}
	}
	return replaceMentions(strings.Join(lines, "\n"), mentionMap)
}

// parseFileKey reads the resource key of an audio or file message
func parseFileKey(content string) string {
	var parsed struct {
		FileKey string `json:"file_key"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return parsed.FileKey
}

// replaceMentions replaces mention placeholders (@_user_1, @_user_2, ...) with real names
func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}

// DownloadResource downloads the file attached to a message
func (c *Client) DownloadResource(ctx context.Context, messageID, fileKey string) ([]byte, string, error) {
	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(messageID).
		FileKey(fileKey).
		Type("file").
		Build()

	resp, err := c.larkCli.Im.MessageResource.Get(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get resource: %w", err)
	}
	if !resp.Success() {
		return nil, "", fmt.Errorf("get resource error: %s", resp.Msg)
	}

	data, err := io.ReadAll(resp.File)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read resource: %w", err)
	}
	name := resp.FileName
	if name == "" {
		name = fileKey + ".opus"
	}
	return data, name, nil
}

// SendText sends a text message to a chat
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	contentJSON, _ := json.Marshal(map[string]string{"text": text})
	return c.create(ctx, chatID, larkim.MsgTypeText, string(contentJSON))
}

// SendFile uploads data and posts it as a file message
func (c *Client) SendFile(ctx context.Context, chatID, filename string, data []byte) error {
	req := larkim.NewCreateFileReqBuilder().
		Body(larkim.NewCreateFileReqBodyBuilder().
			FileType(larkim.FileTypeStream).
			FileName(filename).
			File(bytes.NewReader(data)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.File.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("upload file failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("upload file error: %s", resp.Msg)
	}

	contentJSON, _ := json.Marshal(map[string]string{"file_key": larkcore.StringValue(resp.Data.FileKey)})
	return c.create(ctx, chatID, larkim.MsgTypeFile, string(contentJSON))
}

func (c *Client) create(ctx context.Context, chatID, msgType, content string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message error: %s", resp.Msg)
	}

	c.logger.Debug("message sent", zap.String("chat_id", chatID), zap.String("type", msgType))
	return nil
}

// AddReaction adds an emoji reaction to a message
func (c *Client) AddReaction(ctx context.Context, messageID, emojiType string) error {
	req := larkim.NewCreateMessageReactionReqBuilder().
		MessageId(messageID).
		Body(larkim.NewCreateMessageReactionReqBodyBuilder().
			ReactionType(larkim.NewEmojiBuilder().EmojiType(emojiType).Build()).
			Build()).
		Build()

	resp, err := c.larkCli.Im.MessageReaction.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("add reaction failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("add reaction error: %s", resp.Msg)
	}
	return nil
}

// GetChatHistory retrieves recent messages from a chat, oldest first.
// pageSize is capped at 50.
func (c *Client) GetChatHistory(ctx context.Context, chatID string, pageSize int) ([]*HistoryMessage, error) {
	if pageSize > 50 {
		pageSize = 50
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	// Feishu defaults to ascending order, which would return the oldest messages of the chat
	req := larkim.NewListMessageReqBuilder().
		ContainerIdType("chat").
		ContainerId(chatID).
		SortType("ByCreateTimeDesc").
		PageSize(pageSize).
		Build()

	resp, err := c.larkCli.Im.Message.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat history failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get chat history error: %s", resp.Msg)
	}

	var messages []*HistoryMessage
	for _, item := range resp.Data.Items {
		msg := &HistoryMessage{
			MsgID:      larkcore.StringValue(item.MessageId),
			MsgType:    larkcore.StringValue(item.MsgType),
			CreateTime: larkcore.StringValue(item.CreateTime),
		}

		mentionMap := make(map[string]string)
		for _, mention := range item.Mentions {
			if mention.Key != nil && mention.Name != nil {
				mentionMap[*mention.Key] = *mention.Name
			}
		}

		if item.Body != nil && item.Body.Content != nil {
			switch msg.MsgType {
			case larkim.MsgTypeText:
				msg.Content = parseTextContent(*item.Body.Content, mentionMap)
			case larkim.MsgTypePost:
				msg.Content = parsePostContent(*item.Body.Content, mentionMap)
			}
		}

		if item.Sender != nil {
			msg.Sender = &Sender{
				SenderID:   larkcore.StringValue(item.Sender.Id),
				SenderType: larkcore.StringValue(item.Sender.SenderType),
				TenantKey:  larkcore.StringValue(item.Sender.TenantKey),
			}
		}
		messages = append(messages, msg)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListChats returns the chats the bot belongs to
func (c *Client) ListChats(ctx context.Context) ([]*ChatInfo, error) {
	var chats []*ChatInfo
	var pageToken string

	for {
		builder := larkim.NewListChatReqBuilder().PageSize(100)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.Chat.List(ctx, builder.Build())
		if err != nil {
			return nil, fmt.Errorf("list chats failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("list chats error: %s", resp.Msg)
		}

		for _, item := range resp.Data.Items {
			chats = append(chats, &ChatInfo{
				ChatID: larkcore.StringValue(item.ChatId),
				Name:   larkcore.StringValue(item.Name),
			})
		}

		if !larkcore.BoolValue(resp.Data.HasMore) || larkcore.StringValue(resp.Data.PageToken) == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}
	return chats, nil
}

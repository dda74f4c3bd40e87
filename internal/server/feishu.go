package server

import (
	"context"

	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/infra/feishu"
)

// FeishuGateway is the part of the Feishu client the server needs
type FeishuGateway interface {
	OnMessage(handler feishu.MessageHandler)
	Start(ctx context.Context) error
	Stop()
	DownloadResource(ctx context.Context, messageID, fileKey string) ([]byte, string, error)
}

// FeishuServer handles Feishu message processing
type FeishuServer struct {
	core    *Server
	gateway FeishuGateway
	logger  *zap.Logger
	ctx     context.Context
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(core *Server, gateway FeishuGateway, logger *zap.Logger) *FeishuServer {
	return &FeishuServer{
		core:    core,
		gateway: gateway,
		logger:  logger.Named("feishu-server"),
		ctx:     context.Background(),
	}
}

// Start restores state, starts the scheduler and runs the websocket client until ctx is done
func (s *FeishuServer) Start(ctx context.Context) error {
	s.ctx = ctx
	if err := s.core.Start(ctx); err != nil {
		return err
	}

	s.gateway.OnMessage(s.handleMessage)
	return s.gateway.Start(ctx)
}

// Stop stops the client and shuts the core down
func (s *FeishuServer) Stop(ctx context.Context) {
	s.gateway.Stop()
	s.core.Stop(ctx)
}

// handleMessage handles Feishu messages
func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	in, ok := s.toInbound(msg)
	if !ok {
		return
	}

	if msg.MsgType == "audio" && msg.FileKey != "" {
		data, name, err := s.gateway.DownloadResource(s.ctx, msg.MsgID, msg.FileKey)
		if err != nil {
			s.logger.Warn("failed to download audio", zap.String("msg_id", msg.MsgID), zap.Error(err))
			return
		}
		if name == "" {
			name = msg.FileKey + ".opus"
		}
		in.Audio = &AudioClip{Filename: name, Data: data}
	}

	s.core.HandleInbound(s.ctx, in)
}

// toInbound maps a Feishu message onto an entity. Group chats share the chat's
// state, p2p chats belong to the sender.
func (s *FeishuServer) toInbound(msg *feishu.Message) (Inbound, bool) {
	senderID := ""
	if msg.Sender != nil {
		senderID = msg.Sender.SenderID
	}

	var key domain.EntityKey
	switch msg.ChatType {
	case feishu.ChatTypeGroup:
		key = domain.GroupKey(msg.ChatID)
	case feishu.ChatTypeP2P:
		if senderID == "" {
			s.logger.Warn("p2p message without sender", zap.String("msg_id", msg.MsgID))
			return Inbound{}, false
		}
		key = domain.PrivateKey(senderID)
	default:
		s.logger.Debug("unsupported chat type", zap.String("chat_type", msg.ChatType))
		return Inbound{}, false
	}

	return Inbound{
		Key:       key,
		ChannelID: msg.ChatID,
		MessageID: msg.MsgID,
		AuthorID:  senderID,
		Text:      msg.Content,
		Addressed: msg.MentionsBot || msg.ChatType == feishu.ChatTypeP2P,
	}, true
}

package server

import (
	"context"

	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/infra/discord"
)

// DiscordGateway is the part of the Discord client the server needs
type DiscordGateway interface {
	OnMessage(handler discord.MessageHandler)
	Start(ctx context.Context) error
	Stop()
	Download(ctx context.Context, att discord.Attachment) ([]byte, error)
}

// DiscordServer adapts Discord gateway events into inbound messages
type DiscordServer struct {
	core    *Server
	gateway DiscordGateway
	logger  *zap.Logger
	ctx     context.Context
}

// NewDiscordServer creates a new Discord server
func NewDiscordServer(core *Server, gateway DiscordGateway, logger *zap.Logger) *DiscordServer {
	return &DiscordServer{
		core:    core,
		gateway: gateway,
		logger:  logger.Named("discord-server"),
		ctx:     context.Background(),
	}
}

// Start restores state, starts the scheduler and opens the gateway.
// It blocks until ctx is done.
func (s *DiscordServer) Start(ctx context.Context) error {
	s.ctx = ctx
	if err := s.core.Start(ctx); err != nil {
		return err
	}

	s.gateway.OnMessage(s.handleMessage)
	if err := s.gateway.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// Stop closes the gateway and shuts the core down
func (s *DiscordServer) Stop(ctx context.Context) {
	s.gateway.Stop()
	s.core.Stop(ctx)
}

func (s *DiscordServer) handleMessage(msg *discord.Message) {
	in := s.toInbound(msg)

	for _, att := range msg.Attachments {
		if !att.IsAudio() {
			continue
		}
		data, err := s.gateway.Download(s.ctx, att)
		if err != nil {
			s.logger.Warn("failed to download attachment", zap.String("file", att.Filename), zap.Error(err))
			break
		}
		in.Audio = &AudioClip{Filename: att.Filename, Data: data}
		break
	}

	s.core.HandleInbound(s.ctx, in)
}

// toInbound maps a Discord message onto an entity. Guild messages share the
// guild's state, direct messages belong to the author.
func (s *DiscordServer) toInbound(msg *discord.Message) Inbound {
	key := domain.GroupKey(msg.GuildID)
	if msg.IsDM() {
		key = domain.PrivateKey(msg.AuthorID)
	}
	return Inbound{
		Key:       key,
		ChannelID: msg.ChannelID,
		MessageID: msg.MsgID,
		AuthorID:  msg.AuthorID,
		Text:      msg.Content,
		Addressed: msg.MentionsBot || msg.IsDM(),
	}
}

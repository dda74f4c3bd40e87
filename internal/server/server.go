package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
	"github.com/0x70b1a5/jeevespt/internal/biz/usecase"
	"github.com/0x70b1a5/jeevespt/internal/service"
)

// seenTTL is how long a message id is remembered for deduplication
const seenTTL = 5 * time.Minute

// AudioClip is an audio attachment carried by an inbound message
type AudioClip struct {
	Filename string
	Data     []byte
}

// Inbound is a platform message after the platform adapter has parsed it
type Inbound struct {
	Key       domain.EntityKey
	ChannelID string
	MessageID string
	AuthorID  string
	Text      string
	Addressed bool
	Audio     *AudioClip
}

// Server routes platform messages into the conversation core
// and owns the lifecycle of the background scheduler
type Server struct {
	store       repo.StateStore
	conv        *service.ConversationService
	scheduler   *service.Scheduler
	reminders   *usecase.ReminderUsecase
	persist     *usecase.PersistenceUsecase
	messenger   repo.MessengerRepo
	transcriber repo.TranscriberRepo
	speedHint   string
	logger      *zap.Logger

	// Message deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time
}

// NewServer creates a new server. transcriber may be nil, in which case audio is ignored.
func NewServer(
	store repo.StateStore,
	conv *service.ConversationService,
	scheduler *service.Scheduler,
	reminders *usecase.ReminderUsecase,
	persist *usecase.PersistenceUsecase,
	messenger repo.MessengerRepo,
	transcriber repo.TranscriberRepo,
	speedHint string,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:       store,
		conv:        conv,
		scheduler:   scheduler,
		reminders:   reminders,
		persist:     persist,
		messenger:   messenger,
		transcriber: transcriber,
		speedHint:   speedHint,
		logger:      logger.Named("server"),
		seenMsgs:    make(map[string]time.Time),
	}
}

// Start restores persisted state and starts the scheduler
func (s *Server) Start(ctx context.Context) error {
	entities := s.persist.RestoreAll(ctx)
	reminders := s.reminders.Restore(ctx)
	s.logger.Info("state restored", zap.Int("entities", entities), zap.Int("reminders", reminders))

	return s.scheduler.Start(ctx)
}

// Stop stops background work, then snapshots every persist-enabled entity
func (s *Server) Stop(ctx context.Context) {
	s.scheduler.Stop()
	s.conv.Close()
	s.persist.Shutdown(ctx)
	s.reminders.Persist(ctx)
	s.logger.Info("server stopped")
}

// HandleInbound processes one message from a platform adapter
func (s *Server) HandleInbound(ctx context.Context, in Inbound) {
	if in.MessageID != "" && s.checkAndMarkSeen(in.MessageID) {
		s.logger.Debug("duplicate message ignored", zap.String("msg_id", in.MessageID))
		return
	}

	if in.Audio != nil {
		transcript, ok := s.transcribe(ctx, in)
		if !ok {
			return
		}
		if s.transcriptionOnly(in.Key) {
			s.reply(ctx, in.ChannelID, transcript)
			return
		}
		in.Text = strings.TrimSpace(in.Text + "\n" + transcript)
	}

	if strings.TrimSpace(in.Text) == "" {
		return
	}

	s.conv.OnInboundMessage(ctx, service.InboundMessage{
		Key:       in.Key,
		ChannelID: in.ChannelID,
		MessageID: in.MessageID,
		AuthorID:  in.AuthorID,
		Text:      in.Text,
		Addressed: in.Addressed,
	})
}

func (s *Server) transcribe(ctx context.Context, in Inbound) (string, bool) {
	if s.transcriber == nil {
		s.logger.Debug("no transcriber configured, audio ignored")
		return "", in.Text != ""
	}

	text, err := s.transcriber.Transcribe(ctx, in.Audio.Filename, in.Audio.Data, s.speedHint)
	if err != nil {
		s.logger.Warn("transcription failed",
			zap.String("entity", in.Key.String()),
			zap.String("file", in.Audio.Filename),
			zap.Error(err),
		)
		return "", in.Text != ""
	}
	return text, true
}

func (s *Server) transcriptionOnly(key domain.EntityKey) bool {
	st := s.store.Resolve(key)
	st.Lock()
	defer st.Unlock()
	return st.Config.Mode == domain.PersonaWhisper
}

func (s *Server) reply(ctx context.Context, channelID, text string) {
	if text == "" {
		return
	}
	if err := s.messenger.SendText(ctx, channelID, text); err != nil {
		s.logger.Error("failed to send reply", zap.String("channel", channelID), zap.Error(err))
	}
}

// checkAndMarkSeen reports whether msgID was already processed, marking it if not
func (s *Server) checkAndMarkSeen(msgID string) bool {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	now := time.Now()
	if _, ok := s.seenMsgs[msgID]; ok {
		return true
	}
	s.seenMsgs[msgID] = now

	// Clean up expired records when marking new messages
	cutoff := now.Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
	return false
}

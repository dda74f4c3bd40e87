package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
	"github.com/0x70b1a5/jeevespt/internal/biz/usecase"
)

// LinkDelayFloor is the minimum debounce delay for a message carrying a link,
// long enough for the platform to resolve its preview
const LinkDelayFloor = 5 * time.Second

// User-visible notices
const (
	noticeNoReply           = "I'm afraid I could not produce a reply to that."
	noticeFailed            = "I'm terribly sorry, something went wrong while composing a reply. Do try again shortly."
	noticeTranscriptionOnly = "I am only transcribing at present. Send an audio attachment and I shall write it down."
)

var linkPattern = regexp.MustCompile(`(?i)\bhttps?://\S+`)

// InboundMessage is one message delivered to the conversation core
type InboundMessage struct {
	Key       domain.EntityKey
	ChannelID string
	MessageID string
	AuthorID  string
	Role      domain.Role // empty means user
	Text      string
	Addressed bool // the assistant was mentioned or replied to
	IsCommand bool // fire immediately instead of waiting out the delay
}

// ConversationService runs the per-entity debounce controller
type ConversationService struct {
	store      repo.StateStore
	generation *usecase.GenerationUsecase
	persist    *usecase.PersistenceUsecase
	messenger  repo.MessengerRepo
	speech     repo.SpeechRepo

	linkFloor time.Duration
	now       func() time.Time
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// closeMu orders wg.Add against Close
	closeMu sync.Mutex
	closed  bool
}

// NewConversationService creates a new conversation service. speech may be nil.
func NewConversationService(
	store repo.StateStore,
	generation *usecase.GenerationUsecase,
	persist *usecase.PersistenceUsecase,
	messenger repo.MessengerRepo,
	speech repo.SpeechRepo,
	logger *zap.Logger,
) *ConversationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConversationService{
		store:      store,
		generation: generation,
		persist:    persist,
		messenger:  messenger,
		speech:     speech,
		linkFloor:  LinkDelayFloor,
		now:        time.Now,
		logger:     logger.Named("conversation"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// OnInboundMessage records a message and decides whether and when to reply
func (s *ConversationService) OnInboundMessage(ctx context.Context, msg InboundMessage) {
	if msg.Role == "" {
		msg.Role = domain.RoleUser
	}
	log := s.logger.With(zap.String("entity", msg.Key.String()), zap.String("channel", msg.ChannelID))

	st := s.store.Resolve(msg.Key)
	st.Lock()

	cfg := &st.Config
	if !msg.Key.IsGroup() && !cfg.AllowPrivate {
		st.Unlock()
		log.Info("private conversation disabled, message dropped")
		return
	}

	respond := true
	if msg.Key.IsGroup() {
		switch cfg.FrequencyFor(msg.ChannelID) {
		case domain.FrequencyNone:
			st.Unlock()
			log.Debug("channel muted, message dropped")
			return
		case domain.FrequencyMention:
			respond = msg.Addressed
		}
	}

	now := s.now()
	st.LastActivity = now
	st.UpdatedAt = now
	st.HomeChannel = msg.ChannelID

	entry := domain.ChatMessage{Role: msg.Role, Text: msg.Text}
	st.Log.Append(entry, cfg.HistoryLimit)
	st.AppendBuffer(entry)

	// Any recorded message cancels the pending reply; only a responding one restarts it
	st.CancelFlush()
	if respond {
		delay := cfg.ResponseDelay
		switch {
		case msg.IsCommand:
			delay = 0
		case linkPattern.MatchString(msg.Text) && delay < s.linkFloor:
			delay = s.linkFloor
		}
		key, channelID := msg.Key, msg.ChannelID
		st.ScheduleFlush(delay, func(seq uint64) { s.onFlushTimer(key, channelID, seq) })
		log.Debug("reply scheduled", zap.Duration("delay", delay), zap.Int("buffered", st.BufferLen()))
	}

	save := cfg.ShouldSaveData
	translation, translate := cfg.TranslationFor(msg.ChannelID, msg.AuthorID)
	react := msg.MessageID != "" && cfg.MonitorsReactions(msg.ChannelID)
	st.Unlock()

	if save {
		s.persist.Snapshot(ctx, msg.Key)
	}
	if translate && msg.Role == domain.RoleUser {
		s.goBackground(func(ctx context.Context) { s.translate(ctx, msg, translation) })
	}
	if react && msg.Role == domain.RoleUser {
		s.goBackground(func(ctx context.Context) { s.react(ctx, msg) })
	}
}

// Trigger cancels any pending delay and replies now
func (s *ConversationService) Trigger(ctx context.Context, key domain.EntityKey, channelID string) (string, error) {
	st := s.store.Resolve(key)
	st.Lock()
	st.CancelFlush()
	if channelID == "" {
		channelID = st.HomeChannel
	}
	st.Unlock()

	return s.flush(ctx, key, channelID)
}

// Close cancels pending replies and waits for in-flight work
func (s *ConversationService) Close() {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()

	for _, key := range s.store.Keys() {
		if st, ok := s.store.Lookup(key); ok {
			st.Lock()
			st.CancelFlush()
			st.Unlock()
		}
	}
	s.cancel()
	s.wg.Wait()
}

func (s *ConversationService) onFlushTimer(key domain.EntityKey, channelID string, seq uint64) {
	st, ok := s.store.Lookup(key)
	if !ok {
		return
	}
	st.Lock()
	claimed := st.ClaimFlush(seq)
	st.Unlock()
	if !claimed || !s.track() {
		return
	}
	defer s.wg.Done()
	_, _ = s.flush(s.ctx, key, channelID)
}

// flush generates a reply from the buffer and delivers it.
// The buffer entries used are dropped whatever the outcome.
func (s *ConversationService) flush(ctx context.Context, key domain.EntityKey, channelID string) (string, error) {
	log := s.logger.With(zap.String("entity", key.String()), zap.String("channel", channelID))

	text, used, err := s.generation.GenerateFromBuffer(ctx, key, nil)

	if st, ok := s.store.Lookup(key); ok {
		st.Lock()
		st.ConsumeBuffer(used)
		st.Unlock()
	}

	switch {
	case errors.Is(err, usecase.ErrTranscriptionOnly):
		s.send(ctx, channelID, noticeTranscriptionOnly)
		return "", err
	case err != nil:
		log.Error("generation failed", zap.Error(err))
		s.send(ctx, channelID, noticeFailed)
		return "", err
	case text == "":
		s.send(ctx, channelID, noticeNoReply)
		return "", nil
	}

	s.Deliver(ctx, key, channelID, text)
	return text, nil
}

// Deliver sends a reply and, when voice output is on, its spoken form.
// A synthesis failure still leaves the text sent.
func (s *ConversationService) Deliver(ctx context.Context, key domain.EntityKey, channelID, text string) {
	if !s.send(ctx, channelID, text) {
		return
	}
	if s.speech == nil {
		return
	}

	st := s.store.Resolve(key)
	st.Lock()
	voice, profile := st.Config.VoiceOutput, st.Config.VoiceProfile
	st.Unlock()
	if !voice {
		return
	}

	audio, filename, err := s.speech.Synthesize(ctx, text, profile)
	if err != nil {
		s.logger.Warn("speech synthesis failed", zap.String("entity", key.String()), zap.Error(err))
		return
	}
	if err := s.messenger.SendAudio(ctx, channelID, filename, audio); err != nil {
		s.logger.Warn("failed to send audio", zap.String("channel", channelID), zap.Error(err))
	}
}

func (s *ConversationService) send(ctx context.Context, channelID, text string) bool {
	if channelID == "" {
		s.logger.Warn("no channel to deliver to", zap.Int("length", len(text)))
		return false
	}
	if err := s.messenger.SendText(ctx, channelID, text); err != nil {
		s.logger.Error("failed to send message", zap.String("channel", channelID), zap.Error(err))
		return false
	}
	return true
}

func (s *ConversationService) translate(ctx context.Context, msg InboundMessage, target domain.TranslationTarget) {
	prompt := s.generation.Prompts().TranslatePrompt(target.Language)
	text, err := s.generation.Ask(ctx, msg.Key, prompt, []domain.ChatMessage{domain.UserMessage(msg.Text)})
	if err != nil {
		s.logger.Warn("translation failed", zap.String("entity", msg.Key.String()), zap.Error(err))
		return
	}
	if text == "" {
		return
	}
	s.send(ctx, msg.ChannelID, "("+target.Language+") "+text)
}

func (s *ConversationService) react(ctx context.Context, msg InboundMessage) {
	prompt := s.generation.Prompts().Reaction
	text, err := s.generation.Ask(ctx, msg.Key, prompt, []domain.ChatMessage{domain.UserMessage(msg.Text)})
	if err != nil {
		s.logger.Warn("reaction failed", zap.String("entity", msg.Key.String()), zap.Error(err))
		return
	}
	emoji := firstToken(text)
	if emoji == "" {
		return
	}
	if err := s.messenger.AddReaction(ctx, msg.ChannelID, msg.MessageID, emoji); err != nil {
		s.logger.Warn("failed to add reaction", zap.String("emoji", emoji), zap.Error(err))
		return
	}

	st := s.store.Resolve(msg.Key)
	st.Lock()
	st.Reactions.Add(domain.Reaction{
		Emoji:     emoji,
		At:        s.now(),
		Snippet:   msg.Text,
		ChannelID: msg.ChannelID,
	})
	save := st.Config.ShouldSaveData
	st.Unlock()

	if save {
		s.persist.Snapshot(ctx, msg.Key)
	}
}

// track registers in-flight work; it reports false once Close has begun
func (s *ConversationService) track() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *ConversationService) goBackground(fn func(ctx context.Context)) {
	if !s.track() {
		return
	}
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
	"github.com/0x70b1a5/jeevespt/internal/biz/usecase"
)

// DefaultTickInterval is how often the background sweeps run
const DefaultTickInterval = 60 * time.Second

// Scheduler drives commentary, reminders and learning questions from one coarse tick.
// Each sweep takes at most one action per entity per tick.
type Scheduler struct {
	store      repo.StateStore
	generation *usecase.GenerationUsecase
	reminders  *usecase.ReminderUsecase
	persist    *usecase.PersistenceUsecase
	documents  repo.DocumentRepo
	conv       *ConversationService

	interval time.Duration
	cron     *cron.Cron
	tickMu   sync.Mutex
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler
func NewScheduler(
	store repo.StateStore,
	generation *usecase.GenerationUsecase,
	reminders *usecase.ReminderUsecase,
	persist *usecase.PersistenceUsecase,
	documents repo.DocumentRepo,
	conv *ConversationService,
	interval time.Duration,
	logger *zap.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{
		store:      store,
		generation: generation,
		reminders:  reminders,
		persist:    persist,
		documents:  documents,
		conv:       conv,
		interval:   interval,
		logger:     logger.Named("scheduler"),
	}
}

// Start registers the tick with cron and starts it
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger))
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger)))

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.Tick(s.ctx, time.Now())
	}); err != nil {
		return fmt.Errorf("failed to schedule tick: %w", err)
	}
	s.cron.Start()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop stops the cron and waits for a running tick
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		ctx := s.cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Second):
			s.logger.Warn("scheduler stop timed out")
		}
	}
	s.logger.Info("scheduler stopped")
}

// Tick runs the three sweeps once. Ticks never overlap.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.sweepCommentary(ctx, now)
	s.sweepReminders(ctx, now)
	s.sweepLearning(ctx, now)
}

// ========== Commentary ==========

func (s *Scheduler) sweepCommentary(ctx context.Context, now time.Time) {
	for _, key := range s.store.Keys() {
		st, ok := s.store.Lookup(key)
		if !ok {
			continue
		}

		st.Lock()
		due := st.Config.ShouldRespond && now.Sub(st.LastActivity) >= st.Config.ResponseInterval
		channelID, url := st.HomeChannel, st.CommentaryURL
		if due {
			// reset before trying so a failure waits a full interval
			st.LastActivity = now
		}
		st.Unlock()

		if !due {
			continue
		}
		if err := s.comment(ctx, key, channelID, url); err != nil {
			s.logger.Warn("commentary failed", zap.String("entity", key.String()), zap.Error(err))
		}
	}
}

func (s *Scheduler) comment(ctx context.Context, key domain.EntityKey, channelID, url string) error {
	if channelID == "" {
		return fmt.Errorf("no home channel")
	}
	if s.documents == nil {
		return fmt.Errorf("no document source")
	}

	var doc *repo.Document
	var err error
	if url != "" {
		doc, err = s.documents.Fetch(ctx, url)
	} else {
		doc, err = s.documents.FetchRandom(ctx)
	}
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}

	source := doc.Title
	if doc.SourceURL != "" {
		source = fmt.Sprintf("%s (%s)", doc.Title, doc.SourceURL)
	}
	note := s.generation.Prompts().CommentaryPrompt(source, doc.Text)

	text, err := s.generation.Generate(ctx, key, []domain.ChatMessage{domain.UserMessage(note)})
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	s.conv.Deliver(ctx, key, channelID, text)
	return nil
}

// ========== Reminders ==========

func (s *Scheduler) sweepReminders(ctx context.Context, now time.Time) {
	if s.reminders == nil {
		return
	}
	for _, r := range s.reminders.Due(ctx, now) {
		s.deliverReminder(ctx, r)
	}
}

// deliverReminder sends a generated framing line, then the reminder text itself.
// The reminder is already removed, so a failed send is not retried.
func (s *Scheduler) deliverReminder(ctx context.Context, r *domain.Reminder) {
	log := s.logger.With(zap.String("reminder", r.ID), zap.String("channel", r.ChannelID))
	key := r.EntityKey()

	instruction := s.generation.Prompts().Reminder + "\n\nReminder: " + r.Content
	framing, err := s.generation.Generate(ctx, key, []domain.ChatMessage{domain.UserMessage(instruction)})
	if err != nil {
		log.Warn("reminder framing failed", zap.Error(err))
	} else if framing != "" {
		s.conv.send(ctx, r.ChannelID, framing)
	}

	if !s.conv.send(ctx, r.ChannelID, r.Content) {
		log.Error("reminder not delivered")
		return
	}
	log.Info("reminder delivered")
}

// ========== Learning ==========

func (s *Scheduler) sweepLearning(ctx context.Context, now time.Time) {
	for _, key := range s.store.Keys() {
		st, ok := s.store.Lookup(key)
		if !ok {
			continue
		}

		st.Lock()
		var subject string
		due := false
		if st.Config.LearningMode && len(st.Config.LearningSubjects) > 0 {
			st.Learning.Touch(now)
			subject, due = st.Learning.DueSubject(st.Config.LearningSubjects, now)
		}
		channelID := st.HomeChannel
		if due && channelID != "" {
			st.Learning.RecordAsked(subject, now)
		}
		save := st.Config.ShouldSaveData
		st.Unlock()

		if !due {
			continue
		}
		if channelID == "" {
			s.logger.Debug("learning question due but no home channel", zap.String("entity", key.String()))
			continue
		}

		if err := s.askQuestion(ctx, key, channelID, subject); err != nil {
			s.logger.Warn("learning question failed",
				zap.String("entity", key.String()),
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
		if save {
			s.persist.Snapshot(ctx, key)
		}
	}
}

// askQuestion posts a question; Generate has already appended it to the log
func (s *Scheduler) askQuestion(ctx context.Context, key domain.EntityKey, channelID, subject string) error {
	prompt := s.generation.Prompts().LearningPrompt(subject)
	text, err := s.generation.Generate(ctx, key, []domain.ChatMessage{domain.UserMessage(prompt)})
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	s.conv.send(ctx, channelID, text)
	return nil
}

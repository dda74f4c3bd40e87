package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
)

// RetryPolicy controls backoff of retryable generator failures.
// Attempt n (0-based) waits BaseDelay * 2^n before the next call.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy is 3 retries starting at one second; the last wait is about 4s
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}

// Delay returns the wait after a failed attempt
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt)
}

// GenerationUsecase turns an entity's context into a reply
type GenerationUsecase struct {
	store     repo.StateStore
	generator repo.GeneratorRepo
	persist   *PersistenceUsecase
	prompts   PromptSet
	retry     RetryPolicy
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	logger    *zap.Logger
}

// NewGenerationUsecase creates a new generation usecase
func NewGenerationUsecase(
	store repo.StateStore,
	generator repo.GeneratorRepo,
	persist *PersistenceUsecase,
	prompts PromptSet,
	logger *zap.Logger,
) *GenerationUsecase {
	return &GenerationUsecase{
		store:     store,
		generator: generator,
		persist:   persist,
		prompts:   prompts,
		retry:     DefaultRetryPolicy,
		sleep:     sleepContext,
		now:       time.Now,
		logger:    logger.Named("generation"),
	}
}

// SetRetryPolicy replaces the backoff settings
func (uc *GenerationUsecase) SetRetryPolicy(p RetryPolicy) {
	uc.retry = p
}

// Prompts returns the instruction set in use
func (uc *GenerationUsecase) Prompts() PromptSet {
	return uc.prompts
}

// Generate builds the prompt for an entity, calls the generator and records the reply in the log.
// An empty reply with a nil error means the generator produced no text.
func (uc *GenerationUsecase) Generate(ctx context.Context, key domain.EntityKey, extra []domain.ChatMessage) (string, error) {
	text, _, err := uc.GenerateFromBuffer(ctx, key, extra)
	return text, err
}

// GenerateFromBuffer works like Generate and also reports how many buffer entries the prompt used
func (uc *GenerationUsecase) GenerateFromBuffer(ctx context.Context, key domain.EntityKey, extra []domain.ChatMessage) (string, int, error) {
	st := uc.store.Resolve(key)

	st.Lock()
	cfg := st.Config.Clone()
	system, ok := uc.prompts.SystemPrompt(cfg.Mode, st.CustomPrompt)
	history := st.Log.Recent(cfg.HistoryLimit)
	buffer := st.Buffer()
	st.Unlock()

	if !ok {
		return "", len(buffer), ErrTranscriptionOnly
	}

	messages := withoutBuffered(history, buffer)
	messages = append(messages, buffer...)
	messages = append(messages, extra...)

	req := &repo.CompletionRequest{
		Model:        cfg.Model,
		SystemPrompt: uc.prompts.WithTokenBudget(system, cfg.MaxTokens),
		Messages:     messages,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	}

	resp, err := uc.complete(ctx, key, req)
	if err != nil {
		return "", len(buffer), err
	}

	text, found := resp.FirstText()
	if !found {
		uc.logger.Info("generator returned no text", zap.String("entity", key.String()))
		return "", len(buffer), nil
	}

	st.Lock()
	st.Log.Append(domain.AssistantMessage(text), st.Config.HistoryLimit)
	st.UpdatedAt = uc.now()
	save := st.Config.ShouldSaveData
	st.Unlock()

	if save && uc.persist != nil {
		uc.persist.Snapshot(ctx, key)
	}
	return text, len(buffer), nil
}

// Ask runs a one-off completion with the entity's model settings.
// The log is neither read nor written.
func (uc *GenerationUsecase) Ask(ctx context.Context, key domain.EntityKey, system string, messages []domain.ChatMessage) (string, error) {
	st := uc.store.Resolve(key)
	st.Lock()
	cfg := st.Config.Clone()
	st.Unlock()

	resp, err := uc.complete(ctx, key, &repo.CompletionRequest{
		Model:        cfg.Model,
		SystemPrompt: system,
		Messages:     messages,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	text, _ := resp.FirstText()
	return text, nil
}

// complete calls the generator, retrying retryable failures with exponential backoff
func (uc *GenerationUsecase) complete(ctx context.Context, key domain.EntityKey, req *repo.CompletionRequest) (*repo.CompletionResponse, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := uc.generator.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !repo.IsRetryable(err) {
			return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		if attempt >= uc.retry.MaxRetries {
			break
		}

		delay := uc.retry.Delay(attempt)
		uc.logger.Warn("retryable generator error",
			zap.String("entity", key.String()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := uc.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, errors.Join(lastErr, err))
		}
	}
	return nil, fmt.Errorf("%w after %d retries: %w", ErrGenerationFailed, uc.retry.MaxRetries, lastErr)
}

// withoutBuffered drops log entries that are also in the buffer.
// Matches are taken from the newest log entries since the buffer holds the latest burst.
func withoutBuffered(history, buffer []domain.ChatMessage) []domain.ChatMessage {
	if len(buffer) == 0 {
		return append([]domain.ChatMessage(nil), history...)
	}
	pending := make(map[domain.ChatMessage]int, len(buffer))
	for _, m := range buffer {
		pending[m]++
	}
	keep := make([]bool, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if pending[history[i]] > 0 {
			pending[history[i]]--
			continue
		}
		keep[i] = true
	}
	out := make([]domain.ChatMessage, 0, len(history))
	for i, m := range history {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

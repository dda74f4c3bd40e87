package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
)

// ConfigPatch is a partial config update. Nil fields are left unchanged;
// non-nil slices replace the current list (an empty slice clears it).
type ConfigPatch struct {
	Mode             *domain.Persona
	CustomPrompt     *string
	Model            *string
	Temperature      *float64
	MaxTokens        *int
	HistoryLimit     *int
	ResponseDelay    *time.Duration
	ShouldRespond    *bool
	ResponseInterval *time.Duration
	CommentaryURL    *string
	ShouldSaveData   *bool
	AllowPrivate     *bool
	VoiceOutput      *bool
	VoiceProfile     *string

	// ChannelFrequency entries are merged into the current map
	ChannelFrequency   map[string]domain.Frequency
	TranslationTargets []domain.TranslationTarget

	ReactionMode     *bool
	ReactionChannels []string

	LearningMode     *bool
	LearningSubjects []string

	AdminMode       *bool
	AllowedCommands []string
}

// ConfigUsecase applies command-driven config changes
type ConfigUsecase struct {
	store    repo.StateStore
	persist  *PersistenceUsecase
	defaults func() domain.EntityConfig
	logger   *zap.Logger
}

// NewConfigUsecase creates a new config usecase
func NewConfigUsecase(store repo.StateStore, persist *PersistenceUsecase, logger *zap.Logger) *ConfigUsecase {
	return &ConfigUsecase{
		store:    store,
		persist:  persist,
		defaults: domain.DefaultConfig,
		logger:   logger.Named("config"),
	}
}

// SetDefaults sets the config Reset restores. It should match the state store's defaults.
func (uc *ConfigUsecase) SetDefaults(fn func() domain.EntityConfig) {
	uc.defaults = fn
}

// Get returns a copy of the entity's config, materializing defaults
func (uc *ConfigUsecase) Get(key domain.EntityKey) domain.EntityConfig {
	st := uc.store.Resolve(key)
	st.Lock()
	defer st.Unlock()
	return st.Config.Clone()
}

// Apply validates and merges a patch. Nothing changes when validation fails.
func (uc *ConfigUsecase) Apply(ctx context.Context, key domain.EntityKey, patch ConfigPatch) (domain.EntityConfig, error) {
	if err := patch.Validate(); err != nil {
		return domain.EntityConfig{}, err
	}

	st := uc.store.Resolve(key)
	st.Lock()
	modeChanged := patch.Mode != nil && *patch.Mode != st.Config.Mode
	patch.applyTo(&st.Config)
	if patch.CustomPrompt != nil {
		st.CustomPrompt = *patch.CustomPrompt
	}
	if patch.CommentaryURL != nil {
		st.CommentaryURL = *patch.CommentaryURL
	}
	if modeChanged {
		st.Log.Clear()
	} else {
		st.Log.Trim(st.Config.HistoryLimit)
	}
	st.UpdatedAt = time.Now()
	cfg := st.Config.Clone()
	st.Unlock()

	uc.logger.Info("config updated", zap.String("entity", key.String()), zap.Bool("mode_changed", modeChanged))

	if cfg.ShouldSaveData && uc.persist != nil {
		uc.persist.Snapshot(ctx, key)
	}
	return cfg, nil
}

// Reset replaces the entity's config with defaults and clears its log
func (uc *ConfigUsecase) Reset(ctx context.Context, key domain.EntityKey) domain.EntityConfig {
	st := uc.store.Resolve(key)
	st.Lock()
	save := st.Config.ShouldSaveData
	st.Config = uc.defaults()
	st.CustomPrompt = ""
	st.Log.Clear()
	st.UpdatedAt = time.Now()
	cfg := st.Config.Clone()
	snap := st.Snapshot()
	st.Unlock()

	uc.logger.Info("config reset", zap.String("entity", key.String()))

	// the stored record is overwritten so a restart does not bring back the old config
	if save && uc.persist != nil {
		uc.persist.Store(ctx, &snap)
	}
	return cfg
}

// ClearLog empties the entity's message log
func (uc *ConfigUsecase) ClearLog(ctx context.Context, key domain.EntityKey) {
	st := uc.store.Resolve(key)
	st.Lock()
	st.Log.Clear()
	save := st.Config.ShouldSaveData
	st.Unlock()

	if save && uc.persist != nil {
		uc.persist.Snapshot(ctx, key)
	}
}

// CheckCommand returns ErrCommandNotAllowed when admin mode blocks name for the entity
func (uc *ConfigUsecase) CheckCommand(key domain.EntityKey, name string) error {
	st := uc.store.Resolve(key)
	st.Lock()
	allowed := st.Config.IsCommandAllowed(name)
	st.Unlock()
	if !allowed {
		return fmt.Errorf("%w: %s", ErrCommandNotAllowed, name)
	}
	return nil
}

// Validate checks the patch values
func (p *ConfigPatch) Validate() error {
	if p.Mode != nil && !p.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, *p.Mode)
	}
	if p.Model != nil && *p.Model == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidConfig)
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidConfig)
	}
	if p.MaxTokens != nil && *p.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive", ErrInvalidConfig)
	}
	if p.HistoryLimit != nil && *p.HistoryLimit <= 0 {
		return fmt.Errorf("%w: history limit must be positive", ErrInvalidConfig)
	}
	if p.ResponseDelay != nil && *p.ResponseDelay < 0 {
		return fmt.Errorf("%w: response delay must not be negative", ErrInvalidConfig)
	}
	if p.ResponseInterval != nil && *p.ResponseInterval <= 0 {
		return fmt.Errorf("%w: response interval must be positive", ErrInvalidConfig)
	}
	for channel, f := range p.ChannelFrequency {
		if !f.Valid() {
			return fmt.Errorf("%w: unknown frequency %q for channel %s", ErrInvalidConfig, f, channel)
		}
	}
	for _, t := range p.TranslationTargets {
		if t.ID == "" || t.Language == "" {
			return fmt.Errorf("%w: translation target needs an id and a language", ErrInvalidConfig)
		}
	}
	return nil
}

func (p *ConfigPatch) applyTo(c *domain.EntityConfig) {
	if p.Mode != nil {
		c.Mode = *p.Mode
	}
	if p.Model != nil {
		c.Model = *p.Model
	}
	if p.Temperature != nil {
		c.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		c.MaxTokens = *p.MaxTokens
	}
	if p.HistoryLimit != nil {
		c.HistoryLimit = *p.HistoryLimit
	}
	if p.ResponseDelay != nil {
		c.ResponseDelay = *p.ResponseDelay
	}
	if p.ShouldRespond != nil {
		c.ShouldRespond = *p.ShouldRespond
	}
	if p.ResponseInterval != nil {
		c.ResponseInterval = *p.ResponseInterval
	}
	if p.ShouldSaveData != nil {
		c.ShouldSaveData = *p.ShouldSaveData
	}
	if p.AllowPrivate != nil {
		c.AllowPrivate = *p.AllowPrivate
	}
	if p.VoiceOutput != nil {
		c.VoiceOutput = *p.VoiceOutput
	}
	if p.VoiceProfile != nil && *p.VoiceProfile != "" {
		c.VoiceProfile = *p.VoiceProfile
	}
	for channel, f := range p.ChannelFrequency {
		c.SetFrequency(channel, f)
	}
	if p.TranslationTargets != nil {
		c.TranslationTargets = append([]domain.TranslationTarget(nil), p.TranslationTargets...)
	}
	if p.ReactionMode != nil {
		c.ReactionMode = *p.ReactionMode
	}
	if p.ReactionChannels != nil {
		c.ReactionChannels = append([]string(nil), p.ReactionChannels...)
	}
	if p.LearningMode != nil {
		c.LearningMode = *p.LearningMode
	}
	if p.LearningSubjects != nil {
		c.LearningSubjects = append([]string(nil), p.LearningSubjects...)
	}
	if p.AdminMode != nil {
		c.AdminMode = *p.AdminMode
	}
	if p.AllowedCommands != nil {
		c.AllowedCommands = append([]string(nil), p.AllowedCommands...)
	}
}

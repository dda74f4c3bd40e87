package biz

import (
	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
	"github.com/0x70b1a5/jeevespt/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Persistence *usecase.PersistenceUsecase
	Generation  *usecase.GenerationUsecase
	Config      *usecase.ConfigUsecase
	Reminders   *usecase.ReminderUsecase
}

// NewUsecases wires the usecases over one state store.
// snapshots may be nil to run without persistence; defaults may be nil to use domain.DefaultConfig.
func NewUsecases(
	store repo.StateStore,
	generator repo.GeneratorRepo,
	snapshots repo.SnapshotRepo,
	prompts usecase.PromptSet,
	defaults func() domain.EntityConfig,
	logger *zap.Logger,
) *Usecases {
	persist := usecase.NewPersistenceUsecase(store, snapshots, logger)
	config := usecase.NewConfigUsecase(store, persist, logger)
	if defaults != nil {
		config.SetDefaults(defaults)
	}

	return &Usecases{
		Persistence: persist,
		Generation:  usecase.NewGenerationUsecase(store, generator, persist, prompts, logger),
		Config:      config,
		Reminders:   usecase.NewReminderUsecase(persist, logger),
	}
}

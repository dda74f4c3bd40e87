package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
	"github.com/0x70b1a5/jeevespt/internal/biz/usecase"
	"github.com/0x70b1a5/jeevespt/internal/conf"
	"github.com/0x70b1a5/jeevespt/internal/data"
	"github.com/0x70b1a5/jeevespt/internal/mcp"
)

// app holds the platform-independent layers shared by every command
type app struct {
	cfg    *conf.Config
	logger *zap.Logger
	repos  *data.Repositories

	store      repo.StateStore
	persist    *usecase.PersistenceUsecase
	generation *usecase.GenerationUsecase
	config     *usecase.ConfigUsecase
	reminders  *usecase.ReminderUsecase
	tools      *mcp.Server
}

// newApp loads configuration and wires the repository and usecase layers.
// validate checks the part of the configuration the command needs.
func newApp(cmd *cobra.Command, validate func(*conf.Config) error) (*app, error) {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := conf.Load(configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Debug = true
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	prompts, promptsPath, err := conf.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	if promptsPath != "" {
		logger.Info("loaded prompts", zap.String("path", promptsPath))
	}

	// Initialize repository layer
	repos, err := data.NewRepositories(data.Options{
		OpenAIAPIKey:       cfg.OpenAIAPIKey,
		OpenAIBaseURL:      cfg.OpenAIBaseURL,
		TranscriptionModel: cfg.TranscriptionModel,
		SpeechModel:        cfg.SpeechModel,
		DBPath:             cfg.DBPath,
		RandomDocumentURL:  cfg.RandomDocumentURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create repositories: %w", err)
	}
	if cfg.DBPath == "" {
		logger.Warn("no database path configured, state will not survive a restart")
	}

	// Initialize usecase layer
	store := data.NewStateStore(data.WithDefaults(cfg.EntityDefaults))
	uc := biz.NewUsecases(store, repos.Generator, repos.Snapshots, prompts, cfg.EntityDefaults, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		repos:      repos,
		store:      store,
		persist:    uc.Persistence,
		generation: uc.Generation,
		config:     uc.Config,
		reminders:  uc.Reminders,
		tools:      mcp.NewServer(uc.Generation, uc.Config, uc.Reminders, uc.Persistence, logger),
	}, nil
}

// Close releases the database and flushes the logger
func (a *app) Close() {
	if err := a.repos.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

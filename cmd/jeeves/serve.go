package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/api"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
	"github.com/0x70b1a5/jeevespt/internal/conf"
	"github.com/0x70b1a5/jeevespt/internal/data"
	"github.com/0x70b1a5/jeevespt/internal/infra/discord"
	"github.com/0x70b1a5/jeevespt/internal/infra/feishu"
	"github.com/0x70b1a5/jeevespt/internal/server"
	"github.com/0x70b1a5/jeevespt/internal/service"
)

// shutdownTimeout bounds the final snapshot and connection teardown
const shutdownTimeout = 15 * time.Second

// platformServer is a running chat platform connection
type platformServer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the chat platform and start answering",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, (*conf.Config).Validate)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, messenger := a.newPlatformServer()

	// Start HTTP API server
	var apiServer *api.Server
	if a.cfg.APIAddr != "" {
		apiServer = api.NewServer(a.store, a.reminders, messenger, a.tools.Handler(), a.cfg.APIAddr, a.logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				a.logger.Error("api server error", zap.Error(err))
			}
		}()
	}

	a.logger.Info("starting jeeves", zap.String("platform", a.cfg.Platform), zap.String("version", version))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			a.logger.Error("server error", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("api server shutdown", zap.Error(err))
		}
	}
	srv.Stop(shutdownCtx)
	return runErr
}

// newPlatformServer wires the messenger, services and server for the configured platform
func (a *app) newPlatformServer() (platformServer, repo.MessengerRepo) {
	var messenger repo.MessengerRepo
	var discordClient *discord.Client
	var feishuClient *feishu.Client

	switch a.cfg.Platform {
	case conf.PlatformFeishu:
		feishuClient = feishu.NewClient(a.cfg.FeishuAppID, a.cfg.FeishuAppSecret, a.logger)
		messenger = data.NewFeishuMessenger(feishuClient)
	default:
		discordClient = discord.NewClient(a.cfg.DiscordToken, a.logger)
		messenger = data.NewDiscordMessenger(discordClient)
	}

	// Initialize service layer
	conv := service.NewConversationService(a.store, a.generation, a.persist, messenger, a.repos.Speech, a.logger)
	scheduler := service.NewScheduler(a.store, a.generation, a.reminders, a.persist, a.repos.Documents, conv, a.cfg.TickInterval, a.logger)

	core := server.NewServer(a.store, conv, scheduler, a.reminders, a.persist, messenger,
		a.repos.Transcriber, a.cfg.TranscriptionHint, a.logger)

	if feishuClient != nil {
		return server.NewFeishuServer(core, feishuClient, a.logger), messenger
	}
	return server.NewDiscordServer(core, discordClient, a.logger), messenger
}

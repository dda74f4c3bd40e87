package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/conf"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assistant's tools to an MCP client over stdio",
		Long: `Serve the assistant's tools to an MCP client over stdio.

Entity state and reminders are loaded from the database at start and written back on exit.
Do not point it at the database of a running "jeeves serve"; set JEEVES_API_ADDR on the
server instead to reach the same tools over HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, (*conf.Config).ValidateTools)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serveTools(cmd.Context())
		},
	}
}

func (a *app) serveTools(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	entities := a.persist.RestoreAll(ctx)
	reminders := a.reminders.Restore(ctx)
	a.logger.Info("state restored", zap.Int("entities", entities), zap.Int("reminders", reminders))

	err := a.tools.Run(ctx)

	// Save with a fresh context so a signal does not abort the final write
	a.persist.Shutdown(context.Background())
	a.reminders.Persist(context.Background())
	return err
}

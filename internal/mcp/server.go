// Package mcp exposes the assistant's upward interface as MCP tools.
package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/usecase"
)

// Version is reported to MCP clients
const Version = "v1.0.0"

// Server provides MCP tools for driving entities from outside a chat platform
type Server struct {
	server     *mcp.Server
	generation *usecase.GenerationUsecase
	config     *usecase.ConfigUsecase
	reminders  *usecase.ReminderUsecase
	persist    *usecase.PersistenceUsecase
	logger     *zap.Logger
}

// NewServer creates a new MCP server with every tool registered
func NewServer(
	generation *usecase.GenerationUsecase,
	config *usecase.ConfigUsecase,
	reminders *usecase.ReminderUsecase,
	persist *usecase.PersistenceUsecase,
	logger *zap.Logger,
) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "jeeves",
			Version: Version,
		}, nil),
		generation: generation,
		config:     config,
		reminders:  reminders,
		persist:    persist,
		logger:     logger.Named("mcp"),
	}
	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects or ctx is done
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns a streamable HTTP handler serving the same tools
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// Connect attaches the server to a transport, used to serve in-process clients
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// authorize parses the entity key and checks admin mode for the tool
func (s *Server) authorize(entity, tool string) (domain.EntityKey, error) {
	key, err := domain.ParseEntityKey(entity)
	if err != nil {
		return domain.EntityKey{}, err
	}
	if err := s.config.CheckCommand(key, tool); err != nil {
		s.logger.Info("tool blocked by admin mode", zap.String("entity", key.String()), zap.String("tool", tool))
		return domain.EntityKey{}, err
	}
	return key, nil
}

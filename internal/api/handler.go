package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
	"github.com/0x70b1a5/jeevespt/internal/biz/usecase"
)

// Server provides an HTTP API into the running bot: MCP tools plus read-only status
type Server struct {
	store      repo.StateStore
	reminders  *usecase.ReminderUsecase
	messenger  repo.MessengerRepo
	mcpHandler http.Handler
	logger     *zap.Logger

	server *http.Server
	addr   string
}

// NewServer creates a new API server. mcpHandler may be nil.
func NewServer(
	store repo.StateStore,
	reminders *usecase.ReminderUsecase,
	messenger repo.MessengerRepo,
	mcpHandler http.Handler,
	addr string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		store:      store,
		reminders:  reminders,
		messenger:  messenger,
		mcpHandler: mcpHandler,
		addr:       addr,
		logger:     logger.Named("api"),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routes of the API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// MCP tools over streamable HTTP
	if s.mcpHandler != nil {
		mux.Handle("/mcp", s.mcpHandler)
	}

	// Entity state
	mux.HandleFunc("/api/entities", s.handleEntities)
	mux.HandleFunc("/api/entities/", s.handleEntityItem)

	// Reminders
	mux.HandleFunc("/api/reminders", s.handleReminders)

	// Chat platform
	mux.HandleFunc("/api/chat/", s.handleChat)
	mux.HandleFunc("/api/channels/resolve", s.handleResolveChannel)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ============ Entity Handlers ============

// EntitySummary describes one entity's state
type EntitySummary struct {
	Key          string    `json:"key"`
	Mode         string    `json:"mode"`
	Model        string    `json:"model"`
	LogLength    int       `json:"log_length"`
	Buffered     int       `json:"buffered"`
	PendingReply bool      `json:"pending_reply"`
	SaveData     bool      `json:"save_data"`
	HomeChannel  string    `json:"home_channel,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

// LogEntry is one message log entry
type LogEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func summarize(st *domain.EntityState) EntitySummary {
	st.Lock()
	defer st.Unlock()
	return EntitySummary{
		Key:          st.Key.String(),
		Mode:         string(st.Config.Mode),
		Model:        st.Config.Model,
		LogLength:    st.Log.Len(),
		Buffered:     st.BufferLen(),
		PendingReply: st.HasPendingFlush(),
		SaveData:     st.Config.ShouldSaveData,
		HomeChannel:  st.HomeChannel,
		LastActivity: st.LastActivity,
	}
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := []EntitySummary{}
	for _, key := range s.store.Keys() {
		if st, ok := s.store.Lookup(key); ok {
			result = append(result, summarize(st))
		}
	}
	s.writeJSON(w, map[string]interface{}{"entities": result})
}

func (s *Server) handleEntityItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse path: /api/entities/{scope:id}
	key, err := domain.ParseEntityKey(strings.TrimPrefix(r.URL.Path, "/api/entities/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Lookup does not materialize unknown entities
	st, ok := s.store.Lookup(key)
	if !ok {
		http.Error(w, "entity not found", http.StatusNotFound)
		return
	}

	summary := summarize(st)
	st.Lock()
	entries := st.Log.Entries()
	st.Unlock()

	log := make([]LogEntry, len(entries))
	for i, m := range entries {
		log[i] = LogEntry{Role: string(m.Role), Text: m.Text}
	}
	s.writeJSON(w, map[string]interface{}{"entity": summary, "log": log})
}

// ============ Reminder Handlers ============

// Reminder is a pending reminder
type Reminder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	TriggerAt time.Time `json:"trigger_at"`
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// An empty owner lists every reminder
	result := []Reminder{}
	for _, rem := range s.reminders.List(r.URL.Query().Get("owner")) {
		result = append(result, Reminder{
			ID:        rem.ID,
			OwnerID:   rem.OwnerID,
			ChannelID: rem.ChannelID,
			Content:   rem.Content,
			TriggerAt: rem.TriggerAt,
		})
	}
	s.writeJSON(w, map[string]interface{}{"reminders": result})
}

// ============ Chat Handlers ============

// HistoryMessage is a message from channel history
type HistoryMessage struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Content string `json:"content"`
	IsBot   bool   `json:"is_bot"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	// Parse path: /api/chat/{channel_id}/history
	path := strings.TrimPrefix(r.URL.Path, "/api/chat/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	switch parts[1] {
	case "history":
		s.handleChatHistory(w, r, parts[0])
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
	}
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, channelID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := s.messenger.FetchHistory(r.Context(), channelID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result := make([]HistoryMessage, len(messages))
	for i, m := range messages {
		result[i] = HistoryMessage{ID: m.ID, Author: m.Author, Content: m.Content, IsBot: m.IsBot}
	}
	s.writeJSON(w, map[string]interface{}{"messages": result})
}

func (s *Server) handleResolveChannel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	channelID, err := s.messenger.ResolveChannel(r.Context(), q.Get("group"), q.Get("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]string{"channel_id": channelID})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Warn("request failed", zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

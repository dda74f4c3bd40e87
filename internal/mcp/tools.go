package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/usecase"
)

// Tool names, also the names accepted in an entity's allowed-commands list
const (
	ToolGenerate       = "generate"
	ToolGetConfig      = "get_config"
	ToolSetConfig      = "set_config"
	ToolResetConfig    = "reset_config"
	ToolClearLog       = "clear_log"
	ToolAddReminder    = "add_reminder"
	ToolCancelReminder = "cancel_reminder"
	ToolListReminders  = "list_reminders"
	ToolSnapshot       = "snapshot"
)

// registerTools registers all tools
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolGenerate,
		Description: "Ask an entity's persona for a reply. The reply is recorded in the entity's message log.",
	}, s.handleGenerate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolGetConfig,
		Description: "Show the current settings of an entity.",
	}, s.handleGetConfig)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolSetConfig,
		Description: "Change settings of an entity. Only the fields provided are changed; durations use Go syntax such as 10s or 1h.",
	}, s.handleSetConfig)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolResetConfig,
		Description: "Restore an entity's settings to defaults and clear its message log.",
	}, s.handleResetConfig)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolClearLog,
		Description: "Forget the conversation history of an entity.",
	}, s.handleClearLog)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolAddReminder,
		Description: "Schedule a reminder. Give either an RFC 3339 time or a delay such as 90m.",
	}, s.handleAddReminder)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolCancelReminder,
		Description: "Cancel a pending reminder owned by the given user.",
	}, s.handleCancelReminder)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolListReminders,
		Description: "List the pending reminders of a user, soonest first.",
	}, s.handleListReminders)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolSnapshot,
		Description: "Write an entity's state to storage now. Only entities with saving enabled are stored.",
	}, s.handleSnapshot)
}

// ========== generate ==========

// GenerateInput is the input for the generate tool
type GenerateInput struct {
	Entity string `json:"entity" jsonschema:"The entity key, group:<id> or private:<id>"`
	Prompt string `json:"prompt" jsonschema:"The message to reply to"`
}

// GenerateOutput is the output for the generate tool
type GenerateOutput struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleGenerate(ctx context.Context, req *mcp.CallToolRequest, input GenerateInput) (*mcp.CallToolResult, GenerateOutput, error) {
	key, err := s.authorize(input.Entity, ToolGenerate)
	if err != nil {
		return nil, GenerateOutput{Error: err.Error()}, nil
	}
	if input.Prompt == "" {
		return nil, GenerateOutput{Error: "prompt is required"}, nil
	}

	reply, err := s.generation.Generate(ctx, key, []domain.ChatMessage{domain.UserMessage(input.Prompt)})
	if err != nil {
		s.logger.Warn("generate tool failed", zap.String("entity", key.String()), zap.Error(err))
		return nil, GenerateOutput{Error: err.Error()}, nil
	}
	return nil, GenerateOutput{Reply: reply}, nil
}

// ========== config ==========

// EntityInput names the entity a tool acts on
type EntityInput struct {
	Entity string `json:"entity" jsonschema:"The entity key, group:<id> or private:<id>"`
}

// ConfigView is the settings of an entity as reported to clients
type ConfigView struct {
	Mode               string                     `json:"mode"`
	Model              string                     `json:"model"`
	Temperature        float64                    `json:"temperature"`
	MaxTokens          int                        `json:"max_tokens"`
	HistoryLimit       int                        `json:"history_limit"`
	ResponseDelay      string                     `json:"response_delay"`
	ShouldRespond      bool                       `json:"should_respond"`
	ResponseInterval   string                     `json:"response_interval"`
	ShouldSaveData     bool                       `json:"should_save_data"`
	AllowPrivate       bool                       `json:"allow_private"`
	VoiceOutput        bool                       `json:"voice_output"`
	VoiceProfile       string                     `json:"voice_profile"`
	ChannelFrequency   map[string]string          `json:"channel_frequency,omitempty"`
	TranslationTargets []domain.TranslationTarget `json:"translation_targets,omitempty"`
	ReactionMode       bool                       `json:"reaction_mode"`
	ReactionChannels   []string                   `json:"reaction_channels,omitempty"`
	LearningMode       bool                       `json:"learning_mode"`
	LearningSubjects   []string                   `json:"learning_subjects,omitempty"`
	AdminMode          bool                       `json:"admin_mode"`
	AllowedCommands    []string                   `json:"allowed_commands,omitempty"`
}

func newConfigView(c domain.EntityConfig) *ConfigView {
	v := &ConfigView{
		Mode:               string(c.Mode),
		Model:              c.Model,
		Temperature:        c.Temperature,
		MaxTokens:          c.MaxTokens,
		HistoryLimit:       c.HistoryLimit,
		ResponseDelay:      c.ResponseDelay.String(),
		ShouldRespond:      c.ShouldRespond,
		ResponseInterval:   c.ResponseInterval.String(),
		ShouldSaveData:     c.ShouldSaveData,
		AllowPrivate:       c.AllowPrivate,
		VoiceOutput:        c.VoiceOutput,
		VoiceProfile:       c.VoiceProfile,
		TranslationTargets: c.TranslationTargets,
		ReactionMode:       c.ReactionMode,
		ReactionChannels:   c.ReactionChannels,
		LearningMode:       c.LearningMode,
		LearningSubjects:   c.LearningSubjects,
		AdminMode:          c.AdminMode,
		AllowedCommands:    c.AllowedCommands,
	}
	if len(c.ChannelFrequency) > 0 {
		v.ChannelFrequency = make(map[string]string, len(c.ChannelFrequency))
		for ch, f := range c.ChannelFrequency {
			v.ChannelFrequency[ch] = string(f)
		}
	}
	return v
}

// ConfigOutput is the output of the config tools
type ConfigOutput struct {
	Config *ConfigView `json:"config,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (s *Server) handleGetConfig(ctx context.Context, req *mcp.CallToolRequest, input EntityInput) (*mcp.CallToolResult, ConfigOutput, error) {
	key, err := s.authorize(input.Entity, ToolGetConfig)
	if err != nil {
		return nil, ConfigOutput{Error: err.Error()}, nil
	}
	return nil, ConfigOutput{Config: newConfigView(s.config.Get(key))}, nil
}

// SetConfigInput is the input for the set_config tool. Omitted fields are left unchanged.
type SetConfigInput struct {
	Entity             string                     `json:"entity" jsonschema:"The entity key, group:<id> or private:<id>"`
	Mode               *string                    `json:"mode,omitempty" jsonschema:"Persona: jeeves, tokipona, jargon, custom or whisper"`
	CustomPrompt       *string                    `json:"custom_prompt,omitempty" jsonschema:"System prompt used by the custom persona"`
	Model              *string                    `json:"model,omitempty" jsonschema:"Completion model name"`
	Temperature        *float64                   `json:"temperature,omitempty" jsonschema:"Sampling temperature between 0 and 2"`
	MaxTokens          *int                       `json:"max_tokens,omitempty" jsonschema:"Maximum reply length in tokens"`
	HistoryLimit       *int                       `json:"history_limit,omitempty" jsonschema:"Number of log entries kept and sent"`
	ResponseDelay      *string                    `json:"response_delay,omitempty" jsonschema:"Quiet period before replying"`
	ShouldRespond      *bool                      `json:"should_respond,omitempty" jsonschema:"Enable spontaneous commentary"`
	ResponseInterval   *string                    `json:"response_interval,omitempty" jsonschema:"Inactivity before commentary"`
	CommentaryURL      *string                    `json:"commentary_url,omitempty" jsonschema:"Page to comment on, empty for a random article"`
	ShouldSaveData     *bool                      `json:"should_save_data,omitempty" jsonschema:"Persist this entity's state"`
	AllowPrivate       *bool                      `json:"allow_private,omitempty" jsonschema:"Answer private messages"`
	VoiceOutput        *bool                      `json:"voice_output,omitempty" jsonschema:"Also send replies as speech"`
	VoiceProfile       *string                    `json:"voice_profile,omitempty" jsonschema:"Speech voice name"`
	ChannelFrequency   map[string]string          `json:"channel_frequency,omitempty" jsonschema:"Per-channel policy: all, mention or none"`
	TranslationTargets []domain.TranslationTarget `json:"translation_targets,omitempty" jsonschema:"Channels or users whose messages are translated"`
	ReactionMode       *bool                      `json:"reaction_mode,omitempty" jsonschema:"React to messages with emoji"`
	ReactionChannels   []string                   `json:"reaction_channels,omitempty" jsonschema:"Channels watched in reaction mode"`
	LearningMode       *bool                      `json:"learning_mode,omitempty" jsonschema:"Ask periodic study questions"`
	LearningSubjects   []string                   `json:"learning_subjects,omitempty" jsonschema:"Subjects for study questions"`
	AdminMode          *bool                      `json:"admin_mode,omitempty" jsonschema:"Restrict tools to the allowed list"`
	AllowedCommands    []string                   `json:"allowed_commands,omitempty" jsonschema:"Tool names permitted in admin mode"`
}

// patch converts the input into a config patch
func (in *SetConfigInput) patch() (usecase.ConfigPatch, error) {
	p := usecase.ConfigPatch{
		CustomPrompt:       in.CustomPrompt,
		Model:              in.Model,
		Temperature:        in.Temperature,
		MaxTokens:          in.MaxTokens,
		HistoryLimit:       in.HistoryLimit,
		ShouldRespond:      in.ShouldRespond,
		CommentaryURL:      in.CommentaryURL,
		ShouldSaveData:     in.ShouldSaveData,
		AllowPrivate:       in.AllowPrivate,
		VoiceOutput:        in.VoiceOutput,
		VoiceProfile:       in.VoiceProfile,
		TranslationTargets: in.TranslationTargets,
		ReactionMode:       in.ReactionMode,
		ReactionChannels:   in.ReactionChannels,
		LearningMode:       in.LearningMode,
		LearningSubjects:   in.LearningSubjects,
		AdminMode:          in.AdminMode,
		AllowedCommands:    in.AllowedCommands,
	}
	if in.Mode != nil {
		mode := domain.Persona(*in.Mode)
		p.Mode = &mode
	}
	if in.ResponseDelay != nil {
		d, err := time.ParseDuration(*in.ResponseDelay)
		if err != nil {
			return p, fmt.Errorf("%w: response delay: %v", usecase.ErrInvalidConfig, err)
		}
		p.ResponseDelay = &d
	}
	if in.ResponseInterval != nil {
		d, err := time.ParseDuration(*in.ResponseInterval)
		if err != nil {
			return p, fmt.Errorf("%w: response interval: %v", usecase.ErrInvalidConfig, err)
		}
		p.ResponseInterval = &d
	}
	if len(in.ChannelFrequency) > 0 {
		p.ChannelFrequency = make(map[string]domain.Frequency, len(in.ChannelFrequency))
		for ch, f := range in.ChannelFrequency {
			p.ChannelFrequency[ch] = domain.Frequency(f)
		}
	}
	return p, nil
}

func (s *Server) handleSetConfig(ctx context.Context, req *mcp.CallToolRequest, input SetConfigInput) (*mcp.CallToolResult, ConfigOutput, error) {
	key, err := s.authorize(input.Entity, ToolSetConfig)
	if err != nil {
		return nil, ConfigOutput{Error: err.Error()}, nil
	}

	patch, err := input.patch()
	if err != nil {
		return nil, ConfigOutput{Error: err.Error()}, nil
	}
	cfg, err := s.config.Apply(ctx, key, patch)
	if err != nil {
		return nil, ConfigOutput{Error: err.Error()}, nil
	}
	return nil, ConfigOutput{Config: newConfigView(cfg)}, nil
}

func (s *Server) handleResetConfig(ctx context.Context, req *mcp.CallToolRequest, input EntityInput) (*mcp.CallToolResult, ConfigOutput, error) {
	key, err := s.authorize(input.Entity, ToolResetConfig)
	if err != nil {
		return nil, ConfigOutput{Error: err.Error()}, nil
	}
	return nil, ConfigOutput{Config: newConfigView(s.config.Reset(ctx, key))}, nil
}

// StatusOutput is the output of tools without a payload
type StatusOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleClearLog(ctx context.Context, req *mcp.CallToolRequest, input EntityInput) (*mcp.CallToolResult, StatusOutput, error) {
	key, err := s.authorize(input.Entity, ToolClearLog)
	if err != nil {
		return nil, StatusOutput{Error: err.Error()}, nil
	}
	s.config.ClearLog(ctx, key)
	return nil, StatusOutput{Success: true}, nil
}

func (s *Server) handleSnapshot(ctx context.Context, req *mcp.CallToolRequest, input EntityInput) (*mcp.CallToolResult, StatusOutput, error) {
	key, err := s.authorize(input.Entity, ToolSnapshot)
	if err != nil {
		return nil, StatusOutput{Error: err.Error()}, nil
	}
	if !s.config.Get(key).ShouldSaveData {
		return nil, StatusOutput{Error: "saving is disabled for this entity"}, nil
	}
	s.persist.Snapshot(ctx, key)
	return nil, StatusOutput{Success: true}, nil
}

// ========== reminders ==========

// ReminderView is a reminder as reported to clients
type ReminderView struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	TriggerAt string `json:"trigger_at"`
	Private   bool   `json:"private"`
}

func newReminderView(r *domain.Reminder) ReminderView {
	return ReminderView{
		ID:        r.ID,
		ChannelID: r.ChannelID,
		Content:   r.Content,
		TriggerAt: r.TriggerAt.Format(time.RFC3339),
		Private:   r.Private,
	}
}

// AddReminderInput is the input for the add_reminder tool
type AddReminderInput struct {
	Entity    string `json:"entity" jsonschema:"The entity key whose persona frames the reminder"`
	OwnerID   string `json:"owner_id" jsonschema:"The user the reminder belongs to"`
	ChannelID string `json:"channel_id" jsonschema:"Where the reminder is delivered"`
	Content   string `json:"content" jsonschema:"What to be reminded of"`
	At        string `json:"at,omitempty" jsonschema:"RFC 3339 trigger time"`
	In        string `json:"in,omitempty" jsonschema:"Delay from now, such as 90m"`
}

// ReminderOutput is the output for add_reminder
type ReminderOutput struct {
	Reminder *ReminderView `json:"reminder,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func (in *AddReminderInput) triggerAt(now time.Time) (time.Time, error) {
	switch {
	case in.At != "" && in.In != "":
		return time.Time{}, fmt.Errorf("%w: give either at or in, not both", usecase.ErrInvalidReminder)
	case in.At != "":
		t, err := time.Parse(time.RFC3339, in.At)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", usecase.ErrInvalidReminder, err)
		}
		return t, nil
	case in.In != "":
		d, err := time.ParseDuration(in.In)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", usecase.ErrInvalidReminder, err)
		}
		return now.Add(d), nil
	}
	return time.Time{}, fmt.Errorf("%w: a trigger time is required", usecase.ErrInvalidReminder)
}

func (s *Server) handleAddReminder(ctx context.Context, req *mcp.CallToolRequest, input AddReminderInput) (*mcp.CallToolResult, ReminderOutput, error) {
	key, err := s.authorize(input.Entity, ToolAddReminder)
	if err != nil {
		return nil, ReminderOutput{Error: err.Error()}, nil
	}
	at, err := input.triggerAt(time.Now())
	if err != nil {
		return nil, ReminderOutput{Error: err.Error()}, nil
	}

	r := usecase.ReminderRequest{
		OwnerID:   input.OwnerID,
		ChannelID: input.ChannelID,
		Content:   input.Content,
		TriggerAt: at,
		Private:   !key.IsGroup(),
	}
	if key.IsGroup() {
		r.GroupID = key.ID
	}

	reminder, err := s.reminders.Add(ctx, r)
	if err != nil {
		return nil, ReminderOutput{Error: err.Error()}, nil
	}
	view := newReminderView(reminder)
	return nil, ReminderOutput{Reminder: &view}, nil
}

// CancelReminderInput is the input for the cancel_reminder tool
type CancelReminderInput struct {
	Entity  string `json:"entity" jsonschema:"The entity key the request comes from"`
	OwnerID string `json:"owner_id" jsonschema:"The user who owns the reminder"`
	ID      string `json:"id" jsonschema:"The reminder id"`
}

func (s *Server) handleCancelReminder(ctx context.Context, req *mcp.CallToolRequest, input CancelReminderInput) (*mcp.CallToolResult, StatusOutput, error) {
	if _, err := s.authorize(input.Entity, ToolCancelReminder); err != nil {
		return nil, StatusOutput{Error: err.Error()}, nil
	}
	if err := s.reminders.Cancel(ctx, input.ID, input.OwnerID); err != nil {
		return nil, StatusOutput{Error: err.Error()}, nil
	}
	return nil, StatusOutput{Success: true}, nil
}

// ListRemindersInput is the input for the list_reminders tool
type ListRemindersInput struct {
	Entity  string `json:"entity" jsonschema:"The entity key the request comes from"`
	OwnerID string `json:"owner_id" jsonschema:"The user whose reminders are listed"`
}

// ListRemindersOutput is the output for list_reminders
type ListRemindersOutput struct {
	Reminders []ReminderView `json:"reminders"`
	Error     string         `json:"error,omitempty"`
}

func (s *Server) handleListReminders(ctx context.Context, req *mcp.CallToolRequest, input ListRemindersInput) (*mcp.CallToolResult, ListRemindersOutput, error) {
	if _, err := s.authorize(input.Entity, ToolListReminders); err != nil {
		return nil, ListRemindersOutput{Error: err.Error()}, nil
	}
	out := ListRemindersOutput{Reminders: []ReminderView{}}
	for _, r := range s.reminders.List(input.OwnerID) {
		out.Reminders = append(out.Reminders, newReminderView(r))
	}
	return nil, out, nil
}

package domain

import (
	"sort"
	"time"
)

// Snapshot is the persisted form of one entity.
// Map-typed fields are flattened into key-sorted lists.
type Snapshot struct {
	Scope         Scope          `json:"scope"`
	ID            string         `json:"id"`
	Config        ConfigRecord   `json:"config"`
	Log           []ChatMessage  `json:"log"`
	CustomPrompt  string         `json:"custom_prompt,omitempty"`
	CommentaryURL string         `json:"commentary_url,omitempty"` // empty means a random document
	Learning      LearningRecord `json:"learning"`
	Reactions     []Reaction     `json:"reactions"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Key returns the entity key the snapshot belongs to
func (s *Snapshot) Key() EntityKey {
	return EntityKey{Scope: s.Scope, ID: s.ID}
}

// ChannelFrequencyEntry is one channel policy in persisted form
type ChannelFrequencyEntry struct {
	ChannelID string    `json:"channel_id"`
	Frequency Frequency `json:"frequency"`
}

// ConfigRecord is the persisted form of EntityConfig
type ConfigRecord struct {
	Mode               Persona                 `json:"mode"`
	Model              string                  `json:"model"`
	Temperature        float64                 `json:"temperature"`
	MaxTokens          int                     `json:"max_tokens"`
	HistoryLimit       int                     `json:"history_limit"`
	ResponseDelayMs    int64                   `json:"response_delay_ms"`
	ShouldRespond      bool                    `json:"should_respond"`
	ResponseIntervalMs int64                   `json:"response_interval_ms"`
	ShouldSaveData     bool                    `json:"should_save_data"`
	AllowPrivate       bool                    `json:"allow_private"`
	VoiceOutput        bool                    `json:"voice_output"`
	VoiceProfile       string                  `json:"voice_profile"`
	ChannelFrequency   []ChannelFrequencyEntry `json:"channel_frequency"`
	TranslationTargets []TranslationTarget     `json:"translation_targets"`
	ReactionMode       bool                    `json:"reaction_mode"`
	ReactionChannels   []string                `json:"reaction_channels"`
	LearningMode       bool                    `json:"learning_mode"`
	LearningSubjects   []string                `json:"learning_subjects"`
	AdminMode          bool                    `json:"admin_mode"`
	AllowedCommands    []string                `json:"allowed_commands"`
}

// SubjectTime is one last-asked entry
type SubjectTime struct {
	Subject string    `json:"subject"`
	At      time.Time `json:"at"`
}

// SubjectCount is one daily-count entry
type SubjectCount struct {
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}

// LearningRecord is the persisted form of LearningTracker
type LearningRecord struct {
	LastAsked  []SubjectTime  `json:"last_asked"`
	TodayCount []SubjectCount `json:"today_count"`
	LastReset  string         `json:"last_reset"`
}

// Snapshot captures the persisted part of the state. Caller holds the lock.
func (s *EntityState) Snapshot() Snapshot {
	return Snapshot{
		Scope:         s.Key.Scope,
		ID:            s.Key.ID,
		Config:        configToRecord(s.Config),
		Log:           s.Log.Entries(),
		CustomPrompt:  s.CustomPrompt,
		CommentaryURL: s.CommentaryURL,
		Learning:      learningToRecord(s.Learning),
		Reactions:     s.Reactions.Recent(),
		UpdatedAt:     s.UpdatedAt,
	}
}

// Restore replaces the persisted part of the state. Caller holds the lock.
func (s *EntityState) Restore(snap Snapshot) {
	s.Config = configFromRecord(snap.Config)
	s.Log.Replace(snap.Log, s.Config.HistoryLimit)
	s.CustomPrompt = snap.CustomPrompt
	s.CommentaryURL = snap.CommentaryURL
	s.Learning = learningFromRecord(snap.Learning)
	s.Reactions.Replace(snap.Reactions)
	s.UpdatedAt = snap.UpdatedAt
}

func configToRecord(c EntityConfig) ConfigRecord {
	channels := make([]string, 0, len(c.ChannelFrequency))
	for id := range c.ChannelFrequency {
		channels = append(channels, id)
	}
	sort.Strings(channels)
	freq := make([]ChannelFrequencyEntry, 0, len(channels))
	for _, id := range channels {
		freq = append(freq, ChannelFrequencyEntry{ChannelID: id, Frequency: c.ChannelFrequency[id]})
	}

	c = c.Clone()
	return ConfigRecord{
		Mode:               c.Mode,
		Model:              c.Model,
		Temperature:        c.Temperature,
		MaxTokens:          c.MaxTokens,
		HistoryLimit:       c.HistoryLimit,
		ResponseDelayMs:    c.ResponseDelay.Milliseconds(),
		ShouldRespond:      c.ShouldRespond,
		ResponseIntervalMs: c.ResponseInterval.Milliseconds(),
		ShouldSaveData:     c.ShouldSaveData,
		AllowPrivate:       c.AllowPrivate,
		VoiceOutput:        c.VoiceOutput,
		VoiceProfile:       c.VoiceProfile,
		ChannelFrequency:   freq,
		TranslationTargets: c.TranslationTargets,
		ReactionMode:       c.ReactionMode,
		ReactionChannels:   c.ReactionChannels,
		LearningMode:       c.LearningMode,
		LearningSubjects:   c.LearningSubjects,
		AdminMode:          c.AdminMode,
		AllowedCommands:    c.AllowedCommands,
	}
}

func configFromRecord(r ConfigRecord) EntityConfig {
	c := DefaultConfig()
	if r.Mode.Valid() {
		c.Mode = r.Mode
	}
	if r.Model != "" {
		c.Model = r.Model
	}
	c.Temperature = r.Temperature
	if r.MaxTokens > 0 {
		c.MaxTokens = r.MaxTokens
	}
	if r.HistoryLimit > 0 {
		c.HistoryLimit = r.HistoryLimit
	}
	c.ResponseDelay = time.Duration(r.ResponseDelayMs) * time.Millisecond
	c.ShouldRespond = r.ShouldRespond
	if r.ResponseIntervalMs > 0 {
		c.ResponseInterval = time.Duration(r.ResponseIntervalMs) * time.Millisecond
	}
	c.ShouldSaveData = r.ShouldSaveData
	c.AllowPrivate = r.AllowPrivate
	c.VoiceOutput = r.VoiceOutput
	if r.VoiceProfile != "" {
		c.VoiceProfile = r.VoiceProfile
	}
	for _, e := range r.ChannelFrequency {
		if e.Frequency.Valid() {
			c.ChannelFrequency[e.ChannelID] = e.Frequency
		}
	}
	c.TranslationTargets = append([]TranslationTarget(nil), r.TranslationTargets...)
	c.ReactionMode = r.ReactionMode
	c.ReactionChannels = append([]string(nil), r.ReactionChannels...)
	c.LearningMode = r.LearningMode
	c.LearningSubjects = append([]string(nil), r.LearningSubjects...)
	c.AdminMode = r.AdminMode
	c.AllowedCommands = append([]string(nil), r.AllowedCommands...)
	return c
}

func learningToRecord(t *LearningTracker) LearningRecord {
	if t == nil {
		return LearningRecord{}
	}
	rec := LearningRecord{LastReset: t.LastReset}
	for subject, at := range t.LastAsked {
		rec.LastAsked = append(rec.LastAsked, SubjectTime{Subject: subject, At: at})
	}
	sort.Slice(rec.LastAsked, func(i, j int) bool { return rec.LastAsked[i].Subject < rec.LastAsked[j].Subject })
	for subject, n := range t.TodayCount {
		rec.TodayCount = append(rec.TodayCount, SubjectCount{Subject: subject, Count: n})
	}
	sort.Slice(rec.TodayCount, func(i, j int) bool { return rec.TodayCount[i].Subject < rec.TodayCount[j].Subject })
	return rec
}

func learningFromRecord(r LearningRecord) *LearningTracker {
	t := NewLearningTracker()
	t.LastReset = r.LastReset
	for _, e := range r.LastAsked {
		t.LastAsked[e.Subject] = e.At
	}
	for _, e := range r.TodayCount {
		t.TodayCount[e.Subject] = e.Count
	}
	return t
}

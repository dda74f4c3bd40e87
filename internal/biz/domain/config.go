package domain

import "time"

// Persona selects the system instruction used for generation
type Persona string

const (
	PersonaJeeves   Persona = "jeeves"
	PersonaTokiPona Persona = "tokipona"
	PersonaJargon   Persona = "jargon"
	PersonaCustom   Persona = "custom"
	// PersonaWhisper only transcribes audio; generation is skipped
	PersonaWhisper Persona = "whisper"
)

// Valid checks if the persona is known
func (p Persona) Valid() bool {
	switch p {
	case PersonaJeeves, PersonaTokiPona, PersonaJargon, PersonaCustom, PersonaWhisper:
		return true
	}
	return false
}

// Frequency is the per-channel response policy for group conversations
type Frequency string

const (
	FrequencyAll     Frequency = "all"
	FrequencyMention Frequency = "mention"
	FrequencyNone    Frequency = "none"
)

// Valid checks if the frequency is known
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyAll, FrequencyMention, FrequencyNone:
		return true
	}
	return false
}

// TranslationTarget asks for every message from a channel or user to be translated
type TranslationTarget struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	IsUser   bool   `json:"is_user"`
}

// Defaults used when an entity is first touched
const (
	DefaultModel            = "gpt-4o"
	DefaultTemperature      = 1.0
	DefaultMaxTokens        = 1024
	DefaultHistoryLimit     = 30
	DefaultResponseDelay    = 10 * time.Second
	DefaultResponseInterval = 60 * time.Minute
	DefaultVoiceProfile     = "alloy"
)

// EntityConfig holds the mutable settings of one entity
type EntityConfig struct {
	Mode             Persona
	Model            string
	Temperature      float64
	MaxTokens        int
	HistoryLimit     int
	ResponseDelay    time.Duration
	ShouldRespond    bool // spontaneous commentary
	ResponseInterval time.Duration
	ShouldSaveData   bool
	AllowPrivate     bool
	VoiceOutput      bool
	VoiceProfile     string

	ChannelFrequency   map[string]Frequency
	TranslationTargets []TranslationTarget

	ReactionMode     bool
	ReactionChannels []string

	LearningMode     bool
	LearningSubjects []string

	AdminMode       bool
	AllowedCommands []string
}

// DefaultConfig returns the settings of a never-configured entity
func DefaultConfig() EntityConfig {
	return EntityConfig{
		Mode:             PersonaJeeves,
		Model:            DefaultModel,
		Temperature:      DefaultTemperature,
		MaxTokens:        DefaultMaxTokens,
		HistoryLimit:     DefaultHistoryLimit,
		ResponseDelay:    DefaultResponseDelay,
		ResponseInterval: DefaultResponseInterval,
		AllowPrivate:     true,
		VoiceProfile:     DefaultVoiceProfile,
		ChannelFrequency: make(map[string]Frequency),
	}
}

// FrequencyFor returns the policy of a channel, FrequencyAll when unset
func (c *EntityConfig) FrequencyFor(channelID string) Frequency {
	if f, ok := c.ChannelFrequency[channelID]; ok {
		return f
	}
	return FrequencyAll
}

// SetFrequency sets the policy of a channel
func (c *EntityConfig) SetFrequency(channelID string, f Frequency) {
	if c.ChannelFrequency == nil {
		c.ChannelFrequency = make(map[string]Frequency)
	}
	c.ChannelFrequency[channelID] = f
}

// TranslationFor finds the translation target for a channel or author, channel first
func (c *EntityConfig) TranslationFor(channelID, authorID string) (TranslationTarget, bool) {
	for _, t := range c.TranslationTargets {
		if !t.IsUser && t.ID == channelID {
			return t, true
		}
	}
	for _, t := range c.TranslationTargets {
		if t.IsUser && t.ID == authorID {
			return t, true
		}
	}
	return TranslationTarget{}, false
}

// MonitorsReactions checks if reaction mode covers a channel
func (c *EntityConfig) MonitorsReactions(channelID string) bool {
	if !c.ReactionMode {
		return false
	}
	return contains(c.ReactionChannels, channelID)
}

// IsCommandAllowed checks a command against the admin allow-list.
// Without admin mode every command is allowed.
func (c *EntityConfig) IsCommandAllowed(name string) bool {
	if !c.AdminMode {
		return true
	}
	return contains(c.AllowedCommands, name)
}

// Clone returns a deep copy
func (c EntityConfig) Clone() EntityConfig {
	out := c
	out.ChannelFrequency = make(map[string]Frequency, len(c.ChannelFrequency))
	for k, v := range c.ChannelFrequency {
		out.ChannelFrequency[k] = v
	}
	out.TranslationTargets = append([]TranslationTarget(nil), c.TranslationTargets...)
	out.ReactionChannels = append([]string(nil), c.ReactionChannels...)
	out.LearningSubjects = append([]string(nil), c.LearningSubjects...)
	out.AllowedCommands = append([]string(nil), c.AllowedCommands...)
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

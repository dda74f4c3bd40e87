package conf

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
)

// EnvPrefix prefixes every environment variable, e.g. JEEVES_PLATFORM
const EnvPrefix = "JEEVES"

// Supported chat platforms
const (
	PlatformDiscord = "discord"
	PlatformFeishu  = "feishu"
)

// Config represents application configuration
type Config struct {
	// Platform selects the messenger: discord or feishu
	Platform string `mapstructure:"platform"`

	// Discord configuration
	DiscordToken string `mapstructure:"discord_token"`

	// Feishu configuration
	FeishuAppID     string `mapstructure:"feishu_app_id"`
	FeishuAppSecret string `mapstructure:"feishu_app_secret"`

	// OpenAI-compatible provider
	OpenAIAPIKey       string `mapstructure:"openai_api_key"`
	OpenAIBaseURL      string `mapstructure:"openai_base_url"`
	DefaultModel       string `mapstructure:"default_model"`
	TranscriptionModel string `mapstructure:"transcription_model"`
	SpeechModel        string `mapstructure:"speech_model"`
	// TranscriptionHint describes how fast people speak, passed to the transcriber
	TranscriptionHint string `mapstructure:"transcription_hint"`

	// DBPath is the snapshot database; empty disables persistence
	DBPath string `mapstructure:"db_path"`

	TickInterval      time.Duration `mapstructure:"tick_interval"`
	PromptsFile       string        `mapstructure:"prompts_file"`
	RandomDocumentURL string        `mapstructure:"random_document_url"`

	// APIAddr serves the HTTP API, MCP tools included, alongside the bot when set, e.g. 127.0.0.1:8931
	APIAddr string `mapstructure:"api_addr"`

	// Debug mode
	Debug bool `mapstructure:"debug"`
}

// Load reads .env, then the optional config file, then JEEVES_* environment variables.
// Environment variables win over the file.
func Load(configFile string) (*Config, error) {
	// A missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The provider key is also taken from the variable the OpenAI tooling uses
	_ = v.BindEnv("openai_api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigError{Field: "config file", Message: err.Error()}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Field: "config", Message: err.Error()}
	}
	cfg.Platform = strings.ToLower(strings.TrimSpace(cfg.Platform))
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can fill it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("platform", PlatformDiscord)
	v.SetDefault("discord_token", "")
	v.SetDefault("feishu_app_id", "")
	v.SetDefault("feishu_app_secret", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("default_model", domain.DefaultModel)
	v.SetDefault("transcription_model", "")
	v.SetDefault("speech_model", "")
	v.SetDefault("transcription_hint", "")
	v.SetDefault("db_path", "jeeves.db")
	v.SetDefault("tick_interval", 60*time.Second)
	v.SetDefault("prompts_file", "")
	v.SetDefault("random_document_url", "")
	v.SetDefault("api_addr", "")
	v.SetDefault("debug", false)
}

// EntityDefaults returns the config of a never-configured entity under this configuration
func (c *Config) EntityDefaults() domain.EntityConfig {
	cfg := domain.DefaultConfig()
	if c.DefaultModel != "" {
		cfg.Model = c.DefaultModel
	}
	return cfg
}

// Validate validates the configuration needed to run the bot
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return &ConfigError{Field: "JEEVES_OPENAI_API_KEY", Message: "required"}
	}
	if c.TickInterval < time.Second {
		return &ConfigError{Field: "JEEVES_TICK_INTERVAL", Message: "must be at least 1s"}
	}

	switch c.Platform {
	case PlatformDiscord:
		if c.DiscordToken == "" {
			return &ConfigError{Field: "JEEVES_DISCORD_TOKEN", Message: "required"}
		}
	case PlatformFeishu:
		if c.FeishuAppID == "" || c.FeishuAppSecret == "" {
			return &ConfigError{Field: "JEEVES_FEISHU_APP_ID/JEEVES_FEISHU_APP_SECRET", Message: "required"}
		}
	default:
		return &ConfigError{Field: "JEEVES_PLATFORM", Message: "must be discord or feishu, got " + c.Platform}
	}
	return nil
}

// ValidateTools validates the configuration needed by the standalone MCP server
func (c *Config) ValidateTools() error {
	if c.OpenAIAPIKey == "" {
		return &ConfigError{Field: "JEEVES_OPENAI_API_KEY", Message: "required"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

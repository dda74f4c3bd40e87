package conf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/usecase"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PLATFORM", "DISCORD_TOKEN", "FEISHU_APP_ID", "FEISHU_APP_SECRET", "OPENAI_API_KEY",
		"OPENAI_BASE_URL", "DEFAULT_MODEL", "DB_PATH", "TICK_INTERVAL", "PROMPTS_FILE", "API_ADDR", "DEBUG",
	} {
		t.Setenv(EnvPrefix+"_"+key, "")
	}
	t.Setenv("OPENAI_API_KEY", "")
	// keep godotenv away from any .env next to the package
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Platform != PlatformDiscord {
		t.Errorf("Expected default platform discord, got %s", cfg.Platform)
	}
	if cfg.DefaultModel != domain.DefaultModel {
		t.Errorf("Expected default model %s, got %s", domain.DefaultModel, cfg.DefaultModel)
	}
	if cfg.TickInterval != 60*time.Second {
		t.Errorf("Expected 60s tick, got %v", cfg.TickInterval)
	}
	if cfg.DBPath != "jeeves.db" {
		t.Errorf("Expected default db path, got %s", cfg.DBPath)
	}
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("JEEVES_PLATFORM", "Feishu")
	t.Setenv("JEEVES_FEISHU_APP_ID", "cli_1")
	t.Setenv("JEEVES_TICK_INTERVAL", "30s")
	t.Setenv("JEEVES_DEBUG", "true")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Platform != PlatformFeishu || cfg.FeishuAppID != "cli_1" {
		t.Errorf("Unexpected platform settings: %+v", cfg)
	}
	if cfg.TickInterval != 30*time.Second || !cfg.Debug {
		t.Errorf("Unexpected tick/debug: %v %v", cfg.TickInterval, cfg.Debug)
	}
	if cfg.OpenAIAPIKey != "sk-fallback" {
		t.Errorf("Expected OPENAI_API_KEY fallback, got %q", cfg.OpenAIAPIKey)
	}

	t.Setenv("JEEVES_OPENAI_API_KEY", "sk-jeeves")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.OpenAIAPIKey != "sk-jeeves" {
		t.Errorf("Expected prefixed key preferred, got %q", cfg.OpenAIAPIKey)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "jeeves.yaml")
	content := "platform: discord\ndiscord_token: file-token\ndefault_model: gpt-4o-mini\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	t.Setenv("JEEVES_DISCORD_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.DiscordToken != "env-token" {
		t.Errorf("Expected environment to win over the file, got %s", cfg.DiscordToken)
	}
	if cfg.DefaultModel != "gpt-4o-mini" {
		t.Errorf("Expected model from file, got %s", cfg.DefaultModel)
	}
	if got := cfg.EntityDefaults().Model; got != "gpt-4o-mini" {
		t.Errorf("Expected entity defaults to use the configured model, got %s", got)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("Expected ConfigError, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{Platform: PlatformDiscord, DiscordToken: "t", OpenAIAPIKey: "k", TickInterval: time.Minute}

	tests := []struct {
		name   string
		modify func(c *Config)
		field  string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no api key", func(c *Config) { c.OpenAIAPIKey = "" }, "JEEVES_OPENAI_API_KEY"},
		{"no discord token", func(c *Config) { c.DiscordToken = "" }, "JEEVES_DISCORD_TOKEN"},
		{"feishu without secret", func(c *Config) { c.Platform = PlatformFeishu; c.FeishuAppID = "a" }, "JEEVES_FEISHU_APP_ID/JEEVES_FEISHU_APP_SECRET"},
		{"unknown platform", func(c *Config) { c.Platform = "irc" }, "JEEVES_PLATFORM"},
		{"tick too short", func(c *Config) { c.TickInterval = time.Millisecond }, "JEEVES_TICK_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			var cerr *ConfigError
			if !errors.As(err, &cerr) || cerr.Field != tt.field {
				t.Errorf("Expected error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestLoadPrompts_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	set, path, err := LoadPrompts("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("Expected no file loaded, got %s", path)
	}
	if set.Reminder != usecase.DefaultPromptSet().Reminder {
		t.Error("Expected built-in prompts")
	}
}

func TestLoadPrompts_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.MkdirAll("configs", 0o755); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	content := `personas:
  jeeves: You are a butler.
reminder: Remind them.
`
	if err := os.WriteFile(filepath.Join("configs", "prompts.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	set, path, err := LoadPrompts("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if path != filepath.Join("configs", "prompts.yaml") {
		t.Errorf("Expected configs/prompts.yaml loaded, got %s", path)
	}
	if set.Personas[domain.PersonaJeeves] != "You are a butler." || set.Reminder != "Remind them." {
		t.Errorf("Expected overrides applied, got %+v", set)
	}
	defaults := usecase.DefaultPromptSet()
	if set.Personas[domain.PersonaJargon] != defaults.Personas[domain.PersonaJargon] || set.Learning != defaults.Learning {
		t.Error("Expected unset prompts to keep their defaults")
	}
}

func TestLoadPrompts_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, _, err := LoadPrompts(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("Expected error for an explicit missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("personas:\n  pirate: Arr.\n"), 0o644)
	if _, _, err := LoadPrompts(bad); err == nil || !strings.Contains(err.Error(), "pirate") {
		t.Errorf("Expected unknown persona error, got %v", err)
	}
}

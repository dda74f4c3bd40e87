package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/0x70b1a5/jeevespt/internal/biz/domain"
	"github.com/0x70b1a5/jeevespt/internal/biz/usecase"
)

// PromptsConfig is the YAML layout of the prompt overrides file.
// Any field left empty keeps the built-in text.
type PromptsConfig struct {
	Personas      map[string]string `yaml:"personas"`
	ShortResponse string            `yaml:"short_response"`
	Reminder      string            `yaml:"reminder"`
	Learning      string            `yaml:"learning"`
	Commentary    string            `yaml:"commentary"`
	Translate     string            `yaml:"translate"`
	Reaction      string            `yaml:"reaction"`
}

// LoadPrompts loads the prompt set, applying overrides from a YAML file.
// With an empty path the usual locations are searched; finding nothing yields the defaults.
// The returned path is the file that was read, empty when none was.
func LoadPrompts(configPath string) (usecase.PromptSet, string, error) {
	defaults := usecase.DefaultPromptSet()

	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/jeeves/prompts.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data, loadedPath = b, p
			break
		}
		if configPath != "" {
			return defaults, "", fmt.Errorf("failed to read prompts file: %w", err)
		}
	}
	if data == nil {
		return defaults, "", nil
	}

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return defaults, "", fmt.Errorf("failed to parse %s: %w", loadedPath, err)
	}

	set, err := config.toPromptSet()
	if err != nil {
		return defaults, "", fmt.Errorf("%s: %w", loadedPath, err)
	}
	return set.Merge(defaults), loadedPath, nil
}

func (c *PromptsConfig) toPromptSet() (usecase.PromptSet, error) {
	set := usecase.PromptSet{
		Personas:      make(map[domain.Persona]string, len(c.Personas)),
		ShortResponse: c.ShortResponse,
		Reminder:      c.Reminder,
		Learning:      c.Learning,
		Commentary:    c.Commentary,
		Translate:     c.Translate,
		Reaction:      c.Reaction,
	}
	for name, text := range c.Personas {
		p := domain.Persona(name)
		// custom uses the entity's own prompt and whisper never generates
		if !p.Valid() || p == domain.PersonaCustom || p == domain.PersonaWhisper {
			return usecase.PromptSet{}, fmt.Errorf("unknown persona %q", name)
		}
		set.Personas[p] = text
	}
	return set, nil
}

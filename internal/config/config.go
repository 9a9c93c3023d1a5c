// Package config handles loading and managing configuration for the kickoff simulator.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jxmullins/kickoff/internal/prompt"
	"github.com/jxmullins/kickoff/internal/roster"
)

// Config holds all application configuration.
type Config struct {
	Model            ModelConfig      `yaml:"model"`
	InsightsModel    *ModelConfig     `yaml:"insights_model,omitempty"`
	Simulation       SimulationConfig `yaml:"simulation"`
	Archive          ArchiveConfig    `yaml:"archive"`
	Overrides        Overrides        `yaml:"overrides"`
	SystemPromptsDir string           `yaml:"system_prompts_dir,omitempty"`
}

// ModelConfig holds configuration for a single AI model.
type ModelConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	Endpoint       string  `yaml:"endpoint,omitempty"`
	AuthEnvVar     string  `yaml:"auth_env_var,omitempty"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// SimulationConfig holds pacing and prompt-size settings.
type SimulationConfig struct {
	AgentStartDelayMS       int `yaml:"agent_start_delay_ms"`
	PhaseDelayMS            int `yaml:"phase_delay_ms"`
	MaxSOWChars             int `yaml:"max_sow_chars"`
	MaxContextChars         int `yaml:"max_context_chars"`
	DeliverablePreviewChars int `yaml:"deliverable_preview_chars"`
	InsightsMaxTokens       int `yaml:"insights_max_tokens"`
}

// ArchiveConfig controls where finished runs are kept.
type ArchiveConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir"`
}

// IsEnabled reports whether runs are archived. Unset means enabled.
func (a ArchiveConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Overrides is the operator-editable team definition. Every empty section
// falls back to the built-in roster.
type Overrides struct {
	roster.Overrides `yaml:",inline"`
	Templates        prompt.Templates `yaml:"templates"`
}

// SystemPromptFile is a per-agent prompt file in SystemPromptsDir.
type SystemPromptFile struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads configuration from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.setDefaults()

	if cfg.SystemPromptsDir != "" {
		dir := cfg.SystemPromptsDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		if err := cfg.MergeSystemPromptsDir(dir); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// LoadFromDir loads configuration from the standard config directory.
func LoadFromDir(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, "config.yaml")
	return Load(configPath)
}

// setDefaults applies default values for any unset fields.
func (c *Config) setDefaults() {
	if c.Model.Provider == "" {
		c.Model.Provider = "google"
	}
	if c.Model.Model == "" && c.Model.Provider == "google" {
		c.Model.Model = "gemini-2.0-flash"
	}
	if c.Model.Temperature == 0 {
		c.Model.Temperature = 0.8
	}
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = 4096
	}
	if c.Model.TimeoutSeconds == 0 {
		c.Model.TimeoutSeconds = 180
	}
	if c.Simulation.AgentStartDelayMS == 0 {
		c.Simulation.AgentStartDelayMS = 800
	}
	if c.Simulation.PhaseDelayMS == 0 {
		c.Simulation.PhaseDelayMS = 1000
	}
	if c.Simulation.MaxSOWChars == 0 {
		c.Simulation.MaxSOWChars = prompt.DefaultMaxSOWChars
	}
	if c.Simulation.MaxContextChars == 0 {
		c.Simulation.MaxContextChars = prompt.DefaultMaxContextChars
	}
	if c.Simulation.DeliverablePreviewChars == 0 {
		c.Simulation.DeliverablePreviewChars = prompt.DefaultDeliverablePreview
	}
	if c.Simulation.InsightsMaxTokens == 0 {
		c.Simulation.InsightsMaxTokens = 8192
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = "./runs"
	}
}

// InsightsModelConfig returns the model used for the insights report, which
// defaults to the agent model.
func (c *Config) InsightsModelConfig() ModelConfig {
	if c.InsightsModel != nil && c.InsightsModel.Provider != "" {
		return *c.InsightsModel
	}
	return c.Model
}

// Roster builds the active roster from the overrides.
func (c *Config) Roster() *roster.Roster {
	return roster.New(c.Overrides.Overrides)
}

// PromptLimits returns the prompt truncation limits.
func (c *Config) PromptLimits() prompt.Limits {
	return prompt.Limits{
		MaxSOWChars:        c.Simulation.MaxSOWChars,
		MaxContextChars:    c.Simulation.MaxContextChars,
		DeliverablePreview: c.Simulation.DeliverablePreviewChars,
	}
}

// MergeSystemPromptsDir layers per-agent prompt files over the configured
// system prompts. Prompts from files win.
func (c *Config) MergeSystemPromptsDir(dir string) error {
	prompts, err := LoadSystemPromptsFromDir(dir)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return nil
	}

	merged := make(map[string]string)
	base := c.Overrides.SystemPrompts
	if len(base) == 0 {
		r := roster.Default()
		base = make(map[string]string)
		for _, a := range r.Agents() {
			base[a.ID] = r.SystemPrompt(a.ID)
		}
	}
	for id, p := range base {
		merged[id] = p
	}
	for id, f := range prompts {
		merged[id] = f.SystemPrompt
	}
	c.Overrides.SystemPrompts = merged
	return nil
}

// LoadSystemPrompt loads an agent prompt from a YAML file.
func LoadSystemPrompt(path string) (*SystemPromptFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading system prompt file: %w", err)
	}

	var f SystemPromptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing system prompt file: %w", err)
	}
	if strings.TrimSpace(f.SystemPrompt) == "" {
		return nil, fmt.Errorf("system prompt file %s: system_prompt is empty", filepath.Base(path))
	}

	return &f, nil
}

// LoadSystemPromptsFromDir loads every <agent-id>.yaml file in a directory.
func LoadSystemPromptsFromDir(dir string) (map[string]*SystemPromptFile, error) {
	prompts := make(map[string]*SystemPromptFile)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return prompts, nil
		}
		return nil, fmt.Errorf("reading system prompts directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		f, err := LoadSystemPrompt(path)
		if err != nil {
			return nil, fmt.Errorf("loading system prompt %s: %w", entry.Name(), err)
		}

		// Use filename without extension as key
		key := strings.TrimSuffix(entry.Name(), ".yaml")
		prompts[key] = f
	}

	return prompts, nil
}

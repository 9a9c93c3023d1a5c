// Package provider defines the interface for AI provider adapters and the
// structured client the simulation talks to.
package provider

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jxmullins/kickoff/internal/config"
)

// StreamChunk represents a piece of streaming response.
type StreamChunk struct {
	Content string
	Done    bool
	Error   error
	// TokensUsed is set on the final chunk when the API reports usage.
	TokensUsed int
}

// Request holds the parameters for an AI invocation.
type Request struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	// JSONMode asks for a bare JSON object. ResponseSchema, when set,
	// constrains its shape.
	JSONMode       bool
	ResponseSchema map[string]any
}

// MaxPromptLength is the maximum allowed length for prompts to prevent DOS attacks
const MaxPromptLength = 1000000 // 1MB

// Validate checks if the request is valid
func (r *Request) Validate() error {
	if len(r.Prompt) > MaxPromptLength {
		return fmt.Errorf("prompt too long: %d bytes (max: %d)", len(r.Prompt), MaxPromptLength)
	}
	if len(r.SystemPrompt) > MaxPromptLength {
		return fmt.Errorf("system prompt too long: %d bytes (max: %d)", len(r.SystemPrompt), MaxPromptLength)
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// Response holds the result of an AI invocation.
type Response struct {
	Content      string
	Model        string
	FinishReason string
	TokensUsed   int
}

// Provider defines the interface that all AI provider adapters must implement.
type Provider interface {
	// Name returns the provider's identifier (e.g., "google", "openai").
	Name() string

	// Invoke sends a request and returns the complete response.
	Invoke(ctx context.Context, req Request) (*Response, error)

	// Stream sends a request and returns a channel of response chunks.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// HealthCheck verifies the provider is accessible.
	HealthCheck(ctx context.Context) error
}

// Names lists every provider New can build.
func Names() []string {
	names := []string{"google", "anthropic", "openai", ScriptedName}
	for name := range compatPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the provider a model configuration names.
func New(cfg config.ModelConfig) (Provider, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	var p Provider
	switch cfg.Provider {
	case "google", "gemini":
		g := NewGoogleProvider(cfg.Model)
		g.timeoutOverride(timeout)
		g.envOverride(cfg.AuthEnvVar)
		if cfg.Endpoint != "" {
			g.SetBaseURL(cfg.Endpoint)
		}
		p = g
	case "anthropic":
		a := NewAnthropicProvider(cfg.Model)
		a.timeoutOverride(timeout)
		a.envOverride(cfg.AuthEnvVar)
		if cfg.Endpoint != "" {
			a.SetBaseURL(cfg.Endpoint)
		}
		p = a
	case "openai":
		o := NewOpenAIProvider(cfg.Model)
		o.timeoutOverride(timeout)
		o.envOverride(cfg.AuthEnvVar)
		if cfg.Endpoint != "" {
			o.SetEndpoint(cfg.Endpoint)
		}
		p = o
	case ScriptedName:
		p = NewScripted()
	default:
		preset, ok := compatPresets[cfg.Provider]
		if !ok {
			if cfg.Endpoint == "" {
				return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
			}
			preset = compatPreset{}
		}
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = preset.endpoint
		}
		model := cfg.Model
		if model == "" {
			model = preset.model
		}
		envVar := cfg.AuthEnvVar
		if envVar == "" {
			envVar = preset.apiKeyEnv
		}
		p = NewOpenAICompatProvider(OpenAICompatConfig{
			Name:      cfg.Provider,
			APIKeyEnv: envVar,
			Endpoint:  endpoint,
			Model:     model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   timeout,
		})
	}
	return p, nil
}

func (b *BaseProvider) timeoutOverride(d time.Duration) {
	if d > 0 {
		b.timeout = d
		b.client.Timeout = d
	}
}

func (b *BaseProvider) envOverride(env string) {
	if env != "" && env != b.apiKeyEnv {
		b.apiKeyEnv = env
		b.apiKey = ""
	}
}

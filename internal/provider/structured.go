package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Defaults for the two structured calls.
const (
	DefaultAgentTemperature  = 0.8
	DefaultAgentMaxTokens    = 4096
	DefaultSchemaTemperature = 0.7
	DefaultSchemaMaxTokens   = 8192

	fallbackChatChars = 200
)

// ErrInvalidJSON is returned by GenerateJSON when the model's reply is not JSON.
var ErrInvalidJSON = errors.New("failed to parse response as JSON")

// AgentResult is one agent's structured reply.
type AgentResult struct {
	ChatMessage        string `json:"chatMessage"`
	DeliverableContent string `json:"deliverableContent"`
	// TokensUsed is reported by the provider, 0 when unknown.
	TokensUsed int `json:"-"`
}

// AgentResultSchema constrains agent replies.
var AgentResultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"chatMessage": map[string]any{
			"type":        "string",
			"description": "A conversational message to share in the team chat feed (2-4 sentences, addressing the team)",
		},
		"deliverableContent": map[string]any{
			"type":        "string",
			"description": "The full deliverable content in markdown format",
		},
	},
	"required": []string{"chatMessage", "deliverableContent"},
}

// StructuredRequest is the input to a streaming agent call.
type StructuredRequest struct {
	SystemPrompt string
	UserPrompt   string
}

// SchemaRequest is the input to a non-streaming JSON call.
type SchemaRequest struct {
	SystemPrompt string
	UserPrompt   string
	Schema       map[string]any
	MaxTokens    int
	Temperature  float64
}

// ChunkFunc receives each streamed fragment and the text accumulated so far.
type ChunkFunc func(chunk, fullText string)

// ClientConfig tunes the agent call.
type ClientConfig struct {
	Temperature float64
	MaxTokens   int
}

// Client adapts a Provider to the two calls a simulation makes.
type Client struct {
	provider    Provider
	temperature float64
	maxTokens   int
}

// NewClient wraps a provider.
func NewClient(p Provider, cfg ClientConfig) *Client {
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultAgentTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultAgentMaxTokens
	}
	return &Client{provider: p, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// StreamStructured streams an agent reply, calling onChunk for every fragment.
// A final text that is not the expected JSON object is not an error: the
// first 200 characters become the chat message and the whole text the
// deliverable.
func (c *Client) StreamStructured(ctx context.Context, req StructuredRequest, onChunk ChunkFunc) (AgentResult, error) {
	ch, err := c.provider.Stream(ctx, Request{
		Prompt:         req.UserPrompt,
		SystemPrompt:   req.SystemPrompt,
		MaxTokens:      c.maxTokens,
		Temperature:    c.temperature,
		JSONMode:       true,
		ResponseSchema: AgentResultSchema,
	})
	if err != nil {
		return AgentResult{}, fmt.Errorf("%s: %w", c.provider.Name(), err)
	}

	var full strings.Builder
	tokens := 0
	for chunk := range ch {
		if chunk.Error != nil {
			return AgentResult{}, fmt.Errorf("%s: %w", c.provider.Name(), chunk.Error)
		}
		if chunk.Content != "" {
			full.WriteString(chunk.Content)
			if onChunk != nil {
				onChunk(chunk.Content, full.String())
			}
		}
		if chunk.TokensUsed > 0 {
			tokens = chunk.TokensUsed
		}
		if chunk.Done {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return AgentResult{}, err
	}

	result := ParseAgentResult(full.String())
	result.TokensUsed = tokens
	return result, nil
}

// ParseAgentResult decodes a reply, falling back to raw text when it is not
// a JSON object.
func ParseAgentResult(text string) AgentResult {
	var r AgentResult
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &r); err == nil {
		return r
	}
	return AgentResult{
		ChatMessage:        firstChars(text, fallbackChatChars),
		DeliverableContent: text,
	}
}

// GenerateJSON asks for a single JSON document matching req.Schema.
func (c *Client) GenerateJSON(ctx context.Context, req SchemaRequest) (json.RawMessage, error) {
	temp := req.Temperature
	if temp <= 0 {
		temp = DefaultSchemaTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultSchemaMaxTokens
	}

	resp, err := c.provider.Invoke(ctx, Request{
		Prompt:         req.UserPrompt,
		SystemPrompt:   req.SystemPrompt,
		MaxTokens:      maxTokens,
		Temperature:    temp,
		JSONMode:       true,
		ResponseSchema: req.Schema,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.provider.Name(), err)
	}

	raw := ExtractJSON(resp.Content)
	if !json.Valid([]byte(raw)) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(raw), nil
}

// ExtractJSON strips a markdown code fence wrapped around a JSON reply.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// withSchemaInstruction appends JSON instructions to the system prompt for
// APIs that cannot take a schema natively.
func withSchemaInstruction(req Request) string {
	if !req.JSONMode && req.ResponseSchema == nil {
		return req.SystemPrompt
	}
	var sb strings.Builder
	sb.WriteString(req.SystemPrompt)
	if sb.Len() > 0 {
		sb.WriteString("\n\n")
	}
	sb.WriteString("Respond with a single JSON object and nothing else.")
	if req.ResponseSchema != nil {
		if schema, err := json.Marshal(req.ResponseSchema); err == nil {
			sb.WriteString(" It must match this JSON schema:\n")
			sb.Write(schema)
		}
	}
	return sb.String()
}

func firstChars(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// compatPreset is a known OpenAI-compatible endpoint.
type compatPreset struct {
	endpoint  string
	apiKeyEnv string
	model     string
}

var compatPresets = map[string]compatPreset{
	"groq":     {"https://api.groq.com/openai/v1", "GROQ_API_KEY", "llama-3.3-70b-versatile"},
	"deepseek": {"https://api.deepseek.com/v1", "DEEPSEEK_API_KEY", "deepseek-chat"},
	"mistral":  {"https://api.mistral.ai/v1", "MISTRAL_API_KEY", "mistral-large-latest"},
	"xai":      {"https://api.x.ai/v1", "XAI_API_KEY", "grok-3"},
	"lmstudio": {"http://localhost:1234/v1", "", "local-model"},
	"ollama":   {"http://localhost:11434/v1", "", "llama3.1"},
}

// OpenAICompatProvider talks to any endpoint that speaks the Chat Completions
// API: OpenAI itself and the presets above, or a custom endpoint.
type OpenAICompatProvider struct {
	*BaseProvider
	endpoint string
}

// OpenAICompatConfig holds configuration for creating an OpenAI-compatible provider.
type OpenAICompatConfig struct {
	Name      string
	APIKeyEnv string
	Endpoint  string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewOpenAICompatProvider creates a new OpenAI-compatible provider.
func NewOpenAICompatProvider(cfg OpenAICompatConfig) *OpenAICompatProvider {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &OpenAICompatProvider{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:      cfg.Name,
			APIKeyEnv: cfg.APIKeyEnv,
			BaseURL:   cfg.Endpoint,
			Model:     cfg.Model,
			MaxTokens: maxTokens,
			Timeout:   cfg.Timeout,
		}),
		endpoint: cfg.Endpoint,
	}
}

func (p *OpenAICompatProvider) buildRequest(req Request, stream bool) openaiRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	messages := []openaiMessage{}
	if system := withSchemaInstruction(req); system != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: system})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.Prompt})

	apiReq := openaiRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: maxTokens,
		Stream:    stream,
	}
	if stream {
		apiReq.StreamOptions = &openaiStreamOptions{IncludeUsage: true}
	}
	if req.Temperature > 0 {
		apiReq.Temperature = req.Temperature
	}
	if req.JSONMode || req.ResponseSchema != nil {
		apiReq.ResponseFormat = &openaiResponseFormat{Type: "json_object"}
	}
	return apiReq
}

func (p *OpenAICompatProvider) headers() map[string]string {
	headers := map[string]string{}
	if apiKey := p.GetAPIKey(); apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}
	return headers
}

// Invoke sends a request to the OpenAI-compatible API and returns the complete response.
func (p *OpenAICompatProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	if err := p.CheckAPIKeyRequired(); err != nil {
		return nil, err
	}

	url := p.endpoint + "/chat/completions"
	resp, err := p.DoRequest(ctx, http.MethodPost, url, p.buildRequest(req, false), p.headers())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body, openaiErrorMessage)
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &Response{
		Content:      apiResp.Choices[0].Message.Content,
		Model:        apiResp.Model,
		FinishReason: apiResp.Choices[0].FinishReason,
		TokensUsed:   apiResp.Usage.TotalTokens,
	}, nil
}

// Stream sends a request to the OpenAI-compatible API and returns a channel of response chunks.
func (p *OpenAICompatProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	if err := p.CheckAPIKeyRequired(); err != nil {
		return nil, err
	}

	url := p.endpoint + "/chat/completions"
	resp, err := p.DoRequest(ctx, http.MethodPost, url, p.buildRequest(req, true), p.headers())
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, body, openaiErrorMessage)
	}

	out := make(chan StreamChunk, 100)

	// With include_usage the final usage arrives in its own chunk after the
	// finish reason, followed by [DONE].
	go p.ReadSSEStream(resp, out, func(data []byte) (StreamChunk, error) {
		var chunk openaiStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return StreamChunk{}, fmt.Errorf("parsing stream chunk: %w", err)
		}

		if chunk.Usage != nil && len(chunk.Choices) == 0 {
			return StreamChunk{Done: true, TokensUsed: chunk.Usage.TotalTokens}, nil
		}
		if len(chunk.Choices) == 0 {
			return StreamChunk{}, nil
		}
		return StreamChunk{Content: chunk.Choices[0].Delta.Content}, nil
	})

	return out, nil
}

// HealthCheck verifies the API is accessible.
func (p *OpenAICompatProvider) HealthCheck(ctx context.Context) error {
	if err := p.CheckAPIKeyRequired(); err != nil {
		return err
	}

	url := p.endpoint + "/models"
	resp, err := p.DoRequest(ctx, http.MethodGet, url, nil, p.headers())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	return nil
}

// SetEndpoint allows overriding the endpoint.
func (p *OpenAICompatProvider) SetEndpoint(endpoint string) {
	p.endpoint = endpoint
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	googleAPIBaseURL   = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultGoogleModel = "gemini-2.0-flash"
)

// GoogleProvider implements the Provider interface for Google's Generative AI API (Gemini).
type GoogleProvider struct {
	*BaseProvider
}

// NewGoogleProvider creates a new Google provider.
func NewGoogleProvider(model string) *GoogleProvider {
	if model == "" {
		model = defaultGoogleModel
	}

	return &GoogleProvider{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:      "google",
			APIKeyEnv: "GOOGLE_API_KEY",
			BaseURL:   googleAPIBaseURL,
			Model:     model,
			MaxTokens: 4096,
		}),
	}
}

// googleRequest represents the request body for the Google Generative AI API.
type googleRequest struct {
	Contents          []googleContent         `json:"contents"`
	SystemInstruction *googleContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *googleGenerationConfig `json:"generationConfig,omitempty"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleGenerationConfig struct {
	MaxOutputTokens  int            `json:"maxOutputTokens,omitempty"`
	Temperature      float64        `json:"temperature,omitempty"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type googleUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// googleResponse is both the unary response and each streamed chunk.
type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []googlePart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	UsageMetadata *googleUsage `json:"usageMetadata,omitempty"`
}

func (r *googleResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func (r *googleResponse) finishReason() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].FinishReason
}

// googleErrorResponse represents an error response from the API.
type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func googleErrorMessage(body []byte) string {
	var errResp googleErrorResponse
	if json.Unmarshal(body, &errResp) == nil {
		return errResp.Error.Message
	}
	return ""
}

// Invoke sends a request to the Google Generative AI API and returns the complete response.
func (p *GoogleProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	if err := p.CheckAPIKeyRequired(); err != nil {
		return nil, err
	}

	apiReq := p.buildRequest(req)
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", p.baseURL, p.model, p.GetAPIKey())

	resp, err := p.DoRequest(ctx, http.MethodPost, url, apiReq, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body, googleErrorMessage)
	}

	var apiResp googleResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if len(apiResp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	out := &Response{
		Content:      apiResp.text(),
		Model:        p.model,
		FinishReason: apiResp.finishReason(),
	}
	if apiResp.UsageMetadata != nil {
		out.TokensUsed = apiResp.UsageMetadata.TotalTokenCount
	}
	return out, nil
}

// Stream sends a request to the Google Generative AI API and returns a channel of response chunks.
func (p *GoogleProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	if err := p.CheckAPIKeyRequired(); err != nil {
		return nil, err
	}

	apiReq := p.buildRequest(req)
	url := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse&key=%s", p.baseURL, p.model, p.GetAPIKey())

	resp, err := p.DoRequest(ctx, http.MethodPost, url, apiReq, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, body, googleErrorMessage)
	}

	out := make(chan StreamChunk, 100)

	go p.ReadSSEStream(resp, out, func(data []byte) (StreamChunk, error) {
		var chunk googleResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			slog.Debug("skipping malformed stream chunk", "provider", p.Name(), "error", err)
			return StreamChunk{}, nil
		}

		sc := StreamChunk{Content: chunk.text()}
		if chunk.finishReason() != "" {
			sc.Done = true
			if chunk.UsageMetadata != nil {
				sc.TokensUsed = chunk.UsageMetadata.TotalTokenCount
			}
		}
		return sc, nil
	})

	return out, nil
}

// buildRequest constructs a Google API request from a provider.Request.
func (p *GoogleProvider) buildRequest(req Request) googleRequest {
	apiReq := googleRequest{
		Contents: []googleContent{
			{
				Role:  "user",
				Parts: []googlePart{{Text: req.Prompt}},
			},
		},
	}

	if req.SystemPrompt != "" {
		apiReq.SystemInstruction = &googleContent{
			Parts: []googlePart{{Text: req.SystemPrompt}},
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	apiReq.GenerationConfig = &googleGenerationConfig{
		MaxOutputTokens: maxTokens,
	}

	if req.Temperature > 0 {
		apiReq.GenerationConfig.Temperature = req.Temperature
	}

	if req.JSONMode || req.ResponseSchema != nil {
		apiReq.GenerationConfig.ResponseMimeType = "application/json"
		apiReq.GenerationConfig.ResponseSchema = req.ResponseSchema
	}

	return apiReq
}

// HealthCheck verifies the Google API is accessible.
func (p *GoogleProvider) HealthCheck(ctx context.Context) error {
	if err := p.CheckAPIKeyRequired(); err != nil {
		return err
	}

	// List models to verify connectivity
	url := fmt.Sprintf("%s?key=%s", p.baseURL, p.GetAPIKey())
	resp, err := p.DoRequest(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	return nil
}

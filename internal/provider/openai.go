package provider

import "encoding/json"

const openaiAPIEndpoint = "https://api.openai.com/v1"

// NewOpenAIProvider creates a provider for OpenAI's Chat Completions API.
func NewOpenAIProvider(model string) *OpenAICompatProvider {
	if model == "" {
		model = "gpt-4.1"
	}

	return NewOpenAICompatProvider(OpenAICompatConfig{
		Name:      "openai",
		APIKeyEnv: "OPENAI_API_KEY",
		Endpoint:  openaiAPIEndpoint,
		Model:     model,
		MaxTokens: 4096,
	})
}

// openaiRequest represents the request body for the Chat Completions API.
type openaiRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature,omitempty"`
	Stream         bool                  `json:"stream,omitempty"`
	StreamOptions  *openaiStreamOptions  `json:"stream_options,omitempty"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiResponseFormat struct {
	Type string `json:"type"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// openaiResponse represents the response from the Chat Completions API.
type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage openaiUsage `json:"usage"`
}

// openaiStreamChunk represents a streaming chunk from the Chat Completions API.
type openaiStreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage,omitempty"`
}

// openaiErrorResponse represents an error response from the API.
type openaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func openaiErrorMessage(body []byte) string {
	var errResp openaiErrorResponse
	if json.Unmarshal(body, &errResp) == nil {
		return errResp.Error.Message
	}
	return ""
}

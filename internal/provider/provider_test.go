package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jxmullins/kickoff/internal/config"
)

func TestGoogleStreamJSONMode(t *testing.T) {
	var got googleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("path = %s, want streamGenerateContent", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q, want test-key", r.URL.Query().Get("key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"{\\\"chatMessage\\\":\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"\\\"hi\\\",\\\"deliverableContent\\\":\\\"doc\\\"}\"}]},\"finishReason\":\"STOP\"}],\"usageMetadata\":{\"totalTokenCount\":42}}\n\n")
	}))
	defer srv.Close()

	p := NewGoogleProvider("gemini-test")
	p.SetBaseURL(srv.URL)
	p.SetAPIKey("test-key")

	res, err := NewClient(p, ClientConfig{}).StreamStructured(context.Background(), StructuredRequest{SystemPrompt: "sys", UserPrompt: "go"}, nil)
	if err != nil {
		t.Fatalf("StreamStructured() error = %v", err)
	}
	if res.ChatMessage != "hi" || res.DeliverableContent != "doc" {
		t.Errorf("result = %+v", res)
	}
	if res.TokensUsed != 42 {
		t.Errorf("TokensUsed = %d, want 42", res.TokensUsed)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("generationConfig = %+v, want JSON mime type", got.GenerationConfig)
	}
	if got.GenerationConfig.ResponseSchema == nil {
		t.Error("responseSchema not sent")
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "sys" {
		t.Error("system instruction not sent")
	}
}

func TestGoogleStreamSkipsMalformedChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {not json\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	}))
	defer srv.Close()

	p := NewGoogleProvider("gemini-test")
	p.SetBaseURL(srv.URL)
	p.SetAPIKey("k")

	ch, err := p.Stream(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	var text strings.Builder
	done := false
	for chunk := range ch {
		if chunk.Error != nil {
			t.Fatalf("chunk error = %v", chunk.Error)
		}
		text.WriteString(chunk.Content)
		done = done || chunk.Done
	}
	if text.String() != "Hello" {
		t.Errorf("text = %q, want Hello", text.String())
	}
	if !done {
		t.Error("stream ended without a done chunk")
	}
}

func TestGoogleAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"Resource exhausted","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	p := NewGoogleProvider("")
	p.SetBaseURL(srv.URL)
	p.SetAPIKey("k")

	_, err := p.Stream(context.Background(), Request{Prompt: "x"})
	if err == nil || err.Error() != "API error (429): Resource exhausted" {
		t.Errorf("Stream() error = %v", err)
	}
}

func TestGoogleMissingKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	p := NewGoogleProvider("")
	if _, err := p.Invoke(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Error("Invoke() without key error = nil")
	}
}

func TestOpenAICompatStreamUsage(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"{\\\"chatMessage\\\":\\\"a\\\",\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"\\\"deliverableContent\\\":\\\"b\\\"}\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"total_tokens\":7}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	t.Setenv("TEST_COMPAT_KEY", "secret")
	p, err := New(config.ModelConfig{Provider: "custom", Endpoint: srv.URL, AuthEnvVar: "TEST_COMPAT_KEY", Model: "m"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := NewClient(p, ClientConfig{}).StreamStructured(context.Background(), StructuredRequest{UserPrompt: "go"}, nil)
	if err != nil {
		t.Fatalf("StreamStructured() error = %v", err)
	}
	if res.ChatMessage != "a" || res.DeliverableContent != "b" || res.TokensUsed != 7 {
		t.Errorf("result = %+v", res)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", got.ResponseFormat)
	}
	if got.StreamOptions == nil || !got.StreamOptions.IncludeUsage {
		t.Error("stream_options.include_usage not set")
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"google", "anthropic", "openai", "groq", "ollama", ScriptedName} {
		p, err := New(config.ModelConfig{Provider: name})
		if err != nil {
			t.Errorf("New(%s) error = %v", name, err)
			continue
		}
		if p.Name() != name {
			t.Errorf("New(%s).Name() = %s", name, p.Name())
		}
	}
	if _, err := New(config.ModelConfig{Provider: "nope"}); err == nil {
		t.Error("New(unknown) error = nil")
	}
}

func TestRequestValidate(t *testing.T) {
	r := Request{Prompt: "x", Temperature: 3}
	if err := r.Validate(); err == nil {
		t.Error("Validate(temperature 3) = nil")
	}
	r.Temperature = 0.8
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseAgentResult(t *testing.T) {
	got := ParseAgentResult(`{"chatMessage":"hi team","deliverableContent":"# Plan"}`)
	if got.ChatMessage != "hi team" || got.DeliverableContent != "# Plan" {
		t.Errorf("ParseAgentResult(json) = %+v", got)
	}

	fenced := "```json\n{\"chatMessage\":\"a\",\"deliverableContent\":\"b\"}\n```"
	got = ParseAgentResult(fenced)
	if got.ChatMessage != "a" || got.DeliverableContent != "b" {
		t.Errorf("ParseAgentResult(fenced) = %+v", got)
	}
}

func TestParseAgentResultFallback(t *testing.T) {
	text := strings.Repeat("x", 250)
	got := ParseAgentResult(text)

	if len(got.ChatMessage) != 200 {
		t.Errorf("len(ChatMessage) = %d, want 200", len(got.ChatMessage))
	}
	if got.DeliverableContent != text {
		t.Error("DeliverableContent != full text")
	}

	short := "not json"
	got = ParseAgentResult(short)
	if got.ChatMessage != short || got.DeliverableContent != short {
		t.Errorf("ParseAgentResult(short) = %+v", got)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}\n", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1]\n```", `[1]`},
	}
	for _, tt := range tests {
		if got := ExtractJSON(tt.in); got != tt.want {
			t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStreamStructured(t *testing.T) {
	s := NewScripted()
	s.ChunkSize = 7
	s.Reply = func(Request) (string, error) {
		return `{"chatMessage":"ready","deliverableContent":"## Déjà vu"}`, nil
	}
	c := NewClient(s, ClientConfig{})

	var chunks []string
	var last string
	got, err := c.StreamStructured(context.Background(), StructuredRequest{SystemPrompt: "sys", UserPrompt: "user"}, func(chunk, full string) {
		chunks = append(chunks, chunk)
		last = full
	})
	if err != nil {
		t.Fatalf("StreamStructured() error = %v", err)
	}
	if got.ChatMessage != "ready" || got.DeliverableContent != "## Déjà vu" {
		t.Errorf("StreamStructured() = %+v", got)
	}
	if len(chunks) < 2 {
		t.Errorf("got %d chunks, want several", len(chunks))
	}
	if last != strings.Join(chunks, "") {
		t.Error("final fullText != concatenated chunks")
	}

	calls := s.Calls()
	if len(calls) != 1 {
		t.Fatalf("len(Calls()) = %d, want 1", len(calls))
	}
	if !calls[0].JSONMode || calls[0].Temperature != DefaultAgentTemperature || calls[0].MaxTokens != DefaultAgentMaxTokens {
		t.Errorf("request = %+v, want JSON mode with defaults", calls[0])
	}
}

func TestStreamStructuredError(t *testing.T) {
	s := NewScripted()
	s.Reply = func(Request) (string, error) { return "", errors.New("quota exceeded") }

	_, err := NewClient(s, ClientConfig{}).StreamStructured(context.Background(), StructuredRequest{}, nil)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("StreamStructured() error = %v, want quota exceeded", err)
	}
}

func TestGenerateJSON(t *testing.T) {
	s := NewScripted()
	s.Reply = func(Request) (string, error) { return "```json\n{\"ok\":true}\n```", nil }
	c := NewClient(s, ClientConfig{})

	raw, err := c.GenerateJSON(context.Background(), SchemaRequest{UserPrompt: "go"})
	if err != nil {
		t.Fatalf("GenerateJSON() error = %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("GenerateJSON() = %s", raw)
	}
	call := s.Calls()[0]
	if call.Temperature != DefaultSchemaTemperature || call.MaxTokens != DefaultSchemaMaxTokens {
		t.Errorf("request = %+v, want schema defaults", call)
	}

	s.Reply = func(Request) (string, error) { return "sorry, no", nil }
	if _, err := c.GenerateJSON(context.Background(), SchemaRequest{}); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("GenerateJSON(prose) error = %v, want ErrInvalidJSON", err)
	}
}

func TestDefaultScript(t *testing.T) {
	text, err := DefaultScript(Request{Prompt: "## Task: Test Strategy & Quality Plan\n\n## Instructions\n..."})
	if err != nil {
		t.Fatalf("DefaultScript() error = %v", err)
	}
	r := ParseAgentResult(text)
	if !strings.Contains(r.DeliverableContent, "## Test Strategy & Quality Plan") {
		t.Errorf("deliverable = %q, want task heading", r.DeliverableContent)
	}

	text, _ = DefaultScript(Request{ResponseSchema: map[string]any{
		"properties": map[string]any{"executiveSummary": map[string]any{}},
	}})
	if !strings.Contains(text, "executiveSummary") {
		t.Error("DefaultScript(insights schema) did not return insights")
	}
}

func TestWithSchemaInstruction(t *testing.T) {
	if got := withSchemaInstruction(Request{SystemPrompt: "sys"}); got != "sys" {
		t.Errorf("withSchemaInstruction(plain) = %q, want sys", got)
	}
	got := withSchemaInstruction(Request{SystemPrompt: "sys", ResponseSchema: AgentResultSchema})
	if !strings.HasPrefix(got, "sys\n\nRespond with a single JSON object") || !strings.Contains(got, "deliverableContent") {
		t.Errorf("withSchemaInstruction(schema) = %q", got)
	}
}

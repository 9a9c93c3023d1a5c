package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jxmullins/kickoff/internal/archive"
	"github.com/jxmullins/kickoff/internal/config"
)

func newTestTools(t *testing.T) *Tools {
	t.Helper()
	cfg := config.Default()
	cfg.Archive.Dir = t.TempDir()
	return NewTools(cfg)
}

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	return result
}

// getResultText extracts the text content from a CallToolResult.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestDefinitions(t *testing.T) {
	tools := newTestTools(t)
	want := map[string]mcp.Tool{
		"kickoff_agents":         tools.AgentsDefinition(),
		"kickoff_parse_staffing": tools.StaffingDefinition(),
		"kickoff_timeline":       tools.TimelineDefinition(),
		"kickoff_run":            tools.RunDefinition(),
		"kickoff_runs":           tools.RunsDefinition(),
	}
	for name, def := range want {
		if def.Name != name {
			t.Errorf("name = %q, want %q", def.Name, name)
		}
	}
	if New(nil) == nil {
		t.Error("New returned nil server")
	}
}

func TestHandleAgents(t *testing.T) {
	tools := newTestTools(t)
	text := getResultText(call(t, tools.HandleAgents, nil))

	for _, want := range []string{"client-partner", "Solutions Architect", "Data & Integration Strategy", "Discovery"} {
		if !strings.Contains(text, want) {
			t.Errorf("agents output missing %q", want)
		}
	}
}

func TestHandleStaffing(t *testing.T) {
	tools := newTestTools(t)
	result := call(t, tools.HandleStaffing, map[string]interface{}{
		"staffing_plan": "Sr. Data Engineer — Pipeline Architect\nQA Engineer",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getResultText(result))
	}

	var got []roleAssignment
	if err := json.Unmarshal([]byte(getResultText(result)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	roles := make(map[string]roleAssignment)
	for _, r := range got {
		roles[r.AgentID] = r
	}
	if r := roles["data-engineer"]; r.Role != "Pipeline Architect" || !r.FromPlan {
		t.Errorf("data-engineer = %+v", r)
	}
	if r := roles["qa-engineer"]; r.Role != "QA Lead" || r.FromPlan {
		t.Errorf("qa-engineer = %+v, want default role", r)
	}
}

func TestHandleStaffingRequiresPlan(t *testing.T) {
	tools := newTestTools(t)
	if result := call(t, tools.HandleStaffing, map[string]interface{}{}); !result.IsError {
		t.Error("expected error result")
	}
}

func TestHandleTimeline(t *testing.T) {
	tools := newTestTools(t)
	result := call(t, tools.HandleTimeline, map[string]interface{}{
		"start_date": "2025-01-06",
		"end_date":   "2025-03-28",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getResultText(result))
	}

	var got struct {
		TotalBusinessDays int           `json:"totalBusinessDays"`
		Phases            []phaseWindow `json:"phases"`
	}
	if err := json.Unmarshal([]byte(getResultText(result)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Phases) != 5 {
		t.Fatalf("phases = %d, want 5", len(got.Phases))
	}
	if got.Phases[0].Start != "Jan 6, 2025" {
		t.Errorf("phase 1 start = %q", got.Phases[0].Start)
	}
}

func TestHandleTimelineErrors(t *testing.T) {
	tools := newTestTools(t)
	tests := []map[string]interface{}{
		{"start_date": "2025-01-06"},
		{"start_date": "06/01/2025", "end_date": "2025-03-28"},
		{"start_date": "2025-03-28", "end_date": "2025-01-06"},
	}
	for _, args := range tests {
		if result := call(t, tools.HandleTimeline, args); !result.IsError {
			t.Errorf("args %v: expected error result", args)
		}
	}
}

func TestHandleRunOffline(t *testing.T) {
	tools := newTestTools(t)
	result := call(t, tools.HandleRun, map[string]interface{}{
		"sow":           "Build a recommendation engine for an online retailer.",
		"staffing_plan": "ML Engineer - Model Owner",
		"start_date":    "2025-01-06",
		"end_date":      "2025-03-28",
		"offline":       true,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getResultText(result))
	}

	var got runResult
	if err := json.Unmarshal([]byte(getResultText(result)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != "completed" {
		t.Fatalf("state = %q, want completed (error %q)", got.State, got.Error)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if len(got.Deliverables) != 10 {
		t.Errorf("deliverables = %d, want 10", len(got.Deliverables))
	}
	for _, d := range got.Deliverables {
		if d.Status != "completed" || d.Content == "" || d.CompletedDate == "" {
			t.Errorf("deliverable %s = %+v", d.ID, d)
		}
	}
	if got.Insights == nil {
		t.Error("insights missing")
	}
	if got.ProjectRoles["ai-ml-engineer"] != "Model Owner" {
		t.Errorf("ai-ml-engineer role = %q", got.ProjectRoles["ai-ml-engineer"])
	}

	// The run is archived and visible through kickoff_runs.
	list := call(t, tools.HandleRuns, map[string]interface{}{})
	var runs []archive.Run
	if err := json.Unmarshal([]byte(getResultText(list)), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != got.RunID {
		t.Fatalf("runs = %+v, want %s", runs, got.RunID)
	}

	detail := call(t, tools.HandleRuns, map[string]interface{}{"run_id": got.RunID})
	if detail.IsError || !strings.Contains(getResultText(detail), "tech-architecture") {
		t.Errorf("run detail = %s", getResultText(detail))
	}
}

func TestHandleRunRequiresSOW(t *testing.T) {
	tools := newTestTools(t)
	if result := call(t, tools.HandleRun, map[string]interface{}{"offline": true}); !result.IsError {
		t.Error("expected error result")
	}
}

func TestHandleRunsUnknownID(t *testing.T) {
	tools := newTestTools(t)
	result := call(t, tools.HandleRuns, map[string]interface{}{"run_id": "missing"})
	if !result.IsError {
		t.Error("expected error result")
	}
}

package budget

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestRecordUsage(t *testing.T) {
	tr := NewTracker()

	u := tr.RecordUsage("google", "gemini-2.0-flash", "client-partner", 1, 4000)
	if math.Abs(u.Cost-0.001) > 1e-12 {
		t.Errorf("Cost = %v, want 0.001", u.Cost)
	}
	tr.RecordUsage("ollama", "llama3.1", "qa-engineer", 4, 1000)
	tr.RecordUsage("google", "gemini-2.0-flash", "client-partner", 5, 1000)

	if got := tr.GetTotalTokens(); got != 6000 {
		t.Errorf("GetTotalTokens() = %d, want 6000", got)
	}
	byAgent := tr.GetTokensByAgent()
	if byAgent["client-partner"] != 5000 || byAgent["qa-engineer"] != 1000 {
		t.Errorf("GetTokensByAgent() = %v", byAgent)
	}
	if _, ok := tr.GetPricing("ollama", "anything"); !ok {
		t.Error("GetPricing(ollama wildcard) not found")
	}
	if _, ok := tr.GetPricing("nobody", "x"); ok {
		t.Error("GetPricing(unknown) found")
	}
}

func TestBudgetLimit(t *testing.T) {
	tr := NewTracker()
	tr.SetBudget(0.001)
	tr.RecordUsage("google", "gemini-2.5-pro", "a", 1, 1000)
	if !tr.IsOverBudget() {
		t.Error("IsOverBudget() = false, want true")
	}
	if !strings.Contains(tr.Summary(), "Budget:") {
		t.Error("Summary() missing budget line")
	}
}

func TestConcurrentRecord(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordUsage("scripted", "scripted", "agent", 3, 10)
		}()
	}
	wg.Wait()
	if got := len(tr.GetUsages()); got != 20 {
		t.Errorf("len(GetUsages()) = %d, want 20", got)
	}
}

func TestSummaryAndSave(t *testing.T) {
	tr := NewTracker()
	if tr.Summary() != "No usage recorded" {
		t.Errorf("Summary() on empty = %q", tr.Summary())
	}
	tr.RecordUsage("google", "gemini-2.0-flash", "data-engineer", 3, 1200)

	path := filepath.Join(t.TempDir(), "usage.json")
	if err := tr.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var saved struct {
		Usages []Usage `json:"usages"`
	}
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("saved file not JSON: %v", err)
	}
	if len(saved.Usages) != 1 || saved.Usages[0].AgentID != "data-engineer" {
		t.Errorf("saved usages = %+v", saved.Usages)
	}
}

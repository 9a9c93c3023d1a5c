// Package budget tracks token usage and estimated cost across a simulation run.
package budget

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// PricingTier is the blended price of a model, in USD per 1K tokens.
type PricingTier struct {
	Provider string
	Model    string
	Per1K    float64
}

// DefaultPricing returns blended pricing for common models.
func DefaultPricing() []PricingTier {
	return []PricingTier{
		{Provider: "google", Model: "gemini-2.0-flash", Per1K: 0.00025},
		{Provider: "google", Model: "gemini-2.5-flash", Per1K: 0.0012},
		{Provider: "google", Model: "gemini-2.5-pro", Per1K: 0.006},
		{Provider: "anthropic", Model: "claude-sonnet-4-5-20250929", Per1K: 0.009},
		{Provider: "anthropic", Model: "claude-haiku-4-5", Per1K: 0.003},
		{Provider: "openai", Model: "gpt-4.1", Per1K: 0.005},
		{Provider: "openai", Model: "gpt-4.1-mini", Per1K: 0.001},
		{Provider: "groq", Model: "llama-3.3-70b-versatile", Per1K: 0.0007},
		{Provider: "deepseek", Model: "deepseek-chat", Per1K: 0.0002},
		{Provider: "mistral", Model: "mistral-large-latest", Per1K: 0.004},

		// Local and offline (free)
		{Provider: "ollama", Model: "*"},
		{Provider: "lmstudio", Model: "*"},
		{Provider: "scripted", Model: "*"},
	}
}

// Usage is the token usage of one model call.
type Usage struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	AgentID   string    `json:"agent_id"`
	Phase     int       `json:"phase,omitempty"`
	Tokens    int       `json:"tokens"`
	Cost      float64   `json:"cost"`
}

// Tracker accumulates usage. It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	usages    []Usage
	pricing   map[string]PricingTier // key: provider/model
	budget    float64                // Max budget (0 = unlimited)
	totalCost float64
}

// NewTracker creates a new budget tracker.
func NewTracker() *Tracker {
	t := &Tracker{
		usages:  []Usage{},
		pricing: make(map[string]PricingTier),
	}

	for _, p := range DefaultPricing() {
		t.pricing[p.Provider+"/"+p.Model] = p
	}

	return t
}

// SetBudget sets a maximum spend in USD.
func (t *Tracker) SetBudget(budget float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.budget = budget
}

// GetPricing returns the pricing for a model.
func (t *Tracker) GetPricing(provider, model string) (PricingTier, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pricingLocked(provider, model)
}

func (t *Tracker) pricingLocked(provider, model string) (PricingTier, bool) {
	if p, ok := t.pricing[provider+"/"+model]; ok {
		return p, true
	}
	if p, ok := t.pricing[provider+"/*"]; ok {
		return p, true
	}
	return PricingTier{}, false
}

// RecordUsage records the tokens one agent spent in one phase.
func (t *Tracker) RecordUsage(provider, model, agentID string, phase, tokens int) Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	pricing, _ := t.pricingLocked(provider, model)
	usage := Usage{
		Timestamp: time.Now(),
		Provider:  provider,
		Model:     model,
		AgentID:   agentID,
		Phase:     phase,
		Tokens:    tokens,
		Cost:      float64(tokens) / 1000 * pricing.Per1K,
	}

	t.usages = append(t.usages, usage)
	t.totalCost += usage.Cost
	return usage
}

// GetTotalCost returns the total cost so far.
func (t *Tracker) GetTotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost
}

// GetTotalTokens returns the tokens recorded so far.
func (t *Tracker) GetTotalTokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, u := range t.usages {
		n += u.Tokens
	}
	return n
}

// IsOverBudget reports whether spend exceeded the budget.
func (t *Tracker) IsOverBudget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.budget > 0 && t.totalCost > t.budget
}

// GetUsages returns all recorded usages.
func (t *Tracker) GetUsages() []Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]Usage, len(t.usages))
	copy(result, t.usages)
	return result
}

// GetTokensByAgent returns total tokens per agent.
func (t *Tracker) GetTokensByAgent() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make(map[string]int)
	for _, u := range t.usages {
		result[u.AgentID] += u.Tokens
	}
	return result
}

// Summary returns a summary of usage.
func (t *Tracker) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.usages) == 0 {
		return "No usage recorded"
	}

	byAgent := make(map[string]int)
	total := 0
	for _, u := range t.usages {
		byAgent[u.AgentID] += u.Tokens
		total += u.Tokens
	}
	agents := make([]string, 0, len(byAgent))
	for id := range byAgent {
		agents = append(agents, id)
	}
	sort.Strings(agents)

	var sb strings.Builder
	sb.WriteString("Usage Summary:\n")
	fmt.Fprintf(&sb, "  Model calls: %d\n", len(t.usages))
	fmt.Fprintf(&sb, "  Tokens: %d\n", total)
	for _, id := range agents {
		fmt.Fprintf(&sb, "    %-22s %d\n", id, byAgent[id])
	}
	fmt.Fprintf(&sb, "  Estimated cost: $%.4f\n", t.totalCost)

	if t.budget > 0 {
		fmt.Fprintf(&sb, "  Budget: $%.4f (%.1f%% used)\n", t.budget, (t.totalCost/t.budget)*100)
	}

	return sb.String()
}

// SaveToFile saves usage data to a JSON file.
func (t *Tracker) SaveToFile(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.MarshalIndent(struct {
		Usages    []Usage `json:"usages"`
		TotalCost float64 `json:"total_cost"`
		Budget    float64 `json:"budget,omitempty"`
	}{
		Usages:    t.usages,
		TotalCost: t.totalCost,
		Budget:    t.budget,
	}, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

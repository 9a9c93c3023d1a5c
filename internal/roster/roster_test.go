package roster

import "testing"

func TestDefaultRoster(t *testing.T) {
	r := Default()

	if got := len(r.Agents()); got != 8 {
		t.Errorf("len(Agents()) = %d, want 8", got)
	}
	if got := len(r.Phases()); got != 5 {
		t.Errorf("len(Phases()) = %d, want 5", got)
	}
	if got := len(r.Deliverables()); got != 10 {
		t.Errorf("len(Deliverables()) = %d, want 10", got)
	}
	if got := r.TotalAgentSlots(); got != 10 {
		t.Errorf("TotalAgentSlots() = %d, want 10", got)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	for _, p := range r.Phases() {
		for _, id := range p.Agents {
			if _, ok := r.Instruction(p.ID, id); !ok {
				t.Errorf("Instruction(%d, %s) missing", p.ID, id)
			}
			if _, ok := r.DeliverableFor(id, p.ID); !ok {
				t.Errorf("DeliverableFor(%s, %d) missing", id, p.ID)
			}
			if r.SystemPrompt(id) == "" {
				t.Errorf("SystemPrompt(%s) empty", id)
			}
		}
	}
}

func TestPhaseOrder(t *testing.T) {
	phases := Default().Phases()
	for i := 1; i < len(phases); i++ {
		if phases[i].ID <= phases[i-1].ID {
			t.Fatalf("phases not ascending: %d then %d", phases[i-1].ID, phases[i].ID)
		}
	}
	if phases[2].Name != "Engineering Breakdown" || len(phases[2].Agents) != 4 {
		t.Errorf("phase 3 = %+v, want Engineering Breakdown with 4 agents", phases[2])
	}
}

func TestLookupsUnknown(t *testing.T) {
	r := Default()

	if _, ok := r.Agent("nobody"); ok {
		t.Error("Agent(nobody) found, want missing")
	}
	if _, ok := r.Phase(42); ok {
		t.Error("Phase(42) found, want missing")
	}
	if _, ok := r.Instruction(1, "qa-engineer"); ok {
		t.Error("Instruction(1, qa-engineer) found, want missing")
	}
	if _, ok := r.DeliverableFor("qa-engineer", 1); ok {
		t.Error("DeliverableFor(qa-engineer, 1) found, want missing")
	}
	if got := r.SystemPrompt("nobody"); got != "" {
		t.Errorf("SystemPrompt(nobody) = %q, want empty", got)
	}
}

func TestOverridesFallBack(t *testing.T) {
	r := New(Overrides{
		Phases: []Phase{
			{ID: 2, Name: "Build", Agents: []string{"fullstack-developer"}},
			{ID: 1, Name: "Intake", Agents: []string{"client-partner"}},
		},
		SystemPrompts: map[string]string{"client-partner": "custom"},
		PhaseInstructions: map[int]map[string]Instruction{
			1: {"client-partner": {Task: "Intake", Instruction: "Read it."}},
		},
	})

	phases := r.Phases()
	if len(phases) != 2 || phases[0].ID != 1 || phases[1].Name != "Build" {
		t.Errorf("Phases() = %+v, want sorted override phases", phases)
	}
	if got := r.SystemPrompt("client-partner"); got != "custom" {
		t.Errorf("SystemPrompt = %q, want custom", got)
	}
	if in, ok := r.Instruction(1, "client-partner"); !ok || in.Task != "Intake" {
		t.Errorf("Instruction(1) = %+v, want override", in)
	}
	// Missing from the override map, found in the built-in set.
	if in, ok := r.Instruction(3, "data-engineer"); !ok || in.Task != "Data Pipeline & Integration Design" {
		t.Errorf("Instruction(3, data-engineer) = %+v, %v, want built-in", in, ok)
	}
	if len(r.Agents()) != 8 {
		t.Errorf("Agents() len = %d, want built-in 8", len(r.Agents()))
	}
}

func TestAgentFallsBackToBuiltin(t *testing.T) {
	r := New(Overrides{
		Agents: []Agent{{ID: "client-partner", JobFunction: "Engagement Lead"}},
	})

	a, ok := r.Agent("client-partner")
	if !ok || a.JobFunction != "Engagement Lead" {
		t.Errorf("Agent(client-partner) = %+v, want override", a)
	}
	a, ok = r.Agent("qa-engineer")
	if !ok || a.JobFunction != "QA Engineer" {
		t.Errorf("Agent(qa-engineer) = %+v, want built-in", a)
	}
}

func TestValidateRejectsUnknownAgent(t *testing.T) {
	r := New(Overrides{
		Phases: []Phase{{ID: 1, Name: "X", Agents: []string{"ghost"}}},
	})
	if err := r.Validate(); err == nil {
		t.Error("Validate() = nil, want error for unknown agent")
	}

	r = New(Overrides{
		Phases: []Phase{{ID: 1, Name: "X", Agents: []string{"client-partner"}}, {ID: 1, Name: "Y", Agents: []string{"client-partner"}}},
	})
	if err := r.Validate(); err == nil {
		t.Error("Validate() = nil, want duplicate phase error")
	}
}

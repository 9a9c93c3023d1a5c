// Package roster holds the kickoff team: agents, phases, deliverables and the
// prompts that drive each agent in each phase.
package roster

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Agent is one role-specialized member of the simulated team.
type Agent struct {
	ID                 string `yaml:"id" json:"id"`
	JobFunction        string `yaml:"job_function" json:"jobFunction"`
	DefaultProjectRole string `yaml:"default_project_role" json:"defaultProjectRole"`
	Emoji              string `yaml:"emoji" json:"emoji"`
	Color              string `yaml:"color" json:"color"`
	Description        string `yaml:"description" json:"description"`
}

// Phase is an ordered stage of the kickoff. Agents run in listed order.
type Phase struct {
	ID     int      `yaml:"id" json:"id"`
	Name   string   `yaml:"name" json:"name"`
	Agents []string `yaml:"agents" json:"agents"`
}

// Deliverable is the document an agent owns in a given phase.
type Deliverable struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	AgentID string `yaml:"agent_id" json:"agentId"`
	Phase   int    `yaml:"phase" json:"phase"`
}

// Instruction is the task an agent performs in a phase.
type Instruction struct {
	Task        string `yaml:"task" json:"task"`
	Instruction string `yaml:"instruction" json:"instruction"`
}

// Overrides replaces roster sections. A nil or empty section keeps the
// built-in value for that section.
type Overrides struct {
	Agents            []Agent                        `yaml:"agents,omitempty"`
	Phases            []Phase                        `yaml:"phases,omitempty"`
	Deliverables      []Deliverable                  `yaml:"deliverables,omitempty"`
	SystemPrompts     map[string]string              `yaml:"system_prompts,omitempty"`
	PhaseInstructions map[int]map[string]Instruction `yaml:"phase_instructions,omitempty"`
}

// Roster is a read-only view over the active team definition.
type Roster struct {
	agents            []Agent
	phases            []Phase
	deliverables      []Deliverable
	systemPrompts     map[string]string
	phaseInstructions map[int]map[string]Instruction

	// builtin backs lookups that miss in an overridden section.
	builtin *Roster
}

var builtin *Roster

func init() {
	r, err := parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("roster: invalid embedded defaults: %v", err))
	}
	builtin = r
}

func parse(data []byte) (*Roster, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}
	r := &Roster{
		agents:            o.Agents,
		phases:            sortedPhases(o.Phases),
		deliverables:      o.Deliverables,
		systemPrompts:     o.SystemPrompts,
		phaseInstructions: o.PhaseInstructions,
	}
	return r, nil
}

// Default returns the built-in roster.
func Default() *Roster {
	return builtin
}

// New builds a roster from overrides, falling back to the built-in value for
// every section the overrides leave empty.
func New(o Overrides) *Roster {
	r := &Roster{
		agents:            builtin.agents,
		phases:            builtin.phases,
		deliverables:      builtin.deliverables,
		systemPrompts:     builtin.systemPrompts,
		phaseInstructions: builtin.phaseInstructions,
		builtin:           builtin,
	}
	if len(o.Agents) > 0 {
		r.agents = o.Agents
	}
	if len(o.Phases) > 0 {
		r.phases = sortedPhases(o.Phases)
	}
	if len(o.Deliverables) > 0 {
		r.deliverables = o.Deliverables
	}
	if len(o.SystemPrompts) > 0 {
		r.systemPrompts = o.SystemPrompts
	}
	if len(o.PhaseInstructions) > 0 {
		r.phaseInstructions = o.PhaseInstructions
	}
	return r
}

func sortedPhases(in []Phase) []Phase {
	out := make([]Phase, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Agents returns the agent list.
func (r *Roster) Agents() []Agent {
	out := make([]Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// Phases returns phases in ascending ID order.
func (r *Roster) Phases() []Phase {
	out := make([]Phase, len(r.phases))
	for i, p := range r.phases {
		p.Agents = append([]string(nil), p.Agents...)
		out[i] = p
	}
	return out
}

// Deliverables returns every deliverable definition.
func (r *Roster) Deliverables() []Deliverable {
	out := make([]Deliverable, len(r.deliverables))
	copy(out, r.deliverables)
	return out
}

// Agent looks up an agent by ID.
func (r *Roster) Agent(id string) (Agent, bool) {
	for _, a := range r.agents {
		if a.ID == id {
			return a, true
		}
	}
	if r.builtin != nil {
		return r.builtin.Agent(id)
	}
	return Agent{}, false
}

// Phase looks up a phase by ID.
func (r *Roster) Phase(id int) (Phase, bool) {
	for _, p := range r.phases {
		if p.ID == id {
			return p, true
		}
	}
	return Phase{}, false
}

// DeliverableFor returns the deliverable an agent owns in a phase.
func (r *Roster) DeliverableFor(agentID string, phaseID int) (Deliverable, bool) {
	for _, d := range r.deliverables {
		if d.AgentID == agentID && d.Phase == phaseID {
			return d, true
		}
	}
	return Deliverable{}, false
}

// Deliverable looks up a deliverable by ID.
func (r *Roster) Deliverable(id string) (Deliverable, bool) {
	for _, d := range r.deliverables {
		if d.ID == id {
			return d, true
		}
	}
	return Deliverable{}, false
}

// SystemPrompt returns the system prompt for an agent, or "" when none exists.
func (r *Roster) SystemPrompt(agentID string) string {
	if p, ok := r.systemPrompts[agentID]; ok {
		return p
	}
	return ""
}

// Instruction returns the task an agent performs in a phase.
func (r *Roster) Instruction(phaseID int, agentID string) (Instruction, bool) {
	if byAgent, ok := r.phaseInstructions[phaseID]; ok {
		if in, ok := byAgent[agentID]; ok {
			return in, true
		}
	}
	if r.builtin != nil {
		return r.builtin.Instruction(phaseID, agentID)
	}
	return Instruction{}, false
}

// TotalAgentSlots counts agent appearances across phases. An agent in two
// phases counts twice.
func (r *Roster) TotalAgentSlots() int {
	n := 0
	for _, p := range r.phases {
		n += len(p.Agents)
	}
	return n
}

// Validate checks the roster for dangling references.
func (r *Roster) Validate() error {
	seen := make(map[int]bool)
	for _, p := range r.phases {
		if seen[p.ID] {
			return fmt.Errorf("duplicate phase id %d", p.ID)
		}
		seen[p.ID] = true
		if len(p.Agents) == 0 {
			return fmt.Errorf("phase %d has no agents", p.ID)
		}
		for _, id := range p.Agents {
			if _, ok := r.Agent(id); !ok {
				return fmt.Errorf("phase %d references unknown agent %q", p.ID, id)
			}
		}
	}
	for _, d := range r.deliverables {
		if _, ok := r.Agent(d.AgentID); !ok {
			return fmt.Errorf("deliverable %q references unknown agent %q", d.ID, d.AgentID)
		}
		if !seen[d.Phase] {
			return fmt.Errorf("deliverable %q references unknown phase %d", d.ID, d.Phase)
		}
	}
	return nil
}

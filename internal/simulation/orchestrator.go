// Package simulation runs a kickoff: agents work through the roster's phases,
// each producing a chat message and a deliverable, and an insights report is
// synthesized at the end.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jxmullins/kickoff/internal/budget"
	"github.com/jxmullins/kickoff/internal/insights"
	"github.com/jxmullins/kickoff/internal/prompt"
	"github.com/jxmullins/kickoff/internal/provider"
	"github.com/jxmullins/kickoff/internal/roster"
	"github.com/jxmullins/kickoff/internal/staffing"
	"github.com/jxmullins/kickoff/internal/timeline"
)

// ModelClient streams one structured agent reply.
type ModelClient interface {
	StreamStructured(ctx context.Context, req provider.StructuredRequest, onChunk provider.ChunkFunc) (provider.AgentResult, error)
}

// InsightsGenerator produces the end-of-run report.
type InsightsGenerator interface {
	Generate(ctx context.Context, in insights.Input) (*insights.Insights, error)
}

// Options configures an orchestrator.
type Options struct {
	SOW               string
	StaffingPlan      string
	AdditionalContext string
	StartDate         *time.Time
	EndDate           *time.Time

	// Roster defaults to the built-in team.
	Roster    *roster.Roster
	Templates prompt.Templates
	Limits    prompt.Limits

	Model ModelClient
	// Insights defaults to a generator over Model when Model can make
	// schema calls.
	Insights          InsightsGenerator
	InsightsMaxTokens int

	// Usage records token spend when set. Provider and ModelName label it.
	Usage        *budget.Tracker
	ProviderName string
	ModelName    string

	// AgentStartDelay is the pause between an agent thinking and typing.
	AgentStartDelay time.Duration
	// PhaseDelay is the pause between phases.
	PhaseDelay time.Duration

	// OnEvent is called synchronously for every event, in emission order.
	OnEvent func(Event)
}

// Orchestrator drives one simulation. Start may be called again after a run
// finishes; each call starts from a clean state.
type Orchestrator struct {
	opts     Options
	roster   *roster.Roster
	builder  *prompt.Builder
	timeline *timeline.Timeline
	roles    map[string]string
	insights InsightsGenerator

	// emitMu serializes every state change with its events.
	emitMu sync.Mutex
	mu     sync.RWMutex
	state  State
	runID  string
	stopCh chan struct{}
	halted bool
}

// New creates an orchestrator. Project roles and the timeline are computed
// once here.
func New(opts Options) (*Orchestrator, error) {
	if opts.Model == nil {
		return nil, errors.New("model client is required")
	}
	r := opts.Roster
	if r == nil {
		r = roster.Default()
	}

	roles := make(map[string]string)
	parsed := staffing.Parse(opts.StaffingPlan)
	for _, a := range r.Agents() {
		roles[a.ID] = staffing.RoleFor(parsed, a)
	}

	gen := opts.Insights
	if gen == nil {
		if jg, ok := opts.Model.(insights.JSONGenerator); ok {
			gen = insights.NewGenerator(jg, opts.InsightsMaxTokens)
		}
	}

	o := &Orchestrator{
		opts:     opts,
		roster:   r,
		builder:  prompt.NewBuilder(r, opts.Templates, opts.Limits),
		timeline: timeline.Compute(opts.StartDate, opts.EndDate, r.Phases()),
		roles:    roles,
		insights: gen,
		runID:    uuid.NewString(),
	}
	o.state = o.freshState()
	o.state.RunState = RunNotStarted
	return o, nil
}

// RunID identifies the current or most recent run.
func (o *Orchestrator) RunID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.runID
}

// Roster returns the team the orchestrator runs.
func (o *Orchestrator) Roster() *roster.Roster {
	return o.roster
}

// Timeline returns the computed schedule, or nil when no valid dates were
// given.
func (o *Orchestrator) Timeline() *timeline.Timeline {
	return o.timeline
}

// ProjectRoles returns each agent's role on this project.
func (o *Orchestrator) ProjectRoles() map[string]string {
	return maps.Clone(o.roles)
}

// State returns a snapshot of the run. Handlers may call it.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.clone()
}

// Stop asks a running simulation to end at the next phase boundary.
// In-flight model calls finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopCh != nil && !o.halted {
		close(o.stopCh)
		o.halted = true
	}
}

// Stopping reports whether Stop was called on the current run.
func (o *Orchestrator) Stopping() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.halted
}

func (o *Orchestrator) freshState() State {
	s := State{
		RunState:      RunRunning,
		AgentStatuses: make(map[string]AgentStatus),
		AgentTasks:    make(map[string]string),
		AgentOutputs:  make(map[string]provider.AgentResult),
		Deliverables:  make(map[string]DeliverableState),
		ProjectRoles:  maps.Clone(o.roles),
	}
	for _, a := range o.roster.Agents() {
		s.AgentStatuses[a.ID] = StatusIdle
	}
	for _, d := range o.roster.Deliverables() {
		s.Deliverables[d.ID] = DeliverableState{Status: DeliverablePending}
	}
	return s
}

// Start runs every phase and then the insights report. It blocks until the
// run completes, fails or is stopped.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state.IsRunning {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	if o.state.RunState != RunNotStarted {
		o.runID = uuid.NewString()
	}
	o.state = o.freshState()
	o.state.IsRunning = true
	o.stopCh = make(chan struct{})
	o.halted = false
	stopCh := o.stopCh
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.state.IsRunning = false
		o.mu.Unlock()
	}()

	o.emit(SimulationStart{})

	phases := o.roster.Phases()
	for i, phase := range phases {
		if stopped(ctx, stopCh) {
			return o.cancel(phase.ID)
		}
		if err := o.runPhase(ctx, phase); err != nil {
			// Stop only takes effect between phases; a failure caused by
			// context cancellation counts as cancelled.
			if ctx.Err() != nil {
				return o.cancel(phase.ID)
			}
			o.apply(func(s *State) []Payload {
				s.RunState = RunFailed
				s.Error = err.Error()
				return []Payload{SimulationError{Error: err.Error()}}
			})
			return err
		}
		if i < len(phases)-1 && !sleep(ctx, stopCh, o.opts.PhaseDelay) {
			return o.cancel(phases[i+1].ID)
		}
	}

	o.generateInsights(ctx)

	o.apply(func(s *State) []Payload {
		s.RunState = RunCompleted
		return []Payload{SimulationComplete{}}
	})
	return nil
}

func (o *Orchestrator) cancel(phaseID int) error {
	o.apply(func(s *State) []Payload {
		s.RunState = RunCancelled
		return []Payload{SimulationCancelled{Phase: phaseID}}
	})
	return ErrCancelled
}

func stopped(ctx context.Context, stopCh <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stopCh:
		return true
	default:
		return false
	}
}

// sleep waits d and reports whether the run should continue.
func sleep(ctx context.Context, stopCh <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return !stopped(ctx, stopCh)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-stopCh:
		return false
	}
}

// apply mutates state and emits the returned events as one step.
func (o *Orchestrator) apply(fn func(s *State) []Payload) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	events := fn(&o.state)
	o.mu.Unlock()

	if o.opts.OnEvent == nil {
		return
	}
	for _, p := range events {
		o.opts.OnEvent(NewEvent(p))
	}
}

func (o *Orchestrator) emit(p Payload) {
	o.apply(func(*State) []Payload { return []Payload{p} })
}

func (o *Orchestrator) setDate(d time.Time) {
	o.apply(func(s *State) []Payload {
		s.SimulatedDate = &d
		return []Payload{TimelineUpdate{SimulatedDate: d}}
	})
}

func (o *Orchestrator) runPhase(ctx context.Context, phase roster.Phase) error {
	window, hasWindow := o.timeline.Phase(phase.ID)

	o.apply(func(s *State) []Payload {
		s.CurrentPhase = phase.ID
		return nil
	})
	if hasWindow {
		o.setDate(window.StartDate)
	}
	o.emit(PhaseStart{PhaseID: phase.ID, PhaseName: phase.Name})

	count := len(phase.Agents)
	if count == 1 {
		var start *time.Time
		if hasWindow {
			start = &window.StartDate
		}
		run, ok := o.beginAgent(phase, phase.Agents[0], start)
		var err error
		if ok {
			err = o.finishAgent(ctx, run)
		}
		if err != nil {
			return &PhaseError{PhaseID: phase.ID, Agents: 1, Err: err}
		}
		if hasWindow {
			o.setDate(window.EndDate)
		}
	} else if count > 1 {
		errs := make([]error, count)
		var wg sync.WaitGroup
		for i, agentID := range phase.Agents {
			var start *time.Time
			if hasWindow {
				d := window.AgentStart(i, count)
				start = &d
				o.setDate(d)
			}
			run, ok := o.beginAgent(phase, agentID, start)
			if !ok {
				continue
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = o.finishAgent(ctx, run)
			}(i)
		}
		wg.Wait()

		if hasWindow {
			o.setDate(window.EndDate)
		}

		var first error
		failed := 0
		for _, err := range errs {
			if err != nil {
				failed++
				if first == nil {
					first = err
				}
			}
		}
		if failed == count {
			return &PhaseError{PhaseID: phase.ID, Agents: count, Err: first}
		}
	}

	o.emit(PhaseComplete{PhaseID: phase.ID, PhaseName: phase.Name})
	return nil
}

// agentRun carries one agent's work in a phase between its synchronous
// start and its model call.
type agentRun struct {
	agent       roster.Agent
	phase       roster.Phase
	instruction roster.Instruction
	deliverable *roster.Deliverable
	start       *time.Time
}

// beginAgent marks the agent thinking and its deliverable in progress. It
// returns false when the agent has nothing to do in this phase.
func (o *Orchestrator) beginAgent(phase roster.Phase, agentID string, start *time.Time) (*agentRun, bool) {
	agent, ok := o.roster.Agent(agentID)
	if !ok {
		return nil, false
	}
	in, ok := o.roster.Instruction(phase.ID, agentID)
	if !ok {
		return nil, false
	}
	run := &agentRun{agent: agent, phase: phase, instruction: in, start: start}
	if d, ok := o.roster.DeliverableFor(agentID, phase.ID); ok {
		run.deliverable = &d
	}

	o.apply(func(s *State) []Payload {
		s.AgentStatuses[agentID] = StatusThinking
		s.AgentTasks[agentID] = in.Task
		events := []Payload{AgentStatusChange{AgentID: agentID, Status: StatusThinking, Task: in.Task}}
		if run.deliverable != nil {
			s.Deliverables[run.deliverable.ID] = DeliverableState{
				Status:    DeliverableInProgress,
				StartDate: copyTime(start),
			}
			events = append(events, DeliverableUpdate{
				DeliverableID: run.deliverable.ID,
				Status:        DeliverableInProgress,
				StartDate:     copyTime(start),
			})
		}
		return events
	})
	return run, true
}

// finishAgent prompts the model and records the result.
func (o *Orchestrator) finishAgent(ctx context.Context, run *agentRun) error {
	agentID := run.agent.ID
	task := run.instruction.Task

	if o.opts.AgentStartDelay > 0 {
		t := time.NewTimer(o.opts.AgentStartDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	o.apply(func(s *State) []Payload {
		s.AgentStatuses[agentID] = StatusActive
		return []Payload{
			AgentStatusChange{AgentID: agentID, Status: StatusActive, Task: task},
			TypingStart{AgentID: agentID},
		}
	})

	// The prompt sees outputs recorded up to now and nothing later.
	userPrompt, _ := o.builder.Build(agentID, run.phase.ID, o.promptContext(run.start))

	result, err := o.opts.Model.StreamStructured(ctx, provider.StructuredRequest{
		SystemPrompt: o.roster.SystemPrompt(agentID),
		UserPrompt:   userPrompt,
	}, func(chunk, full string) {
		o.emit(StreamingChunk{AgentID: agentID, Chunk: chunk, FullText: full})
	})
	if err != nil {
		o.failAgent(run, err)
		return fmt.Errorf("%s: %w", agentID, err)
	}

	if o.opts.Usage != nil && result.TokensUsed > 0 {
		o.opts.Usage.RecordUsage(o.opts.ProviderName, o.opts.ModelName, agentID, run.phase.ID, result.TokensUsed)
	}

	var completed *time.Time
	duration := 0
	if w, ok := o.timeline.Phase(run.phase.ID); ok && run.start != nil {
		duration = w.AgentDuration(len(run.phase.Agents))
		d := w.Completion(*run.start, duration)
		completed = &d
	}

	o.apply(func(s *State) []Payload {
		if _, seen := s.AgentOutputs[agentID]; !seen {
			s.OutputOrder = append(s.OutputOrder, agentID)
		}
		s.AgentOutputs[agentID] = result

		msg := Message{
			ID:        fmt.Sprintf("%s-phase%d-%s", agentID, run.phase.ID, uuid.NewString()[:8]),
			AgentID:   agentID,
			Text:      result.ChatMessage,
			Phase:     run.phase.ID,
			Timestamp: time.Now(),
		}
		s.Messages = append(s.Messages, msg)

		events := []Payload{TypingStop{AgentID: agentID}, MessagePosted{Message: msg}}
		if run.deliverable != nil {
			s.Deliverables[run.deliverable.ID] = DeliverableState{
				Status:        DeliverableCompleted,
				Content:       result.DeliverableContent,
				StartDate:     copyTime(run.start),
				CompletedDate: copyTime(completed),
				DurationDays:  duration,
			}
			events = append(events, DeliverableUpdate{
				DeliverableID: run.deliverable.ID,
				Status:        DeliverableCompleted,
				Content:       result.DeliverableContent,
				CompletedDate: copyTime(completed),
				DurationDays:  duration,
			})
		}
		s.AgentStatuses[agentID] = StatusDone
		return append(events, AgentStatusChange{AgentID: agentID, Status: StatusDone, Task: task})
	})
	return nil
}

func (o *Orchestrator) failAgent(run *agentRun, err error) {
	agentID := run.agent.ID
	o.apply(func(s *State) []Payload {
		s.AgentStatuses[agentID] = StatusError
		s.Error = err.Error()
		events := []Payload{
			TypingStop{AgentID: agentID},
			AgentStatusChange{AgentID: agentID, Status: StatusError, Task: run.instruction.Task},
			AgentError{AgentID: agentID, Error: err.Error()},
		}
		if run.deliverable != nil {
			s.Deliverables[run.deliverable.ID] = DeliverableState{
				Status:    DeliverableError,
				StartDate: copyTime(run.start),
			}
			events = append(events, DeliverableUpdate{DeliverableID: run.deliverable.ID, Status: DeliverableError})
		}
		return events
	})
}

// promptContext snapshots prior outputs. date is the agent's own simulated
// start, which wins over the shared date that sibling agents move.
func (o *Orchestrator) promptContext(date *time.Time) prompt.Context {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if date == nil {
		date = o.state.SimulatedDate
	}
	date = copyTime(date)

	prior := make([]prompt.PriorOutput, 0, len(o.state.OutputOrder))
	for _, id := range o.state.OutputOrder {
		out := o.state.AgentOutputs[id]
		prior = append(prior, prompt.PriorOutput{
			AgentID:            id,
			ChatMessage:        out.ChatMessage,
			DeliverableContent: out.DeliverableContent,
		})
	}
	return prompt.Context{
		SOW:               o.opts.SOW,
		AdditionalContext: o.opts.AdditionalContext,
		Timeline:          o.timeline,
		SimulatedDate:     date,
		PriorOutputs:      prior,
	}
}

// InsightsInput collects every completed deliverable in roster order.
func (o *Orchestrator) InsightsInput() insights.Input {
	o.mu.RLock()
	defer o.mu.RUnlock()

	in := insights.Input{
		SOW:               o.opts.SOW,
		StaffingPlan:      o.opts.StaffingPlan,
		AdditionalContext: o.opts.AdditionalContext,
		Limits:            o.builder.Limits(),
	}
	for _, d := range o.roster.Deliverables() {
		st, ok := o.state.Deliverables[d.ID]
		if !ok || st.Status != DeliverableCompleted {
			continue
		}
		jobFunction := d.AgentID
		if a, ok := o.roster.Agent(d.AgentID); ok {
			jobFunction = a.JobFunction
		}
		in.Deliverables = append(in.Deliverables, insights.DeliverableOutput{
			Title:       d.Title,
			JobFunction: jobFunction,
			Content:     st.Content,
		})
	}
	return in
}

func (o *Orchestrator) generateInsights(ctx context.Context) {
	o.emit(InsightsGenerating{})

	if o.insights == nil {
		o.apply(func(s *State) []Payload {
			s.InsightsError = "no insights generator configured"
			return []Payload{InsightsError{Error: s.InsightsError}}
		})
		return
	}

	report, err := o.insights.Generate(ctx, o.InsightsInput())
	if err != nil {
		o.apply(func(s *State) []Payload {
			s.InsightsError = err.Error()
			return []Payload{InsightsError{Error: err.Error()}}
		})
		return
	}
	o.apply(func(s *State) []Payload {
		s.Insights = report
		return []Payload{InsightsReady{Insights: report}}
	})
}

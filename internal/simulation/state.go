package simulation

import (
	"maps"
	"math"
	"time"

	"github.com/jxmullins/kickoff/internal/insights"
	"github.com/jxmullins/kickoff/internal/provider"
)

// RunState is the lifecycle of a whole run.
type RunState string

const (
	RunNotStarted RunState = "not-started"
	RunRunning    RunState = "running"
	RunCompleted  RunState = "completed"
	RunFailed     RunState = "failed"
	RunCancelled  RunState = "cancelled"
)

// AgentStatus is the per-run status of one agent.
type AgentStatus string

const (
	StatusIdle     AgentStatus = "idle"
	StatusThinking AgentStatus = "thinking"
	StatusActive   AgentStatus = "active"
	StatusDone     AgentStatus = "done"
	StatusError    AgentStatus = "error"
)

// DeliverableStatus is the lifecycle of one deliverable.
type DeliverableStatus string

const (
	DeliverablePending    DeliverableStatus = "pending"
	DeliverableInProgress DeliverableStatus = "in-progress"
	DeliverableCompleted  DeliverableStatus = "completed"
	DeliverableError      DeliverableStatus = "error"
)

// DeliverableState tracks one deliverable during a run.
type DeliverableState struct {
	Status        DeliverableStatus `json:"status"`
	Content       string            `json:"content"`
	StartDate     *time.Time        `json:"startDate,omitempty"`
	CompletedDate *time.Time        `json:"completedDate,omitempty"`
	DurationDays  int               `json:"durationDays,omitempty"`
}

// Message is a chat update posted by an agent.
type Message struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	Text      string    `json:"text"`
	Phase     int       `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// State is a snapshot of a run.
type State struct {
	RunState      RunState                        `json:"runState"`
	CurrentPhase  int                             `json:"currentPhase"`
	AgentStatuses map[string]AgentStatus          `json:"agentStatuses"`
	AgentTasks    map[string]string               `json:"agentTasks"`
	AgentOutputs  map[string]provider.AgentResult `json:"agentOutputs"`
	// OutputOrder lists agents in the order they first produced output.
	OutputOrder   []string                    `json:"outputOrder"`
	Deliverables  map[string]DeliverableState `json:"deliverables"`
	Messages      []Message                   `json:"messages"`
	IsRunning     bool                        `json:"isRunning"`
	Error         string                      `json:"error,omitempty"`
	ProjectRoles  map[string]string           `json:"projectRoles"`
	SimulatedDate *time.Time                  `json:"simulatedDate,omitempty"`
	Insights      *insights.Insights          `json:"insights,omitempty"`
	InsightsError string                      `json:"insightsError,omitempty"`
}

// Progress is the share of deliverables completed, as a whole percentage.
func (s State) Progress() int {
	if len(s.Deliverables) == 0 {
		return 0
	}
	done := 0
	for _, d := range s.Deliverables {
		if d.Status == DeliverableCompleted {
			done++
		}
	}
	return int(math.Round(float64(done) / float64(len(s.Deliverables)) * 100))
}

// CompletedCount returns how many deliverables are completed.
func (s State) CompletedCount() int {
	n := 0
	for _, d := range s.Deliverables {
		if d.Status == DeliverableCompleted {
			n++
		}
	}
	return n
}

func (s *State) clone() State {
	out := *s
	out.AgentStatuses = maps.Clone(s.AgentStatuses)
	out.AgentTasks = maps.Clone(s.AgentTasks)
	out.AgentOutputs = maps.Clone(s.AgentOutputs)
	out.OutputOrder = append([]string(nil), s.OutputOrder...)
	out.Deliverables = make(map[string]DeliverableState, len(s.Deliverables))
	for id, d := range s.Deliverables {
		d.StartDate = copyTime(d.StartDate)
		d.CompletedDate = copyTime(d.CompletedDate)
		out.Deliverables[id] = d
	}
	out.Messages = append([]Message(nil), s.Messages...)
	out.ProjectRoles = maps.Clone(s.ProjectRoles)
	out.SimulatedDate = copyTime(s.SimulatedDate)
	out.Insights = s.Insights.Clone()
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

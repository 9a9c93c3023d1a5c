package simulation

import (
	"encoding/json"
	"time"

	"github.com/jxmullins/kickoff/internal/insights"
)

// EventType identifies a simulation event.
type EventType int

const (
	EventSimulationStart EventType = iota
	EventPhaseStart
	EventAgentStatus
	EventTypingStart
	EventTypingStop
	EventStreamingChunk
	EventMessage
	EventDeliverableUpdate
	EventTimelineUpdate
	EventPhaseComplete
	EventSimulationComplete
	EventSimulationError
	EventSimulationCancelled
	EventError
	EventInsightsGenerating
	EventInsightsReady
	EventInsightsError
)

func (e EventType) String() string {
	switch e {
	case EventSimulationStart:
		return "simulation-start"
	case EventPhaseStart:
		return "phase-start"
	case EventAgentStatus:
		return "agent-status"
	case EventTypingStart:
		return "typing-start"
	case EventTypingStop:
		return "typing-stop"
	case EventStreamingChunk:
		return "streaming-chunk"
	case EventMessage:
		return "message"
	case EventDeliverableUpdate:
		return "deliverable-update"
	case EventTimelineUpdate:
		return "timeline-update"
	case EventPhaseComplete:
		return "phase-complete"
	case EventSimulationComplete:
		return "simulation-complete"
	case EventSimulationError:
		return "simulation-error"
	case EventSimulationCancelled:
		return "simulation-cancelled"
	case EventError:
		return "error"
	case EventInsightsGenerating:
		return "insights-generating"
	case EventInsightsReady:
		return "insights-ready"
	case EventInsightsError:
		return "insights-error"
	default:
		return "unknown"
	}
}

// Payload is the data carried by an event. The set of payloads is closed.
type Payload interface {
	eventType() EventType
}

// Event is one notification from a running simulation.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      Payload
}

// NewEvent wraps a payload with its type and the current time.
func NewEvent(p Payload) Event {
	return Event{Type: p.eventType(), Timestamp: time.Now(), Data: p}
}

// MarshalJSON flattens the payload next to "type" and "timestamp".
func (e Event) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any)
	if e.Data != nil {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	fields["type"] = e.Type.String()
	fields["timestamp"] = e.Timestamp
	return json.Marshal(fields)
}

type SimulationStart struct{}

type PhaseStart struct {
	PhaseID   int    `json:"phaseId"`
	PhaseName string `json:"phaseName"`
}

type AgentStatusChange struct {
	AgentID string      `json:"agentId"`
	Status  AgentStatus `json:"status"`
	Task    string      `json:"task"`
}

type TypingStart struct {
	AgentID string `json:"agentId"`
}

type TypingStop struct {
	AgentID string `json:"agentId"`
}

// StreamingChunk carries one fragment of model output and everything
// received so far.
type StreamingChunk struct {
	AgentID  string `json:"agentId"`
	Chunk    string `json:"chunk"`
	FullText string `json:"fullText"`
}

type MessagePosted struct {
	Message Message `json:"message"`
}

// DeliverableUpdate reports a deliverable status change. Dates are nil when
// no timeline is active.
type DeliverableUpdate struct {
	DeliverableID string            `json:"deliverableId"`
	Status        DeliverableStatus `json:"status"`
	Content       string            `json:"content,omitempty"`
	StartDate     *time.Time        `json:"startDate,omitempty"`
	CompletedDate *time.Time        `json:"completedDate,omitempty"`
	DurationDays  int               `json:"durationDays,omitempty"`
}

type TimelineUpdate struct {
	SimulatedDate time.Time `json:"simulatedDate"`
}

type PhaseComplete struct {
	PhaseID   int    `json:"phaseId"`
	PhaseName string `json:"phaseName"`
}

type SimulationComplete struct{}

type SimulationError struct {
	Error string `json:"error"`
}

// SimulationCancelled ends a run stopped before its last phase.
type SimulationCancelled struct {
	Phase int `json:"phase"`
}

// AgentError reports a failed agent run.
type AgentError struct {
	AgentID string `json:"agentId"`
	Error   string `json:"error"`
}

type InsightsGenerating struct{}

type InsightsReady struct {
	Insights *insights.Insights `json:"insights"`
}

type InsightsError struct {
	Error string `json:"error"`
}

func (SimulationStart) eventType() EventType     { return EventSimulationStart }
func (PhaseStart) eventType() EventType          { return EventPhaseStart }
func (AgentStatusChange) eventType() EventType   { return EventAgentStatus }
func (TypingStart) eventType() EventType         { return EventTypingStart }
func (TypingStop) eventType() EventType          { return EventTypingStop }
func (StreamingChunk) eventType() EventType      { return EventStreamingChunk }
func (MessagePosted) eventType() EventType       { return EventMessage }
func (DeliverableUpdate) eventType() EventType   { return EventDeliverableUpdate }
func (TimelineUpdate) eventType() EventType      { return EventTimelineUpdate }
func (PhaseComplete) eventType() EventType       { return EventPhaseComplete }
func (SimulationComplete) eventType() EventType  { return EventSimulationComplete }
func (SimulationError) eventType() EventType     { return EventSimulationError }
func (SimulationCancelled) eventType() EventType { return EventSimulationCancelled }
func (AgentError) eventType() EventType          { return EventError }
func (InsightsGenerating) eventType() EventType  { return EventInsightsGenerating }
func (InsightsReady) eventType() EventType       { return EventInsightsReady }
func (InsightsError) eventType() EventType       { return EventInsightsError }

// ChannelSink returns an event handler that forwards to ch. Sends give up
// once done is closed so an exited consumer never stalls a run.
func ChannelSink(ch chan<- Event, done <-chan struct{}) func(Event) {
	return func(e Event) {
		select {
		case ch <- e:
		case <-done:
		}
	}
}

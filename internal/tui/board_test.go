package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jxmullins/kickoff/internal/insights"
	"github.com/jxmullins/kickoff/internal/roster"
	"github.com/jxmullins/kickoff/internal/simulation"
)

func newTestBoard(t *testing.T) BoardModel {
	t.Helper()
	m := NewBoardModel("Test", roster.Default(), map[string]string{"data-engineer": "Data Lead"}, nil, nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 50})
	return next.(BoardModel)
}

func send(t *testing.T, m BoardModel, p simulation.Payload) BoardModel {
	t.Helper()
	next, _ := m.Update(EventMsg{Event: simulation.NewEvent(p)})
	return next.(BoardModel)
}

func TestNewBoardStartsPending(t *testing.T) {
	m := newTestBoard(t)

	want := len(roster.Default().Deliverables())
	if got := len(m.columns[ColumnPending]); got != want {
		t.Fatalf("pending = %d, want %d", got, want)
	}
	for col := ColumnInProgress; col <= ColumnFailed; col++ {
		if n := len(m.columns[col]); n != 0 {
			t.Errorf("column %s has %d cards", col, n)
		}
	}
}

func TestDeliverableLifecycle(t *testing.T) {
	m := newTestBoard(t)
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	done := time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)

	m = send(t, m, simulation.SimulationStart{})
	m = send(t, m, simulation.PhaseStart{PhaseID: 1, PhaseName: "Discovery"})
	m = send(t, m, simulation.DeliverableUpdate{DeliverableID: "sow-review", Status: simulation.DeliverableInProgress, StartDate: &start})

	card := m.cards["sow-review"]
	if card.Column != ColumnInProgress {
		t.Fatalf("column = %s, want In Progress", card.Column)
	}

	m = send(t, m, simulation.StreamingChunk{AgentID: "client-partner", Chunk: "ab", FullText: "abc"})
	if card.Stream != "abc" {
		t.Errorf("stream = %q, want full text", card.Stream)
	}

	m = send(t, m, simulation.DeliverableUpdate{
		DeliverableID: "sow-review",
		Status:        simulation.DeliverableCompleted,
		Content:       "## Review",
		CompletedDate: &done,
		DurationDays:  6,
	})
	if card.Column != ColumnDone {
		t.Fatalf("column = %s, want Done", card.Column)
	}
	if card.Content != "## Review" || card.DurationDays != 6 {
		t.Errorf("card = %+v", card)
	}
	if !card.StartDate.Equal(start) {
		t.Errorf("start date lost: %v", card.StartDate)
	}
	if m.completed() != 1 {
		t.Errorf("completed = %d, want 1", m.completed())
	}
	if _, ok := m.activeCard["client-partner"]; ok {
		t.Error("completed card still active")
	}
	if m.phaseID != 1 || m.phaseName != "Discovery" {
		t.Errorf("phase = %d %q", m.phaseID, m.phaseName)
	}
}

func TestAgentFailureMovesCard(t *testing.T) {
	m := newTestBoard(t)

	m = send(t, m, simulation.DeliverableUpdate{DeliverableID: "data-strategy", Status: simulation.DeliverableInProgress})
	m = send(t, m, simulation.AgentError{AgentID: "data-engineer", Error: "rate limited"})
	m = send(t, m, simulation.DeliverableUpdate{DeliverableID: "data-strategy", Status: simulation.DeliverableError})

	card := m.cards["data-strategy"]
	if card.Column != ColumnFailed {
		t.Fatalf("column = %s, want Failed", card.Column)
	}
	if card.Error != "rate limited" {
		t.Errorf("error = %q", card.Error)
	}
	if len(m.debugLog) == 0 || m.debugLog[len(m.debugLog)-1].Type != "error" {
		t.Error("agent error not logged")
	}
}

func TestRunOutcome(t *testing.T) {
	tests := []struct {
		name    string
		payload simulation.Payload
		check   func(BoardModel) bool
	}{
		{"complete", simulation.SimulationComplete{}, func(m BoardModel) bool { return m.complete }},
		{"error", simulation.SimulationError{Error: "boom"}, func(m BoardModel) bool { return m.failure == "boom" }},
		{"cancelled", simulation.SimulationCancelled{Phase: 3}, func(m BoardModel) bool { return m.cancelled }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestBoard(t)
			m = send(t, m, simulation.SimulationStart{})
			m = send(t, m, tt.payload)
			if m.running {
				t.Error("still running")
			}
			if !tt.check(m) {
				t.Errorf("outcome not recorded for %s", tt.name)
			}
		})
	}
}

func TestMessagesAndInsights(t *testing.T) {
	m := newTestBoard(t)

	m = send(t, m, simulation.MessagePosted{Message: simulation.Message{AgentID: "data-engineer", Text: "Pipelines drafted"}})
	m = send(t, m, simulation.InsightsGenerating{})
	if m.insightsState != "generating" {
		t.Errorf("insights state = %q", m.insightsState)
	}
	m = send(t, m, simulation.InsightsReady{Insights: &insights.Insights{ExecutiveSummary: "Looks solid"}})

	view := m.View()
	for _, want := range []string{"Team Chat", "Pipelines drafted", "Data Lead", "Insights: ready"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("i")})
	m = next.(BoardModel)
	if !m.showPopup {
		t.Fatal("insights popup not opened")
	}
	if !strings.Contains(m.View(), "Looks solid") {
		t.Error("popup missing executive summary")
	}
}

func TestNavigationAndPopup(t *testing.T) {
	m := newTestBoard(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(BoardModel)
	if m.selectedRow != 1 {
		t.Fatalf("row = %d, want 1", m.selectedRow)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(BoardModel)
	if !m.showPopup {
		t.Fatal("popup not opened")
	}
	if !strings.Contains(m.View(), m.columns[ColumnPending][1].Title) {
		t.Error("popup missing card title")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(BoardModel)
	if m.showPopup {
		t.Error("popup not closed")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m = next.(BoardModel)
	if m.selectedCol != ColumnInProgress || m.selectedRow != 0 {
		t.Errorf("selection = %s/%d", m.selectedCol, m.selectedRow)
	}
}

func TestQuitStopsRunningSimulation(t *testing.T) {
	stopped := false
	m := NewBoardModel("Test", roster.Default(), nil, nil, func() { stopped = true })
	m = send(t, m, simulation.SimulationStart{})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !stopped {
		t.Error("stop not called")
	}
	if cmd == nil {
		t.Fatal("no quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected quit message")
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("héllo world", 8); got != "héllo..." {
		t.Errorf("got %q", got)
	}
	if got := truncateString("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
}

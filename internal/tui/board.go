// Package tui provides the Bubble Tea board for a kickoff simulation.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jxmullins/kickoff/internal/insights"
	"github.com/jxmullins/kickoff/internal/roster"
	"github.com/jxmullins/kickoff/internal/simulation"
	"github.com/jxmullins/kickoff/internal/timeline"
)

const (
	maxDebugLog = 100
	maxMessages = 50
)

// BoardModel is the Bubble Tea model for the deliverable board.
type BoardModel struct {
	title  string
	styles Styles
	roster *roster.Roster
	roles  map[string]string

	// Board
	cards       map[string]*DeliverableCard
	columns     map[Column][]*DeliverableCard
	selectedCol Column
	selectedRow int

	// Run state
	phaseID       int
	phaseName     string
	simulatedDate *time.Time
	agentStatus   map[string]simulation.AgentStatus
	activeCard    map[string]*DeliverableCard
	messages      []simulation.Message

	insights      *insights.Insights
	insightsState string

	// UI
	width     int
	height    int
	ready     bool
	spinner   spinner.Model
	progress  progress.Model
	startTime time.Time

	// Popup
	showPopup bool
	popup     viewport.Model

	showHelp bool

	events <-chan simulation.Event
	stop   func()

	activityStatus string
	lastActivity   time.Time

	showDebugLog bool
	debugLog     []DebugLogEntry
	debugScroll  int

	running   bool
	complete  bool
	cancelled bool
	failure   string
	quitting  bool
}

// DebugLogEntry represents a single debug log entry.
type DebugLogEntry struct {
	Timestamp time.Time
	Type      string // "event", "error"
	Actor     string
	Message   string
}

// EventMsg wraps a simulation event for Bubble Tea.
type EventMsg struct {
	Event simulation.Event
}

// streamClosedMsg is sent once the event channel is closed.
type streamClosedMsg struct{}

// NewBoardModel creates a board with every roster deliverable pending.
// stop is called when the user quits while the run is in flight.
func NewBoardModel(title string, r *roster.Roster, roles map[string]string, events <-chan simulation.Event, stop func()) BoardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorSecondary)

	columns := make(map[Column][]*DeliverableCard)
	for col := ColumnPending; col <= ColumnFailed; col++ {
		columns[col] = make([]*DeliverableCard, 0)
	}

	m := BoardModel{
		title:          title,
		styles:         DefaultStyles(),
		roster:         r,
		roles:          roles,
		cards:          make(map[string]*DeliverableCard),
		columns:        columns,
		selectedCol:    ColumnPending,
		agentStatus:    make(map[string]simulation.AgentStatus),
		activeCard:     make(map[string]*DeliverableCard),
		spinner:        s,
		progress:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		startTime:      time.Now(),
		events:         events,
		stop:           stop,
		activityStatus: "Waiting to start...",
		lastActivity:   time.Now(),
		debugLog:       make([]DebugLogEntry, 0),
	}

	for _, d := range r.Deliverables() {
		card := &DeliverableCard{
			ID:      d.ID,
			Title:   d.Title,
			AgentID: d.AgentID,
			Phase:   d.Phase,
			Column:  ColumnPending,
		}
		if a, ok := r.Agent(d.AgentID); ok {
			card.AgentName = a.JobFunction
			card.AgentEmoji = a.Emoji
			card.AgentColor = a.Color
		}
		m.cards[d.ID] = card
		m.columns[ColumnPending] = append(m.columns[ColumnPending], card)
	}
	return m
}

func (m *BoardModel) addDebugLog(logType, actor, message string) {
	m.debugLog = append(m.debugLog, DebugLogEntry{
		Timestamp: time.Now(),
		Type:      logType,
		Actor:     actor,
		Message:   message,
	})
	if len(m.debugLog) > maxDebugLog {
		m.debugLog = m.debugLog[len(m.debugLog)-maxDebugLog:]
	}
	m.lastActivity = time.Now()
}

// Init initializes the model.
func (m BoardModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.listenForEvents(),
	)
}

func (m BoardModel) listenForEvents() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		if events == nil {
			return streamClosedMsg{}
		}
		event, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return EventMsg{Event: event}
	}
}

// Update handles messages.
func (m BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showPopup {
			return m.handlePopupKey(msg)
		}
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		if m.showDebugLog {
			return m.handleDebugLogKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.popup.Width = max(20, m.width-10)
		m.popup.Height = max(5, m.height-8)
		cmds = append(cmds, tea.ClearScreen)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case EventMsg:
		m.handleEvent(msg.Event)
		cmds = append(cmds, m.listenForEvents())

	case streamClosedMsg:
		m.running = false
	}

	return m, tea.Batch(cmds...)
}

func (m BoardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.running && m.stop != nil {
			m.stop()
		}
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp

	case "`", "~":
		m.showDebugLog = !m.showDebugLog
		m.debugScroll = max(0, len(m.debugLog)-1)

	case "h", "left":
		if m.selectedCol > ColumnPending {
			m.selectedCol--
			m.selectedRow = 0
		}

	case "l", "right":
		if m.selectedCol < ColumnFailed {
			m.selectedCol++
			m.selectedRow = 0
		}

	case "j", "down":
		if m.selectedRow < len(m.columns[m.selectedCol])-1 {
			m.selectedRow++
		}

	case "k", "up":
		if m.selectedRow > 0 {
			m.selectedRow--
		}

	case "enter":
		if card := m.selectedCard(); card != nil {
			m.openPopup(m.cardDetail(card))
		}

	case "i":
		if m.insights != nil {
			m.openPopup(renderInsights(m.insights))
		}
	}

	return m, nil
}

func (m BoardModel) handlePopupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.showPopup = false
		return m, nil
	}
	var cmd tea.Cmd
	m.popup, cmd = m.popup.Update(msg)
	return m, cmd
}

func (m BoardModel) handleDebugLogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "`", "~":
		m.showDebugLog = false
	case "j", "down":
		if m.debugScroll < len(m.debugLog)-1 {
			m.debugScroll++
		}
	case "k", "up":
		if m.debugScroll > 0 {
			m.debugScroll--
		}
	case "g":
		m.debugScroll = 0
	case "G":
		m.debugScroll = max(0, len(m.debugLog)-1)
	}
	return m, nil
}

func (m *BoardModel) openPopup(content string) {
	vp := viewport.New(max(20, m.width-10), max(5, m.height-8))
	vp.SetContent(content)
	m.popup = vp
	m.showPopup = true
}

func (m *BoardModel) agentName(id string) string {
	if m.roster != nil {
		if a, ok := m.roster.Agent(id); ok {
			return a.JobFunction
		}
	}
	return id
}

// handleEvent projects one simulation event onto the board.
func (m *BoardModel) handleEvent(e simulation.Event) {
	switch p := e.Data.(type) {
	case simulation.SimulationStart:
		m.running = true
		m.activityStatus = "Kickoff started"
		m.addDebugLog("event", "system", "simulation started")

	case simulation.PhaseStart:
		m.phaseID = p.PhaseID
		m.phaseName = p.PhaseName
		m.activityStatus = fmt.Sprintf("Phase %d: %s", p.PhaseID, p.PhaseName)
		m.addDebugLog("event", "system", m.activityStatus)

	case simulation.AgentStatusChange:
		m.agentStatus[p.AgentID] = p.Status
		if p.Task != "" && p.Status == simulation.StatusThinking {
			m.activityStatus = fmt.Sprintf("%s: %s", m.agentName(p.AgentID), p.Task)
		}
		m.addDebugLog("event", p.AgentID, string(p.Status))

	case simulation.TypingStart:
		m.activityStatus = m.agentName(p.AgentID) + " is writing..."

	case simulation.StreamingChunk:
		if card := m.activeCard[p.AgentID]; card != nil {
			card.Stream = p.FullText
		}

	case simulation.MessagePosted:
		m.messages = append(m.messages, p.Message)
		if len(m.messages) > maxMessages {
			m.messages = m.messages[len(m.messages)-maxMessages:]
		}

	case simulation.DeliverableUpdate:
		card, ok := m.cards[p.DeliverableID]
		if !ok {
			return
		}
		if p.StartDate != nil {
			card.StartDate = p.StartDate
		}
		switch p.Status {
		case simulation.DeliverableInProgress:
			card.Stream = ""
			m.activeCard[card.AgentID] = card
			m.moveCard(card, ColumnInProgress)
		case simulation.DeliverableCompleted:
			card.Content = p.Content
			card.CompletedDate = p.CompletedDate
			card.DurationDays = p.DurationDays
			delete(m.activeCard, card.AgentID)
			m.moveCard(card, ColumnDone)
			m.addDebugLog("event", card.AgentID, card.Title+" completed")
		case simulation.DeliverableError:
			delete(m.activeCard, card.AgentID)
			m.moveCard(card, ColumnFailed)
		}

	case simulation.TimelineUpdate:
		d := p.SimulatedDate
		m.simulatedDate = &d

	case simulation.PhaseComplete:
		m.addDebugLog("event", "system", fmt.Sprintf("phase %d complete", p.PhaseID))

	case simulation.AgentError:
		for _, card := range m.cards {
			if card.AgentID == p.AgentID && card.Column == ColumnInProgress {
				card.Error = p.Error
			}
		}
		m.addDebugLog("error", p.AgentID, p.Error)

	case simulation.InsightsGenerating:
		m.insightsState = "generating"
		m.activityStatus = "Generating project insights..."

	case simulation.InsightsReady:
		m.insights = p.Insights
		m.insightsState = "ready"
		m.addDebugLog("event", "system", "insights ready")

	case simulation.InsightsError:
		m.insightsState = "error: " + p.Error
		m.addDebugLog("error", "system", "insights: "+p.Error)

	case simulation.SimulationComplete:
		m.running = false
		m.complete = true
		m.activityStatus = "Kickoff complete"

	case simulation.SimulationError:
		m.running = false
		m.failure = p.Error
		m.activityStatus = "Kickoff failed"
		m.addDebugLog("error", "system", p.Error)

	case simulation.SimulationCancelled:
		m.running = false
		m.cancelled = true
		m.activityStatus = fmt.Sprintf("Cancelled before phase %d", p.Phase)
	}
}

func (m *BoardModel) moveCard(card *DeliverableCard, to Column) {
	if card.Column == to {
		return
	}
	from := m.columns[card.Column]
	for i, c := range from {
		if c == card {
			m.columns[card.Column] = append(from[:i:i], from[i+1:]...)
			break
		}
	}
	card.Column = to
	m.columns[to] = append(m.columns[to], card)
	if m.selectedRow >= len(m.columns[m.selectedCol]) {
		m.selectedRow = max(0, len(m.columns[m.selectedCol])-1)
	}
}

func (m *BoardModel) selectedCard() *DeliverableCard {
	cards := m.columns[m.selectedCol]
	if m.selectedRow < 0 || m.selectedRow >= len(cards) {
		return nil
	}
	return cards[m.selectedRow]
}

func (m BoardModel) completed() int {
	return len(m.columns[ColumnDone])
}

// View renders the board.
func (m BoardModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width < 60 || m.height < 15 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.styles.Warning.Render("Window too small\nMinimum: 60x15"))
	}

	if m.showPopup {
		return m.styles.PanelFocused.Render(m.popup.View()) + "\n" +
			m.styles.HelpBar.Render("[↑↓] Scroll  [Esc] Close")
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.showDebugLog {
		return m.renderDebugLog()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.renderMainContent())
	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())
	return b.String()
}

func (m BoardModel) renderHeader() string {
	title := m.styles.Title.Render("KICKOFF - " + m.title)

	var status string
	statusStyle := m.styles.Success
	switch {
	case m.failure != "":
		status = "✗ Failed"
		statusStyle = m.styles.Error
	case m.cancelled:
		status = "■ Cancelled"
		statusStyle = m.styles.Warning
	case m.complete:
		status = "✓ Complete"
	case m.running:
		status = m.spinner.View() + " Running"
	default:
		status = "Ready"
		statusStyle = m.styles.Muted
	}

	phase := "Phase: -"
	if m.phaseID > 0 {
		phase = fmt.Sprintf("Phase %d: %s", m.phaseID, m.phaseName)
	}

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		title,
		strings.Repeat(" ", max(0, m.width-lipgloss.Width(title)-lipgloss.Width(status)-lipgloss.Width(phase)-10)),
		m.styles.PhaseLabel.Render(phase),
		"  ",
		statusStyle.Render(status),
	)
	return m.styles.Header.Width(m.width).Render(header)
}

func (m BoardModel) renderStatus() string {
	total := len(m.cards)
	var percent float64
	if total > 0 {
		percent = float64(m.completed()) / float64(total)
	}
	progressLine := fmt.Sprintf("%s %d/%d deliverables", m.progress.ViewAs(percent), m.completed(), total)

	dateLine := ""
	if m.simulatedDate != nil {
		dateLine = m.styles.Subtitle.Render("Project date: " + timeline.FormatDate(*m.simulatedDate))
	}

	insightsLine := ""
	if m.insightsState != "" {
		insightsLine = m.styles.Muted.Render("Insights: " + truncateString(m.insightsState, m.width-20))
		if m.insights != nil {
			insightsLine += m.styles.Muted.Render("  [i] view")
		}
	}

	elapsed := time.Since(m.lastActivity).Round(time.Second)
	activityLine := m.styles.Muted.Render(fmt.Sprintf("Activity: %s (%s ago)", m.activityStatus, elapsed))
	if m.failure != "" {
		activityLine = m.styles.Error.Render(truncateString("Error: "+m.failure, m.width-6))
	}

	lines := []string{progressLine}
	for _, l := range []string{dateLine, insightsLine} {
		if l != "" {
			lines = append(lines, l)
		}
	}
	lines = append(lines, activityLine)

	return m.styles.Panel.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m BoardModel) renderMainContent() string {
	boardWidth := max(40, int(float64(m.width)*0.68))
	panelWidth := max(20, m.width-boardWidth-2)
	contentHeight := max(10, m.height-13)

	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderBoard(boardWidth, contentHeight),
		m.renderChat(panelWidth, contentHeight),
	)
}

func (m BoardModel) renderBoard(width, height int) string {
	colWidth := max(10, (width-4)/4)

	var columns []string
	for col := ColumnPending; col <= ColumnFailed; col++ {
		columns = append(columns, m.renderColumn(col, colWidth, height))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

func (m BoardModel) renderColumn(col Column, width, height int) string {
	cards := m.columns[col]

	headerStyle := m.styles.PanelHeader.Width(width - 2)
	if col == m.selectedCol {
		headerStyle = headerStyle.Foreground(colorPrimary)
	}
	header := headerStyle.Render(fmt.Sprintf("%s (%d)", col, len(cards)))

	cardHeight := 6
	maxCards := max(1, (height-4)/cardHeight)

	var views []string
	for i, card := range cards {
		if i >= maxCards {
			views = append(views, m.styles.Muted.Render(fmt.Sprintf("+%d more", len(cards)-maxCards)))
			break
		}
		selected := col == m.selectedCol && i == m.selectedRow
		views = append(views, card.Render(m.styles, selected, width-2, cardHeight-1))
	}

	colStyle := m.styles.Panel.Width(width - 1).Height(height)
	return colStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, lipgloss.JoinVertical(lipgloss.Left, views...)))
}

func (m BoardModel) renderChat(width, height int) string {
	header := m.styles.PanelHeader.Width(width - 2).Render("Team Chat")

	var lines []string
	for _, msg := range m.messages {
		color := ""
		if m.roster != nil {
			if a, ok := m.roster.Agent(msg.AgentID); ok {
				color = a.Color
			}
		}
		name := m.agentName(msg.AgentID)
		if role := m.roles[msg.AgentID]; role != "" {
			name += " (" + role + ")"
		}
		lines = append(lines, m.styles.AgentNameStyle(color).Render(truncateString(name, width-4)))
		lines = append(lines, lipgloss.NewStyle().Width(width-4).Render(msg.Text), "")
	}

	content := m.styles.Muted.Render("No messages yet")
	if len(lines) > 0 {
		all := strings.Split(strings.Join(lines, "\n"), "\n")
		if keep := height - 3; keep > 0 && len(all) > keep {
			all = all[len(all)-keep:]
		}
		content = strings.Join(all, "\n")
	}

	return m.styles.Panel.Width(width - 1).Height(height).Render(lipgloss.JoinVertical(lipgloss.Left, header, content))
}

func (m BoardModel) cardDetail(card *DeliverableCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", m.styles.Title.Render(card.Title))
	fmt.Fprintf(&b, "%s %s", card.AgentEmoji, m.styles.AgentNameStyle(card.AgentColor).Render(card.AgentName))
	if role := m.roles[card.AgentID]; role != "" {
		fmt.Fprintf(&b, " (%s)", role)
	}
	fmt.Fprintf(&b, "\nPhase %d | %s\n", card.Phase, card.Column)
	if card.StartDate != nil {
		fmt.Fprintf(&b, "Started: %s\n", timeline.FormatDate(*card.StartDate))
	}
	if card.CompletedDate != nil {
		fmt.Fprintf(&b, "Completed: %s (%d days)\n", timeline.FormatDate(*card.CompletedDate), card.DurationDays)
	}
	if card.Error != "" {
		fmt.Fprintf(&b, "%s\n", m.styles.Error.Render("Error: "+card.Error))
	}
	b.WriteString("\n")

	switch {
	case card.Content != "":
		b.WriteString(card.Content)
	case card.Stream != "":
		b.WriteString(card.Stream)
	default:
		b.WriteString(m.styles.Muted.Render("No content yet."))
	}
	return b.String()
}

func renderInsights(in *insights.Insights) string {
	var b strings.Builder
	b.WriteString("PROJECT INSIGHTS\n\n")
	b.WriteString(in.ExecutiveSummary)
	b.WriteString("\n\nScope: ")
	b.WriteString(in.ScopeAssessment.Verdict)
	b.WriteString("\n")
	b.WriteString(in.ScopeAssessment.Analysis)

	if len(in.ProjectRisks) > 0 {
		b.WriteString("\n\nRisks\n")
		for _, r := range in.ProjectRisks {
			fmt.Fprintf(&b, "  [%s] %s\n    Mitigation: %s\n", r.Severity, r.Risk, r.Mitigation)
		}
	}
	if len(in.StaffingGaps) > 0 {
		b.WriteString("\nStaffing gaps\n")
		for _, g := range in.StaffingGaps {
			fmt.Fprintf(&b, "  %s: %s\n", g.Gap, g.Recommendation)
		}
	}
	if len(in.KeyRecommendations) > 0 {
		b.WriteString("\nRecommendations\n")
		for _, r := range in.KeyRecommendations {
			fmt.Fprintf(&b, "  [%s] %s\n", r.Priority, r.Recommendation)
		}
	}
	if len(in.ClientDependencies) > 0 {
		b.WriteString("\nClient dependencies\n")
		for _, d := range in.ClientDependencies {
			fmt.Fprintf(&b, "  %s (assumes %s)\n", d.Dependency, d.Assumption)
		}
	}
	return b.String()
}

func (m BoardModel) renderHelp() string {
	help := `Keys

  ←/h →/l   Move between columns
  ↑/k ↓/j   Move between cards
  Enter     Open deliverable
  i         Open insights report
  ` + "`" + `         Toggle debug log
  ?         Toggle help
  q         Stop and quit

Press any key to close.`
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		m.styles.PanelFocused.Render(help))
}

func (m BoardModel) renderDebugLog() string {
	height := max(5, m.height-6)
	start := max(0, m.debugScroll-height+1)
	end := min(len(m.debugLog), start+height)

	var b strings.Builder
	b.WriteString(m.styles.Title.Render(fmt.Sprintf("Debug Log (%d entries)", len(m.debugLog))))
	b.WriteString("\n\n")
	for _, e := range m.debugLog[start:end] {
		style := m.styles.Muted
		if e.Type == "error" {
			style = m.styles.Error
		}
		line := fmt.Sprintf("%s %-20s %s", e.Timestamp.Format("15:04:05"), e.Actor, e.Message)
		b.WriteString(style.Render(truncateString(line, m.width-6)))
		b.WriteString("\n")
	}
	return m.styles.Panel.Width(m.width - 2).Render(b.String())
}

func (m BoardModel) renderHelpBar() string {
	help := "[←→↑↓] Navigate  [Enter] Details  [i] Insights  [`] Log  [?] Help  [q] Quit"
	return m.styles.HelpBar.Width(m.width).Render(help)
}

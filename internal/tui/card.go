package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jxmullins/kickoff/internal/timeline"
)

// Column is a board column, one per deliverable status.
type Column int

const (
	ColumnPending Column = iota
	ColumnInProgress
	ColumnDone
	ColumnFailed
)

func (c Column) String() string {
	switch c {
	case ColumnPending:
		return "Pending"
	case ColumnInProgress:
		return "In Progress"
	case ColumnDone:
		return "Done"
	case ColumnFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// DeliverableCard is one deliverable on the board.
type DeliverableCard struct {
	ID         string
	Title      string
	AgentID    string
	AgentName  string
	AgentEmoji string
	AgentColor string
	Phase      int
	Column     Column

	// Stream is the raw model output received so far.
	Stream        string
	Content       string
	StartDate     *time.Time
	CompletedDate *time.Time
	DurationDays  int
	Error         string
}

// CardStyle returns the appropriate style for this card's state.
func (c *DeliverableCard) CardStyle(styles Styles, selected bool, width int) lipgloss.Style {
	base := styles.Panel.Width(width - 2)

	var border lipgloss.Color
	switch {
	case selected:
		border = colorBorderActive
	case c.Column == ColumnFailed:
		border = colorError
	case c.Column == ColumnInProgress:
		border = AgentColor(c.AgentColor)
	case c.Column == ColumnDone:
		border = colorSuccess
	default:
		border = colorBorder
	}
	return base.BorderForeground(border)
}

// Render renders the card content.
func (c *DeliverableCard) Render(styles Styles, selected bool, width, maxLines int) string {
	style := c.CardStyle(styles, selected, width)

	var b strings.Builder
	b.WriteString(truncateString(c.Title, width-4))
	b.WriteString("\n")
	b.WriteString(styles.AgentNameStyle(c.AgentColor).Render(truncateString(c.AgentEmoji+" "+c.AgentName, width-4)))

	var status string
	switch c.Column {
	case ColumnFailed:
		status = styles.Error.Render("Error")
	case ColumnInProgress:
		status = styles.Warning.Render(fmt.Sprintf("Writing... %d chars", len(c.Stream)))
	case ColumnDone:
		status = styles.Success.Render("Done")
		if c.CompletedDate != nil {
			status += styles.Muted.Render(fmt.Sprintf(" %s (%dd)", timeline.FormatDate(*c.CompletedDate), c.DurationDays))
		}
	}
	if status != "" {
		b.WriteString("\n")
		b.WriteString(status)
	}

	if c.Column == ColumnInProgress && c.Stream != "" {
		lines := strings.Split(c.Stream, "\n")
		previewLines := maxLines - 4
		if previewLines > 0 {
			if len(lines) > previewLines {
				lines = lines[len(lines)-previewLines:]
			}
			b.WriteString("\n")
			b.WriteString(styles.Muted.Render(truncateLines(strings.Join(lines, "\n"), width-4)))
		}
	}

	return style.Render(b.String())
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:max(0, maxLen)])
	}
	return string(r[:maxLen-3]) + "..."
}

func truncateLines(s string, maxWidth int) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = truncateString(line, maxWidth)
	}
	return strings.Join(lines, "\n")
}

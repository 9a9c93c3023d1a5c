package tui

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jxmullins/kickoff/internal/simulation"
)

// Runner shows a simulation on the board while it runs.
type Runner struct {
	events chan simulation.Event
	done   chan struct{}
	notice io.Writer
}

// NewRunner creates a runner. Pass Sink as the orchestrator's event callback.
func NewRunner() *Runner {
	return &Runner{
		events: make(chan simulation.Event, 256),
		done:   make(chan struct{}),
		notice: os.Stderr,
	}
}

// Sink returns the event callback feeding the board.
func (r *Runner) Sink() func(simulation.Event) {
	return simulation.ChannelSink(r.events, r.done)
}

// Run starts the simulation in the background and blocks until the user
// quits the board. Quitting early stops the run at the next phase boundary.
func (r *Runner) Run(ctx context.Context, o *simulation.Orchestrator, title string) error {
	model := NewBoardModel(title, o.Roster(), o.ProjectRoles(), r.events, o.Stop)
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		errChan <- o.Start(ctx)
		close(r.events)
	}()

	_, tuiErr := p.Run()
	close(r.done)
	o.Stop()

	runErr := r.finish(errChan)
	if tuiErr != nil {
		return fmt.Errorf("board: %w", tuiErr)
	}
	return runErr
}

// finish waits for the run after the board closed, telling the user when
// an agent call is still in flight.
func (r *Runner) finish(errChan <-chan error) error {
	select {
	case err := <-errChan:
		return err
	default:
	}
	fmt.Fprintln(r.notice, "Finishing the current phase (Ctrl+C to abort)...")
	return <-errChan
}

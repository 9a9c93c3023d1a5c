package simulation

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("simulation already running")
	// ErrCancelled is returned by Start when the run was stopped.
	ErrCancelled = errors.New("simulation cancelled")
)

// PhaseError reports a phase in which no agent succeeded.
type PhaseError struct {
	PhaseID int
	// Agents is how many agents ran in the phase.
	Agents int
	// Err is the first failure in phase agent order.
	Err error
}

func (e *PhaseError) Error() string {
	if e.Agents > 1 {
		return fmt.Sprintf("all agents failed in phase %d: %v", e.PhaseID, e.Err)
	}
	return e.Err.Error()
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCollaborator means a phase applies but nothing was wired to run it.
	ErrNoCollaborator = errors.New("no collaborator configured")
	// ErrAlreadyRunning is returned when Run is called while a run is active.
	ErrAlreadyRunning = errors.New("gatherer is already running")
	// ErrNoDatasetID is returned when the directory phase reports success
	// without a dataset identifier.
	ErrNoDatasetID = errors.New("directory phase returned no dataset id")
)

// SetupError reports a failure before any phase started.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// PhaseError wraps the failure of one phase's collaborator.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

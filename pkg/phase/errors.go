package phase

import (
	"errors"
	"fmt"
)

var (
	// ErrAtLastPhase indicates the environment already points at the last phase.
	ErrAtLastPhase = errors.New("already at last phase")

	// ErrAtFirstPhase indicates the environment already points at the first phase.
	ErrAtFirstPhase = errors.New("already at first phase")

	// ErrPhaseMoved indicates the environment no longer points at the expected phase.
	ErrPhaseMoved = errors.New("phase pointer moved")

	// ErrPhaseNotFound indicates no phase with the given id exists for the environment.
	ErrPhaseNotFound = errors.New("phase not found")

	// ErrUnknownEnvironment indicates the environment is not part of the configuration.
	ErrUnknownEnvironment = errors.New("unknown environment")

	// ErrInvalidStatus indicates the requested status is not a known phase status.
	ErrInvalidStatus = errors.New("invalid phase status")

	// ErrInvalidStatusTransition indicates the lifecycle does not allow the status change.
	ErrInvalidStatusTransition = errors.New("invalid phase status transition")
)

// TransitionError reports a rejected administrative operation.
// Rejected operations leave the rollout state untouched.
type TransitionError struct {
	Op          Op
	Environment string
	PhaseID     string
	Err         error
}

func (e *TransitionError) Error() string {
	if e.PhaseID != "" {
		return fmt.Sprintf("%s %s (phase %s): %v", e.Op, e.Environment, e.PhaseID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Environment, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// IsTransitionError reports whether err carries a TransitionError.
func IsTransitionError(err error) bool {
	var e *TransitionError
	return errors.As(err, &e)
}

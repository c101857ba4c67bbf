package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("statemachine: transition needs from, to and event")
	ErrNoTransitions     = errors.New("statemachine: no transitions defined")

	// ErrNoTransitionAvailable indicates the state has no transition for the event.
	ErrNoTransitionAvailable = errors.New("no transition available")

	// ErrTransitionRejected indicates every candidate transition was blocked by a guard.
	ErrTransitionRejected = errors.New("transition rejected by guards")

	// ErrActionFailed indicates a transition action returned an error.
	ErrActionFailed = errors.New("transition action failed")
)

// FireError names the state and event a Fire call failed on.
// Err is one of the sentinel errors above, possibly joined with an action error.
type FireError struct {
	State string
	Event string
	Err   error
}

func (e *FireError) Error() string {
	return fmt.Sprintf("%v (state %q, event %q)", e.Err, e.State, e.Event)
}

func (e *FireError) Unwrap() error {
	return e.Err
}

func fireError(from, event any, err error) *FireError {
	return &FireError{State: fmt.Sprint(from), Event: fmt.Sprint(event), Err: err}
}

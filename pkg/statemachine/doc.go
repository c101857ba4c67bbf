// Package statemachine provides a generic finite-state-machine transition table.
//
// A Machine maps (state, event) pairs to target states with optional guards and
// actions. It does not store a current state: the caller keeps state wherever it
// lives (an atomic field, a database row) and asks the machine for the next one.
// The table is immutable once built and safe for concurrent use.
//
// # Usage
//
//	type Status string
//	type Event string
//
//	machine := statemachine.MustNew(
//		statemachine.WithTransition[Status, Event]("pending", "active", "activate"),
//		statemachine.WithTransition[Status, Event]("active", "completed", "complete"),
//	)
//
//	next, err := machine.Fire(ctx, "pending", "activate", nil) // "active"
//
// EventFor answers the reverse question, which event moves between two states,
// for APIs that accept a target state rather than an event.
//
// # Error Handling
//
// Fire failures are *FireError values wrapping ErrNoTransitionAvailable,
// ErrTransitionRejected or ErrActionFailed:
//
//	if errors.Is(err, statemachine.ErrNoTransitionAvailable) { /* ... */ }
package statemachine

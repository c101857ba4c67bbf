package statemachine

import (
	"context"
	"errors"
)

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard[S, E comparable] func(ctx context.Context, from S, event E, data any) bool

// Action executes side effects during a transition. Returning an error prevents the transition.
type Action[S, E comparable] func(ctx context.Context, from, to S, event E, data any) error

// Transition defines a state change triggered by an event, with optional guards and actions.
type Transition[S, E comparable] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E]  // All must pass for transition to proceed
	Actions []Action[S, E] // Executed in order before the new state is returned
}

// Machine is an immutable transition table. It holds no current state: callers
// own where state lives and ask the machine what the next state is. This lets a
// single machine drive any number of entities concurrently.
type Machine[S, E comparable] struct {
	transitions map[S]map[E][]Transition[S, E]
}

func newMachine[S, E comparable]() *Machine[S, E] {
	return &Machine[S, E]{transitions: make(map[S]map[E][]Transition[S, E])}
}

func (m *Machine[S, E]) add(t Transition[S, E]) {
	if _, ok := m.transitions[t.From]; !ok {
		m.transitions[t.From] = make(map[E][]Transition[S, E])
	}
	// Multiple transitions allowed for same from/event to support guard-based branching
	m.transitions[t.From][t.Event] = append(m.transitions[t.From][t.Event], t)
}

// Fire resolves event from state from and returns the resulting state.
// Guards and actions of the first passing transition run in order.
func (m *Machine[S, E]) Fire(ctx context.Context, from S, event E, data any) (S, error) {
	t, err := m.find(ctx, from, event, data)
	if err != nil {
		return from, err
	}

	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, from, t.To, event, data); err != nil {
			return from, fireError(from, event, errors.Join(ErrActionFailed, err))
		}
	}

	return t.To, nil
}

// CanFire reports whether event would be accepted from state from.
func (m *Machine[S, E]) CanFire(ctx context.Context, from S, event E, data any) bool {
	_, err := m.find(ctx, from, event, data)
	return err == nil
}

// EventFor returns the event that moves from one state to another, if any.
func (m *Machine[S, E]) EventFor(from, to S) (E, bool) {
	for event, ts := range m.transitions[from] {
		for _, t := range ts {
			if t.To == to {
				return event, true
			}
		}
	}
	var zero E
	return zero, false
}

// Targets lists every state reachable in one step from from.
func (m *Machine[S, E]) Targets(from S) []S {
	var out []S
	for _, ts := range m.transitions[from] {
		for _, t := range ts {
			out = append(out, t.To)
		}
	}
	return out
}

func (m *Machine[S, E]) find(ctx context.Context, from S, event E, data any) (*Transition[S, E], error) {
	transitions := m.transitions[from][event]
	if len(transitions) == 0 {
		return nil, fireError(from, event, ErrNoTransitionAvailable)
	}

	// First transition with passing guards wins (enables priority ordering)
	for i, t := range transitions {
		allGuardsPassed := true
		for _, guard := range t.Guards {
			if guard != nil && !guard(ctx, from, event, data) {
				allGuardsPassed = false
				break
			}
		}
		if allGuardsPassed {
			return &transitions[i], nil
		}
	}

	return nil, fireError(from, event, ErrTransitionRejected)
}

package journal

import (
	"context"
	"fmt"
	"time"
)

// Result is the outcome of a recorded operation.
type Result string

const (
	ResultApplied  Result = "applied"
	ResultRejected Result = "rejected"
)

// Event is one entry of the transition journal.
type Event struct {
	ID          string         `json:"id"`
	Environment string         `json:"environment,omitempty"`
	Action      string         `json:"action"`
	PhaseID     string         `json:"phase_id,omitempty"`
	FromIndex   int            `json:"from_index"`
	ToIndex     int            `json:"to_index"`
	FromStatus  string         `json:"from_status,omitempty"`
	ToStatus    string         `json:"to_status,omitempty"`
	Result      Result         `json:"result"`
	Error       string         `json:"error,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Validate checks the fields every event must carry.
func (e *Event) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidEvent)
	case e.Action == "":
		return fmt.Errorf("%w: action is required", ErrInvalidEvent)
	case e.Result != ResultApplied && e.Result != ResultRejected:
		return fmt.Errorf("%w: unknown result %q", ErrInvalidEvent, e.Result)
	}
	return nil
}

// Filter selects events. Zero fields match everything. Results are newest first.
type Filter struct {
	Environment string
	Action      string
	PhaseID     string
	Result      Result
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

// Match reports whether e passes every set field of f. Limit and Offset are ignored.
func (f Filter) Match(e Event) bool {
	switch {
	case f.Environment != "" && e.Environment != f.Environment:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.PhaseID != "" && e.PhaseID != f.PhaseID:
		return false
	case f.Result != "" && e.Result != f.Result:
		return false
	case !f.Since.IsZero() && e.CreatedAt.Before(f.Since):
		return false
	case !f.Until.IsZero() && !e.CreatedAt.Before(f.Until):
		return false
	}
	return true
}

// Storage persists journal events.
type Storage interface {
	Store(ctx context.Context, e Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}

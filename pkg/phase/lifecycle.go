package phase

import (
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
	"github.com/dmitrymomot/rolloutkit/pkg/statemachine"
)

// Event names a phase lifecycle step.
type Event string

const (
	EventActivate   Event = "activate"
	EventComplete   Event = "complete"
	EventRollback   Event = "rollback"
	EventReactivate Event = "reactivate"
)

// Lifecycle is the phase status transition table:
//
//	pending -> active -> completed
//	             |  ^
//	             v  |
//	         rolled_back
var Lifecycle = statemachine.MustNew(
	statemachine.WithTransition(rollout.StatusPending, rollout.StatusActive, EventActivate),
	statemachine.WithTransition(rollout.StatusActive, rollout.StatusCompleted, EventComplete),
	statemachine.WithTransition(rollout.StatusActive, rollout.StatusRolledBack, EventRollback),
	statemachine.WithTransition(rollout.StatusRolledBack, rollout.StatusActive, EventReactivate),
)

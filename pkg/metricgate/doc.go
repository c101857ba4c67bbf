// Package metricgate compares live metric values against the health gates of a
// rollout phase.
//
// The gate is a pure function over data the caller already fetched: it never
// reads telemetry itself and never mutates rollout state. Callers such as a
// monitoring loop decide what to do with the returned Decision.
//
// Rollback criteria whose metric is absent from the supplied values are not
// evaluated and can never trigger. Missing telemetry therefore keeps a rollout
// where it is instead of reverting it.
//
// # Usage
//
//	decision := metricgate.Evaluate(phase.RollbackCriteria, map[string]float64{
//		"crash_rate": 0.031,
//	})
//	if decision.ShouldRollback {
//		// revert the phase
//	}
//
// Every triggered criterion is returned, not only the first, so operators see the
// full severity picture.
package metricgate

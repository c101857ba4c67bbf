// Package phase tracks where each environment stands in a staged rollout.
//
// A Manager owns a private copy of a validated rollout.Config. Every environment
// has a pointer into the shared phase sequence and may carry an override phase
// that replaces the pointed-at phase wholesale. The pointer and the phase
// statuses are the only mutable state:
//
//   - AdvancePhase and RollbackPhase move the pointer by one and never touch statuses.
//   - UpdatePhaseStatus changes a status along the Lifecycle table.
//   - Replace swaps in a new configuration; an invalid one is rejected.
//
// Writers serialize per environment, so two concurrent advances from index N end
// at N+2 (or one fails at the last phase). CurrentPhase and Status read atomics
// and never block, which keeps flag resolution off the writers' locks.
//
// Rejected operations return a *TransitionError and leave state untouched.
// Hooks registered with WithTransitionHook observe every operation:
//
//	m, err := phase.New(cfg,
//		phase.WithLogger(log),
//		phase.WithTransitionHook(j.Record),
//	)
//	if err != nil {
//		return err
//	}
//	if err := m.AdvancePhase(ctx, "production"); errors.Is(err, phase.ErrAtLastPhase) {
//		// already fully rolled out
//	}
package phase

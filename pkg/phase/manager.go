package phase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/rolloutkit/pkg/environment"
	"github.com/dmitrymomot/rolloutkit/pkg/logger"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
	"github.com/dmitrymomot/rolloutkit/pkg/targeting"
)

// Op names an administrative operation.
type Op string

const (
	OpAdvance  Op = "advance"
	OpRollback Op = "rollback"
	OpStatus   Op = "update_status"
	OpReplace  Op = "replace"
)

// Transition describes an administrative operation after it ran.
// Err is nil for applied operations.
type Transition struct {
	Op          Op
	Environment string
	// PhaseID is the phase the environment points at after the operation, or
	// the phase whose status was changed.
	PhaseID    string
	FromIndex  int
	ToIndex    int
	FromStatus rollout.PhaseStatus
	ToStatus   rollout.PhaseStatus
	Reason     string
	Err        error
	At         time.Time
}

// EnvironmentStatus is a read-only view of one environment.
type EnvironmentStatus struct {
	Name              string        `json:"name"`
	Enabled           bool          `json:"enabled"`
	CurrentPhaseIndex int           `json:"current_phase_index"`
	PhaseCount        int           `json:"phase_count"`
	Overridden        bool          `json:"overridden"`
	Phase             rollout.Phase `json:"phase"`
}

type slot struct {
	mu     sync.Mutex
	phase  rollout.Phase
	status atomic.Value
}

func newSlot(p rollout.Phase) *slot {
	s := &slot{phase: p.Clone()}
	if p.Status == "" {
		p.Status = rollout.StatusPending
	}
	s.status.Store(p.Status)
	return s
}

func (s *slot) Status() rollout.PhaseStatus {
	return s.status.Load().(rollout.PhaseStatus)
}

func (s *slot) snapshot() rollout.Phase {
	p := s.phase.Clone()
	p.Status = s.Status()
	return p
}

type envState struct {
	mu       sync.Mutex
	name     string
	enabled  bool
	index    atomic.Int64
	override *slot
}

// state is swapped as a whole on Replace. Only index and status values change
// in place; everything else is immutable once built.
type state struct {
	base      *rollout.Config
	phases    []*slot
	envs      map[string]*envState
	evaluator *targeting.Evaluator
}

func newState(cfg *rollout.Config) *state {
	base := cfg.Clone()
	st := &state{
		base:      base,
		phases:    make([]*slot, len(base.Phases)),
		envs:      make(map[string]*envState, len(base.Environments)),
		evaluator: targeting.NewEvaluator(base.Segments...),
	}
	for i, p := range base.Phases {
		st.phases[i] = newSlot(p)
	}
	for name, env := range base.Environments {
		e := &envState{name: name, enabled: env.Enabled}
		e.index.Store(int64(env.CurrentPhaseIndex))
		if env.Override != nil {
			e.override = newSlot(*env.Override)
		}
		st.envs[name] = e
	}
	return st
}

func (st *state) env(name string) (*envState, bool) {
	if e, ok := st.envs[name]; ok {
		return e, true
	}
	e, ok := st.envs[environment.Normalize(name).String()]
	return e, ok
}

// slotFor resolves a phase id against the environment override first, then
// against the shared phase sequence.
func (st *state) slotFor(e *envState, phaseID string) *slot {
	if e.override != nil && e.override.phase.ID == phaseID {
		return e.override
	}
	for _, s := range st.phases {
		if s.phase.ID == phaseID {
			return s
		}
	}
	return nil
}

// Manager owns the mutable rollout state: each environment's phase pointer and
// each phase's status. Writers serialize per environment; readers never block.
type Manager struct {
	state     atomic.Pointer[state]
	replaceMu sync.RWMutex
	hooks     []Hook
	log       *slog.Logger
	now       func() time.Time
}

// New validates cfg and builds a manager over a private copy of it.
func New(cfg *rollout.Config, opts ...Option) (*Manager, error) {
	if err := rollout.Validate(cfg).Err(); err != nil {
		return nil, err
	}
	m := &Manager{
		log: logger.Discard(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(newState(cfg))
	return m, nil
}

// AdvancePhase moves the environment to the next phase. Phase statuses are not touched.
func (m *Manager) AdvancePhase(ctx context.Context, env string) error {
	return m.move(ctx, OpAdvance, env, 1, -1)
}

// RollbackPhase moves the environment to the previous phase. Phase statuses are not touched.
func (m *Manager) RollbackPhase(ctx context.Context, env string) error {
	return m.move(ctx, OpRollback, env, -1, -1)
}

// RollbackPhaseFrom is RollbackPhase conditioned on the environment still
// pointing at index from. It fails with ErrPhaseMoved otherwise, so a decision
// taken on a phase never moves the pointer away from a different one.
func (m *Manager) RollbackPhaseFrom(ctx context.Context, env string, from int) error {
	return m.move(ctx, OpRollback, env, -1, from)
}

// move shifts the pointer by delta. A non-negative expect must match the
// current index.
func (m *Manager) move(ctx context.Context, op Op, name string, delta, expect int) error {
	t, err := func() (Transition, error) {
		m.replaceMu.RLock()
		defer m.replaceMu.RUnlock()

		st := m.state.Load()
		t := m.transition(ctx, op, name)
		e, ok := st.env(name)
		if !ok {
			return t, ErrUnknownEnvironment
		}
		t.Environment = e.name

		e.mu.Lock()
		defer e.mu.Unlock()

		from := int(e.index.Load())
		cur := st.phases[from]
		t.FromIndex, t.ToIndex = from, from
		t.PhaseID = cur.phase.ID
		t.FromStatus, t.ToStatus = cur.Status(), cur.Status()
		if expect >= 0 && expect != from {
			return t, fmt.Errorf("%w: expected index %d, at %d", ErrPhaseMoved, expect, from)
		}

		to := from + delta
		switch {
		case to >= len(st.phases):
			return t, ErrAtLastPhase
		case to < 0:
			return t, ErrAtFirstPhase
		}

		e.index.Store(int64(to))
		next := st.phases[to]
		t.ToIndex = to
		t.PhaseID = next.phase.ID
		t.ToStatus = next.Status()
		return t, nil
	}()
	return m.finish(ctx, t, err)
}

// UpdatePhaseStatus sets the status of a phase as seen by env. The override
// phase of env is matched first, then the shared sequence. The change must be
// a lifecycle transition; setting the current status again is a no-op.
func (m *Manager) UpdatePhaseStatus(ctx context.Context, phaseID string, status rollout.PhaseStatus, env string) error {
	t, changed, err := func() (Transition, bool, error) {
		m.replaceMu.RLock()
		defer m.replaceMu.RUnlock()

		st := m.state.Load()
		t := m.transition(ctx, OpStatus, env)
		t.PhaseID = phaseID
		t.ToStatus = status
		if !status.Valid() {
			return t, true, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		e, ok := st.env(env)
		if !ok {
			return t, true, ErrUnknownEnvironment
		}
		t.Environment = e.name

		s := st.slotFor(e, phaseID)
		if s == nil {
			return t, true, ErrPhaseNotFound
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		s.mu.Lock()
		defer s.mu.Unlock()

		idx := int(e.index.Load())
		t.FromIndex, t.ToIndex = idx, idx
		from := s.Status()
		t.FromStatus = from
		if from == status {
			return t, false, nil
		}

		event, ok := Lifecycle.EventFor(from, status)
		if !ok {
			return t, true, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, status)
		}
		to, err := Lifecycle.Fire(ctx, from, event, phaseID)
		if err != nil {
			return t, true, errors.Join(ErrInvalidStatusTransition, err)
		}
		s.status.Store(to)
		t.ToStatus = to
		return t, true, nil
	}()
	if !changed {
		return nil
	}
	return m.finish(ctx, t, err)
}

// View is a read of one configuration generation. Pointers and statuses are
// still read live, but phases and segments never mix across a Replace.
type View struct {
	st *state
}

// View returns a view over the active configuration.
func (m *Manager) View() View {
	return View{st: m.state.Load()}
}

// Evaluator returns the targeting evaluator over the view's segment catalog.
func (v View) Evaluator() *targeting.Evaluator {
	return v.st.evaluator
}

// CurrentPhase returns the effective phase of env: the override phase when the
// environment defines one, else the phase at its pointer. It reports false for
// unknown or disabled environments. It never blocks.
func (m *Manager) CurrentPhase(env string) (rollout.Phase, bool) {
	return m.View().CurrentPhase(env)
}

// CurrentPhase is Manager.CurrentPhase within the view's generation.
func (v View) CurrentPhase(env string) (rollout.Phase, bool) {
	st := v.st
	e, ok := st.env(env)
	if !ok || !e.enabled {
		return rollout.Phase{}, false
	}
	if e.override != nil {
		return e.override.snapshot(), true
	}
	return st.phases[e.index.Load()].snapshot(), true
}

// Status returns a view of env regardless of whether it is enabled.
func (m *Manager) Status(env string) (EnvironmentStatus, error) {
	st := m.state.Load()
	e, ok := st.env(env)
	if !ok {
		return EnvironmentStatus{}, ErrUnknownEnvironment
	}
	idx := int(e.index.Load())
	out := EnvironmentStatus{
		Name:              e.name,
		Enabled:           e.enabled,
		CurrentPhaseIndex: idx,
		PhaseCount:        len(st.phases),
		Overridden:        e.override != nil,
	}
	if e.override != nil {
		out.Phase = e.override.snapshot()
	} else {
		out.Phase = st.phases[idx].snapshot()
	}
	return out, nil
}

// Environments returns environment names in sorted order.
func (m *Manager) Environments() []string {
	return m.state.Load().base.EnvironmentNames()
}

// Settings returns the global rollout settings.
func (m *Manager) Settings() rollout.Settings {
	return m.state.Load().base.Settings
}

// Evaluator returns the targeting evaluator over the active segment catalog.
func (m *Manager) Evaluator() *targeting.Evaluator {
	return m.View().Evaluator()
}

// Flags returns the flag declarations of the active configuration.
func (m *Manager) Flags() []rollout.FlagSpec {
	return m.state.Load().base.Clone().Flags
}

// Snapshot returns a deep copy of the active configuration with current
// phase pointers and statuses, suitable for export.
func (m *Manager) Snapshot() *rollout.Config {
	st := m.state.Load()
	cfg := st.base.Clone()
	for i, s := range st.phases {
		cfg.Phases[i].Status = s.Status()
	}
	for name, e := range st.envs {
		env := cfg.Environments[name]
		env.CurrentPhaseIndex = int(e.index.Load())
		if e.override != nil && env.Override != nil {
			env.Override.Status = e.override.Status()
		}
		cfg.Environments[name] = env
	}
	return cfg
}

// Replace installs a new configuration. An invalid configuration is rejected
// and the active one stays in place. Operations in flight finish against the
// previous state before the swap.
//
// Live pointers and statuses survive the swap wherever the new document leaves
// them as the previous document had them, so transitions applied since the
// last load are not reverted by an unrelated edit. A value the document
// changed wins.
func (m *Manager) Replace(ctx context.Context, cfg *rollout.Config) error {
	t := m.transition(ctx, OpReplace, "")
	if err := rollout.Validate(cfg).Err(); err != nil {
		return m.finish(ctx, t, err)
	}
	st := newState(cfg)

	m.replaceMu.Lock()
	st.carryOver(m.state.Load())
	m.state.Store(st)
	m.replaceMu.Unlock()

	return m.finish(ctx, t, nil)
}

// carryOver copies live values from prev. Callers hold replaceMu exclusively,
// so no writer runs against either state.
func (st *state) carryOver(prev *state) {
	if prev == nil {
		return
	}

	prevPhases := make(map[string]int, len(prev.phases))
	for i, s := range prev.phases {
		prevPhases[s.phase.ID] = i
	}
	for i, s := range st.phases {
		j, ok := prevPhases[s.phase.ID]
		if !ok || prev.base.Phases[j].Status != st.base.Phases[i].Status {
			continue
		}
		s.status.Store(prev.phases[j].Status())
	}

	for name, e := range st.envs {
		pe, ok := prev.envs[name]
		if !ok {
			continue
		}
		doc, prevDoc := st.base.Environments[name], prev.base.Environments[name]

		live := int(pe.index.Load())
		if doc.CurrentPhaseIndex == prevDoc.CurrentPhaseIndex && live < len(st.phases) &&
			st.phases[live].phase.ID == prev.phases[live].phase.ID {
			e.index.Store(int64(live))
		}

		if e.override != nil && pe.override != nil &&
			e.override.phase.ID == pe.override.phase.ID &&
			doc.Override.Status == prevDoc.Override.Status {
			e.override.status.Store(pe.override.Status())
		}
	}
}

func (m *Manager) transition(ctx context.Context, op Op, env string) Transition {
	return Transition{
		Op:          op,
		Environment: env,
		Reason:      ReasonFromContext(ctx),
		At:          m.now(),
	}
}

// finish logs the outcome, wraps rejections and runs hooks.
func (m *Manager) finish(ctx context.Context, t Transition, err error) error {
	attrs := []any{
		logger.Operation(string(t.Op)),
		logger.Environment(t.Environment),
		logger.PhaseID(t.PhaseID),
	}
	if t.Reason != "" {
		attrs = append(attrs, slog.String("reason", t.Reason))
	}

	if err != nil {
		if t.Op != OpReplace {
			err = &TransitionError{Op: t.Op, Environment: t.Environment, PhaseID: t.PhaseID, Err: err}
		}
		t.Err = err
		m.log.WarnContext(ctx, "rollout operation rejected", append(attrs, logger.Error(err))...)
	} else {
		switch t.Op {
		case OpStatus:
			attrs = append(attrs, slog.String("from", string(t.FromStatus)), slog.String("to", string(t.ToStatus)))
		case OpAdvance, OpRollback:
			attrs = append(attrs, slog.Int("from", t.FromIndex), slog.Int("to", t.ToIndex))
		}
		m.log.InfoContext(ctx, "rollout operation applied", attrs...)
	}

	for _, h := range m.hooks {
		h(ctx, t)
	}
	return err
}

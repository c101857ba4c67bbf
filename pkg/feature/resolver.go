package feature

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/dmitrymomot/rolloutkit/pkg/logger"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
	"github.com/dmitrymomot/rolloutkit/pkg/segment"
)

// Reasons recorded by the resolver. Targeting reasons are appended verbatim.
const (
	ReasonUnknownFlag      = "unknown flag"
	ReasonOverride         = "explicit override"
	ReasonDependencyNotMet = "dependency not met"
	ReasonDependencyCycle  = "dependency cycle"
	ReasonNoPhase          = "environment disabled or unknown"
	ReasonNotInPhase       = "not in active phase feature set"
)

// Observer receives every top-level decision. It must not block.
type Observer func(ctx context.Context, env string, d Decision)

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithOverrides sets the override store. Without one no overrides apply.
func WithOverrides(s OverrideStore) ResolverOption {
	return func(r *Resolver) {
		if s != nil {
			r.overrides = s
		}
	}
}

// WithResolverLogger sets the logger for override store failures.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithObserver registers a decision observer, for example a metrics counter.
func WithObserver(o Observer) ResolverOption {
	return func(r *Resolver) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// Resolver answers "is this flag enabled for this user in this environment".
// It never caches decisions and is safe for concurrent use.
type Resolver struct {
	registry  atomic.Pointer[Registry]
	phases    PhaseSource
	overrides OverrideStore
	observers []Observer
	log       *slog.Logger
}

// NewResolver creates a resolver over a validated registry and a phase source.
func NewResolver(reg *Registry, phases PhaseSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		phases: phases,
		log:    logger.Discard(),
	}
	r.registry.Store(reg)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the active flag registry.
func (r *Resolver) Registry() *Registry {
	return r.registry.Load()
}

// SetRegistry swaps the flag registry, for example after a configuration reload.
func (r *Resolver) SetRegistry(reg *Registry) {
	if reg != nil {
		r.registry.Store(reg)
	}
}

// Overrides returns the override store, or nil when none is configured.
func (r *Resolver) Overrides() OverrideStore {
	return r.overrides
}

// Resolve decides one flag. The order is: override, dependencies, current
// phase, phase feature groups, then target criteria.
func (r *Resolver) Resolve(ctx context.Context, flag Name, userID, env string, attrs segment.UserAttributes) Decision {
	res := &resolution{r: r, reg: r.registry.Load(), view: r.phases.View(), userID: userID, env: env, attrs: attrs}
	d := res.resolve(ctx, flag, nil)
	r.observe(ctx, env, d)
	return d
}

// ResolveAll decides every registered flag, in name order.
func (r *Resolver) ResolveAll(ctx context.Context, userID, env string, attrs segment.UserAttributes) []Decision {
	res := &resolution{
		r:      r,
		reg:    r.registry.Load(),
		view:   r.phases.View(),
		userID: userID,
		env:    env,
		attrs:  attrs,
		memo:   make(map[Name]Decision),
	}
	names := res.reg.Names()
	out := make([]Decision, 0, len(names))
	for _, name := range names {
		d := res.resolve(ctx, name, nil)
		r.observe(ctx, env, d)
		out = append(out, d)
	}
	return out
}

func (r *Resolver) observe(ctx context.Context, env string, d Decision) {
	for _, o := range r.observers {
		o(ctx, env, d)
	}
}

// resolution carries the inputs of one request. memo, when set, shares
// dependency results between flags of the same request. Every flag of a
// request, dependencies included, is decided against the same phase.
type resolution struct {
	r      *Resolver
	reg    *Registry
	view   phase.View
	userID string
	env    string
	attrs  segment.UserAttributes
	memo   map[Name]Decision

	curLoaded bool
	cur       rollout.Phase
	curOK     bool
}

func (res *resolution) currentPhase() (rollout.Phase, bool) {
	if !res.curLoaded {
		res.cur, res.curOK = res.view.CurrentPhase(res.env)
		res.curLoaded = true
	}
	return res.cur, res.curOK
}

func (res *resolution) resolve(ctx context.Context, name Name, visiting []Name) Decision {
	if d, ok := res.memo[name]; ok {
		return d
	}
	d := res.decide(ctx, name, visiting)
	if res.memo != nil {
		res.memo[name] = d
	}
	return d
}

func (res *resolution) decide(ctx context.Context, name Name, visiting []Name) Decision {
	d := Decision{Flag: name, Bucket: -1}

	flag, ok := res.reg.Lookup(name)
	if !ok {
		d.Reasons = append(d.Reasons, ReasonUnknownFlag)
		return d
	}

	if res.r.overrides != nil {
		value, set, err := res.r.overrides.Get(ctx, name)
		switch {
		case err != nil:
			res.r.log.WarnContext(ctx, "override lookup failed, continuing without override",
				logger.Flag(string(name)),
				logger.Error(err),
			)
		case set:
			d.Enabled = value
			d.Reasons = append(d.Reasons, fmt.Sprintf("%s: %s", ReasonOverride, onOff(value)))
			return d
		}
	}

	if len(flag.DependsOn) > 0 {
		visiting = append(visiting, name)
		for _, dep := range flag.DependsOn {
			if slices.Contains(visiting, dep) {
				d.Reasons = append(d.Reasons, fmt.Sprintf("%s: %s", ReasonDependencyCycle, dep))
				return d
			}
			if !res.resolve(ctx, dep, visiting).Enabled {
				d.Reasons = append(d.Reasons, fmt.Sprintf("%s: %s", ReasonDependencyNotMet, dep))
				return d
			}
		}
	}

	current, ok := res.currentPhase()
	if !ok {
		d.Reasons = append(d.Reasons, ReasonNoPhase)
		return d
	}
	d.PhaseID = current.ID

	if flag.Group != "" && !current.HasGroup(flag.Group) {
		d.Reasons = append(d.Reasons, fmt.Sprintf("%s: %s", ReasonNotInPhase, flag.Group))
		return d
	}

	result := res.view.Evaluator().Evaluate(current.Criteria(), res.userID, res.attrs)
	d.Enabled = result.Included
	d.Bucket = result.Bucket
	d.Reasons = append(d.Reasons, result.Reasons...)
	return d
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

package rollout

import (
	"maps"
	"slices"

	"github.com/dmitrymomot/rolloutkit/pkg/metricgate"
	"github.com/dmitrymomot/rolloutkit/pkg/segment"
	"github.com/dmitrymomot/rolloutkit/pkg/targeting"
)

// PhaseStatus is the lifecycle status of a rollout phase.
type PhaseStatus string

const (
	StatusPending    PhaseStatus = "pending"
	StatusActive     PhaseStatus = "active"
	StatusCompleted  PhaseStatus = "completed"
	StatusRolledBack PhaseStatus = "rolled_back"
)

// Valid reports whether s is a known status.
func (s PhaseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusRolledBack:
		return true
	}
	return false
}

// Speed is the global pacing hint of a rollout.
type Speed string

const (
	SpeedConservative Speed = "conservative"
	SpeedStandard     Speed = "standard"
	SpeedAggressive   Speed = "aggressive"
)

// Settings are global rollout settings.
type Settings struct {
	Speed        Speed `json:"speed,omitempty" yaml:"speed,omitempty"`
	AutoRollback bool  `json:"auto_rollback" yaml:"auto_rollback"`
}

// Phase is a named stage of a staged release.
type Phase struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Percentage is the share of users the phase targets. It is expected to be
	// non-decreasing across phases; a decrease is only a warning.
	Percentage       int                            `json:"percentage" yaml:"percentage"`
	FeatureGroups    []string                       `json:"feature_groups,omitempty" yaml:"feature_groups,omitempty"`
	TargetCriteria   targeting.TargetCriteria       `json:"target_criteria" yaml:"target_criteria"`
	SuccessMetrics   []metricgate.SuccessMetric     `json:"success_metrics,omitempty" yaml:"success_metrics,omitempty"`
	RollbackCriteria []metricgate.RollbackCriterion `json:"rollback_criteria,omitempty" yaml:"rollback_criteria,omitempty"`
	Status           PhaseStatus                    `json:"status" yaml:"status"`
	// Duration is the planned dwell time before the next phase.
	Duration metricgate.Window `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// HasGroup reports whether the phase unlocks the feature group.
func (p Phase) HasGroup(group string) bool {
	return slices.Contains(p.FeatureGroups, group)
}

// Criteria returns the criteria used to target users in this phase.
// A criteria percentage of zero means unset and inherits the phase
// percentage; a phase that targets nobody by percentage sets its own
// Percentage to zero. Validate warns when the two disagree.
func (p Phase) Criteria() targeting.TargetCriteria {
	c := p.TargetCriteria
	if c.Percentage == 0 {
		c.Percentage = p.Percentage
	}
	return c
}

// Clone returns a deep copy of p.
func (p Phase) Clone() Phase {
	out := p
	out.FeatureGroups = slices.Clone(p.FeatureGroups)
	out.TargetCriteria = p.TargetCriteria.Clone()
	out.SuccessMetrics = slices.Clone(p.SuccessMetrics)
	out.RollbackCriteria = slices.Clone(p.RollbackCriteria)
	return out
}

// Environment is the rollout state of one deployment environment.
type Environment struct {
	Name              string `json:"name" yaml:"name"`
	CurrentPhaseIndex int    `json:"current_phase_index" yaml:"current_phase_index"`
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	// Override replaces the referenced shared phase wholesale for this environment.
	Override *Phase `json:"override,omitempty" yaml:"override,omitempty"`
}

// Clone returns a deep copy of e.
func (e Environment) Clone() Environment {
	out := e
	if e.Override != nil {
		o := e.Override.Clone()
		out.Override = &o
	}
	return out
}

// FlagSpec declares a feature flag and the feature group that unlocks it.
type FlagSpec struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Group       string   `json:"group" yaml:"group"`
	DependsOn   []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Config is the root aggregate of the rollout engine.
type Config struct {
	Version      string                 `json:"version,omitempty" yaml:"version,omitempty"`
	Settings     Settings               `json:"settings" yaml:"settings"`
	Phases       []Phase                `json:"phases" yaml:"phases"`
	Environments map[string]Environment `json:"environments" yaml:"environments"`
	Segments     []segment.UserSegment  `json:"segments,omitempty" yaml:"segments,omitempty"`
	Flags        []FlagSpec             `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.Phases != nil {
		out.Phases = make([]Phase, len(c.Phases))
		for i, p := range c.Phases {
			out.Phases[i] = p.Clone()
		}
	}
	if c.Environments != nil {
		out.Environments = make(map[string]Environment, len(c.Environments))
		for name, env := range c.Environments {
			out.Environments[name] = env.Clone()
		}
	}
	out.Segments = slices.Clone(c.Segments)
	if c.Flags != nil {
		out.Flags = make([]FlagSpec, len(c.Flags))
		for i, f := range c.Flags {
			f.DependsOn = slices.Clone(f.DependsOn)
			f.Tags = slices.Clone(f.Tags)
			out.Flags[i] = f
		}
	}
	return out.normalize()
}

// PhaseIndex returns the index of the shared phase with id.
func (c *Config) PhaseIndex(id string) int {
	return slices.IndexFunc(c.Phases, func(p Phase) bool { return p.ID == id })
}

// EnvironmentNames returns environment names in sorted order.
func (c *Config) EnvironmentNames() []string {
	return slices.Sorted(maps.Keys(c.Environments))
}

// normalize fills environment names from map keys.
func (c *Config) normalize() *Config {
	for name, env := range c.Environments {
		if env.Name == "" {
			env.Name = name
			c.Environments[name] = env
		}
	}
	return c
}

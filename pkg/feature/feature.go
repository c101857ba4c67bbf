package feature

import (
	"context"
	"slices"

	"github.com/dmitrymomot/rolloutkit/pkg/phase"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
)

// Name identifies a feature flag.
type Name string

// Flag is a registered feature flag. A flag is unlocked by the phases whose
// feature groups contain its Group; an empty Group is never phase-gated.
type Flag struct {
	Name        Name     `json:"name"`
	Description string   `json:"description,omitempty"`
	Group       string   `json:"group,omitempty"`
	DependsOn   []Name   `json:"depends_on,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func flagFromSpec(spec rollout.FlagSpec) Flag {
	f := Flag{
		Name:        Name(spec.Name),
		Description: spec.Description,
		Group:       spec.Group,
		Tags:        slices.Clone(spec.Tags),
	}
	for _, dep := range spec.DependsOn {
		f.DependsOn = append(f.DependsOn, Name(dep))
	}
	return f
}

func (f Flag) clone() Flag {
	f.DependsOn = slices.Clone(f.DependsOn)
	f.Tags = slices.Clone(f.Tags)
	return f
}

// Decision is the outcome of resolving one flag for one user.
type Decision struct {
	Flag    Name     `json:"flag"`
	Enabled bool     `json:"enabled"`
	Reasons []string `json:"reasons"`
	// PhaseID is the phase the decision was made against, if any.
	PhaseID string `json:"phase_id,omitempty"`
	// Bucket is the user's percentile when percentage rollout ran, else -1.
	Bucket int `json:"bucket"`
}

// PhaseSource hands out views of the rollout state. *phase.Manager implements it.
type PhaseSource interface {
	View() phase.View
}

// OverrideStore holds manual per-flag overrides that win over every other rule.
type OverrideStore interface {
	// Get returns the forced value and whether an override is set.
	Get(ctx context.Context, flag Name) (value bool, ok bool, err error)

	// Set forces the flag on or off.
	Set(ctx context.Context, flag Name, value bool) error

	// Delete removes the override. It returns ErrOverrideNotFound when none is set.
	Delete(ctx context.Context, flag Name) error

	// List returns every override.
	List(ctx context.Context) (map[Name]bool, error)
}

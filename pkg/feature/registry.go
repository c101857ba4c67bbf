package feature

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
)

// Registry is the validated, immutable set of known flags.
type Registry struct {
	flags map[Name]Flag
	names []Name
}

// NewRegistry validates the declarations: names must be non-empty and unique,
// dependencies must exist and must not form a cycle.
func NewRegistry(specs []rollout.FlagSpec) (*Registry, error) {
	r := &Registry{flags: make(map[Name]Flag, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, errors.Join(ErrInvalidFlag, errors.New("flag name cannot be empty"))
		}
		f := flagFromSpec(spec)
		if _, dup := r.flags[f.Name]; dup {
			return nil, errors.Join(ErrInvalidFlag, fmt.Errorf("duplicate flag %q", f.Name))
		}
		r.flags[f.Name] = f
	}
	r.names = slices.Sorted(maps.Keys(r.flags))

	for _, name := range r.names {
		for _, dep := range r.flags[name].DependsOn {
			if _, ok := r.flags[dep]; !ok {
				return nil, fmt.Errorf("%w: %q depends on %q", ErrUnknownDependency, name, dep)
			}
		}
	}
	if cycle := r.findCycle(); cycle != nil {
		parts := make([]string, len(cycle))
		for i, n := range cycle {
			parts[i] = string(n)
		}
		return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(parts, " -> "))
	}
	return r, nil
}

// findCycle returns the first dependency cycle found, closed with its first node.
func (r *Registry) findCycle() []Name {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[Name]int, len(r.flags))
	var path []Name

	var visit func(n Name) []Name
	visit = func(n Name) []Name {
		state[n] = inProgress
		path = append(path, n)
		for _, dep := range r.flags[n].DependsOn {
			switch state[dep] {
			case inProgress:
				start := slices.Index(path, dep)
				return append(slices.Clone(path[start:]), dep)
			case unvisited:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		path = path[:len(path)-1]
		state[n] = done
		return nil
	}

	for _, n := range r.names {
		if state[n] == unvisited {
			if c := visit(n); c != nil {
				return c
			}
		}
	}
	return nil
}

// Lookup returns the flag registered under name.
func (r *Registry) Lookup(name Name) (Flag, bool) {
	f, ok := r.flags[name]
	if !ok {
		return Flag{}, false
	}
	return f.clone(), true
}

// Names returns every registered flag name in sorted order.
func (r *Registry) Names() []Name {
	return slices.Clone(r.names)
}

// List returns registered flags sorted by name, optionally filtered to flags
// carrying at least one of tags.
func (r *Registry) List(tags ...string) []Flag {
	out := make([]Flag, 0, len(r.names))
	for _, name := range r.names {
		f := r.flags[name]
		if len(tags) > 0 && !slices.ContainsFunc(tags, func(t string) bool { return slices.Contains(f.Tags, t) }) {
			continue
		}
		out = append(out, f.clone())
	}
	return out
}

// CheckGroups verifies that every flag's group is unlocked by at least one
// shared phase or environment override of cfg.
func (r *Registry) CheckGroups(cfg *rollout.Config) error {
	groups := make(map[string]bool)
	for _, p := range cfg.Phases {
		for _, g := range p.FeatureGroups {
			groups[g] = true
		}
	}
	for _, env := range cfg.Environments {
		if env.Override != nil {
			for _, g := range env.Override.FeatureGroups {
				groups[g] = true
			}
		}
	}

	var missing []string
	for _, name := range r.names {
		if g := r.flags[name].Group; g != "" && !groups[g] {
			missing = append(missing, fmt.Sprintf("%s (group %s)", name, g))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, strings.Join(missing, ", "))
	}
	return nil
}

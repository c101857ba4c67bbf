package rollout

import (
	"fmt"
	"maps"
	"slices"

	"github.com/dmitrymomot/rolloutkit/pkg/environment"
)

// ValidationResult is the outcome of static configuration analysis.
// Errors block usage; warnings are advisory.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Err returns a *ConfigurationError when the result is not valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ConfigurationError{Errors: slices.Clone(r.Errors)}
}

type validator struct {
	res ValidationResult
}

func (v *validator) errorf(format string, args ...any) {
	v.res.Errors = append(v.res.Errors, fmt.Sprintf(format, args...))
}

func (v *validator) warnf(format string, args ...any) {
	v.res.Warnings = append(v.res.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks percentage bounds, phase ordering and environment pointers.
// It is read-only and safe to call concurrently with anything.
func Validate(cfg *Config) ValidationResult {
	v := &validator{}
	if cfg == nil {
		v.errorf("configuration is nil")
		return v.res
	}

	if len(cfg.Phases) == 0 {
		v.errorf("phase list is empty")
	}

	segments := make(map[string]bool, len(cfg.Segments))
	for _, s := range cfg.Segments {
		if s.ID == "" {
			v.errorf("segment %q has empty id", s.Name)
			continue
		}
		if segments[s.ID] {
			v.errorf("duplicate segment id %q", s.ID)
		}
		segments[s.ID] = true
		for _, level := range s.Criteria.ActivityLevels {
			if !level.Valid() {
				v.warnf("segment %q: unknown activity level %q", s.ID, level)
			}
		}
	}

	ids := make(map[string]bool, len(cfg.Phases))
	groups := make(map[string]bool)
	for i, p := range cfg.Phases {
		label := fmt.Sprintf("phase[%d] %q", i, p.ID)
		if p.ID == "" {
			v.errorf("phase[%d] has empty id", i)
		} else if ids[p.ID] {
			v.errorf("duplicate phase id %q", p.ID)
		}
		ids[p.ID] = true
		v.checkPhase(label, p, segments)
		for _, g := range p.FeatureGroups {
			groups[g] = true
		}

		if i > 0 && p.Percentage < cfg.Phases[i-1].Percentage {
			v.warnf("%s: percentage %d is lower than previous phase (%d)", label, p.Percentage, cfg.Phases[i-1].Percentage)
		}
	}

	for _, name := range cfg.EnvironmentNames() {
		env := cfg.Environments[name]
		if norm := environment.Normalize(name).String(); norm != name {
			v.errorf("environment %q: name must be lowercase and unaliased (use %q)", name, norm)
		}
		if env.CurrentPhaseIndex < 0 || env.CurrentPhaseIndex >= len(cfg.Phases) {
			v.errorf("environment %q: current phase index %d out of bounds [0,%d)", name, env.CurrentPhaseIndex, len(cfg.Phases))
		}
		if env.Override != nil {
			v.checkPhase(fmt.Sprintf("environment %q override", name), *env.Override, segments)
			for _, g := range env.Override.FeatureGroups {
				groups[g] = true
			}
		}
	}

	flags := make(map[string]bool, len(cfg.Flags))
	for _, f := range cfg.Flags {
		if f.Name == "" {
			v.errorf("flag with empty name")
			continue
		}
		if flags[f.Name] {
			v.errorf("duplicate flag %q", f.Name)
		}
		flags[f.Name] = true
	}
	for _, f := range cfg.Flags {
		if f.Group != "" && !groups[f.Group] {
			v.warnf("flag %q: group %q is not unlocked by any phase", f.Name, f.Group)
		}
		for _, dep := range f.DependsOn {
			if !flags[dep] {
				v.warnf("flag %q depends on unknown flag %q", f.Name, dep)
			}
		}
	}

	v.res.Valid = len(v.res.Errors) == 0
	return v.res
}

func (v *validator) checkPhase(label string, p Phase, segments map[string]bool) {
	if p.Percentage < 0 || p.Percentage > 100 {
		v.errorf("%s: percentage %d outside [0,100]", label, p.Percentage)
	}
	switch pc := p.TargetCriteria.Percentage; {
	case pc < 0 || pc > 100:
		v.errorf("%s: target criteria percentage %d outside [0,100]", label, pc)
	case pc != 0 && pc != p.Percentage:
		v.warnf("%s: target criteria percentage %d replaces phase percentage %d", label, pc, p.Percentage)
	}
	for _, cohort := range slices.Sorted(maps.Keys(p.TargetCriteria.Cohorts)) {
		if w := p.TargetCriteria.Cohorts[cohort]; w < 0 || w > 100 {
			v.errorf("%s: cohort %q weight %d outside [0,100]", label, cohort, w)
		}
	}
	if p.Status != "" && !p.Status.Valid() {
		v.errorf("%s: unknown status %q", label, p.Status)
	}
	for _, id := range p.TargetCriteria.UserSegments {
		if !segments[id] {
			v.warnf("%s: references unknown segment %q", label, id)
		}
	}
	for _, c := range p.RollbackCriteria {
		if !c.Operator.Valid() {
			v.errorf("%s: rollback criterion %q has unknown operator %q", label, c.ID, c.Operator)
		}
	}
	for _, m := range p.SuccessMetrics {
		if !m.Operator.Valid() {
			v.errorf("%s: success metric %q has unknown operator %q", label, m.ID, m.Operator)
		}
	}
}

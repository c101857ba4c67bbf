package metricgate

import (
	"fmt"
	"time"
)

// Operator compares a live value (left) against a target or threshold (right).
type Operator string

const (
	OpGreaterThan        Operator = "gt"
	OpGreaterThanOrEqual Operator = "gte"
	OpLessThan           Operator = "lt"
	OpLessThanOrEqual    Operator = "lte"
	OpEqual              Operator = "eq"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual, OpEqual:
		return true
	}
	return false
}

// Compare applies op to value and ref. Unknown operators never hold.
func (op Operator) Compare(value, ref float64) bool {
	switch op {
	case OpGreaterThan:
		return value > ref
	case OpGreaterThanOrEqual:
		return value >= ref
	case OpLessThan:
		return value < ref
	case OpLessThanOrEqual:
		return value <= ref
	case OpEqual:
		return value == ref
	}
	return false
}

// Symbol returns the mathematical notation of op for reason strings.
func (op Operator) Symbol() string {
	switch op {
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpEqual:
		return "=="
	}
	return string(op)
}

// Severity ranks rollback criteria.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Window is a measurement window. It marshals as a Go duration string ("1h", "15m").
type Window time.Duration

func (w Window) String() string { return time.Duration(w).String() }

func (w Window) MarshalText() ([]byte, error) {
	return []byte(time.Duration(w).String()), nil
}

func (w *Window) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*w = 0
		return nil
	}
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid measurement window %q: %w", text, err)
	}
	*w = Window(d)
	return nil
}

// SuccessMetric is a target the rollout should meet to be considered healthy.
type SuccessMetric struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Target   float64  `json:"target" yaml:"target"`
	Operator Operator `json:"operator" yaml:"operator"`
	Window   Window   `json:"window,omitempty" yaml:"window,omitempty"`
}

// RollbackCriterion is a threshold on a live metric that indicates the rollout
// should be reverted.
type RollbackCriterion struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	MetricID     string   `json:"metric_id" yaml:"metric_id"`
	Threshold    float64  `json:"threshold" yaml:"threshold"`
	Operator     Operator `json:"operator" yaml:"operator"`
	Window       Window   `json:"window,omitempty" yaml:"window,omitempty"`
	AutoRollback bool     `json:"auto_rollback" yaml:"auto_rollback"`
	Severity     Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// metricID falls back to the criterion id when no metric id is set.
func (c RollbackCriterion) metricID() string {
	if c.MetricID != "" {
		return c.MetricID
	}
	return c.ID
}

// Trigger is a rollback criterion that tripped.
type Trigger struct {
	Criterion RollbackCriterion `json:"criterion"`
	Value     float64           `json:"value"`
}

// Decision is the gate's verdict over a set of rollback criteria.
type Decision struct {
	ShouldRollback bool      `json:"should_rollback"`
	Triggered      []Trigger `json:"triggered,omitempty"`
	Reasons        []string  `json:"reasons,omitempty"`
}

// MaxSeverity returns the highest severity among triggered criteria, or "" when none tripped.
func (d Decision) MaxSeverity() Severity {
	var out Severity
	for _, t := range d.Triggered {
		if t.Criterion.Severity.Rank() > out.Rank() || out == "" {
			out = t.Criterion.Severity
		}
	}
	return out
}

// SuccessReport summarizes success metrics against live values.
type SuccessReport struct {
	// Healthy is true when every evaluated metric meets its target.
	Healthy bool     `json:"healthy"`
	Met     []string `json:"met,omitempty"`
	Missed  []string `json:"missed,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

package metricgate

import "fmt"

// Evaluate checks every rollback criterion against live values.
// A criterion triggers when its metric is present, the comparison holds and it
// has AutoRollback set. Crossed criteria without AutoRollback are reported as
// advisory reasons only.
func Evaluate(criteria []RollbackCriterion, live map[string]float64) Decision {
	var d Decision
	for _, c := range criteria {
		id := c.metricID()
		value, ok := live[id]
		if !ok {
			d.Reasons = append(d.Reasons, fmt.Sprintf("%s: metric %s not evaluated (no data)", c.ID, id))
			continue
		}
		if !c.Operator.Compare(value, c.Threshold) {
			continue
		}
		if !c.AutoRollback {
			d.Reasons = append(d.Reasons, fmt.Sprintf("%s: %s=%g %s %g (advisory, auto rollback off)",
				c.ID, id, value, c.Operator.Symbol(), c.Threshold))
			continue
		}
		d.ShouldRollback = true
		d.Triggered = append(d.Triggered, Trigger{Criterion: c, Value: value})
		d.Reasons = append(d.Reasons, fmt.Sprintf("%s: %s=%g %s %g (severity %s)",
			c.ID, id, value, c.Operator.Symbol(), c.Threshold, c.Severity))
	}
	return d
}

// EvaluateSuccess checks success metrics against live values. Metrics without
// a live value are listed as missing and do not affect health.
func EvaluateSuccess(metrics []SuccessMetric, live map[string]float64) SuccessReport {
	r := SuccessReport{Healthy: true}
	for _, m := range metrics {
		value, ok := live[m.ID]
		switch {
		case !ok:
			r.Missing = append(r.Missing, m.ID)
		case m.Operator.Compare(value, m.Target):
			r.Met = append(r.Met, m.ID)
		default:
			r.Missed = append(r.Missed, m.ID)
			r.Healthy = false
		}
	}
	return r
}

package monitor

import "errors"

var (
	// ErrNoSource indicates Run was called without a metric source.
	ErrNoSource = errors.New("monitor: no metric source configured")

	// ErrFetchMetrics indicates the metric source failed.
	ErrFetchMetrics = errors.New("monitor: failed to fetch metrics")
)

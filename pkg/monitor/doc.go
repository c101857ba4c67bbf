// Package monitor closes the loop between live metrics and the phase manager.
//
// A Monitor feeds already-computed metric values (error rate, latency and so
// on) into the metric gate for the effective phase of an environment. When a
// rollback criterion with auto_rollback trips and the global settings allow
// it, the environment is moved back one phase and the evaluated phase is
// marked rolled_back.
//
// Metric values come from a MetricSource. Run polls the source on an interval
// and evaluates all enabled environments concurrently:
//
//	mon := monitor.New(manager,
//		monitor.WithSource(source),
//		monitor.WithInterval(30*time.Second),
//		monitor.WithMetrics(m),
//	)
//	go mon.Run(ctx)
//
// EvaluateRollback can also be called directly with a metrics snapshot, which
// is what the admin API and the CLI do.
package monitor

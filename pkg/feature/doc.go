// Package feature resolves feature flags for a user in an environment.
//
// Flags are declared in the rollout configuration and loaded into a Registry,
// which rejects empty or duplicate names, unknown dependencies and dependency
// cycles. CheckGroups verifies at startup that every flag's feature group is
// unlocked by at least one phase.
//
// A Resolver decides a flag in a fixed order, recording a reason at each step:
//
//  1. An explicit override from the OverrideStore short-circuits everything.
//  2. Every declared dependency must itself resolve to enabled.
//  3. The environment must have a current phase (known and enabled).
//  4. The flag's group must be one of the phase's feature groups.
//  5. The phase's target criteria decide, and their reasons are appended.
//
// Usage:
//
//	reg, err := feature.NewRegistry(cfg.Flags)
//	if err != nil {
//		return err
//	}
//	resolver := feature.NewResolver(reg, manager,
//		feature.WithOverrides(feature.NewRedisOverrides(client)),
//	)
//	d := resolver.Resolve(ctx, "leaderboard", userID, "production", attrs)
//	if d.Enabled {
//		// show the leaderboard
//	}
//
// Override stores are MemoryOverrides for a single process and RedisOverrides
// for a shared deployment. A failing override store is logged and skipped; it
// never turns a flag on.
//
// Decisions are not cached, so phase transitions and override changes apply to
// the next call.
package feature

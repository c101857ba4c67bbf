// Package adminapi exposes flag resolution and rollout administration over HTTP.
//
// Routes are mounted on a chi router:
//
//	GET    /flags                                  resolve every flag (?user=&env=)
//	GET    /flags/{flag}                           resolve one flag
//	GET    /environments                           list environments
//	GET    /environments/{env}/phase               current phase of an environment
//	POST   /environments/{env}/advance             move the phase pointer forward
//	POST   /environments/{env}/rollback            move the phase pointer back
//	PUT    /environments/{env}/phases/{id}/status  change a phase status
//	POST   /environments/{env}/metrics             evaluate a metric feed
//	GET    /overrides                              list manual overrides
//	PUT    /overrides/{flag}                       force a flag on or off
//	DELETE /overrides/{flag}                       remove an override
//	GET    /journal                                recorded transitions
//	GET    /config                                 export the active document
//	GET    /healthz, /readyz, /metrics
//
// JSON responses use the envelope {"data", "meta", "error"}. Rejected phase
// operations answer 409, unknown environments, phases, flags and overrides
// answer 404, malformed input answers 400.
//
// The resolution environment comes from the "env" query parameter or the
// X-Rollout-Environment header. User attributes are read from the query:
// activity_level, subscription_tier, registered_at (RFC 3339),
// workout_count, engagement_score, platform, region and cohort.
package adminapi

// Package rollout holds the rollout configuration model: phases, environments,
// user segments and the flag registry document.
//
// A configuration is only usable after Validate reports no errors. Decode and
// LoadFile accept JSON or YAML documents, check them against an embedded JSON
// schema and run Validate before returning:
//
//	cfg, res, err := rollout.LoadFile("rollout.yaml")
//	if err != nil {
//		return err
//	}
//	for _, w := range res.Warnings {
//		log.Warn("rollout config", "warning", w)
//	}
//
// Encode and SaveFile export the configuration including mutated phase
// pointers and statuses, so a snapshot can be written back for audit or backup.
package rollout

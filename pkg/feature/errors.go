package feature

import "errors"

// Predefined errors for the feature package.
var (
	// ErrFlagNotFound indicates that the requested feature flag is not registered.
	ErrFlagNotFound = errors.New("feature flag not found")

	// ErrInvalidFlag indicates that a flag declaration is malformed.
	ErrInvalidFlag = errors.New("invalid feature flag")

	// ErrUnknownDependency indicates a flag depends on an undeclared flag.
	ErrUnknownDependency = errors.New("feature flag depends on unknown flag")

	// ErrDependencyCycle indicates flag dependencies form a cycle.
	ErrDependencyCycle = errors.New("feature flag dependency cycle")

	// ErrUnknownGroup indicates a flag's group is not unlocked by any phase.
	ErrUnknownGroup = errors.New("feature group not unlocked by any phase")

	// ErrOverrideNotFound indicates no override is set for the flag.
	ErrOverrideNotFound = errors.New("feature override not found")

	// ErrOverrideStore indicates the override backend failed.
	ErrOverrideStore = errors.New("feature override store failure")
)

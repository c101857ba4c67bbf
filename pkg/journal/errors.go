package journal

import "errors"

var (
	// ErrInvalidEvent indicates the event is missing required fields.
	ErrInvalidEvent = errors.New("journal: invalid event")

	// ErrDuplicateEvent indicates an event with the same id was already stored.
	ErrDuplicateEvent = errors.New("journal: duplicate event")

	// ErrStorageNotAvailable indicates the storage backend failed.
	ErrStorageNotAvailable = errors.New("journal: storage backend is unavailable")
)

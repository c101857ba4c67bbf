package rollout

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid rollout configuration")

	// ErrSchemaViolation indicates the document does not match the configuration schema.
	ErrSchemaViolation = errors.New("rollout document does not match schema")

	// ErrDecode indicates the document could not be parsed.
	ErrDecode = errors.New("failed to decode rollout document")

	// ErrEncode indicates the configuration could not be serialized.
	ErrEncode = errors.New("failed to encode rollout configuration")

	// ErrUnsupportedFormat indicates an unknown document format.
	ErrUnsupportedFormat = errors.New("unsupported rollout document format")
)

// ConfigurationError lists the blocking problems found in a configuration.
// A configuration that produces it must not become active.
type ConfigurationError struct {
	Errors []string
}

func (e *ConfigurationError) Error() string {
	return ErrInvalidConfig.Error() + ": " + strings.Join(e.Errors, "; ")
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfig
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

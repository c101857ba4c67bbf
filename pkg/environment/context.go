package environment

import (
	"context"
	"log/slog"
	"strings"
)

// Environment is the name of a deployment environment a rollout is tracked in.
type Environment string

const (
	// Development for development environment.
	Development Environment = "development"
	// Production for production environment.
	Production Environment = "production"
	// Staging for staging environment.
	Staging Environment = "staging"
)

// Normalize lowercases name and expands the common short aliases
// ("dev", "stage", "prod"). Other names are returned trimmed and lowercased.
func Normalize(name string) Environment {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "dev":
		return Development
	case "stage":
		return Staging
	case "prod":
		return Production
	default:
		return Environment(n)
	}
}

func (e Environment) String() string { return string(e) }

type contextKey struct{}

// WithContext stores env in ctx.
func WithContext(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, contextKey{}, env)
}

// FromContext returns the environment stored in ctx, or "".
func FromContext(ctx context.Context) Environment {
	if ctx == nil {
		return ""
	}
	env, _ := ctx.Value(contextKey{}).(Environment)
	return env
}

// LoggerExtractor adds an "environment" attribute to log records whose
// context carries one.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if env := FromContext(ctx); env != "" {
			return slog.String("environment", env.String()), true
		}
		return slog.Attr{}, false
	}
}

package phase

import "context"

type reasonKey struct{}

// WithReason attaches a human-readable reason to the operations run with ctx.
// It is carried into the Transition passed to hooks.
func WithReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, reasonKey{}, reason)
}

// ReasonFromContext returns the reason set by WithReason.
func ReasonFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	reason, _ := ctx.Value(reasonKey{}).(string)
	return reason
}

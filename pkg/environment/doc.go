// Package environment names the deployment environments a rollout is tracked in
// and propagates the target environment through context.Context, HTTP requests
// and structured logs.
//
// Environment names are normalized with Normalize so that the short aliases
// "dev", "stage" and "prod" address the same rollout state as their long forms.
//
// In HTTP servers Middleware reads the environment from the "env" query
// parameter or the X-Rollout-Environment header and stores it in the request
// context:
//
//	r := chi.NewRouter()
//	r.Use(environment.Middleware(environment.Production))
//
// Handlers then read it with FromContext. LoggerExtractor turns the stored
// value into a slog attribute for logger.WithContextExtractors.
package environment

package environment

import "net/http"

const (
	// Header carries the target environment of an admin or resolution request.
	Header = "X-Rollout-Environment"
	// QueryParam is the query parameter alternative to Header.
	QueryParam = "env"
)

// Middleware attaches the environment named by the request to its context.
// The query parameter wins over the header; fallback is used when neither is set.
func Middleware(fallback Environment) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			env := fallback
			if v := r.Header.Get(Header); v != "" {
				env = Normalize(v)
			}
			if v := r.URL.Query().Get(QueryParam); v != "" {
				env = Normalize(v)
			}
			ctx := WithContext(r.Context(), env)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

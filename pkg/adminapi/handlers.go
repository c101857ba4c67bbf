package adminapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/rolloutkit/pkg/environment"
	"github.com/dmitrymomot/rolloutkit/pkg/feature"
	"github.com/dmitrymomot/rolloutkit/pkg/journal"
	"github.com/dmitrymomot/rolloutkit/pkg/logger"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

type statusRequest struct {
	Status rollout.PhaseStatus `json:"status"`
	Reason string              `json:"reason"`
}

type metricsRequest struct {
	Metrics map[string]float64 `json:"metrics"`
}

type overrideRequest struct {
	Enabled *bool `json:"enabled"`
}

type overrideView struct {
	Flag    feature.Name `json:"flag"`
	Enabled bool         `json:"enabled"`
}

// resolutionInput reads the user and environment of a resolution request.
// Unknown environments are reported as not found.
func (a *API) resolutionInput(r *http.Request) (string, string, error) {
	q := r.URL.Query()
	user := q.Get("user")
	if user == "" {
		reqErr := badRequest("user is required")
		reqErr.add("user", "must not be empty")
		return "", "", reqErr
	}
	env := environment.FromContext(r.Context()).String()
	if _, err := a.manager.Status(env); err != nil {
		return "", "", fmt.Errorf("%w: %s", err, env)
	}
	return user, env, nil
}

func (a *API) resolveFlag(w http.ResponseWriter, r *http.Request) {
	name := feature.Name(chi.URLParam(r, "flag"))
	if _, ok := a.resolver.Registry().Lookup(name); !ok {
		respondError(w, fmt.Errorf("%w: %s", feature.ErrFlagNotFound, name))
		return
	}
	user, env, err := a.resolutionInput(r)
	if err != nil {
		respondError(w, err)
		return
	}
	attrs, err := attributesFromQuery(r.URL.Query())
	if err != nil {
		respondError(w, err)
		return
	}
	d := a.resolver.Resolve(r.Context(), name, user, env, attrs)
	respondMeta(w, d, map[string]any{"environment": env})
}

func (a *API) resolveAll(w http.ResponseWriter, r *http.Request) {
	user, env, err := a.resolutionInput(r)
	if err != nil {
		respondError(w, err)
		return
	}
	attrs, err := attributesFromQuery(r.URL.Query())
	if err != nil {
		respondError(w, err)
		return
	}
	decisions := a.resolver.ResolveAll(r.Context(), user, env, attrs)
	respondMeta(w, decisions, map[string]any{"environment": env, "count": len(decisions)})
}

func (a *API) listEnvironments(w http.ResponseWriter, _ *http.Request) {
	names := a.manager.Environments()
	out := make([]phase.EnvironmentStatus, 0, len(names))
	for _, name := range names {
		st, err := a.manager.Status(name)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	respond(w, out)
}

func (a *API) currentPhase(w http.ResponseWriter, r *http.Request) {
	env := chi.URLParam(r, "env")
	st, err := a.manager.Status(env)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %s", err, env))
		return
	}
	respond(w, st)
}

func (a *API) advance(w http.ResponseWriter, r *http.Request) {
	a.move(w, r, a.manager.AdvancePhase)
}

func (a *API) rollback(w http.ResponseWriter, r *http.Request) {
	a.move(w, r, a.manager.RollbackPhase)
}

func (a *API) move(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, env string) error) {
	env := chi.URLParam(r, "env")
	var req reasonRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondError(w, err)
		return
	}
	ctx := phase.WithReason(r.Context(), reasonFrom(r, req.Reason))
	if err := op(ctx, env); err != nil {
		respondError(w, err)
		return
	}
	a.currentPhase(w, r)
}

func (a *API) updateStatus(w http.ResponseWriter, r *http.Request) {
	env := chi.URLParam(r, "env")
	phaseID := chi.URLParam(r, "phase")
	var req statusRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, err)
		return
	}
	if req.Status == "" {
		reqErr := badRequest("status is required")
		reqErr.add("status", "must not be empty")
		respondError(w, reqErr)
		return
	}
	ctx := phase.WithReason(r.Context(), reasonFrom(r, req.Reason))
	if err := a.manager.UpdatePhaseStatus(ctx, phaseID, req.Status, env); err != nil {
		respondError(w, err)
		return
	}
	a.currentPhase(w, r)
}

func (a *API) evaluateMetrics(w http.ResponseWriter, r *http.Request) {
	env := chi.URLParam(r, "env")
	var req metricsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, err)
		return
	}
	if len(req.Metrics) == 0 {
		reqErr := badRequest("metrics are required")
		reqErr.add("metrics", "must contain at least one value")
		respondError(w, reqErr)
		return
	}
	res, err := a.monitor.EvaluateRollback(r.Context(), env, req.Metrics)
	if err != nil {
		if errors.Is(err, phase.ErrUnknownEnvironment) {
			err = fmt.Errorf("%w: %s", err, env)
		}
		respondError(w, err)
		return
	}
	respond(w, res)
}

func (a *API) listOverrides(w http.ResponseWriter, r *http.Request) {
	store := a.resolver.Overrides()
	if store == nil {
		respondError(w, errNotConfigured)
		return
	}
	all, err := store.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]overrideView, 0, len(all))
	for _, name := range a.resolver.Registry().Names() {
		if v, ok := all[name]; ok {
			out = append(out, overrideView{Flag: name, Enabled: v})
		}
	}
	respond(w, out)
}

func (a *API) setOverride(w http.ResponseWriter, r *http.Request) {
	store := a.resolver.Overrides()
	if store == nil {
		respondError(w, errNotConfigured)
		return
	}
	name := feature.Name(chi.URLParam(r, "flag"))
	if _, ok := a.resolver.Registry().Lookup(name); !ok {
		respondError(w, fmt.Errorf("%w: %s", feature.ErrFlagNotFound, name))
		return
	}
	var req overrideRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, err)
		return
	}
	if req.Enabled == nil {
		reqErr := badRequest("enabled is required")
		reqErr.add("enabled", "must be true or false")
		respondError(w, reqErr)
		return
	}
	if err := store.Set(r.Context(), name, *req.Enabled); err != nil {
		respondError(w, err)
		return
	}
	a.log.InfoContext(r.Context(), "feature override set",
		logger.Flag(string(name)),
		slog.Bool("enabled", *req.Enabled),
	)
	respond(w, overrideView{Flag: name, Enabled: *req.Enabled})
}

func (a *API) deleteOverride(w http.ResponseWriter, r *http.Request) {
	store := a.resolver.Overrides()
	if store == nil {
		respondError(w, errNotConfigured)
		return
	}
	name := feature.Name(chi.URLParam(r, "flag"))
	if err := store.Delete(r.Context(), name); err != nil {
		respondError(w, fmt.Errorf("%w: %s", err, name))
		return
	}
	a.log.InfoContext(r.Context(), "feature override removed", logger.Flag(string(name)))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listJournal(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		respondError(w, errNotConfigured)
		return
	}
	f, err := journalFilter(r)
	if err != nil {
		respondError(w, err)
		return
	}
	events, err := a.journal.List(r.Context(), f)
	if err != nil {
		respondError(w, err)
		return
	}
	respondMeta(w, events, map[string]any{"count": len(events)})
}

func journalFilter(r *http.Request) (journal.Filter, error) {
	q := r.URL.Query()
	f := journal.Filter{
		Environment: q.Get("environment"),
		Action:      q.Get("action"),
		PhaseID:     q.Get("phase"),
		Result:      journal.Result(q.Get("result")),
	}
	reqErr := badRequest("invalid journal filter")
	for key, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				reqErr.add(key, "must be an RFC 3339 timestamp")
			}
			*dst = t
		}
	}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				reqErr.add(key, "must be a non-negative integer")
			}
			*dst = n
		}
	}
	if len(reqErr.fields) > 0 {
		return journal.Filter{}, reqErr
	}
	return f, nil
}

func (a *API) exportConfig(w http.ResponseWriter, r *http.Request) {
	format := rollout.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = rollout.FormatJSON
	}
	var buf bytes.Buffer
	if err := rollout.Encode(&buf, a.manager.Snapshot(), format); err != nil {
		if errors.Is(err, rollout.ErrUnsupportedFormat) {
			err = badRequest("%v", err)
		}
		respondError(w, err)
		return
	}
	contentType := "application/json; charset=utf-8"
	if format == rollout.FormatYAML {
		contentType = "application/yaml; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/rolloutkit/pkg/feature"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
)

// Error codes carried in ErrorDetail.Code.
const (
	CodeBadRequest = "bad_request"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeInternal   = "internal_error"
	CodeDisabled   = "not_configured"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Data: data})
}

func respondMeta(w http.ResponseWriter, data any, meta map[string]any) {
	writeJSON(w, http.StatusOK, Envelope{Data: data, Meta: meta})
}

func respondError(w http.ResponseWriter, err error) {
	status, detail := errorToDetail(err)
	writeJSON(w, status, Envelope{Error: detail})
}

// errorToDetail maps domain errors to a status code and error body.
func errorToDetail(err error) (int, *ErrorDetail) {
	var (
		reqErr  *requestError
		cfgErr  *rollout.ConfigurationError
		status  = http.StatusInternalServerError
		code    = CodeInternal
		details map[string][]string
	)
	switch {
	case errors.As(err, &reqErr):
		status, code, details = http.StatusBadRequest, CodeBadRequest, reqErr.fields
	case errors.Is(err, phase.ErrUnknownEnvironment),
		errors.Is(err, phase.ErrPhaseNotFound),
		errors.Is(err, feature.ErrFlagNotFound),
		errors.Is(err, feature.ErrOverrideNotFound):
		status, code = http.StatusNotFound, CodeNotFound
	case errors.Is(err, phase.ErrInvalidStatus):
		status, code = http.StatusBadRequest, CodeBadRequest
	case errors.As(err, &cfgErr):
		status, code = http.StatusBadRequest, CodeBadRequest
	case phase.IsTransitionError(err):
		status, code = http.StatusConflict, CodeConflict
	case errors.Is(err, errNotConfigured):
		status, code = http.StatusNotImplemented, CodeDisabled
	}
	return status, &ErrorDetail{Code: code, Message: err.Error(), Details: details}
}

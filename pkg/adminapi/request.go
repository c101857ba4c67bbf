package adminapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/rolloutkit/pkg/segment"
)

const maxBodyBytes = 1 << 20

var errNotConfigured = errors.New("feature not configured on this server")

// requestError is a client input error with optional per-field messages.
type requestError struct {
	msg    string
	fields map[string][]string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) *requestError {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func (e *requestError) add(field, msg string) {
	if e.fields == nil {
		e.fields = make(map[string][]string)
	}
	e.fields[field] = append(e.fields[field], msg)
}

// decodeJSON strictly decodes a single JSON object from the request body.
// An empty body leaves v untouched when optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	if r.ContentLength == 0 && optional {
		return nil
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return badRequest("unsupported content type %q, expected application/json", ct)
		}
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return badRequest("invalid JSON: empty body")
		}
		return badRequest("invalid JSON: %v", err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return badRequest("invalid JSON: unexpected data after object")
	}
	return nil
}

// attributesFromQuery reads user attributes from resolution query parameters.
func attributesFromQuery(q url.Values) (segment.UserAttributes, error) {
	attrs := segment.UserAttributes{
		ActivityLevel:    segment.ActivityLevel(q.Get("activity_level")),
		SubscriptionTier: q.Get("subscription_tier"),
		Platform:         q.Get("platform"),
		Region:           q.Get("region"),
		Cohort:           q.Get("cohort"),
	}
	reqErr := badRequest("invalid user attributes")

	if v := q.Get("registered_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			reqErr.add("registered_at", "must be an RFC 3339 timestamp")
		}
		attrs.RegisteredAt = t
	}
	if v := q.Get("workout_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			reqErr.add("workout_count", "must be a non-negative integer")
		}
		attrs.WorkoutCount = &n
	}
	if v := q.Get("engagement_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			reqErr.add("engagement_score", "must be a number")
		}
		attrs.EngagementScore = &f
	}
	if attrs.ActivityLevel != "" && !attrs.ActivityLevel.Valid() {
		reqErr.add("activity_level", "unknown activity level")
	}

	if len(reqErr.fields) > 0 {
		return segment.UserAttributes{}, reqErr
	}
	return attrs, nil
}

// reasonFrom picks the operator-supplied reason from a body field or header.
func reasonFrom(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	return strings.TrimSpace(r.Header.Get(ReasonHeader))
}

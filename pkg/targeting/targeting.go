// Package targeting decides whether a user qualifies for a rollout phase.
//
// Rules are checked in a fixed order and the first rule that decides wins:
//
//  1. explicit exclusion
//  2. platform and region filters
//  3. explicit inclusion list (replaces bucketing when present)
//  4. segment membership
//  5. percentage bucket (cohort weight when the user's cohort is weighted)
//
// Explicit decisions always dominate probabilistic rollout, and segments are a
// coarser override than the raw percentage. Every step appends a human readable
// reason so a decision can be audited after the fact.
package targeting

import (
	"fmt"
	"slices"

	"github.com/dmitrymomot/rolloutkit/pkg/bucketing"
	"github.com/dmitrymomot/rolloutkit/pkg/segment"
)

// Reasons emitted by the evaluator.
const (
	ReasonExcluded       = "explicitly excluded"
	ReasonExplicitList   = "explicit allow/deny list"
	ReasonSegmentMatch   = "segment match"
	ReasonPercentage     = "percentage rollout"
	ReasonNoCriteria     = "no criteria satisfied"
	ReasonPlatform       = "platform filter"
	ReasonRegion         = "region filter"
	ReasonUnknownSegment = "unknown segment"
)

// TargetCriteria defines who qualifies for a phase.
type TargetCriteria struct {
	Percentage int `json:"percentage" yaml:"percentage"`
	// UserIDs is the complete inclusion list when non-empty; bucketing is skipped.
	UserIDs []string `json:"user_ids,omitempty" yaml:"user_ids,omitempty"`
	// ExcludedUserIDs takes precedence over every other rule.
	ExcludedUserIDs []string       `json:"excluded_user_ids,omitempty" yaml:"excluded_user_ids,omitempty"`
	UserSegments    []string       `json:"user_segments,omitempty" yaml:"user_segments,omitempty"`
	Cohorts         map[string]int `json:"cohorts,omitempty" yaml:"cohorts,omitempty"`
	Platforms       []string       `json:"platforms,omitempty" yaml:"platforms,omitempty"`
	Regions         []string       `json:"regions,omitempty" yaml:"regions,omitempty"`
}

// Clone returns a deep copy of c.
func (c TargetCriteria) Clone() TargetCriteria {
	out := c
	out.UserIDs = slices.Clone(c.UserIDs)
	out.ExcludedUserIDs = slices.Clone(c.ExcludedUserIDs)
	out.UserSegments = slices.Clone(c.UserSegments)
	out.Platforms = slices.Clone(c.Platforms)
	out.Regions = slices.Clone(c.Regions)
	if c.Cohorts != nil {
		out.Cohorts = make(map[string]int, len(c.Cohorts))
		for k, v := range c.Cohorts {
			out.Cohorts[k] = v
		}
	}
	return out
}

// Result is the outcome of a single evaluation.
type Result struct {
	Included bool     `json:"included"`
	Reasons  []string `json:"reasons"`
	// Bucket is the user's bucket when the percentage rule ran, otherwise -1.
	Bucket int `json:"bucket"`
}

// Evaluator evaluates target criteria against a catalog of known segments.
// It is immutable after construction and safe for concurrent use.
type Evaluator struct {
	segments map[string]segment.UserSegment
}

// NewEvaluator creates an evaluator that resolves segment references against segments.
func NewEvaluator(segments ...segment.UserSegment) *Evaluator {
	e := &Evaluator{segments: make(map[string]segment.UserSegment, len(segments))}
	for _, s := range segments {
		e.segments[s.ID] = s
	}
	return e
}

// Segment returns the catalog entry for id.
func (e *Evaluator) Segment(id string) (segment.UserSegment, bool) {
	s, ok := e.segments[id]
	return s, ok
}

// Evaluate decides whether userID with attrs is included by c.
func (e *Evaluator) Evaluate(c TargetCriteria, userID string, attrs segment.UserAttributes) Result {
	res := Result{Bucket: -1}

	if slices.Contains(c.ExcludedUserIDs, userID) {
		res.Reasons = append(res.Reasons, ReasonExcluded)
		return res
	}

	if len(c.Platforms) > 0 && !slices.Contains(c.Platforms, attrs.Platform) {
		res.Reasons = append(res.Reasons, fmt.Sprintf("%s: %q not in %v", ReasonPlatform, attrs.Platform, c.Platforms))
		return res
	}
	if len(c.Regions) > 0 && !slices.Contains(c.Regions, attrs.Region) {
		res.Reasons = append(res.Reasons, fmt.Sprintf("%s: %q not in %v", ReasonRegion, attrs.Region, c.Regions))
		return res
	}

	if len(c.UserIDs) > 0 {
		res.Included = slices.Contains(c.UserIDs, userID)
		if res.Included {
			res.Reasons = append(res.Reasons, ReasonExplicitList+": included")
		} else {
			res.Reasons = append(res.Reasons, ReasonExplicitList+": not listed")
		}
		return res
	}

	for _, id := range c.UserSegments {
		s, ok := e.segments[id]
		if !ok {
			res.Reasons = append(res.Reasons, fmt.Sprintf("%s: %s", ReasonUnknownSegment, id))
			continue
		}
		if segment.Matches(s, attrs) {
			res.Included = true
			res.Reasons = append(res.Reasons, fmt.Sprintf("%s: %s", ReasonSegmentMatch, id))
			return res
		}
	}

	percentage, source := c.Percentage, "percentage"
	if w, ok := c.Cohorts[attrs.Cohort]; ok && attrs.Cohort != "" {
		percentage, source = w, "cohort "+attrs.Cohort
	}

	if percentage > 0 {
		res.Bucket = bucketing.Bucket(userID)
		res.Included = bucketing.InRollout(userID, percentage)
		op := "<"
		if !res.Included {
			op = ">="
		}
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("%s: bucket %d %s %d (%s)", ReasonPercentage, res.Bucket, op, percentage, source))
		return res
	}

	res.Reasons = append(res.Reasons, ReasonNoCriteria)
	return res
}

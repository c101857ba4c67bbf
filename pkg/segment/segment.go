// Package segment evaluates user segments against externally supplied user attributes.
//
// A UserSegment is a named predicate. Every populated criterion must hold for the
// segment to match; criteria left empty impose no constraint. When the attribute a
// criterion needs is missing, that criterion fails, so segment targeting never widens
// a rollout on incomplete profiles.
package segment

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ActivityLevel is the coarse activity classification of a user profile.
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

// Valid reports whether l is one of the known activity levels.
func (l ActivityLevel) Valid() bool {
	switch l {
	case ActivitySedentary, ActivityLight, ActivityModerate, ActivityActive, ActivityVeryActive:
		return true
	}
	return false
}

// UserAttributes is the user profile supplied by the caller for a single evaluation.
// Pointer fields distinguish "unknown" from the zero value.
type UserAttributes struct {
	ActivityLevel    ActivityLevel `json:"activity_level,omitempty" yaml:"activity_level,omitempty"`
	SubscriptionTier string        `json:"subscription_tier,omitempty" yaml:"subscription_tier,omitempty"`
	RegisteredAt     time.Time     `json:"registered_at,omitzero" yaml:"registered_at,omitempty"`
	WorkoutCount     *int          `json:"workout_count,omitempty" yaml:"workout_count,omitempty"`
	EngagementScore  *float64      `json:"engagement_score,omitempty" yaml:"engagement_score,omitempty"`
	Platform         string        `json:"platform,omitempty" yaml:"platform,omitempty"`
	Region           string        `json:"region,omitempty" yaml:"region,omitempty"`
	Cohort           string        `json:"cohort,omitempty" yaml:"cohort,omitempty"`
}

// Criteria lists the constraints of a segment. Zero values mean "no constraint".
type Criteria struct {
	RegisteredAfter   *time.Time      `json:"registered_after,omitempty" yaml:"registered_after,omitempty"`
	RegisteredBefore  *time.Time      `json:"registered_before,omitempty" yaml:"registered_before,omitempty"`
	ActivityLevels    []ActivityLevel `json:"activity_levels,omitempty" yaml:"activity_levels,omitempty"`
	SubscriptionTiers []string        `json:"subscription_tiers,omitempty" yaml:"subscription_tiers,omitempty"`
	MinWorkouts       *int            `json:"min_workouts,omitempty" yaml:"min_workouts,omitempty"`
	MaxWorkouts       *int            `json:"max_workouts,omitempty" yaml:"max_workouts,omitempty"`
	MinEngagement     *float64        `json:"min_engagement,omitempty" yaml:"min_engagement,omitempty"`
	MaxEngagement     *float64        `json:"max_engagement,omitempty" yaml:"max_engagement,omitempty"`
}

// UnmarshalJSON accepts registration bounds as RFC 3339 timestamps or as plain
// dates. A plain date means midnight UTC.
func (c *Criteria) UnmarshalJSON(data []byte) error {
	type plain Criteria
	var raw struct {
		plain
		RegisteredAfter  *string `json:"registered_after,omitempty"`
		RegisteredBefore *string `json:"registered_before,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	after, err := parseBound("registered_after", raw.RegisteredAfter)
	if err != nil {
		return err
	}
	before, err := parseBound("registered_before", raw.RegisteredBefore)
	if err != nil {
		return err
	}

	*c = Criteria(raw.plain)
	c.RegisteredAfter = after
	c.RegisteredBefore = before
	return nil
}

func parseBound(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, *s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.DateOnly, *s); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("segment criteria %s: %q is neither an RFC 3339 timestamp nor a date", field, *s)
}

// IsEmpty reports whether c has no populated criterion.
func (c Criteria) IsEmpty() bool {
	return c.RegisteredAfter == nil && c.RegisteredBefore == nil &&
		len(c.ActivityLevels) == 0 && len(c.SubscriptionTiers) == 0 &&
		c.MinWorkouts == nil && c.MaxWorkouts == nil &&
		c.MinEngagement == nil && c.MaxEngagement == nil
}

// UserSegment is a named predicate over user attributes.
type UserSegment struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Criteria    Criteria `json:"criteria" yaml:"criteria"`
}

// Matches reports whether attrs satisfies every populated criterion of s.
func Matches(s UserSegment, attrs UserAttributes) bool {
	_, ok := Explain(s, attrs)
	return ok
}

// Explain evaluates s against attrs and returns the name of the first failing
// criterion. The boolean is true when the segment matches.
func Explain(s UserSegment, attrs UserAttributes) (string, bool) {
	c := s.Criteria

	if c.RegisteredAfter != nil || c.RegisteredBefore != nil {
		if attrs.RegisteredAt.IsZero() {
			return "registered_at missing", false
		}
		if c.RegisteredAfter != nil && attrs.RegisteredAt.Before(*c.RegisteredAfter) {
			return "registered_after", false
		}
		if c.RegisteredBefore != nil && attrs.RegisteredAt.After(*c.RegisteredBefore) {
			return "registered_before", false
		}
	}

	if len(c.ActivityLevels) > 0 {
		if attrs.ActivityLevel == "" {
			return "activity_level missing", false
		}
		if !slices.Contains(c.ActivityLevels, attrs.ActivityLevel) {
			return "activity_levels", false
		}
	}

	if len(c.SubscriptionTiers) > 0 {
		if attrs.SubscriptionTier == "" {
			return "subscription_tier missing", false
		}
		if !slices.Contains(c.SubscriptionTiers, attrs.SubscriptionTier) {
			return "subscription_tiers", false
		}
	}

	if c.MinWorkouts != nil || c.MaxWorkouts != nil {
		if attrs.WorkoutCount == nil {
			return "workout_count missing", false
		}
		n := *attrs.WorkoutCount
		if c.MinWorkouts != nil && n < *c.MinWorkouts {
			return "min_workouts", false
		}
		if c.MaxWorkouts != nil && n > *c.MaxWorkouts {
			return "max_workouts", false
		}
	}

	if c.MinEngagement != nil || c.MaxEngagement != nil {
		if attrs.EngagementScore == nil {
			return "engagement_score missing", false
		}
		score := *attrs.EngagementScore
		if c.MinEngagement != nil && score < *c.MinEngagement {
			return "min_engagement", false
		}
		if c.MaxEngagement != nil && score > *c.MaxEngagement {
			return "max_engagement", false
		}
	}

	return "", true
}

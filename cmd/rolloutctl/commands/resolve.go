package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/rolloutkit/pkg/feature"
	"github.com/dmitrymomot/rolloutkit/pkg/segment"
)

func newResolveCommand(app *App) *cobra.Command {
	var (
		user      string
		attrs     attributeFlags
		asJSON    bool
		overrides map[string]bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [flag...]",
		Short: "Resolve feature flags for a user",
		Long: `Resolve feature flags for one user in the target environment. Without
arguments every registered flag is resolved.

Examples:
  rolloutctl resolve --user u-42 --env production
  rolloutctl resolve activity_feed --user u-42 --platform ios --workout-count 12
  rolloutctl resolve activity_feed --user u-42 --override activity_feed=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return fmt.Errorf("--user is required")
			}
			ua, err := attrs.attributes(cmd)
			if err != nil {
				return err
			}
			cfg, _, err := app.loadDocument()
			if err != nil {
				return err
			}

			seed := make(map[feature.Name]bool, len(overrides))
			for name, v := range overrides {
				seed[feature.Name(name)] = v
			}
			e, err := app.newEngine(cfg, nil, feature.WithOverrides(feature.NewMemoryOverrides(seed)))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			env := app.environment()
			var decisions []feature.Decision
			if len(args) == 0 {
				decisions = e.resolver.ResolveAll(ctx, user, env, ua)
			} else {
				for _, name := range args {
					if _, ok := e.resolver.Registry().Lookup(feature.Name(name)); !ok {
						return fmt.Errorf("%w: %s", feature.ErrFlagNotFound, name)
					}
					decisions = append(decisions, e.resolver.Resolve(ctx, feature.Name(name), user, env, ua))
				}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), decisions)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FLAG\tENABLED\tPHASE\tBUCKET\tREASONS")
			for _, d := range decisions {
				bucket := "-"
				if d.Bucket >= 0 {
					bucket = fmt.Sprint(d.Bucket)
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", d.Flag, d.Enabled, orDash(d.PhaseID), bucket, strings.Join(d.Reasons, "; "))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print decisions as JSON")
	cmd.Flags().StringToBoolVar(&overrides, "override", nil, "Force flags for this run (flag=true,other=false)")
	attrs.register(cmd)
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// attributeFlags binds user attribute flags.
type attributeFlags struct {
	activityLevel    string
	subscriptionTier string
	registeredAt     string
	workoutCount     int
	engagementScore  float64
	platform         string
	region           string
	cohort           string
}

func (f *attributeFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.activityLevel, "activity-level", "", "Activity level: sedentary, light, moderate, active, very_active")
	fs.StringVar(&f.subscriptionTier, "tier", "", "Subscription tier")
	fs.StringVar(&f.registeredAt, "registered-at", "", "Registration time (RFC 3339)")
	fs.IntVar(&f.workoutCount, "workout-count", 0, "Completed workouts")
	fs.Float64Var(&f.engagementScore, "engagement-score", 0, "Engagement score")
	fs.StringVar(&f.platform, "platform", "", "Client platform")
	fs.StringVar(&f.region, "region", "", "User region")
	fs.StringVar(&f.cohort, "cohort", "", "Cohort label")
}

func (f *attributeFlags) attributes(cmd *cobra.Command) (segment.UserAttributes, error) {
	ua := segment.UserAttributes{
		ActivityLevel:    segment.ActivityLevel(f.activityLevel),
		SubscriptionTier: f.subscriptionTier,
		Platform:         f.platform,
		Region:           f.region,
		Cohort:           f.cohort,
	}
	if ua.ActivityLevel != "" && !ua.ActivityLevel.Valid() {
		return ua, fmt.Errorf("unknown activity level %q", f.activityLevel)
	}
	if f.registeredAt != "" {
		t, err := time.Parse(time.RFC3339, f.registeredAt)
		if err != nil {
			return ua, fmt.Errorf("invalid --registered-at: %w", err)
		}
		ua.RegisteredAt = t
	}
	// Unset numeric attributes stay unknown.
	if cmd.Flags().Changed("workout-count") {
		if f.workoutCount < 0 {
			return ua, fmt.Errorf("--workout-count must not be negative")
		}
		n := f.workoutCount
		ua.WorkoutCount = &n
	}
	if cmd.Flags().Changed("engagement-score") {
		s := f.engagementScore
		ua.EngagementScore = &s
	}
	return ua, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/rolloutkit/pkg/monitor"
)

func newEvaluateCommand(app *App) *cobra.Command {
	var (
		asJSON bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate <metric=value>...",
		Short: "Evaluate a metric feed against the current phase",
		Long: `Evaluate live metric values against the rollback criteria and success
metrics of the target environment's current phase. When a criterion with
auto rollback trips and settings.auto_rollback is on, the environment is
rolled back and the document is written back unless --dry-run is set.

Example:
  rolloutctl evaluate --env production error_rate=0.07 latency_p95=640`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			live, err := parseMetrics(args)
			if err != nil {
				return err
			}
			cfg, _, err := app.loadDocument()
			if err != nil {
				return err
			}
			e, err := app.newEngine(cfg, nil)
			if err != nil {
				return err
			}

			mon := monitor.New(e.manager, monitor.WithLogger(app.Log))
			res, err := mon.EvaluateRollback(cmd.Context(), app.environment(), live)
			if err != nil {
				return err
			}
			if (res.RolledBack || res.MarkedRolledBack) && !dryRun {
				if err := app.save(e); err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Do not write the document back")
	return cmd
}

// parseMetrics reads metric=value pairs.
func parseMetrics(args []string) (map[string]float64, error) {
	live := make(map[string]float64, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metric %q: expected metric=value", arg)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for metric %q: %w", key, err)
		}
		live[key] = v
	}
	return live, nil
}

func printResult(w io.Writer, res monitor.Result) {
	fmt.Fprintf(w, "environment: %s\nphase: %s\n", res.Environment, orDash(res.PhaseID))
	fmt.Fprintf(w, "rollback warranted: %t\n", res.Decision.ShouldRollback)
	if sev := res.Decision.MaxSeverity(); sev != "" {
		fmt.Fprintf(w, "max severity: %s\n", sev)
	}
	for _, r := range res.Decision.Reasons {
		fmt.Fprintf(w, "  - %s\n", r)
	}
	fmt.Fprintf(w, "success metrics healthy: %t (met %d, missed %d, missing %d)\n",
		res.Success.Healthy, len(res.Success.Met), len(res.Success.Missed), len(res.Success.Missing))
	switch {
	case res.RolledBack:
		fmt.Fprintln(w, "action: rolled back")
	case res.Skipped != "":
		fmt.Fprintf(w, "action: none (%s)\n", res.Skipped)
	}
}

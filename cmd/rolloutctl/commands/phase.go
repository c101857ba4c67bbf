package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/rolloutkit/pkg/phase"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
)

func newAdvanceCommand(app *App) *cobra.Command {
	return newMoveCommand(app, "advance", "Move the environment to the next phase",
		func(m *phase.Manager) func(context.Context, string) error { return m.AdvancePhase })
}

func newRollbackCommand(app *App) *cobra.Command {
	return newMoveCommand(app, "rollback", "Move the environment back to the previous phase",
		func(m *phase.Manager) func(context.Context, string) error { return m.RollbackPhase })
}

// newMoveCommand builds a command that moves the phase pointer of the target
// environment and writes the document back.
func newMoveCommand(app *App, use, short string, op func(*phase.Manager) func(context.Context, string) error) *cobra.Command {
	var (
		reason string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `. Phase statuses are not changed.
The updated document is written back to --config unless --dry-run is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := app.loadDocument()
			if err != nil {
				return err
			}
			e, err := app.newEngine(cfg, nil)
			if err != nil {
				return err
			}

			env := app.environment()
			ctx := phase.WithReason(cmd.Context(), reason)
			if err := op(e.manager)(ctx, env); err != nil {
				return err
			}
			if !dryRun {
				if err := app.save(e); err != nil {
					return err
				}
			}
			st, err := e.manager.Status(env)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), st)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the operation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Do not write the document back")
	return cmd
}

func newSetStatusCommand(app *App) *cobra.Command {
	var (
		reason string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "set-status <phase> <status>",
		Short: "Change the lifecycle status of a phase",
		Long: `Change the status of a phase as seen by the target environment.
Allowed moves: pending -> active, active -> completed, active -> rolled_back,
rolled_back -> active. Setting the current status is a no-op.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.loadDocument()
			if err != nil {
				return err
			}
			e, err := app.newEngine(cfg, nil)
			if err != nil {
				return err
			}

			env := app.environment()
			ctx := phase.WithReason(cmd.Context(), reason)
			if err := e.manager.UpdatePhaseStatus(ctx, args[0], rollout.PhaseStatus(args[1]), env); err != nil {
				return err
			}
			if !dryRun {
				if err := app.save(e); err != nil {
					return err
				}
			}
			st, err := e.manager.Status(env)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), st)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the operation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Do not write the document back")
	return cmd
}

func newStatusCommand(app *App) *cobra.Command {
	var (
		all    bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current phase of environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := app.loadDocument()
			if err != nil {
				return err
			}
			e, err := app.newEngine(cfg, nil)
			if err != nil {
				return err
			}

			names := []string{app.environment()}
			if all {
				names = e.manager.Environments()
			}
			out := make([]phase.EnvironmentStatus, 0, len(names))
			for _, name := range names {
				st, err := e.manager.Status(name)
				if err != nil {
					return fmt.Errorf("%w: %s", err, name)
				}
				out = append(out, st)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return printStatus(cmd.OutOrStdout(), out...)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show every environment")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func printStatus(w io.Writer, list ...phase.EnvironmentStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENVIRONMENT\tENABLED\tPHASE\tINDEX\tSTATUS\tPERCENTAGE\tOVERRIDE")
	for _, st := range list {
		fmt.Fprintf(tw, "%s\t%t\t%s\t%d/%d\t%s\t%d%%\t%t\n",
			st.Name, st.Enabled, st.Phase.ID, st.CurrentPhaseIndex+1, st.PhaseCount,
			st.Phase.Status, st.Phase.Criteria().Percentage, st.Overridden)
	}
	return tw.Flush()
}

package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
)

func newValidateCommand(app *App) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a rollout document",
		Long: `Decode the rollout document, check it against the document schema and run
static validation. Errors make the command fail; warnings are printed and
only fail the command with --strict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg, res, err := rollout.LoadFile(app.Config.ConfigPath)
			printValidation(out, res)
			if err != nil {
				return fmt.Errorf("load %s: %w", app.Config.ConfigPath, err)
			}
			if strict && len(res.Warnings) > 0 {
				return fmt.Errorf("%d warning(s) in strict mode", len(res.Warnings))
			}
			fmt.Fprintf(out, "%s is valid: %d phases, %d environments, %d segments, %d flags\n",
				app.Config.ConfigPath, len(cfg.Phases), len(cfg.Environments), len(cfg.Segments), len(cfg.Flags))
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}

func printValidation(w io.Writer, res rollout.ValidationResult) {
	for _, e := range res.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

func newExportCommand(app *App) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the rollout document in canonical form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := app.loadDocument()
			if err != nil {
				return err
			}
			f := rollout.Format(format)
			if f == "" {
				if f, err = rollout.FormatFromPath(app.Config.ConfigPath); err != nil {
					return err
				}
			}
			return rollout.Encode(cmd.OutOrStdout(), cfg, f)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json or yaml (default: same as the document)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Join(errors.New("failed to encode output"), err)
	}
	return nil
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/rolloutkit/pkg/config"
)

// NewRootCommand builds the rolloutctl command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	var (
		configPath string
		env        string
		logFormat  string
		debug      bool
	)

	root := &cobra.Command{
		Use:   "rolloutctl",
		Short: "Manage progressive feature rollouts",
		Long: `rolloutctl validates rollout documents, resolves feature flags for users,
moves environments between rollout phases and serves the admin API.

Flags override the ROLLOUT_* environment variables.`,
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts := []config.Option{config.WithPrefix("ROLLOUT_")}
			if app.Environ != nil {
				opts = append(opts, config.WithEnvironment(app.Environ))
			}
			if err := config.Load(&app.Config, opts...); err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("config") {
				app.Config.ConfigPath = configPath
			}
			if flags.Changed("env") {
				app.Config.Environment = env
			}
			if flags.Changed("log-format") {
				app.Config.LogFormat = logFormat
			}
			return app.setupLogger(cmd.ErrOrStderr(), debug)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "rollout.yaml", "Rollout document path (.yaml, .yml or .json)")
	root.PersistentFlags().StringVarP(&env, "env", "e", "development", "Target environment")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newValidateCommand(app),
		newExportCommand(app),
		newResolveCommand(app),
		newAdvanceCommand(app),
		newRollbackCommand(app),
		newStatusCommand(app),
		newSetStatusCommand(app),
		newEvaluateCommand(app),
		newServeCommand(app),
	)
	return root
}

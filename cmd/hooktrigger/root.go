package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hooktrigger/internal"
)

// cliState is shared by every subcommand.
type cliState struct {
	configPath string
	logLevel   string
	cfg        internal.Config
}

func newRootCmd() *cobra.Command {
	state := &cliState{}
	root := &cobra.Command{
		Use:   "hooktrigger",
		Short: "Webhook trigger matching for CI pipelines",
		Long:  "hooktrigger evaluates GitHub, GitLab and Bitbucket webhooks against pipeline trigger configurations.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadConfig(state.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			state.cfg = cfg
			level := state.logLevel
			if level == "" {
				level = cfg.Server.LogLevel
			}
			internal.SetLogLevel(level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&state.configPath, "config", "config.yaml", "config file (.yaml or .toml)")
	root.PersistentFlags().StringVar(&state.logLevel, "log-level", "", "log level (default: server.log_level)")

	root.AddCommand(newServeCmd(state), newMatchCmd(state), newWorkerCmd(state))
	return root
}

package main

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/agent-dashboard/internal/config"
)

type rootOptions struct {
	debug      bool
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "agent-dashboard",
		Short:         "Live view of agent sessions and the org tree",
		Long:          "agent-dashboard watches agent session stores, derives what every session is doing, merges the live sessions into a declared org hierarchy and serves the result over HTTP with a live event stream.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd.ErrOrStderr(), opts.debug)
			config.SetSettingsPath(opts.configPath)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Settings file (default: ~/.agent-dashboard/settings.json)")

	rootCmd.AddCommand(
		newServeCmd(),
		newSessionsCmd(),
		newOrgCmd(),
		newDismissCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func setupLogging(out io.Writer, debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, NoColor: true})
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	return cfg
}

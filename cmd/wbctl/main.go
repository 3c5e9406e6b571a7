package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/wbctl/cmd/wbctl/commands"
	"github.com/systmms/wbctl/internal/config"
	wberrors "github.com/systmms/wbctl/internal/errors"
	"github.com/systmms/wbctl/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", wberrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "wbctl",
		Short: "Wikibase login and manifest management for the data-import backend",
		Long: `wbctl logs you in to a Wikibase through the data-import backend and
manages the registry of wikibase manifests the backend edits against.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Explicit = cmd.Flags().Changed("config")
			cfg.Logger = logging.New(debug, noColor)
			cfg.NonInteractive = nonInteractive
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "wbctl.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Never show dialogs or open a browser")

	rootCmd.AddCommand(
		commands.NewLoginCommand(cfg),
		commands.NewAccountCommand(cfg),
		commands.NewLogoutCommand(cfg),
		commands.NewStatusCommand(cfg),
		commands.NewWikibaseCommand(cfg),
		commands.NewCompletionCommand(cfg),
	)

	return rootCmd.Execute()
}

// Package commands implements the majoorindex CLI's subcommands,
// grounded on marmos91-dittofs/cmd/dittofs/commands/root.go's cobra
// root-command-plus-persistent-config-flag shape.
package commands

import (
	"github.com/spf13/cobra"
)

// Version information injected at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "majoorindex",
	Short: "Asset indexing and browsing backend for generated media output directories",
	Long: `majoorindex indexes a generation pipeline's output directory (plus an
optional input directory and any number of user-registered custom
directories) into a local embedded store, and serves a filtered,
paginated listing/search HTTP API over the result.

Use "majoorindex [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: compiled-in defaults + environment)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(versionCmd)
}

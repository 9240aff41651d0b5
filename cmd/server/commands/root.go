package commands

import (
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Bonaire Rental Hub server",
	Long: `Serves the rental directory API and imports listing files
into the directory, pausing on duplicate names for an operator decision.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load before reading the environment (default: .env when present)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

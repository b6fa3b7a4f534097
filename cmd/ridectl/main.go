// Command ridectl is the offline companion to cyclebridge: it classifies
// recorded ride logs, stores the outcomes, and drives simulator replays
// weighted by the ride history.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var dbFlag string

var rootCmd = &cobra.Command{
	Use:          "ridectl",
	Short:        "Analyze recorded rides and drive simulator replays",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "rides.db", "ride database path")
	rootCmd.AddCommand(analyzeCmd, replayCmd, cleanupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

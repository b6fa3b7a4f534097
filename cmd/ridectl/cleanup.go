package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gvance/cyclebridge/internal/sim"
)

var cleanupSimFlag string

func init() {
	cleanupCmd.Flags().StringVar(&cleanupSimFlag, "sim", "ws://127.0.0.1:2000/sim", "simulator websocket URL")
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Destroy all vehicles left in the simulator",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	bridge, err := sim.Dial(cleanupSimFlag)
	if err != nil {
		return err
	}
	defer bridge.Close()

	if err := bridge.DestroyVehicles(); err != nil {
		return err
	}
	fmt.Println("destroyed all vehicles")
	return nil
}

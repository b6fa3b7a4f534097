package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/gvance/cyclebridge/internal/rides"
	"github.com/gvance/cyclebridge/internal/sim"
)

var (
	replaySimFlag string
	leftLogFlag   string
	rightLogFlag  string
)

func init() {
	replayCmd.Flags().StringVar(&replaySimFlag, "sim", "ws://127.0.0.1:2000/sim", "simulator websocket URL")
	replayCmd.Flags().StringVar(&leftLogFlag, "left-log", "left_recording.log", "recording replayed for a left pass")
	replayCmd.Flags().StringVar(&rightLogFlag, "right-log", "right_recording.log", "recording replayed for a right pass")
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recording chosen by the stored left/right distribution",
	Long: `replay draws a passing side at random, weighted by the proportions of
left and right outcomes in the ride database, and asks the simulator to
replay the matching recording.`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	store, err := rides.Open(dbFlag)
	if err != nil {
		return err
	}
	defer store.Close()

	all, err := store.All()
	if err != nil {
		return err
	}
	var turning int
	for _, r := range all {
		if r.Outcome == rides.OutcomeLeft || r.Outcome == rides.OutcomeRight {
			turning++
		}
	}
	if turning == 0 {
		return fmt.Errorf("no left or right rides recorded; nothing to replay")
	}

	left, right, err := store.Proportions()
	if err != nil {
		return err
	}
	fmt.Printf("distribution: left %.2f, right %.2f (%d rides)\n", left, right, turning)

	direction := pickDirection(left, rand.Float64())
	file := rightLogFlag
	if direction == rides.OutcomeLeft {
		file = leftLogFlag
	}
	fmt.Printf("replaying %s pass: %s\n", direction, file)

	bridge, err := sim.Dial(replaySimFlag)
	if err != nil {
		return err
	}
	defer bridge.Close()

	if err := bridge.Replay(file); err != nil {
		return err
	}
	// Put the spectator camera on the bike for the replay.
	return bridge.SwitchView("bike")
}

// pickDirection maps a uniform draw in [0,1) to a side given the left
// proportion. Proportions from the store are already normalized.
func pickDirection(leftProb, draw float64) string {
	if draw < leftProb {
		return rides.OutcomeLeft
	}
	return rides.OutcomeRight
}

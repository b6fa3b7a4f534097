package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gvance/cyclebridge/internal/analysis"
	"github.com/gvance/cyclebridge/internal/rides"
)

var (
	car1XFlag     float64
	decisionYFlag float64
	noRecordFlag  bool
)

func init() {
	analyzeCmd.Flags().Float64Var(&car1XFlag, "car1-x", analysis.DefaultCar1X, "X coordinate of the first parked car")
	analyzeCmd.Flags().Float64Var(&decisionYFlag, "decision-y", analysis.DefaultDecisionY, "Y threshold where the passing side is decided")
	analyzeCmd.Flags().BoolVar(&noRecordFlag, "no-record", false, "print the report without storing it")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <ride-log.csv>",
	Short: "Classify a ride log and store the outcome",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]

	samples, err := analysis.Load(path)
	if err != nil {
		return err
	}

	report, err := analysis.Analyze(samples, car1XFlag, decisionYFlag)
	if err != nil {
		return err
	}

	fmt.Printf("outcome:       %s\n", report.Outcome)
	fmt.Printf("final x:       %.2f\n", report.FinalX)
	fmt.Printf("duration:      %.2f s\n", report.DurationS)
	fmt.Printf("mean speed:    %.2f km/h\n", report.MeanSpeed)
	fmt.Printf("max speed:     %.2f km/h\n", report.MaxSpeed)
	fmt.Printf("car 1 dist:    mean %.2f m, min %.2f m\n", report.MeanDistRef1, report.MinDistRef1)
	fmt.Printf("car 2 dist:    mean %.2f m, min %.2f m\n", report.MeanDistRef2, report.MinDistRef2)

	if noRecordFlag {
		return nil
	}

	store, err := rides.Open(dbFlag)
	if err != nil {
		return err
	}
	defer store.Close()

	ride, err := store.Record(rides.Ride{
		SourceCSV: path,
		Outcome:   report.Outcome,
		DecisionY: decisionYFlag,
		FinalX:    report.FinalX,
		DurationS: report.DurationS,
		MeanSpeed: report.MeanSpeed,
		MaxSpeed:  report.MaxSpeed,
	})
	if err != nil {
		return err
	}

	fmt.Printf("recorded ride %s\n", ride.ID)
	return nil
}

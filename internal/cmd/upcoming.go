package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func NewUpcomingCmd(app *TransitCtlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upcoming <tripId> <currentStopSequence> [count]",
		Short: "Show the next stops of a trip with realtime predictions",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sequence, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("currentStopSequence: %w", err)
			}
			count := 5
			if len(args) == 3 {
				if count, err = strconv.Atoi(args[2]); err != nil {
					return fmt.Errorf("count: %w", err)
				}
			}

			stops, err := app.Client().UpcomingStops(cmd.Context(), args[0], sequence, count)
			if err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout())
			fmt.Fprintln(table, "SEQ\tSTOP\tNAME\tSCHEDULED\tPREDICTED")
			for _, stop := range stops {
				predicted := ""
				if stop.PredictedArrival != 0 {
					predicted = time.Unix(stop.PredictedArrival, 0).Format("15:04:05")
				}
				fmt.Fprintf(table, "%d\t%s\t%s\t%s\t%s\n", stop.StopSequence, stop.StopID, stop.StopName, stop.ArrivalTime, predicted)
			}
			return table.Flush()
		},
	}

	return cmd
}

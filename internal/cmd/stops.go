package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewStopsCmd(app *TransitCtlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stops",
		Short: "List the stops of the network map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			network, err := app.Client().NetworkMap(cmd.Context())
			if err != nil {
				return err
			}
			stops, err := network.Stops()
			if err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout())
			fmt.Fprintln(table, "ID\tNAME\tLAT\tLON")
			for _, stop := range stops {
				fmt.Fprintf(table, "%s\t%s\t%.6f\t%.6f\n", stop.StopID, stop.Name, stop.Latitude, stop.Longitude)
			}
			return table.Flush()
		},
	}

	return cmd
}

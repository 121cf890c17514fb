package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tarediiran-industries.com/transit-map/internal/mapclient"
)

func NewVehiclesCmd(app *TransitCtlApp) *cobra.Command {
	var line string

	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "List the vehicles of the newest realtime feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			vehicles, err := app.Client().VehiclePositions(ctx)
			if err != nil {
				return err
			}
			routes, err := app.Client().RouteInfo(ctx)
			if err != nil {
				return err
			}
			colors := mapclient.NewRouteTable(routes)

			table := newTable(cmd.OutOrStdout())
			fmt.Fprintln(table, "VEHICLE\tLINE\tTRIP\tSEQ\tLAT\tLON\tCOLOR\tSEEN")
			for _, vehicle := range vehicles {
				if line != "" && vehicle.Line != line {
					continue
				}
				fmt.Fprintf(table, "%s\t%s\t%s\t%d\t%.5f\t%.5f\t%s\t%s\n",
					vehicle.VehicleID, vehicle.Line, vehicle.TripID, vehicle.CurrentStopSequence,
					vehicle.Latitude, vehicle.Longitude, colors.Color(vehicle.Line),
					time.Unix(vehicle.Timestamp, 0).Format("15:04:05"))
			}
			return table.Flush()
		},
	}

	cmd.Flags().StringVar(&line, "line", "", "Only show vehicles on this route")
	return cmd
}

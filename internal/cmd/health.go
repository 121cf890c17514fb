package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewHealthCmd(app *TransitCtlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Inspect health of the transit map server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := app.Client().Health(cmd.Context())
			out := cmd.OutOrStdout()
			if health.Status != "" {
				fmt.Fprintf(out, "status: %s\n", health.Status)
				if health.LatestVehicleTimestamp != 0 {
					fmt.Fprintf(out, "latest vehicle feed: %s\n", time.Unix(health.LatestVehicleTimestamp, 0).Format(time.RFC3339))
				}
			}
			return err
		},
	}

	return cmd
}

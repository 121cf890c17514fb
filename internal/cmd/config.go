package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewConfigCmd(app *TransitCtlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the map configuration served to clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Client().Config(cmd.Context())
			if err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout())
			fmt.Fprintf(table, "initial latitude\t%g\n", cfg.InitialLatitude)
			fmt.Fprintf(table, "initial longitude\t%g\n", cfg.InitialLongitude)
			fmt.Fprintf(table, "initial zoom\t%d\n", cfg.InitialZoom)
			fmt.Fprintf(table, "max zoom\t%d\n", cfg.MaxZoom)
			fmt.Fprintf(table, "upcoming stops\t%d\n", cfg.UpcomingStopsToShow)
			return table.Flush()
		},
	}

	return cmd
}

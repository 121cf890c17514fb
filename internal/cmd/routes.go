package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRoutesCmd(app *TransitCtlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List routes and their map colours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			routes, err := app.Client().RouteInfo(cmd.Context())
			if err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout())
			fmt.Fprintln(table, "ID\tSHORT\tNAME\tCOLOR\tTEXT")
			for _, route := range routes {
				fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\n", route.ID, route.ShortName, route.LongName, route.Color, route.TextColor)
			}
			return table.Flush()
		},
	}

	return cmd
}

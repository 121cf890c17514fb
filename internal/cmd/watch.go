package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tarediiran-industries.com/transit-map/internal/mapclient"
)

func NewWatchCmd(app *TransitCtlApp) *cobra.Command {
	var interval, duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the map refresh loop headless and print marker counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			liveMap := mapclient.NewMap(app.Client(), interval)
			defer liveMap.Close()
			if err := liveMap.Init(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "stops: %d\n", liveMap.Stops.Len())

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			last := int64(-1)
			for {
				if generation := liveMap.Vehicles.Generation(); generation != last {
					last = generation
					fmt.Fprintf(out, "%s poll %d: %d vehicles\n", time.Now().Format("15:04:05"), generation, liveMap.Vehicles.Len())
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", mapclient.DefaultRefreshPeriod, "Refresh period")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

package cmd

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	resty "gopkg.in/resty.v1"
)

func NewFeedDumpCmd(app *TransitCtlApp) *cobra.Command {
	var headers []string
	var summary bool

	cmd := &cobra.Command{
		Use:   "feed-dump <url>",
		Short: "Fetch a GTFS-RT feed and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := resty.New().SetTimeout(app.Timeout).R().SetContext(cmd.Context())
			for _, header := range headers {
				name, value, ok := strings.Cut(header, "=")
				if !ok || name == "" {
					return fmt.Errorf("header %q is not name=value", header)
				}
				request.SetHeader(name, value)
			}

			resp, err := request.Get(args[0])
			if err != nil {
				return err
			}
			if resp.StatusCode() != http.StatusOK {
				return fmt.Errorf("GET %s: HTTP %d", args[0], resp.StatusCode())
			}

			feed := &gtfs.FeedMessage{}
			if err := proto.Unmarshal(resp.Body(), feed); err != nil {
				return fmt.Errorf("decode: %w", err)
			}

			out := cmd.OutOrStdout()
			if summary {
				return printFeedSummary(cmd, feed)
			}

			options := protojson.MarshalOptions{Multiline: true}
			jsonBytes, err := options.Marshal(feed)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(jsonBytes))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Request header as name=value (repeatable)")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print entity counts instead of the feed")
	return cmd
}

func printFeedSummary(cmd *cobra.Command, feed *gtfs.FeedMessage) error {
	var vehicles, tripUpdates, alerts, deleted int
	for _, entity := range feed.GetEntity() {
		switch {
		case entity.GetIsDeleted():
			deleted++
		case entity.GetVehicle() != nil:
			vehicles++
		case entity.GetTripUpdate() != nil:
			tripUpdates++
		case entity.GetAlert() != nil:
			alerts++
		}
	}

	table := newTable(cmd.OutOrStdout())
	fmt.Fprintf(table, "timestamp\t%d\n", feed.GetHeader().GetTimestamp())
	fmt.Fprintf(table, "entities\t%d\n", len(feed.GetEntity()))
	fmt.Fprintf(table, "vehicles\t%d\n", vehicles)
	fmt.Fprintf(table, "trip updates\t%d\n", tripUpdates)
	fmt.Fprintf(table, "alerts\t%d\n", alerts)
	fmt.Fprintf(table, "deleted\t%d\n", deleted)
	return table.Flush()
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/config"
	"tarediiran-industries.com/transit-map/internal/mapclient"
)

const DefaultServer = "http://localhost:8080"

// ConfigFile is the optional -toml file of transit-ctl.
type ConfigFile struct {
	Server  string `toml:"server" yaml:"server" validate:"omitempty,url"`
	Timeout string `toml:"timeout" yaml:"timeout"`
}

type TransitCtlApp struct {
	ConfigPath string
	ServerURL  string
	Timeout    time.Duration
	Verbosity  int

	client *mapclient.Client
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &TransitCtlApp{}
	rootCmd := NewRootCmd(app)
	return rootCmd.ExecuteContext(ctx)
}

func NewRootCmd(app *TransitCtlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "transit-ctl",
		Short:         "CLI tool used to inspect a running transit map server and GTFS-RT feeds",
		Version:       fmt.Sprintf("%s (%s)", common.Version, common.GitCommit),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			common.InitLogging(app.Verbosity)
			return app.loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "toml", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&app.ServerURL, "server", DefaultServer, "Base URL of transit-web")
	cmd.PersistentFlags().DurationVar(&app.Timeout, "timeout", 10*time.Second, "Request timeout")
	cmd.PersistentFlags().IntVarP(&app.Verbosity, "verbose", "v", 0, "Log verbosity")

	cmd.AddCommand(NewConfigCmd(app))
	cmd.AddCommand(NewRoutesCmd(app))
	cmd.AddCommand(NewStopsCmd(app))
	cmd.AddCommand(NewVehiclesCmd(app))
	cmd.AddCommand(NewUpcomingCmd(app))
	cmd.AddCommand(NewHealthCmd(app))
	cmd.AddCommand(NewWatchCmd(app))
	cmd.AddCommand(NewFeedDumpCmd(app))

	return cmd
}

// loadConfig applies the config file to flags the user left unset.
func (app *TransitCtlApp) loadConfig(cmd *cobra.Command) error {
	if app.ConfigPath == "" {
		return nil
	}

	var file ConfigFile
	if err := config.LoadFile(app.ConfigPath, &file); err != nil {
		return err
	}

	flags := cmd.Flags()
	if file.Server != "" && !flags.Changed("server") {
		app.ServerURL = file.Server
	}
	if file.Timeout != "" && !flags.Changed("timeout") {
		timeout, err := time.ParseDuration(file.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		app.Timeout = timeout
	}
	return nil
}

func (app *TransitCtlApp) Client() *mapclient.Client {
	if app.client == nil {
		app.client = mapclient.NewClient(app.ServerURL, app.Timeout)
	}
	return app.client
}

func newTable(out io.Writer) *tabwriter.Writer {
	if out == nil {
		out = os.Stdout
	}
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

package transit_web

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/store"
)

func Run(cfg Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseConnection)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	defer db.Close()

	telemetry := common.NewTelemetryServer(cfg.TelemetryAddress)
	if err := telemetry.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	defer telemetry.Stop()

	server, err := NewTransitWebServer(cfg, db, common.NewMetrics(telemetry.GetRegistry()))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	if err := server.Serve(ctx); err != nil {
		glog.Errorf("shutdown: %v", err)
		return 1
	}
	return 0
}

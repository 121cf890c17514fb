package gtfs_rt

import (
	"context"
	"errors"
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

	watcher := NewGtfsRtWatcher(cfg, db, common.NewMetrics(telemetry.GetRegistry()))
	glog.Infof("watching %d feeds for agency %s every %s", len(cfg.Feeds), cfg.AgencyID, cfg.Interval)

	if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		glog.Errorf("watch: %v", err)
		return 1
	}
	glog.Info("finished")
	return 0
}

package gtfs_static

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/config"
	"tarediiran-industries.com/transit-map/internal/store"
)

// ResolveAgencyID picks the id the feed is stored under.
func ResolveAgencyID(requested string, feed store.StaticFeed) (string, error) {
	if requested != "" {
		return requested, nil
	}
	if len(feed.Agencies) > 0 && feed.Agencies[0].AgencyID != "" {
		return feed.Agencies[0].AgencyID, nil
	}
	return "", fmt.Errorf("agency.txt has no agency_id; pass -agency")
}

// LoadNetwork reads a GeoJSON network file, or builds one from the feed's
// stops when path is empty.
func LoadNetwork(path string, feed store.StaticFeed) (store.Network, error) {
	if path == "" {
		return store.NetworkFromStops(feed.Stops)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := store.ValidateNetwork(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return store.Network(data), nil
}

func LoadMapConfig(path, agencyID string) (store.MapConfig, error) {
	var mapConfig store.MapConfig
	if err := config.LoadFile(path, &mapConfig); err != nil {
		return store.MapConfig{}, err
	}
	mapConfig.AgencyID = agencyID
	return mapConfig, nil
}

func Run(cfg Config, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	benchmarker := common.NewBenchmarker("gtfs-ingest")
	defer benchmarker.Close()

	if cfg.SchemaOnly() {
		db, err := store.Open(ctx, cfg.DatabaseConnection)
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Fprintln(out, "Tables created.")
		return nil
	}

	zipPath := cfg.ZipPath
	if cfg.Url != "" {
		var err error
		zipPath, err = DownloadToTempFile(ctx, cfg.Url)
		if err != nil {
			return err
		}
		defer os.Remove(zipPath)
	}

	dir, err := UnzipToTempDir(zipPath)
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	feed, err := LoadGtfsFromDirectory(dir)
	if err != nil {
		return err
	}

	agencyID, err := ResolveAgencyID(cfg.AgencyID, feed)
	if err != nil {
		return err
	}

	network, err := LoadNetwork(cfg.NetworkPath, feed)
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}

	var mapConfig *store.MapConfig
	if cfg.MapConfigPath != "" {
		loaded, err := LoadMapConfig(cfg.MapConfigPath, agencyID)
		if err != nil {
			return fmt.Errorf("map config: %w", err)
		}
		mapConfig = &loaded
	}

	if cfg.DryRun {
		PrintSummary(out, agencyID, feed, network)
		return nil
	}

	db, err := store.Open(ctx, cfg.DatabaseConnection)
	if err != nil {
		return err
	}
	defer db.Close()

	return Ingest(ctx, db, agencyID, feed, network, mapConfig, out)
}

// Ingest writes a parsed feed and its companions to the store.
func Ingest(ctx context.Context, db *store.SQLStore, agencyID string, feed store.StaticFeed, network store.Network, mapConfig *store.MapConfig, out io.Writer) error {
	if err := db.ReplaceStatic(ctx, agencyID, feed); err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	if err := db.PutNetwork(ctx, agencyID, network); err != nil {
		return fmt.Errorf("load network: %w", err)
	}
	if mapConfig != nil {
		if err := db.PutMapConfig(ctx, *mapConfig); err != nil {
			return fmt.Errorf("load map config: %w", err)
		}
	}

	glog.Infof("ingested agency %s", agencyID)
	PrintSummary(out, agencyID, feed, network)
	return nil
}

func PrintSummary(out io.Writer, agencyID string, feed store.StaticFeed, network store.Network) {
	fmt.Fprintf(out, "agency:     %s\n", agencyID)
	fmt.Fprintf(out, "agencies:   %d\n", len(feed.Agencies))
	fmt.Fprintf(out, "routes:     %d\n", len(feed.Routes))
	fmt.Fprintf(out, "stops:      %d\n", len(feed.Stops))
	fmt.Fprintf(out, "trips:      %d\n", len(feed.Trips))
	fmt.Fprintf(out, "stop_times: %d\n", len(feed.StopTimes))
	fmt.Fprintf(out, "network:    %d bytes\n", len(network))
}

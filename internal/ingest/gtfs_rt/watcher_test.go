package gtfs_rt

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/config"
	"tarediiran-industries.com/transit-map/internal/store"
)

func vehicleFeed(timestamp uint64) *gtfs.FeedMessage {
	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(timestamp),
		},
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("e1"),
				Vehicle: &gtfs.VehiclePosition{
					Trip:                &gtfs.TripDescriptor{TripId: proto.String("T1"), RouteId: proto.String("RED")},
					Vehicle:             &gtfs.VehicleDescriptor{Id: proto.String("v1"), Label: proto.String("1001"), LicensePlate: proto.String("ABC123")},
					Position:            &gtfs.Position{Latitude: proto.Float32(38.5), Longitude: proto.Float32(-77.25)},
					CurrentStopSequence: proto.Uint32(4),
					StopId:              proto.String("A04"),
					Timestamp:           proto.Uint64(timestamp - 5),
				},
			},
			{
				Id:        proto.String("e2"),
				IsDeleted: proto.Bool(true),
				Vehicle: &gtfs.VehiclePosition{
					Trip: &gtfs.TripDescriptor{TripId: proto.String("T2")},
				},
			},
			{
				Id:         proto.String("e3"),
				TripUpdate: &gtfs.TripUpdate{Trip: &gtfs.TripDescriptor{TripId: proto.String("T3")}},
			},
		},
	}
}

func tripUpdateFeed(timestamp uint64) *gtfs.FeedMessage {
	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(timestamp),
		},
		Entity: []*gtfs.FeedEntity{{
			Id: proto.String("tu1"),
			TripUpdate: &gtfs.TripUpdate{
				Trip:    &gtfs.TripDescriptor{TripId: proto.String("T1"), RouteId: proto.String("RED"), DirectionId: proto.Uint32(1)},
				Vehicle: &gtfs.VehicleDescriptor{Id: proto.String("v1")},
				StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{
					{StopSequence: proto.Uint32(5), StopId: proto.String("A05"), Arrival: &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(1000)}},
					{StopSequence: proto.Uint32(6), StopId: proto.String("A06"), Departure: &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(2000)}},
				},
			},
		}},
	}
}

func openSink(t *testing.T) *store.SQLStore {
	t.Helper()
	db, err := store.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "rt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestWatcher(t *testing.T, sink Sink, feeds ...FeedConfig) (*GtfsRtWatcher, *common.Metrics) {
	t.Helper()
	metrics := common.NewMetrics(prometheus.NewRegistry())
	watcher := NewGtfsRtWatcher(Config{Feeds: feeds, AgencyID: "wmata", Interval: time.Second}, sink, metrics)
	watcher.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	return watcher, metrics
}

// feedServer serves whatever message is current.
type feedServer struct {
	*httptest.Server
	message  atomic.Pointer[gtfs.FeedMessage]
	failures atomic.Int32
	requests atomic.Int32
}

func newFeedServer(t *testing.T, apiKey string) *feedServer {
	t.Helper()
	server := &feedServer{}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.requests.Add(1)
		if apiKey != "" && r.Header.Get("x-api-key") != apiKey {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if server.failures.Load() > 0 {
			server.failures.Add(-1)
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		body, err := proto.Marshal(server.message.Load())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVehiclePositionsFromFeed(t *testing.T) {
	positions := VehiclePositionsFromFeed(vehicleFeed(100), 100)
	require.Len(t, positions, 1)
	assert.Equal(t, store.VehiclePosition{
		ID:                  "e1-95",
		FeedTimestamp:       100,
		VehicleTimestamp:    95,
		TripID:              "T1",
		RouteID:             "RED",
		VehicleID:           "v1",
		VehicleLabel:        "1001",
		LicensePlate:        "ABC123",
		Latitude:            38.5,
		Longitude:           -77.25,
		CurrentStopSequence: 4,
		StopID:              "A04",
	}, positions[0])
}

func TestTripUpdatesFromFeed(t *testing.T) {
	updates, stopTimes := TripUpdatesFromFeed(tripUpdateFeed(300), 300)
	require.Len(t, updates, 1)
	assert.Equal(t, "tu1-300", updates[0].ID)
	assert.Equal(t, 1, updates[0].DirectionID)
	assert.Equal(t, "v1", updates[0].VehicleID)

	require.Len(t, stopTimes, 2)
	assert.Equal(t, int64(1000), stopTimes[0].ArrivalTime)
	assert.Zero(t, stopTimes[0].DepartureTime)
	assert.Equal(t, int64(2000), stopTimes[1].DepartureTime)
	assert.Equal(t, "tu1-300", stopTimes[1].TripUpdateID)
}

func TestWatcherSkipsStaleMessages(t *testing.T) {
	sink := openSink(t)
	server := newFeedServer(t, "secret")
	server.message.Store(vehicleFeed(100))

	feed := FeedConfig{Name: "vp", Kind: store.FeedVehiclePositions, Url: server.URL, HeaderName: "x-api-key", HeaderValue: "secret"}
	watcher, metrics := newTestWatcher(t, sink, feed)
	ctx := context.Background()

	require.NoError(t, watcher.SampleEndpoints(ctx))
	require.NoError(t, watcher.SampleEndpoints(ctx))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EntitiesStoredTotal.WithLabelValues("vp")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FeedsSkippedTotal.WithLabelValues("vp")))

	server.message.Store(vehicleFeed(160))
	require.NoError(t, watcher.SampleEndpoints(ctx))

	positions, err := sink.LatestVehiclePositions(ctx, "wmata")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "e1-155", positions[0].ID)

	// A restarted watcher picks up the stored timestamp.
	restarted, _ := newTestWatcher(t, sink, feed)
	result, err := restarted.IngestFeedMessage(ctx, feed, vehicleFeed(160))
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestWatcherRetriesServerErrors(t *testing.T) {
	sink := openSink(t)
	server := newFeedServer(t, "")
	server.message.Store(tripUpdateFeed(300))
	server.failures.Store(2)

	feed := FeedConfig{Kind: store.FeedTripUpdates, Url: server.URL}
	watcher, metrics := newTestWatcher(t, sink, feed)

	require.NoError(t, watcher.SampleEndpoints(context.Background()))
	assert.Equal(t, int32(3), server.requests.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.HttpErrorsTotal.WithLabelValues("trip_updates")))

	latest, err := sink.LatestFeedTimestamp(context.Background(), "wmata", store.FeedTripUpdates)
	require.NoError(t, err)
	assert.Equal(t, int64(300), latest)
}

func TestWatcherDoesNotRetryClientErrors(t *testing.T) {
	server := newFeedServer(t, "secret")
	server.message.Store(vehicleFeed(100))

	feed := FeedConfig{Kind: store.FeedVehiclePositions, Url: server.URL}
	watcher, _ := newTestWatcher(t, openSink(t), feed)

	err := watcher.SampleEndpoints(context.Background())
	assert.ErrorContains(t, err, "HTTP 403")
	assert.Equal(t, int32(1), server.requests.Load())
}

func TestWatcherReportsDecodeErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xff, 0xff, 0xff})
	}))
	defer server.Close()

	watcher, _ := newTestWatcher(t, openSink(t), FeedConfig{Kind: store.FeedVehiclePositions, Url: server.URL})
	assert.ErrorContains(t, watcher.SampleEndpoints(context.Background()), "decode")
}

func TestWatcherPrunesOldRows(t *testing.T) {
	sink := openSink(t)
	ctx := context.Background()
	_, err := sink.InsertVehiclePositions(ctx, "wmata", []store.VehiclePosition{{ID: "old", FeedTimestamp: 10}})
	require.NoError(t, err)

	server := newFeedServer(t, "")
	server.message.Store(vehicleFeed(1000))
	watcher, _ := newTestWatcher(t, sink, FeedConfig{Kind: store.FeedVehiclePositions, Url: server.URL})
	watcher.Retention = time.Minute
	watcher.now = func() time.Time { return time.Unix(1000, 0) }

	require.NoError(t, watcher.SampleEndpoints(ctx))

	deleted, err := sink.PruneBefore(ctx, "wmata", store.FeedVehiclePositions, 11)
	require.NoError(t, err)
	assert.Zero(t, deleted, "the old row was already pruned")
}

func TestWatchStopsOnCancel(t *testing.T) {
	server := newFeedServer(t, "")
	server.message.Store(vehicleFeed(100))
	watcher, _ := newTestWatcher(t, openSink(t), FeedConfig{Kind: store.FeedVehiclePositions, Url: server.URL})
	watcher.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Watch(ctx) }()

	assert.Eventually(t, func() bool { return server.requests.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestParseArgs(t *testing.T) {
	t.Setenv(config.DatabaseEnv, "")
	t.Setenv("WMATA_KEY", "k123")

	path := filepath.Join(t.TempDir(), "rt.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
database = "sqlite://rt.db"
agency_id = "wmata"
interval = "30s"
retention = "2h"

[[feeds]]
name = "wmata-vp"
kind = "vehicle_positions"
url = "https://api.example.org/gtfs/vp"
header_name = "api_key"
header_value_env = "WMATA_KEY"
`), 0o644))

	cfg, err := ParseArgs("gtfs-rt-ingest", []string{"-toml", path, "-trip-updates", "https://api.example.org/gtfs/tu"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.Len(t, cfg.Feeds, 2)
	assert.Equal(t, store.FeedTripUpdates, cfg.Feeds[0].Kind)
	assert.Equal(t, "k123", cfg.Feeds[1].HeaderValue)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 2*time.Hour, cfg.Retention)

	_, err = ParseArgs("gtfs-rt-ingest", []string{"-database", "sqlite://x.db", "-agency", "a"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "feed")

	cfg, err = ParseArgs("gtfs-rt-ingest", []string{"-database", "sqlite://x.db", "-agency", "a", "-vehicle-positions", "http://x"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, cfg.Interval)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("feeds:\n  - kind: alerts\n    url: https://x.example.org\n"), 0o644))
	_, err = ParseArgs("gtfs-rt-ingest", []string{"-config", bad}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestSeveralVehicleFeedsStayVisible(t *testing.T) {
	bus := newFeedServer(t, "")
	bus.message.Store(vehicleFeed(100))
	rail := newFeedServer(t, "")
	rail.message.Store(vehicleFeed(101))

	cfg, err := ParseArgs("gtfs-rt-ingest", []string{
		"-database", "sqlite://x.db", "-agency", "wmata",
		"-vehicle-positions", bus.URL, "-vehicle-positions", rail.URL, "-trip-updates", "http://tu.example.org",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	require.Len(t, cfg.Feeds, 3)
	assert.Equal(t, "vehicle_positions-1", cfg.Feeds[0].Label())
	assert.Equal(t, "vehicle_positions-2", cfg.Feeds[1].Label())
	assert.Equal(t, "trip_updates", cfg.Feeds[2].Label())

	sink := openSink(t)
	watcher, _ := newTestWatcher(t, sink, cfg.Feeds[:2]...)
	require.NoError(t, watcher.SampleEndpoints(context.Background()))

	positions, err := sink.LatestVehiclePositions(context.Background(), "wmata")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "vehicle_positions-1", positions[0].Feed)
	assert.Equal(t, int64(100), positions[0].FeedTimestamp)
	assert.Equal(t, "vehicle_positions-2", positions[1].Feed)
	assert.Equal(t, int64(101), positions[1].FeedTimestamp)
}

func TestValidateRejectsRepeatedFeedNames(t *testing.T) {
	cfg := Config{
		Feeds: []FeedConfig{
			{Name: "vp", Kind: store.FeedVehiclePositions, Url: "http://a.example.org"},
			{Name: "vp", Kind: store.FeedVehiclePositions, Url: "http://b.example.org"},
		},
		DatabaseConnection: "sqlite://x.db",
		AgencyID:           "wmata",
		Interval:           time.Second,
	}
	assert.ErrorContains(t, cfg.Validate(), "label used by another feed")
}

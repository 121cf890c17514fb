package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "transit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleFeed() StaticFeed {
	return StaticFeed{
		Agencies: []Agency{{AgencyID: "1", Name: "WMATA", Timezone: "America/New_York"}},
		Routes: []Route{
			{RouteID: "RED", ShortName: "RD", LongName: "Red", Color: "BF1238", TextColor: "FFFFFF"},
			{RouteID: "BLUE", ShortName: "BL", LongName: "Blue", Color: "0076A8"},
		},
		Stops: []Stop{
			{StopID: "A01", Name: "Metro Center", Latitude: 38.898, Longitude: -77.028},
			{StopID: "A02", Name: "Farragut North", Latitude: 38.903, Longitude: -77.039},
			{StopID: "A03", Name: "Dupont Circle", Latitude: 38.909, Longitude: -77.043},
		},
		Trips: []Trip{{TripID: "T1", RouteID: "RED", ServiceID: "WK", DirectionID: 1}},
		StopTimes: []StopTime{
			{TripID: "T1", StopSequence: 1, StopID: "A01", ArrivalTime: "08:00:00", DepartureTime: "08:00:30"},
			{TripID: "T1", StopSequence: 2, StopID: "A02", ArrivalTime: "08:02:00", DepartureTime: "08:02:30"},
			{TripID: "T1", StopSequence: 3, StopID: "A03", ArrivalTime: "08:04:00", DepartureTime: "08:04:30"},
		},
	}
}

func TestReplaceStaticAndRoutes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ReplaceStatic(ctx, "wmata", sampleFeed()))
	// Reloading replaces instead of duplicating.
	require.NoError(t, store.ReplaceStatic(ctx, "wmata", sampleFeed()))

	routes, err := store.Routes(ctx, "wmata")
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "BLUE", routes[0].RouteID)
	assert.Equal(t, "", routes[0].TextColor)
	assert.Equal(t, "BF1238", routes[1].Color)

	stops, err := store.Stops(ctx, "wmata")
	require.NoError(t, err)
	require.Len(t, stops, 3)
	assert.InDelta(t, 38.898, stops[0].Latitude, 1e-9)

	other, err := store.Routes(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestNetworkRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.NetworkMap(ctx, "wmata")
	assert.ErrorIs(t, err, ErrNotFound)

	require.Error(t, store.PutNetwork(ctx, "wmata", Network(`{not json`)))

	require.NoError(t, store.PutNetwork(ctx, "wmata", Network(`{"type":"FeatureCollection","features":[]}`)))
	require.NoError(t, store.PutNetwork(ctx, "wmata", Network(`{"type":"FeatureCollection","features":[{"type":"Feature"}]}`)))

	network, err := store.NetworkMap(ctx, "wmata")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[{"type":"Feature"}]}`, string(network))
}

func TestMapConfigUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.MapConfig(ctx, "nashville")
	assert.ErrorIs(t, err, ErrNotFound)

	cfg := MapConfig{AgencyID: "nashville", InitialLatitude: 36.13, InitialLongitude: -86.80, InitialZoom: 10, MaxZoom: 18, UpcomingStopsToShow: 3}
	require.NoError(t, store.PutMapConfig(ctx, cfg))
	cfg.UpcomingStopsToShow = 5
	require.NoError(t, store.PutMapConfig(ctx, cfg))

	got, err := store.MapConfig(ctx, "nashville")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLatestVehiclePositionsOnlyNewestFeed(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	latest, err := store.LatestFeedTimestamp(ctx, "wmata", FeedVehiclePositions)
	require.NoError(t, err)
	assert.Zero(t, latest)

	_, err = store.InsertVehiclePositions(ctx, "wmata", []VehiclePosition{
		{ID: "v1-100", FeedTimestamp: 100, TripID: "T1", RouteID: "RED", VehicleLabel: "1001", Latitude: 38.9, Longitude: -77.0},
		{ID: "v2-100", FeedTimestamp: 100, TripID: "T2", RouteID: "BLUE", VehicleLabel: "1002"},
	})
	require.NoError(t, err)
	_, err = store.InsertVehiclePositions(ctx, "wmata", []VehiclePosition{
		{ID: "v1-160", FeedTimestamp: 160, TripID: "T1", RouteID: "RED", VehicleLabel: "1001", Latitude: 38.91, Longitude: -77.01, CurrentStopSequence: 2},
	})
	require.NoError(t, err)

	latest, err = store.LatestFeedTimestamp(ctx, "wmata", FeedVehiclePositions)
	require.NoError(t, err)
	assert.Equal(t, int64(160), latest)

	positions, err := store.LatestVehiclePositions(ctx, "wmata")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "v1-160", positions[0].ID)
	assert.Equal(t, 2, positions[0].CurrentStopSequence)
	assert.InDelta(t, 38.91, positions[0].Latitude, 1e-9)

	deleted, err := store.PruneBefore(ctx, "wmata", FeedVehiclePositions, 160)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestUpcomingStopsWithPredictions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceStatic(ctx, "wmata", sampleFeed()))

	_, err := store.InsertTripUpdates(ctx, "wmata",
		[]TripUpdate{
			{ID: "tu1-100", FeedTimestamp: 100, TripID: "T1"},
			{ID: "tu1-200", FeedTimestamp: 200, TripID: "T1"},
		},
		[]StopTimeUpdate{
			{TripUpdateID: "tu1-100", FeedTimestamp: 100, StopSequence: 2, StopID: "A02", ArrivalTime: 1111},
			{TripUpdateID: "tu1-200", FeedTimestamp: 200, StopSequence: 2, StopID: "A02", ArrivalTime: 2222, DepartureTime: 2252},
			{TripUpdateID: "tu1-200", FeedTimestamp: 200, StopID: "A03", ArrivalTime: 3333},
		})
	require.NoError(t, err)

	stops, err := store.UpcomingStops(ctx, "wmata", "T1", 1, 5)
	require.NoError(t, err)
	require.Len(t, stops, 2)

	assert.Equal(t, "A02", stops[0].StopID)
	assert.Equal(t, "Farragut North", stops[0].StopName)
	assert.Equal(t, "08:02:00", stops[0].ArrivalTime)
	assert.Equal(t, int64(2222), stops[0].PredictedArrival)
	assert.Equal(t, int64(2252), stops[0].PredictedDeparture)

	assert.Equal(t, "A03", stops[1].StopID)
	assert.Equal(t, int64(3333), stops[1].PredictedArrival)

	limited, err := store.UpcomingStops(ctx, "wmata", "T1", 0, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "A01", limited[0].StopID)
}

func TestUpcomingStopsFallsBackToTripUpdate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceStatic(ctx, "wmata", sampleFeed()))

	_, err := store.InsertTripUpdates(ctx, "wmata",
		[]TripUpdate{{ID: "x-1", FeedTimestamp: 1, TripID: "ADDED"}},
		[]StopTimeUpdate{
			{TripUpdateID: "x-1", FeedTimestamp: 1, StopSequence: 4, StopID: "A01", ArrivalTime: 10},
			{TripUpdateID: "x-1", FeedTimestamp: 1, StopSequence: 5, StopID: "ZZZ", ArrivalTime: 20},
		})
	require.NoError(t, err)

	stops, err := store.UpcomingStops(ctx, "wmata", "ADDED", 3, 10)
	require.NoError(t, err)
	require.Len(t, stops, 2)
	assert.Equal(t, "Metro Center", stops[0].StopName)
	assert.Equal(t, "", stops[1].StopName)

	deleted, err := store.PruneBefore(ctx, "wmata", FeedTripUpdates, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestLatestFeedTimestampUnknownKind(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LatestFeedTimestamp(context.Background(), "wmata", FeedKind("alerts"))
	assert.Error(t, err)
	assert.False(t, FeedKind("alerts").Valid())
	assert.True(t, FeedTripUpdates.Valid())
}

func TestNetworkFromStops(t *testing.T) {
	network, err := NetworkFromStops(sampleFeed().Stops[:1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[-77.028,38.898]},
		 "properties":{"stop_id":"A01","stop_name":"Metro Center"}}]}`, string(network))
	assert.NoError(t, ValidateNetwork(network))

	assert.Error(t, ValidateNetwork([]byte(`{"type":"Feature"}`)))
	assert.Error(t, ValidateNetwork([]byte(`[`)))
}

func TestReplaceStaticKeepsOldScheduleOnFailure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceStatic(ctx, "wmata", sampleFeed()))

	broken := sampleFeed()
	broken.Routes = []Route{{RouteID: "SILVER", Color: "A1A2A1"}}
	broken.StopTimes = append(broken.StopTimes, StopTime{StopSequence: 4, StopID: "A04"})
	err := store.ReplaceStatic(ctx, "wmata", broken)
	require.ErrorContains(t, err, "stop_times row 3")

	routes, err := store.Routes(ctx, "wmata")
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "BLUE", routes[0].RouteID)
	assert.Equal(t, "RED", routes[1].RouteID)

	stops, err := store.UpcomingStops(ctx, "wmata", "T1", 0, 10)
	require.NoError(t, err)
	assert.Len(t, stops, 3)
}

func TestLatestVehiclePositionsPerFeed(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.InsertVehiclePositions(ctx, "wmata", []VehiclePosition{
		{ID: "bus1-90", Feed: "bus", FeedTimestamp: 90, TripID: "B0"},
		{ID: "bus1-100", Feed: "bus", FeedTimestamp: 100, TripID: "B1"},
	})
	require.NoError(t, err)
	_, err = store.InsertVehiclePositions(ctx, "wmata", []VehiclePosition{
		{ID: "rail1-101", Feed: "rail", FeedTimestamp: 101, TripID: "R1"},
	})
	require.NoError(t, err)

	positions, err := store.LatestVehiclePositions(ctx, "wmata")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "bus", positions[0].Feed)
	assert.Equal(t, "B1", positions[0].TripID)
	assert.Equal(t, "rail", positions[1].Feed)
	assert.Equal(t, "R1", positions[1].TripID)
}

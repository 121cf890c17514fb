package mapclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"
)

var ErrMarkerNotFound = errors.New("marker not found")

// API is the part of Client the map needs.
type API interface {
	Config(ctx context.Context) (MapConfig, error)
	RouteInfo(ctx context.Context) ([]RouteInfo, error)
	NetworkMap(ctx context.Context) (FeatureCollection, error)
	VehiclePositions(ctx context.Context) ([]VehiclePosition, error)
	UpcomingStops(ctx context.Context, tripID string, currentStopSequence, count int) ([]UpcomingStop, error)
}

// Map is a headless rendition of the live map page: configuration, a
// static stop layer, a vehicle layer refreshed by a timer, and popups
// filled on click.
type Map struct {
	api       API
	Vehicles  *MarkerLayer
	Stops     *MarkerLayer
	Refresher *Refresher

	mu     sync.RWMutex
	config MapConfig
	routes *RouteTable
}

func NewMap(api API, period time.Duration) *Map {
	m := &Map{
		api:      api,
		Vehicles: NewMarkerLayer(),
		Stops:    NewMarkerLayer(),
	}
	m.Refresher = NewRefresher(period, m.UpdateVehicleLocations)
	return m
}

// Init loads configuration and route colours, draws the stop layer and the
// first vehicle layer, then starts the refresh timer.
func (m *Map) Init(ctx context.Context) error {
	config, err := m.api.Config(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	routes, err := m.api.RouteInfo(ctx)
	if err != nil {
		return fmt.Errorf("load route info: %w", err)
	}

	m.mu.Lock()
	m.config = config
	m.routes = NewRouteTable(routes)
	m.mu.Unlock()

	if err := m.DrawRouteMap(ctx); err != nil {
		return err
	}

	if err := m.Refresher.RefreshOnce(ctx); err != nil {
		return err
	}

	m.Refresher.SetEnabled(true)
	return nil
}

func (m *Map) Config() MapConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *Map) Routes() *RouteTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.routes
}

// DrawRouteMap fetches the network map once and fills the stop layer.
func (m *Map) DrawRouteMap(ctx context.Context) error {
	network, err := m.api.NetworkMap(ctx)
	if err != nil {
		return fmt.Errorf("load network map: %w", err)
	}

	stops, err := network.Stops()
	if err != nil {
		return err
	}

	markers := make([]Marker, 0, len(stops))
	for _, stop := range stops {
		markers = append(markers, Marker{
			ID:          stop.StopID,
			Kind:        StopMarker,
			Latitude:    stop.Latitude,
			Longitude:   stop.Longitude,
			Radius:      7,
			Color:       FallbackColor,
			FillColor:   FallbackColor,
			FillOpacity: 0.5,
			Popup:       StopPopup(stop),
		})
	}
	m.Stops.Replace(markers)
	glog.V(1).Infof("drew %d stops", len(markers))
	return nil
}

// UpdateVehicleLocations is one poll cycle: fetch, clear, redraw.
func (m *Map) UpdateVehicleLocations(ctx context.Context) error {
	vehicles, err := m.api.VehiclePositions(ctx)
	if err != nil {
		return fmt.Errorf("load vehicle positions: %w", err)
	}

	routes := m.Routes()
	markers := make([]Marker, 0, len(vehicles))
	for i := range vehicles {
		vehicle := vehicles[i]
		color := routes.Color(vehicle.Line)
		markers = append(markers, Marker{
			ID:          VehicleMarkerID(i),
			Kind:        VehicleMarker,
			Latitude:    vehicle.Latitude,
			Longitude:   vehicle.Longitude,
			Radius:      5,
			Color:       color,
			FillColor:   color,
			FillOpacity: 1,
			Popup:       LoadingPopup(vehicle),
			Vehicle:     &vehicle,
		})
	}

	generation := m.Vehicles.Replace(markers)
	glog.V(2).Infof("poll %d: %d vehicles", generation, len(markers))
	return nil
}

// VehicleMarkerID names the marker of the i-th vehicle of a poll. Vehicle
// ids and labels are not unique across a feed, so they stay marker data.
func VehicleMarkerID(i int) string {
	return strconv.Itoa(i)
}

// Click fetches the upcoming stops for a vehicle marker and sets them as its
// popup. Nothing guards against the marker being replaced while the fetch
// is in flight: the content is then dropped and applied reports false.
func (m *Map) Click(ctx context.Context, markerID string) (popup string, applied bool, err error) {
	marker, ok := m.Vehicles.Get(markerID)
	if !ok || marker.Vehicle == nil {
		return "", false, fmt.Errorf("%w: %s", ErrMarkerNotFound, markerID)
	}

	vehicle := *marker.Vehicle
	stops, err := m.api.UpcomingStops(ctx, vehicle.TripID, vehicle.CurrentStopSequence, m.Config().UpcomingStopsToShow)
	if err != nil {
		return "", false, fmt.Errorf("load upcoming stops: %w", err)
	}

	popup = VehiclePopup(vehicle, stops)
	return popup, m.Vehicles.SetPopup(markerID, marker.Generation, popup), nil
}

// SetAutoRefresh mirrors the autoRefresh checkbox.
func (m *Map) SetAutoRefresh(enabled bool) {
	m.Refresher.SetEnabled(enabled)
}

// SetShowStops mirrors the showStops checkbox.
func (m *Map) SetShowStops(show bool) {
	m.Stops.SetVisible(show)
}

func (m *Map) Close() {
	m.Refresher.Close()
}

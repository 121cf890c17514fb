package store

import "encoding/json"

// FeedKind names a GTFS-RT feed flavour stored by the realtime ingest.
type FeedKind string

const (
	FeedVehiclePositions FeedKind = "vehicle_positions"
	FeedTripUpdates      FeedKind = "trip_updates"
)

func (kind FeedKind) Valid() bool {
	return kind == FeedVehiclePositions || kind == FeedTripUpdates
}

type Agency struct {
	AgencyID string
	Name     string
	Url      string
	Timezone string
	Lang     string
	Phone    string
}

type Route struct {
	RouteID   string
	ShortName string
	LongName  string
	RouteType string
	Color     string // hex without '#', may be empty
	TextColor string
}

type Stop struct {
	StopID    string
	Name      string
	Latitude  float64
	Longitude float64
}

type Trip struct {
	TripID      string
	RouteID     string
	ServiceID   string
	Headsign    string
	DirectionID int
	ShapeID     string
}

type StopTime struct {
	TripID        string
	StopSequence  int
	StopID        string
	ArrivalTime   string
	DepartureTime string
}

// StaticFeed is one agency's parsed GTFS schedule.
type StaticFeed struct {
	Agencies  []Agency
	Routes    []Route
	Stops     []Stop
	Trips     []Trip
	StopTimes []StopTime
}

// MapConfig holds the initial map view for an agency.
type MapConfig struct {
	AgencyID            string  `toml:"agency_id" yaml:"agency_id"`
	InitialLatitude     float64 `toml:"initial_latitude" yaml:"initial_latitude" validate:"gte=-90,lte=90"`
	InitialLongitude    float64 `toml:"initial_longitude" yaml:"initial_longitude" validate:"gte=-180,lte=180"`
	InitialZoom         int     `toml:"initial_zoom" yaml:"initial_zoom" validate:"gte=0,lte=22"`
	MaxZoom             int     `toml:"max_zoom" yaml:"max_zoom" validate:"gte=0"`
	UpcomingStopsToShow int     `toml:"upcoming_stops_to_show" yaml:"upcoming_stops_to_show" validate:"gte=0,lte=50"`
}

// VehiclePosition is one vehicle entity from a GTFS-RT VehiclePositions feed.
type VehiclePosition struct {
	ID                  string // entity id + vehicle timestamp
	Feed                string // label of the feed that delivered it
	FeedTimestamp       int64
	VehicleTimestamp    int64
	TripID              string
	RouteID             string
	VehicleID           string
	VehicleLabel        string
	LicensePlate        string
	Latitude            float64
	Longitude           float64
	CurrentStopSequence int
	StopID              string
}

type TripUpdate struct {
	ID            string
	FeedTimestamp int64
	TripID        string
	RouteID       string
	StartDate     string
	StartTime     string
	DirectionID   int
	VehicleID     string
}

type StopTimeUpdate struct {
	TripUpdateID  string
	FeedTimestamp int64
	StopSequence  int
	StopID        string
	ArrivalTime   int64 // unix seconds, 0 when absent
	DepartureTime int64
}

// UpcomingStop joins the schedule with the newest realtime prediction.
type UpcomingStop struct {
	StopID             string
	StopName           string
	StopSequence       int
	ArrivalTime        string
	DepartureTime      string
	PredictedArrival   int64
	PredictedDeparture int64
}

// Network is a GeoJSON FeatureCollection kept as raw JSON.
type Network = json.RawMessage

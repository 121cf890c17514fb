package mapclient

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FallbackColor is used for vehicles whose line has no unique route entry.
const FallbackColor = "#000000"

// Results is the envelope every /api endpoint answers with.
type Results[T any] struct {
	Results []T `json:"results"`
}

type MapConfig struct {
	InitialLatitude     float64 `json:"initialLatitude"`
	InitialLongitude    float64 `json:"initialLongitude"`
	InitialZoom         int     `json:"initialZoom"`
	MaxZoom             int     `json:"maxZoom"`
	UpcomingStopsToShow int     `json:"upcomingStopsToShow"`
}

type RouteInfo struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName,omitempty"`
	LongName  string `json:"longName,omitempty"`
	Color     string `json:"color"`
	TextColor string `json:"textColor,omitempty"`
}

type VehiclePosition struct {
	Timestamp           int64   `json:"timestamp"`
	TripID              string  `json:"tripId"`
	VehicleID           string  `json:"vehicleId"`
	Line                string  `json:"line"`
	LicensePlate        string  `json:"licensePlate"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	CurrentStopSequence int     `json:"currentStopSequence"`
}

type UpcomingStop struct {
	StopID             string `json:"stopId"`
	StopName           string `json:"stopName,omitempty"`
	StopSequence       int    `json:"stopSequence,omitempty"`
	ArrivalTime        string `json:"arrivalTime,omitempty"`
	DepartureTime      string `json:"departureTime,omitempty"`
	PredictedArrival   int64  `json:"predictedArrival,omitempty"`
	PredictedDeparture int64  `json:"predictedDeparture,omitempty"`
}

type Health struct {
	Status                 string `json:"status"`
	LatestVehicleTimestamp int64  `json:"latestVehicleTimestamp"`
}

// FeatureCollection is the subset of GeoJSON the network map uses.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Stop is a stop feature of the network map.
type Stop struct {
	StopID    string
	Name      string
	Latitude  float64
	Longitude float64
}

// Stops extracts point features carrying a stop_id property. Other
// features (route lines, unnamed points) are skipped.
func (collection FeatureCollection) Stops() ([]Stop, error) {
	stops := []Stop{}
	for _, feature := range collection.Features {
		if feature.Geometry.Type != "Point" {
			continue
		}
		id := propertyString(feature.Properties["stop_id"])
		if id == "" {
			continue
		}

		var coordinates []float64
		if err := json.Unmarshal(feature.Geometry.Coordinates, &coordinates); err != nil {
			return nil, fmt.Errorf("stop %s coordinates: %w", id, err)
		}
		if len(coordinates) < 2 {
			return nil, fmt.Errorf("stop %s: point has %d coordinates", id, len(coordinates))
		}

		name := propertyString(feature.Properties["stop_name"])
		stops = append(stops, Stop{
			StopID:    id,
			Name:      name,
			Longitude: coordinates[0],
			Latitude:  coordinates[1],
		})
	}
	return stops, nil
}

// propertyString reads a GeoJSON property that may hold a string or a
// number. Anything else reads as "".
func propertyString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

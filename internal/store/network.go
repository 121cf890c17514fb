package store

import (
	"encoding/json"
	"fmt"
)

type geoJSONPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type geoJSONFeature struct {
	Type       string            `json:"type"`
	Geometry   geoJSONPoint      `json:"geometry"`
	Properties map[string]string `json:"properties"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// NetworkFromStops builds a FeatureCollection with one Point per stop.
// Coordinates are GeoJSON ordered: longitude first.
func NetworkFromStops(stops []Stop) (Network, error) {
	collection := geoJSONCollection{
		Type:     "FeatureCollection",
		Features: make([]geoJSONFeature, 0, len(stops)),
	}
	for _, stop := range stops {
		collection.Features = append(collection.Features, geoJSONFeature{
			Type:     "Feature",
			Geometry: geoJSONPoint{Type: "Point", Coordinates: [2]float64{stop.Longitude, stop.Latitude}},
			Properties: map[string]string{
				"stop_id":   stop.StopID,
				"stop_name": stop.Name,
			},
		})
	}

	data, err := json.Marshal(collection)
	if err != nil {
		return nil, fmt.Errorf("encode network: %w", err)
	}
	return Network(data), nil
}

// ValidateNetwork checks that data is a GeoJSON FeatureCollection.
func ValidateNetwork(data []byte) error {
	var probe struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("network is not valid JSON: %w", err)
	}
	if probe.Type != "FeatureCollection" {
		return fmt.Errorf("network type %q, want FeatureCollection", probe.Type)
	}
	return nil
}

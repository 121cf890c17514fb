package mapclient

import (
	"sync"
)

type MarkerKind string

const (
	VehicleMarker MarkerKind = "vehicle"
	StopMarker    MarkerKind = "stop"
)

// Marker is one circle marker on the map.
type Marker struct {
	ID          string
	Kind        MarkerKind
	Latitude    float64
	Longitude   float64
	Radius      int
	Color       string
	FillColor   string
	FillOpacity float64
	Popup       string

	// Generation is the poll cycle that created the marker.
	Generation int64
	Vehicle    *VehiclePosition
}

// MarkerLayer is a group of markers that is cleared and refilled as a whole.
// Markers keep the order they were added in; when ids repeat, every marker
// is kept and lookups by id find the first.
type MarkerLayer struct {
	mu         sync.Mutex
	markers    []*Marker
	byID       map[string]*Marker
	generation int64
	visible    bool
}

func NewMarkerLayer() *MarkerLayer {
	return &MarkerLayer{byID: map[string]*Marker{}, visible: true}
}

// Replace clears the layer and adds markers as a new generation, which it
// returns.
func (layer *MarkerLayer) Replace(markers []Marker) int64 {
	layer.mu.Lock()
	defer layer.mu.Unlock()

	layer.generation++
	layer.markers = make([]*Marker, 0, len(markers))
	layer.byID = make(map[string]*Marker, len(markers))
	for i := range markers {
		marker := markers[i]
		marker.Generation = layer.generation
		layer.markers = append(layer.markers, &marker)
		if _, taken := layer.byID[marker.ID]; !taken {
			layer.byID[marker.ID] = &marker
		}
	}
	return layer.generation
}

func (layer *MarkerLayer) Clear() {
	layer.Replace(nil)
}

// Get returns a copy of the marker with the given id.
func (layer *MarkerLayer) Get(id string) (Marker, bool) {
	layer.mu.Lock()
	defer layer.mu.Unlock()

	marker, ok := layer.byID[id]
	if !ok {
		return Marker{}, false
	}
	return *marker, true
}

// SetPopup replaces the popup of a marker if it still belongs to the given
// generation. It reports whether the content was applied.
func (layer *MarkerLayer) SetPopup(id string, generation int64, popup string) bool {
	layer.mu.Lock()
	defer layer.mu.Unlock()

	marker, ok := layer.byID[id]
	if !ok || marker.Generation != generation {
		return false
	}
	marker.Popup = popup
	return true
}

// Markers returns copies of all markers in the order they were added.
func (layer *MarkerLayer) Markers() []Marker {
	layer.mu.Lock()
	defer layer.mu.Unlock()

	out := make([]Marker, 0, len(layer.markers))
	for _, marker := range layer.markers {
		out = append(out, *marker)
	}
	return out
}

func (layer *MarkerLayer) Len() int {
	layer.mu.Lock()
	defer layer.mu.Unlock()
	return len(layer.markers)
}

func (layer *MarkerLayer) Generation() int64 {
	layer.mu.Lock()
	defer layer.mu.Unlock()
	return layer.generation
}

func (layer *MarkerLayer) SetVisible(visible bool) {
	layer.mu.Lock()
	defer layer.mu.Unlock()
	layer.visible = visible
}

func (layer *MarkerLayer) Visible() bool {
	layer.mu.Lock()
	defer layer.mu.Unlock()
	return layer.visible
}

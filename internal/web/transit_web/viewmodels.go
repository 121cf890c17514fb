package transit_web

import "encoding/json"

type MapPageVM struct {
	Title            string
	TileURL          string
	RefreshMillis    int64
	AutoRefresh      bool
	ShowStops        bool
	InitialLatitude  float64
	InitialLongitude float64
	InitialZoom      int
	MaxZoom          int
}

type ResultsVM[T any] struct {
	Results []T `json:"results"`
}

type MapConfigVM struct {
	InitialLatitude     float64 `json:"initialLatitude"`
	InitialLongitude    float64 `json:"initialLongitude"`
	InitialZoom         int     `json:"initialZoom"`
	MaxZoom             int     `json:"maxZoom"`
	UpcomingStopsToShow int     `json:"upcomingStopsToShow"`
}

type RouteInfoVM struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
	Color     string `json:"color"`
	TextColor string `json:"textColor"`
}

type VehiclePositionVM struct {
	Timestamp           int64   `json:"timestamp"`
	TripID              string  `json:"tripId"`
	VehicleID           string  `json:"vehicleId"`
	Line                string  `json:"line"`
	LicensePlate        string  `json:"licensePlate"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	CurrentStopSequence int     `json:"currentStopSequence"`
}

type UpcomingStopVM struct {
	StopID             string `json:"stopId"`
	StopName           string `json:"stopName"`
	StopSequence       int    `json:"stopSequence"`
	ArrivalTime        string `json:"arrivalTime"`
	DepartureTime      string `json:"departureTime"`
	PredictedArrival   int64  `json:"predictedArrival,omitempty"`
	PredictedDeparture int64  `json:"predictedDeparture,omitempty"`
}

type HealthVM struct {
	Status                 string `json:"status"`
	LatestVehicleTimestamp int64  `json:"latestVehicleTimestamp"`
	Age                    string `json:"age,omitempty"`
}

type NetworkVM = json.RawMessage

package transit_web

import (
	"fmt"
	"strings"
	"time"

	"tarediiran-industries.com/transit-map/internal/store"
)

const (
	defaultRouteColor     = "#000000"
	defaultRouteTextColor = "#FFFFFF"
)

func BuildMapPageVM(cfg Config, mapConfig store.MapConfig) MapPageVM {
	return MapPageVM{
		Title:            "Transit map",
		TileURL:          "/tiles/{z}/{x}/{y}.png",
		RefreshMillis:    cfg.RefreshPeriod.Milliseconds(),
		AutoRefresh:      true,
		ShowStops:        true,
		InitialLatitude:  mapConfig.InitialLatitude,
		InitialLongitude: mapConfig.InitialLongitude,
		InitialZoom:      mapConfig.InitialZoom,
		MaxZoom:          mapConfig.MaxZoom,
	}
}

func BuildMapConfigVM(mapConfig store.MapConfig) MapConfigVM {
	return MapConfigVM{
		InitialLatitude:     mapConfig.InitialLatitude,
		InitialLongitude:    mapConfig.InitialLongitude,
		InitialZoom:         mapConfig.InitialZoom,
		MaxZoom:             mapConfig.MaxZoom,
		UpcomingStopsToShow: mapConfig.UpcomingStopsToShow,
	}
}

// hexColor prefixes a GTFS colour with '#', substituting fallback when the
// feed leaves it empty.
func hexColor(color, fallback string) string {
	color = strings.TrimSpace(color)
	if color == "" {
		return fallback
	}
	if strings.HasPrefix(color, "#") {
		return strings.ToUpper(color)
	}
	return "#" + strings.ToUpper(color)
}

func BuildRouteInfoVMs(routes []store.Route) []RouteInfoVM {
	out := make([]RouteInfoVM, 0, len(routes))
	for _, route := range routes {
		out = append(out, RouteInfoVM{
			ID:        route.RouteID,
			ShortName: route.ShortName,
			LongName:  route.LongName,
			Color:     hexColor(route.Color, defaultRouteColor),
			TextColor: hexColor(route.TextColor, defaultRouteTextColor),
		})
	}
	return out
}

func BuildVehiclePositionVMs(positions []store.VehiclePosition) []VehiclePositionVM {
	out := make([]VehiclePositionVM, 0, len(positions))
	for _, position := range positions {
		vehicleID := position.VehicleLabel
		if vehicleID == "" {
			vehicleID = position.VehicleID
		}
		timestamp := position.VehicleTimestamp
		if timestamp == 0 {
			timestamp = position.FeedTimestamp
		}

		out = append(out, VehiclePositionVM{
			Timestamp:           timestamp,
			TripID:              position.TripID,
			VehicleID:           vehicleID,
			Line:                position.RouteID,
			LicensePlate:        position.LicensePlate,
			Latitude:            position.Latitude,
			Longitude:           position.Longitude,
			CurrentStopSequence: position.CurrentStopSequence,
		})
	}
	return out
}

func BuildUpcomingStopVMs(stops []store.UpcomingStop) []UpcomingStopVM {
	out := make([]UpcomingStopVM, 0, len(stops))
	for _, stop := range stops {
		out = append(out, UpcomingStopVM{
			StopID:             stop.StopID,
			StopName:           stop.StopName,
			StopSequence:       stop.StopSequence,
			ArrivalTime:        stop.ArrivalTime,
			DepartureTime:      stop.DepartureTime,
			PredictedArrival:   stop.PredictedArrival,
			PredictedDeparture: stop.PredictedDeparture,
		})
	}
	return out
}

func BuildHealthVM(latest int64, now time.Time, staleAfter time.Duration) HealthVM {
	if latest == 0 {
		return HealthVM{Status: "no data"}
	}

	then := time.Unix(latest, 0)
	status := "ok"
	if staleAfter > 0 && now.Sub(then) > staleAfter {
		status = "stale"
	}
	return HealthVM{
		Status:                 status,
		LatestVehicleTimestamp: latest,
		Age:                    formatAge(now, then),
	}
}

func formatAge(now, then time.Time) string {
	d := now.Sub(then)
	if d < 0 {
		d = 0
	}
	if d < 10*time.Second {
		return fmt.Sprintf("%.1fs ago", d.Seconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}

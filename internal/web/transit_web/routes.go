package transit_web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"

	"tarediiran-industries.com/transit-map/internal/store"
)

func writeJSON(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		glog.Warningf("write response: %v", err)
	}
}

func writeResults[T any](writer http.ResponseWriter, results []T) {
	if results == nil {
		results = []T{}
	}
	writeJSON(writer, http.StatusOK, ResultsVM[T]{Results: results})
}

func (server *TransitWebServer) internalError(writer http.ResponseWriter, request *http.Request, err error) {
	glog.Errorf("%s %s: %v", request.Method, request.URL.Path, err)
	http.Error(writer, "internal error", http.StatusInternalServerError)
}

// mapConfig returns the stored view for the agency, or the configured
// default when none was loaded.
func (server *TransitWebServer) mapConfig(request *http.Request) (store.MapConfig, error) {
	mapConfig, err := server.store.MapConfig(request.Context(), server.cfg.AgencyID)
	if errors.Is(err, store.ErrNotFound) {
		return server.cfg.DefaultMap, nil
	}
	return mapConfig, err
}

func (server *TransitWebServer) handleMapPage(writer http.ResponseWriter, request *http.Request) {
	mapConfig, err := server.mapConfig(request)
	if err != nil {
		server.internalError(writer, request, err)
		return
	}

	viewmodel := BuildMapPageVM(server.cfg, mapConfig)

	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := server.renderer.Render(writer, "layout.html", viewmodel); err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (server *TransitWebServer) handleConfig(writer http.ResponseWriter, request *http.Request) {
	mapConfig, err := server.mapConfig(request)
	if err != nil {
		server.internalError(writer, request, err)
		return
	}
	writeResults(writer, []MapConfigVM{BuildMapConfigVM(mapConfig)})
}

func (server *TransitWebServer) handleRouteInfo(writer http.ResponseWriter, request *http.Request) {
	routes, err := server.store.Routes(request.Context(), server.cfg.AgencyID)
	if err != nil {
		server.internalError(writer, request, err)
		return
	}
	writeResults(writer, BuildRouteInfoVMs(routes))
}

// handleNetworkMap serves the stored network, or one built from the
// agency's stops when no network was loaded.
func (server *TransitWebServer) handleNetworkMap(writer http.ResponseWriter, request *http.Request) {
	network, err := server.store.NetworkMap(request.Context(), server.cfg.AgencyID)
	if errors.Is(err, store.ErrNotFound) {
		var stops []store.Stop
		stops, err = server.store.Stops(request.Context(), server.cfg.AgencyID)
		if err == nil {
			network, err = store.NetworkFromStops(stops)
		}
	}
	if err != nil {
		server.internalError(writer, request, err)
		return
	}
	writeResults(writer, []NetworkVM{NetworkVM(network)})
}

func (server *TransitWebServer) handleVehiclePositions(writer http.ResponseWriter, request *http.Request) {
	positions, err := server.store.LatestVehiclePositions(request.Context(), server.cfg.AgencyID)
	if err != nil {
		server.internalError(writer, request, err)
		return
	}
	writeResults(writer, BuildVehiclePositionVMs(positions))
}

func (server *TransitWebServer) handleUpcomingStops(writer http.ResponseWriter, request *http.Request) {
	query, err := ParseUpcomingStopsQuery(
		chi.URLParam(request, "tripId"),
		chi.URLParam(request, "currentStopSequence"),
		chi.URLParam(request, "count"),
	)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	stops, err := server.store.UpcomingStops(request.Context(), server.cfg.AgencyID, query.TripID, query.CurrentStopSequence, query.Count)
	if err != nil {
		server.internalError(writer, request, err)
		return
	}
	writeResults(writer, BuildUpcomingStopVMs(stops))
}

func (server *TransitWebServer) handleHealth(writer http.ResponseWriter, request *http.Request) {
	latest, err := server.store.LatestFeedTimestamp(request.Context(), server.cfg.AgencyID, store.FeedVehiclePositions)
	if err != nil {
		server.internalError(writer, request, err)
		return
	}

	health := BuildHealthVM(latest, server.now(), server.cfg.StaleAfter)
	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(writer, status, health)
}

package transit_web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang/glog"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/store"
	"tarediiran-industries.com/transit-map/internal/tiles"
)

// Store is the read side of the store the server answers from.
type Store interface {
	MapConfig(ctx context.Context, agencyID string) (store.MapConfig, error)
	Routes(ctx context.Context, agencyID string) ([]store.Route, error)
	Stops(ctx context.Context, agencyID string) ([]store.Stop, error)
	NetworkMap(ctx context.Context, agencyID string) (store.Network, error)
	LatestVehiclePositions(ctx context.Context, agencyID string) ([]store.VehiclePosition, error)
	LatestFeedTimestamp(ctx context.Context, agencyID string, kind store.FeedKind) (int64, error)
	UpcomingStops(ctx context.Context, agencyID, tripID string, afterSequence, count int) ([]store.UpcomingStop, error)
}

type TransitWebServer struct {
	cfg      Config
	store    Store
	server   *http.Server
	renderer *Renderer
	tiles    *tiles.Proxy
	now      func() time.Time
}

func NewTransitWebServer(cfg Config, db Store, metrics *common.Metrics) (*TransitWebServer, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	filter, err := tiles.NewFilter(cfg.TileWeights, cfg.TileCache)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	server := &TransitWebServer{
		cfg:      cfg,
		store:    db,
		renderer: renderer,
		tiles: tiles.NewProxy(tiles.ProxyOptions{
			Upstream: cfg.TileUpstream,
			MaxZoom:  cfg.TileMaxZoom,
		}, filter, metrics),
		now: time.Now,
		server: &http.Server{
			Addr:              cfg.ListenAddress,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	router.Get("/", server.handleMapPage)
	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	router.Get("/tiles/{z}/{x}/{y}", server.tiles.ServeHTTP)

	router.Route("/api", func(api chi.Router) {
		api.Use(middleware.NoCache)
		api.Get("/config", server.handleConfig)
		api.Get("/routeinfo", server.handleRouteInfo)
		api.Get("/networkmap", server.handleNetworkMap)
		api.Get("/vehiclepositions", server.handleVehiclePositions)
		api.Get("/upcomingstops/{tripId}/{currentStopSequence}/{count}", server.handleUpcomingStops)
		api.Get("/health", server.handleHealth)
	})

	return server, nil
}

func (server *TransitWebServer) Handler() http.Handler {
	return server.server.Handler
}

func (server *TransitWebServer) startHosting() {
	err := server.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		glog.Fatalf("server error: %v", err)
	}
}

// Serve blocks until ctx is cancelled, then shuts the server down.
func (server *TransitWebServer) Serve(ctx context.Context) error {
	glog.Infof("listening on %s", server.server.Addr)

	go server.startHosting()
	<-ctx.Done()

	glog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.server.Shutdown(shutdownCtx)
}

package common

import (
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for upstream HTTP fetches (GTFS-RT feeds, basemap tiles) and the
// rows they produce. All vectors are labelled by endpoint.
type Metrics struct {
	HttpTTFBSeconds     *prometheus.HistogramVec
	HttpReadBodySeconds *prometheus.HistogramVec
	HttpBytesTotal      *prometheus.CounterVec
	HttpErrorsTotal     *prometheus.CounterVec
	EntitiesStoredTotal *prometheus.CounterVec
	FeedsSkippedTotal   *prometheus.CounterVec
	TileCacheTotal      *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		HttpTTFBSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transit_http_ttfb_seconds",
				Help:    "Time from upstream GET to first byte",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		HttpReadBodySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transit_http_read_body_seconds",
				Help:    "Time to read the body of an upstream HTTP response",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		HttpBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transit_http_bytes_total",
				Help: "Bytes downloaded per endpoint",
			},
			[]string{"endpoint"},
		),
		HttpErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transit_http_errors_total",
				Help: "Errors incurred from sustained interaction with an upstream endpoint",
			},
			[]string{"endpoint"},
		),
		EntitiesStoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transit_feed_entities_stored_total",
				Help: "GTFS-RT entities written to the store",
			},
			[]string{"endpoint"},
		),
		FeedsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transit_feed_skipped_total",
				Help: "GTFS-RT messages skipped because their header timestamp was not newer than the stored one",
			},
			[]string{"endpoint"},
		),
		TileCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transit_tile_cache_total",
				Help: "Grayscale tile cache lookups by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		metrics.HttpTTFBSeconds,
		metrics.HttpReadBodySeconds,
		metrics.HttpBytesTotal,
		metrics.HttpErrorsTotal,
		metrics.EntitiesStoredTotal,
		metrics.FeedsSkippedTotal,
		metrics.TileCacheTotal,
	)

	return metrics
}

type TelemetryServer struct {
	addr     string
	mux      *http.ServeMux
	registry *prometheus.Registry

	server   *http.Server
	listener net.Listener
}

func NewTelemetryServer(addr string) *TelemetryServer {
	telemetry := &TelemetryServer{
		addr:     addr,
		registry: prometheus.NewRegistry(),
		mux:      http.NewServeMux(),
	}

	telemetry.mux.Handle(
		"/metrics",
		promhttp.HandlerFor(telemetry.registry, promhttp.HandlerOpts{}),
	)

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transit_build_info",
			Help: "Build metadata",
		},
		[]string{"version", "git_commit"},
	)

	telemetry.registry.MustRegister(
		collectors.NewGoCollector(), // Go runtime metrics
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo,
	)

	buildInfo.WithLabelValues(Version, GitCommit).Set(1)

	telemetry.mux.HandleFunc("/debug/pprof/", pprof.Index)
	telemetry.mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	telemetry.mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	telemetry.mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	telemetry.mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return telemetry
}

func (telemetry *TelemetryServer) GetRegistry() *prometheus.Registry {
	return telemetry.registry
}

func (telemetry *TelemetryServer) Handler() http.Handler {
	return telemetry.mux
}

// Start is a no-op when the server was built without an address.
func (telemetry *TelemetryServer) Start() error {
	if telemetry.addr == "" {
		return nil
	}

	telemetry.server = &http.Server{
		Addr:              telemetry.addr,
		Handler:           telemetry.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", telemetry.addr)
	if err != nil {
		return err
	}

	telemetry.listener = listener

	go telemetry.server.Serve(telemetry.listener)

	glog.Infof("Telemetry server started: %s", telemetry.addr)
	return nil
}

func (telemetry *TelemetryServer) Stop() error {
	if telemetry.server == nil {
		return nil
	}

	return telemetry.server.Close()
}

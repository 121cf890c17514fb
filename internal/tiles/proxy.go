package tiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"

	"tarediiran-industries.com/transit-map/internal/common"
)

const DefaultUpstream = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

var subdomains = []string{"a", "b", "c"}

var ErrTileOutOfRange = errors.New("tile coordinates out of range")

type TileKey struct {
	Z, X, Y int
}

func (key TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", key.Z, key.X, key.Y)
}

// ParseTileKey reads z, x and y path segments. The y segment may carry a
// ".png" suffix.
func ParseTileKey(z, x, y string, maxZoom int) (TileKey, error) {
	var key TileKey
	var err error

	if key.Z, err = strconv.Atoi(z); err != nil {
		return TileKey{}, fmt.Errorf("zoom: %w", err)
	}
	if key.X, err = strconv.Atoi(x); err != nil {
		return TileKey{}, fmt.Errorf("x: %w", err)
	}
	if key.Y, err = strconv.Atoi(strings.TrimSuffix(y, ".png")); err != nil {
		return TileKey{}, fmt.Errorf("y: %w", err)
	}

	if key.Z < 0 || key.Z > maxZoom || key.Z > 30 {
		return TileKey{}, ErrTileOutOfRange
	}
	limit := 1 << key.Z
	if key.X < 0 || key.X >= limit || key.Y < 0 || key.Y >= limit {
		return TileKey{}, ErrTileOutOfRange
	}
	return key, nil
}

// UpstreamURL expands {s}, {z}, {x} and {y} in template.
func UpstreamURL(template string, key TileKey) string {
	return strings.NewReplacer(
		"{s}", subdomains[(key.X+key.Y)%len(subdomains)],
		"{z}", strconv.Itoa(key.Z),
		"{x}", strconv.Itoa(key.X),
		"{y}", strconv.Itoa(key.Y),
	).Replace(template)
}

type ProxyOptions struct {
	Upstream  string
	MaxZoom   int
	UserAgent string
	Timeout   time.Duration
}

// Proxy serves grayscale basemap tiles fetched from an upstream tile server.
type Proxy struct {
	options ProxyOptions
	filter  *Filter
	client  *http.Client
	metrics *common.Metrics
}

func NewProxy(options ProxyOptions, filter *Filter, metrics *common.Metrics) *Proxy {
	if options.Upstream == "" {
		options.Upstream = DefaultUpstream
	}
	if options.MaxZoom <= 0 {
		options.MaxZoom = 19
	}
	if options.UserAgent == "" {
		options.UserAgent = "transit-map/" + common.Version
	}
	if options.Timeout <= 0 {
		options.Timeout = 10 * time.Second
	}

	return &Proxy{
		options: options,
		filter:  filter,
		client:  &http.Client{Timeout: options.Timeout},
		metrics: metrics,
	}
}

// Tile returns the grayscale PNG for key, fetching it on a cache miss.
func (proxy *Proxy) Tile(ctx context.Context, key TileKey) ([]byte, error) {
	cacheKey := key.String()
	if tile, ok := proxy.filter.Cached(cacheKey); ok {
		proxy.countCache("hit")
		return tile, nil
	}
	proxy.countCache("miss")

	raw, err := proxy.fetch(ctx, UpstreamURL(proxy.options.Upstream, key))
	if err != nil {
		return nil, err
	}

	return proxy.filter.Process(cacheKey, raw)
}

func (proxy *Proxy) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", proxy.options.UserAgent)

	start := time.Now()
	resp, err := proxy.client.Do(req)
	if err != nil {
		proxy.countError()
		return nil, fmt.Errorf("fetch tile %s: %w", url, err)
	}
	defer resp.Body.Close()
	if proxy.metrics != nil {
		proxy.metrics.HttpTTFBSeconds.WithLabelValues("tiles").Observe(time.Since(start).Seconds())
	}

	if resp.StatusCode != http.StatusOK {
		proxy.countError()
		return nil, fmt.Errorf("fetch tile %s: HTTP %d", url, resp.StatusCode)
	}

	readStart := time.Now()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		proxy.countError()
		return nil, fmt.Errorf("read tile %s: %w", url, err)
	}
	if proxy.metrics != nil {
		proxy.metrics.HttpReadBodySeconds.WithLabelValues("tiles").Observe(time.Since(readStart).Seconds())
		proxy.metrics.HttpBytesTotal.WithLabelValues("tiles").Add(float64(len(body)))
	}
	return body, nil
}

func (proxy *Proxy) countCache(result string) {
	if proxy.metrics != nil {
		proxy.metrics.TileCacheTotal.WithLabelValues(result).Inc()
	}
}

func (proxy *Proxy) countError() {
	if proxy.metrics != nil {
		proxy.metrics.HttpErrorsTotal.WithLabelValues("tiles").Inc()
	}
}

// ServeHTTP handles routes shaped like /tiles/{z}/{x}/{y}.
func (proxy *Proxy) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	key, err := ParseTileKey(
		chi.URLParam(request, "z"),
		chi.URLParam(request, "x"),
		chi.URLParam(request, "y"),
		proxy.options.MaxZoom,
	)
	if errors.Is(err, ErrTileOutOfRange) {
		http.NotFound(writer, request)
		return
	}
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	tile, err := proxy.Tile(request.Context(), key)
	if err != nil {
		glog.Warningf("tile %s: %v", key, err)
		http.Error(writer, "upstream tile unavailable", http.StatusBadGateway)
		return
	}

	writer.Header().Set("Content-Type", "image/png")
	writer.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = writer.Write(tile)
}

package common

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryServerExposesMetrics(t *testing.T) {
	telemetry := NewTelemetryServer("")
	metrics := NewMetrics(telemetry.GetRegistry())
	metrics.HttpBytesTotal.WithLabelValues("vehicle_positions").Add(42)
	metrics.TileCacheTotal.WithLabelValues("hit").Inc()

	server := httptest.NewServer(telemetry.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `transit_http_bytes_total{endpoint="vehicle_positions"} 42`)
	assert.Contains(t, string(body), `transit_tile_cache_total{result="hit"} 1`)
	assert.Contains(t, string(body), "transit_build_info")
}

func TestTelemetryServerWithoutAddressDoesNotListen(t *testing.T) {
	telemetry := NewTelemetryServer("")
	require.NoError(t, telemetry.Start())
	require.NoError(t, telemetry.Stop())
}

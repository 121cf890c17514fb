package transit_web

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarediiran-industries.com/transit-map/internal/config"
	"tarediiran-industries.com/transit-map/internal/tiles"
)

func TestParseArgsFlags(t *testing.T) {
	t.Setenv(config.DatabaseEnv, "")
	var errOut bytes.Buffer

	cfg, err := ParseArgs("transit-web", []string{"-database", "sqlite://x.db", "-agency", "wmata", "-listen", ":9000"}, &errOut)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddress)
	assert.Equal(t, tiles.DefaultWeights(), cfg.TileWeights)
	assert.Equal(t, time.Second, cfg.RefreshPeriod)

	_, err = ParseArgs("transit-web", []string{"-agency", "wmata"}, &errOut)
	assert.ErrorContains(t, err, "database")
}

func TestParseArgsDatabaseFromEnv(t *testing.T) {
	t.Setenv(config.DatabaseEnv, "postgres://localhost/transit")

	cfg, err := ParseArgs("transit-web", []string{"-agency", "wmata"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/transit", cfg.DatabaseConnection)
}

func TestParseArgsConfigFile(t *testing.T) {
	t.Setenv(config.DatabaseEnv, "")
	path := filepath.Join(t.TempDir(), "web.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
database = "sqlite:///tmp/transit.db"
agency_id = "nashville"
refresh_ms = 2500
stale_after = "90s"

[map]
initial_latitude = 36.16
initial_longitude = -86.78
initial_zoom = 11
max_zoom = 18
upcoming_stops_to_show = 4

[tiles]
upstream = "https://tiles.example.org/{z}/{x}/{y}.png"
cache_size = 64
cache_ttl = "1h"

[tiles.weights]
red = 30
green = 59
blue = 11
`), 0o644))

	cfg, err := ParseArgs("transit-web", []string{"-config", path}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "nashville", cfg.AgencyID)
	assert.Equal(t, 4, cfg.DefaultMap.UpcomingStopsToShow)
	assert.Equal(t, 2500*time.Millisecond, cfg.RefreshPeriod)
	assert.Equal(t, 90*time.Second, cfg.StaleAfter)
	assert.Equal(t, tiles.CacheOptions{Size: 64, TTL: time.Hour}, cfg.TileCache)
	assert.Equal(t, tiles.Weights{Red: 30, Green: 59, Blue: 11}, cfg.TileWeights)
	assert.Equal(t, "https://tiles.example.org/{z}/{x}/{y}.png", cfg.TileUpstream)
}

func TestParseArgsRejectsBadMapConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: sqlite://x.db\nagency_id: a\nmap:\n  initial_latitude: 123\n"), 0o644))

	_, err := ParseArgs("transit-web", []string{"-toml", path}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestMainVersion(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 0, Main("transit-web", []string{"-version"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "transit-web: version")

	assert.Equal(t, -1, Main("transit-web", []string{"-bogus"}, &out, &errOut))
}

func TestParseUpcomingStopsQuery(t *testing.T) {
	query, err := ParseUpcomingStopsQuery("T%2F1", "3", "500")
	require.NoError(t, err)
	assert.Equal(t, UpcomingStopsQuery{TripID: "T/1", CurrentStopSequence: 3, Count: 50}, query)

	_, err = ParseUpcomingStopsQuery(" ", "3", "5")
	assert.Error(t, err)
	_, err = ParseUpcomingStopsQuery("T1", "3.5", "5")
	assert.Error(t, err)
}

func TestBuildHealthVM(t *testing.T) {
	assert.Equal(t, "no data", BuildHealthVM(0, time.Unix(10, 0), time.Minute).Status)
	assert.Equal(t, "ok", BuildHealthVM(10, time.Unix(1000, 0), 0).Status)
	assert.Equal(t, "16m ago", BuildHealthVM(10, time.Unix(1000, 0), 0).Age)
}

package transit_web

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/config"
	"tarediiran-industries.com/transit-map/internal/store"
	"tarediiran-industries.com/transit-map/internal/tiles"
)

// ConfigFile is the on-disk shape of -toml / -config.
type ConfigFile struct {
	ListenAddress      string `toml:"listen" yaml:"listen"`
	DatabaseConnection string `toml:"database" yaml:"database"`
	AgencyID           string `toml:"agency_id" yaml:"agency_id"`
	TelemetryAddress   string `toml:"telemetry" yaml:"telemetry"`

	Map   store.MapConfig `toml:"map" yaml:"map"`
	Tiles TilesConfig     `toml:"tiles" yaml:"tiles"`

	RefreshMillis int    `toml:"refresh_ms" yaml:"refresh_ms" validate:"gte=0"`
	StaleAfter    string `toml:"stale_after" yaml:"stale_after"`
}

type TilesConfig struct {
	Upstream  string        `toml:"upstream" yaml:"upstream"`
	MaxZoom   int           `toml:"max_zoom" yaml:"max_zoom" validate:"gte=0,lte=30"`
	CacheSize int           `toml:"cache_size" yaml:"cache_size" validate:"gte=0"`
	CacheTTL  string        `toml:"cache_ttl" yaml:"cache_ttl"`
	Weights   tiles.Weights `toml:"weights" yaml:"weights"`
}

type Config struct {
	Version bool

	// Config file path, TOML or YAML. File values override flags.
	ConfigPath string

	ListenAddress      string
	DatabaseConnection string
	AgencyID           string
	TelemetryAddress   string
	Verbosity          int

	// Served by /api/config when the agency has no stored map config.
	DefaultMap store.MapConfig

	TileUpstream string
	TileMaxZoom  int
	TileWeights  tiles.Weights
	TileCache    tiles.CacheOptions

	RefreshPeriod time.Duration
	StaleAfter    time.Duration
}

func DefaultConfig() Config {
	return Config{
		ListenAddress: ":8080",
		DefaultMap: store.MapConfig{
			InitialLatitude:     38.9072,
			InitialLongitude:    -77.0369,
			InitialZoom:         12,
			MaxZoom:             18,
			UpcomingStopsToShow: 5,
		},
		TileUpstream:  tiles.DefaultUpstream,
		TileMaxZoom:   19,
		TileWeights:   tiles.DefaultWeights(),
		TileCache:     tiles.DefaultCacheOptions(),
		RefreshPeriod: time.Second,
		StaleAfter:    5 * time.Minute,
	}
}

func (cfg *Config) applyFile(file ConfigFile) error {
	if file.ListenAddress != "" {
		cfg.ListenAddress = file.ListenAddress
	}
	if file.DatabaseConnection != "" {
		cfg.DatabaseConnection = file.DatabaseConnection
	}
	if file.AgencyID != "" {
		cfg.AgencyID = file.AgencyID
	}
	if file.TelemetryAddress != "" {
		cfg.TelemetryAddress = file.TelemetryAddress
	}
	if file.Map != (store.MapConfig{}) {
		cfg.DefaultMap = file.Map
	}

	if file.Tiles.Upstream != "" {
		cfg.TileUpstream = file.Tiles.Upstream
	}
	if file.Tiles.MaxZoom > 0 {
		cfg.TileMaxZoom = file.Tiles.MaxZoom
	}
	if file.Tiles.CacheSize > 0 {
		cfg.TileCache.Size = file.Tiles.CacheSize
	}
	if file.Tiles.CacheTTL != "" {
		ttl, err := time.ParseDuration(file.Tiles.CacheTTL)
		if err != nil {
			return fmt.Errorf("tiles.cache_ttl: %w", err)
		}
		cfg.TileCache.TTL = ttl
	}
	if !file.Tiles.Weights.IsZero() {
		cfg.TileWeights = file.Tiles.Weights
	}

	if file.RefreshMillis > 0 {
		cfg.RefreshPeriod = time.Duration(file.RefreshMillis) * time.Millisecond
	}
	if file.StaleAfter != "" {
		staleAfter, err := time.ParseDuration(file.StaleAfter)
		if err != nil {
			return fmt.Errorf("stale_after: %w", err)
		}
		cfg.StaleAfter = staleAfter
	}
	return nil
}

func ParseArgs(programName string, args []string, errOut io.Writer) (Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(errOut)

	fs.Usage = func() {
		fmt.Fprintf(errOut, "Usage: %s [options]\n\n", programName)
		fmt.Fprintln(errOut, "Options")
		fs.PrintDefaults()
	}

	fs.BoolVar(&cfg.Version, "version", false, "Prints CLI version")
	fs.StringVar(&cfg.ConfigPath, "toml", "", "Configuration file (.toml, .yml or .yaml)")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Alias of -toml")

	fs.StringVar(&cfg.ListenAddress, "listen", cfg.ListenAddress, "HTTP listen address")
	fs.StringVar(&cfg.DatabaseConnection, "database", "", "Database DSN (postgres://... or sqlite://path); defaults to $"+config.DatabaseEnv)
	fs.StringVar(&cfg.AgencyID, "agency", "", "Agency whose data is served")
	fs.StringVar(&cfg.TelemetryAddress, "telemetry", "", "Prometheus listen address, disabled when empty")
	fs.StringVar(&cfg.TileUpstream, "tiles-upstream", cfg.TileUpstream, "Upstream tile URL template")
	fs.IntVar(&cfg.Verbosity, "v", 0, "Log verbosity")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Version {
		fmt.Fprintf(errOut, "%s: version %s (%s)\n", programName, common.Version, common.GitCommit)
		return Config{}, flag.ErrHelp
	}

	if cfg.ConfigPath != "" {
		var file ConfigFile
		if err := config.LoadFile(cfg.ConfigPath, &file); err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if err := cfg.applyFile(file); err != nil {
			return Config{}, err
		}
	}

	cfg.DatabaseConnection = config.DatabaseFromEnv(cfg.DatabaseConnection)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.DatabaseConnection == "" {
		return fmt.Errorf("missing required argument: database (or $%s)", config.DatabaseEnv)
	}
	if cfg.AgencyID == "" {
		return fmt.Errorf("missing required argument: agency")
	}
	if cfg.ListenAddress == "" {
		return fmt.Errorf("listen address may not be empty")
	}
	if err := cfg.TileWeights.Validate(); err != nil {
		return err
	}
	return config.Validate(cfg.DefaultMap)
}

func Main(programName string, args []string, out, errOut io.Writer) int {
	cfg, err := ParseArgs(programName, args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(errOut, "Error:", err)
		return -1
	}

	common.InitLogging(cfg.Verbosity)
	defer common.FlushLogs()

	return Run(cfg)
}

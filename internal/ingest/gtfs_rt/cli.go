package gtfs_rt

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/config"
	"tarediiran-industries.com/transit-map/internal/store"
)

const DefaultInterval = 15 * time.Second

// FeedConfig is one GTFS-RT endpoint.
type FeedConfig struct {
	Name string         `toml:"name" yaml:"name"`
	Kind store.FeedKind `toml:"kind" yaml:"kind" validate:"required,oneof=vehicle_positions trip_updates"`
	Url  string         `toml:"url" yaml:"url" validate:"required,url"`

	// Optional API key header. HeaderValueEnv names an environment variable
	// holding the value so keys stay out of config files.
	HeaderName     string `toml:"header_name" yaml:"header_name"`
	HeaderValue    string `toml:"header_value" yaml:"header_value"`
	HeaderValueEnv string `toml:"header_value_env" yaml:"header_value_env"`
}

// Label names the feed in metrics, logs and stored rows.
func (feed FeedConfig) Label() string {
	if feed.Name != "" {
		return feed.Name
	}
	return string(feed.Kind)
}

type ConfigFile struct {
	Feeds              []FeedConfig `toml:"feeds" yaml:"feeds" validate:"dive"`
	DatabaseConnection string       `toml:"database" yaml:"database"`
	AgencyID           string       `toml:"agency_id" yaml:"agency_id"`
	Interval           string       `toml:"interval" yaml:"interval"`
	Retention          string       `toml:"retention" yaml:"retention"`
	TelemetryAddress   string       `toml:"telemetry" yaml:"telemetry"`
}

type Config struct {
	Version            bool
	ConfigPath         string
	Feeds              []FeedConfig
	DatabaseConnection string
	AgencyID           string
	Interval           time.Duration

	// Rows older than Retention are pruned after each cycle; zero keeps all.
	Retention        time.Duration
	TelemetryAddress string
	Verbosity        int
}

func ParseArgs(programName string, args []string, errOut io.Writer) (Config, error) {
	cfg := Config{Interval: DefaultInterval}

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
	fs.StringVar(&cfg.DatabaseConnection, "database", "", "Database DSN; defaults to $"+config.DatabaseEnv)
	fs.StringVar(&cfg.AgencyID, "agency", "", "Agency the feeds belong to")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Polling interval")
	fs.DurationVar(&cfg.Retention, "retention", 0, "Prune realtime rows older than this (0 keeps everything)")
	fs.StringVar(&cfg.TelemetryAddress, "telemetry", "", "Prometheus listen address, disabled when empty")
	fs.IntVar(&cfg.Verbosity, "v", 0, "Log verbosity")

	fs.Func("vehicle-positions", "VehiclePositions feed URL (repeatable)", func(url string) error {
		cfg.Feeds = append(cfg.Feeds, FeedConfig{Kind: store.FeedVehiclePositions, Url: url})
		return nil
	})
	fs.Func("trip-updates", "TripUpdates feed URL (repeatable)", func(url string) error {
		cfg.Feeds = append(cfg.Feeds, FeedConfig{Kind: store.FeedTripUpdates, Url: url})
		return nil
	})

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Version {
		fmt.Fprintf(errOut, "%s: version %s (%s)\n", programName, common.Version, common.GitCommit)
		return cfg, flag.ErrHelp
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
	for i := range cfg.Feeds {
		if cfg.Feeds[i].HeaderValueEnv != "" && cfg.Feeds[i].HeaderValue == "" {
			cfg.Feeds[i].HeaderValue = os.Getenv(cfg.Feeds[i].HeaderValueEnv)
		}
	}
	nameFeeds(cfg.Feeds)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (cfg *Config) applyFile(file ConfigFile) error {
	cfg.Feeds = append(cfg.Feeds, file.Feeds...)
	if file.DatabaseConnection != "" {
		cfg.DatabaseConnection = file.DatabaseConnection
	}
	if file.AgencyID != "" {
		cfg.AgencyID = file.AgencyID
	}
	if file.TelemetryAddress != "" {
		cfg.TelemetryAddress = file.TelemetryAddress
	}

	var err error
	if file.Interval != "" {
		if cfg.Interval, err = time.ParseDuration(file.Interval); err != nil {
			return fmt.Errorf("interval: %w", err)
		}
	}
	if file.Retention != "" {
		if cfg.Retention, err = time.ParseDuration(file.Retention); err != nil {
			return fmt.Errorf("retention: %w", err)
		}
	}
	return nil
}

// nameFeeds numbers unnamed feeds of a kind that has several of them, so
// each feed keeps its own label.
func nameFeeds(feeds []FeedConfig) {
	unnamed := map[store.FeedKind]int{}
	for _, feed := range feeds {
		if feed.Name == "" {
			unnamed[feed.Kind]++
		}
	}

	seen := map[store.FeedKind]int{}
	for i := range feeds {
		if feeds[i].Name != "" || unnamed[feeds[i].Kind] < 2 {
			continue
		}
		seen[feeds[i].Kind]++
		feeds[i].Name = fmt.Sprintf("%s-%d", feeds[i].Kind, seen[feeds[i].Kind])
	}
}

func (cfg Config) Validate() error {
	if len(cfg.Feeds) == 0 {
		return fmt.Errorf("need at least one feed URL to poll")
	}
	labels := map[string]bool{}
	for _, feed := range cfg.Feeds {
		if labels[feed.Label()] {
			return fmt.Errorf("feed %s: label used by another feed", feed.Label())
		}
		labels[feed.Label()] = true

		if !feed.Kind.Valid() {
			return fmt.Errorf("feed %s: unknown kind %q", feed.Label(), feed.Kind)
		}
		if feed.Url == "" {
			return fmt.Errorf("feed %s: missing url", feed.Label())
		}
	}
	if cfg.DatabaseConnection == "" {
		return fmt.Errorf("missing required argument: database")
	}
	if cfg.AgencyID == "" {
		return fmt.Errorf("missing required argument: agency")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	return nil
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

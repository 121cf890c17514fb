package gtfs_static

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/config"
)

type ConfigFile struct {
	DefaultUrl      string `toml:"default_url" yaml:"default_url" validate:"omitempty,url"`
	DefaultDatabase string `toml:"default_database" yaml:"default_database"`
	AgencyID        string `toml:"agency_id" yaml:"agency_id"`
	NetworkPath     string `toml:"network" yaml:"network"`
	MapConfigPath   string `toml:"map_config" yaml:"map_config"`
}

type Config struct {
	Version bool

	// Config file path - values found there override the matching flags
	ConfigPath string

	// Input args - either can accept from zip or url (but not both)
	ZipPath string
	Url     string

	// Output args - either can dry-run or write to a database connection
	DryRun             bool
	DatabaseConnection string

	// Only create the schema when no input is given
	CreateTables bool

	AgencyID      string
	NetworkPath   string
	MapConfigPath string
	Verbosity     int
}

func ParseArgs(programName string, args []string, errOut io.Writer) (Config, error) {
	var cfg Config

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
	fs.StringVar(&cfg.ZipPath, "zip", "", "Path to zip file for offline ingest")
	fs.StringVar(&cfg.Url, "url", "", "Path to GTFS URL for online ingest")

	fs.BoolVar(&cfg.DryRun, "dry-run", false, "If specified, shows what would be ingested without performing any DB writes")
	fs.StringVar(&cfg.DatabaseConnection, "database", "", "Target database DSN; defaults to $"+config.DatabaseEnv)
	fs.BoolVar(&cfg.CreateTables, "create-tables", false, "Create the schema; with no -zip/-url nothing else is done")

	fs.StringVar(&cfg.AgencyID, "agency", "", "Agency id the feed is stored under (defaults to the first agency_id in agency.txt)")
	fs.StringVar(&cfg.NetworkPath, "network", "", "GeoJSON network file; generated from stops.txt when omitted")
	fs.StringVar(&cfg.MapConfigPath, "map-config", "", "Map view file (.toml, .yml or .yaml)")
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

		if file.DefaultUrl != "" && cfg.ZipPath == "" {
			cfg.Url = file.DefaultUrl
		}
		if file.DefaultDatabase != "" {
			cfg.DatabaseConnection = file.DefaultDatabase
		}
		if file.AgencyID != "" {
			cfg.AgencyID = file.AgencyID
		}
		if file.NetworkPath != "" {
			cfg.NetworkPath = file.NetworkPath
		}
		if file.MapConfigPath != "" {
			cfg.MapConfigPath = file.MapConfigPath
		}
	}

	if !cfg.DryRun {
		cfg.DatabaseConnection = config.DatabaseFromEnv(cfg.DatabaseConnection)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (cfg Config) Validate() error {
	hasZipPath := cfg.ZipPath != ""
	hasUrl := cfg.Url != ""
	hasDatabaseConnection := cfg.DatabaseConnection != ""

	if cfg.CreateTables && !hasZipPath && !hasUrl {
		if !hasDatabaseConnection {
			return fmt.Errorf("-create-tables needs -database")
		}
		return nil
	}

	if hasZipPath == hasUrl {
		return fmt.Errorf("exactly one of -zip or -url must be specified")
	}
	if hasDatabaseConnection == cfg.DryRun {
		return fmt.Errorf("exactly one of -dry-run or -database must be specified")
	}

	return nil
}

// SchemaOnly reports whether the run only creates tables.
func (cfg Config) SchemaOnly() bool {
	return cfg.CreateTables && cfg.ZipPath == "" && cfg.Url == ""
}

func Main(programName string, args []string, stdOut, errOut io.Writer) int {
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

	if err := Run(cfg, stdOut); err != nil {
		fmt.Fprintln(errOut, "Error:", err)
		return 1
	}
	return 0
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DatabaseEnv supplies the database DSN when neither a flag nor a config
// file does.
const DatabaseEnv = "TRANSIT_DATABASE"

var validate = validator.New()

// LoadFile decodes a .toml, .yml or .yaml file into out and validates it.
func LoadFile(path string, out any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", "":
		if _, err := toml.DecodeFile(path, out); err != nil {
			return fmt.Errorf("toml decode %s: %w", path, err)
		}
	case ".yml", ".yaml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("yaml decode %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file type: %s", path)
	}

	return Validate(out)
}

func Validate(cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DatabaseFromEnv returns value unless it is empty, in which case the
// TRANSIT_DATABASE environment variable is used.
func DatabaseFromEnv(value string) string {
	if value != "" {
		return value
	}
	return os.Getenv(DatabaseEnv)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Listen   string   `toml:"listen" yaml:"listen" validate:"required"`
	Zoom     int      `toml:"zoom" yaml:"zoom" validate:"gte=0,lte=22"`
	Urls     []string `toml:"urls" yaml:"urls" validate:"dive,url"`
	Optional string   `toml:"optional" yaml:"optional"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileToml(t *testing.T) {
	path := writeFile(t, "server.toml", `
listen = ":8080"
zoom = 10
urls = ["https://example.com/feed.pb"]
`)

	var cfg sampleConfig
	require.NoError(t, LoadFile(path, &cfg))
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 10, cfg.Zoom)
	assert.Equal(t, []string{"https://example.com/feed.pb"}, cfg.Urls)
}

func TestLoadFileYaml(t *testing.T) {
	path := writeFile(t, "server.yaml", "listen: \":9090\"\nzoom: 3\n")

	var cfg sampleConfig
	require.NoError(t, LoadFile(path, &cfg))
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 3, cfg.Zoom)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	path := writeFile(t, "bad.toml", `zoom = 40`)

	var cfg sampleConfig
	err := LoadFile(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadFileUnknownExtension(t *testing.T) {
	path := writeFile(t, "cfg.json", `{}`)

	var cfg sampleConfig
	assert.Error(t, LoadFile(path, &cfg))
}

func TestDatabaseFromEnv(t *testing.T) {
	t.Setenv(DatabaseEnv, "sqlite:///tmp/transit.db")
	assert.Equal(t, "postgres://x", DatabaseFromEnv("postgres://x"))
	assert.Equal(t, "sqlite:///tmp/transit.db", DatabaseFromEnv(""))
}

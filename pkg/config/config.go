// Package config loads Veldt configuration from a YAML file with
// VELDT_-prefixed environment overrides.
//
// Example:
//
//	cfg, err := config.Load("veldt.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	db, err := veldt.Open(cfg.DatabaseOptions())
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/veldtdb/veldt/pkg/graph"
)

// Config is the full configuration surface.
type Config struct {
	// DatabasePath is the SQLite file location.
	DatabasePath string `yaml:"database_path"`
	// DataDir holds file-backed vector index directories.
	DataDir string `yaml:"data_dir"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
	// Index seeds defaults for per-graph vector index configuration.
	Index IndexDefaults `yaml:"index"`
}

// IndexDefaults fills zero-valued fields of a graph's index
// configuration at enable time.
type IndexDefaults struct {
	M              int `yaml:"m"`
	Ef             int `yaml:"ef"`
	EfConstruction int `yaml:"ef_construction"`
	Threshold      int `yaml:"threshold"`
	Dimensions     int `yaml:"dimensions"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DatabasePath: "./veldt.db",
		DataDir:      "./data",
		LogLevel:     "info",
		Index: IndexDefaults{
			M:              16,
			Ef:             100,
			EfConstruction: 200,
			Threshold:      1000,
		},
	}
}

// Load reads the YAML file at path, then applies environment overrides.
// An empty path loads defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(payload, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VELDT_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("VELDT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("VELDT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("VELDT_INDEX_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.Threshold = n
		}
	}
	if v := os.Getenv("VELDT_INDEX_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.Dimensions = n
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.Index.M < 0 || c.Index.Ef < 0 || c.Index.EfConstruction < 0 || c.Index.Threshold < 0 {
		return fmt.Errorf("index defaults must not be negative")
	}
	return nil
}

// IndexConfig converts the defaults into a per-graph template.
func (c *Config) IndexConfig() graph.VectorIndexConfig {
	return graph.VectorIndexConfig{
		M:              c.Index.M,
		Ef:             c.Index.Ef,
		EfConstruction: c.Index.EfConstruction,
		Threshold:      c.Index.Threshold,
		Dimensions:     c.Index.Dimensions,
	}
}

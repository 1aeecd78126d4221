package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Listen       string `yaml:"listen"`
	DataDir      string `yaml:"data_dir"`
	DBPath       string `yaml:"db_path"`
	ObsDBPath    string `yaml:"observability_db_path"`
	MaxUploadMB  int    `yaml:"max_upload_mb"`
	MaxPages     int    `yaml:"max_pages"`
	OutputTTLMin int    `yaml:"output_ttl_minutes"`
	CORSOrigin   string `yaml:"cors_origin"`
	LogLevel     string `yaml:"log_level"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:       ":8080",
		DataDir:      "data/documents",
		DBPath:       "data/documents.db",
		ObsDBPath:    "data/observability.db",
		MaxUploadMB:  50,
		MaxPages:     5000,
		OutputTTLMin: 60,
		CORSOrigin:   "*",
		LogLevel:     "info",
	}
}

// LoadConfig reads a YAML config file merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive")
	}
	if c.OutputTTLMin <= 0 {
		return fmt.Errorf("output_ttl_minutes must be positive")
	}
	return nil
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }

// OutputTTL returns the composed-output retention window.
func (c *Config) OutputTTL() time.Duration { return time.Duration(c.OutputTTLMin) * time.Minute }

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the optional CLI configuration file, by default at
// ~/.evaldb/config.yaml.
type Config struct {
	// LogLevel sets the default log level (overridden by --log-level).
	LogLevel string `yaml:"log_level"`

	// CacheSize bounds the read cache of opened databases.
	CacheSize int `yaml:"cache_size"`

	// Aliases maps short names to backend descriptors, so commands can
	// say "prod" instead of "s3:bucket=eval-data,region=eu-north-1".
	Aliases map[string]string `yaml:"aliases"`
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".evaldb", "config.yaml")
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing default file yields an empty config; a missing
// explicit file is an error.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath()
	}
	if path == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// Resolve expands a config alias to its descriptor, passing unknown names
// through unchanged.
func (c *Config) Resolve(name string) string {
	if d, ok := c.Aliases[name]; ok {
		return d
	}
	return name
}

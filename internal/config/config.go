// Package config loads the optional YAML configuration file for the
// tenantdb CLI. Flags and environment variables take precedence; the file
// only fills in what they leave blank.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for the routing core.
type Config struct {
	// DirectoryDSN is the connection string of the directory store.
	DirectoryDSN string `yaml:"directory_dsn"`

	// AdminDSN is the connection string used for CREATE DATABASE. Must
	// connect as a role with CREATEDB; defaults to DirectoryDSN.
	AdminDSN string `yaml:"admin_dsn"`

	// StoreNamePrefix is the prefix of default tenant store names.
	StoreNamePrefix string `yaml:"store_name_prefix"`

	Pool PoolConfig `yaml:"pool"`
}

// PoolConfig mirrors the connection pool knobs.
type PoolConfig struct {
	MaxConns        int32 `yaml:"max_conns"`
	MinConns        int32 `yaml:"min_conns"`
	MaxConnLifetime int32 `yaml:"max_conn_lifetime"`
	MaxConnIdleTime int32 `yaml:"max_conn_idle_time"`
	ConnectTimeout  int32 `yaml:"connect_timeout"`
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// AdminDSNOrDefault returns the admin DSN, falling back to the directory
// DSN under the single-server contract.
func (c *Config) AdminDSNOrDefault() string {
	if c.AdminDSN != "" {
		return c.AdminDSN
	}
	return c.DirectoryDSN
}

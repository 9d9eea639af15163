//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-starschema.
// Configuration is loaded from config files and CLI flags (no environment variables).
// CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/pgEdge/pgedge-starschema/internal/northwind"
)

// Supported source drivers.
const (
	DriverSQLServer = "sqlserver"
	DriverPostgres  = "postgres"
)

// Config holds all configuration for pgedge-starschema.
type Config struct {
	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// LogFormat is "console" or "json".
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// Primary is the transactional source. Its rows win every conflict.
	Primary SourceConfig `mapstructure:"primary" yaml:"primary"`

	// Secondary is the partially-overlapping source. Optional.
	Secondary SourceConfig `mapstructure:"secondary" yaml:"secondary"`

	// Notes is the customer notes feed. Optional.
	Notes NotesConfig `mapstructure:"notes" yaml:"notes"`

	// Warehouse is the PostgreSQL star-schema target.
	Warehouse WarehouseConfig `mapstructure:"warehouse" yaml:"warehouse"`

	// Output controls CSV artifacts.
	Output OutputConfig `mapstructure:"output" yaml:"output"`

	// Transform holds consolidation policy.
	Transform TransformConfig `mapstructure:"transform" yaml:"transform"`

	// Metrics holds run metrics settings.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Seed holds configuration for the seed subcommand.
	Seed SeedConfig `mapstructure:"seed" yaml:"seed"`
}

// SourceConfig describes one relational source.
type SourceConfig struct {
	// Driver is "sqlserver" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Connection is the driver connection string. An empty connection
	// disables an optional source.
	Connection string `mapstructure:"connection" yaml:"connection"`

	// Tables maps logical table names (Orders, OrderDetails, ...) to
	// physical names where they differ.
	Tables map[string]string `mapstructure:"tables" yaml:"tables,omitempty"`
}

// Enabled reports whether the source is configured.
func (s SourceConfig) Enabled() bool {
	return s.Connection != ""
}

// NotesConfig describes the customer notes feed.
type NotesConfig struct {
	SourceConfig `mapstructure:",squash" yaml:",inline"`

	// Query returns CustomerID and Notes columns.
	Query string `mapstructure:"query" yaml:"query"`
}

// WarehouseConfig describes the load target.
type WarehouseConfig struct {
	// Connection is the PostgreSQL connection string.
	Connection string `mapstructure:"connection" yaml:"connection"`

	// Schema is the target schema for star-schema tables.
	Schema string `mapstructure:"schema" yaml:"schema"`

	// StagingTable is the staging relation used for the fact swap.
	StagingTable string `mapstructure:"staging_table" yaml:"staging_table"`
}

// OutputConfig controls delimited file artifacts.
type OutputConfig struct {
	// RawDir receives one file per extracted source table.
	RawDir string `mapstructure:"raw_dir" yaml:"raw_dir"`

	// CleanDir receives one file per dimension and fact table.
	CleanDir string `mapstructure:"clean_dir" yaml:"clean_dir"`

	// Delimiter is the field separator (a single character).
	Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
}

// TransformConfig holds consolidation policy.
type TransformConfig struct {
	// DedupOrders deduplicates orders across sources by OrderID with
	// primary priority.
	DedupOrders bool `mapstructure:"dedup_orders" yaml:"dedup_orders"`
}

// MetricsConfig holds run metrics settings.
type MetricsConfig struct {
	// PushgatewayURL is the Prometheus Pushgateway to push run gauges to.
	// Empty disables pushing.
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url"`

	// Job is the Pushgateway job label.
	Job string `mapstructure:"job" yaml:"job"`
}

// SeedConfig holds configuration for demo source generation.
type SeedConfig struct {
	// Customers is the number of customers generated in the primary source.
	Customers int `mapstructure:"customers" yaml:"customers"`

	// Products is the number of products generated in the primary source.
	Products int `mapstructure:"products" yaml:"products"`

	// Orders is the number of orders generated in the primary source.
	Orders int `mapstructure:"orders" yaml:"orders"`

	// Overlap is the fraction (0-1) of secondary rows that reuse primary
	// keys with conflicting values.
	Overlap float64 `mapstructure:"overlap" yaml:"overlap"`

	// RandomSeed makes generation reproducible. 0 means random.
	RandomSeed uint64 `mapstructure:"random_seed" yaml:"random_seed"`

	// DropExisting drops existing source tables before seeding.
	DropExisting bool `mapstructure:"drop_existing" yaml:"drop_existing"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Primary: SourceConfig{
			Driver: DriverSQLServer,
		},
		Secondary: SourceConfig{
			Driver: DriverPostgres,
		},
		Notes: NotesConfig{
			SourceConfig: SourceConfig{Driver: DriverPostgres},
			Query:        northwind.DefaultNotesQuery,
		},
		Warehouse: WarehouseConfig{
			Schema:       "public",
			StagingTable: "stg_fact_sales",
		},
		Output: OutputConfig{
			RawDir:    "data/raw",
			CleanDir:  "data/clean",
			Delimiter: ";",
		},
		Transform: TransformConfig{
			DedupOrders: true,
		},
		Metrics: MetricsConfig{
			Job: "pgedge_starschema",
		},
		Seed: SeedConfig{
			Customers: 90,
			Products:  77,
			Orders:    830,
			Overlap:   0.2,
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-starschema.yaml
// 3. ~/.config/pgedge-starschema/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("pgedge-starschema")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-starschema"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

func validDriver(d string) bool {
	return d == DriverSQLServer || d == DriverPostgres
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if !c.Primary.Enabled() {
		return fmt.Errorf("primary source connection is required")
	}
	if !validDriver(c.Primary.Driver) {
		return fmt.Errorf("primary driver must be '%s' or '%s'", DriverSQLServer, DriverPostgres)
	}
	if c.Secondary.Enabled() && !validDriver(c.Secondary.Driver) {
		return fmt.Errorf("secondary driver must be '%s' or '%s'", DriverSQLServer, DriverPostgres)
	}
	if c.Notes.Enabled() {
		if !validDriver(c.Notes.Driver) {
			return fmt.Errorf("notes driver must be '%s' or '%s'", DriverSQLServer, DriverPostgres)
		}
		if strings.TrimSpace(c.Notes.Query) == "" {
			return fmt.Errorf("notes query is required when the notes source is configured")
		}
	}
	if len([]rune(c.Output.Delimiter)) != 1 {
		return fmt.Errorf("output delimiter must be a single character")
	}
	return nil
}

// ValidateRun checks configuration required for the run command.
func (c *Config) ValidateRun(skipLoad bool) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !skipLoad {
		if c.Warehouse.Connection == "" {
			return fmt.Errorf("warehouse connection is required (or use --skip-load)")
		}
		if c.Warehouse.StagingTable == "" {
			return fmt.Errorf("warehouse staging_table is required")
		}
	}
	return nil
}

// ValidateSeed checks configuration required for the seed command. Only
// PostgreSQL sources can be seeded.
func (c *Config) ValidateSeed() error {
	if !c.Primary.Enabled() {
		return fmt.Errorf("primary source connection is required")
	}
	if c.Primary.Driver != DriverPostgres {
		return fmt.Errorf("seed requires a postgres primary source, got '%s'", c.Primary.Driver)
	}
	if c.Secondary.Enabled() && c.Secondary.Driver != DriverPostgres {
		return fmt.Errorf("seed requires a postgres secondary source, got '%s'", c.Secondary.Driver)
	}
	if c.Notes.Enabled() && c.Notes.Driver != DriverPostgres {
		return fmt.Errorf("seed requires a postgres notes source, got '%s'", c.Notes.Driver)
	}
	if c.Seed.Customers < 1 || c.Seed.Products < 1 || c.Seed.Orders < 1 {
		return fmt.Errorf("seed customers, products and orders must be at least 1")
	}
	if c.Seed.Overlap < 0 || c.Seed.Overlap > 1 {
		return fmt.Errorf("seed overlap must be between 0 and 1")
	}
	return nil
}

// Redacted returns a copy with connection strings reduced to their
// non-secret parts.
func (c *Config) Redacted() *Config {
	out := *c
	out.Primary.Connection = redact(c.Primary.Connection)
	out.Secondary.Connection = redact(c.Secondary.Connection)
	out.Notes.Connection = redact(c.Notes.Connection)
	out.Warehouse.Connection = redact(c.Warehouse.Connection)
	return &out
}

// redact masks the password of URL-style connection strings and
// "password=" pairs of key/value ones.
func redact(conn string) string {
	if conn == "" {
		return ""
	}
	if i := strings.Index(conn, "://"); i >= 0 {
		rest := conn[i+3:]
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			userinfo := rest[:at]
			if colon := strings.Index(userinfo, ":"); colon >= 0 {
				return conn[:i+3] + userinfo[:colon] + ":xxxxx" + rest[at:]
			}
		}
		return conn
	}
	parts := strings.FieldsFunc(conn, func(r rune) bool { return r == ';' || r == ' ' })
	for i, p := range parts {
		if k, _, ok := strings.Cut(p, "="); ok && strings.EqualFold(strings.TrimSpace(k), "password") {
			parts[i] = k + "=xxxxx"
		}
	}
	return strings.Join(parts, " ")
}

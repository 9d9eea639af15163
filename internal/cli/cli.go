//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for pgedge-starschema.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pgEdge/pgedge-starschema/internal/config"
	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/source"
	"github.com/pgEdge/pgedge-starschema/internal/warehouse"
	"github.com/pgEdge/pgedge-starschema/pkg/version"
)

var (
	// Global flags
	cfgFile             string
	primaryConnection   string
	secondaryConnection string
	warehouseConnection string
	logLevel            string
	logFormat           string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "pgedge-starschema",
		Short: "Consolidate two order-management sources into a star schema",
		Long: `pgedge-starschema is a batch ETL job. It extracts Northwind-style
order data from a primary source and a partially-overlapping secondary
source, reconciles them with primary-source priority, builds a date
dimension, five entity dimensions and a sales fact table, writes every
table to delimited files and replaces the star schema in PostgreSQL.

Each run rebuilds every table in full.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./pgedge-starschema.yaml)")
	rootCmd.PersistentFlags().StringVar(&primaryConnection, "primary", "",
		"primary source connection string")
	rootCmd.PersistentFlags().StringVar(&secondaryConnection, "secondary", "",
		"secondary source connection string")
	rootCmd.PersistentFlags().StringVar(&warehouseConnection, "warehouse", "",
		"warehouse PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (console, json)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(lastRunCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if primaryConnection != "" {
		cfg.Primary.Connection = primaryConnection
	}
	if secondaryConnection != "" {
		cfg.Secondary.Connection = secondaryConnection
	}
	if warehouseConnection != "" {
		cfg.Warehouse.Connection = warehouseConnection
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logging.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List source and output tables",
	Long: `List the logical source tables with the physical names each source
is read from, and the star-schema tables with their columns.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("Source drivers: %s\n", strings.Join(source.Drivers(), ", "))
		cmd.Println()
		cmd.Println("Source tables (logical -> primary / secondary):")
		shared := make(map[string]bool)
		for _, name := range northwind.SharedTables {
			shared[name] = true
		}
		for _, name := range northwind.SourceTables {
			secondary := "-"
			if shared[name] {
				secondary = northwind.PhysicalName(name, cfg.Secondary.Tables)
			}
			cmd.Printf("  %-14s %s / %s\n", name, northwind.PhysicalName(name, cfg.Primary.Tables), secondary)
		}
		cmd.Println()
		cmd.Println("Output tables:")
		for _, name := range northwind.OutputTables {
			def, _ := warehouse.Definition(name)
			key := def.Key
			if key == "" {
				key = "no key"
			}
			cmd.Printf("  %-14s (%s) %s\n", name, key, strings.Join(def.ColumnNames(), ", "))
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging the config file and command-line
flags. Passwords in connection strings are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		cmd.Print(string(out))
		return nil
	},
}

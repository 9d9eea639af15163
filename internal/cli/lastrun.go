//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-starschema/internal/db"
)

var lastRunKey string

var lastRunCmd = &cobra.Command{
	Use:   "last-run",
	Short: "Show the metadata recorded by the last loaded run",
	Long: `Read the run metadata table in the warehouse schema and print the
run id, version, finish time and loaded row count per table of the last
run that reached the load stage.

Example:
  pgedge-starschema last-run --warehouse "postgres://localhost/dw"
  pgedge-starschema last-run --key rows.FactSales`,
	RunE: runLastRun,
}

func init() {
	lastRunCmd.Flags().StringVar(&lastRunKey, "key", "",
		"print only the value of this metadata key")
}

func runLastRun(cmd *cobra.Command, args []string) error {
	if cfg.Warehouse.Connection == "" {
		return fmt.Errorf("warehouse connection is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := db.Connect(ctx, "warehouse", cfg.Warehouse.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer pool.Close()

	if lastRunKey != "" {
		value, err := db.GetMetadataValue(ctx, pool, cfg.Warehouse.Schema, lastRunKey)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("no metadata recorded for key %q", lastRunKey)
		}
		if err != nil {
			return fmt.Errorf("failed to read run metadata: %w", err)
		}
		cmd.Println(value)
		return nil
	}

	md, err := db.GetAllMetadata(ctx, pool, cfg.Warehouse.Schema)
	if err != nil {
		return fmt.Errorf("failed to read run metadata: %w", err)
	}
	if len(md) == 0 {
		return fmt.Errorf("no run has been loaded into schema %s", cfg.Warehouse.Schema)
	}
	printMetadata(cmd.OutOrStdout(), md)
	return nil
}

// printMetadata writes one "key: value" line per entry, sorted by key.
func printMetadata(w io.Writer, md map[string]string) {
	keys := make([]string, 0, len(md))
	width := 0
	for k := range md {
		keys = append(keys, k)
		width = max(width, len(k))
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(w, "%-*s  %s\n", width+1, k+":", md[k])
	}
}

//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-starschema/internal/datagen"
	"github.com/pgEdge/pgedge-starschema/internal/db"
	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

var (
	seedCustomers    int
	seedProducts     int
	seedOrders       int
	seedOverlap      float64
	seedRandomSeed   uint64
	seedDropExisting bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill PostgreSQL sources with generated Northwind data",
	Long: `Create Northwind-shaped tables in the primary and secondary PostgreSQL
sources and fill them with generated data. The secondary source repeats
part of the primary data with conflicting values so that consolidation
has work to do. The customer notes feed goes to the notes source, or to
the primary source when no notes source is configured.

Example:
  pgedge-starschema seed --primary "postgres://localhost/nw1" \
      --secondary "postgres://localhost/nw2" --orders 2000 --overlap 0.25`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedCustomers, "customers", 0,
		"number of primary customers")
	seedCmd.Flags().IntVar(&seedProducts, "products", 0,
		"number of primary products")
	seedCmd.Flags().IntVar(&seedOrders, "orders", 0,
		"number of primary orders")
	seedCmd.Flags().Float64Var(&seedOverlap, "overlap", -1,
		"fraction (0-1) of primary rows repeated in the secondary source")
	seedCmd.Flags().Uint64Var(&seedRandomSeed, "seed", 0,
		"random seed for reproducible data (0 = random)")
	seedCmd.Flags().BoolVar(&seedDropExisting, "drop-existing", false,
		"drop existing source tables before seeding")
}

func runSeed(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if seedCustomers > 0 {
		cfg.Seed.Customers = seedCustomers
	}
	if seedProducts > 0 {
		cfg.Seed.Products = seedProducts
	}
	if seedOrders > 0 {
		cfg.Seed.Orders = seedOrders
	}
	if seedOverlap >= 0 {
		cfg.Seed.Overlap = seedOverlap
	}
	if seedRandomSeed != 0 {
		cfg.Seed.RandomSeed = seedRandomSeed
	}
	if seedDropExisting {
		cfg.Seed.DropExisting = true
	}

	// Validate configuration
	if err := cfg.ValidateSeed(); err != nil {
		return err
	}

	logging.Info().
		Int("customers", cfg.Seed.Customers).
		Int("products", cfg.Seed.Products).
		Int("orders", cfg.Seed.Orders).
		Float64("overlap", cfg.Seed.Overlap).
		Msg("Generating source data")

	ds := datagen.Generate(cfg.Seed.RandomSeed, datagen.Sizes{
		Customers: cfg.Seed.Customers,
		Products:  cfg.Seed.Products,
		Orders:    cfg.Seed.Orders,
		Overlap:   cfg.Seed.Overlap,
	})

	ctx, cancel := signalContext()
	defer cancel()

	primary := datagen.Tables(ds.Primary)
	notesSeparate := cfg.Notes.Enabled() && cfg.Notes.Connection != cfg.Primary.Connection
	if !notesSeparate {
		primary = append(primary, ds.Notes)
	}

	if err := seedSource(ctx, "primary", cfg.Primary.Connection, primary); err != nil {
		return err
	}
	if cfg.Secondary.Enabled() {
		if err := seedSource(ctx, "secondary", cfg.Secondary.Connection, datagen.Tables(ds.Secondary)); err != nil {
			return err
		}
	} else {
		logging.Warn().Msg("No secondary source configured; only the primary source was seeded")
	}
	if notesSeparate {
		if err := seedSource(ctx, "notes", cfg.Notes.Connection, []*table.Table{ds.Notes}); err != nil {
			return err
		}
	}

	logging.Info().
		Str("notes_query", datagen.NotesQuery).
		Msg("Source seeding complete; use notes_query as notes.query")

	return nil
}

func seedSource(ctx context.Context, role, connString string, tables []*table.Table) error {
	pool, err := db.Connect(ctx, role, connString)
	if err != nil {
		return fmt.Errorf("failed to connect to %s source: %w", role, err)
	}
	defer pool.Close()

	if err := datagen.Seed(ctx, pool, tables, cfg.Seed.DropExisting); err != nil {
		return fmt.Errorf("failed to seed %s source: %w", role, err)
	}
	return nil
}

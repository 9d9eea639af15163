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
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/pipeline"
)

var (
	runSkipLoad      bool
	runSkipFiles     bool
	runNoDedupOrders bool
	runRawDir        string
	runCleanDir      string
	runPushgateway   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract, transform and load the star schema",
	Long: `Run the full pipeline: extract every source table, write the raw
files, consolidate the sources, build the dimensions and the fact table,
write the clean files and replace the star schema in the warehouse.

A table that fails does not stop the others. The command exits non-zero
when any table failed.

Example:
  pgedge-starschema run --primary "sqlserver://sa:pw@localhost?database=Northwind" \
      --secondary "postgres://localhost/northwind2" --warehouse "postgres://localhost/dw"
  pgedge-starschema run --skip-load`,
	RunE: runRun,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract the sources and write the raw files only",
	Long: `Extract every source table and the customer notes feed and write one
raw file per table. Nothing is transformed or loaded.`,
	RunE: runExtract,
}

func init() {
	runCmd.Flags().BoolVar(&runSkipLoad, "skip-load", false,
		"build and write files without loading the warehouse")
	runCmd.Flags().BoolVar(&runSkipFiles, "skip-files", false,
		"do not write raw or clean files")
	runCmd.Flags().BoolVar(&runNoDedupOrders, "no-dedup-orders", false,
		"stack orders from both sources without deduplicating by OrderID")
	runCmd.Flags().StringVar(&runCleanDir, "clean-dir", "",
		"directory for dimension and fact files")
	runCmd.Flags().StringVar(&runPushgateway, "pushgateway", "",
		"Prometheus Pushgateway URL for run metrics")

	for _, c := range []*cobra.Command{runCmd, extractCmd} {
		c.Flags().StringVar(&runRawDir, "raw-dir", "",
			"directory for raw extracted files")
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if runNoDedupOrders {
		cfg.Transform.DedupOrders = false
	}
	if runRawDir != "" {
		cfg.Output.RawDir = runRawDir
	}
	if runCleanDir != "" {
		cfg.Output.CleanDir = runCleanDir
	}
	if runPushgateway != "" {
		cfg.Metrics.PushgatewayURL = runPushgateway
	}

	// Validate configuration
	if err := cfg.ValidateRun(runSkipLoad); err != nil {
		return err
	}

	runner := newRunner()
	runner.SkipLoad = runSkipLoad
	runner.SkipFiles = runSkipFiles
	return execute(runner)
}

func runExtract(cmd *cobra.Command, args []string) error {
	if runRawDir != "" {
		cfg.Output.RawDir = runRawDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	runner := newRunner()
	runner.ExtractOnly = true
	return execute(runner)
}

func newRunner() *pipeline.Runner {
	runID := uuid.NewString()
	logging.WithRun(runID)

	logging.Info().
		Str("primary", cfg.Redacted().Primary.Connection).
		Bool("secondary", cfg.Secondary.Enabled()).
		Bool("notes", cfg.Notes.Enabled()).
		Bool("dedup_orders", cfg.Transform.DedupOrders).
		Msg("Starting run")

	return pipeline.NewRunner(cfg, runID)
}

func execute(runner *pipeline.Runner) error {
	ctx, cancel := signalContext()
	defer cancel()

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("run interrupted")
	}
	if !report.OK() {
		failed := report.Failed()
		return fmt.Errorf("run finished with %d failures: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

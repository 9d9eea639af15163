//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pgEdge/pgedge-starschema/internal/config"
	"github.com/pgEdge/pgedge-starschema/internal/consolidate"
	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/metrics"
	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/sink"
	"github.com/pgEdge/pgedge-starschema/internal/source"
	"github.com/pgEdge/pgedge-starschema/internal/table"
	"github.com/pgEdge/pgedge-starschema/internal/warehouse"
)

// Loader writes output tables into the warehouse.
type Loader interface {
	Load(ctx context.Context, t *table.Table) (int64, error)
	SaveRun(ctx context.Context, runID string, counts map[string]int) error
	Close()
}

// SourceOpener opens a source reader.
type SourceOpener func(ctx context.Context, driver, connString string) (source.Reader, error)

// Connector opens the warehouse.
type Connector func(ctx context.Context, cfg config.WarehouseConfig) (Loader, error)

// ConnectWarehouse is the default Connector.
func ConnectWarehouse(ctx context.Context, cfg config.WarehouseConfig) (Loader, error) {
	l, err := warehouse.Connect(ctx, cfg.Connection, cfg.Schema, cfg.StagingTable)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Runner executes one pipeline run.
type Runner struct {
	Config *config.Config
	RunID  string

	// ExtractOnly stops after the raw files are written.
	ExtractOnly bool
	SkipFiles   bool
	SkipLoad    bool

	OpenSource SourceOpener
	Connect    Connector
	Metrics    *metrics.Run
}

// NewRunner returns a Runner using the registered source drivers and the
// PostgreSQL warehouse.
func NewRunner(cfg *config.Config, runID string) *Runner {
	return &Runner{
		Config:     cfg,
		RunID:      runID,
		OpenSource: source.Open,
		Connect:    ConnectWarehouse,
		Metrics:    metrics.NewRun(),
	}
}

// Report describes a finished run.
type Report struct {
	RunID string

	// Extract holds what the sources returned.
	Extract Extract

	// Degraded lists optional inputs that were unavailable.
	Degraded []string

	// Output is nil when the run stopped after extraction.
	Output *Output

	// Files maps written file names to their paths.
	Files map[string]string

	// Loaded maps loaded tables to their row counts.
	Loaded map[string]int64

	// Errors holds every table-level failure keyed by "stage/table".
	Errors map[string]error

	Elapsed time.Duration
}

func newReport(runID string) *Report {
	return &Report{
		RunID:  runID,
		Files:  make(map[string]string),
		Loaded: make(map[string]int64),
		Errors: make(map[string]error),
	}
}

func (r *Report) fail(stage, name string, err error) {
	r.Errors[stage+"/"+name] = err
}

// Failed returns the sorted "stage/table" names of every failure.
func (r *Report) Failed() []string {
	names := make([]string, 0, len(r.Errors))
	for name := range r.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OK reports whether every table was handled without error.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

// Run executes the pipeline. The returned error is set only when the run
// could not proceed at all; table-level failures are in the Report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := newReport(r.RunID)
	if r.Metrics == nil {
		r.Metrics = metrics.NewRun()
	}

	in, err := r.extract(ctx, report)
	if err != nil {
		report.Elapsed = time.Since(start)
		r.finish(ctx, report)
		return report, err
	}
	report.Extract = in

	if !r.SkipFiles {
		r.writeRaw(in, report)
	}

	if !r.ExtractOnly {
		out := Transform(in, Options{DedupOrders: r.Config.Transform.DedupOrders})
		report.Output = out
		r.recordTransform(out, report)

		if !r.SkipFiles {
			r.writeClean(out, report)
		}
		if !r.SkipLoad {
			r.load(ctx, out, report)
		}
	}

	report.Elapsed = time.Since(start)
	r.finish(ctx, report)
	return report, nil
}

// extract reads the primary source, then the optional secondary source and
// notes feed. Only an unreachable primary source is fatal.
func (r *Runner) extract(ctx context.Context, report *Report) (Extract, error) {
	var in Extract
	cfg := r.Config

	primary, err := r.extractSource(ctx, consolidate.SourcePrimary, cfg.Primary, northwind.SourceTables)
	if err != nil {
		return in, fmt.Errorf("primary source unavailable: %w", err)
	}
	in.Primary = primary
	for name, ferr := range primary.Failed {
		report.fail(metrics.StageExtract, consolidate.SourcePrimary+"."+name, ferr)
	}

	if cfg.Secondary.Enabled() {
		secondary, err := r.extractSource(ctx, consolidate.SourceSecondary, cfg.Secondary, northwind.SharedTables)
		if err != nil {
			logging.Warn().
				Err(err).
				Str("source", consolidate.SourceSecondary).
				Msg("Secondary source unavailable; continuing with the primary source only")
			report.Degraded = append(report.Degraded, consolidate.SourceSecondary)
		} else {
			in.Secondary = secondary
			for name := range secondary.Failed {
				report.Degraded = append(report.Degraded, consolidate.SourceSecondary+"."+name)
			}
		}
	} else {
		logging.Info().Msg("No secondary source configured")
	}

	if cfg.Notes.Enabled() {
		notes, err := r.extractNotes(ctx, cfg.Notes)
		if err != nil {
			logging.Warn().
				Err(err).
				Str("source", consolidate.SourceNotes).
				Msg("Customer notes unavailable")
			report.Degraded = append(report.Degraded, consolidate.SourceNotes)
		} else {
			in.Notes = notes
		}
	}

	sort.Strings(report.Degraded)
	r.recordExtract(in)
	return in, nil
}

func (r *Runner) extractSource(ctx context.Context, name string, cfg config.SourceConfig, logical []string) (*source.Result, error) {
	reader, err := r.OpenSource(ctx, cfg.Driver, cfg.Connection)
	if err != nil {
		return nil, err
	}
	defer closeReader(name, reader)

	return source.Extract(ctx, name, reader, logical, cfg.Tables), nil
}

func (r *Runner) extractNotes(ctx context.Context, cfg config.NotesConfig) (*table.Table, error) {
	reader, err := r.OpenSource(ctx, cfg.Driver, cfg.Connection)
	if err != nil {
		return nil, err
	}
	defer closeReader(consolidate.SourceNotes, reader)

	return source.ExtractNotes(ctx, reader, cfg.Query)
}

func closeReader(name string, reader source.Reader) {
	if err := reader.Close(); err != nil {
		logging.Warn().Err(err).Str("source", name).Msg("Failed to close source")
	}
}

func (r *Runner) writer(dir string) *sink.Writer {
	delimiter := sink.DefaultDelimiter
	if d := []rune(r.Config.Output.Delimiter); len(d) == 1 {
		delimiter = d[0]
	}
	return sink.NewWriter(dir, sink.WithDelimiter(delimiter))
}

func (r *Runner) writeRaw(in Extract, report *Report) {
	w := r.writer(r.Config.Output.RawDir)
	for _, res := range []*source.Result{in.Primary, in.Secondary} {
		if res == nil {
			continue
		}
		for _, name := range northwind.SourceTables {
			t, ok := res.Tables[name]
			if !ok {
				continue
			}
			r.writeFile(w, sink.RawFileName(res.Source, name), t, report)
		}
	}
	if in.Notes != nil {
		r.writeFile(w, sink.RawFileName(consolidate.SourceNotes, northwind.CustomerNotes), in.Notes, report)
	}
}

func (r *Runner) writeClean(out *Output, report *Report) {
	w := r.writer(r.Config.Output.CleanDir)
	for _, t := range out.Built() {
		r.writeFile(w, sink.CleanFileName(t.Name), t, report)
	}
}

func (r *Runner) writeFile(w *sink.Writer, fileName string, t *table.Table, report *Report) {
	path, err := w.Write(fileName, t)
	if err != nil {
		report.fail(metrics.StageFile, fileName, err)
		r.Metrics.Failure(metrics.StageFile, "", fileName)
		logging.Error().Err(err).Str("file", fileName).Msg("Failed to write file")
		return
	}
	report.Files[fileName] = path
	r.Metrics.Rows(metrics.StageFile, "", fileName, t.Len())
}

// load writes every built table. A table that fails does not stop the
// tables after it. An unreachable warehouse fails every table.
func (r *Runner) load(ctx context.Context, out *Output, report *Report) {
	built := out.Built()

	l, err := r.Connect(ctx, r.Config.Warehouse)
	if err != nil {
		logging.Error().Err(err).Msg("Warehouse unavailable; skipping load")
		for _, t := range built {
			report.fail(metrics.StageLoad, t.Name, err)
			r.Metrics.Failure(metrics.StageLoad, "", t.Name)
		}
		return
	}
	defer l.Close()

	counts := make(map[string]int, len(built))
	for _, t := range built {
		n, err := l.Load(ctx, t)
		if err != nil {
			report.fail(metrics.StageLoad, t.Name, err)
			r.Metrics.Failure(metrics.StageLoad, "", t.Name)
			logging.Error().Err(err).Str("table", t.Name).Msg("Failed to load table")
			continue
		}
		report.Loaded[t.Name] = n
		counts[t.Name] = int(n)
		r.Metrics.Rows(metrics.StageLoad, "", t.Name, int(n))
	}

	if err := l.SaveRun(ctx, r.RunID, counts); err != nil {
		report.fail(metrics.StageLoad, "metadata", err)
		logging.Error().Err(err).Msg("Failed to save run metadata")
	}
}

func (r *Runner) recordExtract(in Extract) {
	for _, res := range []*source.Result{in.Primary, in.Secondary} {
		if res == nil {
			continue
		}
		for name, t := range res.Tables {
			r.Metrics.Rows(metrics.StageExtract, res.Source, name, t.Len())
		}
		for name := range res.Failed {
			r.Metrics.Failure(metrics.StageExtract, res.Source, name)
		}
	}
	if in.Notes != nil {
		r.Metrics.Rows(metrics.StageExtract, consolidate.SourceNotes, northwind.CustomerNotes, in.Notes.Len())
	}
}

func (r *Runner) recordTransform(out *Output, report *Report) {
	for entity, stats := range out.Consolidation {
		r.Metrics.Consolidated(entity, stats.Duplicates, stats.InternalDuplicates, stats.SecondaryContributed)
	}
	for name, t := range out.Tables {
		r.Metrics.Rows(metrics.StageTransform, "", name, t.Len())
	}
	for name, err := range out.Failed {
		report.fail(metrics.StageTransform, name, err)
		r.Metrics.Failure(metrics.StageTransform, "", name)
	}
}

func (r *Runner) finish(ctx context.Context, report *Report) {
	r.Metrics.Finish(report.Elapsed, report.OK())

	if url := r.Config.Metrics.PushgatewayURL; url != "" {
		if err := r.Metrics.Push(ctx, url, r.Config.Metrics.Job); err != nil {
			logging.Warn().Err(err).Msg("Failed to push run metrics")
		}
	}

	ev := logging.Info()
	if !report.OK() {
		ev = logging.Error().Strs("failed", report.Failed())
	}
	if len(report.Degraded) > 0 {
		ev = ev.Strs("degraded", report.Degraded)
	}
	ev.Int("files", len(report.Files)).
		Int("loaded", len(report.Loaded)).
		Dur("elapsed", report.Elapsed).
		Msg("Run finished")
}

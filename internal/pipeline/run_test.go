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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-starschema/internal/config"
	"github.com/pgEdge/pgedge-starschema/internal/consolidate"
	"github.com/pgEdge/pgedge-starschema/internal/metrics"
	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/source"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// fakeReader serves tables by physical name.
type fakeReader struct {
	tables map[string]*table.Table
	notes  *table.Table
	closed bool
}

func newFakeReader(logical map[string]*table.Table) *fakeReader {
	r := &fakeReader{tables: make(map[string]*table.Table)}
	for name, t := range logical {
		r.tables[northwind.PhysicalName(name, nil)] = t
	}
	return r
}

func (r *fakeReader) ReadTable(_ context.Context, physical string) (*table.Table, error) {
	t, ok := r.tables[physical]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", physical)
	}
	return t, nil
}

func (r *fakeReader) Query(_ context.Context, name, _ string) (*table.Table, error) {
	if r.notes == nil {
		return nil, errors.New("no notes")
	}
	return r.notes.WithName(name), nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

// fakeLoader records what it was asked to load.
type fakeLoader struct {
	failOn map[string]bool
	loaded []string
	runID  string
	counts map[string]int
	closed bool
}

func (l *fakeLoader) Load(_ context.Context, t *table.Table) (int64, error) {
	if l.failOn[t.Name] {
		return 0, fmt.Errorf("copy into %s failed", t.Name)
	}
	l.loaded = append(l.loaded, t.Name)
	return int64(t.Len()), nil
}

func (l *fakeLoader) SaveRun(_ context.Context, runID string, counts map[string]int) error {
	l.runID = runID
	l.counts = counts
	return nil
}

func (l *fakeLoader) Close() {
	l.closed = true
}

type harness struct {
	cfg     *config.Config
	readers map[string]*fakeReader
	down    map[string]bool
	opened  []string
	loader  *fakeLoader
	whErr   error
}

func newHarness(t *testing.T) *harness {
	cfg := config.DefaultConfig()
	cfg.Primary = config.SourceConfig{Driver: config.DriverPostgres, Connection: "primary"}
	cfg.Secondary = config.SourceConfig{Driver: config.DriverPostgres, Connection: "secondary"}
	cfg.Warehouse.Connection = "warehouse"
	dir := t.TempDir()
	cfg.Output.RawDir = filepath.Join(dir, "raw")
	cfg.Output.CleanDir = filepath.Join(dir, "clean")

	return &harness{
		cfg: cfg,
		readers: map[string]*fakeReader{
			"primary":   newFakeReader(primaryTables()),
			"secondary": newFakeReader(secondaryTables()),
		},
		down:   make(map[string]bool),
		loader: &fakeLoader{failOn: make(map[string]bool)},
	}
}

func (h *harness) runner() *Runner {
	r := NewRunner(h.cfg, "run-1")
	r.OpenSource = func(_ context.Context, _, conn string) (source.Reader, error) {
		h.opened = append(h.opened, conn)
		if h.down[conn] {
			return nil, fmt.Errorf("dial %s: connection refused", conn)
		}
		return h.readers[conn], nil
	}
	r.Connect = func(context.Context, config.WarehouseConfig) (Loader, error) {
		if h.whErr != nil {
			return nil, h.whErr
		}
		return h.loader, nil
	}
	return r
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRun(t *testing.T) {
	h := newHarness(t)

	report, err := h.runner().Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.OK(), "failed: %v", report.Failed())
	assert.Empty(t, report.Degraded)
	assert.Equal(t, northwind.OutputTables, h.loader.loaded)
	assert.True(t, h.loader.closed)
	assert.Equal(t, "run-1", h.loader.runID)
	assert.Equal(t, 3, h.loader.counts[northwind.FactSales])

	assert.True(t, h.readers["primary"].closed)
	assert.True(t, h.readers["secondary"].closed)

	clean := listDir(t, h.cfg.Output.CleanDir)
	assert.Len(t, clean, len(northwind.OutputTables))
	assert.Contains(t, clean, "FactSales.csv")

	raw := listDir(t, h.cfg.Output.RawDir)
	assert.Contains(t, raw, "primary_OrderDetails.csv")
	assert.Contains(t, raw, "secondary_Orders.csv")
	assert.NotContains(t, raw, "secondary_Categories.csv")
}

func TestRunSecondaryUnreachable(t *testing.T) {
	h := newHarness(t)
	h.down["secondary"] = true

	report, err := h.runner().Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.OK(), "failed: %v", report.Failed())
	assert.Equal(t, []string{consolidate.SourceSecondary}, report.Degraded)
	assert.Nil(t, report.Extract.Secondary)
	assert.Equal(t, northwind.OutputTables, h.loader.loaded)

	for entity, stats := range report.Output.Consolidation {
		assert.Equal(t, 0, stats.SecondaryContributed, entity)
		assert.Equal(t, 0, stats.SecondaryRows, entity)
	}
	assert.Equal(t, 2, report.Output.Tables[northwind.FactSales].Len())
	assert.True(t, h.readers["primary"].closed)
}

func TestRunPrimaryUnreachable(t *testing.T) {
	h := newHarness(t)
	h.down["primary"] = true

	report, err := h.runner().Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, report.Output)
	assert.Equal(t, []string{"primary"}, h.opened)
	assert.Empty(t, h.loader.loaded)
}

func TestRunLoadFailureIsolated(t *testing.T) {
	h := newHarness(t)
	h.loader.failOn[northwind.DimDate] = true

	report, err := h.runner().Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.OK())
	assert.Equal(t, []string{"load/DimDate"}, report.Failed())
	assert.Len(t, h.loader.loaded, len(northwind.OutputTables)-1)
	assert.Contains(t, h.loader.loaded, northwind.FactSales)
	assert.NotContains(t, h.loader.counts, northwind.DimDate)
}

func TestRunWarehouseUnreachable(t *testing.T) {
	h := newHarness(t)
	h.whErr = errors.New("connection refused")

	r := h.runner()
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Failed(), len(northwind.OutputTables))
	assert.Len(t, listDir(t, h.cfg.Output.CleanDir), len(northwind.OutputTables))

	n, err := prom.GatherAndCount(r.Metrics.Gatherer(), metrics.Namespace+"_table_failures")
	require.NoError(t, err)
	assert.Equal(t, len(northwind.OutputTables), n)
}

func TestRunPrimaryTableMissing(t *testing.T) {
	h := newHarness(t)
	delete(h.readers["primary"].tables, northwind.Shippers)

	report, err := h.runner().Run(context.Background())
	require.NoError(t, err)

	failed := report.Failed()
	assert.Contains(t, failed, "extract/primary.Shippers")
	assert.Contains(t, failed, "transform/DimShippers")
	assert.NotContains(t, h.loader.loaded, northwind.DimShippers)
	assert.Contains(t, h.loader.loaded, northwind.FactSales)
}

func TestRunNotesFeed(t *testing.T) {
	h := newHarness(t)
	h.cfg.Notes.Driver = config.DriverPostgres
	h.cfg.Notes.Connection = "notes"
	h.readers["notes"] = &fakeReader{
		notes: build("", []string{"customerid", "notes"}, []any{"5", "Key account"}),
	}

	report, err := h.runner().Run(context.Background())
	require.NoError(t, err)

	customers := report.Output.Tables[northwind.DimCustomers]
	assert.Equal(t, "Key account", findRow(t, customers, keyIs("CustomerKey", "5"))["CustomerNotes"])
	assert.True(t, h.readers["notes"].closed)
	assert.Contains(t, report.Files, "notes_CustomerNotes.csv")
}

func TestRunNotesUnavailable(t *testing.T) {
	h := newHarness(t)
	h.cfg.Notes.Driver = config.DriverPostgres
	h.cfg.Notes.Connection = "notes"
	h.readers["notes"] = &fakeReader{}

	report, err := h.runner().Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.OK())
	assert.Equal(t, []string{consolidate.SourceNotes}, report.Degraded)
	assert.True(t, h.readers["notes"].closed)
}

func TestRunExtractOnly(t *testing.T) {
	h := newHarness(t)

	r := h.runner()
	r.ExtractOnly = true
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Nil(t, report.Output)
	assert.Empty(t, h.loader.loaded)
	assert.NotEmpty(t, listDir(t, h.cfg.Output.RawDir))
	_, err = os.Stat(h.cfg.Output.CleanDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRunSkipFilesAndLoad(t *testing.T) {
	h := newHarness(t)

	r := h.runner()
	r.SkipFiles = true
	r.SkipLoad = true
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.OK())
	assert.Empty(t, report.Files)
	assert.Empty(t, h.loader.loaded)
	assert.Len(t, report.Output.Built(), len(northwind.OutputTables))
}

//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package warehouse loads star-schema tables into PostgreSQL.
//
// Dimensions are fully replaced in a single transaction. The fact table is
// copied into a staging table first and then swapped into place in one
// transaction, so readers see either the previous or the new fact rows.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-starschema/internal/db"
	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// ErrConversion is returned when a value cannot be stored in its warehouse
// column type.
var ErrConversion = errors.New("value does not fit warehouse column")

// Loader writes tables into one warehouse schema.
type Loader struct {
	pool    *pgxpool.Pool
	schema  string
	staging string
}

// New returns a Loader using pool.
func New(pool *pgxpool.Pool, schema, staging string) *Loader {
	return &Loader{pool: pool, schema: schema, staging: staging}
}

// Connect opens the warehouse and makes sure the target schema exists.
func Connect(ctx context.Context, connString, schema, staging string) (*Loader, error) {
	pool, err := db.Connect(ctx, "warehouse", connString)
	if err != nil {
		return nil, err
	}

	l := New(pool, schema, staging)
	_, err = pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create warehouse schema %s: %w", schema, err)
	}
	return l, nil
}

// Close releases the pool.
func (l *Loader) Close() {
	l.pool.Close()
}

// Load writes an output table, choosing the strategy by its definition.
func (l *Loader) Load(ctx context.Context, t *table.Table) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("no table to load")
	}
	def, ok := Definition(t.Name)
	if !ok {
		return 0, fmt.Errorf("no warehouse definition for table %s", t.Name)
	}
	if def.Key == "" {
		return l.SwapFact(ctx, def, t)
	}
	return l.ReplaceDimension(ctx, def, t)
}

// ReplaceDimension drops, recreates and fills a dimension in one
// transaction.
func (l *Loader) ReplaceDimension(ctx context.Context, def TableDef, t *table.Table) (int64, error) {
	start := time.Now()
	rows, err := CopyRows(def, t)
	if err != nil {
		return 0, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin load of %s: %w", def.Name, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	ident := pgx.Identifier{l.schema, def.Name}
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident.Sanitize()); err != nil {
		return 0, fmt.Errorf("failed to drop %s: %w", def.Name, err)
	}
	if _, err := tx.Exec(ctx, def.CreateSQL(l.schema, def.Name)); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", def.Name, err)
	}

	n, err := tx.CopyFrom(ctx, ident, def.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy %s: %w", def.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", def.Name, err)
	}

	logging.Info().
		Str("table", def.Name).
		Int64("rows", n).
		Dur("elapsed", time.Since(start)).
		Msg("Replaced dimension")
	return n, nil
}

// SwapFact copies the fact rows into the staging table, then replaces the
// fact table contents from staging in one transaction. A failure before
// the swap leaves the previous fact rows untouched.
func (l *Loader) SwapFact(ctx context.Context, def TableDef, t *table.Table) (int64, error) {
	start := time.Now()
	rows, err := CopyRows(def, t)
	if err != nil {
		return 0, err
	}

	fact := pgx.Identifier{l.schema, def.Name}.Sanitize()
	staging := pgx.Identifier{l.schema, l.staging}
	stagingSQL := staging.Sanitize()

	if _, err := l.pool.Exec(ctx, def.create("TABLE IF NOT EXISTS", l.schema, def.Name)); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", def.Name, err)
	}
	if _, err := l.pool.Exec(ctx, "DROP TABLE IF EXISTS "+stagingSQL); err != nil {
		return 0, fmt.Errorf("failed to drop staging table %s: %w", l.staging, err)
	}
	if _, err := l.pool.Exec(ctx, def.create("UNLOGGED TABLE", l.schema, l.staging)); err != nil {
		return 0, fmt.Errorf("failed to create staging table %s: %w", l.staging, err)
	}

	staged, err := l.pool.CopyFrom(ctx, staging, def.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy %s into staging: %w", def.Name, err)
	}
	logging.Debug().
		Str("table", def.Name).
		Str("staging", l.staging).
		Int64("rows", staged).
		Msg("Staged fact rows")

	cols := columnList(def.ColumnNames())

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin swap of %s: %w", def.Name, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, "DELETE FROM "+fact); err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", def.Name, err)
	}
	tag, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", fact, cols, cols, stagingSQL))
	if err != nil {
		return 0, fmt.Errorf("failed to swap %s from staging: %w", def.Name, err)
	}
	if _, err := tx.Exec(ctx, "DROP TABLE "+stagingSQL); err != nil {
		return 0, fmt.Errorf("failed to drop staging table %s: %w", l.staging, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit swap of %s: %w", def.Name, err)
	}

	logging.Info().
		Str("table", def.Name).
		Int64("rows", tag.RowsAffected()).
		Dur("elapsed", time.Since(start)).
		Msg("Swapped fact table")
	return tag.RowsAffected(), nil
}

// SaveRun records run metadata next to the star schema.
func (l *Loader) SaveRun(ctx context.Context, runID string, counts map[string]int) error {
	return db.SaveMetadata(ctx, l.pool, l.schema, db.RunMetadata(runID, counts))
}

func columnList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pgx.Identifier{n}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

// CopyRows converts a table into COPY rows ordered by the definition. Every
// definition column must be present in the table.
func CopyRows(def TableDef, t *table.Table) ([][]any, error) {
	if t == nil {
		return nil, fmt.Errorf("load %s: no table", def.Name)
	}
	for _, c := range def.Columns {
		if !t.HasColumn(c.Name) {
			return nil, fmt.Errorf("load %s: %w: %q", def.Name, table.ErrMissingColumn, c.Name)
		}
	}

	out := make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]any, len(def.Columns))
		for j, c := range def.Columns {
			v, err := toColumn(row[c.Name], c.Type)
			if err != nil {
				return nil, fmt.Errorf("load %s: row %d column %s: %w", def.Name, i, c.Name, err)
			}
			rec[j] = v
		}
		out[i] = rec
	}
	return out, nil
}

func toColumn(v any, typ ColumnType) (any, error) {
	if table.IsNull(v) {
		return nil, nil
	}
	var ok bool
	var out any
	switch typ {
	case Integer:
		out, ok = table.AsInt64(v)
	case Double:
		out, ok = table.AsFloat64(v)
	case Numeric:
		d, dok := table.AsDecimal(v)
		if dok {
			out, ok = pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}, true
		}
	case Date:
		out, ok = table.AsDate(v)
	default:
		out, ok = table.AsString(v)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) as %s", ErrConversion, v, v, typ.SQL())
	}
	return out, nil
}

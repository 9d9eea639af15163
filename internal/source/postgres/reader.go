//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package postgres reads source tables from PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-starschema/internal/db"
	"github.com/pgEdge/pgedge-starschema/internal/source"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// Driver is the registry name of this reader.
const Driver = "postgres"

func init() {
	source.Register(Driver, func(ctx context.Context, connString string) (source.Reader, error) {
		return Open(ctx, connString)
	})
}

// Querier is the subset of pgxpool.Pool the reader needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Reader reads tables through pgx.
type Reader struct {
	q     Querier
	close func()
}

// New wraps a querier. closeFn may be nil.
func New(q Querier, closeFn func()) *Reader {
	return &Reader{q: q, close: closeFn}
}

// Open connects to PostgreSQL and returns a Reader owning the pool.
func Open(ctx context.Context, connString string) (*Reader, error) {
	pool, err := db.Connect(ctx, "source", connString)
	if err != nil {
		return nil, err
	}
	return New(pool, pool.Close), nil
}

// ReadTable returns every row of the physical table. A dotted name is read
// as schema.table.
func (r *Reader) ReadTable(ctx context.Context, physical string) (*table.Table, error) {
	ident := pgx.Identifier(strings.Split(physical, ".")).Sanitize()
	return r.Query(ctx, physical, "SELECT * FROM "+ident)
}

// Query runs query and returns its rows as a table named name.
func (r *Reader) Query(ctx context.Context, name, query string) (*table.Table, error) {
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	out := table.New(name, columns...)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row of %s: %w", name, err)
		}
		row := make(table.Row, len(columns))
		for i, col := range columns {
			row[col] = convert(values[i])
		}
		out.Append(row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows of %s: %w", name, err)
	}

	return out, nil
}

// Close releases the pool when the reader owns one.
func (r *Reader) Close() error {
	if r.close != nil {
		r.close()
	}
	return nil
}

// convert turns pgx decoded values into table scalars.
func convert(val any) any {
	switch v := val.(type) {
	case pgtype.Numeric:
		if !v.Valid || v.NaN || v.InfinityModifier != pgtype.Finite || v.Int == nil {
			return nil
		}
		return decimal.NewFromBigInt(v.Int, v.Exp)
	case [16]byte:
		return uuid.UUID(v).String()
	}
	return val
}

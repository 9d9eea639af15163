//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package sqlserver reads source tables from Microsoft SQL Server.
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/source"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// Driver is the registry name of this reader.
const Driver = "sqlserver"

func init() {
	source.Register(Driver, func(ctx context.Context, connString string) (source.Reader, error) {
		return Open(ctx, connString)
	})
}

// Reader reads tables through database/sql.
type Reader struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Open connects to SQL Server with a sqlserver:// connection string and
// verifies the connection.
func Open(ctx context.Context, connString string) (*Reader, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQL Server connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQL Server: %w", err)
	}

	logging.Info().Str("driver", Driver).Msg("Connected to source")
	return New(db), nil
}

// ReadTable returns every row of the physical table.
func (r *Reader) ReadTable(ctx context.Context, physical string) (*table.Table, error) {
	return r.Query(ctx, physical, "SELECT * FROM "+QuoteName(physical))
}

// Query runs query and returns its rows as a table named name.
func (r *Reader) Query(ctx context.Context, name, query string) (*table.Table, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	out := table.New(name, columnNames...)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", name, err)
		}

		row := make(table.Row, len(columnNames))
		for i, col := range columnNames {
			row[col] = convert(values[i], columnTypes[i].DatabaseTypeName())
		}
		out.Append(row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows of %s: %w", name, err)
	}

	return out, nil
}

// Close closes the database handle.
func (r *Reader) Close() error {
	return r.db.Close()
}

// convert turns driver values into table scalars. The driver hands back
// DECIMAL and MONEY columns as their textual bytes.
func convert(val any, dbType string) any {
	b, ok := val.([]byte)
	if !ok {
		return val
	}
	switch {
	case isDecimalType(dbType):
		if d, err := decimal.NewFromString(string(b)); err == nil {
			return d
		}
		return string(b)
	case isStringType(dbType):
		return string(b)
	}
	return b
}

func isDecimalType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}

func isStringType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return true
	}
	return false
}

// QuoteName brackets each part of a possibly schema-qualified name,
// escaping ] as ]]. Names that already start with a bracket are used as is.
func QuoteName(name string) string {
	if strings.HasPrefix(name, "[") {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
	}
	return strings.Join(parts, ".")
}

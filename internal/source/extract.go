//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// Result holds the tables read from one source, keyed by logical name.
type Result struct {
	Source string
	Tables map[string]*table.Table
	Failed map[string]error
}

// Table returns the named logical table, or nil when the source did not
// provide it. Safe on a nil Result.
func (r *Result) Table(logical string) *table.Table {
	if r == nil {
		return nil
	}
	return r.Tables[logical]
}

// Extract reads each logical table from r. A table that fails to read is
// recorded in Failed and the remaining tables are still read.
func Extract(ctx context.Context, sourceName string, r Reader, logical []string, overrides map[string]string) *Result {
	res := &Result{
		Source: sourceName,
		Tables: make(map[string]*table.Table, len(logical)),
		Failed: make(map[string]error),
	}

	for _, name := range logical {
		physical := northwind.PhysicalName(name, overrides)
		start := time.Now()

		t, err := r.ReadTable(ctx, physical)
		if err != nil {
			res.Failed[name] = err
			logging.Warn().
				Err(err).
				Str("source", sourceName).
				Str("table", name).
				Str("physical", physical).
				Msg("Failed to extract table")
			continue
		}

		res.Tables[name] = t.WithName(name)
		logging.Info().
			Str("source", sourceName).
			Str("table", name).
			Int("rows", t.Len()).
			Dur("elapsed", time.Since(start)).
			Msg("Extracted table")
	}

	return res
}

// ExtractNotes runs the notes query and maps its columns onto CustomerID and
// Notes regardless of the case the source returned them in.
func ExtractNotes(ctx context.Context, r Reader, query string) (*table.Table, error) {
	t, err := r.Query(ctx, northwind.CustomerNotes, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read customer notes: %w", err)
	}

	t, err = MatchColumns(t, "CustomerID", "Notes")
	if err != nil {
		return nil, fmt.Errorf("failed to read customer notes: %w", err)
	}

	logging.Info().
		Str("source", "notes").
		Int("rows", t.Len()).
		Msg("Extracted customer notes")
	return t, nil
}

// MatchColumns renames columns that equal one of the wanted names under
// case folding to the wanted spelling. Columns with no match are left as
// they are.
func MatchColumns(t *table.Table, wanted ...string) (*table.Table, error) {
	mapping := make(map[string]string)
	for _, w := range wanted {
		if t.HasColumn(w) {
			continue
		}
		for _, c := range t.Columns {
			if strings.EqualFold(c, w) {
				mapping[c] = w
				break
			}
		}
	}
	if len(mapping) == 0 {
		return t, nil
	}
	return t.Rename(mapping)
}

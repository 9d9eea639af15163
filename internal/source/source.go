//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package source reads relational source tables into in-memory tables.
// Drivers register themselves from their own packages.
package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// Reader reads whole tables or ad hoc queries from one source database.
type Reader interface {
	// ReadTable returns every row of a physical table.
	ReadTable(ctx context.Context, physical string) (*table.Table, error)

	// Query runs a read-only query and names the result.
	Query(ctx context.Context, name, query string) (*table.Table, error)

	// Close releases the underlying connection.
	Close() error
}

// Opener connects to a source and returns a Reader.
type Opener func(ctx context.Context, connString string) (Reader, error)

var (
	registry = make(map[string]Opener)
	mu       sync.RWMutex
)

// Register adds a driver to the registry.
func Register(driver string, open Opener) {
	mu.Lock()
	defer mu.Unlock()
	registry[driver] = open
}

// Open connects to a source with a registered driver.
func Open(ctx context.Context, driver, connString string) (Reader, error) {
	mu.RLock()
	open, ok := registry[driver]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown source driver: %s", driver)
	}
	return open(ctx, connString)
}

// Drivers returns all registered driver names, sorted.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

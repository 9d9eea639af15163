//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/table"
	"github.com/pgEdge/pgedge-starschema/internal/warehouse"
)

// ErrTablesExist is returned when a seed target already holds source
// tables and dropping was not requested.
var ErrTablesExist = errors.New("source tables already exist")

// NotesQuery reads the seeded notes feed.
const NotesQuery = `SELECT "CustomerID", "Notes" FROM "CustomerNotes"`

// SeedSchema is the schema seeded tables are created in.
const SeedSchema = "public"

func def(name, key string, cols ...warehouse.Column) warehouse.TableDef {
	return warehouse.TableDef{Name: name, Key: key, Columns: cols}
}

// Definitions of the seeded source tables. Order Details has a composite
// key and declares none.
var sourceDefinitions = map[string]warehouse.TableDef{
	northwind.Categories: def(northwind.Categories, "CategoryID",
		warehouse.Column{Name: "CategoryID", Type: warehouse.Integer},
		warehouse.Column{Name: "CategoryName", Type: warehouse.Text},
		warehouse.Column{Name: "Description", Type: warehouse.Text},
	),
	northwind.Suppliers: def(northwind.Suppliers, "SupplierID",
		warehouse.Column{Name: "SupplierID", Type: warehouse.Integer},
		warehouse.Column{Name: "CompanyName", Type: warehouse.Text},
		warehouse.Column{Name: "ContactName", Type: warehouse.Text},
		warehouse.Column{Name: "City", Type: warehouse.Text},
		warehouse.Column{Name: "Country", Type: warehouse.Text},
	),
	northwind.Products: def(northwind.Products, "ProductID",
		warehouse.Column{Name: "ProductID", Type: warehouse.Integer},
		warehouse.Column{Name: "ProductName", Type: warehouse.Text},
		warehouse.Column{Name: "SupplierID", Type: warehouse.Integer},
		warehouse.Column{Name: "CategoryID", Type: warehouse.Integer},
		warehouse.Column{Name: "UnitPrice", Type: warehouse.Numeric},
		warehouse.Column{Name: "UnitsInStock", Type: warehouse.Integer},
	),
	northwind.Customers: def(northwind.Customers, "CustomerID",
		warehouse.Column{Name: "CustomerID", Type: warehouse.Text},
		warehouse.Column{Name: "CompanyName", Type: warehouse.Text},
		warehouse.Column{Name: "ContactName", Type: warehouse.Text},
		warehouse.Column{Name: "City", Type: warehouse.Text},
		warehouse.Column{Name: "Country", Type: warehouse.Text},
	),
	northwind.Employees: def(northwind.Employees, "EmployeeID",
		warehouse.Column{Name: "EmployeeID", Type: warehouse.Integer},
		warehouse.Column{Name: "LastName", Type: warehouse.Text},
		warehouse.Column{Name: "FirstName", Type: warehouse.Text},
		warehouse.Column{Name: "Title", Type: warehouse.Text},
		warehouse.Column{Name: "City", Type: warehouse.Text},
		warehouse.Column{Name: "Country", Type: warehouse.Text},
	),
	northwind.Shippers: def(northwind.Shippers, "ShipperID",
		warehouse.Column{Name: "ShipperID", Type: warehouse.Integer},
		warehouse.Column{Name: "CompanyName", Type: warehouse.Text},
		warehouse.Column{Name: "Phone", Type: warehouse.Text},
	),
	northwind.Orders: def(northwind.Orders, "OrderID",
		warehouse.Column{Name: "OrderID", Type: warehouse.Integer},
		warehouse.Column{Name: "CustomerID", Type: warehouse.Text},
		warehouse.Column{Name: "EmployeeID", Type: warehouse.Integer},
		warehouse.Column{Name: "ShipVia", Type: warehouse.Integer},
		warehouse.Column{Name: "OrderDate", Type: warehouse.Date},
		warehouse.Column{Name: "RequiredDate", Type: warehouse.Date},
		warehouse.Column{Name: "ShippedDate", Type: warehouse.Date},
		warehouse.Column{Name: "Freight", Type: warehouse.Numeric},
	),
	northwind.OrderDetails: def(northwind.OrderDetails, "",
		warehouse.Column{Name: "OrderID", Type: warehouse.Integer},
		warehouse.Column{Name: "ProductID", Type: warehouse.Integer},
		warehouse.Column{Name: "UnitPrice", Type: warehouse.Numeric},
		warehouse.Column{Name: "Quantity", Type: warehouse.Integer},
		warehouse.Column{Name: "Discount", Type: warehouse.Double},
	),
	northwind.CustomerNotes: def(northwind.CustomerNotes, "CustomerID",
		warehouse.Column{Name: "CustomerID", Type: warehouse.Text},
		warehouse.Column{Name: "Notes", Type: warehouse.Text},
	),
}

// SourceDefinition returns the seeded definition of a logical source table.
func SourceDefinition(logical string) (warehouse.TableDef, bool) {
	d, ok := sourceDefinitions[logical]
	return d, ok
}

// Seed creates the given tables under their physical names and copies their
// rows, all in one transaction.
func Seed(ctx context.Context, pool *pgxpool.Pool, tables []*table.Table, dropExisting bool) error {
	start := time.Now()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin seed: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, t := range tables {
		if err := seedTable(ctx, tx, t, dropExisting); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}

	logging.Info().
		Int("tables", len(tables)).
		Dur("elapsed", time.Since(start)).
		Msg("Seeded source")
	return nil
}

func seedTable(ctx context.Context, tx pgx.Tx, t *table.Table, dropExisting bool) error {
	d, ok := SourceDefinition(t.Name)
	if !ok {
		return fmt.Errorf("no source definition for table %s", t.Name)
	}
	physical := northwind.PhysicalName(t.Name, nil)
	ident := pgx.Identifier{SeedSchema, physical}

	if dropExisting {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident.Sanitize()+" CASCADE"); err != nil {
			return fmt.Errorf("failed to drop %s: %w", physical, err)
		}
	} else {
		var exists bool
		err := tx.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", ident.Sanitize()).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", physical, err)
		}
		if exists {
			return fmt.Errorf("%w: %s (use --drop-existing to replace)", ErrTablesExist, physical)
		}
	}

	if _, err := tx.Exec(ctx, d.CreateSQL(SeedSchema, physical)); err != nil {
		return fmt.Errorf("failed to create %s: %w", physical, err)
	}

	rows, err := warehouse.CopyRows(d, t)
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", physical, err)
	}
	n, err := tx.CopyFrom(ctx, ident, d.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", physical, err)
	}

	logging.Debug().
		Str("table", physical).
		Int64("rows", n).
		Msg("Seeded table")
	return nil
}

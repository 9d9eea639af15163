//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/pgedge-starschema/internal/northwind"
)

// ColumnType is the warehouse type of an output column.
type ColumnType int

// Column types.
const (
	Integer ColumnType = iota
	Numeric
	Double
	Text
	Date
)

// SQL returns the PostgreSQL type name.
func (c ColumnType) SQL() string {
	switch c {
	case Integer:
		return "INTEGER"
	case Numeric:
		return "NUMERIC(19,4)"
	case Double:
		return "DOUBLE PRECISION"
	case Date:
		return "DATE"
	}
	return "TEXT"
}

// Column is one warehouse column.
type Column struct {
	Name string
	Type ColumnType
}

// TableDef describes one star-schema table. Key is empty for tables without
// a primary key.
type TableDef struct {
	Name    string
	Key     string
	Columns []Column
}

// ColumnNames returns the column names in order.
func (d TableDef) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// CreateSQL returns the CREATE TABLE statement for the definition under
// relation in schema.
func (d TableDef) CreateSQL(schema, relation string) string {
	return d.create("TABLE", schema, relation)
}

func (d TableDef) create(kind, schema, relation string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE %s %s (\n", kind, pgx.Identifier{schema, relation}.Sanitize())
	for i, c := range d.Columns {
		fmt.Fprintf(&b, "    %s %s", pgx.Identifier{c.Name}.Sanitize(), c.Type.SQL())
		if c.Name == d.Key {
			b.WriteString(" PRIMARY KEY")
		}
		if i < len(d.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

// Definitions of the star-schema tables. Keys are only declared on
// dimensions; FactSales keeps orphan and null-keyed lines.
var (
	DimDate = TableDef{
		Name: northwind.DimDate,
		Key:  "DateKey",
		Columns: []Column{
			{"DateKey", Integer},
			{"Date", Date},
			{"Year", Integer},
			{"Quarter", Integer},
			{"Month", Integer},
			{"Day", Integer},
			{"DayName", Text},
			{"MonthName", Text},
		},
	}

	DimCustomers = TableDef{
		Name: northwind.DimCustomers,
		Key:  "CustomerKey",
		Columns: []Column{
			{"CustomerKey", Text},
			{"CustomerCompanyName", Text},
			{"CustomerContactName", Text},
			{"CustomerCountry", Text},
			{"CustomerCity", Text},
			{"CustomerNotes", Text},
		},
	}

	DimProducts = TableDef{
		Name: northwind.DimProducts,
		Key:  "ProductKey",
		Columns: []Column{
			{"ProductKey", Integer},
			{"ProductName", Text},
			{"CategoryName", Text},
			{"StandardPrice", Numeric},
			{"UnitsInStock", Integer},
		},
	}

	DimEmployees = TableDef{
		Name: northwind.DimEmployees,
		Key:  "EmployeeKey",
		Columns: []Column{
			{"EmployeeKey", Integer},
			{"LastName", Text},
			{"FirstName", Text},
			{"Title", Text},
			{"City", Text},
			{"Country", Text},
		},
	}

	DimShippers = TableDef{
		Name: northwind.DimShippers,
		Key:  "ShipperKey",
		Columns: []Column{
			{"ShipperKey", Integer},
			{"ShipperCompanyName", Text},
		},
	}

	DimSuppliers = TableDef{
		Name: northwind.DimSuppliers,
		Key:  "SupplierKey",
		Columns: []Column{
			{"SupplierKey", Integer},
			{"SupplierCompanyName", Text},
			{"SupplierContactName", Text},
			{"SupplierCity", Text},
			{"SupplierCountry", Text},
		},
	}

	FactSales = TableDef{
		Name: northwind.FactSales,
		Columns: []Column{
			{"OrderID", Integer},
			{"CustomerID", Text},
			{"EmployeeID", Integer},
			{"ShipperID", Integer},
			{"ProductID", Integer},
			{"OrderDateKey", Integer},
			{"ShippedDateKey", Integer},
			{"OrderQuantity", Integer},
			{"SaleUnitPrice", Numeric},
			{"Discount", Double},
			{"SalesAmount", Double},
			{"Freight", Numeric},
		},
	}
)

var definitions = map[string]TableDef{
	DimDate.Name:      DimDate,
	DimCustomers.Name: DimCustomers,
	DimProducts.Name:  DimProducts,
	DimEmployees.Name: DimEmployees,
	DimShippers.Name:  DimShippers,
	DimSuppliers.Name: DimSuppliers,
	FactSales.Name:    FactSales,
}

// Definition returns the warehouse definition of an output table.
func Definition(name string) (TableDef, bool) {
	d, ok := definitions[name]
	return d, ok
}

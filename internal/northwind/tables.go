//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package northwind names the order-management tables the pipeline reads and
// the star-schema tables it produces.
package northwind

import "strings"

// Logical source table names. Physical names can differ per source and are
// mapped in configuration.
const (
	Orders       = "Orders"
	OrderDetails = "OrderDetails"
	Customers    = "Customers"
	Products     = "Products"
	Categories   = "Categories"
	Employees    = "Employees"
	Shippers     = "Shippers"
	Suppliers    = "Suppliers"

	// CustomerNotes is the free-text notes feed keyed by customer id.
	CustomerNotes = "CustomerNotes"
)

// Output table names.
const (
	DimDate      = "DimDate"
	DimCustomers = "DimCustomers"
	DimProducts  = "DimProducts"
	DimEmployees = "DimEmployees"
	DimShippers  = "DimShippers"
	DimSuppliers = "DimSuppliers"
	FactSales    = "FactSales"
)

// SourceTables lists the logical tables extracted from the primary source,
// in extraction order.
var SourceTables = []string{
	Orders,
	OrderDetails,
	Customers,
	Products,
	Categories,
	Employees,
	Shippers,
	Suppliers,
}

// SharedTables lists the entities both sources carry. They are the only
// tables read from the secondary source.
var SharedTables = []string{
	Orders,
	OrderDetails,
	Customers,
	Products,
	Suppliers,
}

// OutputTables lists the star-schema tables in build and load order,
// dimensions first.
var OutputTables = []string{
	DimDate,
	DimCustomers,
	DimProducts,
	DimEmployees,
	DimShippers,
	DimSuppliers,
	FactSales,
}

// DefaultPhysicalNames maps logical names to the physical names used by the
// classic Northwind database where they differ.
var DefaultPhysicalNames = map[string]string{
	OrderDetails: "Order Details",
}

// DefaultNotesQuery reads the customer notes feed.
const DefaultNotesQuery = "SELECT CustomerID, Notes FROM Customers"

// PhysicalName resolves a logical table name using overrides first and the
// Northwind defaults second. Overrides are also matched lower-cased since
// viper folds map keys read from YAML.
func PhysicalName(logical string, overrides map[string]string) string {
	if name, ok := overrides[logical]; ok && name != "" {
		return name
	}
	if name, ok := overrides[strings.ToLower(logical)]; ok && name != "" {
		return name
	}
	if name, ok := DefaultPhysicalNames[logical]; ok {
		return name
	}
	return logical
}


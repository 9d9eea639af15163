//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package dimension derives the star-schema dimension tables from
// consolidated entity tables. Every builder is a pure function of its inputs.
package dimension

import (
	"fmt"

	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// Report describes one dimension build.
type Report struct {
	Table string
	Rows  int

	// NullKeysDropped counts source rows discarded because their key was
	// null.
	NullKeysDropped int

	// NullValues counts null source values skipped while deriving rows
	// (unshipped orders for DimDate).
	NullValues int
}

// spec describes a rename-and-project dimension.
type spec struct {
	name    string
	key     string
	renames map[string]string
	columns []string
}

var (
	customersSpec = spec{
		name: northwind.DimCustomers,
		key:  "CustomerID",
		renames: map[string]string{
			"CustomerID":  "CustomerKey",
			"CompanyName": "CustomerCompanyName",
			"ContactName": "CustomerContactName",
			"Country":     "CustomerCountry",
			"City":        "CustomerCity",
			"Notes":       "CustomerNotes",
		},
		columns: []string{
			"CustomerKey", "CustomerCompanyName", "CustomerContactName",
			"CustomerCountry", "CustomerCity", "CustomerNotes",
		},
	}

	productsSpec = spec{
		name: northwind.DimProducts,
		key:  "ProductID",
		renames: map[string]string{
			"ProductID": "ProductKey",
			"UnitPrice": "StandardPrice",
		},
		columns: []string{
			"ProductKey", "ProductName", "CategoryName", "StandardPrice", "UnitsInStock",
		},
	}

	employeesSpec = spec{
		name:    northwind.DimEmployees,
		key:     "EmployeeID",
		renames: map[string]string{"EmployeeID": "EmployeeKey"},
		columns: []string{"EmployeeKey", "LastName", "FirstName", "Title", "City", "Country"},
	}

	shippersSpec = spec{
		name: northwind.DimShippers,
		key:  "ShipperID",
		renames: map[string]string{
			"ShipperID":   "ShipperKey",
			"CompanyName": "ShipperCompanyName",
		},
		columns: []string{"ShipperKey", "ShipperCompanyName"},
	}

	suppliersSpec = spec{
		name: northwind.DimSuppliers,
		key:  "SupplierID",
		renames: map[string]string{
			"SupplierID":  "SupplierKey",
			"CompanyName": "SupplierCompanyName",
			"ContactName": "SupplierContactName",
			"City":        "SupplierCity",
			"Country":     "SupplierCountry",
		},
		columns: []string{
			"SupplierKey", "SupplierCompanyName", "SupplierContactName",
			"SupplierCity", "SupplierCountry",
		},
	}
)

// build drops null keys, drops columns that would collide with a rename
// target, renames and projects.
func (s spec) build(in *table.Table) (*table.Table, Report, error) {
	report := Report{Table: s.name}
	if in == nil {
		return nil, report, fmt.Errorf("build %s: %w: no input table", s.name, table.ErrMissingColumn)
	}

	t, dropped, err := in.DropNullKeys(s.key)
	if err != nil {
		return nil, report, fmt.Errorf("build %s: %w", s.name, err)
	}
	report.NullKeysDropped = dropped

	// An existing column named like a rename target is replaced by the rename.
	var shadowed []string
	for old, renamed := range s.renames {
		if _, renamedAway := s.renames[renamed]; !renamedAway && renamed != old && t.HasColumn(renamed) {
			shadowed = append(shadowed, renamed)
		}
	}
	if len(shadowed) > 0 {
		t = t.Drop(shadowed...)
	}

	t, err = t.Rename(s.renames)
	if err != nil {
		return nil, report, fmt.Errorf("build %s: %w", s.name, err)
	}
	t, err = t.Select(s.columns...)
	if err != nil {
		return nil, report, fmt.Errorf("build %s: %w", s.name, err)
	}

	out := t.WithName(s.name)
	report.Rows = out.Len()
	report.log()
	return out, report, nil
}

func (r Report) log() {
	ev := logging.Info()
	if r.NullKeysDropped > 0 {
		ev = logging.Warn()
	}
	ev.Str("table", r.Table).
		Int("rows", r.Rows).
		Int("null_keys_dropped", r.NullKeysDropped).
		Int("null_values", r.NullValues).
		Msg("Built dimension")
}

// Customers builds DimCustomers from consolidated customers. The input must
// carry a Notes column (see consolidate.Customers).
func Customers(customers *table.Table) (*table.Table, Report, error) {
	return customersSpec.build(customers)
}

// Products builds DimProducts by left-joining consolidated products to the
// category lookup. A product whose category is unknown keeps its row with a
// null CategoryName. A nil categories table yields null for every product.
func Products(products, categories *table.Table) (*table.Table, Report, error) {
	if products == nil {
		return productsSpec.build(nil)
	}

	var joined *table.Table
	var err error
	if categories == nil {
		logging.Warn().
			Str("table", northwind.DimProducts).
			Msg("Categories unavailable; CategoryName will be null")
		if !products.HasColumn("CategoryID") {
			return nil, Report{Table: northwind.DimProducts},
				fmt.Errorf("build %s: %w: %q in table %s", northwind.DimProducts, table.ErrMissingColumn, "CategoryID", products.Name)
		}
		joined = products.Drop("CategoryName").WithColumn("CategoryName", func(table.Row) any { return nil })
	} else {
		lookup, lerr := categories.Select("CategoryID", "CategoryName")
		if lerr != nil {
			return nil, Report{Table: northwind.DimProducts}, fmt.Errorf("build %s: %w", northwind.DimProducts, lerr)
		}
		joined, err = products.Drop("CategoryName").LeftJoin(lookup, "CategoryID", "CategoryID", "CategoryName")
		if err != nil {
			return nil, Report{Table: northwind.DimProducts}, fmt.Errorf("build %s: %w", northwind.DimProducts, err)
		}
	}
	return productsSpec.build(joined)
}

// Employees builds DimEmployees.
func Employees(employees *table.Table) (*table.Table, Report, error) {
	return employeesSpec.build(employees)
}

// Shippers builds DimShippers.
func Shippers(shippers *table.Table) (*table.Table, Report, error) {
	return shippersSpec.build(shippers)
}

// Suppliers builds DimSuppliers.
func Suppliers(suppliers *table.Table) (*table.Table, Report, error) {
	return suppliersSpec.build(suppliers)
}

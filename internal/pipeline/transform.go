//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline wires extraction, transformation, file output and the
// warehouse load into one run. Each stage takes the tables it needs and
// returns the tables it produces.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/pgEdge/pgedge-starschema/internal/consolidate"
	"github.com/pgEdge/pgedge-starschema/internal/dimension"
	"github.com/pgEdge/pgedge-starschema/internal/fact"
	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/source"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// ErrDependency is returned for a table that was not built because an input
// it needs failed earlier in the run.
var ErrDependency = errors.New("input table unavailable")

// Extract is the input of the transform stage.
type Extract struct {
	Primary   *source.Result
	Secondary *source.Result
	Notes     *table.Table
}

// Options controls the transform stage.
type Options struct {
	DedupOrders bool
}

// Output is the result of the transform stage.
type Output struct {
	// Tables holds the built dimension and fact tables by name.
	Tables map[string]*table.Table

	// Failed holds the error of every entity or output table that could
	// not be built.
	Failed map[string]error

	Consolidation map[string]consolidate.Stats
	Dimensions    map[string]dimension.Report
	Fact          fact.Report
}

// Built returns the built output tables in load order.
func (o *Output) Built() []*table.Table {
	var out []*table.Table
	for _, name := range northwind.OutputTables {
		if t, ok := o.Tables[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Transform consolidates the extracted sources and builds every dimension
// and the fact table. A failure is recorded against the table it affects
// and the tables that depend on it; independent tables are still built.
func Transform(in Extract, opts Options) *Output {
	out := &Output{
		Tables:        make(map[string]*table.Table),
		Failed:        make(map[string]error),
		Consolidation: make(map[string]consolidate.Stats),
		Dimensions:    make(map[string]dimension.Report),
	}
	p, s := in.Primary, in.Secondary

	orders := out.consolidate(northwind.Orders, func() (*table.Table, consolidate.Stats, error) {
		return consolidate.Orders(p.Table(northwind.Orders), s.Table(northwind.Orders),
			consolidate.Options{DedupOrders: opts.DedupOrders})
	})
	lines := out.consolidate(northwind.OrderDetails, func() (*table.Table, consolidate.Stats, error) {
		return consolidate.OrderLines(p.Table(northwind.OrderDetails), s.Table(northwind.OrderDetails))
	})
	customers := out.consolidate(northwind.Customers, func() (*table.Table, consolidate.Stats, error) {
		return consolidate.Customers(p.Table(northwind.Customers), s.Table(northwind.Customers), in.Notes)
	})
	products := out.consolidate(northwind.Products, func() (*table.Table, consolidate.Stats, error) {
		return consolidate.Products(p.Table(northwind.Products), s.Table(northwind.Products))
	})
	suppliers := out.consolidate(northwind.Suppliers, func() (*table.Table, consolidate.Stats, error) {
		return consolidate.Suppliers(p.Table(northwind.Suppliers), s.Table(northwind.Suppliers))
	})

	out.dimension(northwind.DimDate, []string{northwind.Orders}, func() (*table.Table, dimension.Report, error) {
		return dimension.Date(orders)
	})
	out.dimension(northwind.DimCustomers, []string{northwind.Customers}, func() (*table.Table, dimension.Report, error) {
		return dimension.Customers(customers)
	})
	out.dimension(northwind.DimProducts, []string{northwind.Products}, func() (*table.Table, dimension.Report, error) {
		return dimension.Products(products, p.Table(northwind.Categories))
	})
	out.dimension(northwind.DimEmployees, nil, func() (*table.Table, dimension.Report, error) {
		employees, err := primaryOnly(p, northwind.Employees)
		if err != nil {
			return nil, dimension.Report{Table: northwind.DimEmployees}, err
		}
		return dimension.Employees(employees)
	})
	out.dimension(northwind.DimShippers, nil, func() (*table.Table, dimension.Report, error) {
		shippers, err := primaryOnly(p, northwind.Shippers)
		if err != nil {
			return nil, dimension.Report{Table: northwind.DimShippers}, err
		}
		return dimension.Shippers(shippers)
	})
	out.dimension(northwind.DimSuppliers, []string{northwind.Suppliers}, func() (*table.Table, dimension.Report, error) {
		return dimension.Suppliers(suppliers)
	})

	if err := out.dependencies(northwind.Orders, northwind.OrderDetails, northwind.DimDate); err != nil {
		out.fail(northwind.FactSales, err)
	} else {
		t, report, err := fact.Build(orders, lines, out.Tables[northwind.DimDate])
		out.Fact = report
		if err != nil {
			out.fail(northwind.FactSales, err)
		} else {
			out.Tables[northwind.FactSales] = t
		}
	}

	return out
}

func (o *Output) consolidate(entity string, fn func() (*table.Table, consolidate.Stats, error)) *table.Table {
	t, stats, err := fn()
	o.Consolidation[entity] = stats
	if err != nil {
		o.fail(entity, err)
		return nil
	}
	return t
}

func (o *Output) dimension(name string, deps []string, fn func() (*table.Table, dimension.Report, error)) {
	if err := o.dependencies(deps...); err != nil {
		o.fail(name, err)
		return
	}
	t, report, err := fn()
	o.Dimensions[name] = report
	if err != nil {
		o.fail(name, err)
		return
	}
	o.Tables[name] = t
}

func (o *Output) dependencies(names ...string) error {
	for _, name := range names {
		if _, failed := o.Failed[name]; failed {
			return fmt.Errorf("%w: %s", ErrDependency, name)
		}
	}
	return nil
}

func (o *Output) fail(name string, err error) {
	o.Failed[name] = err
	logging.Error().
		Err(err).
		Str("table", name).
		Msg("Failed to build table")
}

// primaryOnly returns a table that only the primary source provides.
func primaryOnly(p *source.Result, logical string) (*table.Table, error) {
	t := p.Table(logical)
	if t == nil {
		return nil, fmt.Errorf("%w: %s not extracted from the primary source", ErrDependency, logical)
	}
	return t, nil
}

//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package fact builds the FactSales table from consolidated orders and order
// lines plus the date dimension.
package fact

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// ErrCardinality is returned when the fact table does not have exactly one
// row per consolidated order line.
var ErrCardinality = errors.New("fact cardinality mismatch")

// Columns is the FactSales schema, in output order.
var Columns = []string{
	"OrderID",
	"CustomerID",
	"EmployeeID",
	"ShipperID",
	"ProductID",
	"OrderDateKey",
	"ShippedDateKey",
	"OrderQuantity",
	"SaleUnitPrice",
	"Discount",
	"SalesAmount",
	"Freight",
}

// orderColumns are taken from the order header into each line.
var orderColumns = []string{
	"CustomerID",
	"EmployeeID",
	"ShipVia",
	"OrderDate",
	"RequiredDate",
	"ShippedDate",
	"Freight",
}

// Report describes a FactSales build.
type Report struct {
	Rows int

	// UnmatchedOrders counts lines whose OrderID has no order header.
	UnmatchedOrders int

	// NullSalesAmount counts lines where a null or non-numeric operand
	// left SalesAmount null.
	NullSalesAmount int

	// MissingOrderDateKey counts lines with no resolvable OrderDateKey.
	MissingOrderDateKey int

	// NullShippedDateKey counts lines of unshipped (or unresolvable) orders.
	NullShippedDateKey int
}

// SalesAmount returns quantity × unitPrice × (1 − discount). ok is false when
// any operand is null or not numeric.
func SalesAmount(quantity, unitPrice, discount any) (float64, bool) {
	q, ok := table.AsDecimal(quantity)
	if !ok {
		return 0, false
	}
	p, ok := table.AsDecimal(unitPrice)
	if !ok {
		return 0, false
	}
	d, ok := table.AsDecimal(discount)
	if !ok {
		return 0, false
	}
	return q.Mul(p).Mul(decimal.NewFromInt(1).Sub(d)).InexactFloat64(), true
}

// Build produces FactSales, in these steps:
//
//  1. left-join order lines to orders on OrderID (one row per line),
//  2. compute SalesAmount,
//  3. resolve OrderDateKey and ShippedDateKey with two independent left
//     joins against the date dimension,
//  4. rename ShipVia to ShipperID and Quantity to OrderQuantity,
//  5. project Columns.
//
// A column missing at any step fails the build; nothing is emitted with a
// partial schema.
func Build(orders, lines, dimDate *table.Table) (*table.Table, Report, error) {
	var report Report
	if orders == nil || lines == nil || dimDate == nil {
		return nil, report, fmt.Errorf("build %s: %w: missing input table", northwind.FactSales, table.ErrMissingColumn)
	}

	fail := func(step string, err error) (*table.Table, Report, error) {
		return nil, report, fmt.Errorf("build %s: %s: %w", northwind.FactSales, step, err)
	}

	t, err := lines.Rename(map[string]string{"UnitPrice": "SaleUnitPrice"})
	if err != nil {
		return fail("rename unit price", err)
	}

	header, err := orders.Select(append([]string{"OrderID"}, orderColumns...)...)
	if err != nil {
		return fail("select order columns", err)
	}
	t, err = t.LeftJoin(header, "OrderID", "OrderID", orderColumns...)
	if err != nil {
		return fail("join orders", err)
	}
	matched := make(map[string]bool, header.Len())
	for _, row := range header.Rows {
		if k, ok := table.CanonicalKey(row["OrderID"]); ok {
			matched[k] = true
		}
	}
	for _, row := range t.Rows {
		if k, ok := table.CanonicalKey(row["OrderID"]); !ok || !matched[k] {
			report.UnmatchedOrders++
		}
	}

	if err := requireColumns(t, "Quantity", "SaleUnitPrice", "Discount"); err != nil {
		return fail("sales amount", err)
	}
	t = t.WithColumn("SalesAmount", func(r table.Row) any {
		amount, ok := SalesAmount(r["Quantity"], r["SaleUnitPrice"], r["Discount"])
		if !ok {
			report.NullSalesAmount++
			return nil
		}
		return amount
	})

	dateKeys, err := dateLookup(dimDate)
	if err != nil {
		return fail("date lookup", err)
	}
	t, err = resolveDateKey(t, dateKeys, "OrderDate", "OrderDateKey")
	if err != nil {
		return fail("order date key", err)
	}
	t, err = resolveDateKey(t, dateKeys, "ShippedDate", "ShippedDateKey")
	if err != nil {
		return fail("shipped date key", err)
	}

	t, err = t.Rename(map[string]string{
		"ShipVia":  "ShipperID",
		"Quantity": "OrderQuantity",
	})
	if err != nil {
		return fail("rename", err)
	}

	t, err = t.Select(Columns...)
	if err != nil {
		return fail("project", err)
	}

	if t.Len() != lines.Len() {
		return fail("verify", fmt.Errorf("%w: %d rows for %d order lines", ErrCardinality, t.Len(), lines.Len()))
	}

	for _, row := range t.Rows {
		if row["OrderDateKey"] == nil {
			report.MissingOrderDateKey++
		}
		if row["ShippedDateKey"] == nil {
			report.NullShippedDateKey++
		}
	}
	report.Rows = t.Len()
	report.log()
	return t.WithName(northwind.FactSales), report, nil
}

func requireColumns(t *table.Table, cols ...string) error {
	for _, c := range cols {
		if !t.HasColumn(c) {
			return fmt.Errorf("%w: %q in table %s", table.ErrMissingColumn, c, t.Name)
		}
	}
	return nil
}

// dateLookup builds the Date -> DateKey lookup table, keyed on the canonical
// calendar date.
func dateLookup(dimDate *table.Table) (*table.Table, error) {
	sel, err := dimDate.Select("Date", "DateKey")
	if err != nil {
		return nil, err
	}
	return normalizeDate(sel, "Date", "_date")
}

// normalizeDate adds a column holding the calendar-date form of col so that
// timestamps join on their date.
func normalizeDate(t *table.Table, col, as string) (*table.Table, error) {
	if !t.HasColumn(col) {
		return nil, fmt.Errorf("%w: %q in table %s", table.ErrMissingColumn, col, t.Name)
	}
	return t.WithColumn(as, func(r table.Row) any {
		if d, ok := table.AsDate(r[col]); ok {
			return d
		}
		return nil
	}), nil
}

func resolveDateKey(t, dateKeys *table.Table, dateCol, keyCol string) (*table.Table, error) {
	const probe = "_probe"
	withProbe, err := normalizeDate(t, dateCol, probe)
	if err != nil {
		return nil, err
	}
	lookup, err := dateKeys.Rename(map[string]string{"DateKey": keyCol})
	if err != nil {
		return nil, err
	}
	joined, err := withProbe.LeftJoin(lookup, probe, "_date", keyCol)
	if err != nil {
		return nil, err
	}
	return joined.Drop(probe), nil
}

func (r Report) log() {
	ev := logging.Info()
	if r.UnmatchedOrders > 0 || r.NullSalesAmount > 0 || r.MissingOrderDateKey > 0 {
		ev = logging.Warn()
	}
	ev.Str("table", northwind.FactSales).
		Int("rows", r.Rows).
		Int("unmatched_orders", r.UnmatchedOrders).
		Int("null_sales_amount", r.NullSalesAmount).
		Int("missing_order_date_key", r.MissingOrderDateKey).
		Int("null_shipped_date_key", r.NullShippedDateKey).
		Msg("Built fact table")
}

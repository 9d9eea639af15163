//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package dimension

import (
	"fmt"
	"sort"
	"time"

	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// OrderDateColumns are the order columns whose values make up the date
// dimension.
var OrderDateColumns = []string{"OrderDate", "RequiredDate", "ShippedDate"}

// DateColumns is the DimDate schema.
var DateColumns = []string{"DateKey", "Date", "Year", "Quarter", "Month", "Day", "DayName", "MonthName"}

// Date builds DimDate: one row per distinct calendar date found in any of
// the order date columns, nulls excluded, sorted by DateKey. It is not a
// contiguous calendar.
func Date(orders *table.Table) (*table.Table, Report, error) {
	report := Report{Table: northwind.DimDate}
	if orders == nil {
		return nil, report, fmt.Errorf("build %s: %w: no input table", northwind.DimDate, table.ErrMissingColumn)
	}

	dates := make(map[int64]time.Time)
	nulls := 0
	for _, col := range OrderDateColumns {
		values, err := orders.Column(col)
		if err != nil {
			return nil, report, fmt.Errorf("build %s: %w", northwind.DimDate, err)
		}
		for _, v := range values {
			d, ok := table.AsDate(v)
			if !ok {
				if !table.IsNull(v) {
					return nil, report, fmt.Errorf("build %s: %s value %v is not a date", northwind.DimDate, col, v)
				}
				nulls++
				continue
			}
			dates[table.DateKey(d)] = d
		}
	}

	keys := make([]int64, 0, len(dates))
	for k := range dates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := table.New(northwind.DimDate, DateColumns...)
	for _, k := range keys {
		d := dates[k]
		out.AppendValues(
			k,
			d,
			int64(d.Year()),
			int64(Quarter(d)),
			int64(d.Month()),
			int64(d.Day()),
			d.Weekday().String(),
			d.Month().String(),
		)
	}

	report.Rows = out.Len()
	report.NullValues = nulls
	report.log()
	return out, report, nil
}

// Quarter returns the calendar quarter (1-4) of t.
func Quarter(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

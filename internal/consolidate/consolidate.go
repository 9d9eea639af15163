//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package consolidate merges same-entity tables extracted from the primary
// and secondary sources into one table per entity.
//
// Rows are always stacked primary first, so first-occurrence dedup means the
// primary source wins every key conflict and the secondary source only
// contributes keys the primary source lacks. A source that is absent is
// skipped and reported, never treated as an error.
package consolidate

import (
	"fmt"

	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// Source labels used in diagnostics.
const (
	SourcePrimary   = "primary"
	SourceSecondary = "secondary"
	SourceNotes     = "notes"
)

// Options controls consolidation policy.
type Options struct {
	// DedupOrders deduplicates orders by OrderID with primary-source
	// priority. When false, orders from both sources are stacked as-is.
	DedupOrders bool
}

// DefaultOptions returns the default consolidation policy.
func DefaultOptions() Options {
	return Options{DedupOrders: true}
}

// Stats reports what a consolidation did.
type Stats struct {
	Entity string

	// PrimaryRows and SecondaryRows are the input row counts.
	PrimaryRows   int
	SecondaryRows int

	// Duplicates is the number of distinct keys present in both sources.
	// Each one discards the secondary rows carrying it.
	Duplicates int

	// InternalDuplicates is the number of rows removed because their key
	// repeats within the same source.
	InternalDuplicates int

	// SecondaryContributed is the number of output rows that came from the
	// secondary source.
	SecondaryContributed int

	// Rows is the output row count.
	Rows int

	// MissingSources lists the sources that provided no table.
	MissingSources []string
}

func (s Stats) log() {
	ev := logging.Info()
	if len(s.MissingSources) > 0 {
		ev = logging.Warn().Strs("missing_sources", s.MissingSources)
	}
	ev.Str("entity", s.Entity).
		Int("primary_rows", s.PrimaryRows).
		Int("secondary_rows", s.SecondaryRows).
		Int("duplicates_removed", s.Duplicates).
		Int("internal_duplicates", s.InternalDuplicates).
		Int("secondary_contributed", s.SecondaryContributed).
		Int("rows", s.Rows).
		Msg("Consolidated entity")
}

func newStats(entity string, primary, secondary *table.Table) Stats {
	s := Stats{
		Entity:        entity,
		PrimaryRows:   primary.Len(),
		SecondaryRows: secondary.Len(),
	}
	if primary == nil {
		s.MissingSources = append(s.MissingSources, SourcePrimary)
	}
	if secondary == nil {
		s.MissingSources = append(s.MissingSources, SourceSecondary)
	}
	return s
}

// ByKey stacks primary then secondary and keeps the first row for each key.
// With neither source present the result is an empty table carrying only the
// key columns, so downstream projections fail loudly on the missing schema.
func ByKey(entity string, primary, secondary *table.Table, keys ...string) (*table.Table, Stats, error) {
	stats := newStats(entity, primary, secondary)

	if primary == nil && secondary == nil {
		stats.log()
		return table.New(entity, keys...), stats, nil
	}

	primaryDistinct := 0
	if primary != nil {
		p, removed, err := primary.DedupBy(keys...)
		if err != nil {
			return nil, stats, fmt.Errorf("consolidate %s (primary): %w", entity, err)
		}
		primaryDistinct = p.Len()
		stats.InternalDuplicates += removed
	}
	if secondary != nil {
		_, removed, err := secondary.DedupBy(keys...)
		if err != nil {
			return nil, stats, fmt.Errorf("consolidate %s (secondary): %w", entity, err)
		}
		stats.InternalDuplicates += removed
	}

	primaryKeys, err := primary.KeySet(keys...)
	if err != nil {
		return nil, stats, fmt.Errorf("consolidate %s (primary): %w", entity, err)
	}
	secondaryKeys, err := secondary.KeySet(keys...)
	if err != nil {
		return nil, stats, fmt.Errorf("consolidate %s (secondary): %w", entity, err)
	}
	for k := range secondaryKeys {
		if _, ok := primaryKeys[k]; ok {
			stats.Duplicates++
		}
	}

	out, _, err := table.Concat(entity, primary, secondary).DedupBy(keys...)
	if err != nil {
		return nil, stats, fmt.Errorf("consolidate %s: %w", entity, err)
	}

	stats.Rows = out.Len()
	stats.SecondaryContributed = out.Len() - primaryDistinct
	stats.log()
	return out, stats, nil
}

// Stack concatenates primary then secondary without deduplication.
func Stack(entity string, primary, secondary *table.Table) (*table.Table, Stats) {
	stats := newStats(entity, primary, secondary)
	out := table.Concat(entity, primary, secondary)
	stats.Rows = out.Len()
	stats.SecondaryContributed = secondary.Len()
	stats.log()
	return out, stats
}

// Orders consolidates order headers. Dedup by OrderID is controlled by
// opts.DedupOrders.
func Orders(primary, secondary *table.Table, opts Options) (*table.Table, Stats, error) {
	if !opts.DedupOrders {
		out, stats := Stack(northwind.Orders, primary, secondary)
		return out, stats, nil
	}
	return ByKey(northwind.Orders, primary, secondary, "OrderID")
}

// OrderLines consolidates order detail rows on (OrderID, ProductID).
// Stats.Duplicates is the number of pairs present in both sources; repeats
// within one source are counted in Stats.InternalDuplicates.
func OrderLines(primary, secondary *table.Table) (*table.Table, Stats, error) {
	return ByKey(northwind.OrderDetails, primary, secondary, "OrderID", "ProductID")
}

// Products consolidates products on ProductID.
func Products(primary, secondary *table.Table) (*table.Table, Stats, error) {
	return ByKey(northwind.Products, primary, secondary, "ProductID")
}

// Suppliers consolidates suppliers on SupplierID.
func Suppliers(primary, secondary *table.Table) (*table.Table, Stats, error) {
	return ByKey(northwind.Suppliers, primary, secondary, "SupplierID")
}

// Customers consolidates customers on CustomerID and attaches Notes.
//
// CustomerID is rewritten to its canonical string form in both inputs before
// the merge, since one source may store it as a number. When the notes feed
// is present it is authoritative for Notes. Without it, a Notes column carried
// by the customer tables is kept, and otherwise Notes is added as null.
func Customers(primary, secondary, notes *table.Table) (*table.Table, Stats, error) {
	p, err := canonical(primary, "CustomerID")
	if err != nil {
		return nil, Stats{Entity: northwind.Customers}, fmt.Errorf("consolidate %s (primary): %w", northwind.Customers, err)
	}
	s, err := canonical(secondary, "CustomerID")
	if err != nil {
		return nil, Stats{Entity: northwind.Customers}, fmt.Errorf("consolidate %s (secondary): %w", northwind.Customers, err)
	}

	out, stats, err := ByKey(northwind.Customers, p, s, "CustomerID")
	if err != nil {
		return nil, stats, err
	}

	out, err = attachNotes(out, notes)
	if err != nil {
		return nil, stats, fmt.Errorf("consolidate %s: %w", northwind.Customers, err)
	}
	return out, stats, nil
}

func canonical(t *table.Table, col string) (*table.Table, error) {
	if t == nil {
		return nil, nil
	}
	return t.Canonicalize(col)
}

func attachNotes(customers, notes *table.Table) (*table.Table, error) {
	if notes == nil || !notes.HasColumn("CustomerID") || !notes.HasColumn("Notes") {
		logging.Warn().
			Str("source", SourceNotes).
			Msg("Customer notes feed unavailable; keeping source notes or null")
		if customers.HasColumn("Notes") {
			return customers, nil
		}
		return customers.WithColumn("Notes", func(table.Row) any { return nil }), nil
	}

	feed, err := notes.Select("CustomerID", "Notes")
	if err != nil {
		return nil, err
	}
	feed, err = feed.Canonicalize("CustomerID")
	if err != nil {
		return nil, err
	}
	feed, removed, err := feed.DedupBy("CustomerID")
	if err != nil {
		return nil, err
	}

	joined, err := customers.Drop("Notes").LeftJoin(feed, "CustomerID", "CustomerID", "Notes")
	if err != nil {
		return nil, err
	}

	matched := 0
	for _, row := range joined.Rows {
		if !table.IsNull(row["Notes"]) {
			matched++
		}
	}
	logging.Info().
		Str("source", SourceNotes).
		Int("feed_rows", notes.Len()).
		Int("duplicates_removed", removed).
		Int("customers_with_notes", matched).
		Msg("Attached customer notes")
	return joined, nil
}

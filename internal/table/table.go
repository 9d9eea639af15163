//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package table implements the in-memory tabular model the transform stages
// operate on: an ordered list of columns and an ordered list of rows, each row
// mapping column names to scalar values. A nil value is a SQL NULL.
//
// Every operation returns a new Table and leaves its inputs untouched, so a
// raw extract can be exported, consolidated and joined without any stage
// observing another stage's edits.
package table

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMissingColumn is returned when an operation references a column the
	// table does not have.
	ErrMissingColumn = errors.New("missing column")

	// ErrColumnConflict is returned when an operation would produce two
	// columns with the same name.
	ErrColumnConflict = errors.New("column conflict")

	// ErrDuplicateKey is returned by LeftJoin when the right-hand side is not
	// unique on its join key, which would fan out the driving table.
	ErrDuplicateKey = errors.New("duplicate join key")
)

// Row maps column names to scalar values.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is a named, ordered collection of rows sharing a column list.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// New creates an empty table with the given columns.
func New(name string, columns ...string) *Table {
	return &Table{
		Name:    name,
		Columns: append([]string(nil), columns...),
	}
}

// Append adds a row. Columns the row carries that the table does not know
// about are ignored by projections but kept in the row.
func (t *Table) Append(row Row) {
	t.Rows = append(t.Rows, row)
}

// AppendValues adds a row whose values are given in column order.
func (t *Table) AppendValues(values ...any) {
	row := make(Row, len(t.Columns))
	for i, col := range t.Columns {
		if i < len(values) {
			row[col] = values[i]
		} else {
			row[col] = nil
		}
	}
	t.Rows = append(t.Rows, row)
}

// Len returns the number of rows. A nil table has zero rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the table declares the column.
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Column returns the values of one column in row order.
func (t *Table) Column(name string) ([]any, error) {
	if err := t.require(name); err != nil {
		return nil, err
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[name]
	}
	return out, nil
}

func (t *Table) require(cols ...string) error {
	for _, c := range cols {
		if !t.HasColumn(c) {
			return fmt.Errorf("%w: %q in table %s", ErrMissingColumn, c, t.Name)
		}
	}
	return nil
}

// Concat stacks tables in the given order. Nil tables are skipped. The result
// carries the union of all columns in first-seen order; cells a table did not
// provide are null.
func Concat(name string, tables ...*Table) *Table {
	out := New(name)
	seen := make(map[string]bool)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				out.Columns = append(out.Columns, c)
			}
		}
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, row := range t.Rows {
			r := make(Row, len(out.Columns))
			for _, c := range out.Columns {
				r[c] = row[c]
			}
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// rowKey builds a composite key from the canonical form of each key column.
// ok is false when any key part is null.
func rowKey(row Row, keys []string) (string, bool) {
	if len(keys) == 1 {
		return CanonicalKey(row[keys[0]])
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		s, ok := CanonicalKey(row[k])
		if !ok {
			return "", false
		}
		parts[i] = s
	}
	return strings.Join(parts, "\x1f"), true
}

// KeySet returns the distinct non-null keys of the table. A nil table has
// no keys.
func (t *Table) KeySet(keys ...string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if t == nil {
		return set, nil
	}
	if err := t.require(keys...); err != nil {
		return nil, err
	}
	for _, row := range t.Rows {
		if k, ok := rowKey(row, keys); ok {
			set[k] = struct{}{}
		}
	}
	return set, nil
}

// DedupBy keeps the first row for each distinct key and returns the number of
// rows removed. Rows with a null key part are never treated as duplicates.
func (t *Table) DedupBy(keys ...string) (*Table, int, error) {
	if err := t.require(keys...); err != nil {
		return nil, 0, err
	}
	out := New(t.Name, t.Columns...)
	seen := make(map[string]struct{}, len(t.Rows))
	removed := 0
	for _, row := range t.Rows {
		k, ok := rowKey(row, keys)
		if ok {
			if _, dup := seen[k]; dup {
				removed++
				continue
			}
			seen[k] = struct{}{}
		}
		out.Rows = append(out.Rows, row.Clone())
	}
	return out, removed, nil
}

// Canonicalize rewrites the given columns to their canonical key strings so
// values typed differently by different drivers compare equal.
func (t *Table) Canonicalize(cols ...string) (*Table, error) {
	if err := t.require(cols...); err != nil {
		return nil, err
	}
	out := New(t.Name, t.Columns...)
	out.Rows = make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		r := row.Clone()
		for _, c := range cols {
			if s, ok := CanonicalKey(r[c]); ok {
				r[c] = s
			} else {
				r[c] = nil
			}
		}
		out.Rows[i] = r
	}
	return out, nil
}

// Rename renames columns according to mapping (old name to new name).
// Renaming a column that does not exist is an error, as is renaming onto a
// column that is kept under its own name.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	olds := make([]string, 0, len(mapping))
	for old := range mapping {
		olds = append(olds, old)
	}
	sort.Strings(olds)
	if err := t.require(olds...); err != nil {
		return nil, err
	}

	cols := make([]string, len(t.Columns))
	seen := make(map[string]bool, len(t.Columns))
	for i, c := range t.Columns {
		n := c
		if renamed, ok := mapping[c]; ok {
			n = renamed
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: %q in table %s", ErrColumnConflict, n, t.Name)
		}
		seen[n] = true
		cols[i] = n
	}

	out := New(t.Name, cols...)
	out.Rows = make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		r := make(Row, len(row))
		for k, v := range row {
			if renamed, ok := mapping[k]; ok {
				r[renamed] = v
			} else if _, taken := r[k]; !taken {
				r[k] = v
			}
		}
		out.Rows[i] = r
	}
	return out, nil
}

// Select projects exactly the given columns, in the given order.
func (t *Table) Select(cols ...string) (*Table, error) {
	if err := t.require(cols...); err != nil {
		return nil, err
	}
	out := New(t.Name, cols...)
	out.Rows = make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		r := make(Row, len(cols))
		for _, c := range cols {
			r[c] = row[c]
		}
		out.Rows[i] = r
	}
	return out, nil
}

// Drop removes the given columns. Columns the table does not have are
// ignored.
func (t *Table) Drop(cols ...string) *Table {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	keep := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	out, _ := t.Select(keep...)
	return out
}

// WithName returns a shallow copy of the table under another name.
func (t *Table) WithName(name string) *Table {
	return &Table{Name: name, Columns: t.Columns, Rows: t.Rows}
}

// WithColumn adds (or replaces) a column whose value is computed from each
// row.
func (t *Table) WithColumn(name string, fn func(Row) any) *Table {
	cols := t.Columns
	if !t.HasColumn(name) {
		cols = append(append([]string(nil), t.Columns...), name)
	}
	out := New(t.Name, cols...)
	out.Rows = make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		r := row.Clone()
		r[name] = fn(row)
		out.Rows[i] = r
	}
	return out
}

// DropNullKeys removes rows whose value in col is null and returns how many
// were removed.
func (t *Table) DropNullKeys(col string) (*Table, int, error) {
	if err := t.require(col); err != nil {
		return nil, 0, err
	}
	out := New(t.Name, t.Columns...)
	dropped := 0
	for _, row := range t.Rows {
		if _, ok := CanonicalKey(row[col]); !ok {
			dropped++
			continue
		}
		out.Rows = append(out.Rows, row.Clone())
	}
	return out, dropped, nil
}

// LeftJoin keeps every row of t exactly once and copies rightCols from the
// matching row of right, or nulls when nothing matches. Keys are compared in
// canonical form. The right side must be unique on rightKey; a null left key
// never matches.
func (t *Table) LeftJoin(right *Table, leftKey, rightKey string, rightCols ...string) (*Table, error) {
	if right == nil {
		return nil, fmt.Errorf("left join %s: right table is nil", t.Name)
	}
	if err := t.require(leftKey); err != nil {
		return nil, err
	}
	if err := right.require(append([]string{rightKey}, rightCols...)...); err != nil {
		return nil, err
	}
	for _, c := range rightCols {
		if t.HasColumn(c) {
			return nil, fmt.Errorf("%w: %q joining %s into %s", ErrColumnConflict, c, right.Name, t.Name)
		}
	}

	index := make(map[string]Row, len(right.Rows))
	for _, row := range right.Rows {
		k, ok := CanonicalKey(row[rightKey])
		if !ok {
			continue
		}
		if _, dup := index[k]; dup {
			return nil, fmt.Errorf("%w: %s.%s = %q", ErrDuplicateKey, right.Name, rightKey, k)
		}
		index[k] = row
	}

	out := New(t.Name, append(append([]string(nil), t.Columns...), rightCols...)...)
	out.Rows = make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		r := row.Clone()
		var match Row
		if k, ok := CanonicalKey(row[leftKey]); ok {
			match = index[k]
		}
		for _, c := range rightCols {
			if match != nil {
				r[c] = match[c]
			} else {
				r[c] = nil
			}
		}
		out.Rows[i] = r
	}
	return out, nil
}

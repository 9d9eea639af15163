//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package table

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customers(name string, rows ...[]any) *Table {
	t := New(name, "CustomerID", "CompanyName")
	for _, r := range rows {
		t.AppendValues(r...)
	}
	return t
}

func TestConcatUnionsColumns(t *testing.T) {
	a := customers("a", []any{"ALFKI", "Alfreds"})
	b := New("b", "CustomerID", "Notes")
	b.AppendValues("BONAP", "VIP")

	out := Concat("all", a, nil, b)

	assert.Equal(t, []string{"CustomerID", "CompanyName", "Notes"}, out.Columns)
	require.Equal(t, 2, out.Len())
	assert.Nil(t, out.Rows[0]["Notes"])
	assert.Nil(t, out.Rows[1]["CompanyName"])
	assert.Equal(t, "VIP", out.Rows[1]["Notes"])
}

func TestConcatAllNil(t *testing.T) {
	out := Concat("empty", nil, nil)
	assert.Equal(t, 0, out.Len())
	assert.Empty(t, out.Columns)
}

func TestDedupByFirstWins(t *testing.T) {
	in := customers("c",
		[]any{"5", "primary"},
		[]any{int64(5), "secondary"},
		[]any{"6", "other"},
		[]any{nil, "no key"},
		[]any{nil, "no key either"},
	)

	out, removed, err := in.DedupBy("CustomerID")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	require.Equal(t, 4, out.Len())
	assert.Equal(t, "primary", out.Rows[0]["CompanyName"])
	assert.Equal(t, "other", out.Rows[1]["CompanyName"])
}

func TestDedupByCompositeKey(t *testing.T) {
	in := New("lines", "OrderID", "ProductID", "Quantity")
	in.AppendValues(int32(10), int32(3), 2)
	in.AppendValues(float64(10), "3", 5)
	in.AppendValues(10, 4, 1)

	out, removed, err := in.DedupBy("OrderID", "ProductID")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, 2, out.Rows[0]["Quantity"])
}

func TestDedupByMissingColumn(t *testing.T) {
	_, _, err := customers("c").DedupBy("Nope")
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestKeySet(t *testing.T) {
	in := customers("c",
		[]any{"5", "a"},
		[]any{int64(5), "b"},
		[]any{nil, "no key"},
		[]any{"ALFKI", "c"},
	)

	keys, err := in.KeySet("CustomerID")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "ALFKI")

	var missing *Table
	keys, err = missing.KeySet("CustomerID")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = in.KeySet("Nope")
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestRename(t *testing.T) {
	in := customers("c", []any{"ALFKI", "Alfreds"})

	out, err := in.Rename(map[string]string{"CustomerID": "CustomerKey"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CustomerKey", "CompanyName"}, out.Columns)
	assert.Equal(t, "ALFKI", out.Rows[0]["CustomerKey"])
	assert.NotContains(t, out.Rows[0], "CustomerID")

	// input untouched
	assert.Equal(t, "ALFKI", in.Rows[0]["CustomerID"])
}

func TestRenameErrors(t *testing.T) {
	in := customers("c")

	_, err := in.Rename(map[string]string{"ShipVia": "ShipperID"})
	assert.True(t, errors.Is(err, ErrMissingColumn))

	_, err = in.Rename(map[string]string{"CustomerID": "CompanyName"})
	assert.True(t, errors.Is(err, ErrColumnConflict))
}

func TestRenameSwap(t *testing.T) {
	in := customers("c", []any{"A", "B"})
	out, err := in.Rename(map[string]string{"CustomerID": "CompanyName", "CompanyName": "CustomerID"})
	require.NoError(t, err)
	assert.Equal(t, "B", out.Rows[0]["CustomerID"])
	assert.Equal(t, "A", out.Rows[0]["CompanyName"])
}

func TestSelect(t *testing.T) {
	in := customers("c", []any{"ALFKI", "Alfreds"})

	out, err := in.Select("CompanyName")
	require.NoError(t, err)
	assert.Equal(t, []string{"CompanyName"}, out.Columns)
	assert.Len(t, out.Rows[0], 1)

	_, err = in.Select("CompanyName", "Fax")
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestLeftJoinPreservesLeft(t *testing.T) {
	products := New("Products", "ProductID", "CategoryID")
	products.AppendValues(1, 1)
	products.AppendValues(2, 99)
	products.AppendValues(3, nil)

	categories := New("Categories", "CategoryID", "CategoryName")
	categories.AppendValues(int64(1), "Beverages")
	categories.AppendValues(int64(2), "Condiments")

	out, err := products.LeftJoin(categories, "CategoryID", "CategoryID", "CategoryName")
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, "Beverages", out.Rows[0]["CategoryName"])
	assert.Nil(t, out.Rows[1]["CategoryName"])
	assert.Nil(t, out.Rows[2]["CategoryName"])
	assert.Contains(t, out.Rows[1], "CategoryName")
}

func TestLeftJoinRejectsFanOut(t *testing.T) {
	left := New("l", "k")
	left.AppendValues(1)
	right := New("r", "k", "v")
	right.AppendValues(1, "a")
	right.AppendValues("1", "b")

	_, err := left.LeftJoin(right, "k", "k", "v")
	assert.True(t, errors.Is(err, ErrDuplicateKey))
}

func TestLeftJoinColumnConflict(t *testing.T) {
	left := New("l", "k", "v")
	right := New("r", "k", "v")
	_, err := left.LeftJoin(right, "k", "k", "v")
	assert.True(t, errors.Is(err, ErrColumnConflict))

	_, err = left.LeftJoin(nil, "k", "k")
	assert.Error(t, err)
}

func TestCanonicalize(t *testing.T) {
	in := New("c", "CustomerID")
	in.AppendValues(int64(5))
	in.AppendValues("ALFKI  ")
	in.AppendValues(nil)

	out, err := in.Canonicalize("CustomerID")
	require.NoError(t, err)
	assert.Equal(t, "5", out.Rows[0]["CustomerID"])
	assert.Equal(t, "ALFKI", out.Rows[1]["CustomerID"])
	assert.Nil(t, out.Rows[2]["CustomerID"])
}

func TestDropNullKeys(t *testing.T) {
	in := New("c", "k")
	in.AppendValues(1)
	in.AppendValues(nil)
	out, dropped, err := in.DropNullKeys("k")
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, out.Len())
}

func TestWithColumn(t *testing.T) {
	in := New("c", "a")
	in.AppendValues(2)
	out := in.WithColumn("b", func(r Row) any { return r["a"].(int) * 2 })
	assert.Equal(t, []string{"a", "b"}, out.Columns)
	assert.Equal(t, 4, out.Rows[0]["b"])
	assert.Equal(t, []string{"a"}, in.Columns)
}

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{nil, "", false},
		{"5", "5", true},
		{int32(5), "5", true},
		{float64(5), "5", true},
		{float64(5.5), "5.5", true},
		{decimal.RequireFromString("5.00"), "5", true},
		{[]byte("ALFKI"), "ALFKI", true},
		{time.Date(1996, 7, 4, 0, 0, 0, 0, time.UTC), "1996-07-04", true},
	}
	for _, tt := range tests {
		got, ok := CanonicalKey(tt.in)
		assert.Equal(t, tt.ok, ok, "%#v", tt.in)
		assert.Equal(t, tt.want, got, "%#v", tt.in)
	}
}

func TestCoercions(t *testing.T) {
	f, ok := AsFloat64([]byte("32.3800"))
	require.True(t, ok)
	assert.InDelta(t, 32.38, f, 1e-9)

	_, ok = AsFloat64(nil)
	assert.False(t, ok)

	i, ok := AsInt64(float64(12))
	require.True(t, ok)
	assert.Equal(t, int64(12), i)

	_, ok = AsInt64(12.5)
	assert.False(t, ok)

	d, ok := AsDate("1996-07-04 13:45:00")
	require.True(t, ok)
	assert.Equal(t, int64(19960704), DateKey(d))

	d, ok = AsDate(time.Date(1998, 5, 6, 23, 59, 0, 0, time.FixedZone("x", -5*3600)))
	require.True(t, ok)
	assert.Equal(t, int64(19980506), DateKey(d))

	_, ok = AsDate(nil)
	assert.False(t, ok)
}

//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package consolidate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-starschema/internal/table"
)

func products(name string, rows ...[]any) *table.Table {
	t := table.New(name, "ProductID", "ProductName", "CategoryID")
	for _, r := range rows {
		t.AppendValues(r...)
	}
	return t
}

func keySet(t *testing.T, tbl *table.Table, col string) map[string]bool {
	t.Helper()
	out := make(map[string]bool)
	values, err := tbl.Column(col)
	require.NoError(t, err)
	for _, v := range values {
		k, ok := table.CanonicalKey(v)
		require.True(t, ok)
		out[k] = true
	}
	return out
}

func TestByKeyUnionPrimaryWins(t *testing.T) {
	primary := products("p",
		[]any{int32(1), "Chai", 1},
		[]any{int32(2), "Chang", 1},
	)
	secondary := products("s",
		[]any{int64(2), "Chang (old)", 2},
		[]any{int64(3), "Aniseed Syrup", 2},
	)

	out, stats, err := Products(primary, secondary)
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"1": true, "2": true, "3": true}, keySet(t, out, "ProductID"))
	require.Equal(t, 3, out.Len())
	assert.Equal(t, "Chang", out.Rows[1]["ProductName"])
	assert.Equal(t, 1, out.Rows[1]["CategoryID"])
	assert.Equal(t, "Aniseed Syrup", out.Rows[2]["ProductName"])

	assert.Equal(t, 2, stats.PrimaryRows)
	assert.Equal(t, 2, stats.SecondaryRows)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, stats.SecondaryContributed)
	assert.Empty(t, stats.MissingSources)
}

func TestByKeyMissingSecondary(t *testing.T) {
	primary := products("p", []any{1, "Chai", 1})

	out, stats, err := Products(primary, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, 0, stats.SecondaryContributed)
	assert.Equal(t, []string{SourceSecondary}, stats.MissingSources)
}

func TestByKeyMissingPrimary(t *testing.T) {
	secondary := products("s", []any{1, "Chai", 1})

	out, stats, err := Suppliers(nil, table.New("s", "SupplierID"))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, []string{SourcePrimary}, stats.MissingSources)

	out, stats, err = Products(nil, secondary)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, 1, stats.SecondaryContributed)
}

func TestByKeyNoSources(t *testing.T) {
	out, stats, err := Products(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, []string{"ProductID"}, out.Columns)
	assert.Len(t, stats.MissingSources, 2)
}

func TestByKeyMissingKeyColumn(t *testing.T) {
	bad := table.New("s", "Name")
	_, _, err := Products(products("p"), bad)
	assert.True(t, errors.Is(err, table.ErrMissingColumn))
}

func TestOrderLinesDuplicateCount(t *testing.T) {
	primary := table.New("p", "OrderID", "ProductID", "Quantity", "UnitPrice", "Discount")
	primary.AppendValues(10, 3, 2, 10.0, 0.1)
	primary.AppendValues(10, 4, 1, 5.0, 0.0)
	primary.AppendValues(11, 3, 7, 10.0, 0.0)

	secondary := table.New("s", "OrderID", "ProductID", "Quantity", "UnitPrice", "Discount")
	secondary.AppendValues(int64(10), int64(3), 5, 10.0, 0.1)
	secondary.AppendValues(int64(11), int64(3), 9, 10.0, 0.0)
	secondary.AppendValues(int64(12), int64(1), 1, 18.0, 0.0)

	out, stats, err := OrderLines(primary, secondary)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Duplicates)
	assert.Equal(t, 0, stats.InternalDuplicates)
	require.Equal(t, 4, out.Len())
	assert.Equal(t, 2, out.Rows[0]["Quantity"])
	assert.Equal(t, 7, out.Rows[2]["Quantity"])
	assert.Equal(t, 1, stats.SecondaryContributed)
}

func TestOrderLinesRepeatWithinSource(t *testing.T) {
	primary := table.New("p", "OrderID", "ProductID", "Quantity")
	primary.AppendValues(10, 3, 2)
	primary.AppendValues(10, 3, 4)

	secondary := table.New("s", "OrderID", "ProductID", "Quantity")
	secondary.AppendValues(int64(11), int64(1), 5)

	out, stats, err := OrderLines(primary, secondary)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Duplicates)
	assert.Equal(t, 1, stats.InternalDuplicates)
	assert.Equal(t, 1, stats.SecondaryContributed)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, 2, out.Rows[0]["Quantity"])
}

func TestOrderLinesSharedKeyRepeatedInSecondary(t *testing.T) {
	primary := table.New("p", "OrderID", "ProductID", "Quantity")
	primary.AppendValues(10, 3, 2)

	secondary := table.New("s", "OrderID", "ProductID", "Quantity")
	secondary.AppendValues(int64(10), int64(3), 5)
	secondary.AppendValues(int64(10), int64(3), 6)

	out, stats, err := OrderLines(primary, secondary)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, stats.InternalDuplicates)
	assert.Equal(t, 0, stats.SecondaryContributed)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, 2, out.Rows[0]["Quantity"])
}

func TestOrdersDedupPolicy(t *testing.T) {
	primary := table.New("p", "OrderID", "Freight")
	primary.AppendValues(10248, 32.38)
	secondary := table.New("s", "OrderID", "Freight")
	secondary.AppendValues(int64(10248), 99.0)
	secondary.AppendValues(int64(20000), 1.0)

	out, stats, err := Orders(primary, secondary, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 32.38, out.Rows[0]["Freight"])

	out, stats, err = Orders(primary, secondary, Options{DedupOrders: false})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
	assert.Equal(t, 0, stats.Duplicates)
}

func TestCustomersKeyCanonicalization(t *testing.T) {
	primary := table.New("p", "CustomerID", "CompanyName")
	primary.AppendValues("5", "Primary Co")
	primary.AppendValues("ALFKI", "Alfreds")

	secondary := table.New("s", "CustomerID", "CompanyName")
	secondary.AppendValues(int64(5), "Secondary Co")
	secondary.AppendValues(int64(6), "Only Secondary")

	out, stats, err := Customers(primary, secondary, nil)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, "Primary Co", out.Rows[0]["CompanyName"])
	assert.Equal(t, "6", out.Rows[2]["CustomerID"])
	assert.True(t, out.HasColumn("Notes"))
	assert.Nil(t, out.Rows[0]["Notes"])
}

func TestCustomersNotesPrimaryWins(t *testing.T) {
	primary := table.New("p", "CustomerID", "CompanyName", "Notes")
	primary.AppendValues("5", "Primary Co", nil)

	secondary := table.New("s", "CustomerID", "CompanyName", "Notes")
	secondary.AppendValues(5, "Secondary Co", "VIP")

	out, _, err := Customers(primary, secondary, nil)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Nil(t, out.Rows[0]["Notes"])
}

func TestCustomersNotesFeed(t *testing.T) {
	primary := table.New("p", "CustomerID", "CompanyName")
	primary.AppendValues("ALFKI", "Alfreds")
	primary.AppendValues("BONAP", "Bon app'")

	notes := table.New("n", "CustomerID", "Notes")
	notes.AppendValues("ALFKI", "Prefers email")
	notes.AppendValues("ALFKI", "dup ignored")
	notes.AppendValues("ZZZZZ", "unknown customer")

	out, _, err := Customers(primary, nil, notes)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "Prefers email", out.Rows[0]["Notes"])
	assert.Nil(t, out.Rows[1]["Notes"])
}

func TestCustomersNotesFeedWithoutNotesColumn(t *testing.T) {
	primary := table.New("p", "CustomerID", "CompanyName")
	primary.AppendValues("ALFKI", "Alfreds")

	broken := table.New("n", "CustomerID")
	broken.AppendValues("ALFKI")

	out, _, err := Customers(primary, nil, broken)
	require.NoError(t, err)
	assert.True(t, out.HasColumn("Notes"))
	assert.Nil(t, out.Rows[0]["Notes"])
}

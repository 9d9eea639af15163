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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDate(t *testing.T) {
	orders := table.New("Orders", "OrderID", "OrderDate", "RequiredDate", "ShippedDate")
	orders.AppendValues(1, day(1996, 7, 4), day(1996, 8, 1), day(1996, 7, 16))
	orders.AppendValues(2, day(1996, 7, 4), day(1996, 8, 1), nil)
	orders.AppendValues(3, day(1998, 5, 6).Add(13*time.Hour), day(1998, 6, 3), nil)

	dim, report, err := Date(orders)
	require.NoError(t, err)

	assert.Equal(t, DateColumns, dim.Columns)
	assert.Equal(t, northwind.DimDate, dim.Name)
	require.Equal(t, 5, dim.Len())
	assert.Equal(t, 2, report.NullValues)

	keys, err := dim.Column("DateKey")
	require.NoError(t, err)
	assert.Equal(t, []any{
		int64(19960704), int64(19960716), int64(19960801), int64(19980506), int64(19980603),
	}, keys)

	first := dim.Rows[0]
	assert.Equal(t, int64(1996), first["Year"])
	assert.Equal(t, int64(3), first["Quarter"])
	assert.Equal(t, int64(7), first["Month"])
	assert.Equal(t, int64(4), first["Day"])
	assert.Equal(t, "Thursday", first["DayName"])
	assert.Equal(t, "July", first["MonthName"])
}

func TestDateMissingColumn(t *testing.T) {
	orders := table.New("Orders", "OrderID", "OrderDate", "RequiredDate")
	_, _, err := Date(orders)
	assert.True(t, errors.Is(err, table.ErrMissingColumn))
}

func TestDateRejectsGarbage(t *testing.T) {
	orders := table.New("Orders", "OrderDate", "RequiredDate", "ShippedDate")
	orders.AppendValues("not a date", nil, nil)
	_, _, err := Date(orders)
	assert.Error(t, err)
}

func TestQuarter(t *testing.T) {
	tests := map[time.Month]int{
		time.January: 1, time.March: 1, time.April: 2, time.June: 2,
		time.July: 3, time.September: 3, time.October: 4, time.December: 4,
	}
	for m, want := range tests {
		assert.Equal(t, want, Quarter(day(2000, m, 1)), m.String())
	}
}

func TestCustomers(t *testing.T) {
	in := table.New("Customers", "CustomerID", "CompanyName", "ContactName", "ContactTitle", "City", "Country", "Fax", "Notes")
	in.AppendValues("ALFKI", "Alfreds Futterkiste", "Maria Anders", "Sales Representative", "Berlin", "Germany", "030-0076545", "VIP")
	in.AppendValues(nil, "Ghost", "", "", "", "", "", nil)

	dim, report, err := Customers(in)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"CustomerKey", "CustomerCompanyName", "CustomerContactName",
		"CustomerCountry", "CustomerCity", "CustomerNotes",
	}, dim.Columns)
	require.Equal(t, 1, dim.Len())
	assert.Equal(t, 1, report.NullKeysDropped)
	assert.Equal(t, "ALFKI", dim.Rows[0]["CustomerKey"])
	assert.Equal(t, "Berlin", dim.Rows[0]["CustomerCity"])
	assert.Equal(t, "VIP", dim.Rows[0]["CustomerNotes"])
	assert.NotContains(t, dim.Rows[0], "Fax")
}

func TestCustomersWithoutNotesIsSchemaError(t *testing.T) {
	in := table.New("Customers", "CustomerID", "CompanyName", "ContactName", "City", "Country")
	_, _, err := Customers(in)
	assert.True(t, errors.Is(err, table.ErrMissingColumn))
}

func TestProducts(t *testing.T) {
	products := table.New("Products", "ProductID", "ProductName", "SupplierID", "CategoryID", "UnitPrice", "UnitsInStock", "Discontinued")
	products.AppendValues(1, "Chai", 1, 1, 18.0, 39, false)
	products.AppendValues(2, "Mystery", 1, 42, 1.5, 0, false)

	categories := table.New("Categories", "CategoryID", "CategoryName", "Description")
	categories.AppendValues(1, "Beverages", "Soft drinks, coffees, teas")

	dim, _, err := Products(products, categories)
	require.NoError(t, err)
	assert.Equal(t, []string{"ProductKey", "ProductName", "CategoryName", "StandardPrice", "UnitsInStock"}, dim.Columns)
	require.Equal(t, 2, dim.Len())
	assert.Equal(t, "Beverages", dim.Rows[0]["CategoryName"])
	assert.Equal(t, 18.0, dim.Rows[0]["StandardPrice"])
	assert.Nil(t, dim.Rows[1]["CategoryName"])
	assert.Equal(t, "Mystery", dim.Rows[1]["ProductName"])
}

func TestProductsWithoutCategories(t *testing.T) {
	products := table.New("Products", "ProductID", "ProductName", "CategoryID", "UnitPrice", "UnitsInStock")
	products.AppendValues(1, "Chai", 1, 18.0, 39)

	dim, _, err := Products(products, nil)
	require.NoError(t, err)
	require.Equal(t, 1, dim.Len())
	assert.Nil(t, dim.Rows[0]["CategoryName"])
}

func TestProductsDuplicateCategoryFails(t *testing.T) {
	products := table.New("Products", "ProductID", "ProductName", "CategoryID", "UnitPrice", "UnitsInStock")
	products.AppendValues(1, "Chai", 1, 18.0, 39)
	categories := table.New("Categories", "CategoryID", "CategoryName")
	categories.AppendValues(1, "Beverages")
	categories.AppendValues(1, "Drinks")

	_, _, err := Products(products, categories)
	assert.True(t, errors.Is(err, table.ErrDuplicateKey))
}

func TestPassThroughDimensions(t *testing.T) {
	employees := table.New("Employees", "EmployeeID", "LastName", "FirstName", "Title", "City", "Country", "HireDate")
	employees.AppendValues(1, "Davolio", "Nancy", "Sales Representative", "Seattle", "USA", day(1992, 5, 1))

	dim, _, err := Employees(employees)
	require.NoError(t, err)
	assert.Equal(t, []string{"EmployeeKey", "LastName", "FirstName", "Title", "City", "Country"}, dim.Columns)
	assert.Equal(t, 1, dim.Rows[0]["EmployeeKey"])

	shippers := table.New("Shippers", "ShipperID", "CompanyName", "Phone")
	shippers.AppendValues(1, "Speedy Express", "(503) 555-9831")

	dim, _, err = Shippers(shippers)
	require.NoError(t, err)
	assert.Equal(t, []string{"ShipperKey", "ShipperCompanyName"}, dim.Columns)
	assert.Equal(t, "Speedy Express", dim.Rows[0]["ShipperCompanyName"])

	suppliers := table.New("Suppliers", "SupplierID", "CompanyName", "ContactName", "City", "Country", "HomePage")
	suppliers.AppendValues(1, "Exotic Liquids", "Charlotte Cooper", "London", "UK", nil)

	dim, _, err = Suppliers(suppliers)
	require.NoError(t, err)
	assert.Equal(t, []string{"SupplierKey", "SupplierCompanyName", "SupplierContactName", "SupplierCity", "SupplierCountry"}, dim.Columns)
	assert.Equal(t, "London", dim.Rows[0]["SupplierCity"])

	_, _, err = Shippers(nil)
	assert.Error(t, err)
}

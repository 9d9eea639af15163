//-------------------------------------------------------------------------
//
// pgEdge Star Schema ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-starschema/internal/logging"
	"github.com/pgEdge/pgedge-starschema/internal/northwind"
	"github.com/pgEdge/pgedge-starschema/internal/table"
)

// FirstOrderID is the first generated order id, as in Northwind.
const FirstOrderID = 10248

// Order dates fall in the Northwind trading period.
var (
	firstOrderDate = time.Date(1996, 7, 4, 0, 0, 0, 0, time.UTC)
	lastOrderDate  = time.Date(1998, 5, 6, 0, 0, 0, 0, time.UTC)
)

var categoryNames = []string{
	"Beverages", "Condiments", "Confections", "Dairy Products",
	"Grains/Cereals", "Meat/Poultry", "Produce", "Seafood",
}

var shipperNames = []string{"Speedy Express", "United Package", "Federal Shipping"}

var discounts = []float64{0, 0.05, 0.1, 0.15, 0.2, 0.25}

// discountWeights make most lines undiscounted.
var discountWeights = []int{60, 8, 8, 8, 8, 8}

const numEmployees = 9

// Column sets of the generated source tables.
var (
	CategoryColumns     = []string{"CategoryID", "CategoryName", "Description"}
	SupplierColumns     = []string{"SupplierID", "CompanyName", "ContactName", "City", "Country"}
	ProductColumns      = []string{"ProductID", "ProductName", "SupplierID", "CategoryID", "UnitPrice", "UnitsInStock"}
	CustomerColumns     = []string{"CustomerID", "CompanyName", "ContactName", "City", "Country"}
	EmployeeColumns     = []string{"EmployeeID", "LastName", "FirstName", "Title", "City", "Country"}
	ShipperColumns      = []string{"ShipperID", "CompanyName", "Phone"}
	OrderColumns        = []string{"OrderID", "CustomerID", "EmployeeID", "ShipVia", "OrderDate", "RequiredDate", "ShippedDate", "Freight"}
	OrderDetailColumns  = []string{"OrderID", "ProductID", "UnitPrice", "Quantity", "Discount"}
	CustomerNoteColumns = []string{"CustomerID", "Notes"}
)

// Sizes controls how much data is generated.
type Sizes struct {
	// Customers, Products and Orders are primary source row counts.
	Customers int
	Products  int
	Orders    int

	// Overlap is the fraction of primary customers, products, suppliers and
	// orders that the secondary source repeats with conflicting values.
	Overlap float64
}

// Dataset is a generated pair of sources and a notes feed.
type Dataset struct {
	Primary   map[string]*table.Table
	Secondary map[string]*table.Table
	Notes     *table.Table
}

// Tables returns the tables of one source map in seeding order.
func Tables(source map[string]*table.Table) []*table.Table {
	var out []*table.Table
	for _, name := range northwind.SourceTables {
		if t, ok := source[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Generator builds a Dataset.
type Generator struct {
	faker *Faker
	sizes Sizes

	customerIDs map[string]bool
	prices      map[int64]decimal.Decimal
}

// NewGenerator creates a generator drawing from faker.
func NewGenerator(faker *Faker, sizes Sizes) *Generator {
	return &Generator{
		faker:       faker,
		sizes:       sizes,
		customerIDs: make(map[string]bool),
		prices:      make(map[int64]decimal.Decimal),
	}
}

// Generate produces the primary source, then the secondary source derived
// from it, then the notes feed.
func (g *Generator) Generate() *Dataset {
	s := g.sizes
	numSuppliers := max(1, s.Products/3)

	primary := map[string]*table.Table{
		northwind.Categories: g.categories(),
		northwind.Suppliers:  g.suppliers(northwind.Suppliers, 1, numSuppliers),
		northwind.Employees:  g.employees(),
		northwind.Shippers:   g.shippers(),
		northwind.Customers:  g.customers(northwind.Customers, s.Customers),
		northwind.Products:   g.products(northwind.Products, 1, s.Products, numSuppliers),
	}
	orders, lines := g.orders(FirstOrderID, s.Orders, primary[northwind.Customers], primary[northwind.Products])
	primary[northwind.Orders] = orders
	primary[northwind.OrderDetails] = lines

	secondary := g.secondary(primary, numSuppliers)
	notes := g.notes(primary[northwind.Customers], secondary[northwind.Customers])

	logging.Info().
		Int("primary_orders", orders.Len()).
		Int("primary_lines", lines.Len()).
		Int("secondary_orders", secondary[northwind.Orders].Len()).
		Int("secondary_lines", secondary[northwind.OrderDetails].Len()).
		Int("notes", notes.Len()).
		Msg("Generated sources")

	return &Dataset{Primary: primary, Secondary: secondary, Notes: notes}
}

func (g *Generator) categories() *table.Table {
	t := table.New(northwind.Categories, CategoryColumns...)
	for i, name := range categoryNames {
		t.AppendValues(int64(i+1), name, g.faker.Sentence(6))
	}
	return t
}

func (g *Generator) suppliers(name string, firstID, n int) *table.Table {
	t := table.New(name, SupplierColumns...)
	for id := firstID; id < firstID+n; id++ {
		t.AppendValues(int64(id), g.faker.Company(), g.faker.Name(), g.faker.City(), g.faker.Country())
	}
	return t
}

func (g *Generator) employees() *table.Table {
	t := table.New(northwind.Employees, EmployeeColumns...)
	for id := 1; id <= numEmployees; id++ {
		t.AppendValues(int64(id), g.faker.LastName(), g.faker.FirstName(), g.faker.JobTitle(), g.faker.City(), g.faker.Country())
	}
	return t
}

func (g *Generator) shippers() *table.Table {
	t := table.New(northwind.Shippers, ShipperColumns...)
	for i, name := range shipperNames {
		t.AppendValues(int64(i+1), name, g.faker.Phone())
	}
	return t
}

func (g *Generator) customerID() string {
	for {
		id := g.faker.Code(5)
		if !g.customerIDs[id] {
			g.customerIDs[id] = true
			return id
		}
	}
}

func (g *Generator) customers(name string, n int) *table.Table {
	t := table.New(name, CustomerColumns...)
	for i := 0; i < n; i++ {
		t.AppendValues(g.customerID(), g.faker.Company(), g.faker.Name(), g.faker.City(), g.faker.Country())
	}
	return t
}

func (g *Generator) products(name string, firstID, n, numSuppliers int) *table.Table {
	t := table.New(name, ProductColumns...)
	for id := firstID; id < firstID+n; id++ {
		price := g.faker.Money(2, 120)
		g.prices[int64(id)] = price
		t.AppendValues(
			int64(id),
			g.faker.ProductName(),
			int64(g.faker.Int(1, numSuppliers)),
			int64(g.faker.Int(1, len(categoryNames))),
			price,
			int64(g.faker.Int(0, 125)),
		)
	}
	return t
}

// orders generates n orders from firstID with one to four distinct products
// each. About one order in ten is unshipped.
func (g *Generator) orders(firstID, n int, customers, products *table.Table) (*table.Table, *table.Table) {
	orders := table.New(northwind.Orders, OrderColumns...)
	lines := table.New(northwind.OrderDetails, OrderDetailColumns...)

	customerIDs, _ := customers.Column("CustomerID")
	productIDs, _ := products.Column("ProductID")

	for id := firstID; id < firstID+n; id++ {
		ordered := g.faker.Day(firstOrderDate, lastOrderDate)
		var shipped any
		if !g.faker.Chance(0.1) {
			shipped = ordered.AddDate(0, 0, g.faker.Int(1, 30))
		}
		orders.AppendValues(
			int64(id),
			Choose(g.faker, customerIDs),
			int64(g.faker.Int(1, numEmployees)),
			int64(g.faker.Int(1, len(shipperNames))),
			ordered,
			ordered.AddDate(0, 0, 28),
			shipped,
			g.faker.Money(0.5, 500),
		)

		seen := make(map[any]bool)
		for i := g.faker.Int(1, min(4, len(productIDs))); i > 0; i-- {
			pid := Choose(g.faker, productIDs)
			if seen[pid] {
				continue
			}
			seen[pid] = true
			lines.AppendValues(
				int64(id),
				pid,
				g.prices[pid.(int64)],
				int64(g.faker.Int(1, 60)),
				ChooseWeighted(g.faker, discounts, discountWeights),
			)
		}
	}
	return orders, lines
}

func overlap(n int, fraction float64) int {
	return int(float64(n) * fraction)
}

// secondary repeats the first Overlap fraction of primary rows with
// conflicting values and adds rows of its own.
func (g *Generator) secondary(primary map[string]*table.Table, numSuppliers int) map[string]*table.Table {
	s := g.sizes
	f := g.faker

	customers := table.New(northwind.Customers, CustomerColumns...)
	pc := primary[northwind.Customers]
	for _, row := range pc.Rows[:overlap(pc.Len(), s.Overlap)] {
		customers.AppendValues(row["CustomerID"], row["CompanyName"].(string)+" (legacy)", f.Name(), f.City(), row["Country"])
	}
	customers = table.Concat(northwind.Customers, customers, g.customers(northwind.Customers, max(1, s.Customers/3)))

	suppliers := table.New(northwind.Suppliers, SupplierColumns...)
	ps := primary[northwind.Suppliers]
	for _, row := range ps.Rows[:overlap(ps.Len(), s.Overlap)] {
		suppliers.AppendValues(row["SupplierID"], row["CompanyName"], f.Name(), f.City(), row["Country"])
	}
	newSuppliers := max(1, numSuppliers/3)
	suppliers = table.Concat(northwind.Suppliers, suppliers, g.suppliers(northwind.Suppliers, numSuppliers+1, newSuppliers))

	products := table.New(northwind.Products, ProductColumns...)
	pp := primary[northwind.Products]
	for _, row := range pp.Rows[:overlap(pp.Len(), s.Overlap)] {
		price := row["UnitPrice"].(decimal.Decimal).Mul(decimal.NewFromFloat(1.1)).Round(2)
		products.AppendValues(row["ProductID"], row["ProductName"], row["SupplierID"], row["CategoryID"], price, int64(f.Int(0, 125)))
	}
	products = table.Concat(northwind.Products, products,
		g.products(northwind.Products, s.Products+1, max(1, s.Products/4), numSuppliers+newSuppliers))

	orders := table.New(northwind.Orders, OrderColumns...)
	lines := table.New(northwind.OrderDetails, OrderDetailColumns...)
	po := primary[northwind.Orders]
	repeated := make(map[any]bool)
	for _, row := range po.Rows[:overlap(po.Len(), s.Overlap)] {
		repeated[row["OrderID"]] = true
		freight := row["Freight"].(decimal.Decimal).Add(f.Money(1, 20))
		orders.AppendValues(row["OrderID"], row["CustomerID"], row["EmployeeID"], row["ShipVia"],
			row["OrderDate"], row["RequiredDate"], row["ShippedDate"], freight)
	}
	for _, row := range primary[northwind.OrderDetails].Rows {
		if !repeated[row["OrderID"]] {
			continue
		}
		lines.AppendValues(row["OrderID"], row["ProductID"], row["UnitPrice"],
			row["Quantity"].(int64)+int64(f.Int(1, 5)), row["Discount"])
	}

	allProducts := table.Concat(northwind.Products, pp, products)
	newOrders, newLines := g.orders(FirstOrderID+s.Orders, max(1, s.Orders/4), customers, allProducts)
	orders = table.Concat(northwind.Orders, orders, newOrders)
	lines = table.Concat(northwind.OrderDetails, lines, newLines)

	return map[string]*table.Table{
		northwind.Customers:    customers,
		northwind.Suppliers:    suppliers,
		northwind.Products:     products,
		northwind.Orders:       orders,
		northwind.OrderDetails: lines,
	}
}

// notes gives about a third of all customers a free-text note.
func (g *Generator) notes(primary, secondary *table.Table) *table.Table {
	t := table.New(northwind.CustomerNotes, CustomerNoteColumns...)
	seen := make(map[any]bool)
	for _, src := range []*table.Table{primary, secondary} {
		for _, row := range src.Rows {
			id := row["CustomerID"]
			if seen[id] {
				continue
			}
			seen[id] = true
			if g.faker.Chance(0.3) {
				t.AppendValues(id, g.faker.Sentence(8))
			}
		}
	}
	return t
}

// Generate builds a dataset from a seed. A zero seed draws a random one.
func Generate(seed uint64, sizes Sizes) *Dataset {
	f := NewFaker()
	if seed != 0 {
		f = NewFakerWithSeed(seed)
	}
	return NewGenerator(f, sizes).Generate()
}

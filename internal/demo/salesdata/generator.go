// Package salesdata generates a synthetic sales dataset shaped like the one
// the built-in schema catalog describes, for trying the loader and the
// question pipeline without real data.
package salesdata

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Header lists the generated columns in file order. STATE is empty for
// orders outside the US, so loading exercises NULL handling.
var Header = []string{
	"ORDERNUMBER",
	"QUANTITYORDERED",
	"PRICEEACH",
	"SALES",
	"ORDERDATE",
	"STATUS",
	"YEAR_ID",
	"PRODUCTLINE",
	"CUSTOMERNAME",
	"STATE",
	"COUNTRY",
}

type Record struct {
	OrderNumber     int
	QuantityOrdered int
	PriceEach       float64
	Sales           float64
	OrderDate       time.Time
	Status          string
	ProductLine     string
	CustomerName    string
	State           string
	Country         string
}

// Fields renders r in Header order.
func (r Record) Fields() []string {
	return []string{
		fmt.Sprint(r.OrderNumber),
		fmt.Sprint(r.QuantityOrdered),
		fmt.Sprintf("%.2f", r.PriceEach),
		fmt.Sprintf("%.2f", r.Sales),
		r.OrderDate.Format("2006-01-02 15:04:05"),
		r.Status,
		fmt.Sprint(r.OrderDate.Year()),
		r.ProductLine,
		r.CustomerName,
		r.State,
		r.Country,
	}
}

type customer struct {
	name    string
	country string
	state   string
}

var customers = []customer{
	{"Land of Toys Inc.", "USA", "NY"},
	{"Mini Gifts Distributors Ltd.", "USA", "CA"},
	{"Corporate Gift Ideas Co.", "USA", "CA"},
	{"Technics Stores Inc.", "USA", "CA"},
	{"Diecast Classics Inc.", "USA", "PA"},
	{"Atelier graphique", "France", ""},
	{"La Rochelle Gifts", "France", ""},
	{"Euro Shopping Channel", "Spain", ""},
	{"Königlich Essen", "Germany", ""},
	{"Blauer See Auto, Co.", "Germany", ""},
	{"Australian Collectors, Co.", "Australia", ""},
	{"Oulu Toy Supplies, Inc.", "Finland", ""},
	{"Danish Wholesale Imports", "Denmark", ""},
	{"Salzburg Collectables", "Austria", ""},
	{"Tokyo Collectables, Ltd", "Japan", ""},
	{"Reims Collectables", "France", ""},
}

var productLines = []string{
	"Classic Cars",
	"Motorcycles",
	"Planes",
	"Ships",
	"Trains",
	"Trucks and Buses",
	"Vintage Cars",
}

type Generator struct {
	rnd      *rand.Rand
	sequence int
	start    time.Time
}

// NewGenerator returns a generator whose output depends only on seed.
// Order dates fall between 2003 and the end of 2005.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd:      rand.New(rand.NewSource(seed)),
		sequence: 10100,
		start:    time.Date(2003, 1, 6, 0, 0, 0, 0, time.UTC),
	}
}

func (g *Generator) NextRecord() Record {
	g.sequence++
	c := customers[g.rnd.Intn(len(customers))]
	quantity := 20 + g.rnd.Intn(50)
	price := round2(30 + g.rnd.Float64()*70)

	return Record{
		OrderNumber:     g.sequence,
		QuantityOrdered: quantity,
		PriceEach:       price,
		Sales:           round2(float64(quantity) * price),
		OrderDate:       g.start.AddDate(0, 0, g.rnd.Intn(3*365)),
		Status:          g.pickStatus(),
		ProductLine:     pickOne(g.rnd, productLines),
		CustomerName:    c.name,
		State:           c.state,
		Country:         c.country,
	}
}

func (g *Generator) pickStatus() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 90:
		return "Shipped"
	case p < 94:
		return "In Process"
	case p < 97:
		return "On Hold"
	default:
		return "Cancelled"
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}

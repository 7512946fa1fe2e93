package floor

import "github.com/shopspring/decimal"

// DefaultCostPerCall is the marketing spend attributed to one billable call.
var DefaultCostPerCall = decimal.NewFromInt(15)

// Metrics are the derived KPIs for a set of calls and sales.
type Metrics struct {
	Calls     int      `json:"calls"`
	Sales     int      `json:"sales"`
	Marketing float64  `json:"marketing"`
	CPA       *float64 `json:"cpa"`
	CVR       *float64 `json:"cvr"`
}

// ComputeMetrics derives marketing, CPA and CVR from raw counts.
//
//	marketing = calls * costPerCall
//	cpa       = marketing / sales, or marketing when there are no sales
//	cvr       = sales / calls, or nil when there are no calls
func ComputeMetrics(calls, sales int, costPerCall decimal.Decimal) Metrics {
	c := decimal.NewFromInt(int64(calls))
	s := decimal.NewFromInt(int64(sales))
	marketing := c.Mul(costPerCall)

	cpa := marketing
	if sales > 0 {
		cpa = marketing.Div(s)
	}

	m := Metrics{
		Calls:     calls,
		Sales:     sales,
		Marketing: marketing.InexactFloat64(),
		CPA:       floatPtr(cpa.InexactFloat64()),
	}
	if calls > 0 {
		m.CVR = floatPtr(s.Div(c).InexactFloat64())
	}
	return m
}

func floatPtr(f float64) *float64 { return &f }

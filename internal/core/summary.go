package core

import "github.com/shopspring/decimal"

// MethodCount is one bucket of a payment-method histogram.
type MethodCount struct {
	Method PaymentMethod
	Count  int
}

// DescriptionTotal aggregates the transactions sharing a normalized description.
type DescriptionTotal struct {
	Description string
	Total       decimal.Decimal
	Count       int
	Methods     []MethodCount // first-seen order
}

// CategoryBreakdown groups description totals under one category.
type CategoryBreakdown struct {
	Category Category
	Total    decimal.Decimal
	Count    int
	Items    []DescriptionTotal // first-seen order
}

// Item looks up a description total by its normalized description.
func (cb CategoryBreakdown) Item(description string) (DescriptionTotal, bool) {
	for _, it := range cb.Items {
		if it.Description == description {
			return it, true
		}
	}
	return DescriptionTotal{}, false
}

// Breakdown is the filtered detail: category -> description -> totals.
type Breakdown struct {
	Categories []CategoryBreakdown // first-seen order
	Subtotal   decimal.Decimal
	Count      int
}

// Category looks up the breakdown of c.
func (b Breakdown) Category(c Category) (CategoryBreakdown, bool) {
	for _, cb := range b.Categories {
		if cb.Category == c {
			return cb, true
		}
	}
	return CategoryBreakdown{}, false
}

func (b Breakdown) IsEmpty() bool { return len(b.Categories) == 0 }

// PaymentShare is one payment method's share of the period's transactions.
type PaymentShare struct {
	Method  PaymentMethod
	Count   int
	Percent int // floor(count*100/total)
}

// PeriodTotals are computed from the full, unfiltered period.
type PeriodTotals struct {
	MonthTotal     decimal.Decimal
	Count          int
	Payments       []PaymentShare // descending count
	PaymentSummary string
}

// AggregatedContext pairs the filtered detail with the unfiltered totals.
type AggregatedContext struct {
	Detail  Breakdown
	Totals  PeriodTotals
	Members int
}

// MonthlySnapshot is a persisted per-category aggregate for one period.
type MonthlySnapshot struct {
	FamilyID  int64
	Period    Period
	Category  Category
	Total     decimal.Decimal
	Count     int
	AvgTicket decimal.Decimal
}

// SnapshotValues are the three measured quantities of a snapshot.
type SnapshotValues struct {
	Period    Period
	Total     decimal.Decimal
	Count     int
	AvgTicket decimal.Decimal
}

// Values extracts the measured quantities.
func (s MonthlySnapshot) Values() SnapshotValues {
	return SnapshotValues{Period: s.Period, Total: s.Total, Count: s.Count, AvgTicket: s.AvgTicket}
}

// Diagnosis is a narrative label for a category's variance pattern.
// The empty Diagnosis means none applies.
type Diagnosis string

const (
	DiagnosisNone                 Diagnosis = ""
	DiagnosisPriceIncrease        Diagnosis = "price increase / cost-of-living: similar purchases, higher cost."
	DiagnosisIncreasedConsumption Diagnosis = "increased consumption: price stable, bought more."
	DiagnosisReducedSpending      Diagnosis = "reduced spending in this category."
	DiagnosisNoChange             Diagnosis = "no significant change vs. prior period."
)

// CategoryMetric compares a category's current period against the
// nearest earlier period within the lookback window. Prior and the
// variances are nil when there is nothing to compare against.
type CategoryMetric struct {
	Category          Category
	Current           SnapshotValues
	Prior             *SnapshotValues
	VarianceTotalPct  *float64
	VarianceTicketPct *float64
	Diagnosis         Diagnosis
}

func (m CategoryMetric) HasPrior() bool { return m.Prior != nil }

// FinancialContext is the complete, pre-computed record handed to the
// narrative layer, which renders it and never recomputes its numbers.
type FinancialContext struct {
	FamilyID            int64
	Period              Period
	Query               string
	Categories          []Category // detected; empty means general query
	Summary             AggregatedContext
	IncomeTotal         decimal.Decimal
	Balance             decimal.Decimal // IncomeTotal - Summary.Totals.MonthTotal
	Comparison          []CategoryMetric
	ComparisonAvailable bool
}

// General reports whether no category was detected for the query.
func (fc FinancialContext) General() bool { return len(fc.Categories) == 0 }

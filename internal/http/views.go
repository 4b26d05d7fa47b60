package http

import (
	"github.com/shopspring/decimal"

	"contador/internal/core"
)

// JSON views of the domain records. Amounts are decimal strings and
// categories their canonical labels.

type valuesView struct {
	Period    string          `json:"period"`
	Total     decimal.Decimal `json:"total"`
	Count     int             `json:"count"`
	AvgTicket decimal.Decimal `json:"avg_ticket"`
}

type metricView struct {
	Category          core.Category `json:"category"`
	Current           valuesView    `json:"current"`
	Prior             *valuesView   `json:"prior"`
	VarianceTotalPct  *float64      `json:"variance_total_pct"`
	VarianceTicketPct *float64      `json:"variance_ticket_pct"`
	Diagnosis         string        `json:"diagnosis,omitempty"`
}

type methodView struct {
	Method core.PaymentMethod `json:"method"`
	Count  int                `json:"count"`
}

type itemView struct {
	Description string          `json:"description"`
	Total       decimal.Decimal `json:"total"`
	Count       int             `json:"count"`
	Methods     []methodView    `json:"methods"`
}

type categoryView struct {
	Category core.Category   `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
	Items    []itemView      `json:"items"`
}

type paymentView struct {
	Method  core.PaymentMethod `json:"method"`
	Count   int                `json:"count"`
	Percent int                `json:"percent"`
}

type contextView struct {
	FamilyID            int64           `json:"family_id"`
	Period              string          `json:"period"`
	Query               string          `json:"query,omitempty"`
	General             bool            `json:"general"`
	Categories          []core.Category `json:"categories"`
	Members             int             `json:"members"`
	MonthTotal          decimal.Decimal `json:"month_total"`
	TransactionCount    int             `json:"transaction_count"`
	Payments            []paymentView   `json:"payments"`
	PaymentSummary      string          `json:"payment_summary"`
	IncomeTotal         decimal.Decimal `json:"income_total"`
	Balance             decimal.Decimal `json:"balance"`
	Detail              []categoryView  `json:"detail"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	DetailCount         int             `json:"detail_count"`
	Comparison          []metricView    `json:"comparison"`
	ComparisonAvailable bool            `json:"comparison_available"`
}

func newValuesView(v core.SnapshotValues) valuesView {
	return valuesView{Period: v.Period.String(), Total: v.Total, Count: v.Count, AvgTicket: v.AvgTicket}
}

func newMetricViews(metrics []core.CategoryMetric) []metricView {
	out := make([]metricView, 0, len(metrics))
	for _, m := range metrics {
		mv := metricView{
			Category:          m.Category,
			Current:           newValuesView(m.Current),
			VarianceTotalPct:  m.VarianceTotalPct,
			VarianceTicketPct: m.VarianceTicketPct,
			Diagnosis:         string(m.Diagnosis),
		}
		if m.Prior != nil {
			p := newValuesView(*m.Prior)
			mv.Prior = &p
		}
		out = append(out, mv)
	}
	return out
}

func newContextView(fc core.FinancialContext) contextView {
	v := contextView{
		FamilyID:            fc.FamilyID,
		Period:              fc.Period.String(),
		Query:               fc.Query,
		General:             fc.General(),
		Categories:          append([]core.Category{}, fc.Categories...),
		Members:             fc.Summary.Members,
		MonthTotal:          fc.Summary.Totals.MonthTotal,
		TransactionCount:    fc.Summary.Totals.Count,
		PaymentSummary:      fc.Summary.Totals.PaymentSummary,
		IncomeTotal:         fc.IncomeTotal,
		Balance:             fc.Balance,
		Subtotal:            fc.Summary.Detail.Subtotal,
		DetailCount:         fc.Summary.Detail.Count,
		ComparisonAvailable: fc.ComparisonAvailable,
		Payments:            []paymentView{},
		Detail:              []categoryView{},
	}
	for _, p := range fc.Summary.Totals.Payments {
		v.Payments = append(v.Payments, paymentView{Method: p.Method, Count: p.Count, Percent: p.Percent})
	}
	for _, cb := range fc.Summary.Detail.Categories {
		cv := categoryView{Category: cb.Category, Total: cb.Total, Count: cb.Count, Items: []itemView{}}
		for _, it := range cb.Items {
			iv := itemView{Description: it.Description, Total: it.Total, Count: it.Count, Methods: []methodView{}}
			for _, m := range it.Methods {
				iv.Methods = append(iv.Methods, methodView{Method: m.Method, Count: m.Count})
			}
			cv.Items = append(cv.Items, iv)
		}
		v.Detail = append(v.Detail, cv)
	}
	if fc.ComparisonAvailable {
		v.Comparison = newMetricViews(fc.Comparison)
	}
	return v
}

package analytics

import (
	"slices"

	"github.com/shopspring/decimal"

	"contador/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Compare builds one metric per category present in period. The prior
// values come from the latest row of the same category within
// [period-lookback, period-1]; rows outside that window are ignored.
// Metrics are ordered by descending current total.
func Compare(rows []core.MonthlySnapshot, period core.Period, lookback int) []core.CategoryMetric {
	if lookback < 1 {
		lookback = 1
	}
	cur := period.Index()
	from := cur - lookback

	current := make([]core.MonthlySnapshot, 0)
	prior := make(map[core.Category]core.MonthlySnapshot)
	for _, r := range rows {
		idx := r.Period.Index()
		switch {
		case idx == cur:
			current = append(current, r)
		case idx >= from && idx < cur:
			if p, ok := prior[r.Category]; !ok || p.Period.Index() < idx {
				prior[r.Category] = r
			}
		}
	}

	metrics := make([]core.CategoryMetric, 0, len(current))
	for _, r := range current {
		m := core.CategoryMetric{Category: r.Category, Current: r.Values()}
		if p, ok := prior[r.Category]; ok {
			pv := p.Values()
			m.Prior = &pv
			m.VarianceTotalPct = VariancePct(r.Total, p.Total)
			m.VarianceTicketPct = VariancePct(r.AvgTicket, p.AvgTicket)
		}
		m.Diagnosis = Diagnose(m)
		metrics = append(metrics, m)
	}

	tax := core.DefaultTaxonomy()
	slices.SortStableFunc(metrics, func(a, b core.CategoryMetric) int {
		if c := b.Current.Total.Cmp(a.Current.Total); c != 0 {
			return c
		}
		return tax.Rank(a.Category) - tax.Rank(b.Category)
	})
	return metrics
}

// VariancePct is (current-prior)/prior*100, nil when prior is zero.
func VariancePct(current, prior decimal.Decimal) *float64 {
	if prior.IsZero() {
		return nil
	}
	v := current.Sub(prior).Div(prior).Mul(hundred).InexactFloat64()
	return &v
}

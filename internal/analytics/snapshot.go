// Package analytics computes monthly per-category snapshots and compares
// them across periods.
package analytics

import (
	"github.com/shopspring/decimal"

	"contador/internal/core"
)

// BuildSnapshots groups the transactions of familyID falling in period by
// category. Rows come back in category declaration order; categories
// without transactions have no row.
func BuildSnapshots(familyID int64, period core.Period, txs []core.Transaction) []core.MonthlySnapshot {
	byCat := make(map[core.Category]*core.MonthlySnapshot)
	for _, tx := range txs {
		if tx.FamilyID != familyID || !period.Contains(tx.Date) {
			continue
		}
		s, ok := byCat[tx.Category]
		if !ok {
			s = &core.MonthlySnapshot{FamilyID: familyID, Period: period, Category: tx.Category, Total: decimal.Zero}
			byCat[tx.Category] = s
		}
		s.Total = s.Total.Add(tx.Amount)
		s.Count++
	}

	out := make([]core.MonthlySnapshot, 0, len(byCat))
	for _, c := range core.AllCategories() {
		s, ok := byCat[c]
		if !ok {
			continue
		}
		s.AvgTicket = AverageTicket(s.Total, s.Count)
		out = append(out, *s)
	}
	return out
}

// AverageTicket is total/count rounded to two places, zero when count is zero.
func AverageTicket(total decimal.Decimal, count int) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(count))).Round(2)
}

// Package aggregate reduces a period's transactions to the totals handed
// to the narrative layer.
package aggregate

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"contador/internal/core"
	"contador/internal/log"
)

// Aggregator filters and aggregates transactions. It never fails: empty
// input yields zero totals.
type Aggregator struct {
	logger *log.Logger
}

func NewAggregator(logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.For(log.ComponentAggregate)
	}
	return &Aggregator{logger: logger}
}

// Filter keeps the transactions whose category is one of cats. With no
// categories the full input is returned unchanged.
func (a *Aggregator) Filter(txs []core.Transaction, cats []core.Category) []core.Transaction {
	seen := categoriesIn(txs)
	a.logger.Debug("categories present", log.FieldCategories, seen)

	if len(cats) == 0 {
		a.logger.Info("general query, keeping full period", log.FieldOperation, log.OpFilter, log.FieldCount, len(txs))
		return txs
	}

	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if slices.Contains(cats, tx.Category) {
			out = append(out, tx)
		}
	}
	a.logger.Info("filtered by category",
		log.FieldOperation, log.OpFilter,
		log.FieldCategories, labels(cats),
		log.FieldCount, len(out),
		log.FieldTotal, len(txs))
	if len(out) == 0 {
		a.logger.Warn("no transactions for detected categories",
			log.FieldOperation, log.OpFilter,
			log.FieldCategories, labels(cats),
			"available", seen)
	}
	return out
}

// Aggregate groups transactions by category and normalized description,
// preserving first-seen order at both levels.
func (a *Aggregator) Aggregate(txs []core.Transaction) core.Breakdown {
	b := core.Breakdown{Subtotal: decimal.Zero}
	catIdx := make(map[core.Category]int)
	descIdx := make(map[core.Category]map[string]int)

	for _, tx := range txs {
		ci, ok := catIdx[tx.Category]
		if !ok {
			ci = len(b.Categories)
			catIdx[tx.Category] = ci
			descIdx[tx.Category] = make(map[string]int)
			b.Categories = append(b.Categories, core.CategoryBreakdown{Category: tx.Category, Total: decimal.Zero})
		}
		cb := &b.Categories[ci]

		desc := NormalizeDescription(tx.Description)
		di, ok := descIdx[tx.Category][desc]
		if !ok {
			di = len(cb.Items)
			descIdx[tx.Category][desc] = di
			cb.Items = append(cb.Items, core.DescriptionTotal{Description: desc, Total: decimal.Zero})
		}
		item := &cb.Items[di]
		item.Total = item.Total.Add(tx.Amount)
		item.Count++
		item.Methods = bump(item.Methods, tx.PaymentMethod)

		cb.Total = cb.Total.Add(tx.Amount)
		cb.Count++
		b.Subtotal = b.Subtotal.Add(tx.Amount)
		b.Count++
	}
	return b
}

// Totals computes the unfiltered period figures.
func (a *Aggregator) Totals(txs []core.Transaction) core.PeriodTotals {
	pt := core.PeriodTotals{MonthTotal: decimal.Zero, Count: len(txs)}
	var hist []core.MethodCount
	for _, tx := range txs {
		pt.MonthTotal = pt.MonthTotal.Add(tx.Amount)
		hist = bump(hist, tx.PaymentMethod)
	}
	slices.SortStableFunc(hist, func(x, y core.MethodCount) int { return y.Count - x.Count })

	parts := make([]string, 0, len(hist))
	for _, h := range hist {
		pct := h.Count * 100 / len(txs)
		pt.Payments = append(pt.Payments, core.PaymentShare{Method: h.Method, Count: h.Count, Percent: pct})
		parts = append(parts, fmt.Sprintf("%s: %d compras (%d%%)", h.Method, h.Count, pct))
	}
	pt.PaymentSummary = strings.Join(parts, ", ")
	return pt
}

// Build filters full by cats and aggregates the result, and separately
// computes the period totals from full.
func (a *Aggregator) Build(full []core.Transaction, cats []core.Category, members int) core.AggregatedContext {
	return core.AggregatedContext{
		Detail:  a.Aggregate(a.Filter(full, cats)),
		Totals:  a.Totals(full),
		Members: members,
	}
}

// NormalizeDescription trims the description, upper-cases its first
// letter and lower-cases the rest.
func NormalizeDescription(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToTitle(r)) + cases.Lower(language.Spanish).String(s[size:])
}

func bump(hist []core.MethodCount, m core.PaymentMethod) []core.MethodCount {
	for i := range hist {
		if hist[i].Method == m {
			hist[i].Count++
			return hist
		}
	}
	return append(hist, core.MethodCount{Method: m, Count: 1})
}

func categoriesIn(txs []core.Transaction) []string {
	var out []string
	for _, tx := range txs {
		l := tx.Category.Label()
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

func labels(cats []core.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.Label()
	}
	return out
}

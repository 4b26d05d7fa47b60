// Package narrative renders a pre-computed financial context into the
// text handed to a generator. Nothing here computes new figures.
package narrative

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"contador/internal/core"
)

// RenderContext renders the household state and the detail of the
// transactions the question was about.
func RenderContext(fc core.FinancialContext) string {
	totals := fc.Summary.Totals
	lines := []string{
		"### ESTADO DE LA HACIENDA FAMILIAR ###",
		fmt.Sprintf("- Miembros en el hogar: %d", fc.Summary.Members),
		fmt.Sprintf("- Ingresos totales del mes: %s", Pesos(fc.IncomeTotal)),
		fmt.Sprintf("- TOTAL gastos del mes (todas las categorías): %s", Pesos(totals.MonthTotal)),
		fmt.Sprintf("- BALANCE DEL MES (Ingresos - Gastos totales): %s", Pesos(fc.Balance)),
	}
	if totals.PaymentSummary != "" {
		lines = append(lines, "- Métodos de pago usados este mes: "+totals.PaymentSummary)
	}
	lines = append(lines, "", "DETALLE DE GASTOS CONSULTADOS:")

	detail := fc.Summary.Detail
	if detail.IsEmpty() {
		lines = append(lines, "- No hay gastos registrados en este contexto.")
	}
	for _, cb := range detail.Categories {
		lines = append(lines, fmt.Sprintf("\n📂 %s → TOTAL: %s (%d compras):",
			cb.Category.Label(), Pesos(cb.Total), cb.Count))
		for _, it := range cb.Items {
			methods := make([]string, len(it.Methods))
			for i, m := range it.Methods {
				methods[i] = fmt.Sprintf("%s(%dx)", m.Method, m.Count)
			}
			lines = append(lines, fmt.Sprintf("  • %s: %s (%d veces, %s)",
				it.Description, Pesos(it.Total), it.Count, strings.Join(methods, ", ")))
		}
	}
	lines = append(lines, "", fmt.Sprintf("SUBTOTAL CONSULTADO: %s (%d transacciones)",
		Pesos(detail.Subtotal), detail.Count))
	return strings.Join(lines, "\n")
}

// RenderComparison renders one line per compared category, or "" when no
// comparison is available.
func RenderComparison(fc core.FinancialContext) string {
	if !fc.ComparisonAvailable || len(fc.Comparison) == 0 {
		return ""
	}
	lines := []string{"", "### COMPARATIVA VS MES ANTERIOR ###"}
	for _, m := range fc.Comparison {
		lines = append(lines, comparisonLine(m))
	}
	return strings.Join(lines, "\n")
}

func comparisonLine(m core.CategoryMetric) string {
	if !m.HasPrior() || m.VarianceTotalPct == nil {
		return fmt.Sprintf("- %s: %s este mes (sin datos del mes anterior para comparar).",
			m.Category.Label(), Pesos(m.Current.Total))
	}
	line := fmt.Sprintf("- %s: gasto total %s (%s → %s), ticket promedio %s (%s → %s).",
		m.Category.Label(),
		SignedPct(m.VarianceTotalPct), Pesos(m.Prior.Total), Pesos(m.Current.Total),
		SignedPct(m.VarianceTicketPct), Pesos(m.Prior.AvgTicket), Pesos(m.Current.AvgTicket))
	return line + " " + string(m.Diagnosis)
}

// RenderData is the data block attached to a prompt: context plus comparison.
// It is empty when the question matched no transactions.
func RenderData(fc core.FinancialContext) string {
	if fc.Summary.Detail.IsEmpty() {
		return ""
	}
	return RenderContext(fc) + RenderComparison(fc)
}

var pesosPrinter = message.NewPrinter(language.English)

// Pesos formats an amount with no decimals and comma thousands grouping,
// prefixed with a dollar sign. Halves round to even.
func Pesos(d decimal.Decimal) string {
	return "$" + pesosPrinter.Sprintf("%d", d.RoundBank(0).IntPart())
}

// SignedPct renders a variance with one decimal and an explicit plus sign
// for non-negative values.
func SignedPct(v *float64) string {
	if v == nil {
		return "s/d"
	}
	s := strconv.FormatFloat(*v, 'f', 1, 64)
	if *v >= 0 {
		s = "+" + s
	}
	return s + "%"
}

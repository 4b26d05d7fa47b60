package narrative

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"contador/internal/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pct(v float64) *float64 { return &v }

func sampleContext() core.FinancialContext {
	return core.FinancialContext{
		FamilyID: 1,
		Period:   core.Period{Year: 2024, Month: 10},
		Query:    "cuánto gasté en el super",
		Categories: []core.Category{
			core.Almacen,
		},
		Summary: core.AggregatedContext{
			Members: 3,
			Detail: core.Breakdown{
				Categories: []core.CategoryBreakdown{{
					Category: core.Almacen,
					Total:    dec("1500"),
					Count:    3,
					Items: []core.DescriptionTotal{
						{Description: "Supermercado", Total: dec("1200"), Count: 2, Methods: []core.MethodCount{
							{Method: core.Efectivo, Count: 1}, {Method: core.TarjetaDebito, Count: 1},
						}},
						{Description: "Panadería", Total: dec("300"), Count: 1, Methods: []core.MethodCount{
							{Method: core.Efectivo, Count: 1},
						}},
					},
				}},
				Subtotal: dec("1500"),
				Count:    3,
			},
			Totals: core.PeriodTotals{
				MonthTotal:     dec("25000"),
				Count:          10,
				PaymentSummary: "Efectivo: 6 compras (60%)",
			},
		},
		IncomeTotal: dec("60000"),
		Balance:     dec("35000"),
	}
}

func TestRenderContext(t *testing.T) {
	out := RenderContext(sampleContext())
	want := []string{
		"### ESTADO DE LA HACIENDA FAMILIAR ###",
		"- Miembros en el hogar: 3",
		"- Ingresos totales del mes: $60,000",
		"- TOTAL gastos del mes (todas las categorías): $25,000",
		"- BALANCE DEL MES (Ingresos - Gastos totales): $35,000",
		"- Métodos de pago usados este mes: Efectivo: 6 compras (60%)",
		"\n📂 🛒 Almacén → TOTAL: $1,500 (3 compras):",
		"  • Supermercado: $1,200 (2 veces, Efectivo(1x), Tarjeta débito(1x))",
		"  • Panadería: $300 (1 veces, Efectivo(1x))",
		"SUBTOTAL CONSULTADO: $1,500 (3 transacciones)",
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Fatalf("rendered context missing %q:\n%s", w, out)
		}
	}
}

func TestRenderContextEmptyDetail(t *testing.T) {
	fc := sampleContext()
	fc.Summary.Detail = core.Breakdown{}
	out := RenderContext(fc)
	if !strings.Contains(out, "- No hay gastos registrados en este contexto.") {
		t.Fatalf("expected empty detail notice:\n%s", out)
	}
	if RenderData(fc) != "" {
		t.Fatal("expected no data block when nothing matched")
	}
}

func TestRenderComparison(t *testing.T) {
	fc := sampleContext()
	if RenderComparison(fc) != "" {
		t.Fatal("expected no comparison when unavailable")
	}
	fc.ComparisonAvailable = true
	fc.Comparison = []core.CategoryMetric{
		{
			Category:          core.Almacen,
			Current:           core.SnapshotValues{Total: dec("1500"), Count: 3, AvgTicket: dec("500")},
			Prior:             &core.SnapshotValues{Total: dec("1250"), Count: 3, AvgTicket: dec("416.67")},
			VarianceTotalPct:  pct(20),
			VarianceTicketPct: pct(20),
			Diagnosis:         core.DiagnosisPriceIncrease,
		},
		{
			Category:  core.Ocio,
			Current:   core.SnapshotValues{Total: dec("800"), Count: 1, AvgTicket: dec("800")},
			Diagnosis: core.DiagnosisNone,
		},
		{
			Category:          core.Hogar,
			Current:           core.SnapshotValues{Total: dec("900"), Count: 1, AvgTicket: dec("900")},
			Prior:             &core.SnapshotValues{Total: dec("1000"), Count: 1, AvgTicket: dec("1000")},
			VarianceTotalPct:  pct(-10),
			VarianceTicketPct: pct(-10),
			Diagnosis:         core.DiagnosisReducedSpending,
		},
	}
	out := RenderComparison(fc)
	want := []string{
		"### COMPARATIVA VS MES ANTERIOR ###",
		"- 🛒 Almacén: gasto total +20.0% ($1,250 → $1,500), ticket promedio +20.0% ($417 → $500). " + string(core.DiagnosisPriceIncrease),
		"- 🎉 Ocio: $800 este mes (sin datos del mes anterior para comparar).",
		"- 🏠 Hogar: gasto total -10.0% ($1,000 → $900), ticket promedio -10.0% ($1,000 → $900). " + string(core.DiagnosisReducedSpending),
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Fatalf("rendered comparison missing %q:\n%s", w, out)
		}
	}
	if !strings.HasPrefix(RenderData(fc), "### ESTADO") || !strings.HasSuffix(RenderData(fc), out) {
		t.Fatal("expected data block to be context followed by comparison")
	}
}

func TestPesos(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0"},
		{"999", "$999"},
		{"1000", "$1,000"},
		{"1000000", "$1,000,000"},
		{"1234567.89", "$1,234,568"},
		{"2.5", "$2"},
		{"3.5", "$4"},
		{"-1500", "$-1,500"},
		{"-0.4", "$0"},
	}
	for _, tt := range tests {
		if got := Pesos(dec(tt.in)); got != tt.want {
			t.Errorf("Pesos(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSignedPct(t *testing.T) {
	if got := SignedPct(pct(0)); got != "+0.0%" {
		t.Fatalf("got %q", got)
	}
	if got := SignedPct(pct(-3.25)); got != "-3.2%" && got != "-3.3%" {
		t.Fatalf("got %q", got)
	}
	if got := SignedPct(nil); got != "s/d" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("¿Cuánto gasté?", "", "")
	if strings.Contains(p, "PRIORIDAD") || strings.Contains(p, "NORMATIVA") {
		t.Fatalf("bare prompt should have no optional sections:\n%s", p)
	}
	if !strings.HasSuffix(p, "PREGUNTA: ¿Cuánto gasté?\n\nRESPUESTA:") {
		t.Fatalf("unexpected prompt tail:\n%s", p)
	}

	p = BuildPrompt("q", "Deducciones por hijo.", "DATOS")
	iPrio := strings.Index(p, "- PRIORIDAD:")
	iMax := strings.Index(p, "- Máximo 4 líneas")
	iNorm := strings.Index(p, "NORMATIVA URUGUAYA RELEVANTE:\nDeducciones por hijo.\n")
	iData := strings.Index(p, "DATOS\n")
	iQ := strings.Index(p, "PREGUNTA: q")
	if iPrio < 0 || iMax < iPrio || iNorm < iMax || iData < iNorm || iQ < iData {
		t.Fatalf("sections out of order:\n%s", p)
	}
}

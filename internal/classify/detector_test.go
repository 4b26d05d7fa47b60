package classify

import (
	"math"
	"slices"
	"testing"

	"contador/internal/core"
	"contador/internal/log"
)

func newTestDetector(tax *core.Taxonomy) *Detector {
	return NewDetector(tax, log.Discard())
}

func TestDetectDefaultTaxonomy(t *testing.T) {
	d := newTestDetector(core.DefaultTaxonomy())
	cases := []struct {
		name  string
		query string
		want  []core.Category
	}{
		{"exact token", "cuánto gasté en el super", []core.Category{core.Almacen}},
		{"exact token uppercase", "SUPER!", []core.Category{core.Almacen}},
		{"accented keyword", "fui al Médico", []core.Category{core.Salud}},
		{"substring is not a token", "gastos del mes", nil},
		{"fuzzy typo", "cuánto gasté en el alamcen", []core.Category{core.Almacen}},
		{"unrelated word", "auto", []core.Category{core.Vehiculos}},
		{"several categories", "luz y nafta", []core.Category{core.Vehiculos, core.Hogar}},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := d.Detect(tc.query)
			if !slices.Equal(got, tc.want) {
				t.Fatalf("Detect(%q) = %v, want %v", tc.query, got, tc.want)
			}
		})
	}
}

func TestExplainFuzzyHit(t *testing.T) {
	d := newTestDetector(core.DefaultTaxonomy())
	hits := d.Explain("cuánto gasté en el alamcen")
	if len(hits) != 1 {
		t.Fatalf("expected one hit, got %+v", hits)
	}
	h := hits[0]
	if h.Kind != MatchFuzzy || h.Keyword != "almacen" || h.Token != "alamcen" {
		t.Fatalf("unexpected hit %+v", h)
	}
	if math.Abs(h.Score-12.0/14.0) > 1e-9 {
		t.Fatalf("unexpected score %v", h.Score)
	}
}

func TestPhraseKeyword(t *testing.T) {
	tax := core.NewTaxonomy([]core.TaxonomyEntry{
		{Category: core.Vehiculos, Keywords: []string{"seguro auto"}},
	})
	d := newTestDetector(tax)

	cases := []struct {
		query string
		want  bool
	}{
		{"pagué el seguro auto", true},
		{"¿cuánto sale el Seguro Auto?", true},
		{"pagué el seguro del auto", false},
		{"auto seguro", false},
	}
	for _, tc := range cases {
		got := len(d.Detect(tc.query)) == 1
		if got != tc.want {
			t.Fatalf("%q: detected=%v, want %v", tc.query, got, tc.want)
		}
	}

	hits := d.Explain("pagué el seguro auto")
	if len(hits) != 1 || hits[0].Kind != MatchPhrase {
		t.Fatalf("expected phrase hit, got %+v", hits)
	}
}

func TestFuzzyPicksClosestToken(t *testing.T) {
	tax := core.NewTaxonomy([]core.TaxonomyEntry{
		{Category: core.Almacen, Keywords: []string{"almacen"}},
	})
	d := newTestDetector(tax)
	hits := d.Explain("alamcen almacenn")
	if len(hits) != 1 {
		t.Fatalf("expected one hit, got %+v", hits)
	}
	if hits[0].Token != "almacenn" {
		t.Fatalf("expected closest token almacenn, got %q", hits[0].Token)
	}
}

func TestClosestMatch(t *testing.T) {
	cases := []struct {
		word       string
		candidates []string
		want       string
		ok         bool
	}{
		{"almacen", []string{"alamcen"}, "alamcen", true},
		{"gas", []string{"gastos"}, "", false},
		{"gas", []string{"gasté"}, "", false},
		{"almacen", []string{"auto"}, "", false},
		{"almacen", nil, "", false},
	}
	for _, tc := range cases {
		got, _, ok := ClosestMatch(tc.word, tc.candidates, FuzzyCutoff)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ClosestMatch(%q, %v) = %q,%v want %q,%v", tc.word, tc.candidates, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"alamcen", "almacen", 12.0 / 14.0},
		{"gastos", "gas", 6.0 / 9.0},
		{"gasté", "gas", 6.0 / 8.0},
		{"super", "super", 1},
	}
	for _, tc := range cases {
		if got := Similarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Similarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize(Normalize("¿Cuánto gasté en el súper_mercado, 2025?"))
	want := []string{"cuánto", "gasté", "en", "el", "súper_mercado", "2025"}
	if !slices.Equal(got, want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
}

package core

import "strings"

// TaxonomyEntry binds a category to its matching keywords. A keyword that
// contains a space is a phrase and is matched as a substring of the query.
type TaxonomyEntry struct {
	Category Category
	Keywords []string
}

// IsPhrase reports whether a keyword is a multi-word phrase.
func IsPhrase(keyword string) bool {
	return strings.Contains(keyword, " ")
}

// Taxonomy is an ordered, immutable keyword dictionary.
type Taxonomy struct {
	entries []TaxonomyEntry
}

// NewTaxonomy copies entries into a new Taxonomy. Keywords are lower-cased
// and trimmed; empty keywords are dropped.
func NewTaxonomy(entries []TaxonomyEntry) *Taxonomy {
	t := &Taxonomy{entries: make([]TaxonomyEntry, 0, len(entries))}
	for _, e := range entries {
		kws := make([]string, 0, len(e.Keywords))
		for _, k := range e.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				kws = append(kws, k)
			}
		}
		t.entries = append(t.entries, TaxonomyEntry{Category: e.Category, Keywords: kws})
	}
	return t
}

// Entries returns a copy of the taxonomy in declaration order.
func (t *Taxonomy) Entries() []TaxonomyEntry {
	out := make([]TaxonomyEntry, len(t.entries))
	for i, e := range t.entries {
		kws := make([]string, len(e.Keywords))
		copy(kws, e.Keywords)
		out[i] = TaxonomyEntry{Category: e.Category, Keywords: kws}
	}
	return out
}

// Keywords returns a copy of the keywords bound to c.
func (t *Taxonomy) Keywords(c Category) []string {
	for _, e := range t.entries {
		if e.Category == c {
			kws := make([]string, len(e.Keywords))
			copy(kws, e.Keywords)
			return kws
		}
	}
	return nil
}

// Rank returns the position of c in the taxonomy, or len(entries) when absent.
func (t *Taxonomy) Rank(c Category) int {
	for i, e := range t.entries {
		if e.Category == c {
			return i
		}
	}
	return len(t.entries)
}

func (t *Taxonomy) Len() int { return len(t.entries) }

var defaultTaxonomy = NewTaxonomy([]TaxonomyEntry{
	{Almacen, []string{
		"super", "supermercado", "comida", "almacen", "almacén", "compras", "comestibles",
		"mercado", "verduleria", "verdulería", "carniceria", "carnicería", "panaderia",
		"panadería", "delivery",
	}},
	{Vehiculos, []string{
		"nafta", "combustible", "gasolina", "auto", "coche", "vehiculo", "vehículo",
		"transporte", "peaje", "estacionamiento", "patente", "seguro auto", "mantenimiento auto",
	}},
	{Hogar, []string{
		"luz", "agua", "gas", "internet", "telefono", "teléfono", "cable", "alquiler",
		"casa", "hogar", "expensas", "servicio",
	}},
	{Salud, []string{
		"farmacia", "medico", "médico", "doctor", "hospital", "clinica", "clínica",
		"medicamento", "salud", "consulta", "obra social", "odontologo", "odontólogo",
	}},
	{Ocio, []string{
		"cine", "teatro", "salida", "restaurante", "cena", "asado", "bar", "cerveza",
		"entretenimiento", "ocio", "vacaciones", "paseo", "streaming", "netflix", "spotify",
	}},
	{Educacion, []string{
		"escuela", "colegio", "universidad", "curso", "libro", "material", "educacion",
		"educación", "estudio", "utiles", "útiles",
	}},
	{Ropa, []string{
		"ropa", "vestimenta", "calzado", "zapato", "remera", "pantalon", "pantalón",
		"campera", "abrigo", "zapatilla",
	}},
	{Otros, []string{
		"impuesto", "seguro", "prestamo", "préstamo", "varios",
	}},
})

// DefaultTaxonomy returns the process-wide keyword dictionary.
func DefaultTaxonomy() *Taxonomy {
	return defaultTaxonomy
}

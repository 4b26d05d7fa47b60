// Package classify maps free-text questions to spending categories.
package classify

import (
	"regexp"
	"slices"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"contador/internal/core"
	"contador/internal/log"
)

// FuzzyCutoff is the minimum similarity ratio for an approximate match.
const FuzzyCutoff = 0.8

// wordRe matches runs of letters, digits and underscore in any script.
var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// MatchKind tells how a keyword matched.
type MatchKind string

const (
	MatchPhrase MatchKind = "phrase"
	MatchExact  MatchKind = "exact"
	MatchFuzzy  MatchKind = "fuzzy"
)

// Hit records the keyword that marked a category as detected.
type Hit struct {
	Category core.Category
	Keyword  string
	Token    string // query token for exact and fuzzy hits
	Kind     MatchKind
	Score    float64
}

// Detector classifies queries against a taxonomy. It holds no mutable
// state and is safe for concurrent use.
type Detector struct {
	taxonomy *core.Taxonomy
	logger   *log.Logger
}

// NewDetector builds a detector over taxonomy. A nil logger logs through
// the process default.
func NewDetector(taxonomy *core.Taxonomy, logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.For(log.ComponentClassify)
	}
	return &Detector{taxonomy: taxonomy, logger: logger}
}

// Default returns a detector over the default taxonomy.
func Default() *Detector {
	return NewDetector(core.DefaultTaxonomy(), nil)
}

// Normalize lower-cases a query the way keywords are stored.
func Normalize(query string) string {
	return cases.Lower(language.Spanish).String(norm.NFC.String(query))
}

// Tokenize splits a normalized query into word tokens, in order.
func Tokenize(normalized string) []string {
	return wordRe.FindAllString(normalized, -1)
}

// Detect returns the categories the query refers to, in taxonomy order.
// An empty result means a general query.
func (d *Detector) Detect(query string) []core.Category {
	hits := d.Explain(query)
	out := make([]core.Category, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Category)
	}
	return out
}

// Explain is Detect with the keyword that decided each category.
func (d *Detector) Explain(query string) []Hit {
	lowered := Normalize(query)
	tokens := Tokenize(lowered)

	var hits []Hit
	for _, entry := range d.taxonomy.Entries() {
		if h, ok := d.matchCategory(entry, lowered, tokens); ok {
			hits = append(hits, h)
		}
	}

	if len(hits) > 0 {
		names := make([]string, len(hits))
		for i, h := range hits {
			names[i] = h.Category.Label()
		}
		d.logger.Info("categories detected", log.FieldOperation, log.OpDetect, log.FieldQuestion, query, log.FieldCategories, names)
	} else {
		d.logger.Info("general query detected", log.FieldOperation, log.OpDetect, log.FieldQuestion, query)
	}
	return hits
}

func (d *Detector) matchCategory(entry core.TaxonomyEntry, lowered string, tokens []string) (Hit, bool) {
	for _, kw := range entry.Keywords {
		if core.IsPhrase(kw) {
			if strings.Contains(lowered, kw) {
				return Hit{Category: entry.Category, Keyword: kw, Kind: MatchPhrase, Score: 1}, true
			}
			continue
		}
		if slices.Contains(tokens, kw) {
			return Hit{Category: entry.Category, Keyword: kw, Token: kw, Kind: MatchExact, Score: 1}, true
		}
		if tok, score, ok := ClosestMatch(kw, tokens, FuzzyCutoff); ok {
			d.logger.Info("fuzzy match",
				log.FieldOperation, log.OpDetect,
				log.FieldToken, tok,
				log.FieldKeyword, kw,
				log.FieldCategory, entry.Category.Label(),
				log.FieldScore, score)
			return Hit{Category: entry.Category, Keyword: kw, Token: tok, Kind: MatchFuzzy, Score: score}, true
		}
	}
	return Hit{}, false
}

// ClosestMatch returns the single candidate most similar to word whose
// similarity ratio is at least cutoff. Ties go to the lexically greater
// candidate.
func ClosestMatch(word string, candidates []string, cutoff float64) (string, float64, bool) {
	wordRunes := splitRunes(word)
	best, bestScore, found := "", 0.0, false
	for _, c := range candidates {
		m := difflib.NewMatcher(splitRunes(c), wordRunes)
		if m.RealQuickRatio() < cutoff || m.QuickRatio() < cutoff {
			continue
		}
		score := m.Ratio()
		if score < cutoff {
			continue
		}
		if !found || score > bestScore || (score == bestScore && c > best) {
			best, bestScore, found = c, score, true
		}
	}
	return best, bestScore, found
}

// Similarity is the ratio 2*M/T between a and b, compared rune by rune.
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(splitRunes(a), splitRunes(b)).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

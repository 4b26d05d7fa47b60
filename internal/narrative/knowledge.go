package narrative

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Topic is a knowledge file and the question keywords that point to it.
type Topic struct {
	File     string
	Keywords []string
	Weight   int
}

// DefaultTopics are the Uruguayan regulation notes shipped with the advisor.
func DefaultTopics() []Topic {
	return []Topic{
		{
			File:     "irpf_familia_uy.md",
			Keywords: []string{"irpf", "impuesto", "hijo", "alquiler", "deduccion", "dgi", "devolucion", "hipoteca"},
			Weight:   2,
		},
		{
			File:     "inclusion_financiera_uy.md",
			Keywords: []string{"iva", "tarjeta", "debito", "credito", "descuento", "inclusion financiera", "beneficio tarjeta"},
			Weight:   1,
		},
		{
			File:     "ahorro_ui_uy.md",
			Keywords: []string{"ahorro", "ui", "unidad indexada", "inflacion", "plazo fijo", "invertir", "banco"},
			Weight:   1,
		},
	}
}

// Library selects the knowledge file most relevant to a question.
type Library struct {
	dir    string
	topics []Topic
}

func NewLibrary(dir string, topics []Topic) *Library {
	if topics == nil {
		topics = DefaultTopics()
	}
	return &Library{dir: dir, topics: topics}
}

// Score sums the weight of every keyword found as a substring of the
// lower-cased question.
func (t Topic) Score(question string) int {
	q := strings.ToLower(question)
	score := 0
	for _, k := range t.Keywords {
		if strings.Contains(q, k) {
			score += t.Weight
		}
	}
	return score
}

// Best returns the highest-scoring topic. Ties go to the earlier topic; a
// question matching nothing returns false.
func (l *Library) Best(question string) (Topic, bool) {
	best, bestScore := -1, 0
	for i, t := range l.topics {
		if s := t.Score(question); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return Topic{}, false
	}
	return l.topics[best], true
}

// Select reads the best topic's file. It returns empty strings when nothing
// matches or the file does not exist.
func (l *Library) Select(question string) (content, file string, err error) {
	t, ok := l.Best(question)
	if !ok {
		return "", "", nil
	}
	b, err := os.ReadFile(filepath.Join(l.dir, t.File))
	if errors.Is(err, fs.ErrNotExist) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("read knowledge %s: %w", t.File, err)
	}
	return string(b), t.File, nil
}

// Package textmask picks frequent report vocabulary and removes it from
// prompts as a text augmentation.
package textmask

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrEmptyVocabulary is returned when no document contains a usable term.
var ErrEmptyVocabulary = errors.New("textmask: empty vocabulary")

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Term is a vocabulary word with its corpus-wide weight.
type Term struct {
	Word   string
	Weight float64
}

// Vectorizer is a fitted TF-IDF model. Terms are lower-cased runs of at least
// two word characters, minus English stop words. Inverse document frequency
// is smoothed as ln((1+n)/(1+df))+1 and each document row is L2-normalized.
type Vectorizer struct {
	terms []string
	index map[string]int
	idf   []float64
}

// Tokenize splits text into vectorizer terms.
func Tokenize(text string) []string {
	lower := cases.Lower(language.Und).String(text)
	var out []string
	for _, w := range wordRe.FindAllString(lower, -1) {
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Fit learns the vocabulary and document frequencies of docs.
func Fit(docs []string) (*Vectorizer, error) {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, w := range Tokenize(doc) {
			if !seen[w] {
				seen[w] = true
				df[w]++
			}
		}
	}
	if len(df) == 0 {
		return nil, ErrEmptyVocabulary
	}

	v := &Vectorizer{index: make(map[string]int, len(df))}
	for w := range df {
		v.terms = append(v.terms, w)
	}
	sort.Strings(v.terms)

	n := float64(len(docs))
	v.idf = make([]float64, len(v.terms))
	for i, w := range v.terms {
		v.index[w] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[w]))) + 1
	}
	return v, nil
}

// Terms returns the vocabulary in column order.
func (v *Vectorizer) Terms() []string {
	return v.terms
}

// Transform returns the sparse TF-IDF row of doc, keyed by column.
func (v *Vectorizer) Transform(doc string) map[int]float64 {
	row := make(map[int]float64)
	for _, w := range Tokenize(doc) {
		if i, ok := v.index[w]; ok {
			row[i]++
		}
	}
	var norm float64
	for i, c := range row {
		row[i] = c * v.idf[i]
		norm += row[i] * row[i]
	}
	if norm == 0 {
		return row
	}
	norm = math.Sqrt(norm)
	for i := range row {
		row[i] /= norm
	}
	return row
}

// ColumnSums adds up the TF-IDF rows of docs.
func (v *Vectorizer) ColumnSums(docs []string) []float64 {
	sums := make([]float64, len(v.terms))
	for _, doc := range docs {
		for i, x := range v.Transform(doc) {
			sums[i] += x
		}
	}
	return sums
}

// TopTerms fits docs and returns up to n terms by descending summed weight.
// Equal weights keep vocabulary order.
func TopTerms(docs []string, n int) ([]Term, error) {
	v, err := Fit(docs)
	if err != nil {
		return nil, err
	}
	sums := v.ColumnSums(docs)

	terms := make([]Term, len(sums))
	for i, w := range v.terms {
		terms[i] = Term{Word: w, Weight: sums[i]}
	}
	sort.SliceStable(terms, func(a, b int) bool {
		return terms[a].Weight > terms[b].Weight
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms, nil
}

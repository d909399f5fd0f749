package textmask

import (
	"math/rand"
	"regexp"
	"sort"
	"strings"
)

// TopN is the number of vocabulary terms eligible for masking.
const TopN = 100

var tokenRe = regexp.MustCompile(`\S+|\s+`)

// Sample draws int(len(terms)*ratio) words with replacement, each with
// probability proportional to its weight. Duplicates are kept.
func Sample(terms []Term, ratio float64, rng *rand.Rand) []string {
	k := int(float64(len(terms)) * ratio)
	if k <= 0 {
		return nil
	}

	cum := make([]float64, len(terms))
	var total float64
	for i, t := range terms {
		total += t.Weight
		cum[i] = total
	}
	if total <= 0 {
		return nil
	}

	out := make([]string, k)
	for j := range out {
		x := rng.Float64() * total
		i := sort.Search(len(cum), func(i int) bool { return cum[i] > x })
		if i == len(cum) {
			i = len(cum) - 1
		}
		out[j] = terms[i].Word
	}
	return out
}

// Masker removes a fixed set of words from prompts.
type Masker struct {
	words []string
	set   map[string]struct{}
}

// NewMasker creates a masker for words. The list may contain duplicates.
func NewMasker(words []string) *Masker {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return &Masker{words: words, set: set}
}

// FitMasker selects the mask words of a corpus: the top TopN terms of docs sampled
// down to ratio of their count.
func FitMasker(docs []string, ratio float64, rng *rand.Rand) (*Masker, error) {
	terms, err := TopTerms(docs, TopN)
	if err != nil {
		return nil, err
	}
	return NewMasker(Sample(terms, ratio, rng)), nil
}

// Words returns the sampled words, duplicates included.
func (m *Masker) Words() []string {
	return m.words
}

// Apply splits text into runs of non-space and space characters, drops every
// run that exactly matches a mask word and joins what remains with single
// spaces.
func (m *Masker) Apply(text string) string {
	tokens := tokenRe.FindAllString(text, -1)
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, drop := m.set[tok]; !drop {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " ")
}

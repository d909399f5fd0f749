// Package prompt derives the text prompt paired with each mammogram.
package prompt

import "github.com/menta2k/mmbcd/pkg/types"

const (
	// Prefix starts every prompt.
	Prefix = "Indication:"
	// MissingText is how an absent report is rendered.
	MissingText = "nan"
)

// For returns the prompt of a single sample.
//
// When every view of the study is malignant but this view is labelled benign
// the report is omitted and only the bare prefix is returned. In all other
// cases the report text follows the prefix.
func For(s types.Sample) string {
	if s.AllViewsLabel == 1 && s.Label == 0 {
		return Prefix
	}
	text := s.Text
	if !s.HasText {
		text = MissingText
	}
	return Prefix + " " + text
}

// Build returns one prompt per sample, in table order.
func Build(samples []types.Sample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = For(s)
	}
	return out
}

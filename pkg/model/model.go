// Package model defines the classifier seam used by the evaluator.
package model

import (
	"context"
	"math"

	"github.com/menta2k/mmbcd/pkg/types"
)

// Classes is the number of output classes: benign and malignant.
const Classes = 2

// Output is the result of classifying one batch.
type Output struct {
	// Logits holds one row of Classes scores per item.
	Logits [][]float32
	// Features holds one embedding per item. It is nil for backends without
	// an embedding head.
	Features [][]float32
}

// Classifier scores batches of crops and prompts.
type Classifier interface {
	Predict(ctx context.Context, batch *types.Batch) (Output, error)
	Close() error
}

// Softmax converts a row of logits to probabilities.
func Softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxv := math.Inf(-1)
	for _, v := range logits {
		maxv = math.Max(maxv, float64(v))
	}
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Argmax returns the index of the largest value, preferring the first on ties.
func Argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// LogitsFromProbability maps a malignancy probability to two-class logits
// whose softmax gives back [1-p, p].
func LogitsFromProbability(p float64) []float32 {
	const eps = 1e-7
	p = math.Min(math.Max(p, eps), 1-eps)
	return []float32{float32(math.Log(1 - p)), float32(math.Log(p))}
}

package plot

import (
	"math"
	"math/rand"
	"sync"

	"github.com/danaugrs/go-tsne/tsne"
	"gonum.org/v1/gonum/mat"
)

// TSNEConfig controls the embedding optimisation.
type TSNEConfig struct {
	Perplexity   float64
	LearningRate float64
	Iterations   int
	Seed         int64
}

// DefaultTSNEConfig returns perplexity 30, 1000 iterations and seed 42.
func DefaultTSNEConfig() TSNEConfig {
	return TSNEConfig{
		Perplexity:   30,
		LearningRate: 200,
		Iterations:   1000,
		Seed:         42,
	}
}

// go-tsne draws its initial solution from the global math/rand source.
var seedMu sync.Mutex

// TSNE embeds the rows of x into two dimensions with exact t-SNE. The
// perplexity is lowered for small inputs so that it stays below the number
// of neighbours.
func TSNE(x [][]float64, cfg TSNEConfig) [][2]float64 {
	n := len(x)
	y := make([][2]float64, n)
	if n < 2 || len(x[0]) == 0 {
		return y
	}

	perplexity := cfg.Perplexity
	if limit := float64(n-1) / 3; perplexity > limit {
		perplexity = math.Max(limit, 1)
	}

	seedMu.Lock()
	defer seedMu.Unlock()
	rand.Seed(cfg.Seed)

	t := tsne.NewTSNE(2, perplexity, cfg.LearningRate, cfg.Iterations, false)
	emb := t.EmbedData(denseRows(x), func(int, float64, mat.Matrix) bool { return false })
	for i := range y {
		y[i] = [2]float64{emb.At(i, 0), emb.At(i, 1)}
	}
	return y
}

func denseRows(x [][]float64) *mat.Dense {
	cols := len(x[0])
	data := make([]float64, 0, len(x)*cols)
	for _, row := range x {
		data = append(data, row[:cols]...)
	}
	return mat.NewDense(len(x), cols, data)
}

package evaluate

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/menta2k/mmbcd/pkg/model"
	"github.com/menta2k/mmbcd/pkg/types"
)

// fakeBatches serves fixed label batches.
type fakeBatches struct {
	batches []*types.Batch
	pos     int
}

func newFakeBatches(labels []int, size int) *fakeBatches {
	f := &fakeBatches{}
	for start := 0; start < len(labels); start += size {
		end := min(start+size, len(labels))
		b := &types.Batch{}
		for i := start; i < end; i++ {
			b.Indices = append(b.Indices, i)
			b.Labels = append(b.Labels, labels[i])
			b.Prompts = append(b.Prompts, "Indication:")
		}
		f.batches = append(f.batches, b)
	}
	return f
}

func (f *fakeBatches) Len() int { return len(f.batches) }

func (f *fakeBatches) Next(ctx context.Context) (*types.Batch, error) {
	if f.pos >= len(f.batches) {
		return nil, io.EOF
	}
	f.pos++
	return f.batches[f.pos-1], nil
}

// fakeClassifier returns a fixed malignant probability per sample index.
type fakeClassifier struct {
	probs    []float64
	features bool
	err      error
}

func (c *fakeClassifier) Predict(ctx context.Context, batch *types.Batch) (model.Output, error) {
	if c.err != nil {
		return model.Output{}, c.err
	}
	var out model.Output
	for _, idx := range batch.Indices {
		out.Logits = append(out.Logits, model.LogitsFromProbability(c.probs[idx]))
		if c.features {
			p := float32(c.probs[idx])
			out.Features = append(out.Features, []float32{p, 1 - p, float32(idx % 2)})
		}
	}
	return out, nil
}

func (c *fakeClassifier) Close() error { return nil }

type pathList []string

func (p pathList) ImagePath(i int) string { return p[i] }

var (
	testLabels = []int{0, 0, 0, 0, 1, 1, 1, 0, 1, 0}
	testProbs  = []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9, 0.4, 0.05, 0.6, 0.15}
)

func TestRun(t *testing.T) {
	e := New(newFakeBatches(testLabels, 3), &fakeClassifier{probs: testProbs}, DefaultConfig())
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, res.Indices)
	assert.Equal(t, testLabels, res.Labels)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1, 0, 0, 1, 0}, res.Predictions)
	for i, p := range res.Positive {
		assert.InDelta(t, testProbs[i], p, 1e-5)
		assert.InDelta(t, 1, res.Probabilities[i][0]+res.Probabilities[i][1], 1e-9)
	}

	// 8 of 10 correct; malignant precision 3/4, recall 3/4.
	assert.InDelta(t, 0.8, res.Accuracy, 1e-9)
	assert.InDelta(t, 0.75, res.F1, 1e-9)
	// 22 of 24 positive/negative pairs ranked correctly.
	assert.InDelta(t, 22.0/24.0, res.AUC, 1e-9)

	// Negatives descending: 0.7 0.3 0.2 0.15 0.1 0.05; int(0.3*6)=1 -> 0.3.
	assert.InDelta(t, 0.3, res.Recall.Threshold, 1e-5)
	assert.Equal(t, 1.0, res.Recall.Recall)
	assert.Empty(t, res.Recall.FalseNegatives)
	assert.Equal(t, []int{4, 5, 6, 8}, res.Recall.TruePositives)

	// Lowest malignant score 0.4; only the 0.7 negative lies above it.
	assert.Equal(t, []int{3}, res.FalsePositives)
	assert.InDelta(t, 1.0/6.0, res.FullRecallFPR, 1e-9)
	assert.Nil(t, res.Features)
}

func TestScores(t *testing.T) {
	e := New(newFakeBatches(testLabels, 4), &fakeClassifier{probs: testProbs}, DefaultConfig())
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(res.Scores(), "\n")
	assert.Equal(t, "Accuracy: 0.80", lines[0])
	assert.Equal(t, "F1 Score: 0.75", lines[1])
	assert.Contains(t, res.Scores(), res.Report)
	assert.Contains(t, res.Scores(), "Logistic: ROC AUC=0.917\n")
	assert.Contains(t, res.Scores(), "Recall@FPR=0.30: 1.000")
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ScoreFile = filepath.Join(dir, "out", "result_scores.txt")
	cfg.PlotPath = filepath.Join(dir, "out", "result_auc.png")
	cfg.LogitsPath = filepath.Join(dir, "out", "logits_labels.npy")
	cfg.EmbeddingsPath = filepath.Join(dir, "out", "embeddings_save.npy")
	cfg.FPR = 0.5
	cfg.CopyImages = true
	cfg.FNDir = filepath.Join(dir, "fn")
	cfg.TPDir = filepath.Join(dir, "tp")
	cfg.FPList = filepath.Join(dir, "fp_images.txt")
	cfg.TSNE.Iterations = 300

	var paths pathList
	for i := range testLabels {
		p := filepath.Join(dir, "img", "scan"+string(rune('a'+i))+".png")
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte{byte(i)}, 0644))
		paths = append(paths, p)
	}

	e := New(newFakeBatches(testLabels, 4), &fakeClassifier{probs: testProbs, features: true}, cfg, WithImagePaths(paths))
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, e.Write(res))

	scores, err := os.ReadFile(cfg.ScoreFile)
	require.NoError(t, err)
	assert.Equal(t, res.Scores(), string(scores))

	for _, p := range []string{cfg.PlotPath, filepath.Join(dir, "out", "result_tsne.png")} {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "\x89PNG"), p)
	}

	f, err := os.Open(cfg.LogitsPath)
	require.NoError(t, err)
	defer f.Close()
	var logits mat.Dense
	require.NoError(t, npyio.Read(f, &logits))
	r, c := logits.Dims()
	assert.Equal(t, 10, r)
	assert.Equal(t, 3, c)
	assert.InDelta(t, testProbs[4], logits.At(4, 1), 1e-5)
	assert.Equal(t, 1.0, logits.At(4, 2))

	g, err := os.Open(cfg.EmbeddingsPath)
	require.NoError(t, err)
	defer g.Close()
	var emb mat.Dense
	require.NoError(t, npyio.Read(g, &emb))
	r, c = emb.Dims()
	assert.Equal(t, 10, r)
	assert.Equal(t, 3, c)

	// Negatives descending: 0.7 0.3 0.2 0.15 0.1 0.05; int(0.5*6)=3 -> 0.15,
	// so every malignant sample is a true positive.
	tp, err := os.ReadDir(cfg.TPDir)
	require.NoError(t, err)
	assert.Len(t, tp, 4)
	fn, err := os.ReadDir(cfg.FNDir)
	require.NoError(t, err)
	assert.Empty(t, fn)

	fp, err := os.ReadFile(cfg.FPList)
	require.NoError(t, err)
	assert.Equal(t, paths[3]+"\n", string(fp))
}

func TestRunClassifierError(t *testing.T) {
	boom := errors.New("boom")
	e := New(newFakeBatches(testLabels, 4), &fakeClassifier{probs: testProbs, err: boom}, DefaultConfig())
	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

type shortClassifier struct{ fakeClassifier }

func (c *shortClassifier) Predict(ctx context.Context, batch *types.Batch) (model.Output, error) {
	out, err := c.fakeClassifier.Predict(ctx, batch)
	out.Logits = out.Logits[:len(out.Logits)-1]
	return out, err
}

func TestRunRowMismatch(t *testing.T) {
	e := New(newFakeBatches(testLabels, 4), &shortClassifier{fakeClassifier{probs: testProbs}}, DefaultConfig())
	_, err := e.Run(context.Background())
	assert.Error(t, err)
}

func TestRunSingleClass(t *testing.T) {
	labels := []int{0, 0, 0}
	e := New(newFakeBatches(labels, 2), &fakeClassifier{probs: []float64{0.1, 0.2, 0.3}}, DefaultConfig())
	_, err := e.Run(context.Background())
	assert.Error(t, err)
}

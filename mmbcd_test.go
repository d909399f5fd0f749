package mmbcd

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/mmbcd/internal/config"
	"github.com/menta2k/mmbcd/pkg/model"
	"github.com/menta2k/mmbcd/pkg/proposals"
	"github.com/menta2k/mmbcd/pkg/screening"
	"github.com/menta2k/mmbcd/pkg/types"
)

// createTestImage creates a gray test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	return img
}

// writeFixture lays out a four row table with images and proposals and
// returns a configuration pointing at it.
func writeFixture(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	imgDir := filepath.Join(root, "images")
	txtDir := filepath.Join(root, "proposals")

	rows := []string{"im_path,text,cancer,all_views_cancer"}
	reports := []string{"spiculated mass", "stable calcifications", "", "focal asymmetry"}
	for i, report := range reports {
		rel := fmt.Sprintf("case%d.png", i)
		path := filepath.Join(imgDir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, createTestImage(40, 30)))
		require.NoError(t, f.Close())

		prop := proposals.Path(txtDir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(prop), 0755))
		require.NoError(t, os.WriteFile(prop, []byte("0.5 0.5 0.4 0.4 0.9\n0.2 0.2 0.1 0.1 0.5\n"), 0644))

		rows = append(rows, fmt.Sprintf("%s,%s,%d,%d", rel, report, i%2, i%2))
	}
	csvPath := filepath.Join(root, "test.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(strings.Join(rows, "\n")+"\n"), 0644))

	cfg := config.Default()
	cfg.Dataset.CSVPath = csvPath
	cfg.Dataset.ImageBaseDir = imgDir
	cfg.Dataset.TextBaseDir = txtDir
	cfg.Dataset.ImgSize = 8
	cfg.Dataset.TopK = 3
	cfg.Loader.BatchSize = 3
	cfg.Loader.Workers = 2
	cfg.Output.ScoreFile = filepath.Join(root, "out", "result_scores.txt")
	cfg.Output.PlotPath = filepath.Join(root, "out", "result_auc.png")
	cfg.Output.LogitsPath = filepath.Join(root, "out", "logits_labels.npy")
	cfg.Output.EmbeddingsPath = filepath.Join(root, "out", "embeddings_save.npy")
	cfg.Output.FPList = filepath.Join(root, "out", "fp_images.txt")
	return cfg
}

// promptClassifier scores prompts mentioning a mass or asymmetry as malignant.
type promptClassifier struct {
	shapes [][]int
	closed bool
}

func (c *promptClassifier) Predict(ctx context.Context, batch *types.Batch) (model.Output, error) {
	c.shapes = append(c.shapes, batch.Crops.Shape)
	var out model.Output
	for _, p := range batch.Prompts {
		prob := 0.2
		if strings.Contains(p, "mass") || strings.Contains(p, "asymmetry") {
			prob = 0.9
		}
		out.Logits = append(out.Logits, model.LogitsFromProbability(prob))
	}
	return out, nil
}

func (c *promptClassifier) Close() error {
	c.closed = true
	return nil
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, Version, GetVersion())
}

func TestEvaluate(t *testing.T) {
	cfg := writeFixture(t)
	clf := &promptClassifier{}

	res, err := Evaluate(context.Background(), cfg, WithClassifier(clf), WithProgress(false))
	require.NoError(t, err)

	assert.True(t, clf.closed)
	require.Len(t, clf.shapes, 2)
	assert.Equal(t, []int{3, 3, 3, 8, 8}, clf.shapes[0])
	assert.Equal(t, []int{1, 3, 3, 8, 8}, clf.shapes[1])

	assert.Equal(t, []int{0, 1, 0, 1}, res.Labels)
	assert.Equal(t, []int{1, 0, 0, 1}, res.Predictions)
	assert.InDelta(t, 0.5, res.Accuracy, 1e-9)
	assert.InDelta(t, 0.5, res.AUC, 1e-9)

	for _, p := range []string{cfg.Output.ScoreFile, cfg.Output.PlotPath, cfg.Output.LogitsPath, cfg.Output.FPList} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
	// No embeddings from this classifier.
	_, err = os.Stat(cfg.Output.EmbeddingsPath)
	assert.True(t, os.IsNotExist(err))

	// The configuration passed in is left untouched.
	assert.Equal(t, 0.2, cfg.Dataset.MaskRatio)
}

func TestOpen(t *testing.T) {
	cfg := writeFixture(t)
	cfg.Model.Backend = config.BackendOllama
	cfg.Model.URL = "http://localhost:11434"

	p, err := Open(cfg, WithProgress(false))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 4, p.Dataset.Len())
	assert.Equal(t, 2, p.Loader.Len())
	assert.IsType(t, &screening.Screener{}, p.Classifier)
}

func TestOpenErrors(t *testing.T) {
	cfg := writeFixture(t)
	cfg.Model.Backend = "torch"
	_, err := Open(cfg, WithProgress(false))
	assert.Error(t, err)

	cfg = writeFixture(t)
	cfg.Dataset.CSVPath = filepath.Join(t.TempDir(), "missing.csv")
	_, err = Open(cfg, WithClassifier(&promptClassifier{}), WithProgress(false))
	assert.Error(t, err)
}

func TestDatasetConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Dataset.CSVPath = "a.csv"
	dc := DatasetConfig(cfg)
	assert.Equal(t, "a.csv", dc.CSVPath)
	assert.Equal(t, 5, dc.TopK)
	assert.Equal(t, 0.1, dc.IoUThreshold)

	ec := EvaluateConfig(cfg)
	assert.Equal(t, 0.3, ec.FPR)
	assert.Equal(t, cfg.Output.PlotPath, ec.PlotPath)
}

// Package evaluate runs a classifier over every batch of a loader and writes
// the score file, probability and embedding arrays, and ROC and t-SNE plots.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/sbinet/npyio"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
	"gonum.org/v1/gonum/mat"

	"github.com/menta2k/mmbcd/internal/utils"
	"github.com/menta2k/mmbcd/pkg/metrics"
	"github.com/menta2k/mmbcd/pkg/model"
	"github.com/menta2k/mmbcd/pkg/plot"
	"github.com/menta2k/mmbcd/pkg/types"
)

// Batches yields batches until io.EOF. *loader.Loader satisfies it.
type Batches interface {
	Len() int
	Next(ctx context.Context) (*types.Batch, error)
}

// ImagePaths resolves a sample index to its image file. *dataset.Dataset
// satisfies it.
type ImagePaths interface {
	ImagePath(i int) string
}

// Config lists the artifacts to write. Empty paths are skipped.
type Config struct {
	ScoreFile      string
	PlotPath       string
	LogitsPath     string
	EmbeddingsPath string
	FPR            float64
	CopyImages     bool
	FNDir          string
	TPDir          string
	FPList         string
	TSNE           plot.TSNEConfig
}

// DefaultConfig returns the artifact layout used by the evaluation CLI.
func DefaultConfig() Config {
	return Config{
		ScoreFile:      "./models/mmbcd/result_scores.txt",
		PlotPath:       "./models/mmbcd/result_auc.png",
		LogitsPath:     "./models/mmbcd/logits_labels.npy",
		EmbeddingsPath: "./models/mmbcd/embeddings_save.npy",
		FPR:            0.3,
		FNDir:          "fn",
		TPDir:          "tp",
		FPList:         "fp_images.txt",
		TSNE:           plot.DefaultTSNEConfig(),
	}
}

// Result holds everything computed in one evaluation pass. Slices are
// ordered as the batches were served.
type Result struct {
	Indices       []int
	Labels        []int
	Predictions   []int
	Probabilities [][]float64
	Positive      []float64
	Features      [][]float32

	Accuracy float64
	F1       float64
	Report   string
	AUC      float64
	ROC      *metrics.ROC
	Recall   metrics.RecallResult

	// FullRecallFPR and FalsePositives are zero when a class is missing.
	FullRecallFPR  float64
	FalsePositives []int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets a logger for progress and summary messages.
func WithLogger(logger *log.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// WithProgress toggles the progress bar shown over batches.
func WithProgress(enabled bool) Option {
	return func(e *Evaluator) { e.progress = enabled }
}

// WithImagePaths enables FN/TP image export and the false positive list.
func WithImagePaths(paths ImagePaths) Option {
	return func(e *Evaluator) { e.paths = paths }
}

// Evaluator ties a batch source to a classifier.
type Evaluator struct {
	batches    Batches
	classifier model.Classifier
	config     Config
	paths      ImagePaths
	logger     *log.Logger
	progress   bool
}

// New creates an evaluator.
func New(batches Batches, classifier model.Classifier, config Config, opts ...Option) *Evaluator {
	e := &Evaluator{batches: batches, classifier: classifier, config: config}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run scores every batch and computes the metrics.
func (e *Evaluator) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	step := func() (bool, error) {
		batch, err := e.batches.Next(ctx)
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		out, err := e.classifier.Predict(ctx, batch)
		if err != nil {
			return false, fmt.Errorf("failed to classify batch: %w", err)
		}
		return false, res.add(batch, out)
	}

	if e.progress {
		var failed error
		err := tqdm.With(iterators.Interval(0, e.batches.Len()), "evaluating", func(v interface{}) (brk bool) {
			var done bool
			done, failed = step()
			return done || failed != nil
		})
		if failed != nil {
			return nil, failed
		}
		if err != nil {
			return nil, err
		}
	}
	for {
		done, err := step()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	if err := res.score(e.config.FPR); err != nil {
		return nil, err
	}
	e.summarize(res)
	return res, nil
}

func (r *Result) add(batch *types.Batch, out model.Output) error {
	if len(out.Logits) != batch.Len() {
		return fmt.Errorf("classifier returned %d rows for a batch of %d", len(out.Logits), batch.Len())
	}
	if out.Features != nil && len(out.Features) != batch.Len() {
		return fmt.Errorf("classifier returned %d embeddings for a batch of %d", len(out.Features), batch.Len())
	}
	for i, logits := range out.Logits {
		if len(logits) != model.Classes {
			return fmt.Errorf("expected %d logits, got %d", model.Classes, len(logits))
		}
		p := model.Softmax(logits)
		r.Indices = append(r.Indices, batch.Indices[i])
		r.Labels = append(r.Labels, batch.Labels[i])
		r.Probabilities = append(r.Probabilities, p)
		r.Positive = append(r.Positive, p[1])
		r.Predictions = append(r.Predictions, model.Argmax(p))
	}
	if out.Features != nil {
		r.Features = append(r.Features, out.Features...)
	}
	return nil
}

func (r *Result) score(fpr float64) error {
	var err error
	if r.Accuracy, err = metrics.Accuracy(r.Predictions, r.Labels); err != nil {
		return err
	}
	if r.F1, err = metrics.F1(r.Predictions, r.Labels); err != nil {
		return err
	}
	if r.Report, err = metrics.ClassificationReport(r.Predictions, r.Labels); err != nil {
		return err
	}
	if r.ROC, err = metrics.ROCCurve(r.Positive, r.Labels); err != nil {
		return fmt.Errorf("failed to compute ROC: %w", err)
	}
	r.AUC = r.ROC.AUC()
	if r.Recall, err = metrics.RecallAtFPR(r.Positive, r.Labels, fpr); err != nil {
		return fmt.Errorf("failed to compute recall: %w", err)
	}
	r.FullRecallFPR, r.FalsePositives, err = metrics.FPRAtFullRecall(r.Positive, r.Labels)
	if err != nil {
		return fmt.Errorf("failed to compute FPR at full recall: %w", err)
	}
	return nil
}

func (e *Evaluator) summarize(r *Result) {
	if e.logger == nil {
		return
	}
	var pos, neg stats.Float64Data
	for i, l := range r.Labels {
		if l == 1 {
			pos = append(pos, r.Positive[i])
		} else {
			neg = append(neg, r.Positive[i])
		}
	}
	meanPos, _ := pos.Mean()
	meanNeg, _ := neg.Mean()
	median, _ := stats.Median(r.Positive)
	e.logger.Printf("evaluated %d samples: accuracy %.2f, F1 %.2f, ROC AUC %.3f", len(r.Labels), r.Accuracy, r.F1, r.AUC)
	e.logger.Printf("malignant probability: mean %.3f on malignant, %.3f on benign, median %.3f", meanPos, meanNeg, median)
	e.logger.Printf("%s", r.Recall)
	e.logger.Printf("total FP images @ Recall=1: %d (FPR %.3f)", len(r.FalsePositives), r.FullRecallFPR)
}

// Scores renders the score file contents.
func (r *Result) Scores() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Accuracy: %.2f\n", r.Accuracy)
	fmt.Fprintf(&b, "F1 Score: %.2f\n", r.F1)
	b.WriteString(r.Report)
	fmt.Fprintf(&b, "Logistic: ROC AUC=%.3f\n", r.AUC)
	fmt.Fprintf(&b, "%s\n", r.Recall)
	return b.String()
}

// LogitsMatrix returns one row [p_benign, p_malignant, label] per sample.
func (r *Result) LogitsMatrix() *mat.Dense {
	m := mat.NewDense(max(len(r.Labels), 1), 3, nil)
	for i, p := range r.Probabilities {
		m.SetRow(i, []float64{p[0], p[1], float64(r.Labels[i])})
	}
	return m
}

// EmbeddingsMatrix returns the features as a matrix, or nil when the
// classifier produced none.
func (r *Result) EmbeddingsMatrix() *mat.Dense {
	if len(r.Features) == 0 {
		return nil
	}
	m := mat.NewDense(len(r.Features), len(r.Features[0]), nil)
	for i, f := range r.Features {
		for j, v := range f {
			m.Set(i, j, float64(v))
		}
	}
	return m
}

// Write stores every configured artifact.
func (e *Evaluator) Write(r *Result) error {
	cfg := e.config

	if cfg.LogitsPath != "" && len(r.Labels) > 0 {
		if err := writeNpy(cfg.LogitsPath, r.LogitsMatrix()); err != nil {
			return err
		}
	}
	if m := r.EmbeddingsMatrix(); m != nil && cfg.EmbeddingsPath != "" {
		if err := writeNpy(cfg.EmbeddingsPath, m); err != nil {
			return err
		}
	}

	if cfg.ScoreFile != "" {
		if err := writeText(cfg.ScoreFile, r.Scores()); err != nil {
			return err
		}
	}

	if cfg.PlotPath != "" {
		if err := utils.EnsureParent(cfg.PlotPath); err != nil {
			return fmt.Errorf("failed to create plot directory: %w", err)
		}
		if err := plot.ROC(cfg.PlotPath, r.ROC.FPR, r.ROC.TPR, "text"); err != nil {
			return err
		}
		if len(r.Features) > 0 {
			if err := plot.Embedding(utils.TSNEPath(cfg.PlotPath), r.Features, r.Labels, cfg.TSNE); err != nil {
				return err
			}
		}
	}

	if e.paths != nil {
		if err := e.export(r); err != nil {
			return err
		}
	}
	return nil
}

// export copies false negative and true positive images at the chosen
// operating point and lists the false positives at full recall.
func (e *Evaluator) export(r *Result) error {
	cfg := e.config
	if cfg.CopyImages {
		copyAll := func(positions []int, dir string) error {
			if err := utils.EnsureDir(dir); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
			for _, pos := range positions {
				if _, err := utils.CopyFile(e.paths.ImagePath(r.Indices[pos]), dir); err != nil {
					return err
				}
			}
			return nil
		}
		if err := copyAll(r.Recall.FalseNegatives, cfg.FNDir); err != nil {
			return err
		}
		if err := copyAll(r.Recall.TruePositives, cfg.TPDir); err != nil {
			return err
		}
		e.logf("copied %d false negatives to %s and %d true positives to %s",
			len(r.Recall.FalseNegatives), cfg.FNDir, len(r.Recall.TruePositives), cfg.TPDir)
	}

	if cfg.FPList != "" {
		var b strings.Builder
		for _, pos := range r.FalsePositives {
			b.WriteString(e.paths.ImagePath(r.Indices[pos]))
			b.WriteByte('\n')
		}
		if err := writeText(cfg.FPList, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

func writeNpy(path string, m *mat.Dense) error {
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := npyio.Write(f, m); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func writeText(path, content string) error {
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

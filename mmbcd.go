// Package mmbcd evaluates multimodal breast cancer classifiers on
// mammograms paired with radiology reports.
//
// A dataset pairs every mammogram listed in a CSV table with the region
// proposals of an upstream detector and a prompt derived from its report.
// The proposals are reduced to a fixed number of boxes with non-maximum
// suppression and cropped into normalized tensors. A classifier scores the
// crops and prompts, and the evaluator writes the metrics, probability and
// embedding arrays and plots.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		"github.com/menta2k/mmbcd"
//		"github.com/menta2k/mmbcd/internal/config"
//	)
//
//	func main() {
//		cfg, err := config.LoadFromFile("config.json")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		res, err := mmbcd.Evaluate(context.Background(), cfg)
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("ROC AUC %.3f", res.AUC)
//	}
//
// The package ties together these components:
//
//  1. Dataset (pkg/dataset): table, prompts, proposals and crops
//  2. Loader (pkg/loader): concurrent batching
//  3. Classifiers (pkg/onnx, pkg/screening): exported model or vision LLM
//  4. Evaluator (pkg/evaluate): metrics, arrays and plots
package mmbcd

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"github.com/menta2k/mmbcd/internal/config"
	"github.com/menta2k/mmbcd/pkg/client"
	"github.com/menta2k/mmbcd/pkg/cropper"
	"github.com/menta2k/mmbcd/pkg/dataset"
	"github.com/menta2k/mmbcd/pkg/evaluate"
	"github.com/menta2k/mmbcd/pkg/llamacpp"
	"github.com/menta2k/mmbcd/pkg/loader"
	"github.com/menta2k/mmbcd/pkg/model"
	"github.com/menta2k/mmbcd/pkg/ollama"
	"github.com/menta2k/mmbcd/pkg/onnx"
	"github.com/menta2k/mmbcd/pkg/plot"
	"github.com/menta2k/mmbcd/pkg/screening"
)

// Version of the mmbcd library
const Version = "1.0.0"

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger passed to every component.
func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithProgress toggles progress bars during construction and evaluation.
func WithProgress(enabled bool) Option {
	return func(p *Pipeline) { p.progress = enabled }
}

// WithClassifier uses c instead of the backend named in the configuration.
func WithClassifier(c model.Classifier) Option {
	return func(p *Pipeline) { p.Classifier = c }
}

// Pipeline is an opened dataset, loader and classifier.
type Pipeline struct {
	Config     *config.Config
	Dataset    *dataset.Dataset
	Loader     *loader.Loader
	Classifier model.Classifier

	logger   *log.Logger
	progress bool
}

// DatasetConfig extracts the dataset parameters of cfg.
func DatasetConfig(cfg *config.Config) dataset.Config {
	return dataset.Config{
		CSVPath:      cfg.Dataset.CSVPath,
		ImageBaseDir: cfg.Dataset.ImageBaseDir,
		TextBaseDir:  cfg.Dataset.TextBaseDir,
		IoUThreshold: cfg.Dataset.IoUThreshold,
		TopK:         cfg.Dataset.TopK,
		ImgSize:      cfg.Dataset.ImgSize,
		MaskRatio:    cfg.Dataset.MaskRatio,
		EnableMask:   cfg.Dataset.EnableMask,
	}
}

// EvaluateConfig extracts the artifact layout of cfg.
func EvaluateConfig(cfg *config.Config) evaluate.Config {
	return evaluate.Config{
		ScoreFile:      cfg.Output.ScoreFile,
		PlotPath:       cfg.Output.PlotPath,
		LogitsPath:     cfg.Output.LogitsPath,
		EmbeddingsPath: cfg.Output.EmbeddingsPath,
		FPR:            cfg.Output.FPR,
		CopyImages:     cfg.Output.CopyImages,
		FNDir:          cfg.Output.FNDir,
		TPDir:          cfg.Output.TPDir,
		FPList:         cfg.Output.FPList,
		TSNE:           plot.DefaultTSNEConfig(),
	}
}

// Open builds the dataset, the loader and, unless one was supplied with
// WithClassifier, the classifier selected by cfg.Model.Backend.
func Open(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{Config: cfg}
	for _, opt := range opts {
		opt(p)
	}

	rng := rand.New(rand.NewSource(cfg.Dataset.Seed))
	ds, err := dataset.New(DatasetConfig(cfg), rng,
		dataset.WithLogger(p.logger), dataset.WithProgress(p.progress))
	if err != nil {
		return nil, fmt.Errorf("failed to build dataset: %w", err)
	}
	p.Dataset = ds

	p.Loader, err = loader.New(ds, cfg.Loader.BatchSize, cfg.Loader.Workers)
	if err != nil {
		return nil, err
	}
	if cfg.Loader.Shuffle {
		p.Loader.Shuffle(rng)
	}

	if p.Classifier == nil {
		p.Classifier, err = NewClassifier(cfg, ds.Cropper(), p.logger)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewClassifier opens the backend named in cfg.Model.Backend. The vision
// LLM backends use c to turn crop tensors back into images.
func NewClassifier(cfg *config.Config, c *cropper.Cropper, logger *log.Logger) (model.Classifier, error) {
	m := cfg.Model
	var vc client.VisionClient
	switch m.Backend {
	case config.BackendONNX:
		return onnx.New(onnx.Config{
			ModelPath:     m.ModelPath,
			TokenizerPath: m.TokenizerPath,
			LibraryPath:   m.ORTLibrary,
			MaxLength:     m.MaxLength,
			Special:       onnx.Special{BOS: m.BosID, EOS: m.EosID, Pad: m.PadID},
			CropsInput:    m.CropsInput,
			IDsInput:      m.IDsInput,
			MaskInput:     m.MaskInput,
			LogitsOutput:  m.LogitsOutput,
			FeatureOutput: m.FeatureOutput,
		}, logger)
	case config.BackendOllama:
		oc, err := ollama.NewClient(m.URL)
		if err != nil {
			return nil, err
		}
		vc = oc
	case config.BackendLlamaCpp:
		lc, err := llamacpp.NewClient(m.URL)
		if err != nil {
			return nil, err
		}
		vc = lc
	default:
		return nil, fmt.Errorf("unknown model backend %q", m.Backend)
	}
	return screening.NewScreener(vc, m.Name, c, logger), nil
}

// Evaluate runs the classifier over every batch and writes the artifacts.
func (p *Pipeline) Evaluate(ctx context.Context) (*evaluate.Result, error) {
	e := evaluate.New(p.Loader, p.Classifier, EvaluateConfig(p.Config),
		evaluate.WithLogger(p.logger),
		evaluate.WithProgress(p.progress),
		evaluate.WithImagePaths(p.Dataset))
	res, err := e.Run(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.Write(res); err != nil {
		return nil, err
	}
	return res, nil
}

// Close releases the classifier.
func (p *Pipeline) Close() error {
	if p.Classifier == nil {
		return nil
	}
	return p.Classifier.Close()
}

// Evaluate opens a pipeline for cfg with masking disabled, evaluates it
// and closes it.
func Evaluate(ctx context.Context, cfg *config.Config, opts ...Option) (*evaluate.Result, error) {
	evalCfg := *cfg
	evalCfg.Dataset.MaskRatio = 0

	p, err := Open(&evalCfg, opts...)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return p.Evaluate(ctx)
}

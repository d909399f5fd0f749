package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"

	"github.com/menta2k/mmbcd"
	"github.com/menta2k/mmbcd/internal/config"
	"github.com/menta2k/mmbcd/internal/utils"
)

type args struct {
	Config      string   `arg:"-c,--config" help:"JSON configuration file"`
	CSV         string   `arg:"--csv" help:"table with im_path, text, cancer and all_views_cancer columns"`
	ImageBase   string   `arg:"--img-base" help:"directory the image paths are relative to"`
	TextBase    string   `arg:"--text-base" help:"directory holding the *_preds.txt proposal files"`
	TopK        int      `arg:"--topk" help:"proposals per image"`
	ImgSize     int      `arg:"--img-size" help:"crop side in pixels"`
	MaskRatio   *float64 `arg:"--mask-ratio" help:"fraction of the top report terms to mask; evaluation runs unmasked when unset"`
	BatchSize   int      `arg:"--batch-size" help:"items per batch"`
	Workers     int      `arg:"--workers" help:"concurrent item loads per batch"`
	Backend     string   `arg:"--backend" help:"onnx, ollama or llamacpp"`
	Model       string   `arg:"--model" help:"ONNX model path"`
	Tokenizer   string   `arg:"--tokenizer" help:"tokenizer.json path"`
	ORTLibrary  string   `arg:"--ort-lib" help:"onnxruntime shared library"`
	URL         string   `arg:"--url" help:"vision LLM server URL"`
	Name        string   `arg:"--name" help:"vision LLM model name"`
	ScoreFile   string   `arg:"--score-file" help:"metrics text file"`
	PlotPath    string   `arg:"--plot" help:"ROC plot path; the t-SNE plot is written next to it"`
	LogitsPath  string   `arg:"--logits" help:"probabilities .npy path"`
	FPR         float64  `arg:"--fpr" help:"false positive rate for the recall operating point"`
	CopyImages  bool     `arg:"--copy-images" help:"copy false negatives and true positives into fn/ and tp/"`
	Quiet       bool     `arg:"-q,--quiet" help:"disable progress bars"`
	WriteConfig string   `arg:"--write-config" help:"write the merged configuration to this path and exit"`
}

func (args) Description() string {
	return "Evaluates a multimodal mammography classifier and writes scores, arrays and plots."
}

// apply overrides file values with the flags that were set.
func (a args) apply(cfg *config.Config) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	setString(&cfg.Dataset.CSVPath, a.CSV)
	setString(&cfg.Dataset.ImageBaseDir, a.ImageBase)
	setString(&cfg.Dataset.TextBaseDir, a.TextBase)
	setInt(&cfg.Dataset.TopK, a.TopK)
	setInt(&cfg.Dataset.ImgSize, a.ImgSize)
	if a.MaskRatio != nil {
		cfg.Dataset.MaskRatio = *a.MaskRatio
	}
	setInt(&cfg.Loader.BatchSize, a.BatchSize)
	setInt(&cfg.Loader.Workers, a.Workers)
	setString(&cfg.Model.Backend, a.Backend)
	setString(&cfg.Model.ModelPath, a.Model)
	setString(&cfg.Model.TokenizerPath, a.Tokenizer)
	setString(&cfg.Model.ORTLibrary, a.ORTLibrary)
	setString(&cfg.Model.URL, a.URL)
	setString(&cfg.Model.Name, a.Name)
	setString(&cfg.Output.ScoreFile, a.ScoreFile)
	setString(&cfg.Output.PlotPath, a.PlotPath)
	setString(&cfg.Output.LogitsPath, a.LogitsPath)
	if a.FPR != 0 {
		cfg.Output.FPR = a.FPR
	}
	if a.CopyImages {
		cfg.Output.CopyImages = true
	}
}

// unmask disables word masking for the run unless --mask-ratio was given.
// It is applied after --write-config so the saved file keeps its ratio.
func (a args) unmask(cfg *config.Config) {
	if a.MaskRatio == nil {
		cfg.Dataset.MaskRatio = 0
	}
}

func main() {
	var a args
	arg.MustParse(&a)
	if err := run(a); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	if utils.FileExists(config.GetConfigPath()) {
		log.Printf("using %s", config.GetConfigPath())
		return config.LoadFromFile(config.GetConfigPath())
	}
	return config.Default(), nil
}

func run(a args) error {
	cfg, err := loadConfig(a.Config)
	if err != nil {
		return err
	}
	a.apply(cfg)

	if a.WriteConfig != "" {
		if err := cfg.SaveToFile(a.WriteConfig); err != nil {
			return err
		}
		log.Printf("wrote %s", a.WriteConfig)
		return nil
	}
	a.unmask(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Printf("topk = %d, workers = %d, batch_size = %d, img_size = %d, mask_ratio = %.2f, backend = %s",
		cfg.Dataset.TopK, cfg.Loader.Workers, cfg.Loader.BatchSize, cfg.Dataset.ImgSize, cfg.Dataset.MaskRatio, cfg.Model.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	p, err := mmbcd.Open(cfg, mmbcd.WithLogger(logger), mmbcd.WithProgress(!a.Quiet))
	if err != nil {
		return err
	}
	defer p.Close()
	p.Dataset.Summary(os.Stderr)

	res, err := p.Evaluate(ctx)
	if err != nil {
		return err
	}

	log.Printf("Accuracy: %.2f", res.Accuracy)
	log.Printf("F1 Score: %.2f", res.F1)
	log.Printf("\n%s", res.Report)
	log.Printf("Logistic: ROC AUC=%.3f", res.AUC)
	for _, path := range []string{cfg.Output.ScoreFile, cfg.Output.PlotPath, utils.TSNEPath(cfg.Output.PlotPath), cfg.Output.LogitsPath, cfg.Output.EmbeddingsPath} {
		if info, err := os.Stat(path); err == nil {
			log.Printf("wrote %s (%s)", path, utils.FormatFileSize(info.Size()))
		}
	}
	return nil
}

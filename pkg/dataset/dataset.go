// Package dataset pairs mammogram region proposals with report prompts.
//
// Everything except crop extraction is computed when the dataset is built:
// the table is read, prompts are derived, every proposal file is checked,
// read and reduced to exactly TopK boxes, and the mask vocabulary is drawn.
// After New returns the dataset is read-only and Get is safe for concurrent
// use.
package dataset

import (
	"fmt"
	"image"
	"io"
	"log"
	"math/rand"
	"path/filepath"

	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"

	"github.com/menta2k/mmbcd/internal/utils"
	"github.com/menta2k/mmbcd/pkg/cropper"
	"github.com/menta2k/mmbcd/pkg/processing"
	"github.com/menta2k/mmbcd/pkg/prompt"
	"github.com/menta2k/mmbcd/pkg/proposals"
	"github.com/menta2k/mmbcd/pkg/table"
	"github.com/menta2k/mmbcd/pkg/textmask"
	"github.com/menta2k/mmbcd/pkg/types"
)

// Config holds the construction parameters of a dataset
type Config struct {
	CSVPath      string
	ImageBaseDir string
	TextBaseDir  string
	IoUThreshold float64
	TopK         int
	ImgSize      int
	MaskRatio    float64
	EnableMask   bool
}

// DefaultConfig returns the default selection and masking parameters.
func DefaultConfig() Config {
	return Config{
		IoUThreshold: 0.1,
		TopK:         5,
		ImgSize:      224,
		MaskRatio:    0.2,
		EnableMask:   true,
	}
}

// Option configures optional dataset behaviour.
type Option func(*Dataset)

// WithLogger sets a logger for construction messages.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dataset) { d.logger = logger }
}

// WithProgress toggles the progress bar shown while proposals are read.
func WithProgress(enabled bool) Option {
	return func(d *Dataset) { d.progress = enabled }
}

// WithImageLoader replaces the function used to read images in Get.
func WithImageLoader(load func(path string) (image.Image, error)) Option {
	return func(d *Dataset) { d.loadImage = load }
}

// Dataset is an immutable, indexable view of the screening table.
type Dataset struct {
	config    Config
	samples   []types.Sample
	prompts   []string
	files     []string
	proposals []types.ProposalSet
	masker    *textmask.Masker
	cropper   *cropper.Cropper
	loadImage func(path string) (image.Image, error)
	logger    *log.Logger
	progress  bool
}

// New builds a dataset. rng drives proposal padding and mask sampling.
func New(config Config, rng *rand.Rand, opts ...Option) (*Dataset, error) {
	if config.TopK <= 0 {
		return nil, fmt.Errorf("topk must be positive, got %d", config.TopK)
	}
	if config.ImgSize <= 0 {
		return nil, fmt.Errorf("img_size must be positive, got %d", config.ImgSize)
	}

	d := &Dataset{
		config:    config,
		loadImage: processing.NewProcessor().LoadImage,
		progress:  true,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.cropper = cropper.NewWithConfig(cropper.Config{
		Size:   config.ImgSize,
		Mean:   cropper.ImageNetMean,
		Std:    cropper.ImageNetStd,
		Filter: cropper.DefaultConfig().Filter,
	})

	samples, err := table.Load(config.CSVPath)
	if err != nil {
		return nil, err
	}
	d.samples = samples
	d.prompts = prompt.Build(samples)
	d.logf("loaded %d samples from %s", len(samples), config.CSVPath)

	d.files = make([]string, len(samples))
	for i, s := range samples {
		d.files[i] = proposals.Path(config.TextBaseDir, s.ImagePath)
	}
	for _, f := range d.files {
		if !utils.FileExists(f) {
			return nil, fmt.Errorf("%w: %s", proposals.ErrMissingFile, f)
		}
	}

	if err := d.selectProposals(rng); err != nil {
		return nil, err
	}

	if config.EnableMask {
		var texts []string
		for _, s := range samples {
			if s.HasText {
				texts = append(texts, s.Text)
			}
		}
		d.masker, err = textmask.FitMasker(texts, config.MaskRatio, rng)
		if err != nil {
			return nil, fmt.Errorf("failed to fit mask vocabulary: %w", err)
		}
		d.logf("masking %d words", len(d.masker.Words()))
	}

	return d, nil
}

func (d *Dataset) selectProposals(rng *rand.Rand) error {
	d.proposals = make([]types.ProposalSet, len(d.files))
	read := func(i int) error {
		boxes, err := proposals.ReadFile(d.files[i])
		if err != nil {
			return err
		}
		d.proposals[i], err = proposals.Select(boxes, d.config.IoUThreshold, d.config.TopK, rng)
		if err != nil {
			return fmt.Errorf("%s: %w", d.files[i], err)
		}
		return nil
	}

	if !d.progress {
		for i := range d.files {
			if err := read(i); err != nil {
				return err
			}
		}
		return nil
	}

	var failed error
	err := tqdm.With(iterators.Interval(0, len(d.files)), "generating proposals", func(v interface{}) (brk bool) {
		if failed = read(v.(int)); failed != nil {
			return true
		}
		return
	})
	if failed != nil {
		return failed
	}
	return err
}

func (d *Dataset) logf(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}

// Len returns the number of samples
func (d *Dataset) Len() int {
	return len(d.samples)
}

// Config returns the construction parameters.
func (d *Dataset) Config() Config {
	return d.config
}

// Sample returns the i-th table row.
func (d *Dataset) Sample(i int) types.Sample {
	return d.samples[i]
}

// ImagePath returns the on-disk path of the i-th image.
func (d *Dataset) ImagePath(i int) string {
	return filepath.Join(d.config.ImageBaseDir, d.samples[i].ImagePath)
}

// Prompt returns the i-th prompt, masked when masking is enabled.
func (d *Dataset) Prompt(i int) string {
	if d.masker != nil {
		return d.masker.Apply(d.prompts[i])
	}
	return d.prompts[i]
}

// Proposals returns the selected boxes of the i-th sample.
func (d *Dataset) Proposals(i int) types.ProposalSet {
	return d.proposals[i]
}

// MaskWords returns the sampled mask vocabulary, or nil when masking is off.
func (d *Dataset) MaskWords() []string {
	if d.masker == nil {
		return nil
	}
	return d.masker.Words()
}

// Cropper returns the crop extractor used by Get.
func (d *Dataset) Cropper() *cropper.Cropper {
	return d.cropper
}

// Image loads the i-th image.
func (d *Dataset) Image(i int) (image.Image, error) {
	path := d.ImagePath(i)
	img, err := d.loadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	return img, nil
}

// Get returns the crops, prompt and label of the i-th sample.
func (d *Dataset) Get(i int) (types.Item, error) {
	if i < 0 || i >= len(d.samples) {
		return types.Item{}, fmt.Errorf("index %d out of range [0,%d)", i, len(d.samples))
	}
	img, err := d.Image(i)
	if err != nil {
		return types.Item{}, err
	}
	crops, err := d.cropper.Extract(img, d.proposals[i])
	if err != nil {
		return types.Item{}, fmt.Errorf("sample %d: %w", i, err)
	}
	return types.Item{
		Index:  i,
		Crops:  crops,
		Prompt: d.Prompt(i),
		Label:  d.samples[i].Label,
	}, nil
}

// Summary writes a short description of the dataset to w.
func (d *Dataset) Summary(w io.Writer) {
	pos := 0
	for _, s := range d.samples {
		pos += s.Label
	}
	fmt.Fprintf(w, "samples: %d (malignant %d, benign %d)\n", len(d.samples), pos, len(d.samples)-pos)
	fmt.Fprintf(w, "proposals per sample: %d, crop size: %d\n", d.config.TopK, d.config.ImgSize)
	if words := d.MaskWords(); words != nil {
		fmt.Fprintf(w, "mask words (%d): %v\n", len(words), words)
	}
}

// Package screening scores batches with a general vision-language model. It
// serves as a zero-shot baseline next to the trained classifier.
package screening

import (
	"context"
	"fmt"
	"image"
	"log"
	"math"
	"strings"

	"github.com/menta2k/mmbcd/pkg/client"
	"github.com/menta2k/mmbcd/pkg/cropper"
	"github.com/menta2k/mmbcd/pkg/model"
	"github.com/menta2k/mmbcd/pkg/processing"
	"github.com/menta2k/mmbcd/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks for a malignancy estimate. %s receives the report prompt.
const DefaultPrompt = `You are assisting with breast cancer screening research.

The image shows candidate regions cropped from one mammogram view, placed side by side.
Report: %s

Return JSON only:
{
  "malignancy": 0.0,
  "finding": "short neutral sentence (≤ 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

HARD RULES
- "malignancy" is your probability in [0,1] that any region shows cancer.
- Tags: lowercase, concise, no punctuation or duplicates.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Screener is a model.Classifier backed by a VisionClient.
type Screener struct {
	client    client.VisionClient
	model     string
	prompt    string
	cropper   *cropper.Cropper
	processor *processing.Processor
	logger    *log.Logger
}

var _ model.Classifier = (*Screener)(nil)

// NewScreener creates a screener. c converts crop tensors back to images.
func NewScreener(vc client.VisionClient, modelName string, c *cropper.Cropper, logger *log.Logger) *Screener {
	return &Screener{
		client:    vc,
		model:     modelName,
		prompt:    DefaultPrompt,
		cropper:   c,
		processor: processing.NewProcessor(),
		logger:    logger,
	}
}

// WithPrompt replaces the prompt template. It must contain one %s.
func (s *Screener) WithPrompt(prompt string) *Screener {
	s.prompt = prompt
	return s
}

// TestVision tests if the model can actually see the image with a simple prompt
func (s *Screener) TestVision(ctx context.Context, imageB64 string) (string, error) {
	return s.client.SimpleQuery(ctx, s.model, SimpleTestPrompt, imageB64)
}

// Assess grades the crops of one item together with its report prompt.
func (s *Screener) Assess(ctx context.Context, crops []image.Image, report string) (*types.Assessment, error) {
	b64, err := s.processor.EncodeBase64(s.processor.Mosaic(crops), "jpg", 0, 90)
	if err != nil {
		return nil, fmt.Errorf("encode mosaic: %w", err)
	}
	res, err := s.client.AnalyzeImage(ctx, s.model, fmt.Sprintf(s.prompt, report), b64)
	if err != nil {
		return nil, err
	}
	res.Malignancy = clamp(res.Malignancy, 0, 1)
	if math.IsNaN(res.Malignancy) {
		res.Malignancy = 0.5
	}
	res.Tags = normalizeTags(res.Tags)
	return res, nil
}

// Predict implements model.Classifier. Items are scored one at a time.
func (s *Screener) Predict(ctx context.Context, batch *types.Batch) (model.Output, error) {
	out := model.Output{Logits: make([][]float32, batch.Len())}
	for i := 0; i < batch.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return model.Output{}, err
		}
		item := batch.Crops.Index(i)
		crops := make([]image.Image, item.Len())
		for j := range crops {
			crops[j] = s.cropper.ToImage(item.Index(j))
		}

		res, err := s.Assess(ctx, crops, batch.Prompts[i])
		if err != nil {
			return model.Output{}, fmt.Errorf("sample %d: %w", batch.Indices[i], err)
		}
		if s.logger != nil {
			s.logger.Printf("sample %d: malignancy %.2f (%s)", batch.Indices[i], res.Malignancy, res.Finding)
		}
		out.Logits[i] = model.LogitsFromProbability(res.Malignancy)
	}
	return out, nil
}

// Close implements model.Classifier.
func (s *Screener) Close() error {
	return nil
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeTags ensures tags are cleaned and limited to 5 entries
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}

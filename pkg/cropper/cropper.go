// Package cropper turns normalized region proposals into model-ready crops.
package cropper

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/mmbcd/pkg/tensor"
	"github.com/menta2k/mmbcd/pkg/types"
)

// ErrEmptyCrop is returned when a proposal maps to a zero-area pixel rectangle.
var ErrEmptyCrop = errors.New("cropper: empty crop rectangle")

// ImageNet channel statistics.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Config holds configuration for crop extraction
type Config struct {
	Size   int
	Mean   [3]float32
	Std    [3]float32
	Filter imaging.ResampleFilter
}

// DefaultConfig returns 224px crops with ImageNet normalisation.
func DefaultConfig() Config {
	return Config{
		Size:   224,
		Mean:   ImageNetMean,
		Std:    ImageNetStd,
		Filter: imaging.Linear,
	}
}

// Cropper extracts fixed-size, normalized crops for a set of proposals
type Cropper struct {
	config Config
}

// New creates a Cropper with the default configuration
func New() *Cropper {
	return &Cropper{config: DefaultConfig()}
}

// NewWithConfig creates a Cropper with custom configuration
func NewWithConfig(config Config) *Cropper {
	if config.Size <= 0 {
		config.Size = DefaultConfig().Size
	}
	if config.Std == ([3]float32{}) {
		config.Mean, config.Std = ImageNetMean, ImageNetStd
	}
	return &Cropper{config: config}
}

// Size returns the edge length of produced crops.
func (c *Cropper) Size() int {
	return c.config.Size
}

// ToPixels converts a normalized box to pixel corners of a width x height
// image. Each coordinate is truncated toward zero and never clamped, so the
// rectangle may extend past the image.
func ToPixels(box types.Box, width, height int) image.Rectangle {
	w, h := float64(width), float64(height)
	return image.Rectangle{
		Min: image.Point{X: int((box.Cx - box.W/2) * w), Y: int((box.Cy - box.H/2) * h)},
		Max: image.Point{X: int((box.Cx + box.W/2) * w), Y: int((box.Cy + box.H/2) * h)},
	}
}

// Crop cuts rect out of img. rect is relative to the image origin; parts of
// it that fall outside the image come out black rather than being clipped.
func (c *Cropper) Crop(img image.Image, rect image.Rectangle) (*image.NRGBA, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("%w: %v", ErrEmptyCrop, rect)
	}
	canvas := imaging.New(rect.Dx(), rect.Dy(), color.NRGBA{0, 0, 0, 255})
	return imaging.Paste(canvas, img, image.Pt(-rect.Min.X, -rect.Min.Y)), nil
}

// Resize scales a crop to the configured square size.
func (c *Cropper) Resize(img image.Image) *image.NRGBA {
	return imaging.Resize(img, c.config.Size, c.config.Size, c.config.Filter)
}

// Crops returns the resized crop for every proposal, in proposal order.
func (c *Cropper) Crops(img image.Image, proposals types.ProposalSet) ([]*image.NRGBA, error) {
	b := img.Bounds()
	out := make([]*image.NRGBA, 0, len(proposals))
	for i, box := range proposals {
		crop, err := c.Crop(img, ToPixels(box, b.Dx(), b.Dy()))
		if err != nil {
			return nil, fmt.Errorf("proposal %d (%v): %w", i, box, err)
		}
		out = append(out, c.Resize(crop))
	}
	return out, nil
}

// ToTensor converts an image to a normalized [3, H, W] tensor. Alpha is dropped.
func (c *Cropper) ToTensor(img *image.NRGBA) *tensor.Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := tensor.New(3, h, w)
	plane := w * h
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			for ch := 0; ch < 3; ch++ {
				v := float32(px[ch]) / 255
				t.Data[ch*plane+y*w+x] = (v - c.config.Mean[ch]) / c.config.Std[ch]
			}
		}
	}
	return t
}

// Extract crops, resizes and normalizes every proposal and stacks the
// results into a [k, 3, size, size] tensor.
func (c *Cropper) Extract(img image.Image, proposals types.ProposalSet) (*tensor.Tensor, error) {
	crops, err := c.Crops(img, proposals)
	if err != nil {
		return nil, err
	}
	ts := make([]*tensor.Tensor, len(crops))
	for i, crop := range crops {
		ts[i] = c.ToTensor(crop)
	}
	return tensor.Stack(ts)
}

// ToImage reverses ToTensor for a [3, H, W] tensor, clamping to 8-bit range.
func (c *Cropper) ToImage(t *tensor.Tensor) *image.NRGBA {
	h, w := t.Shape[1], t.Shape[2]
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4
			for ch := 0; ch < 3; ch++ {
				v := (t.Data[ch*plane+y*w+x]*c.config.Std[ch] + c.config.Mean[ch]) * 255
				img.Pix[i+ch] = uint8(math.Max(0, math.Min(255, math.Round(float64(v)))))
			}
			img.Pix[i+3] = 255
		}
	}
	return img
}

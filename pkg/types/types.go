package types

import (
	"fmt"

	"github.com/menta2k/mmbcd/pkg/tensor"
)

// Box is a region proposal in normalized [0,1] image coordinates,
// stored the way the upstream detector writes it: centre, size, confidence.
type Box struct {
	Cx   float64 `json:"cx"`
	Cy   float64 `json:"cy"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
	Conf float64 `json:"conf"`
}

// Corners returns the box as normalized (x1, y1, x2, y2).
func (b Box) Corners() (x1, y1, x2, y2 float64) {
	x1 = b.Cx - b.W/2
	y1 = b.Cy - b.H/2
	return x1, y1, x1 + b.W, y1 + b.H
}

// Area returns the normalized area of the box
func (b Box) Area() float64 {
	return b.W * b.H
}

func (b Box) String() string {
	return fmt.Sprintf("box(cx=%.4f cy=%.4f w=%.4f h=%.4f conf=%.3f)", b.Cx, b.Cy, b.W, b.H, b.Conf)
}

// ProposalSet is the ordered list of boxes selected for one image.
type ProposalSet []Box

// Sample is one row of the input table.
type Sample struct {
	ImagePath string `json:"im_path"`
	// Text is the radiology report; HasText is false when the cell was empty.
	Text          string `json:"text"`
	HasText       bool   `json:"has_text"`
	Label         int    `json:"cancer"`
	AllViewsLabel int    `json:"all_views_cancer"`
}

// Item is what the dataset yields for one index.
type Item struct {
	Index  int
	Crops  *tensor.Tensor // [k, 3, size, size]
	Prompt string
	Label  int
}

// Batch is a group of items stacked along a new leading axis.
type Batch struct {
	Indices []int
	Crops   *tensor.Tensor // [B, k, 3, size, size]
	Prompts []string
	Labels  []int
}

// Len returns the number of items in the batch
func (b *Batch) Len() int {
	return len(b.Indices)
}

// Assessment is the structured answer a vision-language model returns when
// asked to grade a set of crops.
type Assessment struct {
	Malignancy float64  `json:"malignancy"`
	Finding    string   `json:"finding"`
	Tags       []string `json:"tags"`
}

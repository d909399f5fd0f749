package client

import (
	"context"

	"github.com/menta2k/mmbcd/pkg/types"
)

// VisionClient sends one image and a prompt to a vision-language model.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.Assessment, error)
}

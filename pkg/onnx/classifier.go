// Package onnx runs an exported multimodal classifier with onnxruntime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/menta2k/mmbcd/pkg/model"
	"github.com/menta2k/mmbcd/pkg/types"
)

// Config holds the model, tokenizer and tensor names of the exported graph.
type Config struct {
	ModelPath     string
	TokenizerPath string
	LibraryPath   string
	MaxLength     int
	Special       Special

	CropsInput    string
	IDsInput      string
	MaskInput     string
	LogitsOutput  string
	FeatureOutput string // empty when the graph has no embedding output
}

// DefaultConfig returns the tensor names used by the export script.
func DefaultConfig() Config {
	return Config{
		MaxLength:     90,
		Special:       RobertaSpecial,
		CropsInput:    "crops",
		IDsInput:      "input_ids",
		MaskInput:     "attention_mask",
		LogitsOutput:  "logits",
		FeatureOutput: "features",
	}
}

var envOnce sync.Once
var envErr error

func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// Classifier is a model.Classifier backed by an onnxruntime session.
type Classifier struct {
	config  Config
	session *ort.DynamicAdvancedSession
	encoder TextEncoder
	logger  *log.Logger
}

// New loads the tokenizer and opens an inference session.
func New(config Config, logger *log.Logger) (*Classifier, error) {
	if config.ModelPath == "" {
		return nil, errors.New("onnx: model path is required")
	}
	if config.MaxLength <= 0 {
		config.MaxLength = DefaultConfig().MaxLength
	}
	encoder, err := LoadTokenizer(config.TokenizerPath)
	if err != nil {
		return nil, err
	}
	if err := initEnvironment(config.LibraryPath); err != nil {
		return nil, fmt.Errorf("onnx: init environment: %w", err)
	}

	outputs := []string{config.LogitsOutput}
	if config.FeatureOutput != "" {
		outputs = append(outputs, config.FeatureOutput)
	}
	session, err := ort.NewDynamicAdvancedSession(config.ModelPath,
		[]string{config.CropsInput, config.IDsInput, config.MaskInput}, outputs, nil)
	if err != nil {
		return nil, fmt.Errorf("onnx: open session %s: %w", config.ModelPath, err)
	}
	if logger != nil {
		logger.Printf("onnx: loaded %s (outputs %v)", config.ModelPath, outputs)
	}
	return &Classifier{config: config, session: session, encoder: encoder, logger: logger}, nil
}

// Predict implements model.Classifier.
func (c *Classifier) Predict(ctx context.Context, batch *types.Batch) (model.Output, error) {
	if err := ctx.Err(); err != nil {
		return model.Output{}, err
	}
	tokens, err := Tokenize(c.encoder, batch.Prompts, c.config.MaxLength, c.config.Special)
	if err != nil {
		return model.Output{}, err
	}

	crops, err := ort.NewTensor(ort.NewShape(batch.Crops.Int64Shape()...), batch.Crops.Data)
	if err != nil {
		return model.Output{}, fmt.Errorf("onnx: crops tensor: %w", err)
	}
	defer crops.Destroy()

	tokenShape := ort.NewShape(int64(tokens.Rows), int64(tokens.Length))
	ids, err := ort.NewTensor(tokenShape, tokens.IDs)
	if err != nil {
		return model.Output{}, fmt.Errorf("onnx: input_ids tensor: %w", err)
	}
	defer ids.Destroy()
	mask, err := ort.NewTensor(tokenShape, tokens.Mask)
	if err != nil {
		return model.Output{}, fmt.Errorf("onnx: attention_mask tensor: %w", err)
	}
	defer mask.Destroy()

	// nil outputs are allocated by onnxruntime
	outputs := make([]ort.Value, 1)
	if c.config.FeatureOutput != "" {
		outputs = append(outputs, nil)
	}
	if err := c.session.Run([]ort.Value{crops, ids, mask}, outputs); err != nil {
		return model.Output{}, fmt.Errorf("onnx: run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	var out model.Output
	if out.Logits, err = rows(outputs[0], batch.Len()); err != nil {
		return model.Output{}, fmt.Errorf("onnx: logits: %w", err)
	}
	if len(outputs) > 1 {
		if out.Features, err = rows(outputs[1], batch.Len()); err != nil {
			return model.Output{}, fmt.Errorf("onnx: features: %w", err)
		}
	}
	return out, nil
}

// rows copies a [n, d] float32 output into n slices.
func rows(v ort.Value, n int) ([][]float32, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", v)
	}
	data := t.GetData()
	if n == 0 || len(data)%n != 0 {
		return nil, fmt.Errorf("%d values for %d rows", len(data), n)
	}
	return Split(data, n), nil
}

// Split copies data into n equal rows.
func Split(data []float32, n int) [][]float32 {
	d := len(data) / n
	out := make([][]float32, n)
	for i := range out {
		out[i] = append([]float32(nil), data[i*d:(i+1)*d]...)
	}
	return out
}

// Close releases the session.
func (c *Classifier) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	return err
}

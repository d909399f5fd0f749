package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration
type Config struct {
	Dataset DatasetConfig `json:"dataset"`
	Loader  LoaderConfig  `json:"loader"`
	Model   ModelConfig   `json:"model"`
	Output  OutputConfig  `json:"output"`
}

// DatasetConfig holds the dataset construction parameters
type DatasetConfig struct {
	CSVPath      string  `json:"csv_path"`
	ImageBaseDir string  `json:"image_base_dir"`
	TextBaseDir  string  `json:"text_base_dir"`
	IoUThreshold float64 `json:"iou_threshold"`
	TopK         int     `json:"topk"`
	ImgSize      int     `json:"img_size"`
	MaskRatio    float64 `json:"mask_ratio"`
	EnableMask   bool    `json:"enable_mask"`
	Seed         int64   `json:"seed"`
}

// LoaderConfig holds batching parameters
type LoaderConfig struct {
	BatchSize int  `json:"batch_size"`
	Workers   int  `json:"workers"`
	Shuffle   bool `json:"shuffle"`
}

// ModelConfig selects and configures the classifier backend
type ModelConfig struct {
	Backend       string `json:"backend"`
	ModelPath     string `json:"model_path"`
	TokenizerPath string `json:"tokenizer_path"`
	ORTLibrary    string `json:"ort_library"`
	MaxLength     int    `json:"max_length"`
	BosID         int    `json:"bos_id"`
	EosID         int    `json:"eos_id"`
	PadID         int    `json:"pad_id"`
	CropsInput    string `json:"crops_input"`
	IDsInput      string `json:"ids_input"`
	MaskInput     string `json:"mask_input"`
	LogitsOutput  string `json:"logits_output"`
	FeatureOutput string `json:"feature_output"`

	// Vision-LLM backends
	URL  string `json:"url"`
	Name string `json:"name"`
}

// OutputConfig holds the artifact paths written by the evaluator
type OutputConfig struct {
	ScoreFile      string  `json:"score_file"`
	PlotPath       string  `json:"plot_path"`
	LogitsPath     string  `json:"logits_path"`
	EmbeddingsPath string  `json:"embeddings_path"`
	FPR            float64 `json:"fpr"`
	CopyImages     bool    `json:"copy_images"`
	FNDir          string  `json:"fn_dir"`
	TPDir          string  `json:"tp_dir"`
	FPList         string  `json:"fp_list"`
}

// Backends accepted in model.backend.
const (
	BackendONNX     = "onnx"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			IoUThreshold: 0.1,
			TopK:         5,
			ImgSize:      224,
			MaskRatio:    0.2,
			EnableMask:   true,
			Seed:         42,
		},
		Loader: LoaderConfig{
			BatchSize: 32,
			Workers:   8,
		},
		Model: ModelConfig{
			Backend:       BackendONNX,
			MaxLength:     90,
			BosID:         0,
			EosID:         2,
			PadID:         1,
			CropsInput:    "crops",
			IDsInput:      "input_ids",
			MaskInput:     "attention_mask",
			LogitsOutput:  "logits",
			FeatureOutput: "features",
			URL:           "http://localhost:11434",
			Name:          "llava",
		},
		Output: OutputConfig{
			ScoreFile:      "./models/mmbcd/result_scores.txt",
			PlotPath:       "./models/mmbcd/result_auc.png",
			LogitsPath:     "./models/mmbcd/logits_labels.npy",
			EmbeddingsPath: "./models/mmbcd/embeddings_save.npy",
			FPR:            0.3,
			FNDir:          "fn",
			TPDir:          "tp",
			FPList:         "fp_images.txt",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Keys absent from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Dataset.CSVPath == "" {
		return fmt.Errorf("dataset.csv_path is required")
	}

	if c.Dataset.IoUThreshold < 0 || c.Dataset.IoUThreshold > 1 {
		return fmt.Errorf("dataset.iou_threshold must be between 0 and 1")
	}

	if c.Dataset.TopK < 1 {
		return fmt.Errorf("dataset.topk must be positive")
	}

	if c.Dataset.ImgSize < 1 {
		return fmt.Errorf("dataset.img_size must be positive")
	}

	if c.Dataset.MaskRatio < 0 || c.Dataset.MaskRatio > 1 {
		return fmt.Errorf("dataset.mask_ratio must be between 0 and 1")
	}

	if c.Loader.BatchSize < 1 {
		return fmt.Errorf("loader.batch_size must be positive")
	}

	if c.Loader.Workers < 1 {
		return fmt.Errorf("loader.workers must be positive")
	}

	switch c.Model.Backend {
	case BackendONNX:
		if c.Model.ModelPath == "" || c.Model.TokenizerPath == "" {
			return fmt.Errorf("model.model_path and model.tokenizer_path are required for the onnx backend")
		}
		if c.Model.MaxLength < 2 {
			return fmt.Errorf("model.max_length must be at least 2")
		}
	case BackendOllama, BackendLlamaCpp:
		if c.Model.Name == "" {
			return fmt.Errorf("model.name is required for the %s backend", c.Model.Backend)
		}
	default:
		return fmt.Errorf("model.backend must be one of onnx, ollama, llamacpp")
	}

	if c.Output.FPR < 0 || c.Output.FPR >= 1 {
		return fmt.Errorf("output.fpr must be in [0, 1)")
	}

	if len(c.Output.PlotPath) < 7 {
		return fmt.Errorf("output.plot_path must be at least 7 characters long")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "mmbcd", "config.json")
}

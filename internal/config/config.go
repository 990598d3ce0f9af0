package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds PapilioNet configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Uploads    UploadsConfig    `yaml:"uploads"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Addr          string        `yaml:"addr"`            // HTTP listen address, e.g. ":8080"
	PublicBaseURL string        `yaml:"public_base_url"` // prefix for uploaded image URLs
	CORSOrigin    string        `yaml:"cors_origin"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	// Upper bound for a whole /predict request. The pipeline has no deadline
	// of its own.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type ModelConfig struct {
	Path              string `yaml:"path"`
	SharedLibraryPath string `yaml:"shared_library_path"`
	InputHeight       int    `yaml:"input_height"`
	InputWidth        int    `yaml:"input_width"`
	Layout            string `yaml:"layout"` // nhwc | nchw
	InputName         string `yaml:"input_name"`
	OutputName        string `yaml:"output_name"`
	OutputActivation  string `yaml:"output_activation"` // none | softmax
}

type CatalogConfig struct {
	ClassIndicesPath string `yaml:"class_indices_path"`
	MetadataPath     string `yaml:"metadata_path"`
}

type ClassifierConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	DefaultTopN         int     `yaml:"default_top_n"`
	RejectionMessage    string  `yaml:"rejection_message"`
}

type UploadsConfig struct {
	Dir               string   `yaml:"dir"`
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type FeedbackConfig struct {
	Backend string `yaml:"backend"` // csv | sqlite
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			PublicBaseURL:  "http://127.0.0.1:8080",
			CORSOrigin:     "*",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   2 * time.Minute,
			RequestTimeout: 90 * time.Second,
		},
		Model: ModelConfig{
			Path:             "models/classifier.onnx",
			InputHeight:      224,
			InputWidth:       224,
			Layout:           "nhwc",
			InputName:        "input",
			OutputName:       "output",
			OutputActivation: "none",
		},
		Catalog: CatalogConfig{
			ClassIndicesPath: "models/class_indices.json",
			MetadataPath:     "data/butterfly_species_info.csv",
		},
		Classifier: ClassifierConfig{
			ConfidenceThreshold: 0.60,
			DefaultTopN:         3,
			RejectionMessage:    "No butterfly detected. Please upload a butterfly image.",
		},
		Uploads: UploadsConfig{
			Dir:               "uploads",
			MaxBytes:          10 * 1024 * 1024,
			AllowedExtensions: []string{"png", "jpg", "jpeg"},
		},
		Feedback: FeedbackConfig{
			Backend: "csv",
			Path:    "data/feedback.csv",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyDefaults fills values a config file explicitly left empty.
func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = def.Server.PublicBaseURL
	}
	if cfg.Model.Layout == "" {
		cfg.Model.Layout = def.Model.Layout
	}
	if cfg.Model.InputName == "" {
		cfg.Model.InputName = def.Model.InputName
	}
	if cfg.Model.OutputName == "" {
		cfg.Model.OutputName = def.Model.OutputName
	}
	if cfg.Model.OutputActivation == "" {
		cfg.Model.OutputActivation = def.Model.OutputActivation
	}
	if cfg.Classifier.RejectionMessage == "" {
		cfg.Classifier.RejectionMessage = def.Classifier.RejectionMessage
	}
	if len(cfg.Uploads.AllowedExtensions) == 0 {
		cfg.Uploads.AllowedExtensions = def.Uploads.AllowedExtensions
	}
	if cfg.Feedback.Backend == "" {
		cfg.Feedback.Backend = def.Feedback.Backend
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}

	for i, ext := range cfg.Uploads.AllowedExtensions {
		cfg.Uploads.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"PAPILIO_ADDR":                    &cfg.Server.Addr,
		"PAPILIO_PUBLIC_BASE_URL":         &cfg.Server.PublicBaseURL,
		"PAPILIO_MODEL_PATH":              &cfg.Model.Path,
		"PAPILIO_CATALOG_PATH":            &cfg.Catalog.ClassIndicesPath,
		"PAPILIO_METADATA_PATH":           &cfg.Catalog.MetadataPath,
		"PAPILIO_UPLOAD_DIR":              &cfg.Uploads.Dir,
		"PAPILIO_FEEDBACK_BACKEND":        &cfg.Feedback.Backend,
		"PAPILIO_FEEDBACK_PATH":           &cfg.Feedback.Path,
		"PAPILIO_LOG_LEVEL":               &cfg.Logging.Level,
		"ONNXRUNTIME_SHARED_LIBRARY_PATH": &cfg.Model.SharedLibraryPath,
	}
	for name, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	if v := strings.TrimSpace(os.Getenv("PAPILIO_CONFIDENCE_THRESHOLD")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PAPILIO_CONFIDENCE_THRESHOLD: %w", err)
		}
		cfg.Classifier.ConfidenceThreshold = f
	}
	if v := strings.TrimSpace(os.Getenv("PAPILIO_MAX_UPLOAD_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PAPILIO_MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.Uploads.MaxBytes = n
	}
	if v := strings.TrimSpace(os.Getenv("PAPILIO_ALLOWED_EXTENSIONS")); v != "" {
		cfg.Uploads.AllowedExtensions = strings.Split(v, ",")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Validate checks values that would otherwise fail at request time.
func (c *Config) Validate() error {
	var errs []error

	if t := c.Classifier.ConfidenceThreshold; math.IsNaN(t) || t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("classifier.confidence_threshold must be within [0,1], got %v", t))
	}
	if c.Classifier.DefaultTopN <= 0 {
		errs = append(errs, fmt.Errorf("classifier.default_top_n must be positive, got %d", c.Classifier.DefaultTopN))
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("uploads.max_bytes must be positive, got %d", c.Uploads.MaxBytes))
	}
	if strings.TrimSpace(c.Uploads.Dir) == "" {
		errs = append(errs, errors.New("uploads.dir is required"))
	}
	for _, ext := range c.Uploads.AllowedExtensions {
		if ext == "" {
			errs = append(errs, errors.New("uploads.allowed_extensions contains an empty entry"))
			break
		}
	}
	if c.Model.InputHeight <= 0 || c.Model.InputWidth <= 0 {
		errs = append(errs, fmt.Errorf("model input size must be positive, got %dx%d", c.Model.InputWidth, c.Model.InputHeight))
	}
	switch c.Model.Layout {
	case "nhwc", "nchw":
	default:
		errs = append(errs, fmt.Errorf("model.layout must be nhwc or nchw, got %q", c.Model.Layout))
	}
	switch c.Model.OutputActivation {
	case "none", "softmax":
	default:
		errs = append(errs, fmt.Errorf("model.output_activation must be none or softmax, got %q", c.Model.OutputActivation))
	}
	switch c.Feedback.Backend {
	case "csv", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("feedback.backend must be csv or sqlite, got %q", c.Feedback.Backend))
	}
	if strings.TrimSpace(c.Feedback.Path) == "" {
		errs = append(errs, errors.New("feedback.path is required"))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

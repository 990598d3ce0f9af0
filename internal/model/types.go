package model

import (
	"errors"

	"github.com/KaveeDilshan/PapilioNet/internal/imaging"
)

var (
	// ErrModelLoad is returned when the classifier cannot be loaded.
	ErrModelLoad = errors.New("model load failed")
	// ErrInference is returned when a scoring call fails or returns a vector
	// of the wrong length.
	ErrInference = errors.New("inference failed")
)

// ScoreVector holds one score per class; position i is class index i.
type ScoreVector []float32

// Scorer is the opaque scoring function behind the classifier.
type Scorer interface {
	Score(t imaging.Tensor) (ScoreVector, error)
}

// Layout describes how the model expects the image tensor.
type Layout string

const (
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

// Activation applied to raw model outputs.
type Activation string

const (
	ActivationNone    Activation = "none"
	ActivationSoftmax Activation = "softmax"
)

// Options configures an ONNX scorer.
type Options struct {
	ModelPath         string
	SharedLibraryPath string
	InputHeight       int
	InputWidth        int
	NumClasses        int
	Layout            Layout
	InputName         string
	OutputName        string
	OutputActivation  Activation
}

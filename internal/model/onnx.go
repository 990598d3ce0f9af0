package model

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/KaveeDilshan/PapilioNet/internal/imaging"
)

// ONNXScorer runs an image classifier exported to ONNX. The session reuses
// preallocated tensors, so calls are serialized.
type ONNXScorer struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	opts         Options

	mu sync.Mutex
}

func NewONNXScorer(opts Options) (*ONNXScorer, error) {
	if opts.InputHeight <= 0 || opts.InputWidth <= 0 {
		return nil, fmt.Errorf("%w: invalid input size %dx%d", ErrModelLoad, opts.InputWidth, opts.InputHeight)
	}
	if opts.NumClasses <= 0 {
		return nil, fmt.Errorf("%w: class count must be positive", ErrModelLoad)
	}
	if opts.Layout == "" {
		opts.Layout = LayoutNHWC
	}
	if opts.InputName == "" {
		opts.InputName = "input"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output"
	}

	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: model file missing at %s: %v", ErrModelLoad, opts.ModelPath, err)
	}

	if libPath := resolveSharedLibraryPath(opts.SharedLibraryPath, filepath.Dir(opts.ModelPath)); libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: initialize onnxruntime: %v", ErrModelLoad, err)
		}
	}

	h, w := int64(opts.InputHeight), int64(opts.InputWidth)
	inputShape := ort.NewShape(1, h, w, imaging.Channels)
	if opts.Layout == LayoutNCHW {
		inputShape = ort.NewShape(1, imaging.Channels, h, w)
	}
	outputShape := ort.NewShape(1, int64(opts.NumClasses))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("%w: create input tensor: %v", ErrModelLoad, err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("%w: create output tensor: %v", ErrModelLoad, err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: create onnx session: %v", ErrModelLoad, err)
	}

	return &ONNXScorer{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		opts:         opts,
	}, nil
}

func (s *ONNXScorer) Score(t imaging.Tensor) (ScoreVector, error) {
	if t.Height != s.opts.InputHeight || t.Width != s.opts.InputWidth {
		return nil, fmt.Errorf("tensor is %dx%d, model expects %dx%d", t.Width, t.Height, s.opts.InputWidth, s.opts.InputHeight)
	}

	data := t.Data
	if s.opts.Layout == LayoutNCHW {
		data = t.CHW()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), data)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	raw := s.outputTensor.GetData()
	out := make(ScoreVector, len(raw))
	copy(out, raw)

	if s.opts.OutputActivation == ActivationSoftmax {
		softmax(out)
	}
	return out, nil
}

func (s *ONNXScorer) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}

func softmax(v ScoreVector) {
	if len(v) == 0 {
		return
	}
	maxVal := v[0]
	for _, x := range v[1:] {
		if x > maxVal {
			maxVal = x
		}
	}
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - maxVal))
		v[i] = float32(e)
		sum += e
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
}

// resolveSharedLibraryPath finds the onnxruntime shared library. An explicit
// path wins, then ONNXRUNTIME_SHARED_LIBRARY_PATH, then common locations.
// An empty result leaves the onnxruntime_go default in place.
func resolveSharedLibraryPath(explicit, modelDir string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

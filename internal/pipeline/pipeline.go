package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaveeDilshan/PapilioNet/internal/imaging"
	"github.com/KaveeDilshan/PapilioNet/internal/model"
	"github.com/KaveeDilshan/PapilioNet/internal/ranking"
	"github.com/KaveeDilshan/PapilioNet/internal/uploads"
)

// ErrModelUnavailable is returned when the service started without a usable
// model or catalog.
var ErrModelUnavailable = errors.New("classification model is not loaded")

// InvalidFileTypeError aborts a whole batch.
type InvalidFileTypeError struct {
	Filename string
}

func (e *InvalidFileTypeError) Error() string {
	return "Invalid file type: " + e.Filename
}

// File is one uploaded image.
type File struct {
	Filename string
	Data     []byte
}

// Result is the per-file output of ClassifyBatch: either Outcome or Err is set.
type Result struct {
	Filename string
	Image    uploads.ImageRef
	Outcome  *ranking.Outcome
	Err      error
}

// Classifier scores a normalized image and reports how long it took.
type Classifier interface {
	Score(t imaging.Tensor) (model.ScoreVector, time.Duration, error)
}

// ImageStore persists uploads before classification.
type ImageStore interface {
	Save(originalName string, data []byte) (uploads.ImageRef, error)
}

type Deps struct {
	Catalog    ranking.Catalog
	Classifier Classifier
	// Optional. Without a store no access URL is produced.
	Store ImageStore
}

type Options struct {
	InputHeight         int
	InputWidth          int
	ConfidenceThreshold float64
	AllowedExtensions   []string
}

// Pipeline drives uploaded files through normalization, scoring and the
// accept/reject decision.
type Pipeline struct {
	deps    Deps
	opts    Options
	allowed map[string]struct{}
}

func New(deps Deps, opts Options) *Pipeline {
	allowed := make(map[string]struct{}, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[normalizeExt(ext)] = struct{}{}
	}
	return &Pipeline{deps: deps, opts: opts, allowed: allowed}
}

// Ready reports whether both the model and the catalog are loaded.
func (p *Pipeline) Ready() bool {
	return p.deps.Classifier != nil && p.deps.Catalog != nil && p.deps.Catalog.Size() > 0
}

// Allowed reports whether filename has an allowed extension.
func (p *Pipeline) Allowed(filename string) bool {
	ext := filepath.Ext(filename)
	if ext == "" {
		return false
	}
	_, ok := p.allowed[normalizeExt(ext)]
	return ok
}

// ClassifyBatch returns one Result per file, in input order.
//
// A disallowed extension anywhere in the batch fails the whole request with
// *InvalidFileTypeError before any file is processed. Failures while storing,
// decoding or scoring a single file are reported in that file's Result and
// do not stop the batch.
func (p *Pipeline) ClassifyBatch(ctx context.Context, files []File, topN int) ([]Result, error) {
	if topN <= 0 {
		return nil, fmt.Errorf("%w: top_n must be positive, got %d", ranking.ErrInvalidArgument, topN)
	}
	if !p.Ready() {
		return nil, ErrModelUnavailable
	}

	for _, f := range files {
		if !p.Allowed(f.Filename) {
			return nil, &InvalidFileTypeError{Filename: f.Filename}
		}
	}

	results := make([]Result, len(files))
	for i, f := range files {
		results[i] = p.classifyOne(ctx, f, topN)
	}
	return results, nil
}

func (p *Pipeline) classifyOne(ctx context.Context, f File, topN int) Result {
	res := Result{Filename: f.Filename}

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	if p.deps.Store != nil {
		ref, err := p.deps.Store.Save(f.Filename, f.Data)
		if err != nil {
			res.Err = err
			return res
		}
		res.Image = ref
	} else {
		res.Image = uploads.ImageRef{OriginalFilename: f.Filename}
	}

	tensor, err := imaging.Normalize(f.Data, p.opts.InputHeight, p.opts.InputWidth)
	if err != nil {
		res.Err = err
		return res
	}

	scores, elapsed, err := p.deps.Classifier.Score(tensor)
	if err != nil {
		res.Err = err
		return res
	}

	outcome, err := ranking.Decide(scores, p.deps.Catalog, topN, p.opts.ConfidenceThreshold)
	if err != nil {
		res.Err = err
		return res
	}
	outcome.InferenceDuration = elapsed

	if outcome.Decision == ranking.Rejected {
		slog.Info("Rejected image below confidence threshold",
			"filename", f.Filename,
			"confidence", outcome.Confidence,
			"threshold", p.opts.ConfidenceThreshold)
	} else {
		slog.Debug("Image classified",
			"filename", f.Filename,
			"species", outcome.Top.DisplayName,
			"confidence", outcome.Confidence,
			"inference_time", elapsed)
	}

	res.Outcome = &outcome
	return res
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

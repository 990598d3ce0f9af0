// Package app assembles the classification service from configuration.
//
// Catalog and model failures do not abort startup: the service comes up
// degraded and /predict answers 503 until it is restarted with valid assets.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/KaveeDilshan/PapilioNet/internal/catalog"
	"github.com/KaveeDilshan/PapilioNet/internal/config"
	"github.com/KaveeDilshan/PapilioNet/internal/feedback"
	"github.com/KaveeDilshan/PapilioNet/internal/model"
	"github.com/KaveeDilshan/PapilioNet/internal/pipeline"
	"github.com/KaveeDilshan/PapilioNet/internal/uploads"
)

// UploadsRoute is where stored images are served.
const UploadsRoute = "/uploads/"

type App struct {
	Config   *config.Config
	Catalog  *catalog.Catalog
	Pipeline *pipeline.Pipeline
	Uploads  *uploads.Store
	Feedback *feedback.Recorder

	// Startup problems that left the service degraded.
	CatalogErr error
	ModelErr   error

	closers       []io.Closer
	feedbackStore feedback.Store
}

// ScorerFactory builds the scoring function. Tests swap it for a fake.
type ScorerFactory func(opts model.Options) (model.Scorer, io.Closer, error)

// ONNXFactory loads the classifier with onnxruntime.
func ONNXFactory(opts model.Options) (model.Scorer, io.Closer, error) {
	s, err := model.NewONNXScorer(opts)
	if err != nil {
		return nil, nil, err
	}
	return s, closerFunc(func() error { s.Close(); return nil }), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// New wires every component. Only upload and feedback storage failures are
// fatal; catalog and model failures are recorded and logged.
func New(cfg *config.Config, newScorer ScorerFactory) (*App, error) {
	a := &App{Config: cfg}

	store, err := uploads.New(cfg.Uploads.Dir, cfg.Server.PublicBaseURL, UploadsRoute)
	if err != nil {
		return nil, err
	}
	a.Uploads = store

	fbStore, err := feedback.Open(cfg.Feedback.Backend, cfg.Feedback.Path)
	if err != nil {
		return nil, fmt.Errorf("open feedback store: %w", err)
	}
	a.feedbackStore = fbStore
	a.Feedback = feedback.NewRecorder(fbStore)

	deps := pipeline.Deps{Store: store}

	cat, err := catalog.Load(cfg.Catalog.ClassIndicesPath, cfg.Catalog.MetadataPath)
	if err != nil {
		a.CatalogErr = err
		slog.Error("Failed to load species catalog", "err", err)
	} else {
		a.Catalog = cat
		deps.Catalog = cat
	}

	if a.Catalog != nil {
		scorer, closer, err := newScorer(model.Options{
			ModelPath:         cfg.Model.Path,
			SharedLibraryPath: cfg.Model.SharedLibraryPath,
			InputHeight:       cfg.Model.InputHeight,
			InputWidth:        cfg.Model.InputWidth,
			NumClasses:        cat.Span(),
			Layout:            model.Layout(cfg.Model.Layout),
			InputName:         cfg.Model.InputName,
			OutputName:        cfg.Model.OutputName,
			OutputActivation:  model.Activation(cfg.Model.OutputActivation),
		})
		if err != nil {
			a.ModelErr = err
			slog.Error("Failed to load model", "path", cfg.Model.Path, "err", err)
		} else {
			deps.Classifier = model.NewAdapter(scorer, cat.Span())
			if closer != nil {
				a.closers = append(a.closers, closer)
			}
			slog.Info("Model loaded", "path", cfg.Model.Path, "outputs", cat.Span(), "classes", cat.Size())
		}
	} else {
		a.ModelErr = fmt.Errorf("%w: catalog unavailable, class count unknown", model.ErrModelLoad)
	}

	a.Pipeline = pipeline.New(deps, pipeline.Options{
		InputHeight:         cfg.Model.InputHeight,
		InputWidth:          cfg.Model.InputWidth,
		ConfidenceThreshold: cfg.Classifier.ConfidenceThreshold,
		AllowedExtensions:   cfg.Uploads.AllowedExtensions,
	})

	return a, nil
}

// Degraded reports whether predictions are unavailable.
func (a *App) Degraded() bool {
	return !a.Pipeline.Ready()
}

// StartupError combines catalog and model load errors, if any.
func (a *App) StartupError() error {
	return errors.Join(a.CatalogErr, a.ModelErr)
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.feedbackStore != nil {
		errs = append(errs, a.feedbackStore.Close())
	}
	return errors.Join(errs...)
}

// SetupLogging installs the default slog logger.
func SetupLogging(w io.Writer, cfg config.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

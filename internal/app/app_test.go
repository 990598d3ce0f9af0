package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaveeDilshan/PapilioNet/internal/catalog"
	"github.com/KaveeDilshan/PapilioNet/internal/config"
	"github.com/KaveeDilshan/PapilioNet/internal/imaging"
	"github.com/KaveeDilshan/PapilioNet/internal/model"
	"github.com/KaveeDilshan/PapilioNet/internal/pipeline"
	"github.com/KaveeDilshan/PapilioNet/internal/ranking"
)

type constScorer struct{ n int }

func (s constScorer) Score(imaging.Tensor) (model.ScoreVector, error) {
	v := make(model.ScoreVector, s.n)
	v[0] = 1
	return v, nil
}

type fixedScores model.ScoreVector

func (s fixedScores) Score(imaging.Tensor) (model.ScoreVector, error) {
	return model.ScoreVector(s), nil
}

type countingCloser struct{ closed int }

func (c *countingCloser) Close() error { c.closed++; return nil }

func testConfig(t *testing.T, withCatalog bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Uploads.Dir = filepath.Join(dir, "uploads")
	cfg.Feedback.Path = filepath.Join(dir, "feedback.csv")
	cfg.Catalog.ClassIndicesPath = filepath.Join(dir, "class_indices.json")
	cfg.Catalog.MetadataPath = filepath.Join(dir, "species.csv")

	if withCatalog {
		require.NoError(t, os.WriteFile(cfg.Catalog.ClassIndicesPath,
			[]byte(`{"Common Jezebel": 0, "Crimson Rose": 1}`), 0o644))
		require.NoError(t, os.WriteFile(cfg.Catalog.MetadataPath, []byte(
			"Species Name,Scientific Name,Taxonomy,Status\n"+
				"Common Jezebel,Delias eucharis,Pieridae,Common\n"+
				"Crimson Rose,Pachliopta hector,Papilionidae,Common\n"), 0o644))
	}
	return cfg
}

func TestNewReady(t *testing.T) {
	cfg := testConfig(t, true)
	closer := &countingCloser{}

	var got model.Options
	a, err := New(cfg, func(opts model.Options) (model.Scorer, io.Closer, error) {
		got = opts
		return constScorer{n: opts.NumClasses}, closer, nil
	})
	require.NoError(t, err)

	assert.False(t, a.Degraded())
	assert.NoError(t, a.StartupError())
	assert.Equal(t, 2, a.Catalog.Size())
	assert.Equal(t, 2, got.NumClasses)
	assert.Equal(t, model.LayoutNHWC, got.Layout)
	assert.Equal(t, 224, got.InputHeight)
	assert.DirExists(t, cfg.Uploads.Dir)

	require.NoError(t, a.Close())
	assert.Equal(t, 1, closer.closed)
}

func TestNewDegradedWithoutCatalog(t *testing.T) {
	cfg := testConfig(t, false)

	called := false
	a, err := New(cfg, func(opts model.Options) (model.Scorer, io.Closer, error) {
		called = true
		return nil, nil, nil
	})
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Degraded())
	assert.False(t, called, "model is not loaded without a class count")
	assert.ErrorIs(t, a.CatalogErr, catalog.ErrCatalogLoad)
	assert.ErrorIs(t, a.StartupError(), model.ErrModelLoad)
	assert.Equal(t, 0, a.Catalog.Size())
}

func TestNewDegradedWhenModelFails(t *testing.T) {
	cfg := testConfig(t, true)

	a, err := New(cfg, func(model.Options) (model.Scorer, io.Closer, error) {
		return nil, nil, errors.Join(model.ErrModelLoad, errors.New("no such file"))
	})
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Degraded())
	assert.Equal(t, 2, a.Catalog.Size())
	assert.ErrorIs(t, a.ModelErr, model.ErrModelLoad)
}

func TestNewFeedbackBackendError(t *testing.T) {
	cfg := testConfig(t, true)
	cfg.Feedback.Backend = "postgres"

	_, err := New(cfg, func(model.Options) (model.Scorer, io.Closer, error) {
		return nil, nil, nil
	})
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupLogging(&buf, config.LoggingConfig{Level: "warn", Format: "json"})

	slog.Info("hidden")
	slog.Warn("shown", "species", "Crimson Rose")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"species":"Crimson Rose"`)
}

func TestNewGappedClassIndices(t *testing.T) {
	cfg := testConfig(t, true)
	require.NoError(t, os.WriteFile(cfg.Catalog.ClassIndicesPath,
		[]byte(`{"Common Jezebel": 0, "Crimson Rose": 2}`), 0o644))

	var got model.Options
	a, err := New(cfg, func(opts model.Options) (model.Scorer, io.Closer, error) {
		got = opts
		return fixedScores{0.05, 0.9, 0.05}, nil, nil
	})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 3, got.NumClasses, "model output covers the missing index")

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewNRGBA(image.Rect(0, 0, 4, 4))))

	results, err := a.Pipeline.ClassifyBatch(context.Background(),
		[]pipeline.File{{Filename: "gap.png", Data: img.Bytes()}}, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	out := results[0].Outcome
	assert.Equal(t, ranking.Accepted, out.Decision)
	assert.Equal(t, catalog.Unknown, *out.Top)
	require.Len(t, out.Matches, 1, "unknown index dropped from matches")
	assert.Equal(t, "Common Jezebel", out.Matches[0].Record.DisplayName)
}

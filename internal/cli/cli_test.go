package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaveeDilshan/PapilioNet/internal/feedback"
	"github.com/KaveeDilshan/PapilioNet/internal/imaging"
	"github.com/KaveeDilshan/PapilioNet/internal/model"
)

type fixedScorer model.ScoreVector

func (s fixedScorer) Score(imaging.Tensor) (model.ScoreVector, error) {
	return model.ScoreVector(s), nil
}

func fixedFactory(scores ...float32) func(model.Options) (model.Scorer, io.Closer, error) {
	return func(model.Options) (model.Scorer, io.Closer, error) {
		return fixedScorer(scores), nil, nil
	}
}

// writeWorkspace lays out a config file with catalog assets next to it.
func writeWorkspace(t *testing.T) (dir, configPath string) {
	t.Helper()
	dir = t.TempDir()

	indices := filepath.Join(dir, "class_indices.json")
	meta := filepath.Join(dir, "species.csv")
	require.NoError(t, os.WriteFile(indices, []byte(`{"Common Jezebel": 0, "Crimson Rose": 1, "Blue Mormon": 2}`), 0o644))
	require.NoError(t, os.WriteFile(meta, []byte(
		"Species Name,Scientific Name,Taxonomy,Status\n"+
			"Common Jezebel,Delias eucharis,Pieridae,Common\n"+
			"Crimson Rose,Pachliopta hector,Papilionidae,Common\n"+
			"Blue Mormon,Papilio polymnestor,Papilionidae,Common\n"), 0o644))

	configPath = filepath.Join(dir, "papilio.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`
model:
  input_height: 8
  input_width: 8
catalog:
  class_indices_path: %q
  metadata_path: %q
uploads:
  dir: %q
feedback:
  path: %q
logging:
  level: error
`, indices, meta, filepath.Join(dir, "uploads"), filepath.Join(dir, "feedback.csv"))), 0o644))

	return dir, configPath
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 30, B: 40, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestClassifyCommand(t *testing.T) {
	dir, configPath := writeWorkspace(t)
	img := filepath.Join(dir, "rose.png")
	writePNG(t, img)

	cmd := newClassifyCmd(&configPath, fixedFactory(0.15, 0.8, 0.05))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--top-n", "2", img})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var results []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Crimson Rose", results[0]["species_name"])
	assert.Equal(t, "Pachliopta hector", results[0]["scientific_name"])
	assert.Equal(t, "80.00%", results[0]["confidence"])
	assert.Len(t, results[0]["similar_species"], 2)
}

func TestClassifyCommandRejectsUnsupportedType(t *testing.T) {
	dir, configPath := writeWorkspace(t)
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o644))

	cmd := newClassifyCmd(&configPath, fixedFactory(0.15, 0.8, 0.05))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{txt})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Invalid file type: notes.txt", err.Error())
}

func TestFeedbackExport(t *testing.T) {
	dir, configPath := writeWorkspace(t)

	store, err := feedback.NewCSVStore(filepath.Join(dir, "feedback.csv"))
	require.NoError(t, err)
	rec := feedback.NewRecorder(store)
	require.NoError(t, rec.Record(context.Background(), "Common Jezebel", "Crimson Rose", "71.00%"))
	require.NoError(t, rec.Record(context.Background(), "Blue Mormon", "", ""))
	require.NoError(t, store.Close())

	t.Run("parquet", func(t *testing.T) {
		out := filepath.Join(dir, "corrections.parquet")
		cmd := newFeedbackCmd(&configPath)
		cmd.SetArgs([]string{"export", "--out", out})
		require.NoError(t, cmd.ExecuteContext(context.Background()))

		rows, err := parquet.ReadFile[feedback.Record](out)
		require.NoError(t, err)
		assert.Equal(t, []feedback.Record{
			{Original: "Common Jezebel", Corrected: "Crimson Rose", Confidence: "71.00%"},
			{Original: "Blue Mormon", Corrected: "Unknown", Confidence: "N/A"},
		}, rows)
	})

	t.Run("csv", func(t *testing.T) {
		out := filepath.Join(dir, "corrections.csv")
		cmd := newFeedbackCmd(&configPath)
		cmd.SetArgs([]string{"export", "--out", out})
		require.NoError(t, cmd.ExecuteContext(context.Background()))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "original,corrected,confidence\n"+
			"Common Jezebel,Crimson Rose,71.00%\n"+
			"Blue Mormon,Unknown,N/A\n", string(data))
	})

	t.Run("unsupported format", func(t *testing.T) {
		cmd := newFeedbackCmd(&configPath)
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"export", "--out", filepath.Join(dir, "corrections.xlsx")})
		assert.Error(t, cmd.ExecuteContext(context.Background()))
	})
}

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["classify"])
	assert.True(t, names["feedback"])
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

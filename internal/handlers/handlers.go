package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/KaveeDilshan/PapilioNet/internal/catalog"
	"github.com/KaveeDilshan/PapilioNet/internal/feedback"
	"github.com/KaveeDilshan/PapilioNet/internal/pipeline"
	"github.com/KaveeDilshan/PapilioNet/internal/ranking"
)

// Options control request limits and response text.
type Options struct {
	MaxUploadBytes   int64
	DefaultTopN      int
	RejectionMessage string
	CatalogSize      int
}

type Handler struct {
	pipeline *pipeline.Pipeline
	recorder *feedback.Recorder
	opts     Options
}

func NewHandler(p *pipeline.Pipeline, recorder *feedback.Recorder, opts Options) *Handler {
	if opts.DefaultTopN <= 0 {
		opts.DefaultTopN = 3
	}
	return &Handler{
		pipeline: p,
		recorder: recorder,
		opts:     opts,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	ready := h.pipeline.Ready()
	if !ready {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"model_loaded": ready,
		"catalog_size": h.opts.CatalogSize,
	})
}

type similarSpecies struct {
	SpeciesName string `json:"species_name"`
	Confidence  string `json:"confidence"`
}

type prediction struct {
	UploadedImageURL string           `json:"uploaded_image_url"`
	SpeciesName      string           `json:"species_name"`
	ScientificName   string           `json:"scientific_name"`
	Taxonomy         string           `json:"taxonomy"`
	Status           string           `json:"status"`
	Confidence       string           `json:"confidence"`
	SimilarSpecies   []similarSpecies `json:"similar_species"`
	InferenceTime    string           `json:"inference_time"`
	Message          string           `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds %d bytes", h.opts.MaxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	topN, err := h.topN(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	files := make([]pipeline.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read %s", fh.Filename))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read %s", fh.Filename))
			return
		}
		files = append(files, pipeline.File{Filename: fh.Filename, Data: data})
	}

	slog.Info("Classifying upload batch", "files", len(files), "top_n", topN)

	results, err := h.pipeline.ClassifyBatch(r.Context(), files, topN)
	if err != nil {
		var typeErr *pipeline.InvalidFileTypeError
		switch {
		case errors.As(err, &typeErr):
			writeError(w, http.StatusBadRequest, typeErr.Error())
		case errors.Is(err, ranking.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, pipeline.ErrModelUnavailable):
			writeError(w, http.StatusServiceUnavailable, "Model is not loaded")
		default:
			slog.Error("Batch classification failed", "err", err)
			writeError(w, http.StatusInternalServerError, "Prediction failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, RenderResults(results, h.opts.RejectionMessage))
}

// topN reads "top_n", falling back to "topN" and then the configured default.
func (h *Handler) topN(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.FormValue("top_n"))
	if raw == "" {
		raw = strings.TrimSpace(r.FormValue("topN"))
	}
	if raw == "" {
		return h.opts.DefaultTopN, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("top_n must be a positive integer, got %q", raw)
	}
	return n, nil
}

// RenderResults builds the /predict response body, one entry per file in
// upload order.
func RenderResults(results []pipeline.Result, rejectionMessage string) []any {
	out := make([]any, 0, len(results))
	for _, res := range results {
		out = append(out, render(res, rejectionMessage))
	}
	return out
}

func render(res pipeline.Result, rejectionMessage string) any {
	if res.Err != nil {
		return errorResponse{Error: fmt.Sprintf("Error processing file %s: %v", res.Filename, res.Err)}
	}

	o := res.Outcome
	p := prediction{
		UploadedImageURL: res.Image.AccessURL,
		Confidence:       formatConfidence(o.Confidence),
		SimilarSpecies:   []similarSpecies{},
		InferenceTime:    formatDuration(o.InferenceDuration),
	}

	if o.Decision == ranking.Rejected || o.Top == nil {
		p.SpeciesName = catalog.Unknown.DisplayName
		p.ScientificName = catalog.Unknown.AlternateName
		p.Taxonomy = catalog.Unknown.Taxonomy
		p.Status = catalog.Unknown.Status
		p.Message = rejectionMessage
		return p
	}

	p.SpeciesName = o.Top.DisplayName
	p.ScientificName = o.Top.AlternateName
	p.Taxonomy = o.Top.Taxonomy
	p.Status = o.Top.Status
	for _, m := range o.Matches {
		p.SimilarSpecies = append(p.SimilarSpecies, similarSpecies{
			SpeciesName: m.Record.DisplayName,
			Confidence:  formatConfidence(m.Confidence),
		})
	}
	return p
}

func formatConfidence(c float32) string {
	return fmt.Sprintf("%.2f%%", float64(c)*100)
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3f sec", d.Seconds())
}

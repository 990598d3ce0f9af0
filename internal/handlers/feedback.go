package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/KaveeDilshan/PapilioNet/internal/feedback"
)

// maxFeedbackBytes bounds a /feedback body; real ones are a few hundred bytes.
const maxFeedbackBytes = 64 << 10

type feedbackRequest struct {
	OriginalSpecies  string `json:"originalSpecies"`
	CorrectedSpecies string `json:"correctedSpecies"`
	// Clients send either "87.21%" or a bare number.
	Confidence any `json:"confidence"`
}

func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFeedbackBytes)

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Feedback body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	err := h.recorder.Record(r.Context(), req.OriginalSpecies, req.CorrectedSpecies, confidenceString(req.Confidence))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Feedback received successfully!"})
	case errors.Is(err, feedback.ErrInvalidFeedback):
		writeError(w, http.StatusBadRequest, "Feedback must contain a valid species name")
	default:
		slog.Error("Failed to store feedback", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func confidenceString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(c)
	default:
		b, _ := json.Marshal(c)
		return string(b)
	}
}

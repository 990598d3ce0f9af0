// Package feedback records user corrections to predictions. Records are
// append-only.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrInvalidFeedback is returned when neither label names a species.
var ErrInvalidFeedback = errors.New("feedback must contain a valid species name")

const (
	UnknownLabel      = "Unknown"
	UnknownConfidence = "N/A"
)

// Record is one correction: the label the model produced and the label the
// user says is right.
type Record struct {
	Original   string `json:"original" parquet:"original"`
	Corrected  string `json:"corrected" parquet:"corrected"`
	Confidence string `json:"confidence" parquet:"confidence"`
}

// Store persists records. Append must not interleave partial records when
// called concurrently.
type Store interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record validates and appends one correction. Empty labels count as
// "Unknown"; a record where both labels are "Unknown" is rejected.
func (r *Recorder) Record(ctx context.Context, original, corrected, confidence string) error {
	rec := Record{
		Original:   orDefault(original, UnknownLabel),
		Corrected:  orDefault(corrected, UnknownLabel),
		Confidence: orDefault(confidence, UnknownConfidence),
	}

	if rec.Original == UnknownLabel && rec.Corrected == UnknownLabel {
		return ErrInvalidFeedback
	}

	if err := r.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("store feedback: %w", err)
	}

	slog.Info("Feedback recorded", "original", rec.Original, "corrected", rec.Corrected, "confidence", rec.Confidence)
	return nil
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

package model

import (
	"fmt"
	"time"

	"github.com/KaveeDilshan/PapilioNet/internal/imaging"
)

// Adapter wraps a Scorer, times each call and checks the output length.
type Adapter struct {
	scorer     Scorer
	numClasses int
	now        func() time.Time
}

func NewAdapter(scorer Scorer, numClasses int) *Adapter {
	return &Adapter{
		scorer:     scorer,
		numClasses: numClasses,
		now:        time.Now,
	}
}

// Score runs the scorer and returns the scores together with the wall-clock
// duration of the call.
func (a *Adapter) Score(t imaging.Tensor) (ScoreVector, time.Duration, error) {
	start := a.now()
	scores, err := a.scorer.Score(t)
	elapsed := a.now().Sub(start)
	if err != nil {
		return nil, elapsed, fmt.Errorf("%w: %v", ErrInference, err)
	}

	if len(scores) != a.numClasses {
		return nil, elapsed, fmt.Errorf("%w: expected %d scores, got %d", ErrInference, a.numClasses, len(scores))
	}

	return scores, elapsed, nil
}

func (a *Adapter) NumClasses() int {
	return a.numClasses
}

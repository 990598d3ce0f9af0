package ranking

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/KaveeDilshan/PapilioNet/internal/catalog"
)

// ErrInvalidArgument is returned for a non-positive topN, a threshold outside
// [0,1] or an empty score vector.
var ErrInvalidArgument = errors.New("invalid argument")

type Decision int

const (
	Rejected Decision = iota
	Accepted
)

func (d Decision) String() string {
	if d == Accepted {
		return "accepted"
	}
	return "rejected"
}

// Catalog is the subset of the species catalog ranking needs.
type Catalog interface {
	Resolve(idx catalog.Index) catalog.Record
	Lookup(idx catalog.Index) (catalog.Record, bool)
	Size() int
}

type Match struct {
	Record     catalog.Record
	Confidence float32
}

// Outcome is the classification result for one score vector.
type Outcome struct {
	Decision   Decision
	Top        *catalog.Record
	Confidence float32
	Matches    []Match

	// Filled in by the caller that timed the scoring call.
	InferenceDuration time.Duration
}

// Decide applies the confidence threshold and builds the top-N list.
//
// The top category is the highest score, lowest index on ties. Matches are
// only computed for accepted outcomes; indices the catalog does not know are
// dropped from Matches rather than reported as Unknown.
func Decide(scores []float32, cat Catalog, topN int, threshold float64) (Outcome, error) {
	if topN <= 0 {
		return Outcome{}, fmt.Errorf("%w: topN must be positive, got %d", ErrInvalidArgument, topN)
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return Outcome{}, fmt.Errorf("%w: threshold must be within [0,1], got %v", ErrInvalidArgument, threshold)
	}
	if len(scores) == 0 {
		return Outcome{}, fmt.Errorf("%w: empty score vector", ErrInvalidArgument)
	}

	order := rank(scores)
	topIndex := order[0]
	confidence := scores[topIndex]

	out := Outcome{Confidence: confidence}
	if !(float64(confidence) >= threshold) {
		out.Decision = Rejected
		out.Matches = []Match{}
		return out, nil
	}

	top := cat.Resolve(topIndex)
	out.Decision = Accepted
	out.Top = &top

	n := topN
	if size := cat.Size(); n > size {
		n = size
	}
	if n > len(order) {
		n = len(order)
	}

	out.Matches = make([]Match, 0, n)
	for _, idx := range order[:n] {
		rec, ok := cat.Lookup(idx)
		if !ok {
			continue
		}
		out.Matches = append(out.Matches, Match{Record: rec, Confidence: scores[idx]})
	}

	return out, nil
}

// rank returns all indices ordered by descending score, lowest index first
// on ties. NaN sorts after every real score.
func rank(scores []float32) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return greater(scores[order[a]], scores[order[b]])
	})
	return order
}

func greater(a, b float32) bool {
	aNaN, bNaN := math.IsNaN(float64(a)), math.IsNaN(float64(b))
	switch {
	case aNaN:
		return false
	case bNaN:
		return true
	}
	return a > b
}

package analysis

import (
	"errors"
	"math"

	"github.com/emora-ai/emora/pkg/errorsx"
)

// breakdownTolerance is the accepted rounding slack around 100 percent.
const breakdownTolerance = 1.0

var errMissingLabel = errors.New("analyzer returned no emotion label")

// Normalize validates an analyzer result and coerces it into the invariants
// the session record relies on: confidence clamped to [0,1] and a breakdown
// that sums to 100 within rounding tolerance. A missing label is a
// collaborator validation fault; a bad breakdown is dropped rather than
// recorded.
func Normalize(e Emotion) (Emotion, error) {
	if e.Label == "" {
		return Emotion{}, errorsx.Wrap(errMissingLabel, errorsx.ReasonValidation)
	}
	e.Confidence = ClampConfidence(e.Confidence)
	if e.NegativeBreakdown != nil && !breakdownValid(e.NegativeBreakdown) {
		e.NegativeBreakdown = nil
	}
	return e, nil
}

// ClampConfidence bounds a confidence score to [0,1]; NaN collapses to 0.
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

func breakdownValid(b map[string]float64) bool {
	if len(b) == 0 {
		return false
	}
	sum := 0.0
	for _, v := range b {
		if v < 0 || math.IsNaN(v) {
			return false
		}
		sum += v
	}
	return math.Abs(sum-100) <= breakdownTolerance
}

package reputation

import (
	"math"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
)

const (
	MinScore = 0
	MaxScore = 100
)

/*
NextScore applies delta to previous and returns the score that should be stored.

The sum is rounded half away from zero (math.Round), so 52.5 becomes 53 and 47.5
becomes 48, and the result is then clamped into [MinScore, MaxScore]. Clamping happens
on the float so that huge deltas cannot overflow an int.
*/
func NextScore(previous int, delta float64) int {
	next := math.Round(float64(previous) + delta)
	if next < MinScore {
		return MinScore
	}
	if next > MaxScore {
		return MaxScore
	}
	return int(next)
}

func validateDelta(delta float64) error {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return oops.Kinded(oops.KindValidation, nil, "delta must be a finite number")
	}
	return nil
}

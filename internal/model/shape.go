package model

import (
	"fmt"
	"math"
)

// StepsPerDay is the number of one-minute steps in the simulated horizon.
const StepsPerDay = 1440

// Shape is an ordered sequence of per-minute multipliers applied to a
// baseline rating. Index i is minute i of the day.
type Shape []float64

// Validate checks that the shape covers exactly n steps with finite,
// non-negative multipliers.
func (s Shape) Validate(n int) error {
	if len(s) != n {
		return fmt.Errorf("shape has %d points, expected %d", len(s), n)
	}
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("shape point %d is invalid: %v", i, v)
		}
	}
	return nil
}

// At returns the multiplier for the given step, or 0 outside the shape.
func (s Shape) At(step int) float64 {
	if step < 0 || step >= len(s) {
		return 0
	}
	return s[step]
}

// Peak returns the largest multiplier in the shape.
func (s Shape) Peak() float64 {
	var peak float64
	for _, v := range s {
		if v > peak {
			peak = v
		}
	}
	return peak
}

// StepClock formats a step index as a wall-clock "HH:MM" minute of day.
func StepClock(step int) string {
	return fmt.Sprintf("%02d:%02d", (step/60)%24, step%60)
}

// Package demand provides residential load shapes for the feeder.
package demand

import (
	"math"

	"islanding_simulator/internal/model"
)

type peak struct {
	centerStep float64
	widthMin   float64
	height     float64
}

// Morning and evening peaks of a typical residential day.
var residentialPeaks = []peak{
	{centerStep: 7.5 * 60, widthMin: 75, height: 0.45},
	{centerStep: 13 * 60, widthMin: 120, height: 0.15},
	{centerStep: 19 * 60, widthMin: 110, height: 0.6},
}

const residentialBase = 0.4

// Residential returns the aggregate load shape of the homes, normalised so
// the evening peak is 1.0.
func Residential() model.Shape {
	s := make(model.Shape, model.StepsPerDay)
	for i := range s {
		v := residentialBase
		for _, p := range residentialPeaks {
			d := float64(i) - p.centerStep
			v += p.height * math.Exp(-d*d/(2*p.widthMin*p.widthMin))
		}
		s[i] = v
	}
	return normalize(s)
}

// Flat returns a constant shape.
func Flat(v float64) model.Shape {
	s := make(model.Shape, model.StepsPerDay)
	for i := range s {
		s[i] = v
	}
	return s
}

func normalize(s model.Shape) model.Shape {
	peak := s.Peak()
	if peak == 0 {
		return s
	}
	for i := range s {
		s[i] /= peak
	}
	return s
}

// Package solar builds per-minute PV generation shapes normalised to a
// peak of 1.0.
package solar

import (
	"math"

	"islanding_simulator/internal/model"
)

// Built-in shape names.
const (
	Clear  = "clear"
	Cloudy = "cloudy"
)

const (
	sunriseStep = 6 * 60
	sunsetStep  = 18 * 60
)

// ClearSky returns a half-sine day between sunrise and sunset peaking at 1.0
// at solar noon.
func ClearSky() model.Shape {
	s := make(model.Shape, model.StepsPerDay)
	for i := sunriseStep; i <= sunsetStep; i++ {
		s[i] = math.Sin(math.Pi * float64(i-sunriseStep) / float64(sunsetStep-sunriseStep))
	}
	return s
}

// Overcast returns the clear-sky shape attenuated by a deterministic cloud
// pattern: about a third of clear output with slow passing breaks.
func Overcast() model.Shape {
	s := ClearSky()
	for i := range s {
		if s[i] == 0 {
			continue
		}
		t := float64(i)
		cover := 0.35 + 0.1*math.Sin(2*math.Pi*t/97) + 0.05*math.Sin(2*math.Pi*t/23)
		s[i] *= cover
	}
	return s
}

// Builtin returns the named built-in shapes.
func Builtin() map[string]model.Shape {
	return map[string]model.Shape{
		Clear:  ClearSky(),
		Cloudy: Overcast(),
	}
}

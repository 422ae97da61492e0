package solar

import (
	"math"

	"islanding_simulator/internal/model"
)

// Profile holds an hourly generation shape derived from measured PV data.
type Profile struct {
	// HourlyFactor holds the normalized capacity factor for each hour [0-23].
	// Peak hour = 1.0, other hours scaled relative to peak.
	HourlyFactor [24]float64
	// PeakHour is the hour with the highest average generation.
	PeakHour int
}

// BuildProfileFromReadings averages positive PV readings per hour of day. It
// reports false when no reading carries generation.
func BuildProfileFromReadings(readings []model.Reading) (Profile, bool) {
	var hourSum [24]float64
	var hourCount [24]int

	for _, r := range readings {
		if r.Type != "" && r.Type != model.SensorPVPower {
			continue
		}
		if r.Value <= 0 || math.IsNaN(r.Value) {
			continue
		}
		h := r.Timestamp.Hour()
		hourSum[h] += r.Value
		hourCount[h]++
	}

	var profile Profile
	var maxAvg float64
	for h := 0; h < 24; h++ {
		if hourCount[h] > 0 {
			avg := hourSum[h] / float64(hourCount[h])
			profile.HourlyFactor[h] = avg
			if avg > maxAvg {
				maxAvg = avg
				profile.PeakHour = h
			}
		}
	}
	if maxAvg == 0 {
		return Profile{}, false
	}

	// Normalize to peak = 1.0
	for h := 0; h < 24; h++ {
		profile.HourlyFactor[h] /= maxAvg
	}
	return profile, true
}

// Shape expands the hourly profile to one multiplier per minute. Hourly
// factors sit at the middle of their hour and are linearly interpolated;
// hours without generation stay dark.
func (p Profile) Shape() model.Shape {
	s := make(model.Shape, model.StepsPerDay)
	for i := range s {
		h := i / 60
		if p.HourlyFactor[h] == 0 {
			continue
		}
		s[i] = interpolateProfile(p.HourlyFactor, float64(i)/60-0.5)
	}
	return s
}

// interpolateProfile returns linearly interpolated factor for a fractional hour.
func interpolateProfile(factors [24]float64, hour float64) float64 {
	// Wrap to [0, 24)
	for hour < 0 {
		hour += 24
	}
	for hour >= 24 {
		hour -= 24
	}

	lo := int(math.Floor(hour)) % 24
	hi := (lo + 1) % 24
	frac := hour - math.Floor(hour)

	return factors[lo]*(1-frac) + factors[hi]*frac
}

package solar

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"islanding_simulator/internal/model"
)

func makeReadings(peakHour int, peakPower float64) []model.Reading {
	start := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	var readings []model.Reading

	for day := 0; day < 30; day++ {
		for h := 0; h < 24; h++ {
			ts := start.AddDate(0, 0, day).Add(time.Duration(h) * time.Hour)
			dist := float64(h) - float64(peakHour)
			power := peakPower * math.Exp(-dist*dist/8)
			if power < 10 {
				power = 0
			}
			readings = append(readings, model.Reading{
				Timestamp: ts,
				SensorID:  "sensor.pv",
				Type:      model.SensorPVPower,
				Value:     power,
				Unit:      "W",
			})
		}
	}
	return readings
}

func TestClearSky(t *testing.T) {
	s := ClearSky()
	require.NoError(t, s.Validate(model.StepsPerDay))

	assert.Equal(t, 0.0, s[0])
	assert.Equal(t, 0.0, s[sunriseStep])
	assert.InDelta(t, 1.0, s[12*60], 1e-12)
	assert.InDelta(t, 0.0, s[sunsetStep], 1e-12)
	assert.Equal(t, 0.0, s[20*60])
	assert.InDelta(t, s[9*60], s[15*60], 1e-12, "symmetric around noon")
}

func TestOvercastBelowClear(t *testing.T) {
	clear, cloudy := ClearSky(), Overcast()
	require.NoError(t, cloudy.Validate(model.StepsPerDay))

	for i := range clear {
		assert.LessOrEqual(t, cloudy[i], clear[i])
	}
	assert.Less(t, cloudy.Peak(), 0.6)
	assert.Greater(t, cloudy.Peak(), 0.2)
}

func TestBuiltin(t *testing.T) {
	b := Builtin()
	assert.Contains(t, b, Clear)
	assert.Contains(t, b, Cloudy)
}

func TestBuildProfileFromReadings_PeakDetection(t *testing.T) {
	profile, ok := BuildProfileFromReadings(makeReadings(10, 6500))
	require.True(t, ok)

	assert.Equal(t, 10, profile.PeakHour)
	assert.InDelta(t, 1.0, profile.HourlyFactor[10], 1e-9)
	assert.Equal(t, 0.0, profile.HourlyFactor[0], "midnight should have no generation")
}

func TestBuildProfileFromReadings_Empty(t *testing.T) {
	_, ok := BuildProfileFromReadings(nil)
	assert.False(t, ok)

	night := []model.Reading{{Timestamp: time.Now(), Value: 0, Type: model.SensorPVPower}}
	_, ok = BuildProfileFromReadings(night)
	assert.False(t, ok)
}

func TestBuildProfileFromReadings_IgnoresOtherSensors(t *testing.T) {
	readings := makeReadings(12, 3000)
	readings = append(readings, model.Reading{
		Timestamp: time.Date(2024, time.June, 15, 3, 0, 0, 0, time.UTC),
		Type:      model.SensorLoadPower,
		Value:     99999,
	})
	profile, ok := BuildProfileFromReadings(readings)
	require.True(t, ok)
	assert.Equal(t, 12, profile.PeakHour)
	assert.Equal(t, 0.0, profile.HourlyFactor[3])
}

func TestProfileShape(t *testing.T) {
	profile, ok := BuildProfileFromReadings(makeReadings(12, 5000))
	require.True(t, ok)

	s := profile.Shape()
	require.NoError(t, s.Validate(model.StepsPerDay))
	// Middle of the peak hour carries the peak factor
	assert.InDelta(t, 1.0, s[12*60+30], 1e-9)
	assert.Equal(t, 0.0, s[60])
	assert.InDelta(t, 1.0, s.Peak(), 1e-9)
}

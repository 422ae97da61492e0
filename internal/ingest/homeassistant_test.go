package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"islanding_simulator/internal/model"
)

func TestHomeAssistantParser_Parse(t *testing.T) {
	input := `entity_id,state,last_changed
sensor.pv_power,368.85,2024-06-21T08:00:00.000Z
sensor.pv_power,759.59,2024-06-21T09:00:00.000Z
sensor.pv_power,562.78,2024-06-21T10:00:00.000Z`

	parser := NewHomeAssistantParser(model.SensorPVPower, "W")
	readings, err := parser.Parse(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, readings, 3)

	assert.Equal(t, "sensor.pv_power", readings[0].SensorID)
	assert.Equal(t, model.SensorPVPower, readings[0].Type)
	assert.InDelta(t, 368.85, readings[0].Value, 0.001)
	assert.Equal(t, "W", readings[0].Unit)
	assert.Equal(t, time.Date(2024, 6, 21, 8, 0, 0, 0, time.UTC), readings[0].Timestamp)

	assert.InDelta(t, 759.59, readings[1].Value, 0.001)
	assert.Equal(t, 0, parser.Skipped)
}

func TestHomeAssistantParser_SkipsUnavailable(t *testing.T) {
	input := `entity_id,state,last_changed
sensor.pv_power,759.59,2024-06-21T13:00:00.000Z
sensor.pv_power,unavailable,2024-06-21T14:00:00.000Z
sensor.pv_power,562.78,2024-06-21T15:00:00.000Z`

	parser := NewHomeAssistantParser(model.SensorPVPower, "W")
	readings, err := parser.Parse(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.InDelta(t, 562.78, readings[1].Value, 0.001)
	assert.Equal(t, 1, parser.Skipped)
}

func TestHomeAssistantParser_EntityFilter(t *testing.T) {
	input := `entity_id,state,last_changed
sensor.pv_power,759.59,2024-06-21T13:00:00.000Z
sensor.grid_power,-120,2024-06-21T13:00:00.000Z`

	parser := NewHomeAssistantParser(model.SensorPVPower, "W")
	parser.Entity = "sensor.pv_power"
	readings, err := parser.Parse(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "sensor.pv_power", readings[0].SensorID)
	assert.Equal(t, 1, parser.Skipped)
}

func TestHomeAssistantParser_InvalidHeader(t *testing.T) {
	input := `wrong_col,state,last_changed
sensor.pv_power,759.59,2024-06-21T13:00:00.000Z`

	parser := NewHomeAssistantParser(model.SensorPVPower, "W")
	_, err := parser.Parse(strings.NewReader(input))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHeader)
	assert.Contains(t, err.Error(), "entity_id")
}

func TestHomeAssistantParser_EmptyInput(t *testing.T) {
	parser := NewHomeAssistantParser(model.SensorPVPower, "W")
	_, err := parser.Parse(strings.NewReader(""))

	assert.Error(t, err)
}

func TestHomeAssistantParser_SampleFile(t *testing.T) {
	parser := NewHomeAssistantParser(model.SensorPVPower, "W")
	parser.Entity = "sensor.hoymiles_pv_power"
	readings, err := LoadReadingsFile("testdata/pv_power_sample.csv", parser)

	require.NoError(t, err)
	require.Len(t, readings, 24)
	assert.Equal(t, 2, parser.Skipped)

	assert.Equal(t, 0.0, readings[0].Value)
	assert.InDelta(t, 4200.0, readings[12].Value, 0.001)
	for _, r := range readings {
		assert.Equal(t, model.SensorPVPower, r.Type)
		assert.Equal(t, "W", r.Unit)
	}
}

func TestHomeAssistantParser_RFC3339Nano(t *testing.T) {
	input := `entity_id,state,last_changed
sensor.pv_power,321,2026-02-11T18:49:18.424Z`

	parser := NewHomeAssistantParser(model.SensorPVPower, "W")
	readings, err := parser.Parse(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 2026, readings[0].Timestamp.Year())
	assert.Equal(t, 424*time.Millisecond, time.Duration(readings[0].Timestamp.Nanosecond()))
}

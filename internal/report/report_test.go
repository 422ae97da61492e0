package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"islanding_simulator/internal/model"
	"islanding_simulator/internal/simulator"
)

func soc(v float64) *float64 { return &v }

func makeRun() *simulator.Run {
	series := &simulator.ResultSeries{
		PowerBalance: []simulator.PowerBalance{
			{LoadKW: 10, GridKW: 10},
			{LoadKW: 10, BatteryKW: 10, SupplyKW: 10},
			{LoadKW: 10, UnservedKW: 10},
		},
		Voltage: []simulator.VoltageStats{
			{Min: 225, Mean: 227, Max: 230, Energized: true},
			{Min: 224, Mean: 226, Max: 229, Energized: true},
			{},
		},
		SoC:          []*float64{soc(80), soc(79.7), soc(20)},
		Connectivity: []model.Connectivity{model.GridConnected, model.Islanded, model.Islanded},
		ActiveFaults: [][]string{nil, {"sw2_fault"}, {"sw2_fault", "sw4_lateral_fault"}},
	}
	return &simulator.Run{
		ID:       "run-1",
		Scenario: simulator.ScenarioConfig{Name: "scenario_2_bess_only", Description: "bess", HasBattery: true},
		Series:   series,
		Summary:  simulator.Summary{Scenario: "scenario_2_bess_only", UnservedKWh: 0.1667},
	}
}

func TestWriteSeriesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSeriesCSV(&buf, makeRun()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, seriesHeader, rows[0])

	assert.Equal(t, "00:01", rows[2][1])
	assert.Equal(t, "islanded", rows[2][2])
	assert.Equal(t, "10.0000", rows[2][5])
	assert.Equal(t, "79.7000", rows[2][15])
	assert.Equal(t, "sw2_fault;sw4_lateral_fault", rows[3][16])
	assert.Equal(t, "false", rows[3][13])
}

func TestWriteScenario(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	files, err := WriteScenario(dir, makeRun(), 230)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "scenario_2_bess_only_powerflow.html"), files.PowerFlowHTML)
	assert.Equal(t, filepath.Join(dir, "scenario_2_bess_only_voltage_band_soc.html"), files.VoltageHTML)

	html, err := os.ReadFile(files.PowerFlowHTML)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Unserved")
	assert.Contains(t, string(html), "echarts")

	html, err = os.ReadFile(files.VoltageHTML)
	require.NoError(t, err)
	assert.Contains(t, string(html), "SoC")

	_, err = os.Stat(files.SeriesCSV)
	assert.NoError(t, err)
}

func TestWriteSummary(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteSummary(dir, []simulator.Summary{
		{Scenario: "a", UnservedKWh: 1.5},
		{Scenario: "b", StabilityMinutes: 42},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]simulator.Summary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 1.5, got["a"].UnservedKWh)
	assert.Equal(t, 42, got["b"].StabilityMinutes)
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(makeRun(), 230)(rec, httptest.NewRequest(http.MethodGet, "/report/scenario_2_bess_only", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, rec.Body.String(), "voltage band and SoC")
}

package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"islanding_simulator/internal/simulator"
)

// Files lists the paths written for one scenario.
type Files struct {
	PowerFlowHTML string
	VoltageHTML   string
	SeriesCSV     string
}

// WriteScenario writes the chart pages and the step series of a run into dir.
func WriteScenario(dir string, run *simulator.Run, nominal float64) (Files, error) {
	name := run.Scenario.Name
	files := Files{
		PowerFlowHTML: filepath.Join(dir, name+"_powerflow.html"),
		VoltageHTML:   filepath.Join(dir, name+"_voltage_band_soc.html"),
		SeriesCSV:     filepath.Join(dir, name+"_series.csv"),
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return files, err
	}

	if err := writeFile(files.PowerFlowHTML, func(w io.Writer) error {
		return PowerFlowChart(run).Render(w)
	}); err != nil {
		return files, err
	}
	if err := writeFile(files.VoltageHTML, func(w io.Writer) error {
		return VoltageChart(run, nominal).Render(w)
	}); err != nil {
		return files, err
	}
	if err := writeFile(files.SeriesCSV, func(w io.Writer) error {
		return WriteSeriesCSV(w, run)
	}); err != nil {
		return files, err
	}
	return files, nil
}

// WriteSummary writes summary.json into dir, keyed by scenario name.
func WriteSummary(dir string, summaries []simulator.Summary) (string, error) {
	path := filepath.Join(dir, "summary.json")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, err
	}
	byName := make(map[string]simulator.Summary, len(summaries))
	for _, s := range summaries {
		byName[s.Scenario] = s
	}
	return path, writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(byName)
	})
}

var seriesHeader = []string{
	"step", "clock", "connectivity",
	"load_kw", "pv_kw", "battery_kw", "grid_kw", "unserved_kw", "curtailed_kw", "supply_kw",
	"v_min", "v_mean", "v_max", "energized", "degraded",
	"soc_percent", "active_faults",
}

// WriteSeriesCSV writes one row per step.
func WriteSeriesCSV(w io.Writer, run *simulator.Run) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(seriesHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

	for i := 0; i < run.Series.Len(); i++ {
		st := run.Series.At(i)
		soc := ""
		if st.SoCPercent != nil {
			soc = f(*st.SoCPercent)
		}
		row := []string{
			strconv.Itoa(st.Index), st.Clock, st.Connectivity.String(),
			f(st.LoadKW), f(st.PVKW), f(st.BatteryKW), f(st.GridKW), f(st.UnservedKW), f(st.CurtailedKW), f(st.SupplyKW),
			f(st.Voltage.Min), f(st.Voltage.Mean), f(st.Voltage.Max),
			strconv.FormatBool(st.Voltage.Energized), strconv.FormatBool(st.Voltage.Degraded),
			soc, strings.Join(st.ActiveFaults, ";"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

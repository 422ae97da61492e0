package simulator

import (
	"math"

	"islanding_simulator/internal/model"
)

// stabilityHysteresisPercent is the SoC margin above reserve that counts a
// minute of islanded operation as stable.
const stabilityHysteresisPercent = 0.5

// Voltage limits as a fraction of nominal.
const (
	voltageLowPU  = 0.9
	voltageHighPU = 1.1
)

// PowerBalance is the per-step accounting of the feeder. All values in kW.
// Battery is positive when discharging, Grid positive when importing.
type PowerBalance struct {
	LoadKW      float64 `json:"load_kw"`
	PVKW        float64 `json:"pv_kw"`
	BatteryKW   float64 `json:"battery_kw"`
	GridKW      float64 `json:"grid_kw"`
	UnservedKW  float64 `json:"unserved_kw"`
	CurtailedKW float64 `json:"curtailed_kw"`
	SupplyKW    float64 `json:"supply_kw"`
}

// VoltageStats summarises the monitored bus voltages of one step.
type VoltageStats struct {
	Min       float64 `json:"min"`
	Mean      float64 `json:"mean"`
	Max       float64 `json:"max"`
	Energized bool    `json:"energized"`
	// Degraded marks a step whose solve did not converge; the values are
	// carried from the last converged step.
	Degraded   bool `json:"degraded"`
	Iterations int  `json:"iterations"`
}

// ResultSeries holds parallel step-indexed sequences for one scenario.
type ResultSeries struct {
	PowerBalance []PowerBalance       `json:"power_balance"`
	Voltage      []VoltageStats       `json:"voltage"`
	SoC          []*float64           `json:"soc"`
	Connectivity []model.Connectivity `json:"connectivity"`
	ActiveFaults [][]string           `json:"active_faults"`
}

func newResultSeries(n int) *ResultSeries {
	return &ResultSeries{
		PowerBalance: make([]PowerBalance, 0, n),
		Voltage:      make([]VoltageStats, 0, n),
		SoC:          make([]*float64, 0, n),
		Connectivity: make([]model.Connectivity, 0, n),
		ActiveFaults: make([][]string, 0, n),
	}
}

// Len returns the number of recorded steps.
func (r *ResultSeries) Len() int { return len(r.PowerBalance) }

// Step is one row of a ResultSeries.
type Step struct {
	Index        int                `json:"step"`
	Clock        string             `json:"clock"`
	Connectivity model.Connectivity `json:"connectivity"`
	PowerBalance
	Voltage      VoltageStats `json:"voltage"`
	SoCPercent   *float64     `json:"soc_percent"`
	ActiveFaults []string     `json:"active_faults,omitempty"`
}

// At returns row i.
func (r *ResultSeries) At(i int) Step {
	return Step{
		Index:        i,
		Clock:        model.StepClock(i),
		Connectivity: r.Connectivity[i],
		PowerBalance: r.PowerBalance[i],
		Voltage:      r.Voltage[i],
		SoCPercent:   r.SoC[i],
		ActiveFaults: r.ActiveFaults[i],
	}
}

// Range returns rows in [from, to), clipped to the series.
func (r *ResultSeries) Range(from, to int) []Step {
	if from < 0 {
		from = 0
	}
	if to > r.Len() {
		to = r.Len()
	}
	if from >= to {
		return nil
	}
	steps := make([]Step, 0, to-from)
	for i := from; i < to; i++ {
		steps = append(steps, r.At(i))
	}
	return steps
}

func (r *ResultSeries) append(s Step) {
	r.PowerBalance = append(r.PowerBalance, s.PowerBalance)
	r.Voltage = append(r.Voltage, s.Voltage)
	r.SoC = append(r.SoC, s.SoCPercent)
	r.Connectivity = append(r.Connectivity, s.Connectivity)
	r.ActiveFaults = append(r.ActiveFaults, s.ActiveFaults)
}

// Summary holds the day totals of one scenario run.
type Summary struct {
	RunID          string `json:"run_id"`
	Scenario       string `json:"scenario"`
	Description    string `json:"description"`
	PVEnabled      bool   `json:"pv_enabled"`
	BatteryEnabled bool   `json:"battery_enabled"`

	StabilityMinutes     int `json:"stability_minutes"`
	IslandedMinutes      int `json:"islanded_minutes"`
	IslandingTransitions int `json:"islanding_transitions"`
	DegradedSteps        int `json:"degraded_steps"`

	UnservedKWh         float64 `json:"unserved_kwh"`
	CurtailedKWh        float64 `json:"curtailed_kwh"`
	GridImportKWh       float64 `json:"grid_import_kwh"`
	GridExportKWh       float64 `json:"grid_export_kwh"`
	PVKWh               float64 `json:"pv_kwh"`
	BatteryDischargeKWh float64 `json:"battery_discharge_kwh"`
	BatteryChargeKWh    float64 `json:"battery_charge_kwh"`

	MinSoCPercent   *float64 `json:"min_soc_percent"`
	FinalSoCPercent *float64 `json:"final_soc_percent"`
	BatteryCycles   float64  `json:"battery_cycles"`

	// SoCBucketMinutes maps the lower edge of each 10 % SoC bucket to the
	// minutes spent in it.
	SoCBucketMinutes map[int]float64 `json:"soc_bucket_minutes,omitempty"`

	MinVoltage              float64 `json:"min_voltage"`
	MaxVoltage              float64 `json:"max_voltage"`
	VoltageViolationMinutes int     `json:"voltage_violation_minutes"`
}

// Run is a completed scenario.
type Run struct {
	ID       string         `json:"id"`
	Scenario ScenarioConfig `json:"scenario"`
	Series   *ResultSeries  `json:"series"`
	Summary  Summary        `json:"summary"`
}

// summarize folds a complete series into day totals.
func summarize(cfg ScenarioConfig, series *ResultSeries, reservePercent, nominalV, dtHours float64) Summary {
	s := Summary{
		Scenario:       cfg.Name,
		Description:    cfg.Description,
		PVEnabled:      cfg.HasPV,
		BatteryEnabled: cfg.HasBattery,
	}

	minV, maxV := math.Inf(1), math.Inf(-1)
	var minSoC *float64
	prev := model.GridConnected
	for i, pb := range series.PowerBalance {
		state := series.Connectivity[i]
		if state == model.Islanded {
			s.IslandedMinutes++
			if prev == model.GridConnected {
				s.IslandingTransitions++
			}
			if soc := series.SoC[i]; soc != nil && *soc > reservePercent+stabilityHysteresisPercent {
				s.StabilityMinutes++
			}
		}
		prev = state

		s.UnservedKWh += pb.UnservedKW * dtHours
		s.CurtailedKWh += pb.CurtailedKW * dtHours
		s.PVKWh += pb.PVKW * dtHours
		if pb.GridKW > 0 {
			s.GridImportKWh += pb.GridKW * dtHours
		} else {
			s.GridExportKWh += -pb.GridKW * dtHours
		}
		if pb.BatteryKW > 0 {
			s.BatteryDischargeKWh += pb.BatteryKW * dtHours
		} else {
			s.BatteryChargeKWh += -pb.BatteryKW * dtHours
		}

		if soc := series.SoC[i]; soc != nil && (minSoC == nil || *soc < *minSoC) {
			v := *soc
			minSoC = &v
		}

		v := series.Voltage[i]
		if v.Degraded {
			s.DegradedSteps++
		}
		if v.Energized && !v.Degraded {
			minV = math.Min(minV, v.Min)
			maxV = math.Max(maxV, v.Max)
		}
		if v.Energized && !v.Degraded && (v.Min < voltageLowPU*nominalV || v.Max > voltageHighPU*nominalV) {
			s.VoltageViolationMinutes++
		}
	}

	if !math.IsInf(minV, 0) {
		s.MinVoltage, s.MaxVoltage = minV, maxV
	}
	s.MinSoCPercent = minSoC
	if n := len(series.SoC); n > 0 && series.SoC[n-1] != nil {
		v := *series.SoC[n-1]
		s.FinalSoCPercent = &v
	}
	return s
}

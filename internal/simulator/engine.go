package simulator

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
	"gonum.org/v1/gonum/stat"

	"islanding_simulator/internal/model"
	"islanding_simulator/internal/powerflow"
)

// StepDuration is the simulated time covered by one step.
const StepDuration = time.Minute

// Callback receives simulation events. Implementations must be safe for
// concurrent use when scenarios run in parallel.
type Callback interface {
	OnStep(scenario string, step Step)
	OnScenarioDone(summary Summary)
}

// NopCallback discards all events.
type NopCallback struct{}

func (NopCallback) OnStep(string, Step) {}
func (NopCallback) OnScenarioDone(Summary) {}

// MultiCallback fans events out to several callbacks in order.
type MultiCallback []Callback

func (m MultiCallback) OnStep(scenario string, step Step) {
	for _, cb := range m {
		cb.OnStep(scenario, step)
	}
}

func (m MultiCallback) OnScenarioDone(summary Summary) {
	for _, cb := range m {
		cb.OnScenarioDone(summary)
	}
}

// Engine runs one scenario over its horizon. Each Run starts from fresh
// battery and result state, so repeated runs are identical.
type Engine struct {
	scenario ScenarioConfig
	env      Environment
	network  model.Network
	callback Callback
	log      *slog.Logger

	schedule   *FaultSchedule
	dispatcher *Dispatcher
	adapter    *powerflow.Adapter
	monitored  []string
}

// NewEngine validates the scenario against the environment. All
// configuration errors surface here, before any step runs.
func NewEngine(scenario ScenarioConfig, env Environment, cb Callback) (*Engine, error) {
	if err := scenario.validate(env); err != nil {
		return nil, err
	}
	if cb == nil {
		cb = NopCallback{}
	}

	network := env.Network
	if scenario.NominalVoltage > 0 {
		network.NominalVoltage = scenario.NominalVoltage
	}

	schedule, err := NewFaultSchedule(scenario.Faults)
	if err != nil {
		return nil, err
	}
	adapter, err := powerflow.NewAdapter(network, env.Solver, scenario.HasBattery)
	if err != nil {
		return nil, fmt.Errorf("%w: scenario %s: network: %v", ErrInvalidConfig, scenario.Name, err)
	}

	e := &Engine{
		scenario:  scenario,
		env:       env,
		network:   network,
		callback:  cb,
		log:       slog.Default().With("scenario", scenario.Name),
		schedule:  schedule,
		adapter:   adapter,
		monitored: network.MonitoredBuses(),
	}

	if scenario.HasBattery {
		if err := env.Battery.Validate(); err != nil {
			return nil, err
		}
		e.dispatcher, err = NewDispatcher(env.Dispatch, env.Battery, StepDuration)
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Run simulates every step and returns the complete run.
func (e *Engine) Run() (*Run, error) {
	var battery *Battery
	if e.scenario.HasBattery {
		b, err := NewBattery(e.env.Battery)
		if err != nil {
			return nil, err
		}
		battery = b
	}

	n := e.scenario.Duration()
	series := newResultSeries(n)
	pvShape := e.env.PVShapes[e.scenario.PVShape]

	e.log.Info("scenario started", "steps", n, "pv", e.scenario.HasPV, "battery", e.scenario.HasBattery,
		"islanded_spans", len(e.schedule.Spans()))

	var lastGood VoltageStats
	prevState := model.GridConnected
	for i := 0; i < n; i++ {
		state := e.schedule.StateAt(i)
		if state != prevState {
			e.log.Info("connectivity changed", "step", i, "clock", model.StepClock(i), "state", state.String())
			prevState = state
		}

		loadKW := e.env.BaselineLoadKW * e.env.LoadShape.At(i)
		var pvKW float64
		if e.scenario.HasPV {
			pvKW = e.env.BaselinePVKW * pvShape.At(i)
		}

		var batteryKW float64
		var soc *float64
		if battery != nil {
			cmd := e.dispatcher.Command(state, loadKW, pvKW, battery.SoCPercent())
			batteryKW = battery.Apply(cmd, StepDuration)
			v := battery.SoCPercent()
			soc = &v
		}

		pb := PowerBalance{LoadKW: loadKW, PVKW: pvKW, BatteryKW: batteryKW}
		residual := loadKW - pvKW - batteryKW
		switch {
		case state == model.GridConnected:
			pb.GridKW = residual
			pb.SupplyKW = math.Max(0, pvKW+batteryKW)
		case battery == nil:
			// Grid-following PV cannot form an island on its own.
			pb.UnservedKW = loadKW
			pb.CurtailedKW = pvKW
		case residual > 0:
			pb.UnservedKW = residual
			pb.SupplyKW = math.Max(0, pvKW+batteryKW)
		default:
			pb.CurtailedKW = -residual
			pb.SupplyKW = math.Max(0, pvKW+batteryKW)
		}

		res := e.adapter.Solve(state, powerflow.Injections{
			LoadKW:    loadKW - pb.UnservedKW,
			PVKW:      pvKW - pb.CurtailedKW,
			BatteryKW: batteryKW,
		})

		var vs VoltageStats
		if res.Converged {
			vs = e.voltageStats(res)
			lastGood = vs
		} else {
			vs = lastGood
			vs.Degraded = true
			vs.Iterations = res.Iterations
			e.log.Warn("power flow did not converge", "step", i, "iterations", res.Iterations)
		}

		step := Step{
			Index:        i,
			Clock:        model.StepClock(i),
			Connectivity: state,
			PowerBalance: pb,
			Voltage:      vs,
			SoCPercent:   soc,
			ActiveFaults: e.schedule.ActiveAt(i),
		}
		series.append(step)
		e.callback.OnStep(e.scenario.Name, step)
	}

	summary := summarize(e.scenario, series, e.env.Battery.ReservePercent, e.network.NominalVoltage, StepDuration.Hours())
	summary.RunID = uuid.NewString()
	if battery != nil {
		summary.BatteryCycles = battery.Cycles()
		summary.SoCBucketMinutes = battery.SoCHistogram()
	}

	e.log.Info("scenario done",
		"run_id", summary.RunID,
		"unserved_kwh", summary.UnservedKWh,
		"stability_minutes", summary.StabilityMinutes,
		"degraded_steps", summary.DegradedSteps)
	e.callback.OnScenarioDone(summary)

	return &Run{ID: summary.RunID, Scenario: e.scenario, Series: series, Summary: summary}, nil
}

func (e *Engine) voltageStats(res powerflow.Result) VoltageStats {
	vs := VoltageStats{Energized: res.Energized, Iterations: res.Iterations}
	values := make([]float64, 0, len(e.monitored))
	for _, id := range e.monitored {
		values = append(values, res.BusVoltages[id])
	}
	if len(values) == 0 {
		return vs
	}
	vs.Min, vs.Max = values[0], values[0]
	for _, v := range values[1:] {
		vs.Min = math.Min(vs.Min, v)
		vs.Max = math.Max(vs.Max, v)
	}
	vs.Mean = stat.Mean(values, nil)
	return vs
}

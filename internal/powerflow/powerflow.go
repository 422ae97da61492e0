// Package powerflow maps per-step injections onto the feeder and solves bus
// voltages. The solver is an interface so any engine honouring the Case and
// Result contract can replace the built-in nodal solver.
package powerflow

import (
	"islanding_simulator/internal/model"
)

// Case is one steady-state solve request.
type Case struct {
	Buses []string
	Lines []model.Line
	// InjectionsKW per bus, generation positive, load negative.
	InjectionsKW map[string]float64
	// SwingBus holds its voltage fixed. Empty means the network has no source.
	SwingBus     string
	SwingVoltage float64
}

// Result of a single solve. A solver reports failure through Converged and
// never panics on a bad case.
type Result struct {
	Converged   bool               `json:"converged"`
	Energized   bool               `json:"energized"`
	Iterations  int                `json:"iterations"`
	BusVoltages map[string]float64 `json:"bus_voltages"`
}

// Solver computes bus voltages for a case.
type Solver interface {
	Solve(c Case) Result
}

// Injections are the three per-step power terms produced by the driver.
type Injections struct {
	LoadKW    float64
	PVKW      float64
	BatteryKW float64
}

// Adapter binds a solver to a network and translates connectivity into the
// choice of grid-forming source.
type Adapter struct {
	network    model.Network
	solver     Solver
	hasBattery bool
	buses      []string
	shares     float64
}

// NewAdapter validates the network once so per-step solves cannot fail on
// topology. hasBattery tells the adapter whether the battery bus can form
// the grid while islanded.
func NewAdapter(network model.Network, solver Solver, hasBattery bool) (*Adapter, error) {
	if err := network.Validate(); err != nil {
		return nil, err
	}
	a := &Adapter{network: network, solver: solver, hasBattery: hasBattery}
	for _, b := range network.Buses {
		a.buses = append(a.buses, b.ID)
		a.shares += b.LoadShare
	}
	return a, nil
}

// Solve places the injections and runs the solver. While islanded the
// upstream source is disconnected and the battery bus forms the grid; an
// island with no battery has no source and comes back de-energized.
func (a *Adapter) Solve(state model.Connectivity, inj Injections) Result {
	c := Case{
		Buses:        a.buses,
		Lines:        a.network.Lines,
		InjectionsKW: make(map[string]float64, len(a.buses)),
	}
	for _, b := range a.network.Buses {
		c.InjectionsKW[b.ID] = -inj.LoadKW * b.LoadShare / a.shares
	}
	c.InjectionsKW[a.network.PVBus] += inj.PVKW
	c.InjectionsKW[a.network.BatteryBus] += inj.BatteryKW

	nominal := a.network.NominalVoltage
	switch {
	case state == model.GridConnected:
		c.SwingBus = a.network.SourceBus
		c.SwingVoltage = a.network.SourceVoltagePU * nominal
	case a.hasBattery:
		c.SwingBus = a.network.BatteryBus
		c.SwingVoltage = nominal
	default:
		return deenergized(a.network)
	}
	return a.solver.Solve(c)
}

func deenergized(network model.Network) Result {
	v := make(map[string]float64, len(network.Buses))
	for _, b := range network.Buses {
		v[b.ID] = 0
	}
	return Result{Converged: true, Energized: false, BusVoltages: v}
}

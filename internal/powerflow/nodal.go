package powerflow

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	DefaultMaxIterations = 50
	DefaultToleranceV    = 1e-6
)

// NodalSolver is a single-phase DC equivalent of the feeder. Lines are
// conductances, loads and sources are constant-power injections turned into
// currents by fixed-point iteration around one LU factorisation.
//
// The solver keeps no state between calls and is safe for concurrent use.
type NodalSolver struct {
	MaxIterations int
	ToleranceV    float64
}

func NewNodalSolver() *NodalSolver {
	return &NodalSolver{MaxIterations: DefaultMaxIterations, ToleranceV: DefaultToleranceV}
}

// Solve implements Solver.
func (s *NodalSolver) Solve(c Case) Result {
	if c.SwingBus == "" || c.SwingVoltage <= 0 {
		return Result{Converged: false, BusVoltages: map[string]float64{}}
	}

	// Index every non-swing bus.
	index := make(map[string]int, len(c.Buses))
	var free []string
	for _, id := range c.Buses {
		if id == c.SwingBus {
			continue
		}
		index[id] = len(free)
		free = append(free, id)
	}

	voltages := map[string]float64{c.SwingBus: c.SwingVoltage}
	n := len(free)
	if n == 0 {
		return Result{Converged: true, Energized: true, BusVoltages: voltages}
	}

	g := mat.NewDense(n, n, nil)
	fixed := mat.NewVecDense(n, nil)
	for _, l := range c.Lines {
		cond := 1 / l.ResistanceOhm
		i, iFree := index[l.From]
		j, jFree := index[l.To]
		switch {
		case iFree && jFree:
			stampConductance(g, i, j, cond)
		case iFree && l.To == c.SwingBus:
			g.Set(i, i, g.At(i, i)+cond)
			fixed.SetVec(i, fixed.AtVec(i)+cond*c.SwingVoltage)
		case jFree && l.From == c.SwingBus:
			g.Set(j, j, g.At(j, j)+cond)
			fixed.SetVec(j, fixed.AtVec(j)+cond*c.SwingVoltage)
		}
	}

	var lu mat.LU
	lu.Factorize(g)

	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	tol := s.ToleranceV
	if tol <= 0 {
		tol = DefaultToleranceV
	}

	v := mat.NewVecDense(n, nil)
	for k := 0; k < n; k++ {
		v.SetVec(k, c.SwingVoltage)
	}
	rhs := mat.NewVecDense(n, nil)
	next := mat.NewVecDense(n, nil)

	for iter := 1; iter <= maxIter; iter++ {
		for k, id := range free {
			// kW to A at the present bus voltage
			rhs.SetVec(k, fixed.AtVec(k)+c.InjectionsKW[id]*1000/v.AtVec(k))
		}
		if err := lu.SolveVecTo(next, false, rhs); err != nil {
			return Result{Converged: false, Iterations: iter, BusVoltages: voltages}
		}

		var delta float64
		for k := 0; k < n; k++ {
			x := next.AtVec(k)
			if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
				return Result{Converged: false, Iterations: iter, BusVoltages: voltages}
			}
			delta = math.Max(delta, math.Abs(x-v.AtVec(k)))
		}
		v.CopyVec(next)

		if delta < tol {
			for k, id := range free {
				voltages[id] = v.AtVec(k)
			}
			return Result{Converged: true, Energized: true, Iterations: iter, BusVoltages: voltages}
		}
	}
	return Result{Converged: false, Iterations: maxIter, BusVoltages: voltages}
}

func stampConductance(g *mat.Dense, i, j int, cond float64) {
	g.Set(i, i, g.At(i, i)+cond)
	g.Set(j, j, g.At(j, j)+cond)
	g.Set(i, j, g.At(i, j)-cond)
	g.Set(j, i, g.At(j, i)-cond)
}

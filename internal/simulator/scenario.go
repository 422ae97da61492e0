package simulator

import (
	"fmt"

	"islanding_simulator/internal/model"
	"islanding_simulator/internal/powerflow"
)

// ScenarioConfig describes one islanding scenario.
type ScenarioConfig struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	HasPV       bool               `json:"has_pv" yaml:"has_pv"`
	HasBattery  bool               `json:"has_battery" yaml:"has_battery"`
	PVShape     string             `json:"pv_shape" yaml:"pv_shape"`
	Faults      []model.FaultEvent `json:"faults" yaml:"faults"`
	// DurationSteps defaults to a full day when zero.
	DurationSteps int `json:"duration_steps" yaml:"duration_steps"`
	// NominalVoltage overrides the network nominal when positive.
	NominalVoltage float64 `json:"nominal_voltage" yaml:"nominal_voltage"`
}

// Duration returns the number of steps to simulate.
func (c ScenarioConfig) Duration() int {
	if c.DurationSteps == 0 {
		return model.StepsPerDay
	}
	return c.DurationSteps
}

// Environment is the scenario-independent input shared read-only by every
// run: topology, ratings, shapes and the solver.
type Environment struct {
	Network        model.Network
	Battery        BatteryConfig
	Dispatch       DispatchConfig
	BaselineLoadKW float64
	BaselinePVKW   float64
	LoadShape      model.Shape
	PVShapes       map[string]model.Shape
	// Solver must be safe for concurrent use when scenarios run in parallel.
	Solver powerflow.Solver
}

// validate checks the scenario against the environment. Every error wraps
// ErrInvalidConfig.
func (c ScenarioConfig) validate(env Environment) error {
	if c.Name == "" {
		return fmt.Errorf("%w: scenario name is empty", ErrInvalidConfig)
	}
	n := c.Duration()
	if n < 1 || n > model.StepsPerDay {
		return fmt.Errorf("%w: scenario %s: duration_steps must be in [1, %d], got %d",
			ErrInvalidConfig, c.Name, model.StepsPerDay, n)
	}
	if env.Solver == nil {
		return fmt.Errorf("%w: scenario %s: no power-flow solver", ErrInvalidConfig, c.Name)
	}
	if env.BaselineLoadKW < 0 || env.BaselinePVKW < 0 {
		return fmt.Errorf("%w: scenario %s: baseline ratings must be non-negative", ErrInvalidConfig, c.Name)
	}
	if err := env.LoadShape.Validate(model.StepsPerDay); err != nil {
		return fmt.Errorf("%w: scenario %s: load shape: %v", ErrInvalidConfig, c.Name, err)
	}
	if c.HasPV {
		shape, ok := env.PVShapes[c.PVShape]
		if !ok {
			return fmt.Errorf("%w: scenario %s: unknown pv shape %q", ErrInvalidConfig, c.Name, c.PVShape)
		}
		if err := shape.Validate(model.StepsPerDay); err != nil {
			return fmt.Errorf("%w: scenario %s: pv shape %s: %v", ErrInvalidConfig, c.Name, c.PVShape, err)
		}
	}
	if c.NominalVoltage < 0 {
		return fmt.Errorf("%w: scenario %s: nominal_voltage must be positive", ErrInvalidConfig, c.Name)
	}
	return nil
}

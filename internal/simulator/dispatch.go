package simulator

import (
	"fmt"
	"math"
	"time"

	"islanding_simulator/internal/model"
)

// Policy selects the battery behaviour while the grid is connected.
type Policy string

const (
	// PolicyIdle keeps the battery idle until the network islands.
	PolicyIdle Policy = "idle"
	// PolicyPVCharge charges at a fixed rate from PV surplus before a fault.
	PolicyPVCharge Policy = "pv_charge"
	// PolicyTargetSoC charges toward a setpoint so the battery meets the
	// fault with a known reserve.
	PolicyTargetSoC Policy = "target_soc"
)

// DispatchConfig holds the grid-connected policy parameters. While islanded
// every policy covers the net load exactly.
type DispatchConfig struct {
	Policy              Policy  `json:"policy" yaml:"policy"`
	PVChargeKW          float64 `json:"pv_charge_kw" yaml:"pv_charge_kw"`
	PVChargeMinKW       float64 `json:"pv_charge_min_kw" yaml:"pv_charge_min_kw"`
	SoCMaxChargePercent float64 `json:"soc_max_charge_percent" yaml:"soc_max_charge_percent"`
	TargetSoCPercent    float64 `json:"target_soc_percent" yaml:"target_soc_percent"`
}

// DefaultDispatchConfig returns the idle policy with the pre-charge
// parameters used by the pv_charge variant.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Policy:              PolicyIdle,
		PVChargeKW:          10,
		PVChargeMinKW:       2,
		SoCMaxChargePercent: 95,
		TargetSoCPercent:    90,
	}
}

// Validate rejects unknown policies and out-of-range setpoints.
func (c DispatchConfig) Validate() error {
	switch c.Policy {
	case PolicyIdle:
	case PolicyPVCharge:
		if c.PVChargeKW <= 0 || c.PVChargeMinKW < 0 {
			return fmt.Errorf("%w: pv_charge needs pv_charge_kw > 0 and pv_charge_min_kw >= 0", ErrInvalidConfig)
		}
		if c.SoCMaxChargePercent <= 0 || c.SoCMaxChargePercent > 100 {
			return fmt.Errorf("%w: soc_max_charge_percent must be in (0, 100], got %v", ErrInvalidConfig, c.SoCMaxChargePercent)
		}
	case PolicyTargetSoC:
		if c.TargetSoCPercent <= 0 || c.TargetSoCPercent > 100 {
			return fmt.Errorf("%w: target_soc_percent must be in (0, 100], got %v", ErrInvalidConfig, c.TargetSoCPercent)
		}
	default:
		return fmt.Errorf("%w: unknown dispatch policy %q", ErrInvalidConfig, c.Policy)
	}
	return nil
}

// Dispatcher computes the battery power command for a step.
type Dispatcher struct {
	config  DispatchConfig
	battery BatteryConfig
	step    time.Duration
}

func NewDispatcher(cfg DispatchConfig, battery BatteryConfig, step time.Duration) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{config: cfg, battery: battery, step: step}, nil
}

// Command returns the requested battery power (positive = discharge). The
// battery clamps it; the dispatcher does not anticipate limits.
func (d *Dispatcher) Command(state model.Connectivity, loadKW, pvKW, socPercent float64) float64 {
	if state == model.Islanded {
		// Cover the net load exactly; a negative deficit charges from PV surplus.
		return loadKW - pvKW
	}

	switch d.config.Policy {
	case PolicyPVCharge:
		if pvKW > d.config.PVChargeMinKW && socPercent < d.config.SoCMaxChargePercent {
			return -d.config.PVChargeKW
		}
	case PolicyTargetSoC:
		if socPercent >= d.config.TargetSoCPercent {
			return 0
		}
		// Energy drawn that would land exactly on the target this step
		neededKWh := (d.config.TargetSoCPercent - socPercent) / 100 * d.battery.CapacityKWh / d.battery.RoundTripEfficiency
		return -math.Min(d.battery.MaxChargeKW, neededKWh/d.step.Hours())
	}
	return 0
}

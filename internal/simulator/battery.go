package simulator

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig is wrapped by every configuration error raised at
// scenario setup.
var ErrInvalidConfig = errors.New("invalid configuration")

// energyEpsilonKWh is the residual energy treated as an empty (or full) battery.
const energyEpsilonKWh = 1e-9

// BatteryConfig holds the user-configurable parameters.
type BatteryConfig struct {
	CapacityKWh         float64 `json:"capacity_kwh" yaml:"capacity_kwh"`
	MaxChargeKW         float64 `json:"max_charge_kw" yaml:"max_charge_kw"`
	MaxDischargeKW      float64 `json:"max_discharge_kw" yaml:"max_discharge_kw"`
	ReservePercent      float64 `json:"reserve_percent" yaml:"reserve_percent"`
	InitialSoCPercent   float64 `json:"initial_soc_percent" yaml:"initial_soc_percent"`
	RoundTripEfficiency float64 `json:"round_trip_efficiency" yaml:"round_trip_efficiency"`
}

// Validate reports the first parameter that makes the battery unusable.
func (c BatteryConfig) Validate() error {
	switch {
	case !(c.CapacityKWh > 0):
		return fmt.Errorf("%w: capacity_kwh must be positive, got %v", ErrInvalidConfig, c.CapacityKWh)
	case !(c.MaxChargeKW > 0):
		return fmt.Errorf("%w: max_charge_kw must be positive, got %v", ErrInvalidConfig, c.MaxChargeKW)
	case !(c.MaxDischargeKW > 0):
		return fmt.Errorf("%w: max_discharge_kw must be positive, got %v", ErrInvalidConfig, c.MaxDischargeKW)
	case !(c.ReservePercent >= 0 && c.ReservePercent < 100):
		return fmt.Errorf("%w: reserve_percent must be in [0, 100), got %v", ErrInvalidConfig, c.ReservePercent)
	case !(c.RoundTripEfficiency > 0 && c.RoundTripEfficiency <= 1):
		return fmt.Errorf("%w: round_trip_efficiency must be in (0, 1], got %v", ErrInvalidConfig, c.RoundTripEfficiency)
	case !(c.InitialSoCPercent >= c.ReservePercent && c.InitialSoCPercent <= 100):
		return fmt.Errorf("%w: initial_soc_percent must be in [%v, 100], got %v",
			ErrInvalidConfig, c.ReservePercent, c.InitialSoCPercent)
	}
	return nil
}

// Battery simulates the mobile battery energy storage system.
// Power sign convention: positive = discharging, negative = charging.
type Battery struct {
	config BatteryConfig

	// State
	socPercent float64

	// Stats
	TotalThroughputKWh float64
	TimeAtSoCPctMin    map[int]float64 // 10% buckets
}

// NewBattery creates a battery at its initial SoC. Invalid parameters fail
// here, never per step.
func NewBattery(cfg BatteryConfig) (*Battery, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Battery{
		config:          cfg,
		socPercent:      cfg.InitialSoCPercent,
		TimeAtSoCPctMin: make(map[int]float64),
	}, nil
}

// SoCPercent returns the current state of charge.
func (b *Battery) SoCPercent() float64 { return b.socPercent }

// Apply executes a power command for dt and returns the power actually
// delivered (positive) or absorbed (negative) after clamping to the rate
// limits, the reserve floor and the full ceiling.
func (b *Battery) Apply(commandKW float64, dt time.Duration) float64 {
	hours := dt.Hours()
	if hours <= 0 || math.IsNaN(commandKW) {
		return 0
	}

	b.recordStats(dt.Minutes())

	capacity := b.config.CapacityKWh
	powerKW := math.Max(-b.config.MaxChargeKW, math.Min(commandKW, b.config.MaxDischargeKW))

	if powerKW > 0 {
		// Discharging: don't go below reserve
		availableKWh := (b.socPercent - b.config.ReservePercent) / 100 * capacity
		if availableKWh <= energyEpsilonKWh {
			powerKW = 0
		} else if powerKW*hours > availableKWh {
			powerKW = availableKWh / hours
		}
		energyKWh := powerKW * hours
		b.socPercent -= energyKWh / capacity * 100
		b.TotalThroughputKWh += energyKWh
	} else if powerKW < 0 {
		// Charging: only the efficiency share of the energy is stored
		eff := b.config.RoundTripEfficiency
		headroomKWh := (100 - b.socPercent) / 100 * capacity
		if headroomKWh <= energyEpsilonKWh {
			powerKW = 0
		} else if -powerKW*hours*eff > headroomKWh {
			powerKW = -headroomKWh / (hours * eff)
		}
		energyKWh := -powerKW * hours
		b.socPercent += energyKWh * eff / capacity * 100
		b.TotalThroughputKWh += energyKWh
	}

	// Absorb floating point drift at the limits.
	b.socPercent = math.Max(b.config.ReservePercent, math.Min(b.socPercent, 100))
	return powerKW
}

// recordStats accumulates the time-at-SoC histogram for the SoC held
// at the start of the step.
func (b *Battery) recordStats(dtMin float64) {
	bucket := int(math.Floor(b.socPercent/10)) * 10
	if bucket > 100 {
		bucket = 100
	}
	if bucket < 0 {
		bucket = 0
	}
	b.TimeAtSoCPctMin[bucket] += dtMin
}

// Cycles returns the equivalent full cycle count.
func (b *Battery) Cycles() float64 {
	if b.config.CapacityKWh <= 0 {
		return 0
	}
	return b.TotalThroughputKWh / 2 / b.config.CapacityKWh
}

// SoCHistogram returns a copy of the minutes spent in each 10 % SoC bucket.
func (b *Battery) SoCHistogram() map[int]float64 {
	h := make(map[int]float64, len(b.TimeAtSoCPctMin))
	for k, v := range b.TimeAtSoCPctMin {
		h[k] = v
	}
	return h
}

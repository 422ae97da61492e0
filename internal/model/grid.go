package model

import (
	"encoding/json"
	"fmt"
)

// Connectivity is the derived network state for a single step.
type Connectivity int

const (
	GridConnected Connectivity = iota
	Islanded
)

func (c Connectivity) String() string {
	switch c {
	case GridConnected:
		return "grid_connected"
	case Islanded:
		return "islanded"
	default:
		return "unknown"
	}
}

func (c Connectivity) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Connectivity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "grid_connected":
		*c = GridConnected
	case "islanded":
		*c = Islanded
	default:
		return fmt.Errorf("unknown connectivity %q", s)
	}
	return nil
}

// FaultEvent is a closed step interval during which a network element is out
// of service. Only events with AffectsConnectivity island the microgrid.
type FaultEvent struct {
	Name                string `json:"name" yaml:"name"`
	StartStep           int    `json:"start_step" yaml:"start_step"`
	EndStep             int    `json:"end_step" yaml:"end_step"` // inclusive
	AffectsConnectivity bool   `json:"affects_connectivity" yaml:"affects_connectivity"`
}

// Active reports whether the event covers the given step.
func (f FaultEvent) Active(step int) bool {
	return step >= f.StartStep && step <= f.EndStep
}

// Bus is a node of the LV feeder. LoadShare is the fraction of the total
// feeder load drawn at this bus; buses with a positive share are monitored.
type Bus struct {
	ID        string  `json:"id" yaml:"id"`
	LoadShare float64 `json:"load_share" yaml:"load_share"`
}

// Line is a resistive branch between two buses.
type Line struct {
	ID            string  `json:"id" yaml:"id"`
	From          string  `json:"from" yaml:"from"`
	To            string  `json:"to" yaml:"to"`
	ResistanceOhm float64 `json:"resistance_ohm" yaml:"resistance_ohm"`
}

// Network is the static topology of the microgrid.
type Network struct {
	NominalVoltage  float64 `json:"nominal_voltage" yaml:"nominal_voltage"`
	SourceVoltagePU float64 `json:"source_voltage_pu" yaml:"source_voltage_pu"`
	SourceBus       string  `json:"source_bus" yaml:"source_bus"`
	BatteryBus      string  `json:"battery_bus" yaml:"battery_bus"`
	PVBus           string  `json:"pv_bus" yaml:"pv_bus"`
	Buses           []Bus   `json:"buses" yaml:"buses"`
	Lines           []Line  `json:"lines" yaml:"lines"`
}

// MonitoredBuses returns the IDs of all buses that carry load, in order.
func (n Network) MonitoredBuses() []string {
	var ids []string
	for _, b := range n.Buses {
		if b.LoadShare > 0 {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

func (n Network) hasBus(id string) bool {
	for _, b := range n.Buses {
		if b.ID == id {
			return true
		}
	}
	return false
}

// Validate checks that the topology is internally consistent.
func (n Network) Validate() error {
	if n.NominalVoltage <= 0 {
		return fmt.Errorf("nominal_voltage must be positive, got %v", n.NominalVoltage)
	}
	if n.SourceVoltagePU <= 0 {
		return fmt.Errorf("source_voltage_pu must be positive, got %v", n.SourceVoltagePU)
	}
	seen := make(map[string]bool, len(n.Buses))
	var share float64
	for _, b := range n.Buses {
		if b.ID == "" {
			return fmt.Errorf("bus with empty id")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate bus %q", b.ID)
		}
		if b.LoadShare < 0 {
			return fmt.Errorf("bus %q has negative load share", b.ID)
		}
		seen[b.ID] = true
		share += b.LoadShare
	}
	if share <= 0 {
		return fmt.Errorf("no bus carries load")
	}
	for _, id := range []string{n.SourceBus, n.BatteryBus, n.PVBus} {
		if !n.hasBus(id) {
			return fmt.Errorf("unknown bus %q", id)
		}
	}
	for _, l := range n.Lines {
		if !seen[l.From] || !seen[l.To] {
			return fmt.Errorf("line %q references unknown bus", l.ID)
		}
		if l.From == l.To {
			return fmt.Errorf("line %q is a self loop", l.ID)
		}
		if l.ResistanceOhm <= 0 {
			return fmt.Errorf("line %q must have positive resistance", l.ID)
		}
	}
	return nil
}

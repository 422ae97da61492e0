package config

import (
	"fmt"

	"islanding_simulator/internal/model"
	"islanding_simulator/internal/powerflow"
	"islanding_simulator/internal/simulator"
	"islanding_simulator/internal/solar"
)

const (
	defaultHomes          = 10
	defaultSegmentOhm     = 0.02
	defaultBatteryLinkOhm = 0.01
)

// Default returns the four canonical islanding scenarios on the ten-home
// feeder.
func Default() *Config {
	return &Config{
		Network: DefaultNetwork(),
		Battery: simulator.BatteryConfig{
			CapacityKWh:         60,
			MaxChargeKW:         20,
			MaxDischargeKW:      30,
			ReservePercent:      20,
			InitialSoCPercent:   80,
			RoundTripEfficiency: 0.92,
		},
		Dispatch: simulator.DefaultDispatchConfig(),
		Solver: SolverConfig{
			MaxIterations: powerflow.DefaultMaxIterations,
			ToleranceV:    powerflow.DefaultToleranceV,
		},
		BaselineLoadKW: 15,
		BaselinePVKW:   12,
		Scenarios:      DefaultScenarios(),
	}
}

// DefaultNetwork chains the homes on one radial feeder from the LV board,
// with PV at the far end and the mobile battery next to the board.
func DefaultNetwork() model.Network {
	n := model.Network{
		NominalVoltage:  230,
		SourceVoltagePU: 1,
		SourceBus:       "lv_board",
		BatteryBus:      "mbs",
		PVBus:           fmt.Sprintf("home%d", defaultHomes),
		Buses:           []model.Bus{{ID: "lv_board"}, {ID: "mbs"}},
		Lines: []model.Line{
			{ID: "mbs_link", From: "lv_board", To: "mbs", ResistanceOhm: defaultBatteryLinkOhm},
		},
	}
	prev := "lv_board"
	for i := 1; i <= defaultHomes; i++ {
		id := fmt.Sprintf("home%d", i)
		n.Buses = append(n.Buses, model.Bus{ID: id, LoadShare: 1.0 / defaultHomes})
		n.Lines = append(n.Lines, model.Line{
			ID:            fmt.Sprintf("seg%d", i),
			From:          prev,
			To:            id,
			ResistanceOhm: defaultSegmentOhm,
		})
		prev = id
	}
	return n
}

// DefaultScenarios returns the canonical scenarios in run order.
func DefaultScenarios() []simulator.ScenarioConfig {
	return []simulator.ScenarioConfig{
		{
			Name:        "scenario_1_no_support",
			Description: "Fault causes islanding with no PV or BESS support.",
			PVShape:     solar.Cloudy,
			Faults: []model.FaultEvent{
				{Name: "sw2_fault", StartStep: 120, EndStep: 399, AffectsConnectivity: true},
			},
		},
		{
			Name:        "scenario_2_bess_only",
			Description: "Fault + island support using BESS only (PV disabled).",
			HasBattery:  true,
			PVShape:     solar.Cloudy,
			Faults: []model.FaultEvent{
				{Name: "sw2_fault", StartStep: 120, EndStep: 399, AffectsConnectivity: true},
			},
		},
		{
			Name:        "scenario_3_pv_bess_synergy",
			Description: "Fault + island support using PV and BESS together.",
			HasPV:       true,
			HasBattery:  true,
			PVShape:     solar.Clear,
			Faults: []model.FaultEvent{
				{Name: "sw2_mbs_s2_fault", StartStep: 120, EndStep: 399, AffectsConnectivity: true},
			},
		},
		{
			Name:        "scenario_4_distributed_faults",
			Description: "Multiple faults across the day with PV and BESS support.",
			HasPV:       true,
			HasBattery:  true,
			PVShape:     solar.Clear,
			Faults: []model.FaultEvent{
				{Name: "sw2_fault", StartStep: 300, EndStep: 699, AffectsConnectivity: true},
				{Name: "sw4_lateral_fault", StartStep: 720, EndStep: 919},
				{Name: "mbs_s2_fault", StartStep: 920, EndStep: 1439, AffectsConnectivity: true},
			},
		},
	}
}

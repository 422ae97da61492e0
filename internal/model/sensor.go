package model

import "time"

type SensorType string

const (
	SensorGridPower   SensorType = "grid_power"
	SensorPVPower     SensorType = "pv_power"
	SensorLoadPower   SensorType = "load_power"
	SensorGridVoltage SensorType = "grid_voltage"
)

// SensorInfo holds display name and unit for a sensor type.
type SensorInfo struct {
	Name string
	Unit string
}

// SensorCatalog maps every known SensorType to its display name and unit.
var SensorCatalog = map[SensorType]SensorInfo{
	SensorGridPower:   {Name: "Grid Power", Unit: "W"},
	SensorPVPower:     {Name: "PV Power", Unit: "W"},
	SensorLoadPower:   {Name: "Load Power", Unit: "W"},
	SensorGridVoltage: {Name: "Grid Voltage", Unit: "V"},
}

// Reading is a single measured sample, used to derive shapes from field data.
type Reading struct {
	Timestamp time.Time
	SensorID  string
	Type      SensorType
	Value     float64
	Unit      string
}

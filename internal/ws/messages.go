package ws

import (
	"encoding/json"

	"islanding_simulator/internal/simulator"
)

// Message types.
const (
	// Client -> Server
	TypeScenarioRun = "scenario:run"
	TypeResultsGet  = "results:get"

	// Server -> Client
	TypeScenarioList  = "scenario:list"
	TypeScenarioStep  = "scenario:step"
	TypeScenarioDone  = "scenario:done"
	TypeScenarioError = "scenario:error"
	TypeResultsData   = "results:data"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> Server messages

// ScenarioRunPayload selects scenarios by name, 1-based index or "all".
type ScenarioRunPayload struct {
	Scenarios []string `json:"scenarios"`
}

// ResultsGetPayload asks for steps [From, To) of a stored run. A zero To
// means the end of the run.
type ResultsGetPayload struct {
	Scenario string `json:"scenario"`
	From     int    `json:"from"`
	To       int    `json:"to"`
}

// Server -> Client messages

type ScenarioInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	HasPV       bool   `json:"has_pv"`
	HasBattery  bool   `json:"has_battery"`
	Faults      int    `json:"faults"`
}

type ScenarioListPayload struct {
	Scenarios []ScenarioInfo `json:"scenarios"`
	// Stored lists scenarios with results available through results:get.
	Stored []string `json:"stored"`
}

type ScenarioStepPayload struct {
	Scenario string         `json:"scenario"`
	Step     simulator.Step `json:"step"`
}

type ScenarioErrorPayload struct {
	Scenario string `json:"scenario,omitempty"`
	Error    string `json:"error"`
}

type ResultsDataPayload struct {
	Scenario string            `json:"scenario"`
	From     int               `json:"from"`
	To       int               `json:"to"`
	Steps    []simulator.Step  `json:"steps"`
	Summary  simulator.Summary `json:"summary"`
}

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func scenarioInfos(scenarios []simulator.ScenarioConfig) []ScenarioInfo {
	infos := make([]ScenarioInfo, len(scenarios))
	for i, sc := range scenarios {
		infos[i] = ScenarioInfo{
			Name:        sc.Name,
			Description: sc.Description,
			HasPV:       sc.HasPV,
			HasBattery:  sc.HasBattery,
			Faults:      len(sc.Faults),
		}
	}
	return infos
}

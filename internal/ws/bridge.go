package ws

import (
	"golang.org/x/exp/slog"

	"islanding_simulator/internal/simulator"
)

// Bridge implements simulator.Callback and broadcasts run progress to the
// WebSocket hub.
type Bridge struct {
	hub       *Hub
	// StepEvery thins the step stream: only every n-th step is broadcast.
	// The last step of a run always goes out with scenario:done.
	StepEvery int
}

func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub, StepEvery: 1}
}

func (b *Bridge) OnStep(scenario string, step simulator.Step) {
	if b.StepEvery > 1 && step.Index%b.StepEvery != 0 {
		return
	}
	b.broadcast(TypeScenarioStep, ScenarioStepPayload{Scenario: scenario, Step: step})
}

func (b *Bridge) OnScenarioDone(s simulator.Summary) {
	b.broadcast(TypeScenarioDone, s)
}

// OnError reports a scenario that could not run.
func (b *Bridge) OnError(scenario string, err error) {
	b.broadcast(TypeScenarioError, ScenarioErrorPayload{Scenario: scenario, Error: err.Error()})
}

func (b *Bridge) broadcast(msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		slog.Default().Error("marshal message", "type", msgType, "error", err)
		return
	}
	b.hub.Broadcast(msg)
}

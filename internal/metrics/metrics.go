// Package metrics exposes scenario results as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"islanding_simulator/internal/simulator"
)

// Recorder implements simulator.Callback. Gauges hold the latest completed
// run of each scenario; the step counter accumulates across runs.
type Recorder struct {
	unservedKWh      *prometheus.GaugeVec
	stabilityMinutes *prometheus.GaugeVec
	degradedSteps    *prometheus.GaugeVec
	minVoltage       *prometheus.GaugeVec
	finalSoC         *prometheus.GaugeVec
	steps            *prometheus.CounterVec
}

// NewRecorder registers the metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		unservedKWh: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_unserved_kwh",
			Help: "Unserved energy over the simulated day in kWh.",
		}, []string{"scenario"}),
		stabilityMinutes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_stability_minutes",
			Help: "Islanded minutes with battery SoC above reserve plus hysteresis.",
		}, []string{"scenario"}),
		degradedSteps: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_degraded_steps",
			Help: "Steps whose power-flow solve did not converge.",
		}, []string{"scenario"}),
		minVoltage: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_min_voltage_volts",
			Help: "Lowest energized monitored bus voltage of the day.",
		}, []string{"scenario"}),
		finalSoC: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_final_soc_percent",
			Help: "Battery state of charge at the end of the day.",
		}, []string{"scenario"}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "microgrid_steps_total",
			Help: "Simulated steps by connectivity state.",
		}, []string{"scenario", "connectivity"}),
	}
}

func (r *Recorder) OnStep(scenario string, step simulator.Step) {
	r.steps.WithLabelValues(scenario, step.Connectivity.String()).Inc()
}

func (r *Recorder) OnScenarioDone(s simulator.Summary) {
	r.unservedKWh.WithLabelValues(s.Scenario).Set(s.UnservedKWh)
	r.stabilityMinutes.WithLabelValues(s.Scenario).Set(float64(s.StabilityMinutes))
	r.degradedSteps.WithLabelValues(s.Scenario).Set(float64(s.DegradedSteps))
	r.minVoltage.WithLabelValues(s.Scenario).Set(s.MinVoltage)
	if s.FinalSoCPercent != nil {
		r.finalSoC.WithLabelValues(s.Scenario).Set(*s.FinalSoCPercent)
	}
}

// HubStats is the view of the WebSocket hub exported as metrics.
type HubStats interface {
	ClientCount() int
	Dropped() int
}

// RegisterHub exports the client count and dropped messages of hub.
func RegisterHub(reg prometheus.Registerer, hub HubStats) {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "microgrid_ws_clients",
		Help: "Connected WebSocket clients.",
	}, func() float64 { return float64(hub.ClientCount()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "microgrid_ws_dropped_messages_total",
		Help: "Broadcast messages skipped because a client queue was full.",
	}, func() float64 { return float64(hub.Dropped()) })
}

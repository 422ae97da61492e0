package simulator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"islanding_simulator/internal/model"
	"islanding_simulator/internal/powerflow"
)

type mockCallback struct {
	mu        sync.Mutex
	steps     map[string][]Step
	summaries []Summary
}

func newMockCallback() *mockCallback {
	return &mockCallback{steps: make(map[string][]Step)}
}

func (m *mockCallback) OnStep(scenario string, s Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[scenario] = append(m.steps[scenario], s)
}

func (m *mockCallback) OnScenarioDone(s Summary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, s)
}

func (m *mockCallback) stepCount(scenario string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps[scenario])
}

// flakySolver converges on the first call only.
type flakySolver struct {
	mu    sync.Mutex
	calls int
}

func (s *flakySolver) Solve(c powerflow.Case) powerflow.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls > 1 {
		return powerflow.Result{Converged: false, Iterations: 50}
	}
	v := make(map[string]float64, len(c.Buses))
	for _, id := range c.Buses {
		v[id] = 228
	}
	return powerflow.Result{Converged: true, Energized: true, Iterations: 3, BusVoltages: v}
}

func flatShape(v float64) model.Shape {
	s := make(model.Shape, model.StepsPerDay)
	for i := range s {
		s[i] = v
	}
	return s
}

func testNetwork() model.Network {
	n := model.Network{
		NominalVoltage:  230,
		SourceVoltagePU: 1,
		SourceBus:       "lv_board",
		BatteryBus:      "mbs",
		PVBus:           "home3",
		Buses:           []model.Bus{{ID: "lv_board"}, {ID: "mbs"}},
		Lines:           []model.Line{{ID: "mbs_link", From: "lv_board", To: "mbs", ResistanceOhm: 0.01}},
	}
	prev := "lv_board"
	for _, id := range []string{"home1", "home2", "home3"} {
		n.Buses = append(n.Buses, model.Bus{ID: id, LoadShare: 1})
		n.Lines = append(n.Lines, model.Line{ID: prev + "_" + id, From: prev, To: id, ResistanceOhm: 0.02})
		prev = id
	}
	return n
}

func testEnv() Environment {
	pv := make(model.Shape, model.StepsPerDay)
	for i := 360; i < 1080; i++ {
		pv[i] = 1
	}
	return Environment{
		Network: testNetwork(),
		Battery: BatteryConfig{
			CapacityKWh:         60,
			MaxChargeKW:         20,
			MaxDischargeKW:      30,
			ReservePercent:      20,
			InitialSoCPercent:   80,
			RoundTripEfficiency: 0.92,
		},
		Dispatch:       DefaultDispatchConfig(),
		BaselineLoadKW: 15,
		BaselinePVKW:   12,
		LoadShape:      flatShape(1),
		PVShapes:       map[string]model.Shape{"clear": pv, "cloudy": flatShape(0.2)},
		Solver:         powerflow.NewNodalSolver(),
	}
}

func sw2Fault(start, end int) []model.FaultEvent {
	return []model.FaultEvent{{Name: "sw2_fault", StartStep: start, EndStep: end, AffectsConnectivity: true}}
}

func runScenario(t *testing.T, sc ScenarioConfig, env Environment, cb Callback) *Run {
	t.Helper()
	e, err := NewEngine(sc, env, cb)
	require.NoError(t, err)
	run, err := e.Run()
	require.NoError(t, err)
	return run
}

func TestEngine_NoSupportScenario(t *testing.T) {
	sc := ScenarioConfig{Name: "no_support", PVShape: "cloudy", Faults: sw2Fault(120, 399)}
	run := runScenario(t, sc, testEnv(), nil)
	s := run.Series

	require.Equal(t, model.StepsPerDay, s.Len())
	for i := 0; i < s.Len(); i++ {
		assert.Equal(t, 0.0, s.PowerBalance[i].BatteryKW)
		assert.Nil(t, s.SoC[i])
		assert.Equal(t, 0.0, s.PowerBalance[i].PVKW)

		if i < 120 || i > 399 {
			require.Equal(t, model.GridConnected, s.Connectivity[i], "step %d", i)
			assert.InDelta(t, 15, s.PowerBalance[i].GridKW, 1e-9)
			assert.True(t, s.Voltage[i].Energized)
		} else {
			require.Equal(t, model.Islanded, s.Connectivity[i], "step %d", i)
			assert.Equal(t, 0.0, s.PowerBalance[i].GridKW)
			assert.InDelta(t, 15, s.PowerBalance[i].UnservedKW, 1e-9)
			assert.False(t, s.Voltage[i].Energized)
			assert.Equal(t, 0.0, s.Voltage[i].Min)
		}
	}

	sum := run.Summary
	assert.Equal(t, 280, sum.IslandedMinutes)
	assert.Equal(t, 1, sum.IslandingTransitions)
	assert.Equal(t, 0, sum.StabilityMinutes)
	assert.InDelta(t, 280.0/60*15, sum.UnservedKWh, 1e-9)
	assert.Nil(t, sum.MinSoCPercent)
	assert.Nil(t, sum.FinalSoCPercent)
	assert.NotEmpty(t, sum.RunID)
}

func TestEngine_BatteryOnlyCoversLoadWhileIslanded(t *testing.T) {
	env := testEnv()
	sc := ScenarioConfig{Name: "bess_only", HasBattery: true, PVShape: "cloudy", Faults: sw2Fault(120, 399)}
	run := runScenario(t, sc, env, nil)
	s := run.Series

	covered := 0
	for i := 0; i < s.Len(); i++ {
		require.NotNil(t, s.SoC[i])
		soc := *s.SoC[i]
		assert.GreaterOrEqual(t, soc, env.Battery.ReservePercent)
		assert.LessOrEqual(t, soc, 100.0)
		assert.Equal(t, 0.0, s.PowerBalance[i].PVKW)

		switch {
		case s.Connectivity[i] == model.GridConnected:
			assert.Equal(t, 0.0, s.PowerBalance[i].BatteryKW, "idle before the fault")
		case soc > env.Battery.ReservePercent+1e-6:
			assert.InDelta(t, s.PowerBalance[i].LoadKW, s.PowerBalance[i].BatteryKW, 1e-9, "step %d", i)
			assert.Equal(t, 0.0, s.PowerBalance[i].UnservedKW)
			assert.True(t, s.Voltage[i].Energized)
			covered++
		default:
			assert.InDelta(t, s.PowerBalance[i].LoadKW-s.PowerBalance[i].BatteryKW, s.PowerBalance[i].UnservedKW, 1e-9)
		}
	}

	// 36 kWh above reserve at 15 kW lasts 144 minutes, the last one lands on reserve.
	assert.Equal(t, 143, covered)
	// Stable minutes end once SoC falls under reserve + 0.5 %.
	assert.Equal(t, 142, run.Summary.StabilityMinutes)
	assert.InDelta(t, 20, *run.Summary.MinSoCPercent, 1e-9)
	assert.InDelta(t, 36, run.Summary.BatteryDischargeKWh, 1e-6)
	assert.InDelta(t, 280.0/60*15-36, run.Summary.UnservedKWh, 1e-6)
}

func TestEngine_IslandedVoltageSagsAlongFeeder(t *testing.T) {
	sc := ScenarioConfig{Name: "bess_only", HasBattery: true, PVShape: "cloudy", Faults: sw2Fault(120, 399)}
	run := runScenario(t, sc, testEnv(), nil)

	v := run.Series.Voltage[130]
	require.True(t, v.Energized)
	assert.False(t, v.Degraded)
	assert.Less(t, v.Min, v.Mean)
	assert.Less(t, v.Mean, v.Max)
	assert.Less(t, v.Max, 230.0)
	assert.Greater(t, v.Min, 0.9*230)
}

func TestEngine_PVSurplusChargesThenCurtails(t *testing.T) {
	env := testEnv()
	env.BaselineLoadKW = 2
	env.Battery.InitialSoCPercent = 99.9
	sc := ScenarioConfig{Name: "pv_bess", HasPV: true, HasBattery: true, PVShape: "clear", Faults: sw2Fault(600, 700)}
	run := runScenario(t, sc, env, nil)
	s := run.Series

	// The first islanded minute tops the battery up, then surplus is curtailed.
	assert.Less(t, s.PowerBalance[600].BatteryKW, 0.0)
	assert.InDelta(t, 100, *s.SoC[650], 1e-9)
	assert.Equal(t, 0.0, s.PowerBalance[650].BatteryKW)
	assert.InDelta(t, 10, s.PowerBalance[650].CurtailedKW, 1e-9)
	assert.InDelta(t, 12, s.PowerBalance[650].SupplyKW, 1e-9)
	assert.Greater(t, run.Summary.CurtailedKWh, 0.0)
	assert.Equal(t, 0.0, run.Summary.UnservedKWh)

	// Grid connected with PV surplus exports.
	assert.InDelta(t, -10, s.PowerBalance[500].GridKW, 1e-9)
	assert.Greater(t, run.Summary.GridExportKWh, 0.0)
}

func TestEngine_PVWithoutBatteryCannotHoldIsland(t *testing.T) {
	sc := ScenarioConfig{Name: "pv_only", HasPV: true, PVShape: "clear", Faults: sw2Fault(600, 700)}
	run := runScenario(t, sc, testEnv(), nil)
	s := run.Series

	pb := s.PowerBalance[650]
	require.Equal(t, model.Islanded, s.Connectivity[650])
	assert.InDelta(t, 12, pb.PVKW, 1e-9)
	assert.InDelta(t, pb.LoadKW, pb.UnservedKW, 1e-9)
	assert.InDelta(t, pb.PVKW, pb.CurtailedKW, 1e-9)
	assert.Equal(t, 0.0, pb.SupplyKW)
	assert.Equal(t, 0.0, pb.GridKW)
	assert.False(t, s.Voltage[650].Energized)
	assert.Equal(t, 0.0, s.Voltage[650].Max)

	// Connected PV still offsets the load.
	assert.InDelta(t, 3, s.PowerBalance[500].GridKW, 1e-9)
	assert.InDelta(t, 12, s.PowerBalance[500].SupplyKW, 1e-9)

	assert.InDelta(t, 101.0/60*15, run.Summary.UnservedKWh, 1e-9)
	assert.InDelta(t, 101.0/60*12, run.Summary.CurtailedKWh, 1e-9)
	assert.Nil(t, run.Summary.SoCBucketMinutes)
}

func TestEngine_SummaryCarriesSoCHistogram(t *testing.T) {
	sc := ScenarioConfig{Name: "bess_only", HasBattery: true, PVShape: "cloudy", Faults: sw2Fault(120, 399)}
	run := runScenario(t, sc, testEnv(), nil)
	hist := run.Summary.SoCBucketMinutes

	require.NotEmpty(t, hist)
	var total float64
	for bucket, minutes := range hist {
		assert.Zero(t, bucket%10)
		total += minutes
	}
	assert.InDelta(t, float64(model.StepsPerDay), total, 1e-9)
	// Idle at 80 % until the fault at step 120.
	assert.GreaterOrEqual(t, hist[80], 120.0)
}

func TestEngine_MultipleFaults(t *testing.T) {
	sc := ScenarioConfig{
		Name: "distributed", HasPV: true, HasBattery: true, PVShape: "clear",
		Faults: []model.FaultEvent{
			{Name: "sw2_fault", StartStep: 300, EndStep: 699, AffectsConnectivity: true},
			{Name: "sw4_lateral_fault", StartStep: 720, EndStep: 919},
			{Name: "mbs_s2_fault", StartStep: 920, EndStep: 1279, AffectsConnectivity: true},
		},
	}
	run := runScenario(t, sc, testEnv(), nil)
	s := run.Series

	assert.Equal(t, 2, run.Summary.IslandingTransitions)
	assert.Equal(t, 400+360, run.Summary.IslandedMinutes)
	assert.Equal(t, model.GridConnected, s.Connectivity[800])
	assert.Equal(t, []string{"sw4_lateral_fault"}, s.ActiveFaults[800])
	assert.Equal(t, model.Islanded, s.Connectivity[920])
	assert.Equal(t, model.GridConnected, s.Connectivity[1280])
	assert.Empty(t, s.ActiveFaults[100])
}

func TestEngine_Idempotent(t *testing.T) {
	sc := ScenarioConfig{Name: "bess_only", HasBattery: true, HasPV: true, PVShape: "clear", Faults: sw2Fault(120, 399)}
	env := testEnv()

	e, err := NewEngine(sc, env, nil)
	require.NoError(t, err)
	a, err := e.Run()
	require.NoError(t, err)
	b, err := e.Run()
	require.NoError(t, err)

	assert.Equal(t, a.Series, b.Series)
	a.Summary.RunID, b.Summary.RunID = "", ""
	assert.Equal(t, a.Summary, b.Summary)
}

func TestEngine_NonConvergenceCarriesVoltageForward(t *testing.T) {
	env := testEnv()
	env.Solver = &flakySolver{}
	sc := ScenarioConfig{Name: "flaky", DurationSteps: 10}
	run := runScenario(t, sc, env, nil)
	s := run.Series

	require.Equal(t, 10, s.Len())
	assert.False(t, s.Voltage[0].Degraded)
	for i := 1; i < 10; i++ {
		assert.True(t, s.Voltage[i].Degraded)
		assert.Equal(t, 228.0, s.Voltage[i].Min)
		assert.Equal(t, 50, s.Voltage[i].Iterations)
	}
	assert.Equal(t, 9, run.Summary.DegradedSteps)
	assert.Equal(t, 228.0, run.Summary.MinVoltage)
}

func TestEngine_CallbackReceivesEveryStep(t *testing.T) {
	cb := newMockCallback()
	sc := ScenarioConfig{Name: "cb", DurationSteps: 60, Faults: sw2Fault(10, 20)}
	runScenario(t, sc, testEnv(), cb)

	assert.Equal(t, 60, cb.stepCount("cb"))
	require.Len(t, cb.summaries, 1)
	assert.Equal(t, "cb", cb.summaries[0].Scenario)
	assert.Equal(t, 11, cb.summaries[0].IslandedMinutes)
	assert.Equal(t, "00:59", cb.steps["cb"][59].Clock)
}

func TestNewEngine_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ScenarioConfig, *Environment)
	}{
		{"empty name", func(sc *ScenarioConfig, _ *Environment) { sc.Name = "" }},
		{"unknown pv shape", func(sc *ScenarioConfig, _ *Environment) { sc.HasPV, sc.PVShape = true, "foggy" }},
		{"zero capacity", func(_ *ScenarioConfig, env *Environment) { env.Battery.CapacityKWh = 0 }},
		{"bad fault", func(sc *ScenarioConfig, _ *Environment) { sc.Faults = sw2Fault(400, 100) }},
		{"short load shape", func(_ *ScenarioConfig, env *Environment) { env.LoadShape = env.LoadShape[:100] }},
		{"long duration", func(sc *ScenarioConfig, _ *Environment) { sc.DurationSteps = 2000 }},
		{"no solver", func(_ *ScenarioConfig, env *Environment) { env.Solver = nil }},
		{"bad policy", func(_ *ScenarioConfig, env *Environment) { env.Dispatch.Policy = "greedy" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := ScenarioConfig{Name: "bad", HasBattery: true}
			env := testEnv()
			tt.mutate(&sc, &env)
			_, err := NewEngine(sc, env, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestResultSeries_Range(t *testing.T) {
	sc := ScenarioConfig{Name: "range", DurationSteps: 30}
	run := runScenario(t, sc, testEnv(), nil)

	steps := run.Series.Range(10, 15)
	require.Len(t, steps, 5)
	assert.Equal(t, 10, steps[0].Index)
	assert.Equal(t, "00:14", steps[4].Clock)

	assert.Len(t, run.Series.Range(-5, 100), 30)
	assert.Nil(t, run.Series.Range(20, 10))
}

package simulator

import (
	"runtime"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one scenario in a batch.
type Outcome struct {
	Scenario string `json:"scenario"`
	Run      *Run   `json:"run,omitempty"`
	Err      error  `json:"-"`
}

// RunAll runs the scenarios concurrently, at most workers at a time (zero
// means one per CPU). Each scenario owns its battery, schedule and adapter.
// Outcomes are returned in input order; a failing scenario does not stop the
// others.
func RunAll(scenarios []ScenarioConfig, env Environment, workers int, cb Callback) []Outcome {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	outcomes := make([]Outcome, len(scenarios))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, sc := range scenarios {
		i, sc := i, sc
		outcomes[i].Scenario = sc.Name
		g.Go(func() error {
			run, err := runOne(sc, env, cb)
			if err != nil {
				slog.Default().Error("scenario failed", "scenario", sc.Name, "error", err)
			}
			outcomes[i].Run, outcomes[i].Err = run, err
			return nil
		})
	}
	// Workers record failures in their Outcome and never return an error.
	g.Wait()
	return outcomes
}

func runOne(sc ScenarioConfig, env Environment, cb Callback) (*Run, error) {
	e, err := NewEngine(sc, env, cb)
	if err != nil {
		return nil, err
	}
	return e.Run()
}

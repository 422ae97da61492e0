package store

import (
	"sort"
	"sync"

	"islanding_simulator/internal/simulator"
)

// Store holds completed runs in memory, keeping the latest run per scenario.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*simulator.Run // keyed by scenario name
}

func New() *Store {
	return &Store{runs: make(map[string]*simulator.Run)}
}

// Put records a run, replacing any earlier run of the same scenario.
func (s *Store) Put(run *simulator.Run) {
	if run == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.Scenario.Name] = run
}

// AddOutcomes records every successful outcome of a batch.
func (s *Store) AddOutcomes(outcomes []simulator.Outcome) {
	for _, o := range outcomes {
		if o.Err == nil {
			s.Put(o.Run)
		}
	}
}

// Run returns the latest run of a scenario.
func (s *Store) Run(scenario string) (*simulator.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[scenario]
	return r, ok
}

// Scenarios returns the names of all stored scenarios, sorted.
func (s *Store) Scenarios() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.runs))
	for name := range s.runs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summaries returns the summary of every stored run, sorted by scenario.
func (s *Store) Summaries() []simulator.Summary {
	names := s.Scenarios()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]simulator.Summary, 0, len(names))
	for _, name := range names {
		if r, ok := s.runs[name]; ok {
			out = append(out, r.Summary)
		}
	}
	return out
}

// StepsInRange returns the steps of a scenario between from (inclusive) and
// to (exclusive).
func (s *Store) StepsInRange(scenario string, from, to int) []simulator.Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[scenario]
	if !ok {
		return nil
	}
	return r.Series.Range(from, to)
}

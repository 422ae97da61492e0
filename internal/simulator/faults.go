package simulator

import (
	"fmt"
	"sort"

	"islanding_simulator/internal/model"
)

// Span is a closed step interval [Start, End].
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FaultSchedule derives the connectivity state of every step from a fixed
// set of fault events. It is immutable once built.
type FaultSchedule struct {
	events []model.FaultEvent
	spans  []Span // merged islanding intervals, sorted, disjoint, non-adjacent
}

// NewFaultSchedule validates the events and merges the connectivity-affecting
// ones into disjoint islanded spans. Overlapping or touching intervals
// collapse into a single span.
func NewFaultSchedule(events []model.FaultEvent) (*FaultSchedule, error) {
	var spans []Span
	for _, ev := range events {
		if ev.StartStep < 0 || ev.EndStep < ev.StartStep {
			return nil, fmt.Errorf("%w: fault %q has invalid interval [%d, %d]",
				ErrInvalidConfig, ev.Name, ev.StartStep, ev.EndStep)
		}
		if ev.AffectsConnectivity {
			spans = append(spans, Span{Start: ev.StartStep, End: ev.EndStep})
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	merged := make([]Span, 0, len(spans))
	for _, s := range spans {
		if n := len(merged); n > 0 && s.Start <= merged[n-1].End+1 {
			if s.End > merged[n-1].End {
				merged[n-1].End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}

	return &FaultSchedule{
		events: append([]model.FaultEvent(nil), events...),
		spans:  merged,
	}, nil
}

// StateAt returns Islanded iff the step falls inside an islanding span.
func (f *FaultSchedule) StateAt(step int) model.Connectivity {
	// First span ending at or after step
	i := sort.Search(len(f.spans), func(i int) bool { return f.spans[i].End >= step })
	if i < len(f.spans) && f.spans[i].Start <= step {
		return model.Islanded
	}
	return model.GridConnected
}

// Spans returns a copy of the merged islanded spans.
func (f *FaultSchedule) Spans() []Span {
	return append([]Span(nil), f.spans...)
}

// IslandingTransitions counts GridConnected -> Islanded edges within
// [0, duration). The state before step 0 is GridConnected.
func (f *FaultSchedule) IslandingTransitions(duration int) int {
	n := 0
	for _, s := range f.spans {
		if s.Start < duration {
			n++
		}
	}
	return n
}

// ActiveAt returns the names of all faults active at step, including those
// that do not island the network.
func (f *FaultSchedule) ActiveAt(step int) []string {
	var names []string
	for _, ev := range f.events {
		if ev.Active(step) {
			names = append(names, ev.Name)
		}
	}
	return names
}

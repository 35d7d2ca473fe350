package worldtest

import (
	"context"
	"testing"

	"trafficsim.ai/internal/persistence/objects"
	"trafficsim.ai/internal/sim/control"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/scenario"
	"trafficsim.ai/internal/sim/simtime"
	"trafficsim.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world through exported APIs:
// - Instantiate/Builtin populate the world from a scenario
// - Step/StepN/RunUntilDone advance it while recording every tick entry
// - Expect runs RunUntilExpectationsMet
//
// It never touches world internals so tests can live outside the world package.
type Harness struct {
	T       *testing.T
	Map     *mapmodel.Map
	Control *control.ControlMap
	W       *world.World
	Store   objects.Store

	rec *recorder
}

func NewHarness(t *testing.T, m *mapmodel.Map, cfg world.WorldConfig) *Harness {
	t.Helper()
	if m == nil {
		t.Fatalf("NewHarness: nil map")
	}
	rec := &recorder{}
	w := world.New(cfg)
	w.AddStepObserver(rec)
	return &Harness{
		T:       t,
		Map:     m,
		Control: control.New(m, control.Config{}),
		W:       w,
		rec:     rec,
	}
}

// NewGridHarness builds a synthetic grid map and a world over it.
func NewGridHarness(t *testing.T, grid mapmodel.GridConfig, cfg world.WorldConfig) *Harness {
	t.Helper()
	m, err := mapmodel.Grid(grid)
	if err != nil {
		t.Fatalf("mapmodel.Grid: %v", err)
	}
	return NewHarness(t, m, cfg)
}

// NewFileHarness loads a YAML map fixture.
func NewFileHarness(t *testing.T, path string, cfg world.WorldConfig) *Harness {
	t.Helper()
	m, err := mapmodel.Load(path)
	if err != nil {
		t.Fatalf("mapmodel.Load(%s): %v", path, err)
	}
	return NewHarness(t, m, cfg)
}

func (h *Harness) Instantiate(s scenario.Scenario) *scenario.Report {
	h.T.Helper()
	rep, err := s.Instantiate(context.Background(), h.W, h.Map, h.Store)
	if err != nil {
		h.T.Fatalf("instantiate %s: %v", s.ScenarioName, err)
	}
	return rep
}

func (h *Harness) Builtin(name string) *scenario.Report {
	h.T.Helper()
	fn, ok := scenario.Builtin(name)
	if !ok {
		h.T.Fatalf("unknown builtin scenario %q", name)
	}
	rep, err := fn(context.Background(), h.W, h.Map, h.Store)
	if err != nil {
		h.T.Fatalf("builtin %s: %v", name, err)
	}
	return rep
}

func (h *Harness) Step() []world.Event {
	return h.W.Step(h.Map, h.Control)
}

func (h *Harness) StepN(n int) {
	for i := 0; i < n; i++ {
		h.Step()
	}
}

// RunUntilDone fails the test if the world is still busy after limit ticks.
func (h *Harness) RunUntilDone(limit simtime.Tick) {
	h.T.Helper()
	for !h.W.IsDone() {
		if h.W.CurrentTick() >= limit {
			h.T.Fatalf("not done by %s: %s", limit, h.W.Summary())
		}
		h.Step()
	}
}

func (h *Harness) Expect(expectations []world.Event, limit simtime.Tick) error {
	return h.W.RunUntilExpectationsMet(h.Map, h.Control, expectations, limit)
}

// Ticks returns every tick entry observed so far.
func (h *Harness) Ticks() []world.TickLogEntry { return h.rec.ticks }

func (h *Harness) Digests() []string {
	out := make([]string, len(h.rec.ticks))
	for i, e := range h.rec.ticks {
		out[i] = e.Digest
	}
	return out
}

func (h *Harness) Events() []world.Event {
	var out []world.Event
	for _, e := range h.rec.ticks {
		out = append(out, e.Events...)
	}
	return out
}

func (h *Harness) EventsOfKind(kind world.EventKind) []world.Event {
	var out []world.Event
	for _, ev := range h.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Harness) SpeedReports() []world.SpeedReport { return h.rec.speeds }

type recorder struct {
	ticks  []world.TickLogEntry
	speeds []world.SpeedReport
}

func (r *recorder) ObserveTick(entry world.TickLogEntry) { r.ticks = append(r.ticks, entry) }

func (r *recorder) ObserveSpeed(report world.SpeedReport) { r.speeds = append(r.speeds, report) }

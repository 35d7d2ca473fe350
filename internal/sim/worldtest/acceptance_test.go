package worldtest

import (
	"errors"
	"testing"

	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/scenario"
	"trafficsim.ai/internal/sim/simtime"
	"trafficsim.ai/internal/sim/world"
)

const tinyMapPath = "../mapmodel/testdata/tiny.yaml"

func TestSmallSpawnGridRunsUntilDone(t *testing.T) {
	h := NewGridHarness(t, mapmodel.GridConfig{Cols: 3, Rows: 3, BusRoute: true}, world.WorldConfig{Seed: 7})
	rep := h.Builtin(scenario.SmallSpawnName)
	if rep.Spawned() == 0 {
		t.Fatalf("no trips spawned: %+v", rep.Skipped)
	}

	h.RunUntilDone(simtime.FromMinutes(120))

	arrivals := len(h.EventsOfKind(world.EvPedReachedBuilding)) + len(h.EventsOfKind(world.EvPedReachedBorder))
	if arrivals == 0 {
		t.Fatalf("no pedestrian arrived anywhere")
	}
	for _, e := range h.Ticks() {
		if e.Digest == "" {
			t.Fatalf("tick %s has no digest", e.Tick)
		}
	}
}

func TestWalkToBorderMeetsExpectation(t *testing.T) {
	h := NewFileHarness(t, tinyMapPath, world.WorldConfig{Seed: 1})
	to, ok := world.EndAtBorder(2, h.Map)
	if !ok {
		t.Fatalf("I2 has no incoming sidewalk")
	}
	trip := h.W.SpawnSpecificPedestrian(world.BuildingSpot(0, h.Map), to)

	err := h.Expect([]world.Event{world.PedReachedBorder(trip.Ped, 2)}, simtime.FromMinutes(10))
	if err != nil {
		t.Fatalf("expectation not met: %v", err)
	}
	if got := h.EventsOfKind(world.EvPedReachedBorder); len(got) != 1 {
		t.Fatalf("border arrivals = %d, want 1", len(got))
	}
}

func TestExpectationsTimeLimit(t *testing.T) {
	h := NewFileHarness(t, tinyMapPath, world.WorldConfig{Seed: 1})
	never := world.PedReachedBuilding(999, 1)

	err := h.Expect([]world.Event{never}, simtime.Tick(50))
	if !errors.Is(err, world.ErrTimeLimit) {
		t.Fatalf("err = %v, want time limit", err)
	}
	var ee *world.ExpectationsError
	if !errors.As(err, &ee) {
		t.Fatalf("err %T is not *ExpectationsError", err)
	}
	if ee.Tick != 50 || len(ee.Remaining) != 1 || ee.Remaining[0] != never {
		t.Fatalf("unexpected remainder: tick=%s remaining=%v", ee.Tick, ee.Remaining)
	}
}

func TestScenarioWithBorderPedsOnTinyMap(t *testing.T) {
	h := NewFileHarness(t, tinyMapPath, world.WorldConfig{Seed: 3})
	rep := h.Instantiate(scenario.Scenario{
		ScenarioName: "border_peds",
		MapName:      h.Map.Name(),
		BorderSpawnOverTime: []scenario.BorderSpawnOverTime{{
			NumPeds:         4,
			StartTick:       simtime.Zero,
			StopTick:        simtime.FromSeconds(2),
			StartFromBorder: 2,
			Goal:            scenario.InNeighborhood(scenario.Everywhere),
		}},
	})
	if rep.Spawned() != 4 {
		t.Fatalf("spawned %d, want 4 (skipped %v)", rep.Spawned(), rep.Skipped)
	}

	h.RunUntilDone(simtime.FromMinutes(30))
	if got := len(h.EventsOfKind(world.EvPedReachedBuilding)); got != 4 {
		t.Fatalf("building arrivals = %d, want 4", got)
	}
}

package world

import (
	"testing"

	"trafficsim.ai/internal/sim/control"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
)

type digestLog struct{ digests []string }

func (d *digestLog) WriteTick(e TickLogEntry) error {
	d.digests = append(d.digests, e.Digest)
	return nil
}

func TestDeterminism_SameSeedSameDigests(t *testing.T) {
	m, err := mapmodel.Grid(mapmodel.GridConfig{Cols: 3, Rows: 3, BusRoute: true})
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	cm := control.New(m, control.Config{})

	build := func() (*World, *digestLog) {
		w := New(WorldConfig{Seed: 42})
		logs := &digestLog{}
		w.SetTickLogger(logs)

		var owners []mapmodel.BuildingID
		for _, b := range m.AllBuildings() {
			owners = append(owners, b.ID)
		}
		var roads []mapmodel.RoadID
		for _, r := range m.AllRoads() {
			roads = append(roads, r.ID)
		}
		w.SeedParkedCars(m, owners, roads, WeightedUsizeChoice{Weights: []uint{2, 8}})
		w.SeedBusRoute(m, 0)
		for i, b := range owners {
			cars := w.ParkedCarsByOwner(b)
			goal := owners[(i*7)%len(owners)]
			if len(cars) > 0 {
				w.StartTripUsingParkedCar(simtime.Tick(i), m, cars[0], b, ParkNear(goal))
				continue
			}
			w.StartTripJustWalking(simtime.Tick(i), BuildingSpot(b, m), BuildingSpot(goal, m))
		}
		return w, logs
	}

	w1, l1 := build()
	w2, l2 := build()
	for i := 0; i < 6000 && !(w1.IsDone() && w2.IsDone()); i++ {
		e1 := w1.Step(m, cm)
		e2 := w2.Step(m, cm)
		if len(e1) != len(e2) {
			t.Fatalf("event count mismatch at tick %d: %d vs %d", i, len(e1), len(e2))
		}
		for j := range e1 {
			if e1[j] != e2[j] {
				t.Fatalf("event mismatch at tick %d: %s vs %s", i, e1[j], e2[j])
			}
		}
	}
	if !w1.IsDone() {
		t.Fatalf("world never finished: %s", w1.Summary())
	}
	if len(l1.digests) != len(l2.digests) {
		t.Fatalf("digest count mismatch: %d vs %d", len(l1.digests), len(l2.digests))
	}
	for i := range l1.digests {
		if l1.digests[i] != l2.digests[i] {
			t.Fatalf("digest mismatch at tick %d", i)
		}
	}
}

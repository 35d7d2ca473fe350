package world

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficsim.ai/internal/sim/control"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
)

func tinyMap(t *testing.T) (*mapmodel.Map, *control.ControlMap) {
	t.Helper()
	m, err := mapmodel.Load("../mapmodel/testdata/tiny.yaml")
	require.NoError(t, err)
	return m, control.New(m, control.Config{})
}

func TestWeightedUsizeChoice(t *testing.T) {
	rng := newRNG(7)
	assert.Equal(t, 0, WeightedUsizeChoice{}.Sample(rng))
	assert.Equal(t, 0, WeightedUsizeChoice{Weights: []uint{0, 0}}.Sample(rng))
	for i := 0; i < 50; i++ {
		assert.Equal(t, 2, WeightedUsizeChoice{Weights: []uint{0, 0, 3}}.Sample(rng))
		got := WeightedUsizeChoice{Weights: []uint{5, 5}}.Sample(rng)
		assert.Contains(t, []int{0, 1}, got)
	}
}

func TestParkingState(t *testing.T) {
	p := NewParkingState()
	require.NoError(t, p.Add(ParkedCar{Car: 2, Spot: ParkingSpot{Lane: 3, Idx: 1}, Owner: 0, HasOwner: true}))
	require.NoError(t, p.Add(ParkedCar{Car: 1, Spot: ParkingSpot{Lane: 3, Idx: 0}, Owner: 0, HasOwner: true}))
	require.NoError(t, p.Add(ParkedCar{Car: 3, Spot: ParkingSpot{Lane: 6, Idx: 0}}))

	assert.Error(t, p.Add(ParkedCar{Car: 4, Spot: ParkingSpot{Lane: 3, Idx: 1}}), "spot taken")
	assert.Error(t, p.Add(ParkedCar{Car: 1, Spot: ParkingSpot{Lane: 6, Idx: 5}}), "car already parked")

	owned := p.ByOwner(0)
	require.Len(t, owned, 2)
	assert.Equal(t, CarID(1), owned[0].Car)
	assert.Equal(t, CarID(2), owned[1].Car)

	_, ok := p.Remove(2)
	assert.True(t, ok)
	assert.True(t, p.IsFree(ParkingSpot{Lane: 3, Idx: 1}))
	assert.Equal(t, 2, p.Len())

	_, ok = p.Remove(2)
	assert.False(t, ok)
	owned = p.ByOwner(0)
	require.Len(t, owned, 1)
	assert.Equal(t, CarID(1), owned[0].Car)

	_, ok = p.Remove(1)
	assert.True(t, ok)
	assert.Empty(t, p.ByOwner(0))

	require.NoError(t, p.Add(ParkedCar{Car: 7, Spot: ParkingSpot{Lane: 3, Idx: 0}, Owner: 1, HasOwner: true}))
	require.NoError(t, p.Add(ParkedCar{Car: 5, Spot: ParkingSpot{Lane: 3, Idx: 1}, Owner: 1, HasOwner: true}))
	var order []CarID
	for _, pc := range p.All() {
		order = append(order, pc.Car)
	}
	assert.Equal(t, []CarID{3, 5, 7}, order)
	owned = p.ByOwner(1)
	require.Len(t, owned, 2)
	assert.Equal(t, CarID(5), owned[0].Car)
	assert.Equal(t, CarID(7), owned[1].Car)
}

func TestSeedParkedCarsStaysInsideRoads(t *testing.T) {
	m, _ := tinyMap(t)
	w := New(WorldConfig{Seed: 1})

	placed := w.SeedParkedCars(m, []mapmodel.BuildingID{0, 1}, []mapmodel.RoadID{1}, WeightedUsizeChoice{Weights: []uint{0, 0, 1}})
	assert.Equal(t, 4, placed)

	seen := map[ParkingSpot]bool{}
	for _, pc := range w.Parking().All() {
		assert.False(t, seen[pc.Spot], "spot %s used twice", pc.Spot)
		seen[pc.Spot] = true
		assert.Equal(t, mapmodel.RoadID(1), m.Lane(pc.Spot.Lane).Parent)
		assert.True(t, pc.HasOwner)
	}
	assert.Len(t, w.ParkedCarsByOwner(0), 2)
	assert.Len(t, w.ParkedCarsByOwner(1), 2)

	// Road 0 has no parking and the search may not leave it.
	w2 := New(WorldConfig{Seed: 1})
	assert.Zero(t, w2.SeedParkedCars(m, []mapmodel.BuildingID{0}, []mapmodel.RoadID{0}, WeightedUsizeChoice{Weights: []uint{0, 1}}))
}

func TestSeedParkedCarsRunsOutOfSpots(t *testing.T) {
	m, _ := tinyMap(t)
	w := New(WorldConfig{Seed: 3})
	// 24 spots on road 1, 2 buildings asking for 20 each.
	weights := make([]uint, 21)
	weights[20] = 1
	placed := w.SeedParkedCars(m, []mapmodel.BuildingID{0, 1}, []mapmodel.RoadID{1}, WeightedUsizeChoice{Weights: weights})
	assert.Equal(t, 24, placed)
	assert.Len(t, w.ParkedCarsByOwner(0), 20)
	assert.Len(t, w.ParkedCarsByOwner(1), 4)
}

func TestSeedSpecificParkedCars(t *testing.T) {
	m, _ := tinyMap(t)
	w := New(WorldConfig{})
	cars, err := w.SeedSpecificParkedCars(m, 3, 0, []int{0, 5})
	require.NoError(t, err)
	assert.Equal(t, []CarID{1, 2}, cars)

	_, err = w.SeedSpecificParkedCars(m, 2, 0, []int{0})
	assert.Error(t, err, "driving lane")
	_, err = w.SeedSpecificParkedCars(m, 3, 0, []int{99})
	assert.Error(t, err, "spot out of range")
}

func TestWalkingTrip(t *testing.T) {
	m, cm := tinyMap(t)
	w := New(WorldConfig{})
	rec := w.SpawnSpecificPedestrian(BuildingSpot(0, m), BuildingSpot(1, m))
	assert.Equal(t, simtime.Tick(1), rec.Start)
	assert.Equal(t, ModeWalk, rec.Mode)
	assert.False(t, w.IsDone())

	err := w.RunUntilExpectationsMet(m, cm, []Event{PedReachedBuilding(rec.Ped, 1)}, simtime.FromMinutes(2))
	require.NoError(t, err)
	assert.True(t, w.IsDone())
}

func TestDriveParkedCarToBorder(t *testing.T) {
	m, cm := tinyMap(t)
	w := New(WorldConfig{})
	cars, err := w.SeedSpecificParkedCars(m, 3, 0, []int{0})
	require.NoError(t, err)

	rec, err := w.MakePedUsingCar(m, cars[0], BorderGoal(2, 2))
	require.NoError(t, err)
	assert.Equal(t, "building B0", rec.Origin)

	spot := ParkingSpot{Lane: 3, Idx: 0}
	err = w.RunUntilExpectationsMet(m, cm, []Event{
		PedReachedParkingSpot(rec.Ped, spot),
		CarReachedBorder(cars[0], 2),
	}, simtime.FromMinutes(5))
	require.NoError(t, err)

	_, parked := w.LookupParkedCar(cars[0])
	assert.False(t, parked)
	assert.True(t, w.Parking().IsFree(spot))

	_, err = w.MakePedUsingCar(m, cars[0], BorderGoal(2, 2))
	assert.Error(t, err)
}

func TestParkedCarCanOnlyBeClaimedOnce(t *testing.T) {
	m, cm := tinyMap(t)
	w := New(WorldConfig{})
	cars, err := w.SeedSpecificParkedCars(m, 3, 0, []int{0})
	require.NoError(t, err)

	_, err = w.MakePedUsingCar(m, cars[0], BorderGoal(2, 2))
	require.NoError(t, err)
	assert.True(t, w.CarClaimed(cars[0]))

	_, err = w.MakePedUsingCar(m, cars[0], BorderGoal(2, 2))
	require.ErrorIs(t, err, ErrCarClaimed)

	obs := &recordingObserver{}
	w.AddStepObserver(obs)
	w.RunUntilDone(m, cm, nil)

	borders := 0
	for _, e := range obs.ticks {
		for _, ev := range e.Events {
			if ev.Kind == EvCarReachedBorder {
				assert.Equal(t, cars[0], ev.Car)
				borders++
			}
		}
	}
	assert.Equal(t, 1, borders)
	assert.False(t, w.CarClaimed(cars[0]))
}

func TestBorderCarParksNearBuilding(t *testing.T) {
	m, cm := tinyMap(t)
	w := New(WorldConfig{})
	rec := w.StartTripWithCarAtBorder(0, m, 5, ParkNear(0))
	require.NotZero(t, rec.Ped)
	assert.Equal(t, "border I2 via L5", rec.Origin)

	spot := ParkingSpot{Lane: 3, Idx: 0}
	err := w.RunUntilExpectationsMet(m, cm, []Event{
		CarReachedParkingSpot(rec.Car, spot),
		PedReachedBuilding(rec.Ped, 0),
	}, simtime.FromMinutes(5))
	require.NoError(t, err)

	pc, ok := w.LookupParkedCar(rec.Car)
	require.True(t, ok)
	assert.Equal(t, spot, pc.Spot)
	assert.False(t, pc.HasOwner)
}

func TestBusTrip(t *testing.T) {
	m, cm := tinyMap(t)
	w := New(WorldConfig{})
	buses := w.SeedBusRoute(m, 0)
	require.Len(t, buses, 2)

	rec := w.MakePedUsingBus(m, 0, 1, 0, 0, 1)
	assert.Equal(t, ModeBus, rec.Mode)

	err := w.RunUntilExpectationsMet(m, cm, []Event{
		BusArrivedAtStop(buses[0], 1),
		PedReachedBuilding(rec.Ped, 1),
	}, simtime.FromMinutes(10))
	require.NoError(t, err)
	assert.True(t, w.IsDone(), "buses don't keep the world running")
}

func TestExpectationsTimeLimit(t *testing.T) {
	m, cm := tinyMap(t)
	w := New(WorldConfig{})
	rec := w.SpawnSpecificPedestrian(BuildingSpot(0, m), BuildingSpot(1, m))

	never := PedReachedBorder(rec.Ped, 2)
	expected := []Event{PedReachedBuilding(rec.Ped, 1), never}
	limit := simtime.FromMinutes(2)
	err := w.RunUntilExpectationsMet(m, cm, expected, limit)

	var expErr *ExpectationsError
	require.True(t, errors.As(err, &expErr))
	assert.True(t, errors.Is(err, ErrTimeLimit))
	assert.Equal(t, limit, expErr.Tick)
	assert.Equal(t, []Event{never}, expErr.Remaining)
	assert.Equal(t, limit, w.CurrentTick())
}

func TestExpectationsMustBeInOrder(t *testing.T) {
	m, cm := tinyMap(t)
	w := New(WorldConfig{})
	cars, err := w.SeedSpecificParkedCars(m, 3, 0, []int{0})
	require.NoError(t, err)
	rec, err := w.MakePedUsingCar(m, cars[0], BorderGoal(2, 2))
	require.NoError(t, err)

	reversed := []Event{
		CarReachedBorder(cars[0], 2),
		PedReachedParkingSpot(rec.Ped, ParkingSpot{Lane: 3, Idx: 0}),
	}
	err = w.RunUntilExpectationsMet(m, cm, reversed, simtime.FromMinutes(1))
	var expErr *ExpectationsError
	require.True(t, errors.As(err, &expErr))
	assert.Equal(t, reversed[1:], expErr.Remaining)
}

func TestExpectationsEmptyReturnsImmediately(t *testing.T) {
	m, cm := tinyMap(t)
	w := New(WorldConfig{})
	require.NoError(t, w.RunUntilExpectationsMet(m, cm, nil, 10))
	assert.Equal(t, simtime.Zero, w.CurrentTick())
}

type recordingObserver struct {
	ticks  []TickLogEntry
	speeds []SpeedReport
}

func (r *recordingObserver) ObserveTick(e TickLogEntry) { r.ticks = append(r.ticks, e) }
func (r *recordingObserver) ObserveSpeed(s SpeedReport) { r.speeds = append(r.speeds, s) }

func TestRunUntilDoneReportsSpeed(t *testing.T) {
	m, cm := tinyMap(t)
	w := New(WorldConfig{})
	base := time.Unix(0, 0)
	calls := 0
	w.SetClock(func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	})
	obs := &recordingObserver{}
	w.AddStepObserver(obs)

	start, ok := StartAtBorder(0, m)
	require.True(t, ok)
	w.SpawnSpecificPedestrian(start, BuildingSpot(1, m))

	steps := 0
	w.RunUntilDone(m, cm, func(*World) { steps++ })

	assert.True(t, w.IsDone())
	assert.Equal(t, int(w.CurrentTick()), steps)
	assert.Len(t, obs.ticks, steps)
	require.Len(t, obs.speeds, 2)
	assert.Equal(t, simtime.FromMinutes(1), obs.speeds[0].Tick)
	assert.Equal(t, simtime.FromMinutes(2), obs.speeds[1].Tick)
	assert.Greater(t, obs.speeds[0].Ratio, 0.0)
}

type filteringObserver struct {
	recordingObserver
	want bool
}

func (f *filteringObserver) NeedsDigest(TickLogEntry) bool { return f.want }

func TestDigestOnlyComputedWhenWanted(t *testing.T) {
	m, cm := tinyMap(t)
	w := New(WorldConfig{})
	w.SpawnSpecificPedestrian(BuildingSpot(0, m), BuildingSpot(1, m))

	quiet := &filteringObserver{}
	w.AddStepObserver(quiet)
	for i := 0; i < 5; i++ {
		w.Step(m, cm)
	}
	require.Len(t, quiet.ticks, 5)
	for _, e := range quiet.ticks {
		assert.Empty(t, e.Digest)
	}

	// An observer without NeedsDigest always gets the digest, and so does everyone else.
	plain := &recordingObserver{}
	w.AddStepObserver(plain)
	w.Step(m, cm)
	require.Len(t, plain.ticks, 1)
	assert.Equal(t, w.StateDigest(), plain.ticks[0].Digest)
	assert.Equal(t, plain.ticks[0].Digest, quiet.ticks[5].Digest)

	w2 := New(WorldConfig{})
	w2.SpawnSpecificPedestrian(BuildingSpot(0, m), BuildingSpot(1, m))
	wanting := &filteringObserver{want: true}
	w2.AddStepObserver(wanting)
	w2.Step(m, cm)
	require.Len(t, wanting.ticks, 1)
	assert.Equal(t, w2.StateDigest(), wanting.ticks[0].Digest)
}

func TestEventJSON(t *testing.T) {
	ev := PedReachedParkingSpot(4, ParkingSpot{Lane: 3, Idx: 2})
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"ped_reached_parking_spot","ped":4,"spot":{"lane":3,"idx":2}}`, string(raw))

	var back Event
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, ev, back)

	border := CarReachedBorder(9, 0)
	raw, err = json.Marshal(border)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"car_reached_border","car":9,"intersection":0}`, string(raw))
	assert.Equal(t, "Car #9 reached border I0", border.String())
}

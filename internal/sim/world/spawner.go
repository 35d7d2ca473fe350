package world

import (
	"fmt"

	"trafficsim.ai/internal/sim/geom"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
)

// StartTripUsingParkedCar walks the owner from building from to the parked car, then
// drives it to goal. The car stays parked, and claimed by the trip, until the pedestrian
// reaches it. Callers must not pass a car for which CarClaimed is true.
func (w *World) StartTripUsingParkedCar(at simtime.Tick, m *mapmodel.Map, parked ParkedCar, from mapmodel.BuildingID, goal DrivingGoal) TripRecord {
	t := w.newTrip(ModeDrive, at)
	t.rec.Ped = w.newPed()
	t.rec.Car = parked.Car
	t.rec.Origin = BuildingSpot(from, m).String()
	t.rec.Goal = goal.String()
	t.unpark = parked.Car
	t.owner, t.hasOwner = parked.Owner, parked.HasOwner
	if prev, ok := w.claimed[parked.Car]; ok {
		w.logger.Error("parked car claimed twice", "car", parked.Car, "trip", prev, "new_trip", t.rec.ID)
	}
	w.claimed[parked.Car] = t.rec.ID

	spot := ParkingSidewalkSpot(parked.Spot, m)
	t.legs = []leg{
		{kind: legWalk, from: BuildingSpot(from, m).Pos, walkTo: spot},
		w.driveLeg(m, spot.Pos, m.Lane(parked.Spot.Lane).Dst, goal),
	}
	w.schedule(t)
	return t.rec
}

// StartTripJustWalking walks a new pedestrian from one sidewalk spot to another.
func (w *World) StartTripJustWalking(at simtime.Tick, from, to SidewalkSpot) TripRecord {
	t := w.newTrip(ModeWalk, at)
	t.rec.Ped = w.newPed()
	t.rec.Origin = from.String()
	t.rec.Goal = to.String()
	t.legs = []leg{{kind: legWalk, from: from.Pos, walkTo: to}}
	w.schedule(t)
	return t.rec
}

// StartTripWithCarAtBorder spawns a new car entering the map on lane.
func (w *World) StartTripWithCarAtBorder(at simtime.Tick, m *mapmodel.Map, lane mapmodel.LaneID, goal DrivingGoal) TripRecord {
	t := w.newTrip(ModeDrive, at)
	t.rec.Car = w.newCar()
	if goal.Kind == GoalParkNear {
		// the driver walks on to the building once parked
		t.rec.Ped = w.newPed()
	}
	l := m.Lane(lane)
	t.rec.Origin = fmt.Sprintf("border %s via %s", l.Src, lane)
	t.rec.Goal = goal.String()
	t.legs = []leg{w.driveLeg(m, l.FirstPt(), l.Dst, goal)}
	w.schedule(t)
	return t.rec
}

func (w *World) driveLeg(m *mapmodel.Map, from geom.Pt2D, cross mapmodel.IntersectionID, goal DrivingGoal) leg {
	return leg{kind: legDrive, from: from, goal: goal, goalPos: goal.target(m), cross: cross}
}

// SeedParkedCars fills free spots on roads with cars owned by the owner buildings. Each
// building draws its car count from carsPerBuilding and takes the nearest free spot found
// by a breadth-first search over roads that never leaves roads. It returns the number of
// cars placed.
func (w *World) SeedParkedCars(m *mapmodel.Map, owners []mapmodel.BuildingID, roads []mapmodel.RoadID, carsPerBuilding WeightedUsizeChoice) int {
	open := make(map[mapmodel.RoadID][]ParkingSpot, len(roads))
	total := 0
	for _, r := range roads {
		var spots []ParkingSpot
		for _, lane := range m.LanesOfType(r, mapmodel.LaneParking) {
			spots = append(spots, w.parking.FreeSpots(m.Lane(lane))...)
		}
		total += len(spots)
		fork := forkRNG(w.rng)
		fork.Shuffle(len(spots), func(i, j int) { spots[i], spots[j] = spots[j], spots[i] })
		open[r] = spots
	}

	placed := 0
	for _, b := range owners {
		n := carsPerBuilding.Sample(w.rng)
		for k := 0; k < n; k++ {
			spot, ok := w.findSpotNearBuilding(m, b, open)
			if !ok {
				break
			}
			car := w.newCar()
			if err := w.parking.Add(ParkedCar{Car: car, Spot: spot, Owner: b, HasOwner: true}); err != nil {
				w.logger.Error("seeding parked car", "err", err)
				continue
			}
			placed++
		}
	}
	w.logger.Info("seeded parked cars", "cars", placed, "spots", total)
	return placed
}

func (w *World) findSpotNearBuilding(m *mapmodel.Map, b mapmodel.BuildingID, open map[mapmodel.RoadID][]ParkingSpot) (ParkingSpot, bool) {
	start := m.BuildingToRoad(b)
	queue := []mapmodel.RoadID{start}
	visited := map[mapmodel.RoadID]bool{start: true}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		if spots := open[r]; len(spots) > 0 {
			spot := spots[len(spots)-1]
			open[r] = spots[:len(spots)-1]
			return spot, true
		}
		for _, next := range m.NextRoads(r) {
			if _, inside := open[next]; inside && !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	w.logger.Debug("no free parking spot near building", "building", b, "searched_roads", len(visited))
	return ParkingSpot{}, false
}

// SeedSpecificParkedCars parks one new car owned by owner in each listed spot of lane.
func (w *World) SeedSpecificParkedCars(m *mapmodel.Map, lane mapmodel.LaneID, owner mapmodel.BuildingID, spots []int) ([]CarID, error) {
	l := m.Lane(lane)
	if l.Type != mapmodel.LaneParking {
		return nil, fmt.Errorf("%s is a %s lane, not a parking lane", lane, l.Type)
	}
	var cars []CarID
	for _, idx := range spots {
		if idx < 0 || idx >= l.NumParkingSpots() {
			return cars, fmt.Errorf("%s has no spot %d", lane, idx)
		}
		car := w.newCar()
		if err := w.parking.Add(ParkedCar{Car: car, Spot: ParkingSpot{Lane: lane, Idx: idx}, Owner: owner, HasOwner: true}); err != nil {
			return cars, err
		}
		cars = append(cars, car)
	}
	return cars, nil
}

// freeSpotNear is the arrival-time search for a ParkNear goal. Unlike seeding it may
// spread over the whole map.
func (w *World) freeSpotNear(m *mapmodel.Map, b mapmodel.BuildingID) (ParkingSpot, bool) {
	start := m.BuildingToRoad(b)
	queue := []mapmodel.RoadID{start}
	visited := map[mapmodel.RoadID]bool{start: true}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		for _, lane := range m.LanesOfType(r, mapmodel.LaneParking) {
			if free := w.parking.FreeSpots(m.Lane(lane)); len(free) > 0 {
				return free[0], true
			}
		}
		for _, next := range m.NextRoads(r) {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return ParkingSpot{}, false
}

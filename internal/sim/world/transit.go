package world

import (
	"trafficsim.ai/internal/sim/control"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
)

type bus struct {
	car     CarID
	route   mapmodel.BusRouteID
	stops   []mapmodel.BusStopID
	next    int
	arrives simtime.Tick
	riders  []*trip
}

// SeedBusRoute puts one bus at every stop of the route, each heading to the following
// stop. Buses loop forever and don't count towards IsDone.
func (w *World) SeedBusRoute(m *mapmodel.Map, route mapmodel.BusRouteID) []CarID {
	r := m.BusRoute(route)
	var cars []CarID
	for i := range r.Stops {
		b := &bus{car: w.newCar(), route: route, stops: r.Stops, next: (i + 1) % len(r.Stops)}
		b.arrives = w.tick + w.busHop(m, r.Stops[i], r.Stops[b.next])
		w.buses = append(w.buses, b)
		cars = append(cars, b.car)
	}
	w.logger.Debug("seeded bus route", "route", r.Name, "buses", len(cars))
	return cars
}

func (w *World) busHop(m *mapmodel.Map, from, to mapmodel.BusStopID) simtime.Tick {
	dist := m.BusStop(from).Point.DistanceTo(m.BusStop(to).Point)
	return w.cfg.BusDwellTicks + simtime.FromDuration(dist/w.cfg.BusSpeed)
}

// MakePedUsingBus walks a new pedestrian from building from to stop1, rides route to
// stop2, and walks on to building to.
func (w *World) MakePedUsingBus(m *mapmodel.Map, from, to mapmodel.BuildingID, route mapmodel.BusRouteID, stop1, stop2 mapmodel.BusStopID) TripRecord {
	t := w.newTrip(ModeBus, w.tick.Next())
	t.rec.Ped = w.newPed()
	t.rec.Origin = BuildingSpot(from, m).String()
	t.rec.Goal = BuildingSpot(to, m).String()
	t.legs = []leg{
		{kind: legWalk, from: BuildingSpot(from, m).Pos, walkTo: BusStopSpot(stop1, m)},
		{kind: legWaitBus, route: route, board: stop1, alight: stop2},
		{kind: legRideBus, route: route, board: stop1, alight: stop2},
		{kind: legWalk, from: m.BusStop(stop2).Point, walkTo: BuildingSpot(to, m)},
	}
	w.schedule(t)
	return t.rec
}

func (w *World) stepBuses(m *mapmodel.Map, cm *control.ControlMap, now simtime.Tick, events []Event) []Event {
	for _, b := range w.buses {
		if b.arrives > now {
			continue
		}
		stop := b.stops[b.next]
		events = append(events, BusArrivedAtStop(b.car, stop))

		riders := b.riders[:0]
		for _, t := range b.riders {
			if t.leg().alight == stop {
				t.cur++
				w.beginLeg(t, now, cm)
				continue
			}
			riders = append(riders, t)
		}
		b.riders = riders

		for _, t := range w.active {
			if t.done() {
				continue
			}
			l := t.leg()
			if l.kind == legWaitBus && l.route == b.route && l.board == stop {
				t.cur++
				t.leg().bus = b.car
				b.riders = append(b.riders, t)
			}
		}

		prev := stop
		b.next = (b.next + 1) % len(b.stops)
		b.arrives = now + w.busHop(m, prev, b.stops[b.next])
	}
	return events
}

package world

import (
	"fmt"

	"trafficsim.ai/internal/sim/control"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
)

// Step advances the world by exactly one tick and returns the events observed during it:
// bus arrivals first, then trip events in trip ID order.
func (w *World) Step(m *mapmodel.Map, cm *control.ControlMap) []Event {
	now := w.tick

	for len(w.pending) > 0 && w.pending[0].rec.Start <= now {
		t := w.pending[0]
		w.pending[0] = nil
		w.pending = w.pending[1:]
		w.activate(t, now, cm)
	}

	var events []Event
	events = w.stepBuses(m, cm, now, events)

	kept := w.active[:0]
	for _, t := range w.active {
		events = w.advanceTrip(m, cm, t, now, events)
		if t.done() {
			w.finished++
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(w.active); i++ {
		w.active[i] = nil
	}
	w.active = kept

	w.tick = now.Next()
	w.emitTick(now, events)
	return events
}

func (w *World) advanceTrip(m *mapmodel.Map, cm *control.ControlMap, t *trip, now simtime.Tick, events []Event) []Event {
	for !t.done() && t.leg().timed() && t.legEnds <= now {
		events = w.finishLeg(m, t, events)
		t.cur++
		w.beginLeg(t, now, cm)
	}
	return events
}

func (w *World) finishLeg(m *mapmodel.Map, t *trip, events []Event) []Event {
	l := t.leg()
	switch l.kind {
	case legWalk:
		switch l.walkTo.Kind {
		case SpotBuilding:
			events = append(events, PedReachedBuilding(t.rec.Ped, l.walkTo.Building))
		case SpotBorderEnd:
			events = append(events, PedReachedBorder(t.rec.Ped, l.walkTo.Intersection))
		case SpotParking:
			events = append(events, PedReachedParkingSpot(t.rec.Ped, l.walkTo.Parking))
			if t.unpark != 0 {
				w.parking.Remove(t.unpark)
				delete(w.claimed, t.unpark)
				t.unpark = 0
			}
		}
	case legDrive:
		if l.goal.Kind == GoalBorder {
			return append(events, CarReachedBorder(t.rec.Car, l.goal.Intersection))
		}
		walkFrom := l.goalPos
		if spot, ok := w.freeSpotNear(m, l.goal.Building); ok {
			pc := ParkedCar{Car: t.rec.Car, Spot: spot, Owner: t.owner, HasOwner: t.hasOwner}
			if err := w.parking.Add(pc); err != nil {
				w.logger.Error("parking arriving car", "car", t.rec.Car, "err", err)
			} else {
				events = append(events, CarReachedParkingSpot(t.rec.Car, spot))
				walkFrom = ParkingSidewalkSpot(spot, m).Pos
			}
		} else {
			w.logger.Warn("no free parking spot, car leaves the map", "car", t.rec.Car, "building", l.goal.Building)
		}
		if t.rec.Ped != 0 {
			t.legs = append(t.legs, leg{kind: legWalk, from: walkFrom, walkTo: BuildingSpot(l.goal.Building, m)})
		}
	}
	return events
}

// IsDone reports whether no trip is pending or under way. Buses don't count.
func (w *World) IsDone() bool {
	return len(w.pending) == 0 && len(w.active) == 0
}

func (w *World) Summary() string {
	return fmt.Sprintf("At %s: %d active trips, %d pending, %d finished, %d parked cars, %d buses",
		w.tick, len(w.active), len(w.pending), w.finished, w.parking.Len(), len(w.buses))
}

func (w *World) emitTick(tick simtime.Tick, events []Event) {
	if w.tickLogger == nil && len(w.observers) == 0 {
		return
	}
	entry := TickLogEntry{Tick: tick, Events: events}
	if w.digestWanted(entry) {
		entry.Digest = w.StateDigest()
	}
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.logger.Warn("tick log write failed", "tick", tick, "err", err)
		}
	}
	for _, o := range w.observers {
		o.ObserveTick(entry)
	}
}

// digestWanted asks every sink whether this entry needs the state digest. Sinks that
// don't implement DigestFilter always get one.
func (w *World) digestWanted(entry TickLogEntry) bool {
	if w.tickLogger != nil && needsDigest(w.tickLogger, entry) {
		return true
	}
	for _, o := range w.observers {
		if needsDigest(o, entry) {
			return true
		}
	}
	return false
}

func needsDigest(sink any, entry TickLogEntry) bool {
	f, ok := sink.(DigestFilter)
	return !ok || f.NeedsDigest(entry)
}

package world

import (
	"sort"

	"trafficsim.ai/internal/sim/control"
	"trafficsim.ai/internal/sim/geom"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
)

type Mode string

const (
	ModeWalk  Mode = "walk"
	ModeDrive Mode = "drive"
	ModeBus   Mode = "bus"
)

// TripRecord describes a trip handed to the spawner.
type TripRecord struct {
	ID     TripID       `json:"id"`
	Mode   Mode         `json:"mode"`
	Start  simtime.Tick `json:"start"`
	Ped    PedestrianID `json:"ped,omitempty"`
	Car    CarID        `json:"car,omitempty"`
	Origin string       `json:"origin"`
	Goal   string       `json:"goal"`
}

type legKind uint8

const (
	legWalk legKind = iota
	legDrive
	legWaitBus
	legRideBus
)

type leg struct {
	kind legKind
	from geom.Pt2D

	walkTo SidewalkSpot // legWalk

	goal       DrivingGoal // legDrive
	goalPos    geom.Pt2D
	cross      mapmodel.IntersectionID

	route  mapmodel.BusRouteID // legWaitBus, legRideBus
	board  mapmodel.BusStopID
	alight mapmodel.BusStopID
	bus    CarID
}

func (l *leg) timed() bool { return l.kind == legWalk || l.kind == legDrive }

type trip struct {
	rec TripRecord

	// car still parked until the walking leg towards it finishes
	unpark   CarID
	owner    mapmodel.BuildingID
	hasOwner bool

	legs    []leg
	cur     int
	legEnds simtime.Tick
}

func (t *trip) leg() *leg { return &t.legs[t.cur] }

func (t *trip) done() bool { return t.cur >= len(t.legs) }

// legDuration is the straight-line travel time at nominal speed. Drive legs also pay
// the control delay of the first intersection they cross.
func (w *World) legDuration(l *leg, cm *control.ControlMap) simtime.Tick {
	switch l.kind {
	case legWalk:
		return simtime.FromDuration(l.from.DistanceTo(l.walkTo.Pos) / w.cfg.WalkSpeed)
	case legDrive:
		return simtime.FromDuration(l.from.DistanceTo(l.goalPos)/w.cfg.DriveSpeed) + cm.Delay(l.cross)
	}
	return 0
}

func (w *World) schedule(t *trip) {
	i := sort.Search(len(w.pending), func(i int) bool {
		p := w.pending[i]
		if p.rec.Start != t.rec.Start {
			return p.rec.Start > t.rec.Start
		}
		return p.rec.ID > t.rec.ID
	})
	w.pending = append(w.pending, nil)
	copy(w.pending[i+1:], w.pending[i:])
	w.pending[i] = t
}

func (w *World) activate(t *trip, now simtime.Tick, cm *control.ControlMap) {
	i := sort.Search(len(w.active), func(i int) bool { return w.active[i].rec.ID > t.rec.ID })
	w.active = append(w.active, nil)
	copy(w.active[i+1:], w.active[i:])
	w.active[i] = t
	w.beginLeg(t, now, cm)
}

func (w *World) beginLeg(t *trip, now simtime.Tick, cm *control.ControlMap) {
	if t.done() {
		return
	}
	l := t.leg()
	if l.timed() {
		t.legEnds = now + w.legDuration(l, cm)
	}
}

func (w *World) newTrip(mode Mode, at simtime.Tick) *trip {
	t := &trip{rec: TripRecord{ID: w.nextTrip, Mode: mode, Start: at}}
	w.nextTrip++
	return t
}

func (w *World) newPed() PedestrianID {
	id := w.nextPed
	w.nextPed++
	return id
}

func (w *World) newCar() CarID {
	id := w.nextCar
	w.nextCar++
	return id
}

// Trips lists the pending and active trips ordered by ID.
func (w *World) Trips() []TripRecord {
	out := make([]TripRecord, 0, len(w.pending)+len(w.active))
	for _, t := range w.pending {
		out = append(out, t.rec)
	}
	for _, t := range w.active {
		out = append(out, t.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

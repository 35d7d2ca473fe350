package world

import (
	"encoding/json"
	"fmt"

	"trafficsim.ai/internal/sim/mapmodel"
)

type EventKind uint8

const (
	EvPedReachedParkingSpot EventKind = iota + 1
	EvCarReachedParkingSpot
	EvCarReachedBorder
	EvPedReachedBuilding
	EvPedReachedBorder
	EvBusArrivedAtStop
)

var eventKindNames = map[EventKind]string{
	EvPedReachedParkingSpot: "ped_reached_parking_spot",
	EvCarReachedParkingSpot: "car_reached_parking_spot",
	EvCarReachedBorder:      "car_reached_border",
	EvPedReachedBuilding:    "ped_reached_building",
	EvPedReachedBorder:      "ped_reached_border",
	EvBusArrivedAtStop:      "bus_arrived_at_stop",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

func (k EventKind) MarshalText() ([]byte, error) {
	if _, ok := eventKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown event kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(b []byte) error {
	for kind, name := range eventKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", string(b))
}

// Event is something observable that happened during a tick. Events are comparable, so
// expectations can be matched with ==.
type Event struct {
	Kind         EventKind
	Car          CarID
	Ped          PedestrianID
	Spot         ParkingSpot
	Building     mapmodel.BuildingID
	Intersection mapmodel.IntersectionID
	Stop         mapmodel.BusStopID
}

func PedReachedParkingSpot(ped PedestrianID, spot ParkingSpot) Event {
	return Event{Kind: EvPedReachedParkingSpot, Ped: ped, Spot: spot}
}

func CarReachedParkingSpot(car CarID, spot ParkingSpot) Event {
	return Event{Kind: EvCarReachedParkingSpot, Car: car, Spot: spot}
}

func CarReachedBorder(car CarID, i mapmodel.IntersectionID) Event {
	return Event{Kind: EvCarReachedBorder, Car: car, Intersection: i}
}

func PedReachedBuilding(ped PedestrianID, b mapmodel.BuildingID) Event {
	return Event{Kind: EvPedReachedBuilding, Ped: ped, Building: b}
}

func PedReachedBorder(ped PedestrianID, i mapmodel.IntersectionID) Event {
	return Event{Kind: EvPedReachedBorder, Ped: ped, Intersection: i}
}

func BusArrivedAtStop(car CarID, stop mapmodel.BusStopID) Event {
	return Event{Kind: EvBusArrivedAtStop, Car: car, Stop: stop}
}

func (e Event) String() string {
	switch e.Kind {
	case EvPedReachedParkingSpot:
		return fmt.Sprintf("%s reached parking spot %s", e.Ped, e.Spot)
	case EvCarReachedParkingSpot:
		return fmt.Sprintf("%s reached parking spot %s", e.Car, e.Spot)
	case EvCarReachedBorder:
		return fmt.Sprintf("%s reached border %s", e.Car, e.Intersection)
	case EvPedReachedBuilding:
		return fmt.Sprintf("%s reached building %s", e.Ped, e.Building)
	case EvPedReachedBorder:
		return fmt.Sprintf("%s reached border %s", e.Ped, e.Intersection)
	case EvBusArrivedAtStop:
		return fmt.Sprintf("bus %s arrived at %s", e.Car, e.Stop)
	}
	return e.Kind.String()
}

type eventWire struct {
	Kind         EventKind                `json:"kind"`
	Car          CarID                    `json:"car,omitempty"`
	Ped          PedestrianID             `json:"ped,omitempty"`
	Spot         *ParkingSpot             `json:"spot,omitempty"`
	Building     *mapmodel.BuildingID     `json:"building,omitempty"`
	Intersection *mapmodel.IntersectionID `json:"intersection,omitempty"`
	Stop         *mapmodel.BusStopID      `json:"stop,omitempty"`
}

// MarshalJSON writes only the fields the event kind uses.
func (e Event) MarshalJSON() ([]byte, error) {
	w := eventWire{Kind: e.Kind, Car: e.Car, Ped: e.Ped}
	switch e.Kind {
	case EvPedReachedParkingSpot, EvCarReachedParkingSpot:
		w.Spot = &e.Spot
	case EvCarReachedBorder, EvPedReachedBorder:
		w.Intersection = &e.Intersection
	case EvPedReachedBuilding:
		w.Building = &e.Building
	case EvBusArrivedAtStop:
		w.Stop = &e.Stop
	}
	return json.Marshal(w)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var w eventWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Event{Kind: w.Kind, Car: w.Car, Ped: w.Ped}
	if w.Spot != nil {
		e.Spot = *w.Spot
	}
	if w.Building != nil {
		e.Building = *w.Building
	}
	if w.Intersection != nil {
		e.Intersection = *w.Intersection
	}
	if w.Stop != nil {
		e.Stop = *w.Stop
	}
	return nil
}

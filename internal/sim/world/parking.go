package world

import (
	"fmt"
	"sort"

	"trafficsim.ai/internal/sim/mapmodel"
)

type ParkingSpot struct {
	Lane mapmodel.LaneID `json:"lane"`
	Idx  int             `json:"idx"`
}

func (s ParkingSpot) String() string { return fmt.Sprintf("%s/%d", s.Lane, s.Idx) }

type ParkedCar struct {
	Car      CarID               `json:"car"`
	Spot     ParkingSpot         `json:"spot"`
	Owner    mapmodel.BuildingID `json:"owner"`
	HasOwner bool                `json:"has_owner"`
}

// ParkingState is the parked-car inventory: which car sits in which spot.
type ParkingState struct {
	occupants map[ParkingSpot]CarID
	cars      map[CarID]ParkedCar

	// sorted by car ID
	order   []CarID
	byOwner map[mapmodel.BuildingID][]CarID
}

func NewParkingState() *ParkingState {
	return &ParkingState{
		occupants: map[ParkingSpot]CarID{},
		cars:      map[CarID]ParkedCar{},
		byOwner:   map[mapmodel.BuildingID][]CarID{},
	}
}

func (p *ParkingState) IsFree(spot ParkingSpot) bool {
	_, taken := p.occupants[spot]
	return !taken
}

// FreeSpots lists the empty spots of a parking lane in index order.
func (p *ParkingState) FreeSpots(lane *mapmodel.Lane) []ParkingSpot {
	var out []ParkingSpot
	for idx := 0; idx < lane.NumParkingSpots(); idx++ {
		spot := ParkingSpot{Lane: lane.ID, Idx: idx}
		if p.IsFree(spot) {
			out = append(out, spot)
		}
	}
	return out
}

func (p *ParkingState) Add(pc ParkedCar) error {
	if other, taken := p.occupants[pc.Spot]; taken {
		return fmt.Errorf("spot %s already holds %s", pc.Spot, other)
	}
	if _, dup := p.cars[pc.Car]; dup {
		return fmt.Errorf("%s is already parked", pc.Car)
	}
	p.occupants[pc.Spot] = pc.Car
	p.cars[pc.Car] = pc
	p.order = insertCar(p.order, pc.Car)
	if pc.HasOwner {
		p.byOwner[pc.Owner] = insertCar(p.byOwner[pc.Owner], pc.Car)
	}
	return nil
}

func (p *ParkingState) Remove(car CarID) (ParkedCar, bool) {
	pc, ok := p.cars[car]
	if !ok {
		return ParkedCar{}, false
	}
	delete(p.cars, car)
	delete(p.occupants, pc.Spot)
	p.order = removeCar(p.order, car)
	if pc.HasOwner {
		if rest := removeCar(p.byOwner[pc.Owner], car); len(rest) > 0 {
			p.byOwner[pc.Owner] = rest
		} else {
			delete(p.byOwner, pc.Owner)
		}
	}
	return pc, true
}

func (p *ParkingState) Lookup(car CarID) (ParkedCar, bool) {
	pc, ok := p.cars[car]
	return pc, ok
}

// ByOwner lists the cars owned by b, ordered by car ID.
func (p *ParkingState) ByOwner(b mapmodel.BuildingID) []ParkedCar {
	ids := p.byOwner[b]
	if len(ids) == 0 {
		return nil
	}
	out := make([]ParkedCar, len(ids))
	for i, id := range ids {
		out[i] = p.cars[id]
	}
	return out
}

// All lists every parked car ordered by car ID.
func (p *ParkingState) All() []ParkedCar {
	out := make([]ParkedCar, 0, len(p.order))
	p.Each(func(pc ParkedCar) { out = append(out, pc) })
	return out
}

// Each visits every parked car in car ID order without copying the inventory.
func (p *ParkingState) Each(fn func(ParkedCar)) {
	for _, id := range p.order {
		fn(p.cars[id])
	}
}

func insertCar(ids []CarID, car CarID) []CarID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= car })
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = car
	return ids
}

func removeCar(ids []CarID, car CarID) []CarID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= car })
	if i == len(ids) || ids[i] != car {
		return ids
	}
	return append(ids[:i], ids[i+1:]...)
}

func (p *ParkingState) Len() int { return len(p.cars) }

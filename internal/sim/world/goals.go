package world

import (
	"fmt"

	"trafficsim.ai/internal/sim/geom"
	"trafficsim.ai/internal/sim/mapmodel"
)

type SidewalkSpotKind uint8

const (
	SpotBuilding SidewalkSpotKind = iota
	SpotBorderStart
	SpotBorderEnd
	SpotParking
	SpotBusStop
)

// SidewalkSpot is where a pedestrian starts or ends a walking leg.
type SidewalkSpot struct {
	Kind         SidewalkSpotKind
	Building     mapmodel.BuildingID
	Intersection mapmodel.IntersectionID
	Parking      ParkingSpot
	Stop         mapmodel.BusStopID
	Sidewalk     mapmodel.LaneID
	Pos          geom.Pt2D
}

func BuildingSpot(b mapmodel.BuildingID, m *mapmodel.Map) SidewalkSpot {
	bldg := m.Building(b)
	return SidewalkSpot{Kind: SpotBuilding, Building: b, Sidewalk: bldg.Sidewalk, Pos: bldg.Center()}
}

// StartAtBorder needs a sidewalk leaving the map's interior from i.
func StartAtBorder(i mapmodel.IntersectionID, m *mapmodel.Map) (SidewalkSpot, bool) {
	lanes := m.OutgoingLanes(i, mapmodel.LaneSidewalk)
	if len(lanes) == 0 {
		return SidewalkSpot{}, false
	}
	return SidewalkSpot{Kind: SpotBorderStart, Intersection: i, Sidewalk: lanes[0], Pos: m.Intersection(i).Point}, true
}

// EndAtBorder needs a sidewalk arriving at i.
func EndAtBorder(i mapmodel.IntersectionID, m *mapmodel.Map) (SidewalkSpot, bool) {
	lanes := m.IncomingLanes(i, mapmodel.LaneSidewalk)
	if len(lanes) == 0 {
		return SidewalkSpot{}, false
	}
	return SidewalkSpot{Kind: SpotBorderEnd, Intersection: i, Sidewalk: lanes[0], Pos: m.Intersection(i).Point}, true
}

func ParkingSidewalkSpot(spot ParkingSpot, m *mapmodel.Map) SidewalkSpot {
	return SidewalkSpot{Kind: SpotParking, Parking: spot, Pos: m.Lane(spot.Lane).SpotPosition(spot.Idx)}
}

func BusStopSpot(stop mapmodel.BusStopID, m *mapmodel.Map) SidewalkSpot {
	s := m.BusStop(stop)
	return SidewalkSpot{Kind: SpotBusStop, Stop: stop, Sidewalk: s.Sidewalk, Pos: s.Point}
}

func (s SidewalkSpot) String() string {
	switch s.Kind {
	case SpotBuilding:
		return fmt.Sprintf("building %s", s.Building)
	case SpotBorderStart, SpotBorderEnd:
		return fmt.Sprintf("border %s", s.Intersection)
	case SpotParking:
		return fmt.Sprintf("parking spot %s", s.Parking)
	case SpotBusStop:
		return fmt.Sprintf("bus stop %s", s.Stop)
	}
	return "unknown spot"
}

type DrivingGoalKind uint8

const (
	GoalParkNear DrivingGoalKind = iota
	GoalBorder
)

// DrivingGoal is where a car heads: a free spot near a building, or off the map
// through a border using a specific incoming lane.
type DrivingGoal struct {
	Kind         DrivingGoalKind
	Building     mapmodel.BuildingID
	Intersection mapmodel.IntersectionID
	Lane         mapmodel.LaneID
}

func ParkNear(b mapmodel.BuildingID) DrivingGoal {
	return DrivingGoal{Kind: GoalParkNear, Building: b}
}

func BorderGoal(i mapmodel.IntersectionID, lane mapmodel.LaneID) DrivingGoal {
	return DrivingGoal{Kind: GoalBorder, Intersection: i, Lane: lane}
}

func (g DrivingGoal) String() string {
	if g.Kind == GoalBorder {
		return fmt.Sprintf("border %s via %s", g.Intersection, g.Lane)
	}
	return fmt.Sprintf("park near %s", g.Building)
}

func (g DrivingGoal) target(m *mapmodel.Map) geom.Pt2D {
	if g.Kind == GoalBorder {
		return m.Intersection(g.Intersection).Point
	}
	return m.Building(g.Building).Center()
}

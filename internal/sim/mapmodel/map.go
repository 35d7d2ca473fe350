// Package mapmodel is the read-only street map consumed by the simulation: intersections,
// roads with their lanes, buildings, and bus stops and routes.
//
// Every ID is the index of its object, so all enumeration is in ID order.
package mapmodel

import (
	"sort"

	"trafficsim.ai/internal/sim/geom"
)

type Map struct {
	name   string
	gps    geom.GPSBounds
	bounds geom.Bounds

	intersections []Intersection
	roads         []Road
	lanes         []Lane
	buildings     []Building
	busStops      []BusStop
	busRoutes     []BusRoute
}

func (m *Map) Name() string { return m.name }

func (m *Map) GPSBounds() geom.GPSBounds { return m.gps }

func (m *Map) Bounds() geom.Bounds { return m.bounds }

func (m *Map) AllIntersections() []Intersection { return m.intersections }

func (m *Map) AllRoads() []Road { return m.roads }

func (m *Map) AllLanes() []Lane { return m.lanes }

func (m *Map) AllBuildings() []Building { return m.buildings }

func (m *Map) AllBusStops() []BusStop { return m.busStops }

func (m *Map) AllBusRoutes() []BusRoute { return m.busRoutes }

func (m *Map) Intersection(id IntersectionID) *Intersection { return &m.intersections[id] }

func (m *Map) Road(id RoadID) *Road { return &m.roads[id] }

func (m *Map) Lane(id LaneID) *Lane { return &m.lanes[id] }

func (m *Map) Building(id BuildingID) *Building { return &m.buildings[id] }

func (m *Map) BusStop(id BusStopID) *BusStop { return &m.busStops[id] }

func (m *Map) BusRoute(id BusRouteID) *BusRoute { return &m.busRoutes[id] }

func (m *Map) HasIntersection(id IntersectionID) bool {
	return id >= 0 && int(id) < len(m.intersections)
}

func (m *Map) HasBuilding(id BuildingID) bool { return id >= 0 && int(id) < len(m.buildings) }

func (m *Map) HasLane(id LaneID) bool { return id >= 0 && int(id) < len(m.lanes) }

// IncomingLanes lists the lanes of type t that end at i, in ID order.
func (m *Map) IncomingLanes(i IntersectionID, t LaneType) []LaneID {
	return m.filterLanes(m.intersections[i].IncomingLanes, t)
}

// OutgoingLanes lists the lanes of type t that start at i, in ID order.
func (m *Map) OutgoingLanes(i IntersectionID, t LaneType) []LaneID {
	return m.filterLanes(m.intersections[i].OutgoingLanes, t)
}

func (m *Map) filterLanes(ids []LaneID, t LaneType) []LaneID {
	var out []LaneID
	for _, id := range ids {
		if m.lanes[id].Type == t {
			out = append(out, id)
		}
	}
	return out
}

// AllIncomingBorders are the borders where traffic can enter the map.
func (m *Map) AllIncomingBorders() []*Intersection {
	var out []*Intersection
	for idx := range m.intersections {
		i := &m.intersections[idx]
		if i.Border && len(m.OutgoingLanes(i.ID, LaneDriving)) > 0 {
			out = append(out, i)
		}
	}
	return out
}

// AllOutgoingBorders are the borders where traffic can leave the map.
func (m *Map) AllOutgoingBorders() []*Intersection {
	var out []*Intersection
	for idx := range m.intersections {
		i := &m.intersections[idx]
		if i.Border && len(m.IncomingLanes(i.ID, LaneDriving)) > 0 {
			out = append(out, i)
		}
	}
	return out
}

func (m *Map) BuildingToRoad(b BuildingID) RoadID { return m.buildings[b].Road }

// LanesOfType returns the lanes of road r with type t, in ID order.
func (m *Map) LanesOfType(r RoadID, t LaneType) []LaneID {
	return m.filterLanes(m.roads[r].Lanes, t)
}

// NextRoads lists the roads sharing an intersection with r, excluding r itself.
func (m *Map) NextRoads(r RoadID) []RoadID {
	road := &m.roads[r]
	seen := map[RoadID]bool{r: true}
	var out []RoadID
	for _, i := range []IntersectionID{road.Src, road.Dst} {
		for _, other := range m.intersections[i].Roads {
			if !seen[other] {
				seen[other] = true
				out = append(out, other)
			}
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

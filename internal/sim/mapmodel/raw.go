package mapmodel

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trafficsim.ai/internal/sim/geom"
)

var ErrInvalidMap = errors.New("invalid map")

// Raw is the hand-editable description of a map. Local coordinates are meters east
// (x) and north (y) of GPSOrigin and must not be negative.
type Raw struct {
	Name          string            `yaml:"name" json:"name"`
	GPSOrigin     geom.LonLat       `yaml:"gps_origin" json:"gps_origin"`
	Intersections []RawIntersection `yaml:"intersections" json:"intersections"`
	Roads         []RawRoad         `yaml:"roads" json:"roads"`
	Buildings     []RawBuilding     `yaml:"buildings" json:"buildings"`
	BusStops      []RawBusStop      `yaml:"bus_stops" json:"bus_stops"`
	BusRoutes     []RawBusRoute     `yaml:"bus_routes" json:"bus_routes"`
}

type RawIntersection struct {
	Point  geom.Pt2D `yaml:"point" json:"point"`
	Border bool      `yaml:"border" json:"border"`
}

// RawRoad lanes are listed curb-last. Forward lanes run Src->Dst.
type RawRoad struct {
	Src      int         `yaml:"src" json:"src"`
	Dst      int         `yaml:"dst" json:"dst"`
	Points   []geom.Pt2D `yaml:"points,omitempty" json:"points,omitempty"`
	Forward  []LaneType  `yaml:"forward" json:"forward"`
	Backward []LaneType  `yaml:"backward" json:"backward"`
}

type RawBuilding struct {
	Road   int         `yaml:"road" json:"road"`
	Points []geom.Pt2D `yaml:"points" json:"points"`
}

type RawBusStop struct {
	Road int     `yaml:"road" json:"road"`
	Dist float64 `yaml:"dist" json:"dist"`
}

type RawBusRoute struct {
	Name  string `yaml:"name" json:"name"`
	Stops []int  `yaml:"stops" json:"stops"`
}

func LoadRaw(path string) (Raw, error) {
	var r Raw
	raw, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Load reads a raw map file and builds it.
func Load(path string) (*Map, error) {
	r, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	return Build(r)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMap, fmt.Sprintf(format, args...))
}

// Build validates r and derives lanes, adjacency, and bounds.
func Build(r Raw) (*Map, error) {
	if r.Name == "" {
		return nil, invalid("missing name")
	}
	m := &Map{name: r.Name, bounds: geom.NewBounds()}

	for idx, ri := range r.Intersections {
		if ri.Point.X < 0 || ri.Point.Y < 0 {
			return nil, invalid("intersection %d at %s has negative coordinates", idx, ri.Point)
		}
		m.intersections = append(m.intersections, Intersection{
			ID:     IntersectionID(idx),
			Point:  ri.Point,
			Border: ri.Border,
		})
		m.bounds.Update(ri.Point)
	}

	for idx, rr := range r.Roads {
		if rr.Src < 0 || rr.Src >= len(m.intersections) || rr.Dst < 0 || rr.Dst >= len(m.intersections) {
			return nil, invalid("road %d references a missing intersection", idx)
		}
		if rr.Src == rr.Dst {
			return nil, invalid("road %d is a loop", idx)
		}
		src, dst := IntersectionID(rr.Src), IntersectionID(rr.Dst)
		pts := rr.Points
		if len(pts) == 0 {
			pts = []geom.Pt2D{m.intersections[src].Point, m.intersections[dst].Point}
		}
		if len(pts) < 2 {
			return nil, invalid("road %d needs at least 2 points", idx)
		}
		road := Road{ID: RoadID(idx), CenterPoints: pts, Src: src, Dst: dst}
		for _, p := range pts {
			if p.X < 0 || p.Y < 0 {
				return nil, invalid("road %d point %s has negative coordinates", idx, p)
			}
			m.bounds.Update(p)
		}
		reversed := make([]geom.Pt2D, len(pts))
		for i, p := range pts {
			reversed[len(pts)-1-i] = p
		}
		for _, t := range rr.Forward {
			road.Lanes = append(road.Lanes, m.addLane(t, road.ID, src, dst, pts))
		}
		for _, t := range rr.Backward {
			road.Lanes = append(road.Lanes, m.addLane(t, road.ID, dst, src, reversed))
		}
		if len(road.Lanes) == 0 {
			return nil, invalid("road %d has no lanes", idx)
		}
		m.roads = append(m.roads, road)
		m.intersections[src].Roads = append(m.intersections[src].Roads, road.ID)
		m.intersections[dst].Roads = append(m.intersections[dst].Roads, road.ID)
	}

	for idx, rb := range r.Buildings {
		if rb.Road < 0 || rb.Road >= len(m.roads) {
			return nil, invalid("building %d references missing road %d", idx, rb.Road)
		}
		if len(rb.Points) < 3 {
			return nil, invalid("building %d needs at least 3 points", idx)
		}
		sidewalks := m.LanesOfType(RoadID(rb.Road), LaneSidewalk)
		if len(sidewalks) == 0 {
			return nil, invalid("building %d fronts road %d, which has no sidewalk", idx, rb.Road)
		}
		for _, p := range rb.Points {
			if p.X < 0 || p.Y < 0 {
				return nil, invalid("building %d point %s has negative coordinates", idx, p)
			}
			m.bounds.Update(p)
		}
		m.buildings = append(m.buildings, Building{
			ID:       BuildingID(idx),
			Points:   rb.Points,
			Road:     RoadID(rb.Road),
			Sidewalk: sidewalks[0],
		})
	}

	for idx, rs := range r.BusStops {
		if rs.Road < 0 || rs.Road >= len(m.roads) {
			return nil, invalid("bus stop %d references missing road %d", idx, rs.Road)
		}
		road := RoadID(rs.Road)
		sidewalks := m.LanesOfType(road, LaneSidewalk)
		driving := append(m.LanesOfType(road, LaneBus), m.LanesOfType(road, LaneDriving)...)
		if len(sidewalks) == 0 || len(driving) == 0 {
			return nil, invalid("bus stop %d needs a sidewalk and a driving lane on road %d", idx, rs.Road)
		}
		m.busStops = append(m.busStops, BusStop{
			ID:       BusStopID(idx),
			Sidewalk: sidewalks[0],
			Driving:  driving[0],
			Point:    geom.PointAlong(m.roads[road].CenterPoints, rs.Dist),
		})
	}

	for idx, rr := range r.BusRoutes {
		if len(rr.Stops) < 2 {
			return nil, invalid("bus route %q needs at least 2 stops", rr.Name)
		}
		route := BusRoute{ID: BusRouteID(idx), Name: rr.Name}
		for _, s := range rr.Stops {
			if s < 0 || s >= len(m.busStops) {
				return nil, invalid("bus route %q references missing stop %d", rr.Name, s)
			}
			route.Stops = append(route.Stops, BusStopID(s))
		}
		m.busRoutes = append(m.busRoutes, route)
	}

	if len(m.intersections) == 0 {
		return nil, invalid("no intersections")
	}
	m.gps = geom.GPSBoundsAround(r.GPSOrigin, geom.Pt2D{X: m.bounds.MaxX, Y: m.bounds.MaxY})
	return m, nil
}

func (m *Map) addLane(t LaneType, parent RoadID, src, dst IntersectionID, pts []geom.Pt2D) LaneID {
	id := LaneID(len(m.lanes))
	m.lanes = append(m.lanes, Lane{ID: id, Type: t, Parent: parent, Src: src, Dst: dst, Points: pts})
	m.intersections[src].OutgoingLanes = append(m.intersections[src].OutgoingLanes, id)
	m.intersections[dst].IncomingLanes = append(m.intersections[dst].IncomingLanes, id)
	return id
}

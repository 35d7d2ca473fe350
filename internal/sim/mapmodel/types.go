package mapmodel

import "trafficsim.ai/internal/sim/geom"

// ParkingSpotLength is the curb length reserved for one parked car.
const ParkingSpotLength = 8.0

type Lane struct {
	ID     LaneID         `json:"id"`
	Type   LaneType       `json:"type"`
	Parent RoadID         `json:"parent"`
	Src    IntersectionID `json:"src"`
	Dst    IntersectionID `json:"dst"`
	Points []geom.Pt2D    `json:"points"`
}

func (l *Lane) Length() float64 { return geom.PolylineLength(l.Points) }

// NumParkingSpots is zero for every lane that isn't a parking lane.
func (l *Lane) NumParkingSpots() int {
	if l.Type != LaneParking {
		return 0
	}
	return int(l.Length() / ParkingSpotLength)
}

// SpotPosition is the midpoint of parking spot idx along the lane.
func (l *Lane) SpotPosition(idx int) geom.Pt2D {
	return geom.PointAlong(l.Points, (float64(idx)+0.5)*ParkingSpotLength)
}

func (l *Lane) FirstPt() geom.Pt2D { return l.Points[0] }

func (l *Lane) LastPt() geom.Pt2D { return l.Points[len(l.Points)-1] }

type Road struct {
	ID           RoadID         `json:"id"`
	CenterPoints []geom.Pt2D    `json:"center_points"`
	Src          IntersectionID `json:"src"`
	Dst          IntersectionID `json:"dst"`
	Lanes        []LaneID       `json:"lanes"`
}

func (r *Road) FirstPt() geom.Pt2D { return r.CenterPoints[0] }

type Intersection struct {
	ID            IntersectionID `json:"id"`
	Point         geom.Pt2D      `json:"point"`
	Border        bool           `json:"border"`
	Roads         []RoadID       `json:"roads"`
	IncomingLanes []LaneID       `json:"incoming_lanes"`
	OutgoingLanes []LaneID       `json:"outgoing_lanes"`
}

type Building struct {
	ID     BuildingID  `json:"id"`
	Points []geom.Pt2D `json:"points"`
	Road   RoadID      `json:"road"`
	// Sidewalk is the lane pedestrians use to enter and leave the building.
	Sidewalk LaneID `json:"sidewalk"`
}

func (b *Building) Center() geom.Pt2D { return geom.Center(b.Points) }

type BusStop struct {
	ID       BusStopID `json:"id"`
	Sidewalk LaneID    `json:"sidewalk"`
	Driving  LaneID    `json:"driving"`
	Point    geom.Pt2D `json:"point"`
}

type BusRoute struct {
	ID    BusRouteID  `json:"id"`
	Name  string      `json:"name"`
	Stops []BusStopID `json:"stops"`
}

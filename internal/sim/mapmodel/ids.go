package mapmodel

import "fmt"

type IntersectionID int

func (id IntersectionID) String() string { return fmt.Sprintf("I%d", int(id)) }

type RoadID int

func (id RoadID) String() string { return fmt.Sprintf("R%d", int(id)) }

type LaneID int

func (id LaneID) String() string { return fmt.Sprintf("L%d", int(id)) }

type BuildingID int

func (id BuildingID) String() string { return fmt.Sprintf("B%d", int(id)) }

type BusStopID int

func (id BusStopID) String() string { return fmt.Sprintf("S%d", int(id)) }

type BusRouteID int

func (id BusRouteID) String() string { return fmt.Sprintf("Route%d", int(id)) }

type LaneType uint8

const (
	LaneDriving LaneType = iota
	LaneParking
	LaneSidewalk
	LaneBiking
	LaneBus
)

var laneTypeNames = [...]string{"driving", "parking", "sidewalk", "biking", "bus"}

func (t LaneType) String() string {
	if int(t) < len(laneTypeNames) {
		return laneTypeNames[t]
	}
	return fmt.Sprintf("LaneType(%d)", uint8(t))
}

func (t LaneType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *LaneType) UnmarshalText(b []byte) error {
	for i, name := range laneTypeNames {
		if name == string(b) {
			*t = LaneType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown lane type %q", string(b))
}

// CanDrive reports whether cars may use lanes of this type as a start or end lane.
func (t LaneType) CanDrive() bool { return t == LaneDriving }

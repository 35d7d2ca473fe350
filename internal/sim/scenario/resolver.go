package scenario

import (
	"fmt"
	"math/rand/v2"

	"github.com/charmbracelet/log"

	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/world"
)

// Resolver turns a symbolic OriginDestination into a concrete driving or walking goal.
// Every random draw goes through rng.
type Resolver struct {
	m      *mapmodel.Map
	bldgs  map[string][]mapmodel.BuildingID
	rng    *rand.Rand
	logger *log.Logger
}

func NewResolver(m *mapmodel.Map, bldgsPerNeighborhood map[string][]mapmodel.BuildingID, rng *rand.Rand, logger *log.Logger) *Resolver {
	return &Resolver{m: m, bldgs: bldgsPerNeighborhood, rng: rng, logger: logger}
}

func (r *Resolver) pickBuilding(name string) (mapmodel.BuildingID, *Skip, error) {
	bldgs, ok := r.bldgs[name]
	if !ok {
		return 0, nil, fmt.Errorf("neighborhood %s: %w", name, ErrUndeclaredNeighborhood)
	}
	if len(bldgs) == 0 {
		r.logger.Warn("neighborhood has no buildings", "neighborhood", name)
		return 0, &Skip{Reason: SkipEmptyNeighborhood, Detail: name}, nil
	}
	return bldgs[r.rng.IntN(len(bldgs))], nil, nil
}

func (r *Resolver) checkIntersection(i mapmodel.IntersectionID) error {
	if !r.m.HasIntersection(i) {
		return fmt.Errorf("%s: %w", i, ErrUnknownIntersection)
	}
	return nil
}

// DrivingGoal resolves a neighborhood to parking near a random building in it, and a
// border to its first incoming driving lane.
func (r *Resolver) DrivingGoal(od OriginDestination) (world.DrivingGoal, *Skip, error) {
	switch od.Kind {
	case ODNeighborhood:
		b, skip, err := r.pickBuilding(od.Name)
		if skip != nil || err != nil {
			return world.DrivingGoal{}, skip, err
		}
		return world.ParkNear(b), nil, nil
	case ODBorder:
		if err := r.checkIntersection(od.Intersection); err != nil {
			return world.DrivingGoal{}, nil, err
		}
		lanes := r.m.IncomingLanes(od.Intersection, mapmodel.LaneDriving)
		if len(lanes) == 0 {
			r.logger.Warn("can't spawn a car ending at border; no driving lane there", "intersection", od.Intersection)
			return world.DrivingGoal{}, &Skip{Reason: SkipNoDrivingLane, Detail: od.Intersection.String()}, nil
		}
		return world.BorderGoal(od.Intersection, lanes[0]), nil, nil
	}
	return world.DrivingGoal{}, nil, fmt.Errorf("%w: goal kind %q", ErrInvalid, od.Kind)
}

// WalkingGoal resolves a neighborhood to a random building in it, and a border to the
// end of a sidewalk arriving there.
func (r *Resolver) WalkingGoal(od OriginDestination) (world.SidewalkSpot, *Skip, error) {
	switch od.Kind {
	case ODNeighborhood:
		b, skip, err := r.pickBuilding(od.Name)
		if skip != nil || err != nil {
			return world.SidewalkSpot{}, skip, err
		}
		return world.BuildingSpot(b, r.m), nil, nil
	case ODBorder:
		if err := r.checkIntersection(od.Intersection); err != nil {
			return world.SidewalkSpot{}, nil, err
		}
		spot, ok := world.EndAtBorder(od.Intersection, r.m)
		if !ok {
			r.logger.Warn("can't end at border without a sidewalk", "intersection", od.Intersection)
			return world.SidewalkSpot{}, &Skip{Reason: SkipNoSidewalk, Detail: od.Intersection.String()}, nil
		}
		return spot, nil, nil
	}
	return world.SidewalkSpot{}, nil, fmt.Errorf("%w: goal kind %q", ErrInvalid, od.Kind)
}

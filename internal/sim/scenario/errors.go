package scenario

import (
	"errors"
	"fmt"
)

var (
	ErrUndeclaredNeighborhood = errors.New("neighborhood isn't defined")
	ErrNotTickZero            = errors.New("scenario must be instantiated at tick zero")
	ErrMapMismatch            = errors.New("scenario targets a different map")
	ErrTooFewPoints           = errors.New("neighborhood needs at least 3 points")
	ErrUnprojectablePoint     = errors.New("neighborhood point outside the map")
	ErrEmptySpawnWindow       = errors.New("empty spawn window")
	ErrNegativeCount          = errors.New("negative agent count")
	ErrNoWeights              = errors.New("cars_per_building has no weight")
	ErrUnknownIntersection    = errors.New("intersection not in map")
	ErrInvalid                = errors.New("invalid scenario")
)

type SkipReason string

const (
	SkipEmptyNeighborhood SkipReason = "empty_neighborhood"
	SkipNoDrivingLane     SkipReason = "no_driving_lane"
	SkipNoSidewalk        SkipReason = "no_sidewalk"
	SkipNoWalkingGoal     SkipReason = "no_walking_goal"
)

// Skip is a recoverable outcome: the agent (or sub-population) is dropped with a
// warning and instantiation continues.
type Skip struct {
	Reason SkipReason
	Detail string
}

func (s *Skip) String() string {
	if s.Detail == "" {
		return string(s.Reason)
	}
	return fmt.Sprintf("%s: %s", s.Reason, s.Detail)
}

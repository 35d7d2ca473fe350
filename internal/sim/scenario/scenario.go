// Package scenario describes traffic demand declaratively and expands it into
// individually timed trips inside a World.
package scenario

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
	"trafficsim.ai/internal/sim/world"
)

// Everywhere is the implicit neighborhood covering the whole map.
const Everywhere = "_everywhere_"

type Scenario struct {
	ScenarioName string `json:"scenario_name"`
	MapName      string `json:"map_name"`

	SeedParkedCars      []SeedParkedCars      `json:"seed_parked_cars"`
	SpawnOverTime       []SpawnOverTime       `json:"spawn_over_time"`
	BorderSpawnOverTime []BorderSpawnOverTime `json:"border_spawn_over_time"`
}

// SpawnOverTime agents choose their mode at instantiation: drive if their building
// has an unreserved parked car and a driving goal resolves, walk otherwise.
type SpawnOverTime struct {
	NumAgents             int               `json:"num_agents"`
	StartTick             simtime.Tick      `json:"start_tick"`
	StopTick              simtime.Tick      `json:"stop_tick"`
	StartFromNeighborhood string            `json:"start_neighborhood"`
	Goal                  OriginDestination `json:"goal"`
}

// BorderSpawnOverTime agents enter at a border already walking or driving.
type BorderSpawnOverTime struct {
	NumPeds         int                     `json:"num_peds"`
	NumCars         int                     `json:"num_cars"`
	StartTick       simtime.Tick            `json:"start_tick"`
	StopTick        simtime.Tick            `json:"stop_tick"`
	StartFromBorder mapmodel.IntersectionID `json:"start_border_intersection"`
	Goal            OriginDestination       `json:"goal"`
}

type SeedParkedCars struct {
	Neighborhood    string                    `json:"neighborhood"`
	CarsPerBuilding world.WeightedUsizeChoice `json:"cars_per_building"`
}

type ODKind string

const (
	ODNeighborhood ODKind = "neighborhood"
	ODBorder       ODKind = "border"
)

// OriginDestination is either a named neighborhood or a border intersection.
type OriginDestination struct {
	Kind         ODKind
	Name         string
	Intersection mapmodel.IntersectionID
}

func InNeighborhood(name string) OriginDestination {
	return OriginDestination{Kind: ODNeighborhood, Name: name}
}

func AtBorder(i mapmodel.IntersectionID) OriginDestination {
	return OriginDestination{Kind: ODBorder, Intersection: i}
}

func (od OriginDestination) String() string {
	if od.Kind == ODBorder {
		return "border " + od.Intersection.String()
	}
	return "neighborhood " + od.Name
}

type odWire struct {
	Kind         ODKind                   `json:"kind"`
	Name         *string                  `json:"name,omitempty"`
	Intersection *mapmodel.IntersectionID `json:"intersection_id,omitempty"`
}

func (od OriginDestination) MarshalJSON() ([]byte, error) {
	w := odWire{Kind: od.Kind}
	switch od.Kind {
	case ODNeighborhood:
		w.Name = &od.Name
	case ODBorder:
		w.Intersection = &od.Intersection
	default:
		return nil, fmt.Errorf("unknown origin/destination kind %q", od.Kind)
	}
	return json.Marshal(w)
}

func (od *OriginDestination) UnmarshalJSON(b []byte) error {
	var w odWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Kind {
	case ODNeighborhood:
		if w.Name == nil {
			return fmt.Errorf("neighborhood goal without name")
		}
		*od = InNeighborhood(*w.Name)
	case ODBorder:
		if w.Intersection == nil {
			return fmt.Errorf("border goal without intersection_id")
		}
		*od = AtBorder(*w.Intersection)
	default:
		return fmt.Errorf("unknown origin/destination kind %q", w.Kind)
	}
	return nil
}

// Describe renders the scenario as indented JSON, one string per line.
func (s Scenario) Describe() []string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return []string{err.Error()}
	}
	return strings.Split(string(b), "\n")
}

// ReferencedNeighborhoods lists the persisted neighborhoods the scenario names, sorted.
// Everywhere is implicit and left out.
func (s Scenario) ReferencedNeighborhoods() []string {
	seen := map[string]bool{}
	add := func(name string) {
		if name != "" && name != Everywhere {
			seen[name] = true
		}
	}
	addOD := func(od OriginDestination) {
		if od.Kind == ODNeighborhood {
			add(od.Name)
		}
	}
	for _, r := range s.SeedParkedCars {
		add(r.Neighborhood)
	}
	for _, r := range s.SpawnOverTime {
		add(r.StartFromNeighborhood)
		addOD(r.Goal)
	}
	for _, r := range s.BorderSpawnOverTime {
		addOD(r.Goal)
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Attempted is the number of agents the scenario asks for.
func (s Scenario) Attempted() int {
	n := 0
	for _, r := range s.SpawnOverTime {
		n += r.NumAgents
	}
	for _, r := range s.BorderSpawnOverTime {
		n += r.NumPeds + r.NumCars
	}
	return n
}

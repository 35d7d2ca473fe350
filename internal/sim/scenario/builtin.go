package scenario

import (
	"context"

	"trafficsim.ai/internal/persistence/objects"
	"trafficsim.ai/internal/sim/mapmodel"
	"trafficsim.ai/internal/sim/simtime"
	"trafficsim.ai/internal/sim/world"
)

const (
	SmallSpawnName = "small_spawn"
	BigSpawnName   = "big_spawn"
)

// SmallSpawnScenario is a light everywhere-to-everywhere load: 100 agents, 10 peds and
// 10 cars per incoming border, and 10 agents heading to each outgoing border, all within
// the first 5 seconds. Borders lacking sidewalks or lanes are skipped at instantiation.
func SmallSpawnScenario(m *mapmodel.Map) Scenario {
	s := everywhereScenario(SmallSpawnName, m, []uint{5, 5}, 100, 10)
	for _, i := range m.AllOutgoingBorders() {
		s.SpawnOverTime = append(s.SpawnOverTime, SpawnOverTime{
			NumAgents:             10,
			StartTick:             simtime.Zero,
			StopTick:              simtime.FromSeconds(5),
			StartFromNeighborhood: Everywhere,
			Goal:                  AtBorder(i.ID),
		})
	}
	return s
}

func BigSpawnScenario(m *mapmodel.Map) Scenario {
	return everywhereScenario(BigSpawnName, m, []uint{2, 8}, 1000, 100)
}

func everywhereScenario(name string, m *mapmodel.Map, weights []uint, agents, perBorder int) Scenario {
	s := Scenario{
		ScenarioName: name,
		MapName:      m.Name(),
		SeedParkedCars: []SeedParkedCars{{
			Neighborhood:    Everywhere,
			CarsPerBuilding: world.WeightedUsizeChoice{Weights: weights},
		}},
		SpawnOverTime: []SpawnOverTime{{
			NumAgents:             agents,
			StartTick:             simtime.Zero,
			StopTick:              simtime.FromSeconds(5),
			StartFromNeighborhood: Everywhere,
			Goal:                  InNeighborhood(Everywhere),
		}},
	}
	for _, i := range m.AllIncomingBorders() {
		s.BorderSpawnOverTime = append(s.BorderSpawnOverTime, BorderSpawnOverTime{
			NumPeds:         perBorder,
			NumCars:         perBorder,
			StartTick:       simtime.Zero,
			StopTick:        simtime.FromSeconds(5),
			StartFromBorder: i.ID,
			Goal:            InNeighborhood(Everywhere),
		})
	}
	return s
}

// SmallSpawn instantiates SmallSpawnScenario and then puts buses on every route.
func SmallSpawn(ctx context.Context, w *world.World, m *mapmodel.Map, store objects.Store) (*Report, error) {
	rep, err := SmallSpawnScenario(m).Instantiate(ctx, w, m, store)
	if err != nil {
		return nil, err
	}
	for _, r := range m.AllBusRoutes() {
		w.SeedBusRoute(m, r.ID)
	}
	return rep, nil
}

func BigSpawn(ctx context.Context, w *world.World, m *mapmodel.Map, store objects.Store) (*Report, error) {
	return BigSpawnScenario(m).Instantiate(ctx, w, m, store)
}

// Builtin returns a built-in scenario constructor by name.
func Builtin(name string) (func(context.Context, *world.World, *mapmodel.Map, objects.Store) (*Report, error), bool) {
	switch name {
	case SmallSpawnName:
		return SmallSpawn, true
	case BigSpawnName:
		return BigSpawn, true
	}
	return nil, false
}

package scenario

import (
	"context"

	"trafficsim.ai/internal/persistence/objects"
)

func (s Scenario) Save(ctx context.Context, store objects.Store) error {
	return store.Save(ctx, objects.Scenarios, s.MapName, s.ScenarioName, s)
}

func LoadScenario(ctx context.Context, store objects.Store, mapName, name string) (Scenario, error) {
	var s Scenario
	err := store.Load(ctx, objects.Scenarios, mapName, name, &s)
	return s, err
}

func ListScenarios(ctx context.Context, store objects.Store, mapName string) ([]string, error) {
	return store.List(ctx, objects.Scenarios, mapName)
}

func ListNeighborhoods(ctx context.Context, store objects.Store, mapName string) ([]string, error) {
	return store.List(ctx, objects.Neighborhoods, mapName)
}
